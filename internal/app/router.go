package app

import (
	_ "embed"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-chi/chi/v5"
	openapimiddleware "github.com/oapi-codegen/nethttp-middleware"

	"github.com/stocklens/api/internal/config"
	"github.com/stocklens/api/internal/handlers"
	"github.com/stocklens/api/internal/httpx"
	"github.com/stocklens/api/internal/middleware"
	"github.com/stocklens/api/internal/store"
)

//go:embed openapi.yaml
var openapiSpec []byte

// NewRouter assembles the full HTTP surface: shared middleware, OpenAPI
// request validation, and the public and session-protected route groups.
func NewRouter(cfg config.Config, st *store.Store, logger *slog.Logger) (http.Handler, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(openapiSpec)
	if err != nil {
		return nil, fmt.Errorf("load openapi spec: %w", err)
	}
	if err := doc.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("validate openapi spec: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.SecurityHeaders(cfg.Env))
	r.Use(middleware.CORS(cfg.CORSAllowedOrigins))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.LimitBodyBytesWithOverrides(cfg.APIMaxBodyBytes, []middleware.BodyLimitOverride{
		{PathPrefix: "/upload", MaxBytes: cfg.ImportMaxFileBytes},
	}))

	api := chi.NewRouter()
	api.Use(openapimiddleware.OapiRequestValidatorWithOptions(doc, &openapimiddleware.Options{
		SilenceServersWarning: true,
		ErrorHandler: func(w http.ResponseWriter, message string, statusCode int) {
			requestID := w.Header().Get("X-Request-Id")
			httpx.WriteJSON(w, statusCode, httpx.ErrorEnvelope{
				Error:     httpx.ErrorBody{Code: "validation_error", Message: message},
				RequestID: requestID,
			})
		},
	}))

	h := handlers.NewServer(cfg, st, logger)

	authMW := middleware.AuthMiddleware{Store: st, CookieName: cfg.SessionCookieName}
	loginLimiter := middleware.NewLoginRateLimiter(10, time.Minute)
	uploadLimiter := middleware.NewIPRateLimiter(20, time.Minute)

	api.Group(func(public chi.Router) {
		public.Get("/health", h.GetHealth)
		public.With(loginLimiter.Middleware).Post("/auth/register", h.Register)
		public.With(loginLimiter.Middleware).Post("/auth/login", h.Login)
	})

	api.Group(func(protected chi.Router) {
		protected.Use(authMW.RequireAuth)
		protected.Get("/auth/me", h.Me)
		protected.Get("/auth/csrf", h.GetCSRFToken)
		protected.With(middleware.EnforceCSRF(cfg.CSRFEnforce)).Post("/auth/logout", h.Logout)

		protected.Get("/data", h.GetData)
		protected.Get("/imports", h.ListImports)
		protected.With(
			uploadLimiter.Middleware("Too many uploads"),
			middleware.EnforceCSRF(cfg.CSRFEnforce),
		).Post("/upload", h.Upload)
	})

	r.Mount("/api", api)
	return r, nil
}
