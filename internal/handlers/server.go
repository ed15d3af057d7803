package handlers

import (
	"log/slog"
	"net/http"

	"github.com/stocklens/api/internal/audit"
	"github.com/stocklens/api/internal/config"
	"github.com/stocklens/api/internal/httpx"
	"github.com/stocklens/api/internal/store"
)

// Server bundles the dependencies shared by every HTTP handler.
type Server struct {
	Config config.Config
	Store  *store.Store
	Audit  *audit.Logger
	Logger *slog.Logger
}

func NewServer(cfg config.Config, st *store.Store, logger *slog.Logger) *Server {
	return &Server{
		Config: cfg,
		Store:  st,
		Audit:  audit.NewLogger(st),
		Logger: logger,
	}
}

func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.Store.Pool().Ping(r.Context()); err != nil {
		httpx.WriteError(w, r, http.StatusServiceUnavailable, "db_unavailable", "Database is unreachable", nil)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
