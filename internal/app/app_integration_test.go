package app

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/xuri/excelize/v2"

	"github.com/stocklens/api/internal/config"
	"github.com/stocklens/api/internal/store"
)

func TestRegisterAndLoginFlow(t *testing.T) {
	env := setupTestEnv(t)

	status, _ := registerUser(t, env.router, "ada@example.com", "ada", "Password123!")
	if status != http.StatusCreated {
		t.Fatalf("expected 201 register, got %d", status)
	}

	status, body := registerUser(t, env.router, "ada@example.com", "ada2", "Password123!")
	if status != http.StatusConflict {
		t.Fatalf("expected 409 duplicate register, got %d (%s)", status, string(body))
	}

	status, body = request(t, env.router, http.MethodPost, "/api/auth/login",
		jsonBody(t, map[string]string{"identifier": "ada@example.com", "password": "wrong-password"}), nil, "")
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401 bad password, got %d (%s)", status, string(body))
	}

	cookie := login(t, env.router, "ada@example.com", "Password123!")
	status, body = request(t, env.router, http.MethodGet, "/api/auth/me", nil, cookie, "")
	if status != http.StatusOK {
		t.Fatalf("expected 200 me, got %d (%s)", status, string(body))
	}

	// Username works as the login identifier too.
	if c := login(t, env.router, "ada", "Password123!"); c == nil {
		t.Fatal("expected username login to succeed")
	}
}

func TestLogoutRevokesSession(t *testing.T) {
	env := setupTestEnv(t)

	registerUser(t, env.router, "session@example.com", "session", "Password123!")
	cookie := login(t, env.router, "session@example.com", "Password123!")

	csrf := csrfToken(t, env.router, cookie)
	status, _ := request(t, env.router, http.MethodPost, "/api/auth/logout", nil, cookie, csrf)
	if status != http.StatusNoContent {
		t.Fatalf("expected 204 logout response, got %d", status)
	}

	status, _ = request(t, env.router, http.MethodGet, "/api/auth/me", nil, cookie, "")
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", status)
	}
}

func TestUploadImportsAndIsIdempotent(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	registerUser(t, env.router, "importer@example.com", "importer", "Password123!")
	cookie := login(t, env.router, "importer@example.com", "Password123!")
	csrf := csrfToken(t, env.router, cookie)

	workbook := buildWorkbook(t, [][]any{
		{"ID", "Product Name", "Opening Inventory", "Procurement Qty (Day 1)", "Procurement Price (Day 1)", "Sales Qty (Day 1)", "Sales Price (Day 1)", "Sales Qty (Day 2)", "Sales Price (Day 2)"},
		{"P1", "Widget", 10, 5, "2.00", 3, "4.00", 2, "4.00"},
		{"P2", "Gadget", 0, 1, "1.50", 0, "", 0, ""},
	})

	status, body := uploadFile(t, env.router, cookie, csrf, "inventory.xlsx", workbook)
	if status != http.StatusOK {
		t.Fatalf("expected 200 upload, got %d (%s)", status, string(body))
	}
	var result struct {
		Imported int   `json:"imported"`
		BatchID  int64 `json:"batchId"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("parse upload body: %v", err)
	}
	if result.Imported != 3 {
		t.Fatalf("expected 3 imported facts, got %d", result.Imported)
	}
	if result.BatchID == 0 {
		t.Fatal("expected a batch id")
	}

	var factCount int
	if err := env.pool.QueryRow(ctx, `SELECT COUNT(*) FROM daily_facts`).Scan(&factCount); err != nil {
		t.Fatalf("count facts: %v", err)
	}
	if factCount != 3 {
		t.Fatalf("expected 3 fact rows, got %d", factCount)
	}

	// Re-uploading the same file overwrites facts instead of duplicating them.
	workbook2 := buildWorkbook(t, [][]any{
		{"ID", "Product Name", "Opening Inventory", "Procurement Qty (Day 1)", "Procurement Price (Day 1)", "Sales Qty (Day 1)", "Sales Price (Day 1)", "Sales Qty (Day 2)", "Sales Price (Day 2)"},
		{"P1", "Widget", 10, 5, "2.00", 3, "4.00", 2, "4.00"},
		{"P2", "Gadget", 0, 1, "1.50", 0, "", 0, ""},
	})
	status, body = uploadFile(t, env.router, cookie, csrf, "inventory.xlsx", workbook2)
	if status != http.StatusOK {
		t.Fatalf("expected 200 re-upload, got %d (%s)", status, string(body))
	}
	if err := env.pool.QueryRow(ctx, `SELECT COUNT(*) FROM daily_facts`).Scan(&factCount); err != nil {
		t.Fatalf("count facts after re-upload: %v", err)
	}
	if factCount != 3 {
		t.Fatalf("expected fact count to stay at 3 after re-upload, got %d", factCount)
	}

	status, body = request(t, env.router, http.MethodGet, "/api/data", nil, cookie, "")
	if status != http.StatusOK {
		t.Fatalf("expected 200 data, got %d (%s)", status, string(body))
	}
	var data struct {
		Products []struct {
			ID   int64  `json:"id"`
			Code string `json:"code"`
		} `json:"products"`
		Data []struct {
			ProductID   int64   `json:"productId"`
			SalesAmount *string `json:"salesAmount"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &data); err != nil {
		t.Fatalf("parse data body: %v", err)
	}
	if len(data.Products) != 2 {
		t.Fatalf("expected 2 products, got %d", len(data.Products))
	}
	if len(data.Data) != 3 {
		t.Fatalf("expected 3 facts, got %d", len(data.Data))
	}

	status, body = request(t, env.router, http.MethodGet, "/api/imports", nil, cookie, "")
	if status != http.StatusOK {
		t.Fatalf("expected 200 imports, got %d (%s)", status, string(body))
	}
	var imports struct {
		Imports []struct {
			ID       int64  `json:"id"`
			Filename string `json:"filename"`
		} `json:"imports"`
	}
	if err := json.Unmarshal(body, &imports); err != nil {
		t.Fatalf("parse imports body: %v", err)
	}
	if len(imports.Imports) != 2 {
		t.Fatalf("expected 2 import batches, got %d", len(imports.Imports))
	}

	// A second account sees none of the first account's products.
	registerUser(t, env.router, "other@example.com", "other", "Password123!")
	otherCookie := login(t, env.router, "other@example.com", "Password123!")
	status, body = request(t, env.router, http.MethodGet, "/api/data", nil, otherCookie, "")
	if status != http.StatusOK {
		t.Fatalf("expected 200 data for other user, got %d (%s)", status, string(body))
	}
	if err := json.Unmarshal(body, &data); err != nil {
		t.Fatalf("parse other user's data body: %v", err)
	}
	if len(data.Products) != 0 || len(data.Data) != 0 {
		t.Fatalf("expected empty data for other user, got %d products and %d facts", len(data.Products), len(data.Data))
	}
}

func TestUploadRejectsFileWithoutDailyData(t *testing.T) {
	env := setupTestEnv(t)

	registerUser(t, env.router, "empty@example.com", "empty", "Password123!")
	cookie := login(t, env.router, "empty@example.com", "Password123!")
	csrf := csrfToken(t, env.router, cookie)

	workbook := buildWorkbook(t, [][]any{
		{"ID", "Product Name", "Opening Inventory"},
		{"P1", "Widget", 10},
	})

	status, body := uploadFile(t, env.router, cookie, csrf, "no-days.xlsx", workbook)
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 for file without day columns, got %d (%s)", status, string(body))
	}
	if !bytes.Contains(body, []byte("no_daily_data")) {
		t.Fatalf("expected no_daily_data error code, got %s", string(body))
	}

	var batchCount int
	if err := env.pool.QueryRow(context.Background(), `SELECT COUNT(*) FROM import_batches`).Scan(&batchCount); err != nil {
		t.Fatalf("count batches: %v", err)
	}
	if batchCount != 0 {
		t.Fatalf("expected no batch rows for rejected upload, got %d", batchCount)
	}
}

func TestUploadRejectsWrongExtensionAndMissingFile(t *testing.T) {
	env := setupTestEnv(t)

	registerUser(t, env.router, "badfile@example.com", "badfile", "Password123!")
	cookie := login(t, env.router, "badfile@example.com", "Password123!")
	csrf := csrfToken(t, env.router, cookie)

	status, body := uploadFile(t, env.router, cookie, csrf, "data.csv", bytes.NewBufferString("ID,Product Name\n"))
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 for csv upload, got %d (%s)", status, string(body))
	}
	if !bytes.Contains(body, []byte("invalid_file_type")) {
		t.Fatalf("expected invalid_file_type error code, got %s", string(body))
	}
}

type testEnv struct {
	pool   *pgxpool.Pool
	router http.Handler
}

func setupTestEnv(t *testing.T) testEnv {
	t.Helper()
	databaseURL := os.Getenv("TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("TEST_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("connect test db: %v", err)
	}
	t.Cleanup(pool.Close)

	resetSchema(t, ctx, pool, databaseURL)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.Config{
		Addr:               ":0",
		DatabaseURL:        databaseURL,
		SessionCookieName:  "sl_sess",
		SessionTTL:         8 * time.Hour,
		SecureCookies:      false,
		CSRFEnforce:        true,
		Env:                "test",
		APIMaxBodyBytes:    2 * 1024 * 1024,
		ImportMaxFileBytes: 25 * 1024 * 1024,
		ImportMaxRows:      5000,
	}

	router, err := NewRouter(cfg, store.New(pool), logger)
	if err != nil {
		t.Fatalf("create router: %v", err)
	}

	return testEnv{pool: pool, router: router}
}

func resetSchema(t *testing.T, ctx context.Context, pool *pgxpool.Pool, databaseURL string) {
	t.Helper()

	if _, err := pool.Exec(ctx, `DROP SCHEMA public CASCADE; CREATE SCHEMA public;`); err != nil {
		t.Fatalf("drop schema: %v", err)
	}

	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		t.Fatalf("open migration db: %v", err)
	}
	defer db.Close()

	if err := goose.Up(db, "../../migrations"); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
}

func buildWorkbook(t *testing.T, rows [][]any) *bytes.Buffer {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	for i, cells := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
			t.Fatalf("set row: %v", err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	return buf
}

func registerUser(t *testing.T, router http.Handler, email, username, password string) (int, []byte) {
	t.Helper()
	return request(t, router, http.MethodPost, "/api/auth/register",
		jsonBody(t, map[string]string{"email": email, "username": username, "password": password}), nil, "")
}

func login(t *testing.T, router http.Handler, identifier, password string) *http.Cookie {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login",
		bytes.NewReader(jsonBody(t, map[string]string{"identifier": identifier, "password": password})))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "127.0.0.1:12345"
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		body, _ := io.ReadAll(rec.Result().Body)
		t.Fatalf("login expected 200, got %d with body: %s", rec.Code, string(body))
	}

	for _, c := range rec.Result().Cookies() {
		if c.Name == "sl_sess" {
			return c
		}
	}
	t.Fatal("session cookie not set")
	return nil
}

func csrfToken(t *testing.T, router http.Handler, session *http.Cookie) string {
	t.Helper()
	status, body := request(t, router, http.MethodGet, "/api/auth/csrf", nil, session, "")
	if status != http.StatusOK {
		t.Fatalf("csrf expected 200, got %d (%s)", status, string(body))
	}
	var payload map[string]string
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("parse csrf body: %v", err)
	}
	return payload["csrfToken"]
}

func uploadFile(t *testing.T, router http.Handler, session *http.Cookie, csrf, filename string, content *bytes.Buffer) (int, []byte) {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("X-CSRF-Token", csrf)
	req.RemoteAddr = "127.0.0.1:12345"
	req.AddCookie(session)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	resBody, _ := io.ReadAll(rec.Result().Body)
	return rec.Code, resBody
}

func jsonBody(t *testing.T, payload any) []byte {
	t.Helper()
	encoded, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return encoded
}

func request(t *testing.T, router http.Handler, method, path string, body []byte, session *http.Cookie, csrf string) (int, []byte) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.RemoteAddr = "127.0.0.1:12345"
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if session != nil {
		req.AddCookie(session)
	}
	if csrf != "" {
		req.Header.Set("X-CSRF-Token", csrf)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	resBody, _ := io.ReadAll(rec.Result().Body)
	return rec.Code, resBody
}
