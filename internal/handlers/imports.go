package handlers

import (
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/stocklens/api/internal/audit"
	"github.com/stocklens/api/internal/httpx"
	"github.com/stocklens/api/internal/importer"
	"github.com/stocklens/api/internal/middleware"
)

// Upload ingests one spreadsheet and reconciles it into products and daily
// facts. The whole file is applied in a single transaction, so a failed
// import leaves no partial batch behind, and re-uploading the same file
// overwrites rather than duplicates facts.
func (s *Server) Upload(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, r, http.StatusUnauthorized, "unauthorized", "Authentication required", nil)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "missing_file", "A file field named 'file' is required", nil)
		return
	}
	defer file.Close()

	filename := filepath.Base(header.Filename)
	if !strings.EqualFold(filepath.Ext(filename), ".xlsx") {
		httpx.WriteError(w, r, http.StatusBadRequest, "invalid_file_type", "Only .xlsx files are supported", nil)
		return
	}

	rows, err := importer.ReadWorkbook(file)
	if err != nil {
		switch {
		case errors.Is(err, importer.ErrEmptyWorkbook):
			httpx.WriteError(w, r, http.StatusBadRequest, "empty_workbook", "The workbook contains no sheets", nil)
		case errors.Is(err, importer.ErrNoRows):
			httpx.WriteError(w, r, http.StatusBadRequest, "no_rows", "The sheet has no data rows below the header", nil)
		default:
			httpx.WriteError(w, r, http.StatusBadRequest, "invalid_file_type", "The file could not be read as a spreadsheet", nil)
		}
		return
	}

	if s.Config.ImportMaxRows > 0 && len(rows) > s.Config.ImportMaxRows {
		httpx.WriteError(w, r, http.StatusBadRequest, "row_limit_exceeded", "The sheet exceeds the row limit for one import", map[string]int{
			"rows":  len(rows),
			"limit": s.Config.ImportMaxRows,
		})
		return
	}

	candidates, facts := importer.ExpandRows(rows, time.Now())
	if len(facts) == 0 {
		httpx.WriteError(w, r, http.StatusBadRequest, "no_daily_data", "No importable daily data found in the file", nil)
		return
	}

	result, err := s.Store.RunImport(r.Context(), actor.UserID, filename, candidates, facts)
	if err != nil {
		s.Logger.Error("run import", "filename", filename, "error", err)
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Failed to import the file", nil)
		return
	}

	s.Logger.Info("import_completed",
		"filename", filename,
		"batch_id", result.BatchID,
		"imported", result.Imported,
		"user_id", actor.UserID,
	)
	s.recordAudit(r, audit.Entry{
		UserID:     &actor.UserID,
		Action:     "import.completed",
		EntityType: "import_batch",
		EntityID:   &result.BatchID,
		Metadata: map[string]any{
			"filename": filename,
			"rows":     len(rows),
			"imported": result.Imported,
		},
	})

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"imported": result.Imported,
		"batchId":  result.BatchID,
		"message":  "Import completed",
	})
}

type importBatchPayload struct {
	ID        int64     `json:"id"`
	Filename  string    `json:"filename"`
	CreatedAt time.Time `json:"createdAt"`
}

func (s *Server) ListImports(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, r, http.StatusUnauthorized, "unauthorized", "Authentication required", nil)
		return
	}

	batches, err := s.Store.ListImportBatchesByUser(r.Context(), actor.UserID)
	if err != nil {
		s.Logger.Error("list import batches", "error", err)
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Failed to list imports", nil)
		return
	}

	payload := make([]importBatchPayload, 0, len(batches))
	for _, b := range batches {
		payload = append(payload, importBatchPayload{
			ID:        b.ID,
			Filename:  b.Filename,
			CreatedAt: b.CreatedAt,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"imports": payload})
}
