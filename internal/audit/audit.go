package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stocklens/api/internal/store"
)

type Logger struct {
	s *store.Store
}

func NewLogger(s *store.Store) *Logger {
	return &Logger{s: s}
}

type Entry struct {
	UserID     *int64
	Action     string
	EntityType string
	EntityID   *int64
	RequestID  string
	Metadata   map[string]any
}

func (l *Logger) Log(ctx context.Context, entry Entry) error {
	var metadata []byte
	if len(entry.Metadata) > 0 {
		encoded, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		metadata = encoded
	}

	params := store.AuditLogParams{
		UserID:     entry.UserID,
		Action:     entry.Action,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		Metadata:   metadata,
	}
	if entry.RequestID != "" {
		params.RequestID = &entry.RequestID
	}

	return l.s.InsertAuditLog(ctx, params)
}
