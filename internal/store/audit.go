package store

import (
	"context"
	"fmt"
)

type AuditLogParams struct {
	UserID     *int64
	Action     string
	EntityType string
	EntityID   *int64
	RequestID  *string
	Metadata   []byte
}

func (s *Store) InsertAuditLog(ctx context.Context, params AuditLogParams) error {
	metadata := params.Metadata
	if len(metadata) == 0 {
		metadata = []byte("{}")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO audit_logs (user_id, action, entity_type, entity_id, request_id, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, params.UserID, params.Action, params.EntityType, params.EntityID, params.RequestID, metadata)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}
