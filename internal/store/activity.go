package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/govworks/foia/internal/models"
)

func (s *Store) LogActivity(ctx context.Context, entry *models.ActivityLog) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO foia_activity_logs (
			id, request_id, document_id, activity_type, action, actor_id,
			actor_name, old_value, new_value, metadata, timestamp
		) VALUES (
			:id, :request_id, :document_id, :activity_type, :action, :actor_id,
			:actor_name, :old_value, :new_value, :metadata, :timestamp
		)
	`, entry)
	return err
}

// ListActivity returns a request's audit trail, newest first.
func (s *Store) ListActivity(ctx context.Context, requestID uuid.UUID, limit int) ([]models.ActivityLog, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []models.ActivityLog
	err := s.db.SelectContext(ctx, &out, `
		SELECT * FROM foia_activity_logs
		WHERE request_id = $1
		ORDER BY timestamp DESC
		LIMIT $2
	`, requestID, limit)
	return out, err
}
