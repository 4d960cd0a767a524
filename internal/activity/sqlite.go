// Package activity provides a standalone SQLite audit-trail sink for
// deployments that keep the activity log outside the main database.
package activity

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/govworks/foia/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS activity_log (
	id            TEXT PRIMARY KEY,
	request_id    TEXT,
	document_id   TEXT,
	activity_type TEXT NOT NULL,
	action        TEXT NOT NULL,
	actor_id      TEXT,
	actor_name    TEXT NOT NULL DEFAULT '',
	old_value     TEXT NOT NULL DEFAULT '',
	new_value     TEXT NOT NULL DEFAULT '',
	metadata      TEXT,
	ts            INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_activity_request ON activity_log(request_id, ts);
CREATE INDEX IF NOT EXISTS idx_activity_document ON activity_log(document_id, ts);
`

// SQLiteSink writes activity entries to a SQLite database.
type SQLiteSink struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and prepares the
// schema. ":memory:" is accepted.
func Open(path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening activity database: %w", err)
	}
	// a single connection keeps ":memory:" databases shared
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma: %w", err)
		}
	}

	s := NewSQLiteSink(db)
	if err := s.Init(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLiteSink wraps an already opened database. Call Init before use.
func NewSQLiteSink(db *sql.DB) *SQLiteSink {
	return &SQLiteSink{db: db}
}

func (s *SQLiteSink) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating activity schema: %w", err)
	}
	return nil
}

func (s *SQLiteSink) Close() error {
	return s.db.Close()
}

func (s *SQLiteSink) LogActivity(ctx context.Context, entry *models.ActivityLog) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activity_log (
			id, request_id, document_id, activity_type, action, actor_id,
			actor_name, old_value, new_value, metadata, ts
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		entry.ID.String(), nullableID(entry.RequestID), nullableID(entry.DocumentID),
		string(entry.ActivityType), entry.Action, entry.ActorID,
		entry.ActorName, entry.OldValue, entry.NewValue, entry.Metadata,
		entry.Timestamp.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("inserting activity: %w", err)
	}
	return nil
}

// ListActivity returns a request's audit trail, newest first.
func (s *SQLiteSink) ListActivity(ctx context.Context, requestID uuid.UUID, limit int) ([]models.ActivityLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, request_id, document_id, activity_type, action, actor_id,
		       actor_name, old_value, new_value, metadata, ts
		FROM activity_log
		WHERE request_id = ?
		ORDER BY ts DESC
		LIMIT ?
	`, requestID.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("querying activity: %w", err)
	}
	defer rows.Close()

	var out []models.ActivityLog
	for rows.Next() {
		var (
			e                 models.ActivityLog
			id                string
			reqID, docID, act sql.NullString
			activityType      string
			ts                int64
		)
		if err := rows.Scan(&id, &reqID, &docID, &activityType, &e.Action, &act,
			&e.ActorName, &e.OldValue, &e.NewValue, &e.Metadata, &ts); err != nil {
			return nil, fmt.Errorf("scanning activity: %w", err)
		}
		if e.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parsing activity id: %w", err)
		}
		e.RequestID = parseID(reqID)
		e.DocumentID = parseID(docID)
		if act.Valid {
			e.ActorID = &act.String
		}
		e.ActivityType = models.ActivityType(activityType)
		e.Timestamp = time.Unix(0, ts).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullableID(id *uuid.UUID) interface{} {
	if id == nil {
		return nil
	}
	return id.String()
}

func parseID(s sql.NullString) *uuid.UUID {
	if !s.Valid {
		return nil
	}
	id, err := uuid.Parse(s.String)
	if err != nil {
		return nil
	}
	return &id
}
