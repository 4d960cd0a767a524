package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/govworks/foia/internal/models"
)

func (s *Store) CreateDocument(ctx context.Context, d *models.Document) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	now := time.Now()
	d.CreatedAt = now
	d.UpdatedAt = now
	if d.Disposition == "" {
		d.Disposition = models.DispositionResponsive
	}
	if d.RedactionStatus == "" {
		d.RedactionStatus = models.DocumentRedactionPending
	}

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO foia_documents (
			id, request_id, filename, original_filename, file_type, file_size, file_path,
			disposition, redaction_status, page_count, uploaded_by, created_at, updated_at
		) VALUES (
			:id, :request_id, :filename, :original_filename, :file_type, :file_size, :file_path,
			:disposition, :redaction_status, :page_count, :uploaded_by, :created_at, :updated_at
		)
	`, d)
	return err
}

func (s *Store) GetDocument(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	var d models.Document
	err := s.db.GetContext(ctx, &d, `SELECT * FROM foia_documents WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &d, err
}

type documentRow struct {
	models.Document
	TrackingNumber   string                   `db:"tracking_number"`
	Subject          string                   `db:"subject"`
	RequestStatus    models.RequestStatus     `db:"request_status"`
	AnalysisID       *uuid.UUID               `db:"analysis_id"`
	DocumentType     *string                  `db:"document_type"`
	TypeConfidence   *float64                 `db:"type_confidence"`
	ProcessingStatus *models.ProcessingStatus `db:"processing_status"`
	Metadata         models.JSONB             `db:"analysis_metadata"`
}

// ListDocuments returns the newest documents with their request and
// analysis status.
func (s *Store) ListDocuments(ctx context.Context, limit int) ([]models.DocumentListItem, error) {
	var rows []documentRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT d.*,
			r.tracking_number, r.subject, r.status AS request_status,
			a.id AS analysis_id, a.document_type, a.type_confidence, a.processing_status,
			a.metadata AS analysis_metadata
		FROM foia_documents d
		JOIN foia_requests r ON r.id = d.request_id
		LEFT JOIN document_analysis a ON a.document_id = d.id
		ORDER BY d.created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}

	out := make([]models.DocumentListItem, 0, len(rows))
	for _, row := range rows {
		item := models.DocumentListItem{
			Document: row.Document,
			Request: models.DocumentRequestRef{
				TrackingNumber: row.TrackingNumber,
				Subject:        row.Subject,
				Status:         row.RequestStatus,
			},
		}
		if row.AnalysisID != nil {
			item.Analysis = &models.DocumentAnalysisRef{
				ID:             *row.AnalysisID,
				DocumentType:   row.DocumentType,
				TypeConfidence: row.TypeConfidence,
				Metadata:       row.Metadata,
			}
			if row.ProcessingStatus != nil {
				item.Analysis.ProcessingStatus = *row.ProcessingStatus
			}
		}
		out = append(out, item)
	}
	return out, nil
}

// ListActiveTemplates returns active templates ordered by type and name.
func (s *Store) ListActiveTemplates(ctx context.Context) ([]models.Template, error) {
	var out []models.Template
	err := s.db.SelectContext(ctx, &out, `
		SELECT * FROM foia_templates WHERE is_active ORDER BY template_type, name
	`)
	return out, err
}
