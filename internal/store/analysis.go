package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/govworks/foia/internal/models"
)

func (s *Store) CreateRequestAnalysis(ctx context.Context, a *models.RequestAnalysis) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.CreatedAt = time.Now()

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO foia_ai_analysis (
			id, request_id, analysis_type, input_text, analysis_result,
			confidence_score, model_version, processing_time_ms, created_at
		) VALUES (
			:id, :request_id, :analysis_type, :input_text, :analysis_result,
			:confidence_score, :model_version, :processing_time_ms, :created_at
		)
	`, a)
	return err
}

// CreateExtractedEntities inserts all rows in one transaction.
func (s *Store) CreateExtractedEntities(ctx context.Context, entities []models.ExtractedEntity) error {
	if len(entities) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareNamedContext(ctx, `
		INSERT INTO foia_extracted_entities (
			id, analysis_id, entity_type, entity_value, start_position,
			end_position, confidence, context_snippet, created_at
		) VALUES (
			:id, :analysis_id, :entity_type, :entity_value, :start_position,
			:end_position, :confidence, :context_snippet, :created_at
		)
	`)
	if err != nil {
		return fmt.Errorf("preparing entity insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for i := range entities {
		e := &entities[i]
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
		}
		e.CreatedAt = now
		if _, err := stmt.ExecContext(ctx, e); err != nil {
			return fmt.Errorf("inserting entity: %w", err)
		}
	}
	return tx.Commit()
}

func (s *Store) GetRequestAnalysis(ctx context.Context, id uuid.UUID) (*models.RequestAnalysis, error) {
	var a models.RequestAnalysis
	err := s.db.GetContext(ctx, &a, `SELECT * FROM foia_ai_analysis WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &a, err
}

func (s *Store) ListExtractedEntities(ctx context.Context, analysisID uuid.UUID) ([]models.ExtractedEntity, error) {
	var out []models.ExtractedEntity
	err := s.db.SelectContext(ctx, &out, `
		SELECT * FROM foia_extracted_entities WHERE analysis_id = $1 ORDER BY start_position
	`, analysisID)
	return out, err
}

// PurgeRequestAnalyses deletes request analyses, and their entities,
// created before cutoff.
func (s *Store) PurgeRequestAnalyses(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM foia_ai_analysis WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) GetDocumentAnalysisByDocumentID(ctx context.Context, documentID uuid.UUID) (*models.DocumentAnalysis, error) {
	var a models.DocumentAnalysis
	err := s.db.GetContext(ctx, &a, `SELECT * FROM document_analysis WHERE document_id = $1`, documentID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &a, err
}

// CreateDocumentAnalysis inserts a pending analysis. When a row already
// exists for the document it is kept and a takes its id.
func (s *Store) CreateDocumentAnalysis(ctx context.Context, a *models.DocumentAnalysis) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	now := time.Now()
	a.CreatedAt = now
	a.UpdatedAt = now
	if a.ProcessingStatus == "" {
		a.ProcessingStatus = models.ProcessingPending
	}

	query := `
		INSERT INTO document_analysis (id, document_id, processing_status, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (document_id) DO UPDATE SET updated_at = EXCLUDED.updated_at
		RETURNING id, processing_status, created_at
	`
	return s.db.QueryRowxContext(ctx, query,
		a.ID, a.DocumentID, a.ProcessingStatus, a.Metadata, a.CreatedAt, a.UpdatedAt,
	).Scan(&a.ID, &a.ProcessingStatus, &a.CreatedAt)
}

func (s *Store) UpdateDocumentAnalysis(ctx context.Context, a *models.DocumentAnalysis) error {
	a.UpdatedAt = time.Now()
	_, err := s.db.NamedExecContext(ctx, `
		UPDATE document_analysis SET
			document_type = :document_type,
			type_confidence = :type_confidence,
			page_count = :page_count,
			processing_status = :processing_status,
			metadata = :metadata,
			updated_at = :updated_at
		WHERE id = :id
	`, a)
	return err
}

func (s *Store) SetDocumentProcessingStatus(ctx context.Context, id uuid.UUID, status models.ProcessingStatus) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE document_analysis SET processing_status = $1, updated_at = $2 WHERE id = $3
	`, status, time.Now(), id)
	return err
}

// ResetDocumentAnalysis removes the PII, redaction suggestions and
// exemptions left by earlier runs and marks the analysis processing.
func (s *Store) ResetDocumentAnalysis(ctx context.Context, id uuid.UUID) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	// Suggestions go with their detected_pii rows via ON DELETE CASCADE.
	if _, err := tx.ExecContext(ctx, `DELETE FROM detected_pii WHERE analysis_id = $1`, id); err != nil {
		return fmt.Errorf("clearing detected pii: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM exemption_classifications WHERE analysis_id = $1`, id); err != nil {
		return fmt.Errorf("clearing exemptions: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE document_analysis SET processing_status = $1, updated_at = $2 WHERE id = $3
	`, models.ProcessingProcessing, time.Now(), id); err != nil {
		return fmt.Errorf("marking analysis processing: %w", err)
	}
	return tx.Commit()
}

// ListStaleDocumentAnalyses returns analyses left pending or processing
// since before cutoff.
func (s *Store) ListStaleDocumentAnalyses(ctx context.Context, cutoff time.Time, limit int) ([]models.DocumentAnalysis, error) {
	var out []models.DocumentAnalysis
	err := s.db.SelectContext(ctx, &out, `
		SELECT * FROM document_analysis
		WHERE processing_status = ANY($1) AND updated_at < $2
		ORDER BY updated_at ASC
		LIMIT $3
	`, pq.Array([]string{string(models.ProcessingPending), string(models.ProcessingProcessing)}), cutoff, limit)
	return out, err
}

func (s *Store) CreateDetectedPII(ctx context.Context, item *models.DetectedPII) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	item.CreatedAt = time.Now()
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO detected_pii (id, analysis_id, pii_type, value, page_number, coordinates, confidence, context, created_at)
		VALUES (:id, :analysis_id, :pii_type, :value, :page_number, :coordinates, :confidence, :context, :created_at)
	`, item)
	return err
}

func (s *Store) CreateExemptionClassification(ctx context.Context, e *models.ExemptionClassification) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	now := time.Now()
	e.CreatedAt = now
	e.UpdatedAt = now
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO exemption_classifications (
			id, analysis_id, exemption_type, exemption_name, confidence,
			reasoning, page_references, status, created_at, updated_at
		) VALUES (
			:id, :analysis_id, :exemption_type, :exemption_name, :confidence,
			:reasoning, :page_references, :status, :created_at, :updated_at
		)
	`, e)
	return err
}

func (s *Store) CreateRedactionSuggestion(ctx context.Context, r *models.RedactionSuggestion) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	now := time.Now()
	r.CreatedAt = now
	r.UpdatedAt = now
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO redaction_suggestions (
			id, pii_id, status, redaction_method, reason, reviewed_by, reviewed_at, created_at, updated_at
		) VALUES (
			:id, :pii_id, :status, :redaction_method, :reason, :reviewed_by, :reviewed_at, :created_at, :updated_at
		)
	`, r)
	return err
}

// ApproveRedactions moves the listed suggestions from suggested to
// approved and records the reviewer. Ids belonging to another analysis
// are ignored.
func (s *Store) ApproveRedactions(ctx context.Context, analysisID uuid.UUID, ids []uuid.UUID, reviewedBy *string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = id.String()
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE redaction_suggestions rs
		SET status = $1, reviewed_by = $2, reviewed_at = $3, updated_at = $3
		FROM detected_pii p
		WHERE rs.pii_id = p.id
		  AND p.analysis_id = $4
		  AND rs.id = ANY($5::uuid[])
		  AND rs.status = $6
	`, models.RedactionApproved, reviewedBy, time.Now(), analysisID, pq.Array(strs), models.RedactionSuggested)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// GetAnalysisResults loads a document analysis with its PII, suggestions
// and exemptions. It returns nil when the document was never analyzed.
func (s *Store) GetAnalysisResults(ctx context.Context, documentID uuid.UUID) (*models.AnalysisResults, error) {
	a, err := s.GetDocumentAnalysisByDocumentID(ctx, documentID)
	if err != nil || a == nil {
		return nil, err
	}

	var items []models.DetectedPII
	if err := s.db.SelectContext(ctx, &items, `
		SELECT * FROM detected_pii WHERE analysis_id = $1 ORDER BY created_at, id
	`, a.ID); err != nil {
		return nil, fmt.Errorf("loading detected pii: %w", err)
	}

	var suggestions []models.RedactionSuggestion
	if err := s.db.SelectContext(ctx, &suggestions, `
		SELECT rs.* FROM redaction_suggestions rs
		JOIN detected_pii p ON p.id = rs.pii_id
		WHERE p.analysis_id = $1
	`, a.ID); err != nil {
		return nil, fmt.Errorf("loading redaction suggestions: %w", err)
	}
	byPII := make(map[uuid.UUID]*models.RedactionSuggestion, len(suggestions))
	for i := range suggestions {
		byPII[suggestions[i].PIIID] = &suggestions[i]
	}

	var exemptions []models.ExemptionClassification
	if err := s.db.SelectContext(ctx, &exemptions, `
		SELECT * FROM exemption_classifications WHERE analysis_id = $1 ORDER BY exemption_type
	`, a.ID); err != nil {
		return nil, fmt.Errorf("loading exemptions: %w", err)
	}

	res := &models.AnalysisResults{
		AnalysisID:       a.ID,
		DocumentID:       a.DocumentID,
		DocumentType:     a.DocumentType,
		TypeConfidence:   a.TypeConfidence,
		PageCount:        a.PageCount,
		ProcessingStatus: a.ProcessingStatus,
		Metadata:         a.Metadata,
		DetectedPII:      make([]models.PIIWithSuggestion, 0, len(items)),
		Exemptions:       exemptions,
	}
	for _, item := range items {
		res.DetectedPII = append(res.DetectedPII, models.PIIWithSuggestion{
			DetectedPII: item,
			Suggestion:  byPII[item.ID],
		})
	}
	if res.Exemptions == nil {
		res.Exemptions = []models.ExemptionClassification{}
	}
	return res, nil
}
