package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/govworks/foia/internal/models"
)

const dueSoonWindow = 7 * 24 * time.Hour

var requestSortColumns = map[string]string{
	"dateSubmitted":  "date_submitted",
	"dateDue":        "date_due",
	"trackingNumber": "tracking_number",
	"priority":       "priority",
	"status":         "status",
}

func statusStrings(statuses []models.RequestStatus) []string {
	out := make([]string, len(statuses))
	for i, st := range statuses {
		out[i] = string(st)
	}
	return out
}

func (s *Store) CreateRequest(ctx context.Context, r *models.Request) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	now := time.Now()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = r.CreatedAt

	query := `
		INSERT INTO foia_requests (
			id, tracking_number, requester_id, requester_name, requester_email, requester_phone,
			requester_organization, requester_type, is_anonymous, request_type, subject, description,
			date_range_start, date_range_end, status, priority, assigned_to, complexity_score,
			current_step, public_notes, date_submitted, date_acknowledged, date_due, date_completed,
			created_by, updated_by, created_at, updated_at
		) VALUES (
			:id, :tracking_number, :requester_id, :requester_name, :requester_email, :requester_phone,
			:requester_organization, :requester_type, :is_anonymous, :request_type, :subject, :description,
			:date_range_start, :date_range_end, :status, :priority, :assigned_to, :complexity_score,
			:current_step, :public_notes, :date_submitted, :date_acknowledged, :date_due, :date_completed,
			:created_by, :updated_by, :created_at, :updated_at
		)
	`
	_, err := s.db.NamedExecContext(ctx, query, r)
	return err
}

func (s *Store) GetRequest(ctx context.Context, id uuid.UUID) (*models.Request, error) {
	var r models.Request
	err := s.db.GetContext(ctx, &r, `SELECT * FROM foia_requests WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &r, err
}

func (s *Store) GetRequestByTrackingNumber(ctx context.Context, trackingNumber string) (*models.Request, error) {
	var r models.Request
	err := s.db.GetContext(ctx, &r, `SELECT * FROM foia_requests WHERE tracking_number = $1`, trackingNumber)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &r, err
}

// LatestTrackingNumber relies on the zero-padded sequence sorting
// lexically.
func (s *Store) LatestTrackingNumber(ctx context.Context, prefix string) (string, error) {
	var tn string
	err := s.db.GetContext(ctx, &tn, `
		SELECT tracking_number FROM foia_requests
		WHERE tracking_number LIKE $1
		ORDER BY tracking_number DESC
		LIMIT 1
	`, prefix+"%")
	if err == sql.ErrNoRows {
		return "", nil
	}
	return tn, err
}

func (s *Store) UpdateRequest(ctx context.Context, r *models.Request) error {
	r.UpdatedAt = time.Now()
	res, err := s.db.NamedExecContext(ctx, `
		UPDATE foia_requests SET
			status = :status,
			priority = :priority,
			assigned_to = :assigned_to,
			complexity_score = :complexity_score,
			current_step = :current_step,
			public_notes = :public_notes,
			date_acknowledged = :date_acknowledged,
			date_due = :date_due,
			date_completed = :date_completed,
			updated_by = :updated_by,
			updated_at = :updated_at
		WHERE id = :id
	`, r)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("request %s not found", r.ID)
	}
	return nil
}

func likePattern(q string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(q) + "%"
}

func (s *Store) SearchRequests(ctx context.Context, f models.RequestFilter) ([]models.Request, int, error) {
	where := " WHERE 1=1"
	args := make([]interface{}, 0)
	argIdx := 1

	if f.Query != "" {
		where += fmt.Sprintf(` AND (tracking_number ILIKE $%d OR subject ILIKE $%d OR description ILIKE $%d
			OR requester_name ILIKE $%d OR requester_email ILIKE $%d)`, argIdx, argIdx, argIdx, argIdx, argIdx)
		args = append(args, likePattern(f.Query))
		argIdx++
	}
	if f.Status != "" {
		where += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, f.Status)
		argIdx++
	}
	if f.Priority != "" {
		where += fmt.Sprintf(" AND priority = $%d", argIdx)
		args = append(args, f.Priority)
		argIdx++
	}
	if f.RequestType != "" {
		where += fmt.Sprintf(" AND request_type = $%d", argIdx)
		args = append(args, f.RequestType)
		argIdx++
	}
	if f.RequesterEmail != "" {
		where += fmt.Sprintf(" AND requester_email ILIKE $%d", argIdx)
		args = append(args, likePattern(f.RequesterEmail))
		argIdx++
	}
	if f.AssignedTo != "" {
		where += fmt.Sprintf(" AND assigned_to = $%d", argIdx)
		args = append(args, f.AssignedTo)
		argIdx++
	}
	if f.DateSubmittedAfter != nil {
		where += fmt.Sprintf(" AND date_submitted >= $%d", argIdx)
		args = append(args, *f.DateSubmittedAfter)
		argIdx++
	}
	if f.DateSubmittedBefore != nil {
		where += fmt.Sprintf(" AND date_submitted <= $%d", argIdx)
		args = append(args, *f.DateSubmittedBefore)
		argIdx++
	}
	if f.DateDueAfter != nil {
		where += fmt.Sprintf(" AND date_due >= $%d", argIdx)
		args = append(args, *f.DateDueAfter)
		argIdx++
	}
	if f.DateDueBefore != nil {
		where += fmt.Sprintf(" AND date_due <= $%d", argIdx)
		args = append(args, *f.DateDueBefore)
		argIdx++
	}

	var total int
	if err := s.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM foia_requests"+where, args...); err != nil {
		return nil, 0, err
	}

	column, ok := requestSortColumns[f.SortBy]
	if !ok {
		column = "date_submitted"
	}
	order := "DESC"
	if strings.EqualFold(f.SortOrder, "asc") {
		order = "ASC"
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	query := "SELECT * FROM foia_requests" + where +
		fmt.Sprintf(" ORDER BY %s %s LIMIT $%d OFFSET $%d", column, order, argIdx, argIdx+1)
	args = append(args, limit, f.Offset)

	var reqs []models.Request
	if err := s.db.SelectContext(ctx, &reqs, query, args...); err != nil {
		return nil, 0, err
	}
	return reqs, total, nil
}

// FindCompletedMatching implements similarity.RequestRepository.
func (s *Store) FindCompletedMatching(ctx context.Context, terms []string, limit int) ([]models.Request, error) {
	if len(terms) == 0 {
		return nil, nil
	}

	query := `SELECT * FROM foia_requests WHERE status = ANY($1)`
	args := []interface{}{pq.Array(statusStrings(models.CompletedStatuses))}
	argIdx := 2

	clauses := make([]string, 0, len(terms))
	for _, term := range terms {
		clauses = append(clauses, fmt.Sprintf("subject ILIKE $%d OR description ILIKE $%d", argIdx, argIdx))
		args = append(args, likePattern(term))
		argIdx++
	}
	query += " AND (" + strings.Join(clauses, " OR ") + ")"
	query += fmt.Sprintf(" ORDER BY date_completed DESC NULLS LAST LIMIT $%d", argIdx)
	args = append(args, limit)

	var reqs []models.Request
	err := s.db.SelectContext(ctx, &reqs, query, args...)
	return reqs, err
}

func (s *Store) RequestStats(ctx context.Context, now time.Time) (*models.DashboardStats, error) {
	stats := &models.DashboardStats{
		ByStatus:   make(map[string]int),
		ByPriority: make(map[string]int),
	}

	if err := s.db.GetContext(ctx, &stats.TotalRequests, `SELECT COUNT(*) FROM foia_requests`); err != nil {
		return nil, err
	}

	var rows []struct {
		Key   string `db:"key"`
		Count int    `db:"count"`
	}
	if err := s.db.SelectContext(ctx, &rows, `SELECT status AS key, COUNT(*) AS count FROM foia_requests GROUP BY status`); err != nil {
		return nil, err
	}
	for _, r := range rows {
		stats.ByStatus[r.Key] = r.Count
	}

	rows = rows[:0]
	if err := s.db.SelectContext(ctx, &rows, `SELECT priority AS key, COUNT(*) AS count FROM foia_requests GROUP BY priority`); err != nil {
		return nil, err
	}
	for _, r := range rows {
		stats.ByPriority[r.Key] = r.Count
	}

	terminal := pq.Array(statusStrings(models.TerminalStatuses))
	if err := s.db.GetContext(ctx, &stats.Overdue, `
		SELECT COUNT(*) FROM foia_requests
		WHERE date_due < $1 AND NOT (status = ANY($2))
	`, now, terminal); err != nil {
		return nil, err
	}
	if err := s.db.GetContext(ctx, &stats.DueThisWeek, `
		SELECT COUNT(*) FROM foia_requests
		WHERE date_due >= $1 AND date_due <= $2 AND NOT (status = ANY($3))
	`, now, now.Add(dueSoonWindow), terminal); err != nil {
		return nil, err
	}

	return stats, nil
}

// ListOverdueRequests returns open requests past their due date, oldest
// due date first.
func (s *Store) ListOverdueRequests(ctx context.Context, now time.Time, limit int) ([]models.Request, error) {
	var reqs []models.Request
	err := s.db.SelectContext(ctx, &reqs, `
		SELECT * FROM foia_requests
		WHERE date_due < $1 AND NOT (status = ANY($2))
		ORDER BY date_due ASC
		LIMIT $3
	`, now, pq.Array(statusStrings(models.TerminalStatuses)), limit)
	return reqs, err
}
