package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/govworks/foia/internal/models"
)

const (
	JobOverdueSweep   = "overdue_sweep"
	JobRetentionPurge = "retention_purge"
	JobStaleSweep     = "stale_sweep"
)

const overdueBatch = 200

type OverdueLister interface {
	ListOverdueRequests(ctx context.Context, now time.Time, limit int) ([]models.Request, error)
}

type OverdueNotifier interface {
	NotifyOverdue(ctx context.Context, requests []models.Request) error
}

// OverdueSweep notifies staff about open requests past their due date.
func OverdueSweep(store OverdueLister, notifier OverdueNotifier, now func() time.Time) JobHandler {
	return func(ctx context.Context) (string, error) {
		overdue, err := store.ListOverdueRequests(ctx, now(), overdueBatch)
		if err != nil {
			return "", fmt.Errorf("listing overdue requests: %w", err)
		}
		if len(overdue) == 0 {
			return "no overdue requests", nil
		}
		if notifier != nil {
			if err := notifier.NotifyOverdue(ctx, overdue); err != nil {
				return "", fmt.Errorf("notifying: %w", err)
			}
		}
		return fmt.Sprintf("%d overdue requests", len(overdue)), nil
	}
}

type AnalysisPurger interface {
	PurgeRequestAnalyses(ctx context.Context, cutoff time.Time) (int64, error)
}

type TokenPurger interface {
	PurgeExpiredTokens(ctx context.Context, cutoff time.Time) (int64, error)
}

// RetentionPurge deletes request analyses older than retention and
// refresh tokens that expired or were revoked before now.
func RetentionPurge(analyses AnalysisPurger, tokens TokenPurger, retention time.Duration, now func() time.Time) JobHandler {
	return func(ctx context.Context) (string, error) {
		t := now()
		var errs []error

		purged, err := analyses.PurgeRequestAnalyses(ctx, t.Add(-retention))
		if err != nil {
			errs = append(errs, fmt.Errorf("purging analyses: %w", err))
		}

		var tokensPurged int64
		if tokens != nil {
			tokensPurged, err = tokens.PurgeExpiredTokens(ctx, t)
			if err != nil {
				errs = append(errs, fmt.Errorf("purging tokens: %w", err))
			}
		}

		return fmt.Sprintf("purged %d analyses, %d tokens", purged, tokensPurged), errors.Join(errs...)
	}
}

type StaleAnalysisStore interface {
	ListStaleDocumentAnalyses(ctx context.Context, cutoff time.Time, limit int) ([]models.DocumentAnalysis, error)
	UpdateDocumentAnalysis(ctx context.Context, a *models.DocumentAnalysis) error
}

type StaleJobCleaner interface {
	CleanupStaleJobs(ctx context.Context, timeout time.Duration) (int, error)
}

const staleBatch = 100

// StaleSweep returns stuck queue jobs to the queue and marks document
// analyses that never left pending or processing as failed, so the next
// analyze call for the document starts over.
func StaleSweep(store StaleAnalysisStore, jobs StaleJobCleaner, staleAfter time.Duration, now func() time.Time) JobHandler {
	return func(ctx context.Context) (string, error) {
		requeued := 0
		if jobs != nil {
			n, err := jobs.CleanupStaleJobs(ctx, staleAfter)
			if err != nil {
				return "", fmt.Errorf("cleaning stale jobs: %w", err)
			}
			requeued = n
		}

		stale, err := store.ListStaleDocumentAnalyses(ctx, now().Add(-staleAfter), staleBatch)
		if err != nil {
			return "", fmt.Errorf("listing stale analyses: %w", err)
		}

		failed := 0
		for i := range stale {
			a := &stale[i]
			a.ProcessingStatus = models.ProcessingFailed
			if a.Metadata == nil {
				a.Metadata = models.JSONB{}
			}
			a.Metadata["error"] = fmt.Sprintf("processing did not finish within %s", staleAfter)
			if err := store.UpdateDocumentAnalysis(ctx, a); err != nil {
				return "", fmt.Errorf("failing analysis %s: %w", a.ID, err)
			}
			failed++
		}

		return fmt.Sprintf("requeued %d jobs, failed %d stale analyses", requeued, failed), nil
	}
}
