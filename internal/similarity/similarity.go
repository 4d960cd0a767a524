// Package similarity finds completed requests that look like a new one.
package similarity

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/govworks/foia/internal/models"
)

const (
	// MaxResults caps how many historical requests are returned.
	MaxResults = 5
	// PlaceholderScore is reported for every match. Ranking is by
	// completion date; no per-match score is computed yet.
	PlaceholderScore = 0.7

	maxKeyTerms   = 10
	minTermLength = 5
)

var nonWord = regexp.MustCompile(`\W+`)

// RequestRepository is the historical-request lookup the finder delegates to.
type RequestRepository interface {
	// FindCompletedMatching returns requests in a completed status whose
	// subject or description contains any of terms, newest completion first.
	FindCompletedMatching(ctx context.Context, terms []string, limit int) ([]models.Request, error)
}

// Match is a historical request related to the analyzed text.
type Match struct {
	ID               string  `json:"id"`
	TrackingNumber   string  `json:"trackingNumber"`
	Title            string  `json:"title"`
	Similarity       float64 `json:"similarity"`
	HasPublicRecords bool    `json:"hasPublicRecords"`
}

// Finder looks up similar requests through a RequestRepository.
type Finder struct {
	repo RequestRepository
}

// NewFinder creates a Finder.
func NewFinder(repo RequestRepository) *Finder {
	return &Finder{repo: repo}
}

// KeyTerms lowercases text, splits it on non-word runs and keeps the first
// ten tokens longer than four characters.
func KeyTerms(text string) []string {
	var terms []string
	for _, tok := range nonWord.Split(strings.ToLower(text), -1) {
		if utf8.RuneCountInString(tok) < minTermLength {
			continue
		}
		terms = append(terms, tok)
		if len(terms) == maxKeyTerms {
			break
		}
	}
	return terms
}

// FindSimilar returns up to five completed requests sharing a key term with
// text. Text without key terms yields an empty result without a lookup.
func (f *Finder) FindSimilar(ctx context.Context, text string) ([]Match, error) {
	terms := KeyTerms(text)
	if len(terms) == 0 || f.repo == nil {
		return []Match{}, nil
	}

	reqs, err := f.repo.FindCompletedMatching(ctx, terms, MaxResults)
	if err != nil {
		return nil, fmt.Errorf("finding similar requests: %w", err)
	}

	matches := make([]Match, 0, len(reqs))
	for _, r := range reqs {
		if len(matches) == MaxResults {
			break
		}
		matches = append(matches, Match{
			ID:               r.ID.String(),
			TrackingNumber:   r.TrackingNumber,
			Title:            r.Subject,
			Similarity:       PlaceholderScore,
			HasPublicRecords: r.Status == models.RequestStatusReleased,
		})
	}
	return matches, nil
}
