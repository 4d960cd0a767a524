// Package routing ranks the departments most likely to hold the records a
// request asks for.
package routing

import (
	"math"
	"regexp"
	"sort"

	"github.com/govworks/foia/internal/patterns"
)

const (
	maxCandidates      = 5
	maxMatchedKeywords = 3
	longKeywordLen     = 5
)

// Candidate is a department suggested for a request.
type Candidate struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	RelevanceScore  float64  `json:"relevanceScore"`
	MatchedKeywords []string `json:"matchedKeywords"`
}

type keyword struct {
	word   string
	regex  *regexp.Regexp
	weight int
}

type department struct {
	id       string
	name     string
	keywords []keyword
}

// Router scores request text against the department keyword table.
type Router struct {
	departments []department
}

// New compiles the whole-word matchers for every department keyword.
func New() *Router {
	table := patterns.Departments()
	r := &Router{departments: make([]department, 0, len(table))}
	for _, d := range table {
		dep := department{id: d.ID, name: d.Name}
		for _, w := range d.Keywords {
			weight := 1
			if len(w) > longKeywordLen {
				weight = 2
			}
			dep.keywords = append(dep.keywords, keyword{
				word:   w,
				regex:  regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(w) + `\b`),
				weight: weight,
			})
		}
		r.departments = append(r.departments, dep)
	}
	return r
}

type scored struct {
	dep     department
	score   int
	matched []string
}

// Route returns at most five candidates ordered by relevance. The top
// candidate always has relevance 1.0 when any department matched.
func (r *Router) Route(text string) []Candidate {
	var hits []scored
	maxScore := 0

	for _, d := range r.departments {
		s := scored{dep: d}
		for _, k := range d.keywords {
			n := len(k.regex.FindAllStringIndex(text, -1))
			if n == 0 {
				continue
			}
			s.score += n * k.weight
			if len(s.matched) < maxMatchedKeywords {
				s.matched = append(s.matched, k.word)
			}
		}
		if s.score == 0 {
			continue
		}
		if s.score > maxScore {
			maxScore = s.score
		}
		hits = append(hits, s)
	}

	if len(hits) == 0 {
		return []Candidate{}
	}

	denom := float64(maxScore)
	if denom < 1 {
		denom = 1
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].score > hits[j].score
	})
	if len(hits) > maxCandidates {
		hits = hits[:maxCandidates]
	}

	out := make([]Candidate, 0, len(hits))
	for _, h := range hits {
		out = append(out, Candidate{
			ID:              h.dep.id,
			Name:            h.dep.name,
			RelevanceScore:  math.Round(float64(h.score)/denom*100) / 100,
			MatchedKeywords: h.matched,
		})
	}
	return out
}
