// Package population implements search and band filtering over a student population.
// Everything here is pure: inputs are never mutated and results keep source order.
package population

import (
	"fmt"
	"strings"

	"github.com/alem-hub/wellness-hub/internal/domain/risk"
	"github.com/alem-hub/wellness-hub/internal/domain/shared"
)

// BandFilter selects students by risk band. BandAll is the identity filter.
type BandFilter string

const (
	BandAll    BandFilter = "all"
	BandHigh   BandFilter = BandFilter(risk.BandHigh)
	BandMedium BandFilter = BandFilter(risk.BandMedium)
	BandLow    BandFilter = BandFilter(risk.BandLow)
)

// ParseBand parses a filter value. An empty value means BandAll.
func ParseBand(s string) (BandFilter, error) {
	switch f := BandFilter(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return BandAll, nil
	case BandAll, BandHigh, BandMedium, BandLow:
		return f, nil
	default:
		return "", shared.NewDomainError("population", "ParseBand", shared.ErrInvalidInput,
			fmt.Sprintf("unknown band filter %q", s))
	}
}

// Matches reports whether a score passes the filter. Non-all filters go
// through risk.BandFor so filtering and classification share one threshold set.
func (f BandFilter) Matches(score risk.Score) bool {
	if f == BandAll {
		return true
	}
	return risk.BandFor(score) == risk.Band(f)
}

// Filter returns the students whose name contains query (case-insensitive)
// and whose band passes the filter, in input order.
func Filter(students []risk.Student, query string, band BandFilter) []risk.Student {
	needle := strings.ToLower(query)
	out := make([]risk.Student, 0, len(students))
	for _, s := range students {
		if !band.Matches(s.RiskScore) {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(s.Name), needle) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Result is a filtered view together with the inputs that produced it.
type Result struct {
	Query    string         `json:"query"`
	Band     BandFilter     `json:"band"`
	Students []risk.Student `json:"students"`
	Total    int            `json:"total"`
}

// Empty is true when nothing matched. It is a valid outcome, not an error.
func (r Result) Empty() bool {
	return len(r.Students) == 0
}

// Search runs Filter and records the inputs alongside the matches.
func Search(students []risk.Student, query string, band BandFilter) Result {
	matched := Filter(students, query, band)
	return Result{
		Query:    query,
		Band:     band,
		Students: matched,
		Total:    len(students),
	}
}
