// Package risk contains the student risk model and the deterministic classifier.
// Scores arrive pre-computed from the upstream signal collaborator; this package
// only bands, labels and explains them. There are no external dependencies here.
package risk

import (
	"fmt"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Score is a risk score in [0,100].
type Score int

// Score bounds.
const (
	MinScore Score = 0
	MaxScore Score = 100
)

// IsValid reports whether the score is inside [0,100].
func (s Score) IsValid() bool {
	return s >= MinScore && s <= MaxScore
}

// Clamp forces the score into [0,100].
func (s Score) Clamp() Score {
	switch {
	case s < MinScore:
		return MinScore
	case s > MaxScore:
		return MaxScore
	default:
		return s
	}
}

// Percent is a confidence or weight in [0,100].
type Percent int

// Clamp forces the percentage into [0,100].
func (p Percent) Clamp() Percent {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ENUMS
// ══════════════════════════════════════════════════════════════════════════════

// Trend is the direction of recent risk movement, independent of the band.
type Trend string

const (
	TrendUp     Trend = "up"
	TrendDown   Trend = "down"
	TrendStable Trend = "stable"
)

// IsValid checks the trend value.
func (t Trend) IsValid() bool {
	switch t {
	case TrendUp, TrendDown, TrendStable:
		return true
	default:
		return false
	}
}

// Category groups risk factors for explanatory display.
type Category string

const (
	CategoryAcademic   Category = "academic"
	CategoryBehavioral Category = "behavioral"
	CategorySocial     Category = "social"
	CategoryEmotional  Category = "emotional"
	CategoryAttendance Category = "attendance"
)

// IsValid checks the category value.
func (c Category) IsValid() bool {
	switch c {
	case CategoryAcademic, CategoryBehavioral, CategorySocial, CategoryEmotional, CategoryAttendance:
		return true
	default:
		return false
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ENTITIES
// ══════════════════════════════════════════════════════════════════════════════

// RiskFactor is a named contributor to a student's risk.
// Weight is display metadata only and never feeds the score.
type RiskFactor struct {
	Name     string   `json:"name"`
	Category Category `json:"category"`
	Trend    Trend    `json:"trend"`
	Weight   Percent  `json:"weight"`
}

// Student is one monitored individual as seen by the risk engine.
type Student struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	Grade         string       `json:"grade"`
	RiskScore     Score        `json:"risk_score"`
	Trend         Trend        `json:"trend"`
	RiskFactors   []string     `json:"risk_factors"`
	Factors       []RiskFactor `json:"factors,omitempty"`
	LastUpdated   time.Time    `json:"last_updated"`
	PredictedRisk Score        `json:"predicted_risk"`
	Confidence    Percent      `json:"confidence"`
}

// Band derives the risk band from the current score. It is never cached on the struct.
func (s Student) Band() Band {
	return BandFor(s.RiskScore)
}

// InputViolation records one out-of-range field found on a student record.
type InputViolation struct {
	StudentID string
	Field     string
	Received  int
	Clamped   int
}

// Error implements error so violations can be returned as typed results.
func (v InputViolation) Error() string {
	return fmt.Sprintf("student %s: %s=%d out of range, clamped to %d", v.StudentID, v.Field, v.Received, v.Clamped)
}

// Normalize returns a copy with score, predicted score, confidence and factor
// weights clamped to [0,100], plus one violation per clamped field.
// An unknown trend is treated as stable.
func (s Student) Normalize() (Student, []InputViolation) {
	var violations []InputViolation
	out := s

	if c := s.RiskScore.Clamp(); c != s.RiskScore {
		violations = append(violations, InputViolation{s.ID, "risk_score", int(s.RiskScore), int(c)})
		out.RiskScore = c
	}
	if c := s.PredictedRisk.Clamp(); c != s.PredictedRisk {
		violations = append(violations, InputViolation{s.ID, "predicted_risk", int(s.PredictedRisk), int(c)})
		out.PredictedRisk = c
	}
	if c := s.Confidence.Clamp(); c != s.Confidence {
		violations = append(violations, InputViolation{s.ID, "confidence", int(s.Confidence), int(c)})
		out.Confidence = c
	}
	if !s.Trend.IsValid() {
		out.Trend = TrendStable
	}

	if len(s.Factors) > 0 {
		out.Factors = make([]RiskFactor, len(s.Factors))
		for i, f := range s.Factors {
			if c := f.Weight.Clamp(); c != f.Weight {
				violations = append(violations, InputViolation{s.ID, "factor_weight:" + f.Name, int(f.Weight), int(c)})
				f.Weight = c
			}
			out.Factors[i] = f
		}
	}
	if s.RiskFactors != nil {
		out.RiskFactors = append([]string(nil), s.RiskFactors...)
	}

	return out, violations
}

// FindStudent returns the student with the given id.
func FindStudent(students []Student, id string) (Student, bool) {
	for _, s := range students {
		if s.ID == id {
			return s, true
		}
	}
	return Student{}, false
}

// NormalizeAll normalizes every record, keeping order, and collects all violations.
func NormalizeAll(students []Student) ([]Student, []InputViolation) {
	out := make([]Student, len(students))
	var violations []InputViolation
	for i, s := range students {
		var v []InputViolation
		out[i], v = s.Normalize()
		violations = append(violations, v...)
	}
	return out, violations
}
