package risk

import (
	"sort"
)

// Band is the low/medium/high classification of a risk score.
type Band string

const (
	BandLow    Band = "low"
	BandMedium Band = "medium"
	BandHigh   Band = "high"
)

// Band thresholds. BandFor is the only place they are read.
const (
	HighThreshold   Score = 75
	MediumThreshold Score = 50
)

// Rank orders bands low < medium < high.
func (b Band) Rank() int {
	switch b {
	case BandHigh:
		return 2
	case BandMedium:
		return 1
	default:
		return 0
	}
}

// IsValid checks the band value.
func (b Band) IsValid() bool {
	return b == BandLow || b == BandMedium || b == BandHigh
}

// Label is the human label for the band.
func (b Band) Label() string {
	switch b {
	case BandHigh:
		return "High Risk"
	case BandMedium:
		return "Medium Risk"
	default:
		return "Low Risk"
	}
}

// BandFor maps a score onto its band. Callers clamp on ingestion; the
// function stays total for any int.
func BandFor(score Score) Band {
	switch {
	case score >= HighThreshold:
		return BandHigh
	case score >= MediumThreshold:
		return BandMedium
	default:
		return BandLow
	}
}

// Classification is the classifier output for one student.
type Classification struct {
	Band  Band   `json:"band"`
	Label string `json:"label"`
}

// Classify derives the band and label of a student.
func Classify(s Student) Classification {
	b := BandFor(s.RiskScore)
	return Classification{Band: b, Label: b.Label()}
}

// TrendLabel is the human label for a trend.
func TrendLabel(t Trend) string {
	switch t {
	case TrendUp:
		return "Increasing Risk"
	case TrendDown:
		return "Decreasing Risk"
	default:
		return "Stable"
	}
}

// PredictedDelta is predicted minus current score, for display only.
func PredictedDelta(s Student) int {
	return int(s.PredictedRisk) - int(s.RiskScore)
}

// SortByRisk returns a copy ordered by descending score. Ties keep input order.
func SortByRisk(students []Student) []Student {
	out := append([]Student(nil), students...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RiskScore > out[j].RiskScore
	})
	return out
}
