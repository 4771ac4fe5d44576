package population

import (
	"github.com/alem-hub/wellness-hub/internal/domain/risk"
)

// Summary holds the headline numbers of the predictive support dashboard.
type Summary struct {
	Total        int     `json:"total"`
	High         int     `json:"high"`
	Medium       int     `json:"medium"`
	Low          int     `json:"low"`
	Rising       int     `json:"rising"`
	AverageScore float64 `json:"average_score"`
}

// Summarize counts students per band and trend.
func Summarize(students []risk.Student) Summary {
	var sum Summary
	var total int
	for _, s := range students {
		switch s.Band() {
		case risk.BandHigh:
			sum.High++
		case risk.BandMedium:
			sum.Medium++
		default:
			sum.Low++
		}
		if s.Trend == risk.TrendUp {
			sum.Rising++
		}
		total += int(s.RiskScore)
	}
	sum.Total = len(students)
	if sum.Total > 0 {
		sum.AverageScore = float64(total) / float64(sum.Total)
	}
	return sum
}
