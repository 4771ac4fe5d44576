// Package query contains read operations (CQRS - Queries).
// Everything here is derived from source collections on demand; nothing is stored.
package query

import (
	"time"

	"github.com/alem-hub/wellness-hub/internal/domain/intervention"
	"github.com/alem-hub/wellness-hub/internal/domain/risk"
)

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT DTO
// One row of the population list with its derived classification.
// ══════════════════════════════════════════════════════════════════════════════

// StudentDTO is a student record with derived band, labels and delta.
type StudentDTO struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Grade       string    `json:"grade"`
	RiskScore   int       `json:"risk_score"`
	Band        risk.Band `json:"band"`
	BandLabel   string    `json:"band_label"`
	Trend       string    `json:"trend"`
	TrendLabel  string    `json:"trend_label"`
	RiskFactors []string  `json:"risk_factors"`
	LastUpdated time.Time `json:"last_updated"`

	// ─────────────────────────────────────────────────────────────────────────
	// Prediction
	// ─────────────────────────────────────────────────────────────────────────

	PredictedRisk  int `json:"predicted_risk"`
	PredictedDelta int `json:"predicted_delta"`
	Confidence     int `json:"confidence"`
}

// ToStudentDTO derives the list row for a student.
func ToStudentDTO(s risk.Student) StudentDTO {
	c := risk.Classify(s)
	factors := s.RiskFactors
	if factors == nil {
		factors = []string{}
	}
	return StudentDTO{
		ID:             s.ID,
		Name:           s.Name,
		Grade:          s.Grade,
		RiskScore:      int(s.RiskScore),
		Band:           c.Band,
		BandLabel:      c.Label,
		Trend:          string(s.Trend),
		TrendLabel:     risk.TrendLabel(s.Trend),
		RiskFactors:    factors,
		LastUpdated:    s.LastUpdated,
		PredictedRisk:  int(s.PredictedRisk),
		PredictedDelta: risk.PredictedDelta(s),
		Confidence:     int(s.Confidence),
	}
}

// ToStudentDTOs maps a slice, keeping order. Never returns nil.
func ToStudentDTOs(students []risk.Student) []StudentDTO {
	out := make([]StudentDTO, len(students))
	for i, s := range students {
		out[i] = ToStudentDTO(s)
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// INTERVENTION DTO
// ══════════════════════════════════════════════════════════════════════════════

// InterventionDTO shows the stored status next to the status as of now, plus
// the actions the lifecycle would accept.
type InterventionDTO struct {
	intervention.Intervention
	EffectiveStatus intervention.Status   `json:"effective_status"`
	AllowedActions  []intervention.Action `json:"allowed_actions"`
}

var userActions = []intervention.Action{
	intervention.ActionStart,
	intervention.ActionComplete,
	intervention.ActionReschedule,
}

// ToInterventionDTO evaluates an intervention at now.
func ToInterventionDTO(iv intervention.Intervention, now time.Time) InterventionDTO {
	eff := iv.Effective(now)
	allowed := make([]intervention.Action, 0, len(userActions))
	for _, a := range userActions {
		if intervention.CanApply(eff, a) {
			allowed = append(allowed, a)
		}
	}
	return InterventionDTO{
		Intervention:    iv,
		EffectiveStatus: eff,
		AllowedActions:  allowed,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// PROFILE DTO
// The Detail view of a single student.
// ══════════════════════════════════════════════════════════════════════════════

// ProfileDTO is everything the detail view renders for one student.
type ProfileDTO struct {
	Student       StudentDTO        `json:"student"`
	Factors       []risk.RiskFactor `json:"factors"`
	Interventions []InterventionDTO `json:"interventions"`

	// OpenInterventions counts interventions that are not completed.
	OpenInterventions int `json:"open_interventions"`

	// OverdueInterventions counts interventions overdue as of now.
	OverdueInterventions int `json:"overdue_interventions"`
}

// BuildProfile assembles the profile of s from its interventions.
func BuildProfile(s risk.Student, ivs []intervention.Intervention, now time.Time) ProfileDTO {
	p := ProfileDTO{
		Student:       ToStudentDTO(s),
		Factors:       s.Factors,
		Interventions: make([]InterventionDTO, 0, len(ivs)),
	}
	if p.Factors == nil {
		p.Factors = []risk.RiskFactor{}
	}

	for _, iv := range ivs {
		if iv.StudentID != s.ID {
			continue
		}
		dto := ToInterventionDTO(iv, now)
		if !dto.EffectiveStatus.IsTerminal() {
			p.OpenInterventions++
		}
		if dto.EffectiveStatus == intervention.StatusOverdue {
			p.OverdueInterventions++
		}
		p.Interventions = append(p.Interventions, dto)
	}

	return p
}
