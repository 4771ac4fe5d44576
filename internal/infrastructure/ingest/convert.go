package ingest

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/alem-hub/wellness-hub/internal/domain/intervention"
	"github.com/alem-hub/wellness-hub/internal/domain/risk"
	"github.com/alem-hub/wellness-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONVERSION
// ══════════════════════════════════════════════════════════════════════════════

// ToStudent validates the record and returns the normalized student along
// with every field that had to be clamped.
func ToStudent(r StudentRecord) (risk.Student, []risk.InputViolation, error) {
	if err := check("ToStudent", r); err != nil {
		return risk.Student{}, nil, err
	}

	s := risk.Student{
		ID:          strings.TrimSpace(r.ID),
		Name:        strings.TrimSpace(r.Name),
		Grade:       r.Grade,
		RiskScore:   risk.Score(*r.RiskScore),
		Trend:       risk.Trend(strings.ToLower(r.Trend)),
		RiskFactors: r.RiskFactors,
		LastUpdated: r.LastUpdated.UTC(),
	}
	if r.PredictedRisk != nil {
		s.PredictedRisk = risk.Score(*r.PredictedRisk)
	}
	if r.Confidence != nil {
		s.Confidence = risk.Percent(*r.Confidence)
	}
	for _, f := range r.Factors {
		trend := risk.Trend(f.Trend)
		if trend == "" {
			trend = risk.TrendStable
		}
		s.Factors = append(s.Factors, risk.RiskFactor{
			Name:     f.Name,
			Category: risk.Category(f.Category),
			Trend:    trend,
			Weight:   risk.Percent(f.Weight),
		})
	}

	normalized, violations := s.Normalize()
	if r.PredictedRisk == nil {
		normalized.PredictedRisk = normalized.RiskScore
	}
	return normalized, violations, nil
}

// ToIndicator validates the record against the population size.
func ToIndicator(r IndicatorRecord, population int) (risk.EarlyWarningIndicator, error) {
	if err := check("ToIndicator", r); err != nil {
		return risk.EarlyWarningIndicator{}, err
	}

	trend := risk.Trend(r.Trend)
	if trend == "" {
		trend = risk.TrendStable
	}
	ind := risk.EarlyWarningIndicator{
		ID:               r.ID,
		Type:             r.Type,
		Description:      r.Description,
		Urgency:          risk.Urgency(r.Urgency),
		DetectedAt:       r.DetectedAt.UTC(),
		Confidence:       risk.Percent(r.Confidence),
		AffectedStudents: r.AffectedStudents,
		Trend:            trend,
	}
	if err := ind.Validate(population); err != nil {
		return risk.EarlyWarningIndicator{}, err
	}
	return ind, nil
}

// ToIntervention validates the record and builds the intervention. now stamps
// the creation time.
func ToIntervention(r InterventionRecord, newID func() string, now time.Time) (intervention.Intervention, error) {
	if err := check("ToIntervention", r); err != nil {
		return intervention.Intervention{}, err
	}

	id := r.ID
	if id == "" {
		id = newID()
	}
	iv, err := intervention.New(intervention.NewParams{
		ID:          id,
		StudentID:   r.StudentID,
		Type:        r.Type,
		Description: r.Description,
		Assignee:    r.Assignee,
		DueDate:     r.DueDate,
		Impact:      r.Impact,
	}, now)
	if err != nil {
		return intervention.Intervention{}, shared.WrapError("ingest", "ToIntervention", shared.ErrInvalidInput, "record "+id, err)
	}
	if r.Status != "" {
		iv.Status = intervention.Status(r.Status)
	}
	return iv, nil
}

// check runs struct validation and flattens the field errors.
func check(op string, record any) error {
	err := validate.Struct(record)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return shared.WrapError("ingest", op, shared.ErrInvalidInput, "validation failed", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return shared.NewDomainError("ingest", op, shared.ErrInvalidInput, strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required", notBlankTag:
		return field + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}
