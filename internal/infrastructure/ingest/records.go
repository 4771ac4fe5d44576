// Package ingest is the boundary where untyped upstream records become domain
// values. Structural problems reject a record; out-of-range numbers are clamped
// by the risk model and reported.
package ingest

import (
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORDS
// ══════════════════════════════════════════════════════════════════════════════

// Batch is one upstream export.
type Batch struct {
	Students      []StudentRecord      `json:"students"`
	Indicators    []IndicatorRecord    `json:"indicators"`
	Interventions []InterventionRecord `json:"interventions"`
}

// StudentRecord is a student as the signal collaborator sends it. Scores are
// plain ints so out-of-range values survive decoding and can be reported.
type StudentRecord struct {
	ID            string         `json:"id" validate:"required,notblank"`
	Name          string         `json:"name" validate:"required,notblank"`
	Grade         string         `json:"grade"`
	RiskScore     *int           `json:"risk_score" validate:"required"`
	Trend         string         `json:"trend"`
	RiskFactors   []string       `json:"risk_factors" validate:"dive,notblank"`
	Factors       []FactorRecord `json:"factors" validate:"dive"`
	LastUpdated   time.Time      `json:"last_updated"`
	PredictedRisk *int           `json:"predicted_risk"`
	Confidence    *int           `json:"confidence"`
}

// FactorRecord is one detailed risk factor.
type FactorRecord struct {
	Name     string `json:"name" validate:"required,notblank"`
	Category string `json:"category" validate:"required,oneof=academic behavioral social emotional attendance"`
	Trend    string `json:"trend" validate:"omitempty,oneof=up down stable"`
	Weight   int    `json:"weight"`
}

// IndicatorRecord is one early warning indicator.
type IndicatorRecord struct {
	ID               string    `json:"id" validate:"required,notblank"`
	Type             string    `json:"type" validate:"required,notblank"`
	Description      string    `json:"description"`
	Urgency          string    `json:"urgency" validate:"required,oneof=high medium low"`
	DetectedAt       time.Time `json:"detected_at" validate:"required"`
	Confidence       int       `json:"confidence" validate:"min=0,max=100"`
	AffectedStudents int       `json:"affected_students" validate:"min=0"`
	Trend            string    `json:"trend" validate:"omitempty,oneof=up down stable"`
}

// InterventionRecord is an intervention carried over from another system.
// An empty ID gets a generated one; an empty status means pending.
type InterventionRecord struct {
	ID          string    `json:"id"`
	StudentID   string    `json:"student_id" validate:"required,notblank"`
	Type        string    `json:"type" validate:"required,notblank"`
	Description string    `json:"description"`
	Assignee    string    `json:"assignee"`
	DueDate     time.Time `json:"due_date" validate:"required"`
	Impact      *int      `json:"impact" validate:"omitempty,min=0,max=100"`
	Status      string    `json:"status" validate:"omitempty,oneof=pending in-progress overdue completed"`
}

// ══════════════════════════════════════════════════════════════════════════════
// VALIDATOR
// ══════════════════════════════════════════════════════════════════════════════

const notBlankTag = "notblank"

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()

	// Report JSON names, the ones upstream knows.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation(notBlankTag, func(fl validator.FieldLevel) bool {
		if s, ok := fl.Field().Interface().(string); ok {
			return strings.TrimSpace(s) != ""
		}
		return false
	})
	return v
}
