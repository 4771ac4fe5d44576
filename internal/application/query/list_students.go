package query

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/alem-hub/wellness-hub/internal/domain/population"
	"github.com/alem-hub/wellness-hub/internal/domain/risk"
	"github.com/alem-hub/wellness-hub/internal/domain/shared"
	"github.com/alem-hub/wellness-hub/internal/infrastructure/metrics"
	"github.com/alem-hub/wellness-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// LIST STUDENTS QUERY
// Population search: name substring plus band filter, optionally sorted.
// ══════════════════════════════════════════════════════════════════════════════

// Sort orders for the population list.
const (
	SortSource = "source" // keep data source order
	SortRisk   = "risk"   // highest score first
	SortName   = "name"
)

// ListStudentsQuery contains the list parameters.
type ListStudentsQuery struct {
	Query string
	Band  string
	Sort  string

	band population.BandFilter
}

// Validate parses the band filter and the sort order.
func (q *ListStudentsQuery) Validate() error {
	band, err := population.ParseBand(q.Band)
	if err != nil {
		return err
	}
	q.band = band

	switch strings.ToLower(q.Sort) {
	case "", SortSource:
		q.Sort = SortSource
	case SortRisk, SortName:
		q.Sort = strings.ToLower(q.Sort)
	default:
		return shared.NewDomainError("query", "ListStudents", shared.ErrInvalidInput, "unknown sort order "+q.Sort)
	}
	return nil
}

// StudentListDTO is the population list result.
type StudentListDTO struct {
	Query    string                `json:"query"`
	Band     population.BandFilter `json:"band"`
	Sort     string                `json:"sort"`
	Students []StudentDTO          `json:"students"`
	Matched  int                   `json:"matched"`
	Total    int                   `json:"total"`

	// NoMatches distinguishes an empty result from a failed load.
	NoMatches bool `json:"no_matches"`
}

// ListStudentsHandler handles the population list query.
type ListStudentsHandler struct {
	source risk.Source
	log    *logger.Logger
}

// NewListStudentsHandler creates a new handler.
func NewListStudentsHandler(source risk.Source, log *logger.Logger) *ListStudentsHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &ListStudentsHandler{source: source, log: log.With(logger.Component("list_students"))}
}

// Handle executes the query.
func (h *ListStudentsHandler) Handle(ctx context.Context, q ListStudentsQuery) (*StudentListDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	students, err := loadStudents(ctx, h.source, h.log)
	if err != nil {
		return nil, err
	}

	result := population.Search(students, q.Query, q.band)
	matched := result.Students
	switch q.Sort {
	case SortRisk:
		matched = risk.SortByRisk(matched)
	case SortName:
		sort.SliceStable(matched, func(i, j int) bool {
			return strings.ToLower(matched[i].Name) < strings.ToLower(matched[j].Name)
		})
	}

	return &StudentListDTO{
		Query:     result.Query,
		Band:      result.Band,
		Sort:      q.Sort,
		Students:  ToStudentDTOs(matched),
		Matched:   len(matched),
		Total:     result.Total,
		NoMatches: result.Empty(),
	}, nil
}

// loadStudents reads and normalizes the population. Every clamp is reported.
func loadStudents(ctx context.Context, source risk.Source, log *logger.Logger) ([]risk.Student, error) {
	students, err := source.GetStudents(ctx)
	if err != nil {
		return nil, asUnavailable("GetStudents", err)
	}
	normalized, violations := risk.NormalizeAll(students)
	for _, v := range violations {
		ReportClamp(log, v)
	}
	return normalized, nil
}

// ReportClamp logs and counts one out-of-range field that was clamped.
func ReportClamp(log *logger.Logger, v risk.InputViolation) {
	field, _, _ := strings.Cut(v.Field, ":")
	metrics.RecordClamp(field)
	log.Warn("student record out of range",
		logger.StudentID(v.StudentID),
		logger.String("field", v.Field),
		logger.Int("received", v.Received),
		logger.Int("clamped", v.Clamped),
	)
}

func asUnavailable(op string, err error) error {
	if shared.IsDataUnavailable(err) || errors.Is(err, context.Canceled) {
		return err
	}
	return shared.DataUnavailable(op, err)
}
