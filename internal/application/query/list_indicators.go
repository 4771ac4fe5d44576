package query

import (
	"context"
	"sort"
	"strings"

	"github.com/alem-hub/wellness-hub/internal/domain/risk"
	"github.com/alem-hub/wellness-hub/internal/domain/shared"
	"github.com/alem-hub/wellness-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// LIST EARLY WARNING INDICATORS QUERY
// ══════════════════════════════════════════════════════════════════════════════

// ListIndicatorsQuery optionally narrows indicators to one urgency.
type ListIndicatorsQuery struct {
	Urgency string
}

// Validate checks the urgency filter.
func (q *ListIndicatorsQuery) Validate() error {
	q.Urgency = strings.ToLower(strings.TrimSpace(q.Urgency))
	if q.Urgency != "" && !risk.Urgency(q.Urgency).IsValid() {
		return shared.NewDomainError("query", "ListIndicators", shared.ErrInvalidInput, "unknown urgency "+q.Urgency)
	}
	return nil
}

// IndicatorListDTO is the indicator panel.
type IndicatorListDTO struct {
	Indicators []risk.EarlyWarningIndicator `json:"indicators"`

	// Rejected counts indicators dropped because they failed validation
	// against the current population.
	Rejected int `json:"rejected"`
}

// ListIndicatorsHandler handles the indicator query.
type ListIndicatorsHandler struct {
	source risk.Source
	log    *logger.Logger
}

// NewListIndicatorsHandler creates a new handler.
func NewListIndicatorsHandler(source risk.Source, log *logger.Logger) *ListIndicatorsHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &ListIndicatorsHandler{source: source, log: log.With(logger.Component("list_indicators"))}
}

// Handle returns valid indicators, most urgent first, newest first within an urgency.
func (h *ListIndicatorsHandler) Handle(ctx context.Context, q ListIndicatorsQuery) (*IndicatorListDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	students, err := loadStudents(ctx, h.source, h.log)
	if err != nil {
		return nil, err
	}
	indicators, err := h.source.GetEarlyWarningIndicators(ctx)
	if err != nil {
		return nil, asUnavailable("GetEarlyWarningIndicators", err)
	}

	dto := &IndicatorListDTO{Indicators: make([]risk.EarlyWarningIndicator, 0, len(indicators))}
	for _, ind := range indicators {
		if err := ind.Validate(len(students)); err != nil {
			h.log.Warn("indicator rejected", logger.String("indicator_id", ind.ID), logger.Err(err))
			dto.Rejected++
			continue
		}
		if q.Urgency != "" && string(ind.Urgency) != q.Urgency {
			continue
		}
		dto.Indicators = append(dto.Indicators, ind)
	}

	sort.SliceStable(dto.Indicators, func(i, j int) bool {
		a, b := dto.Indicators[i], dto.Indicators[j]
		if urgencyRank(a.Urgency) != urgencyRank(b.Urgency) {
			return urgencyRank(a.Urgency) > urgencyRank(b.Urgency)
		}
		return a.DetectedAt.After(b.DetectedAt)
	})

	return dto, nil
}

func urgencyRank(u risk.Urgency) int {
	switch u {
	case risk.UrgencyHigh:
		return 2
	case risk.UrgencyMedium:
		return 1
	default:
		return 0
	}
}
