package query

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alem-hub/wellness-hub/internal/domain/intervention"
	"github.com/alem-hub/wellness-hub/internal/domain/population"
	"github.com/alem-hub/wellness-hub/internal/domain/risk"
	"github.com/alem-hub/wellness-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET DASHBOARD SUMMARY QUERY
// Headline cards: population by band, intervention workload, urgent indicators.
// ══════════════════════════════════════════════════════════════════════════════

// SummaryDTO is the dashboard headline.
type SummaryDTO struct {
	Population population.Summary `json:"population"`

	// Interventions counts interventions by effective status.
	Interventions map[intervention.Status]int `json:"interventions"`

	// UrgentIndicators counts high-urgency early warning indicators.
	UrgentIndicators int `json:"urgent_indicators"`

	GeneratedAt time.Time `json:"generated_at"`
}

// GetSummaryHandler handles the summary query.
type GetSummaryHandler struct {
	source risk.Source
	repo   intervention.Repository
	log    *logger.Logger
	now    func() time.Time
}

// NewGetSummaryHandler creates a new handler.
func NewGetSummaryHandler(source risk.Source, repo intervention.Repository, log *logger.Logger) *GetSummaryHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &GetSummaryHandler{source: source, repo: repo, log: log.With(logger.Component("get_summary")), now: time.Now}
}

// Handle executes the query. The three reads run concurrently.
func (h *GetSummaryHandler) Handle(ctx context.Context) (*SummaryDTO, error) {
	var (
		students   []risk.Student
		ivs        []intervention.Intervention
		indicators []risk.EarlyWarningIndicator
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		students, err = loadStudents(gctx, h.source, h.log)
		return err
	})
	g.Go(func() error {
		var err error
		ivs, err = h.repo.GetInterventions(gctx, "")
		if err != nil {
			return asUnavailable("GetInterventions", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		indicators, err = h.source.GetEarlyWarningIndicators(gctx)
		if err != nil {
			return asUnavailable("GetEarlyWarningIndicators", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	now := h.now()
	dto := &SummaryDTO{
		Population: population.Summarize(students),
		Interventions: map[intervention.Status]int{
			intervention.StatusPending:    0,
			intervention.StatusInProgress: 0,
			intervention.StatusOverdue:    0,
			intervention.StatusCompleted:  0,
		},
		GeneratedAt: now,
	}
	for _, iv := range ivs {
		dto.Interventions[iv.Effective(now)]++
	}
	for _, ind := range indicators {
		if ind.Urgency == risk.UrgencyHigh {
			dto.UrgentIndicators++
		}
	}

	return dto, nil
}
