package query

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/wellness-hub/internal/domain/intervention"
	"github.com/alem-hub/wellness-hub/internal/domain/risk"
	"github.com/alem-hub/wellness-hub/internal/domain/shared"
	"github.com/alem-hub/wellness-hub/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/wellness-hub/pkg/logger"
)

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func seed(t *testing.T) *memory.Store {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	require.NoError(t, store.UpsertStudents(ctx, []risk.Student{
		{ID: "s1", Name: "Alex Morgan", RiskScore: 82, Trend: risk.TrendUp, PredictedRisk: 88},
		{ID: "s2", Name: "Jamie Lee", RiskScore: 65, Trend: risk.TrendStable, PredictedRisk: 60},
		{ID: "s3", Name: "Sam Alvarez", RiskScore: 45, Trend: risk.TrendDown, PredictedRisk: 40},
	}))
	require.NoError(t, store.Create(ctx, intervention.Intervention{
		ID: "iv-1", StudentID: "s2", Type: "Academic Support", DueDate: t0.Add(-time.Hour),
		Status: intervention.StatusPending, CreatedAt: t0.Add(-72 * time.Hour),
	}))
	require.NoError(t, store.Create(ctx, intervention.Intervention{
		ID: "iv-2", StudentID: "s2", Type: "Check-in", DueDate: t0.Add(48 * time.Hour),
		Status: intervention.StatusInProgress, CreatedAt: t0.Add(-24 * time.Hour),
	}))
	require.NoError(t, store.InsertIndicators(ctx, []risk.EarlyWarningIndicator{
		{ID: "ind-1", Type: "attendance", Urgency: risk.UrgencyMedium, DetectedAt: t0.Add(-2 * time.Hour), AffectedStudents: 2},
		{ID: "ind-2", Type: "grades", Urgency: risk.UrgencyHigh, DetectedAt: t0.Add(-3 * time.Hour), AffectedStudents: 1},
		{ID: "ind-3", Type: "social", Urgency: risk.UrgencyHigh, DetectedAt: t0.Add(-time.Hour), AffectedStudents: 3},
		{ID: "ind-4", Type: "bogus", Urgency: risk.UrgencyLow, DetectedAt: t0, AffectedStudents: 40},
	}))
	return store
}

// ══════════════════════════════════════════════════════════════════════════════
// LIST STUDENTS
// ══════════════════════════════════════════════════════════════════════════════

func TestListStudents(t *testing.T) {
	h := NewListStudentsHandler(seed(t), nil)
	ctx := context.Background()

	tests := []struct {
		name    string
		q       ListStudentsQuery
		want    []string
		noMatch bool
	}{
		{name: "all", q: ListStudentsQuery{}, want: []string{"s1", "s2", "s3"}},
		{name: "high band", q: ListStudentsQuery{Band: "high"}, want: []string{"s1"}},
		{name: "query", q: ListStudentsQuery{Query: "AL"}, want: []string{"s1", "s3"}},
		{name: "sorted by name", q: ListStudentsQuery{Sort: "name"}, want: []string{"s1", "s2", "s3"}},
		{name: "sorted by risk", q: ListStudentsQuery{Band: "all", Sort: "risk"}, want: []string{"s1", "s2", "s3"}},
		{name: "no matches", q: ListStudentsQuery{Query: "zzz"}, want: []string{}, noMatch: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := h.Handle(ctx, tt.q)
			require.NoError(t, err)
			got := make([]string, 0, len(res.Students))
			for _, s := range res.Students {
				got = append(got, s.ID)
			}
			assert.Equal(t, tt.want, got)
			assert.Equal(t, 3, res.Total)
			assert.Equal(t, tt.noMatch, res.NoMatches)
		})
	}
}

func TestListStudents_Errors(t *testing.T) {
	store := seed(t)
	h := NewListStudentsHandler(store, nil)
	ctx := context.Background()

	_, err := h.Handle(ctx, ListStudentsQuery{Band: "critical"})
	assert.True(t, shared.IsValidation(err))

	_, err = h.Handle(ctx, ListStudentsQuery{Sort: "age"})
	assert.True(t, shared.IsValidation(err))

	store.FailReads(errors.New("connection refused"))
	_, err = h.Handle(ctx, ListStudentsQuery{})
	assert.True(t, shared.IsDataUnavailable(err))
}

func TestListStudents_ClampIsLogged(t *testing.T) {
	store := memory.NewStore()
	require.NoError(t, store.UpsertStudents(context.Background(), []risk.Student{
		{ID: "s9", Name: "Riley Hale", RiskScore: 140, Trend: risk.TrendUp, PredictedRisk: 90},
	}))

	var buf bytes.Buffer
	log := logger.New(logger.Options{Output: &buf, Level: logger.LevelInfo, Format: "json"})

	res, err := NewListStudentsHandler(store, log).Handle(context.Background(), ListStudentsQuery{})
	require.NoError(t, err)
	require.Len(t, res.Students, 1)
	assert.Equal(t, 100, res.Students[0].RiskScore)

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)
	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "student record out of range", entry["message"])
	assert.Equal(t, "s9", entry["student_id"])
	assert.Equal(t, "risk_score", entry["field"])
	assert.EqualValues(t, 140, entry["received"])
	assert.EqualValues(t, 100, entry["clamped"])
}

// ══════════════════════════════════════════════════════════════════════════════
// PROFILE
// ══════════════════════════════════════════════════════════════════════════════

func TestGetStudentProfile(t *testing.T) {
	store := seed(t)
	h := NewGetStudentProfileHandler(store, store, nil)
	h.now = func() time.Time { return t0 }
	ctx := context.Background()

	p, err := h.Handle(ctx, GetStudentProfileQuery{StudentID: "s2"})
	require.NoError(t, err)
	assert.Equal(t, "Jamie Lee", p.Student.Name)
	assert.Equal(t, -5, p.Student.PredictedDelta)
	require.Len(t, p.Interventions, 2)
	assert.Equal(t, 2, p.OpenInterventions)
	assert.Equal(t, 1, p.OverdueInterventions)
	assert.NotNil(t, p.Factors)

	overdue := p.Interventions[0]
	assert.Equal(t, intervention.StatusPending, overdue.Status, "stored status is untouched")
	assert.Equal(t, intervention.StatusOverdue, overdue.EffectiveStatus)
	assert.ElementsMatch(t, []intervention.Action{intervention.ActionComplete, intervention.ActionReschedule}, overdue.AllowedActions)

	_, err = h.Handle(ctx, GetStudentProfileQuery{StudentID: "s404"})
	assert.True(t, shared.IsNotFound(err))

	_, err = h.Handle(ctx, GetStudentProfileQuery{})
	assert.True(t, shared.IsValidation(err))
}

// ══════════════════════════════════════════════════════════════════════════════
// SUMMARY & INDICATORS
// ══════════════════════════════════════════════════════════════════════════════

func TestGetSummary(t *testing.T) {
	store := seed(t)
	h := NewGetSummaryHandler(store, store, nil)
	h.now = func() time.Time { return t0 }

	sum, err := h.Handle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Population.Total)
	assert.Equal(t, 1, sum.Population.High)
	assert.Equal(t, 1, sum.Interventions[intervention.StatusOverdue])
	assert.Equal(t, 1, sum.Interventions[intervention.StatusInProgress])
	assert.Equal(t, 0, sum.Interventions[intervention.StatusCompleted])
	assert.Equal(t, 2, sum.UrgentIndicators)
	assert.Equal(t, t0, sum.GeneratedAt)
}

func TestGetSummary_SourceDown(t *testing.T) {
	store := seed(t)
	store.FailReads(errors.New("timeout"))

	_, err := NewGetSummaryHandler(store, store, nil).Handle(context.Background())
	assert.True(t, shared.IsDataUnavailable(err))
}

func TestListIndicators(t *testing.T) {
	h := NewListIndicatorsHandler(seed(t), nil)
	ctx := context.Background()

	res, err := h.Handle(ctx, ListIndicatorsQuery{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Rejected)
	ids := make([]string, len(res.Indicators))
	for i, ind := range res.Indicators {
		ids[i] = ind.ID
	}
	assert.Equal(t, []string{"ind-3", "ind-2", "ind-1"}, ids)

	res, err = h.Handle(ctx, ListIndicatorsQuery{Urgency: " HIGH "})
	require.NoError(t, err)
	assert.Len(t, res.Indicators, 2)

	_, err = h.Handle(ctx, ListIndicatorsQuery{Urgency: "urgent"})
	assert.True(t, shared.IsValidation(err))
}

// ══════════════════════════════════════════════════════════════════════════════
// AUDIT TRAIL
// ══════════════════════════════════════════════════════════════════════════════

func TestGetAuditTrail(t *testing.T) {
	store := seed(t)
	ctx := context.Background()
	require.NoError(t, store.AppendAudit(ctx, intervention.AuditEntry{
		InterventionID: "iv-2", Action: intervention.ActionStart,
		From: intervention.StatusPending, To: intervention.StatusInProgress,
		Outcome: intervention.OutcomeSuccess, At: t0.Add(-20 * time.Hour),
	}))

	h := NewGetAuditTrailHandler(store)
	h.now = func() time.Time { return t0 }

	trail, err := h.Handle(ctx, GetAuditTrailQuery{InterventionID: "iv-2"})
	require.NoError(t, err)
	require.Len(t, trail.Entries, 1)
	assert.NotEmpty(t, trail.Entries[0].ID)
	assert.Equal(t, intervention.StatusInProgress, trail.Intervention.EffectiveStatus)

	trail, err = h.Handle(ctx, GetAuditTrailQuery{InterventionID: "iv-1"})
	require.NoError(t, err)
	assert.NotNil(t, trail.Entries)
	assert.Empty(t, trail.Entries)

	_, err = h.Handle(ctx, GetAuditTrailQuery{InterventionID: "nope"})
	assert.True(t, shared.IsNotFound(err))
}
