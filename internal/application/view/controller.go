package view

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/alem-hub/wellness-hub/internal/application/command"
	"github.com/alem-hub/wellness-hub/internal/application/query"
	"github.com/alem-hub/wellness-hub/internal/domain/intervention"
	"github.com/alem-hub/wellness-hub/internal/domain/population"
	"github.com/alem-hub/wellness-hub/internal/domain/risk"
	"github.com/alem-hub/wellness-hub/internal/domain/shared"
	"github.com/alem-hub/wellness-hub/internal/infrastructure/metrics"
	"github.com/alem-hub/wellness-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RENDER STATE
// ══════════════════════════════════════════════════════════════════════════════

// Mode is the active view.
type Mode string

const (
	ModeList   Mode = "list"
	ModeDetail Mode = "detail"
)

// Status of a derived section.
type Status string

const (
	StatusLoading     Status = "loading"
	StatusReady       Status = "ready"
	StatusNoMatches   Status = "no-matches"
	StatusUnavailable Status = "unavailable"
)

// Banner is a dismissible page-level message.
type Banner struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Notice reports the outcome of the last lifecycle action.
type Notice struct {
	Level          string `json:"level"` // success, error
	Message        string `json:"message"`
	InterventionID string `json:"intervention_id,omitempty"`
}

// ListState is the population list as rendered.
type ListState struct {
	Status   Status              `json:"status"`
	Students []query.StudentDTO  `json:"students"`
	Matched  int                 `json:"matched"`
	Total    int                 `json:"total"`
	Summary  *population.Summary `json:"summary,omitempty"`
}

// ProfileState is the detail section as rendered.
type ProfileState struct {
	Status  Status            `json:"status"`
	Profile *query.ProfileDTO `json:"profile,omitempty"`
}

// State is everything a client needs to render one frame. The echo fields
// always hold the latest input, even while results are still loading.
type State struct {
	Mode       Mode                  `json:"mode"`
	Query      string                `json:"query"`
	Band       population.BandFilter `json:"band"`
	SelectedID string                `json:"selected_id,omitempty"`

	List    ListState     `json:"list"`
	Profile *ProfileState `json:"profile,omitempty"`

	Banner *Banner `json:"banner,omitempty"`
	Notice *Notice `json:"notice,omitempty"`

	SnapshotVersion uint64 `json:"snapshot_version"`
}

// ══════════════════════════════════════════════════════════════════════════════
// COLLABORATORS
// ══════════════════════════════════════════════════════════════════════════════

// SnapshotLoader fetches a fresh snapshot of the source collections.
type SnapshotLoader interface {
	Load(ctx context.Context) (*Snapshot, error)
}

// Transitioner runs lifecycle transitions.
type Transitioner interface {
	Handle(ctx context.Context, cmd command.TransitionInterventionCommand) (*command.TransitionResult, error)
}

// Config configures a Controller.
type Config struct {
	// SessionID labels logs and events.
	SessionID string

	// Actor is the signed-in staff member. Every transition is attributed to it.
	Actor intervention.Actor

	// Executor runs deferred recomputes (default GoExecutor).
	Executor Executor

	// MemoSize bounds each result memo (default 32).
	MemoSize int

	Clock func() time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// CONTROLLER
// ══════════════════════════════════════════════════════════════════════════════

type listKey struct {
	version uint64
	query   string
	band    population.BandFilter
}

type listOutcome struct {
	key    listKey
	result population.Result
}

type profileKey struct {
	version  uint64
	selected string
}

// profileOutcome keeps raw records; statuses depend on the clock and are
// evaluated when the frame is rendered.
type profileOutcome struct {
	key           profileKey
	selected      string
	fallback      bool
	found         bool
	student       risk.Student
	interventions []intervention.Intervention
}

// Controller owns the state of one dashboard session. All methods are safe
// for concurrent use.
type Controller struct {
	cfg         Config
	loader      SnapshotLoader
	transitions Transitioner
	publisher   shared.EventPublisher
	log         *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc

	listSlot    *Deferred[listOutcome]
	profileSlot *Deferred[profileOutcome]
	listMemo    *memo[listKey, population.Result]
	profileMemo *memo[profileKey, profileOutcome]

	mu       sync.Mutex
	snap     *Snapshot
	loadGen  uint64
	loadErr  error
	summary  *population.Summary
	query    string
	band     population.BandFilter
	mode     Mode
	selected string
	list     *listOutcome
	profile  *profileOutcome
	banner   *Banner
	notice   *Notice

	// selecting is set by Select until the requested profile is accepted.
	selecting bool
}

// NewController creates a controller in List mode with no snapshot loaded.
// publisher may be nil.
func NewController(cfg Config, loader SnapshotLoader, transitions Transitioner, publisher shared.EventPublisher, log *logger.Logger) *Controller {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if log == nil {
		log = logger.Nop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		cfg:         cfg,
		loader:      loader,
		transitions: transitions,
		publisher:   publisher,
		log:         log.With(logger.Component("view"), logger.SessionID(cfg.SessionID)),
		ctx:         ctx,
		cancel:      cancel,
		listMemo:    newMemo[listKey, population.Result](cfg.MemoSize),
		profileMemo: newMemo[profileKey, profileOutcome](cfg.MemoSize),
		band:        population.BandAll,
		mode:        ModeList,
	}
	c.listSlot = NewDeferred("list", cfg.Executor, c.applyList)
	c.profileSlot = NewDeferred("profile", cfg.Executor, c.applyProfile)
	return c
}

// Close cancels pending recomputes. The controller must not be used afterwards.
func (c *Controller) Close() {
	c.cancel()
}

// ──────────────────────────────────────────────────────────────────────────────
// Data
// ──────────────────────────────────────────────────────────────────────────────

// Load fetches a snapshot. On failure the previous snapshot, if any, stays
// on screen under a DataUnavailable banner.
func (c *Controller) Load(ctx context.Context) error {
	c.mu.Lock()
	c.loadGen++
	gen := c.loadGen
	c.mu.Unlock()

	snap, err := c.loader.Load(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.loadGen {
		return nil
	}

	if err != nil {
		c.loadErr = err
		c.banner = &Banner{Kind: "data-unavailable", Message: "Student data could not be loaded. Retry to try again."}
		c.log.Warn("snapshot load failed", logger.Err(err))
		c.publish(shared.DataUnavailableEvent{
			BaseEvent: shared.NewBaseEvent(shared.EventDataUnavailable, c.cfg.SessionID, c.cfg.Clock()),
			Error:     err.Error(),
		})
		if shared.IsDataUnavailable(err) {
			return err
		}
		return shared.DataUnavailable("Load", err)
	}

	c.loadErr = nil
	c.banner = nil
	c.applySnapshotLocked(snap)
	return nil
}

// Retry dismisses the banner and loads again.
func (c *Controller) Retry(ctx context.Context) error {
	c.DismissBanner()
	return c.Load(ctx)
}

// DismissBanner hides the banner. The list keeps its unavailable status
// until a load succeeds.
func (c *Controller) DismissBanner() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.banner = nil
}

// ApplySnapshot replaces the current snapshot and recomputes derived results.
// A load still in flight is dropped when it completes.
func (c *Controller) ApplySnapshot(snap *Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loadGen++
	c.applySnapshotLocked(snap)
}

func (c *Controller) applySnapshotLocked(snap *Snapshot) {
	if snap == nil {
		return
	}
	c.snap = snap
	sum := population.Summarize(snap.Students)
	c.summary = &sum
	c.scheduleListLocked()
	if c.mode == ModeDetail {
		c.scheduleProfileLocked()
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Inputs
// ──────────────────────────────────────────────────────────────────────────────

// SetQuery echoes the search text immediately and schedules the list recompute.
func (c *Controller) SetQuery(q string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.query = q
	c.scheduleListLocked()
}

// SetBand echoes the band filter and schedules the list recompute.
func (c *Controller) SetBand(band string) error {
	f, err := population.ParseBand(band)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.band = f
	c.scheduleListLocked()
	return nil
}

// Select switches to Detail mode for a student.
func (c *Controller) Select(studentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = ModeDetail
	c.selected = studentID
	c.selecting = true
	c.profile = nil
	c.scheduleProfileLocked()
}

// Back returns to List mode and clears the selection.
func (c *Controller) Back() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = ModeList
	c.selected = ""
	c.selecting = false
	c.profile = nil
	c.profileSlot.Supersede()
}

// Transition applies a lifecycle action as the session actor. The new state
// is swapped in as a fresh snapshot; on failure the current one stays.
func (c *Controller) Transition(ctx context.Context, interventionID string, action intervention.Action, dueDate time.Time) (*command.TransitionResult, error) {
	res, err := c.transitions.Handle(ctx, command.TransitionInterventionCommand{
		InterventionID: interventionID,
		Action:         action,
		Actor:          c.cfg.Actor,
		DueDate:        dueDate,
		CorrelationID:  c.cfg.SessionID,
	})

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		c.notice = &Notice{Level: "error", Message: transitionMessage(err), InterventionID: interventionID}
		return res, err
	}

	c.notice = &Notice{
		Level:          "success",
		Message:        "Intervention is now " + string(res.To),
		InterventionID: interventionID,
	}
	if c.snap != nil {
		// Loads that started before the write would bring the old status back.
		c.loadGen++
		c.applySnapshotLocked(c.snap.WithIntervention(res.Intervention))
	}
	return res, nil
}

func transitionMessage(err error) string {
	var te *intervention.TransitionError
	switch {
	case errors.As(err, &te):
		return "Cannot " + string(te.Action) + " an intervention that is " + string(te.Current)
	case shared.IsInvalidTransition(err):
		return "The intervention was changed by someone else. Reload and try again."
	case errors.Is(err, shared.ErrWriteFailed):
		return "The change could not be saved. Nothing was modified."
	case shared.IsNotFound(err):
		return "The intervention no longer exists."
	case shared.IsValidation(err):
		return err.Error()
	default:
		return "The change could not be applied."
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Recompute
// ──────────────────────────────────────────────────────────────────────────────

func (c *Controller) scheduleListLocked() {
	if c.snap == nil {
		return
	}

	key := listKey{version: c.snap.Version, query: c.query, band: c.band}
	if res, ok := c.listMemo.get(key); ok {
		c.listSlot.Supersede()
		c.list = &listOutcome{key: key, result: res}
		metrics.RecordRecompute("list", "memo_hit")
		return
	}

	snap := c.snap
	c.listSlot.Schedule(c.ctx, func(ctx context.Context) (listOutcome, error) {
		if err := ctx.Err(); err != nil {
			return listOutcome{}, err
		}
		return listOutcome{key: key, result: population.Search(snap.Students, key.query, key.band)}, nil
	})
}

func (c *Controller) applyList(r Result[listOutcome]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.listSlot.IsLatest(r.Generation) || r.Err != nil {
		metrics.RecordRecompute("list", "discarded")
		return
	}
	out := r.Value
	c.listMemo.put(out.key, out.result)
	c.list = &out
	metrics.RecordRecompute("list", "applied")
	metrics.ObserveRecompute("list", time.Since(r.Scheduled))
}

func (c *Controller) scheduleProfileLocked() {
	if c.snap == nil || c.selected == "" {
		return
	}

	key := profileKey{version: c.snap.Version, selected: c.selected}
	if out, ok := c.profileMemo.get(key); ok {
		c.profileSlot.Supersede()
		c.acceptProfileLocked(out)
		metrics.RecordRecompute("profile", "memo_hit")
		return
	}

	snap, q, band := c.snap, c.query, c.band
	c.profileSlot.Schedule(c.ctx, func(ctx context.Context) (profileOutcome, error) {
		if err := ctx.Err(); err != nil {
			return profileOutcome{}, err
		}
		return computeProfile(snap, key, q, band), nil
	})
}

// computeProfile derives the detail view. A selection that is gone from the
// snapshot falls back to the first student of the filtered list, or to an
// empty outcome when that list is empty.
func computeProfile(snap *Snapshot, key profileKey, q string, band population.BandFilter) profileOutcome {
	out := profileOutcome{key: key, selected: key.selected}
	s, ok := snap.Student(key.selected)
	if !ok {
		filtered := population.Filter(snap.Students, q, band)
		if len(filtered) == 0 {
			out.selected = ""
			out.fallback = true
			return out
		}
		s = filtered[0]
		out.selected = s.ID
		out.fallback = true
	}
	out.found = true
	out.student = s
	out.interventions = snap.InterventionsOf(s.ID)
	return out
}

func (c *Controller) applyProfile(r Result[profileOutcome]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.profileSlot.IsLatest(r.Generation) || r.Err != nil || c.mode != ModeDetail {
		metrics.RecordRecompute("profile", "discarded")
		return
	}
	c.profileMemo.put(r.Value.key, r.Value)
	c.acceptProfileLocked(r.Value)
	metrics.RecordRecompute("profile", "applied")
	metrics.ObserveRecompute("profile", time.Since(r.Scheduled))
}

func (c *Controller) acceptProfileLocked(out profileOutcome) {
	requested := c.selected
	selecting := c.selecting
	c.selecting = false

	if out.fallback {
		stale := shared.NewDomainError("view", "Select", shared.ErrSelectionStale, "student "+requested+" is no longer available")
		c.log.Info("selection fell back", logger.Err(stale), logger.StudentID(out.selected))
	}

	if !out.found {
		c.mode = ModeList
		c.selected = ""
		c.profile = nil
		c.notice = &Notice{Level: "error", Message: "The selected student is no longer available and no other student matches the current filter."}
		c.publishSelection(requested, "", true)
		return
	}

	c.selected = out.selected
	c.profile = &out
	if selecting || out.fallback || requested != out.selected {
		c.publishSelection(requested, out.selected, out.fallback)
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Output
// ──────────────────────────────────────────────────────────────────────────────

// View returns the current render state. Results derived from inputs older
// than the current echo are never returned; the section reports loading instead.
func (c *Controller) View() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := State{
		Mode:       c.mode,
		Query:      c.query,
		Band:       c.band,
		SelectedID: c.selected,
		List:       ListState{Status: StatusLoading, Students: []query.StudentDTO{}},
	}
	if c.banner != nil {
		b := *c.banner
		st.Banner = &b
	}
	if c.notice != nil {
		n := *c.notice
		st.Notice = &n
	}

	switch {
	case c.snap == nil && c.loadErr != nil:
		st.List.Status = StatusUnavailable
	case c.snap == nil:
	default:
		st.SnapshotVersion = c.snap.Version
		st.List.Total = len(c.snap.Students)
		st.List.Summary = c.summary
		current := listKey{version: c.snap.Version, query: c.query, band: c.band}
		if c.list != nil && c.list.key == current {
			st.List.Students = query.ToStudentDTOs(c.list.result.Students)
			st.List.Matched = len(c.list.result.Students)
			st.List.Status = StatusReady
			if c.list.result.Empty() {
				st.List.Status = StatusNoMatches
			}
		}
	}

	if c.mode == ModeDetail {
		ps := &ProfileState{Status: StatusLoading}
		switch {
		case c.snap == nil && c.loadErr != nil:
			ps.Status = StatusUnavailable
		case c.profile != nil && c.snap != nil && c.profile.key.version == c.snap.Version && c.profile.selected == c.selected:
			p := query.BuildProfile(c.profile.student, c.profile.interventions, c.cfg.Clock())
			ps.Status = StatusReady
			ps.Profile = &p
		}
		st.Profile = ps
	}

	return st
}

// Settle waits until no recompute is pending. Used by tests and by clients
// that want a settled frame instead of an intermediate one.
func (c *Controller) Settle(ctx context.Context) error {
	if err := c.listSlot.Wait(ctx); err != nil {
		return err
	}
	return c.profileSlot.Wait(ctx)
}

func (c *Controller) publishSelection(requested, selected string, fallback bool) {
	c.publish(shared.SelectionChangedEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventSelectionChanged, c.cfg.SessionID, c.cfg.Clock()),
		SessionID: c.cfg.SessionID,
		Requested: requested,
		Selected:  selected,
		Fallback:  fallback,
	})
}

func (c *Controller) publish(e shared.Event) {
	if c.publisher == nil {
		return
	}
	if err := c.publisher.Publish(e); err != nil {
		c.log.Warn("failed to publish event", logger.String("event_type", string(e.EventType())), logger.Err(err))
	}
}
