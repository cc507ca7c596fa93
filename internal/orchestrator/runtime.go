package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AaronLay10/StrideQuest/internal/events"
	"github.com/AaronLay10/StrideQuest/internal/mission"
)

// Readiness is the external gate for Loaded -> Running.
type Readiness interface {
	Ready() bool
}

// ReadinessFunc adapts a function to Readiness.
type ReadinessFunc func() bool

func (f ReadinessFunc) Ready() bool { return f() }

// Presenter receives engine notifications. It is never queried.
type Presenter interface {
	mission.ChoicePresenter
	PaceCue(cue Cue)
	StatsChanged(Stats)
	StateChanged(from, to State)
}

// Pumper is implemented by audio collaborators that advance a playback
// queue once per tick.
type Pumper interface {
	Pump()
}

// SummarySink receives the run summary when a mission reaches the end screen.
type SummarySink interface {
	SaveRunSummary(ctx context.Context, s RunSummary) error
}

// SummarySinkFunc adapts a function to SummarySink.
type SummarySinkFunc func(ctx context.Context, s RunSummary) error

func (f SummarySinkFunc) SaveRunSummary(ctx context.Context, s RunSummary) error { return f(ctx, s) }

// Stats is a snapshot of mission runtime state.
type Stats struct {
	State              State   `json:"state"`
	SessionID          string  `json:"session_id,omitempty"`
	Mission            string  `json:"mission,omitempty"`
	CurrentMomentID    string  `json:"current_moment_id,omitempty"`
	TotalSteps         uint32  `json:"total_steps"`
	IntervalsCompleted uint32  `json:"intervals_completed"`
	Pace               float32 `json:"pace_minutes_per_mile"`
	ChallengePace      float32 `json:"challenge_pace"`
	AtChallengePace    bool    `json:"at_challenge_pace"`
	ChargePercent      int     `json:"charge_percent"`
	WeaponCharged      bool    `json:"weapon_charged"`
	EnemiesDefeated    uint32  `json:"enemies_defeated"`
	ElapsedMinutes     int     `json:"elapsed_minutes"`
	ElapsedSeconds     int     `json:"elapsed_seconds"`
}

// RunSummary is the history record written when a run ends.
type RunSummary struct {
	SessionID          string
	Mission            string
	StartedAt          time.Time
	EndedAt            time.Time
	Completed          bool // false when ended early by request
	TotalSteps         uint32
	IntervalsCompleted uint32
	EnemiesDefeated    uint32
	Narrative          []string
}

// Options wires the controller to its collaborators.
type Options struct {
	Audio     mission.Audio
	Speech    mission.Speech
	Presenter Presenter
	Readiness Readiness
	Summaries SummarySink

	Pace        PaceConfig
	SpeechRetry time.Duration
	Logger      *slog.Logger
}

// Controller drives a mission graph over time. Tick, SelectChoice and the
// sample entry points are serialized by one mutex.
type Controller struct {
	mu   sync.Mutex
	opts Options
	log  *slog.Logger

	state     State
	graph     *mission.Graph
	run       RunSpec
	sessionID string
	pace      *PaceTracker
	mctx      *mission.Context

	now          time.Time
	missionStart time.Time
	lastCharge   int
	enemies      uint32
	narrative    []string
	route        []string
	done         bool
}

// NewController creates a controller in the Uninitialized state.
func NewController(opts Options) *Controller {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	c := &Controller{
		opts:  opts,
		log:   log.With("component", "controller"),
		state: StateUninitialized,
	}
	c.mctx = &mission.Context{
		Audio:       opts.Audio,
		Speech:      opts.Speech,
		Resources:   (*resources)(c),
		SpeechRetry: opts.SpeechRetry,
	}
	if opts.Presenter != nil {
		c.mctx.Presenter = opts.Presenter
	}
	return c
}

// Load installs a parsed graph. Every moment reference must resolve.
func (c *Controller) Load(g *mission.Graph, spec RunSpec) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !CanTransition(c.state, StateLoaded) {
		return c.reject(StateLoaded)
	}
	if err := spec.Validate(); err != nil {
		c.emit("warn", "mission.load_failed", err.Error(), map[string]interface{}{"mission": g.Name})
		return err
	}
	if links := g.DanglingLinks(); len(links) > 0 {
		err := &LinkError{Mission: g.Name, Links: links}
		c.emit("warn", "mission.load_failed", err.Error(), map[string]interface{}{"mission": g.Name})
		return err
	}

	c.graph = g
	c.run = spec
	c.sessionID = uuid.NewString()
	c.pace = NewPaceTracker(c.opts.Pace, spec.ChallengePace, spec.IntervalLength)
	c.enemies = 0
	c.narrative = nil
	c.route = nil
	c.done = false
	c.lastCharge = 0
	events.SetSession(c.sessionID)

	c.setState(StateLoaded)
	c.emit("info", "mission.loaded", "", map[string]interface{}{
		"mission":        g.Name,
		"moments":        g.Len(),
		"challenge_pace": spec.ChallengePace,
		"interval_min":   spec.IntervalLength.Minutes(),
	})
	return nil
}

// Tick advances the mission to now.
func (c *Controller) Tick(now time.Time) {
	c.mu.Lock()
	c.now = now
	switch c.state {
	case StateLoaded:
		if c.ready() {
			c.start(now)
		}
	case StateRunning:
		c.step(now)
	}
	c.mu.Unlock()

	if p, ok := c.opts.Audio.(Pumper); ok {
		p.Pump()
	}
}

func (c *Controller) ready() bool {
	return c.opts.Readiness == nil || c.opts.Readiness.Ready()
}

func (c *Controller) start(now time.Time) {
	c.setState(StateRunning)
	c.missionStart = now
	c.pace.Begin(now)
	c.emit("info", "mission.started", "", map[string]interface{}{"mission": c.graph.Name})
	c.enter(c.graph.StartID, now)
	if c.done {
		c.finish(now, true)
	}
}

func (c *Controller) step(now time.Time) {
	if c.pace.SampleDue(now) {
		c.cue(c.pace.SampleSteps(now))
		c.emit("debug", "pace.sampled", "", map[string]interface{}{"pace": c.pace.Pace()})
	}

	if m := c.graph.Current(); m != nil {
		m.Update(c.mctx, now)
		if m.IsDone() {
			c.narrative = append(c.narrative, m.NarrativeFragments()...)
			m.End(c.mctx)
			next := m.NextID()
			c.route = append(c.route, next)
			c.emit("info", "moment.completed", "", map[string]interface{}{
				"moment_id": m.ID,
				"next_id":   next,
			})
			c.enter(next, now)
		}
	}

	if charge := c.pace.ChargePercent(now); charge != c.lastCharge {
		c.lastCharge = charge
		c.statsChanged()
	}

	if c.done {
		c.finish(now, true)
	}
}

// enter makes id the current moment; "" ends the mission.
func (c *Controller) enter(id string, now time.Time) {
	if id == "" {
		c.graph.ClearCurrent()
		c.done = true
		return
	}
	if !c.graph.SetCurrent(id) {
		// Load rejects dangling links, so this only trips on a mutated graph.
		c.emit("error", "moment.missing", "", map[string]interface{}{"moment_id": id})
		c.graph.ClearCurrent()
		c.done = true
		return
	}
	m := c.graph.Current()
	m.Start(c.mctx, now)
	c.emit("info", "moment.started", "", map[string]interface{}{
		"moment_id": m.ID,
		"type":      string(m.Kind),
	})
}

func (c *Controller) finish(now time.Time, completed bool) {
	if m := c.graph.Current(); m != nil {
		m.End(c.mctx)
		c.graph.ClearCurrent()
	}
	c.done = true
	c.setState(StateEndScreen)

	name := "mission.completed"
	if !completed {
		name = "mission.ended"
	}
	c.emit("info", name, "", map[string]interface{}{
		"mission":          c.graph.Name,
		"steps":            c.pace.TotalSteps(),
		"intervals":        c.pace.Intervals(),
		"enemies_defeated": c.enemies,
	})

	if c.opts.Summaries != nil {
		s := RunSummary{
			SessionID:          c.sessionID,
			Mission:            c.graph.Name,
			StartedAt:          c.missionStart,
			EndedAt:            now,
			Completed:          completed,
			TotalSteps:         c.pace.TotalSteps(),
			IntervalsCompleted: c.pace.Intervals(),
			EnemiesDefeated:    c.enemies,
			Narrative:          append([]string{}, c.narrative...),
		}
		go c.saveSummary(s)
	}
}

func (c *Controller) saveSummary(s RunSummary) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.opts.Summaries.SaveRunSummary(ctx, s); err != nil {
		c.log.Error("run summary not saved", "session_id", s.SessionID, "error", err)
	}
}

// SelectChoice records a player selection on the current choice moment.
// It returns true if this call made the selection.
func (c *Controller) SelectChoice(choiceID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateRunning {
		return false, ErrNotRunning
	}
	m := c.graph.Current()
	if m == nil {
		return false, ErrNotRunning
	}

	ok, err := m.Select(c.mctx, choiceID)
	if err != nil {
		c.emit("warn", "choice.rejected", err.Error(), map[string]interface{}{
			"moment_id": m.ID,
			"choice_id": choiceID,
		})
		return false, err
	}
	if ok {
		c.emit("info", "choice.selected", "", map[string]interface{}{
			"moment_id": m.ID,
			"choice_id": choiceID,
		})
	}
	return ok, nil
}

// OnStepDelta records steps reported by the sensor. Samples that arrive
// before the mission is running are discarded; the return value says
// whether the sample was used.
func (c *Controller) OnStepDelta(steps uint32) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateRunning {
		return false
	}
	c.pace.AddSteps(steps)
	c.statsChanged()
	return true
}

// OnSpeed evaluates a speed sample in meters per second.
func (c *Controller) OnSpeed(mps float64, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateRunning {
		return false
	}
	c.cue(c.pace.SampleSpeed(mps, now))
	c.emit("debug", "pace.sampled", "", map[string]interface{}{
		"pace":  c.pace.Pace(),
		"speed": mps,
	})
	return true
}

// RestartCurrentMoment re-arms the current audio moment after focus loss.
func (c *Controller) RestartCurrentMoment(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateRunning {
		return
	}
	m := c.graph.Current()
	if m == nil || (m.Kind != mission.KindSfx && m.Kind != mission.KindSpokenText) {
		return
	}
	// finished but not yet folded by a tick: nothing left to replay
	if m.IsDone() {
		return
	}
	m.RestartAfter(now, 0)
	c.emit("info", "moment.restarted", "", map[string]interface{}{"moment_id": m.ID})
}

// EndMission moves a running mission to the end screen.
func (c *Controller) EndMission(now time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !CanTransition(c.state, StateEndScreen) {
		return c.reject(StateEndScreen)
	}
	c.finish(now, false)
	return nil
}

// Reset leaves the end screen and drops the mission.
func (c *Controller) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !CanTransition(c.state, StateUninitialized) {
		return c.reject(StateUninitialized)
	}
	name := c.graph.Name
	c.graph = nil
	c.pace = nil
	c.sessionID = ""
	c.narrative = nil
	c.route = nil
	c.enemies = 0
	c.done = false
	c.setState(StateUninitialized)
	c.emit("info", "mission.reset", "", map[string]interface{}{"mission": name})
	events.SetSession("")
	return nil
}

// State returns the controller state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SessionID returns the id of the loaded run ("" when uninitialized).
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Stats returns a snapshot of runtime state.
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats()
}

func (c *Controller) stats() Stats {
	s := Stats{
		State:     c.state,
		SessionID: c.sessionID,
	}
	if c.graph == nil {
		return s
	}
	s.Mission = c.graph.Name
	s.CurrentMomentID = c.graph.CurrentID()
	s.TotalSteps = c.pace.TotalSteps()
	s.IntervalsCompleted = c.pace.Intervals()
	s.Pace = c.pace.Pace()
	s.ChallengePace = c.pace.ChallengePace()
	s.AtChallengePace = c.pace.AtPace()
	s.WeaponCharged = c.pace.Charged()
	s.EnemiesDefeated = c.enemies
	if c.state == StateRunning || c.state == StateEndScreen {
		s.ChargePercent = c.pace.ChargePercent(c.now)
		elapsed := int(c.now.Sub(c.missionStart).Seconds())
		if elapsed < 0 {
			elapsed = 0
		}
		s.ElapsedMinutes = elapsed / 60
		s.ElapsedSeconds = elapsed % 60
	}
	return s
}

// Narrative returns the fragments folded so far, in visitation order.
func (c *Controller) Narrative() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string{}, c.narrative...)
}

// Route returns the next ids taken so far; "" marks the end of the mission.
func (c *Controller) Route() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string{}, c.route...)
}

// FitnessStatistics returns the end screen summary lines.
func (c *Controller) FitnessStatistics() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pace == nil {
		return nil
	}
	return []string{
		fmt.Sprintf("%d steps taken", c.pace.TotalSteps()),
		fmt.Sprintf("%d intervals completed", c.pace.Intervals()),
	}
}

// CurrentChoices returns the choices offered by the current choice moment.
func (c *Controller) CurrentChoices() (momentID, description string, choices []mission.Choice) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateRunning {
		return "", "", nil
	}
	m := c.graph.Current()
	if m == nil || m.Kind != mission.KindChoice || m.IsDone() {
		return "", "", nil
	}
	for _, id := range m.Offered() {
		if ch := m.Choice.Lookup(id); ch != nil {
			choices = append(choices, *ch)
		}
	}
	return m.ID, m.Choice.Description, choices
}

func (c *Controller) cue(cue Cue) {
	if cue == CueNone {
		return
	}
	if c.opts.Audio != nil {
		c.opts.Audio.RequestPlayback(string(cue), nil)
	}
	if c.opts.Presenter != nil {
		c.opts.Presenter.PaceCue(cue)
	}

	fields := map[string]interface{}{"pace": c.pace.Pace(), "challenge_pace": c.pace.ChallengePace()}
	switch cue {
	case CuePaceAchieved:
		c.emit("info", "pace.achieved", "", fields)
	case CuePaceLost:
		c.emit("info", "pace.lost", "", fields)
	case CueCharged:
		fields["intervals"] = c.pace.Intervals()
		c.emit("info", "charge.complete", "", fields)
	}
}

func (c *Controller) statsChanged() {
	if c.opts.Presenter != nil {
		c.opts.Presenter.StatsChanged(c.stats())
	}
}

func (c *Controller) setState(to State) {
	from := c.state
	c.state = to
	c.log.Info("state changed", "from", from, "to", to)
	if c.opts.Presenter != nil {
		c.opts.Presenter.StateChanged(from, to)
	}
}

func (c *Controller) reject(to State) error {
	err := &TransitionError{From: c.state, To: to}
	c.log.Warn("transition rejected", "from", c.state, "to", to)
	c.emit("warn", "mission.transition_rejected", "", map[string]interface{}{
		"from": string(c.state),
		"to":   string(to),
	})
	return err
}

func (c *Controller) emit(level, name, msg string, fields map[string]interface{}) {
	if _, err := events.Emit(level, name, msg, fields); err != nil {
		c.log.Error("event rejected", "event", name, "error", err)
	}
}

// resources is the controller as seen by moments. Moments only call it
// while the controller mutex is held.
type resources Controller

func (r *resources) WeaponCharged() bool {
	return r.pace.Charged()
}

func (r *resources) ApplyOutcome(o mission.Outcome) {
	c := (*Controller)(r)
	if o.IncrementsDefeatCount {
		c.enemies++
	}
	if o.DepletesCharge && c.pace.Charged() {
		c.pace.Deplete()
		c.emit("info", "charge.depleted", "", nil)
	}
}
