package mission

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// Kind identifies a moment variant.
// Allowed kinds: timer, sfx, spoken_text, choice
type Kind string

const (
	KindTimer      Kind = "timer"
	KindSfx        Kind = "sfx"
	KindSpokenText Kind = "spoken_text"
	KindChoice     Kind = "choice"
)

// TimerSpec holds the decoded fields of a timer moment.
type TimerSpec struct {
	LengthMinutes float32
}

// Length returns the timer length as a duration.
func (s *TimerSpec) Length() time.Duration {
	return minutes(s.LengthMinutes)
}

// SfxSpec holds the decoded fields of a sound effect moment.
type SfxSpec struct {
	URI string
}

// SpokenTextSpec holds the decoded fields of a spoken text moment.
type SpokenTextSpec struct {
	Text string
}

// Moment is one narrative beat. Exactly one of the spec pointers matching
// Kind is set.
type Moment struct {
	ID        string
	Kind      Kind
	Next      string // "" = terminal; unused for choice moments
	Fragments []string

	Timer      *TimerSpec
	Sfx        *SfxSpec
	SpokenText *SpokenTextSpec
	Choice     *ChoiceSpec

	life      lifecycle
	startedAt time.Time
	rearm     bool
	rearmAt   time.Time

	holdsAudio atomic.Bool
	selected   atomic.Pointer[Choice]

	mu      sync.Mutex
	offered []string
}

// Phase returns the moment's lifecycle phase.
func (m *Moment) Phase() Phase {
	_, p := m.life.load()
	return p
}

// IsDone reports whether the moment has reached its completion condition.
func (m *Moment) IsDone() bool {
	return m.Phase() == PhaseDone
}

// StartedAt returns when the current run started.
func (m *Moment) StartedAt() time.Time {
	return m.startedAt
}

// Start begins a new run of the moment.
func (m *Moment) Start(mc *Context, now time.Time) {
	gen := m.life.begin()
	m.startedAt = now
	m.rearm = false

	switch m.Kind {
	case KindSfx:
		mc.Audio.RequestPlayback(m.Sfx.URI, func() {
			m.life.finish(gen)
		})
	case KindSpokenText:
		m.speak(mc, now, gen)
	case KindChoice:
		m.present(mc)
	}
}

func (m *Moment) speak(mc *Context, now time.Time, gen uint64) {
	if !mc.Audio.AcquireExclusive() {
		m.RestartAfter(now, mc.speechRetry())
		return
	}
	m.holdsAudio.Store(true)
	mc.Speech.Speak(m.SpokenText.Text, m.ID, func() {
		if m.life.finish(gen) {
			m.releaseAudio(mc)
		}
	})
}

func (m *Moment) releaseAudio(mc *Context) {
	if m.holdsAudio.CompareAndSwap(true, false) {
		mc.Audio.Release()
	}
}

func (m *Moment) present(mc *Context) {
	eligible := m.Choice.Eligible(mc.Resources.WeaponCharged())

	ids := make([]string, 0, len(eligible))
	for _, c := range eligible {
		ids = append(ids, c.ID)
	}
	m.mu.Lock()
	m.offered = ids
	m.mu.Unlock()

	if mc.Presenter != nil {
		mc.Presenter.ChoicesChanged(m.ID, m.Choice.Description, eligible)
	}
}

// Offered returns the ids of the choices presented at the last start.
func (m *Moment) Offered() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string{}, m.offered...)
}

func (m *Moment) wasOffered(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.offered {
		if o == id {
			return true
		}
	}
	return false
}

// Update advances the moment to now. A pending re-arm fires first.
func (m *Moment) Update(mc *Context, now time.Time) {
	if m.rearm && !now.Before(m.rearmAt) {
		m.Restart(mc, now)
		return
	}

	gen, phase := m.life.load()
	if phase != PhaseActive {
		return
	}

	switch m.Kind {
	case KindTimer:
		if now.Sub(m.startedAt) >= m.Timer.Length() {
			m.life.finish(gen)
		}
	case KindChoice:
		if now.Sub(m.startedAt) >= m.Choice.Timeout() {
			if m.selected.Load() == nil {
				m.choose(mc, m.Choice.Lookup(m.Choice.DefaultChoiceID))
			}
			m.life.finish(gen)
		}
	}
}

// End tears the moment down. Outstanding completion callbacks are ignored
// after End returns.
func (m *Moment) End(mc *Context) {
	_, phase := m.life.load()
	m.life.retire()
	m.rearm = false

	switch m.Kind {
	case KindSfx:
		if phase != PhaseDone {
			mc.Audio.CancelPlayback(m.Sfx.URI)
		}
	case KindSpokenText:
		mc.Speech.StopSpeech()
		m.releaseAudio(mc)
	case KindChoice:
		if mc.Presenter != nil {
			mc.Presenter.ChoicesDismissed(m.ID)
		}
	}
}

// Restart re-runs the moment from now. A choice keeps its selection.
func (m *Moment) Restart(mc *Context, now time.Time) {
	m.rearm = false
	switch m.Kind {
	case KindSfx:
		mc.Audio.CancelPlayback(m.Sfx.URI)
	case KindSpokenText:
		m.End(mc)
	}
	m.Start(mc, now)
}

// RestartAfter schedules a restart on the first update at or after now+delay.
func (m *Moment) RestartAfter(now time.Time, delay time.Duration) {
	m.rearm = true
	m.rearmAt = now.Add(delay)
}

// RestartPending reports whether a re-arm is scheduled, and when.
func (m *Moment) RestartPending() (time.Time, bool) {
	return m.rearmAt, m.rearm
}

// NextID returns the id of the moment to visit next ("" = end of mission).
// A choice moment reports "" until a choice has been selected.
func (m *Moment) NextID() string {
	if m.Kind == KindChoice {
		if c := m.selected.Load(); c != nil {
			return c.NextID
		}
		return ""
	}
	return m.Next
}

// NarrativeFragments returns the moment's fragments followed by those of the
// selected choice, if any.
func (m *Moment) NarrativeFragments() []string {
	out := append([]string{}, m.Fragments...)
	if c := m.selected.Load(); c != nil {
		out = append(out, c.Fragments...)
	}
	return out
}

// Selected returns the selected choice, or nil.
func (m *Moment) Selected() *Choice {
	return m.selected.Load()
}

// Select records the player's choice. It returns true if this call made the
// selection; once the moment is done further calls are no-ops.
func (m *Moment) Select(mc *Context, choiceID string) (bool, error) {
	if m.Kind != KindChoice {
		return false, ErrNotChoiceMoment
	}

	gen, phase := m.life.load()
	switch phase {
	case PhaseDone:
		return false, nil
	case PhaseNotStarted:
		return false, ErrMomentNotActive
	}

	c := m.Choice.Lookup(choiceID)
	if c == nil {
		return false, fmt.Errorf("%w: %s", ErrUnknownChoice, choiceID)
	}
	if !m.wasOffered(choiceID) {
		return false, fmt.Errorf("%w: %s", ErrChoiceUnavailable, choiceID)
	}

	if !m.choose(mc, c) {
		return false, nil
	}
	m.life.finish(gen)
	return true, nil
}

// choose sets the selection once and applies its outcome.
func (m *Moment) choose(mc *Context, c *Choice) bool {
	if c == nil || !m.selected.CompareAndSwap(nil, c) {
		return false
	}
	mc.Resources.ApplyOutcome(c.Outcome)
	return true
}

// MaxMinutes is the longest length a time.Duration can hold, in minutes.
const MaxMinutes = math.MaxInt64 / float64(time.Minute)

// minutes converts v, saturating at the largest representable duration.
func minutes(v float32) time.Duration {
	if float64(v) >= MaxMinutes {
		return math.MaxInt64
	}
	return time.Duration(float64(v) * float64(time.Minute))
}
