package orchestrator

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/AaronLay10/StrideQuest/internal/mission"
)

// State is the lifecycle state of the mission controller.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateLoaded        State = "loaded"
	StateRunning       State = "running"
	StateEndScreen     State = "end_screen"
)

var transitions = map[State]State{
	StateUninitialized: StateLoaded,
	StateLoaded:        StateRunning,
	StateRunning:       StateEndScreen,
	StateEndScreen:     StateUninitialized,
}

// CanTransition reports whether from -> to is a legal controller transition.
func CanTransition(from, to State) bool {
	next, ok := transitions[from]
	return ok && next == to
}

// Run specification bounds, in minutes per mile.
const (
	MinChallengePace float32 = 8
	MaxChallengePace float32 = 30
)

// RunSpec is the per-run configuration chosen before a mission starts.
type RunSpec struct {
	MissionLength  time.Duration
	IntervalLength time.Duration
	ChallengePace  float32 // minutes per mile
}

// DefaultRunSpec returns a 30 minute mission with 1.5 minute intervals at 20 min/mile.
func DefaultRunSpec() RunSpec {
	return RunSpec{
		MissionLength:  30 * time.Minute,
		IntervalLength: 90 * time.Second,
		ChallengePace:  20,
	}
}

// Validate checks the run specification bounds.
func (s RunSpec) Validate() error {
	if s.IntervalLength <= 0 {
		return fmt.Errorf("interval length must be positive, got %v", s.IntervalLength)
	}
	if s.MissionLength < 0 {
		return fmt.Errorf("mission length must not be negative, got %v", s.MissionLength)
	}
	if s.ChallengePace < MinChallengePace || s.ChallengePace > MaxChallengePace {
		return fmt.Errorf("challenge pace %.1f outside [%.0f, %.0f] min/mile",
			s.ChallengePace, MinChallengePace, MaxChallengePace)
	}
	return nil
}

var (
	ErrNotRunning         = errors.New("mission is not running")
	ErrTransitionRejected = errors.New("transition rejected")
)

// TransitionError reports a rejected controller transition.
type TransitionError struct {
	From, To State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("transition rejected: %s -> %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrTransitionRejected
}

// LinkError reports moment references that do not resolve in a loaded graph.
type LinkError struct {
	Mission string
	Links   []mission.DanglingLink
}

func (e *LinkError) Error() string {
	parts := make([]string, 0, len(e.Links))
	for _, l := range e.Links {
		switch {
		case l.From == "":
			parts = append(parts, fmt.Sprintf("start -> %q", l.To))
		case l.ChoiceID != "":
			parts = append(parts, fmt.Sprintf("%s/%s -> %q", l.From, l.ChoiceID, l.To))
		default:
			parts = append(parts, fmt.Sprintf("%s -> %q", l.From, l.To))
		}
	}
	return fmt.Sprintf("mission %q has unresolved moment links: %s", e.Mission, strings.Join(parts, ", "))
}

// ReadError reports a failure to open or read a mission document.
type ReadError struct {
	Path string
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("failed to read mission %s: %v", e.Path, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}
