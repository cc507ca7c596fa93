package orchestrator

import (
	"math"
	"testing"
	"time"
)

func TestSampleStepsPace(t *testing.T) {
	p := NewPaceTracker(PaceConfig{}, 20, time.Minute)
	p.Begin(t0)

	// 96 steps * 5.5ft = 528ft = 0.1 mile in one minute -> 10 min/mile.
	p.AddSteps(96)
	if p.SampleDue(t0.Add(9 * time.Second)) {
		t.Error("window should not be due before 10s")
	}
	cue := p.SampleSteps(t0.Add(time.Minute))

	if math.Abs(float64(p.Pace())-10) > 1e-3 {
		t.Errorf("expected 10 min/mile, got %v", p.Pace())
	}
	if cue != CuePaceAchieved {
		t.Errorf("expected pace achieved cue, got %q", cue)
	}
	if p.TotalSteps() != 96 {
		t.Errorf("expected 96 total steps, got %d", p.TotalSteps())
	}
	if p.SampleDue(t0.Add(time.Minute + 5*time.Second)) {
		t.Error("sampling should reset the window")
	}
}

func TestSampleStepsNotMoving(t *testing.T) {
	p := NewPaceTracker(PaceConfig{NotMovingPace: 999}, 20, time.Minute)
	p.Begin(t0)

	if cue := p.SampleSteps(t0.Add(10 * time.Second)); cue != CueNone {
		t.Errorf("expected no cue when never at pace, got %q", cue)
	}
	if p.Pace() != 999 {
		t.Errorf("expected sentinel pace, got %v", p.Pace())
	}
}

func TestEvaluateBoundaryAtChallengePace(t *testing.T) {
	p := NewPaceTracker(PaceConfig{}, 20, time.Minute)
	p.Begin(t0)

	// Exactly the challenge pace counts as at pace.
	if cue := p.update(20, t0); cue != CuePaceAchieved || !p.AtPace() {
		t.Errorf("pace equal to challenge should be at pace, cue=%q", cue)
	}
}

func TestChargeCycle(t *testing.T) {
	p := NewPaceTracker(PaceConfig{}, 20, time.Minute)
	p.Begin(t0)

	p.update(10, t0)
	if got := p.ChargePercent(t0.Add(30 * time.Second)); got != 50 {
		t.Errorf("expected 50%% halfway through the interval, got %d", got)
	}
	if got := p.ChargePercent(t0.Add(5 * time.Minute)); got != 100 {
		t.Errorf("percentage must cap at 100, got %d", got)
	}
	if p.Charged() {
		t.Fatal("charge is only granted on evaluation")
	}

	if cue := p.update(10, t0.Add(time.Minute)); cue != CueCharged {
		t.Fatalf("expected charged cue, got %q", cue)
	}
	if cue := p.update(10, t0.Add(2*time.Minute)); cue != CueNone {
		t.Errorf("charge must not be granted twice, got %q", cue)
	}
	if p.Intervals() != 1 {
		t.Errorf("expected 1 interval, got %d", p.Intervals())
	}

	// Depletion leaves the at-pace clock running: a full interval has
	// already passed, so the next evaluation recharges.
	p.Deplete()
	if p.Charged() {
		t.Error("expected empty charge after deplete")
	}
	if got := p.ChargePercent(t0.Add(2 * time.Minute)); got != 100 {
		t.Errorf("percentage should stay capped at 100 after deplete, got %d", got)
	}
	if cue := p.update(10, t0.Add(130*time.Second)); cue != CueCharged {
		t.Errorf("expected immediate recharge, got %q", cue)
	}
	if !p.Charged() || p.Intervals() != 2 {
		t.Errorf("expected second interval, charged=%v intervals=%d", p.Charged(), p.Intervals())
	}
}

func TestDepleteThenPaceLostNeedsFullInterval(t *testing.T) {
	p := NewPaceTracker(PaceConfig{}, 20, time.Minute)
	p.Begin(t0)
	p.update(10, t0)
	p.update(10, t0.Add(time.Minute))
	p.Deplete()

	if cue := p.update(25, t0.Add(70*time.Second)); cue != CuePaceLost {
		t.Fatalf("expected pace lost, got %q", cue)
	}
	p.update(10, t0.Add(80*time.Second))
	if got := p.ChargePercent(t0.Add(110 * time.Second)); got != 50 {
		t.Errorf("expected a fresh interval after losing pace, got %d%%", got)
	}
	p.update(10, t0.Add(140*time.Second))
	if !p.Charged() || p.Intervals() != 2 {
		t.Errorf("expected recharge after a full interval, charged=%v intervals=%d", p.Charged(), p.Intervals())
	}
}

func TestSpeedConversion(t *testing.T) {
	p := NewPaceTracker(PaceConfig{}, 30, time.Minute)
	p.Begin(t0)

	p.SampleSpeed(26.8224, t0)
	if math.Abs(float64(p.Pace())-1) > 1e-4 {
		t.Errorf("26.8224 m/s should be 1 min/mile, got %v", p.Pace())
	}
	p.SampleSpeed(-1, t0)
	if p.Pace() != DefaultPaceConfig().NotMovingPace {
		t.Errorf("non-positive speed should be not moving, got %v", p.Pace())
	}
}
