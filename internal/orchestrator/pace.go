package orchestrator

import "time"

// Cue is an audio resource played when pace or charge state changes.
type Cue string

const (
	CueNone         Cue = ""
	CuePaceAchieved Cue = "cue://pace-achieved"
	CuePaceLost     Cue = "cue://pace-lost"
	CueCharged      Cue = "cue://weapon-charged"
)

const (
	feetPerMile = 5280.0
	// minutes per mile at 1 m/s
	mpsToMinutesPerMile = 26.8224
)

// PaceConfig holds the sampling constants of the pace tracker.
type PaceConfig struct {
	SampleWindow  time.Duration
	StrideFeet    float64
	NotMovingPace float32 // minutes per mile reported when no distance was covered
}

// DefaultPaceConfig returns a 10s window, a 5.5ft stride and a 1000 min/mile sentinel.
func DefaultPaceConfig() PaceConfig {
	return PaceConfig{
		SampleWindow:  10 * time.Second,
		StrideFeet:    5.5,
		NotMovingPace: 1000,
	}
}

func (c PaceConfig) withDefaults() PaceConfig {
	d := DefaultPaceConfig()
	if c.SampleWindow <= 0 {
		c.SampleWindow = d.SampleWindow
	}
	if c.StrideFeet <= 0 {
		c.StrideFeet = d.StrideFeet
	}
	if c.NotMovingPace <= 0 {
		c.NotMovingPace = d.NotMovingPace
	}
	return c
}

// PaceTracker turns step and speed samples into a pace estimate and
// accrues weapon charge while the runner holds challenge pace.
// It is not safe for concurrent use; the controller serializes access.
type PaceTracker struct {
	cfg           PaceConfig
	challengePace float32
	interval      time.Duration

	totalSteps       uint32
	sampleStart      time.Time
	stepsSinceSample uint32

	pace      float32
	atPace    bool
	paceStart time.Time
	charged   bool
	intervals uint32
}

// NewPaceTracker creates a tracker for the given challenge pace (min/mile)
// and charge interval.
func NewPaceTracker(cfg PaceConfig, challengePace float32, interval time.Duration) *PaceTracker {
	return &PaceTracker{
		cfg:           cfg.withDefaults(),
		challengePace: challengePace,
		interval:      interval,
	}
}

// Begin opens the first sampling window.
func (p *PaceTracker) Begin(now time.Time) {
	p.sampleStart = now
	p.stepsSinceSample = 0
}

// AddSteps records a step delta.
func (p *PaceTracker) AddSteps(n uint32) {
	p.totalSteps += n
	p.stepsSinceSample += n
}

// SampleDue reports whether the current sampling window has elapsed.
func (p *PaceTracker) SampleDue(now time.Time) bool {
	return now.Sub(p.sampleStart) >= p.cfg.SampleWindow
}

// SampleSteps closes the sampling window and evaluates the pace derived
// from the steps counted in it.
func (p *PaceTracker) SampleSteps(now time.Time) Cue {
	minutes := now.Sub(p.sampleStart).Minutes()
	miles := float64(p.stepsSinceSample) * p.cfg.StrideFeet / feetPerMile

	var pace float32
	if miles > 0 {
		pace = float32(minutes / miles)
	}
	return p.update(pace, now)
}

// SampleSpeed evaluates a speed reading in meters per second.
func (p *PaceTracker) SampleSpeed(mps float64, now time.Time) Cue {
	var pace float32
	if mps > 0 {
		pace = float32(mpsToMinutesPerMile / mps)
	}
	return p.update(pace, now)
}

// update takes a pace in minutes per mile; zero or less means not moving.
func (p *PaceTracker) update(pace float32, now time.Time) Cue {
	if pace > 0 {
		p.pace = pace
	} else {
		p.pace = p.cfg.NotMovingPace
	}

	cue := p.evaluate(now)

	p.sampleStart = now
	p.stepsSinceSample = 0
	return cue
}

func (p *PaceTracker) evaluate(now time.Time) Cue {
	cue := CueNone
	if p.pace <= p.challengePace {
		if !p.atPace {
			cue = CuePaceAchieved
			p.paceStart = now
		} else if !p.charged && now.Sub(p.paceStart) >= p.interval {
			cue = CueCharged
			p.charged = true
			p.intervals++
		}
		p.atPace = true
		return cue
	}

	if p.atPace {
		cue = CuePaceLost
	}
	p.atPace = false
	return cue
}

// Deplete clears the charge. The at-pace clock keeps running, so a runner
// who stayed at pace for a full interval recharges on the next evaluation.
func (p *PaceTracker) Deplete() {
	p.charged = false
}

// ChargePercent is 100 when charged, 0 off pace, and otherwise the share of
// the interval spent at pace so far.
func (p *PaceTracker) ChargePercent(now time.Time) int {
	if p.charged {
		return 100
	}
	if !p.atPace || p.interval <= 0 {
		return 0
	}
	pct := int(float64(now.Sub(p.paceStart)) / float64(p.interval) * 100)
	if pct > 100 {
		return 100
	}
	if pct < 0 {
		return 0
	}
	return pct
}

// Charged reports whether the weapon is charged.
func (p *PaceTracker) Charged() bool { return p.charged }

// AtPace reports whether the last evaluation was at challenge pace.
func (p *PaceTracker) AtPace() bool { return p.atPace }

// Pace returns the latest pace in minutes per mile (0 before the first sample).
func (p *PaceTracker) Pace() float32 { return p.pace }

func (p *PaceTracker) TotalSteps() uint32 { return p.totalSteps }

func (p *PaceTracker) Intervals() uint32 { return p.intervals }

func (p *PaceTracker) ChallengePace() float32 { return p.challengePace }
