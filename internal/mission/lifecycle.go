package mission

import "sync/atomic"

// Phase is the lifecycle state of a moment.
type Phase uint64

const (
	PhaseNotStarted Phase = iota
	PhaseActive
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseNotStarted:
		return "not_started"
	case PhaseActive:
		return "active"
	case PhaseDone:
		return "done"
	}
	return "unknown"
}

// lifecycle packs a generation counter and a phase into one word so that
// completion callbacks can finish a moment only if it is still the same run.
// Layout: generation<<2 | phase.
type lifecycle struct {
	v atomic.Uint64
}

func pack(gen uint64, p Phase) uint64 {
	return gen<<2 | uint64(p)
}

func unpack(v uint64) (uint64, Phase) {
	return v >> 2, Phase(v & 3)
}

func (l *lifecycle) load() (uint64, Phase) {
	return unpack(l.v.Load())
}

// begin starts a new run and returns its generation.
func (l *lifecycle) begin() uint64 {
	for {
		old := l.v.Load()
		gen, _ := unpack(old)
		next := pack(gen+1, PhaseActive)
		if l.v.CompareAndSwap(old, next) {
			return gen + 1
		}
	}
}

// finish moves run gen from Active to Done. Only one caller can win.
func (l *lifecycle) finish(gen uint64) bool {
	return l.v.CompareAndSwap(pack(gen, PhaseActive), pack(gen, PhaseDone))
}

// retire invalidates outstanding callbacks for the current run, keeping the phase.
func (l *lifecycle) retire() {
	for {
		old := l.v.Load()
		gen, p := unpack(old)
		if l.v.CompareAndSwap(old, pack(gen+1, p)) {
			return
		}
	}
}
