package orchestrator

import (
	"sync"
	"time"

	"github.com/AaronLay10/StrideQuest/internal/events"
)

// DefaultTickInterval is the mission tick period.
const DefaultTickInterval = time.Second

// Loop ticks a controller at a fixed interval. A tick never overlaps the
// previous one: the ticker drops ticks while Controller.Tick is running.
type Loop struct {
	controller *Controller
	interval   time.Duration
	now        func() time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// NewLoop creates a loop for c. interval <= 0 uses DefaultTickInterval.
func NewLoop(c *Controller, interval time.Duration) *Loop {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	return &Loop{
		controller: c,
		interval:   interval,
		now:        time.Now,
		stopCh:     make(chan struct{}),
	}
}

// Start begins ticking in the background.
func (l *Loop) Start() {
	l.wg.Add(1)
	go l.run()
	events.Emit("info", "loop.started", "", map[string]interface{}{
		"interval_ms": l.interval.Milliseconds(),
	})
}

// Stop halts the loop and waits for the current tick to finish.
func (l *Loop) Stop() {
	l.once.Do(func() {
		close(l.stopCh)
		l.wg.Wait()
		events.Emit("info", "loop.stopped", "", nil)
	})
}

func (l *Loop) run() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.controller.Tick(l.now())
		}
	}
}
