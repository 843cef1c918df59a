package dispatch

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/banshee-data/vrlink/internal/timeutil"
)

// Loop is the render tick. Each tick drains the queue and then runs the
// post-drain hooks, all on the goroutine that called Run.
type Loop struct {
	queue    *Queue
	clock    timeutil.Clock
	interval time.Duration
	hooks    []func()
	ticks    atomic.Uint64
}

// NewLoop returns a loop ticking rateHz times per second. A nil clock uses the
// wall clock.
func NewLoop(queue *Queue, rateHz float64, clock timeutil.Clock) *Loop {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if rateHz <= 0 {
		rateHz = 60
	}
	return &Loop{
		queue:    queue,
		clock:    clock,
		interval: time.Duration(float64(time.Second) / rateHz),
	}
}

// AfterDrain registers hook to run after every drain. Register hooks before
// Run.
func (l *Loop) AfterDrain(hook func()) {
	l.hooks = append(l.hooks, hook)
}

// Interval returns the tick period.
func (l *Loop) Interval() time.Duration { return l.interval }

// Ticks returns the number of completed ticks.
func (l *Loop) Ticks() uint64 { return l.ticks.Load() }

// Tick runs one drain and the hooks. It returns the number of queued tasks run.
func (l *Loop) Tick() int {
	n := l.queue.DrainAndRunAll()
	for _, hook := range l.hooks {
		l.queue.run(hook)
	}
	l.ticks.Add(1)
	return n
}

// Run ticks until ctx is done, then drains once more and returns.
func (l *Loop) Run(ctx context.Context) error {
	ticker := l.clock.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			l.queue.DrainAndRunAll()
			return nil
		case <-ticker.C():
			l.Tick()
		}
	}
}
