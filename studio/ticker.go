package studio

import (
	"sync"
	"time"
)

type (
	// FrameScheduler abstracts the per-frame animation callback. The
	// contract: the callback runs once, roughly at the next display refresh,
	// and the returned cancel invalidates it if it has not run yet. A
	// scheduler is never re-entrant for the same logical loop; whoever wants
	// a continuous loop re-schedules from inside the callback.
	FrameScheduler interface {
		ScheduleNextTick(func(now time.Time)) CancelTick
	}

	CancelTick func()

	// IntervalScheduler is the production FrameScheduler, firing callbacks
	// from a timer at a fixed refresh interval.
	IntervalScheduler struct {
		Interval time.Duration
	}

	// frameLoop drives a callback once per frame while running. Stale
	// callbacks are invalidated with a generation counter before a new loop
	// is started, so stopping and restarting in quick succession can never
	// leave two concurrent loops double-applying their effects.
	frameLoop struct {
		sched  FrameScheduler
		tick   func(now time.Time)
		mu     sync.Mutex
		gen    uint64
		cancel CancelTick
	}
)

const DefaultFrameInterval = 16670 * time.Microsecond // ~60 fps

func (s IntervalScheduler) ScheduleNextTick(f func(now time.Time)) CancelTick {
	d := s.Interval
	if d <= 0 {
		d = DefaultFrameInterval
	}
	t := time.AfterFunc(d, func() { f(time.Now()) })
	return func() { t.Stop() }
}

func newFrameLoop(sched FrameScheduler, tick func(now time.Time)) *frameLoop {
	return &frameLoop{sched: sched, tick: tick}
}

// Start begins a fresh loop, invalidating any previously scheduled callback
// first. Calling Start on a running loop restarts it.
func (l *frameLoop) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopLocked()
	l.gen++
	l.scheduleLocked(l.gen)
}

// Stop invalidates the pending callback; the loop will not fire again until
// the next Start.
func (l *frameLoop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopLocked()
}

func (l *frameLoop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cancel != nil
}

func (l *frameLoop) stopLocked() {
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	l.gen++
}

func (l *frameLoop) scheduleLocked(gen uint64) {
	l.cancel = l.sched.ScheduleNextTick(func(now time.Time) {
		l.mu.Lock()
		if l.gen != gen {
			// a stale callback from a loop that was stopped or restarted
			l.mu.Unlock()
			return
		}
		l.mu.Unlock()
		l.tick(now)
		l.mu.Lock()
		if l.gen == gen {
			l.scheduleLocked(gen)
		}
		l.mu.Unlock()
	})
}
