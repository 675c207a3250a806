package studio

import (
	"time"
)

type (
	// Axis selects which scroll direction a link group synchronizes.
	Axis int

	// Viewport is an independently scrollable pane. SetScrollOffset moves
	// it programmatically; panes whose scroll surface emits an event on a
	// programmatic move deliver that event back through OnScroll, where the
	// echo guard absorbs it.
	Viewport interface {
		SetScrollOffset(axis Axis, offset float64)
	}

	// ScrollLink keeps a set of viewports positioned in lockstep along one
	// axis. On a scroll event from one member the offset is captured
	// synchronously (the event source may be gone after yielding) and the
	// write to the other members is deferred to the next animation frame,
	// so a burst of scroll events costs one write per member per frame.
	//
	// The echo guard is a single slot, not a per-member flag: it assumes a
	// propagation wave settles within one frame before the next user-driven
	// scroll begins. Two simultaneous gestures on different members of the
	// same group are outside the contract.
	//
	// Owned by the UI goroutine, like everything it links.
	ScrollLink struct {
		sched FrameScheduler
		axis  Axis

		members   []Viewport
		echoGuard bool

		pending       bool
		pendingOffset float64
		pendingSource Viewport
		cancel        CancelTick
	}
)

const (
	Horizontal Axis = iota
	Vertical
)

func NewScrollLink(sched FrameScheduler, axis Axis) *ScrollLink {
	return &ScrollLink{sched: sched, axis: axis}
}

func (l *ScrollLink) Axis() Axis { return l.axis }

// Add registers a viewport with the group.
func (l *ScrollLink) Add(v Viewport) {
	l.members = append(l.members, v)
}

// Remove detaches a viewport, e.g. when its pane unmounts.
func (l *ScrollLink) Remove(v Viewport) {
	for i, m := range l.members {
		if m == v {
			l.members = append(l.members[:i], l.members[i+1:]...)
			return
		}
	}
}

// OnScroll is called for every scroll event any member emits, user-driven
// or echo. An echo (an event our own propagation caused) is absorbed
// exactly once; a user scroll is captured and its propagation deferred to
// the next frame, coalescing rapid events into one write.
func (l *ScrollLink) OnScroll(source Viewport, offset float64) {
	if l.echoGuard {
		l.echoGuard = false
		return
	}
	l.pendingOffset = offset
	l.pendingSource = source
	if l.pending {
		return
	}
	l.pending = true
	l.cancel = l.sched.ScheduleNextTick(l.propagate)
}

// Detach cancels a scheduled propagation, for group teardown.
func (l *ScrollLink) Detach() {
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	l.pending = false
	l.echoGuard = false
	l.members = nil
}

func (l *ScrollLink) propagate(time.Time) {
	if !l.pending {
		return
	}
	l.pending = false
	l.cancel = nil
	for _, m := range l.members {
		if m == l.pendingSource {
			continue
		}
		// the guard must be up before the write, so the scroll event the
		// write provokes is recognized as ours
		l.echoGuard = true
		m.SetScrollOffset(l.axis, l.pendingOffset)
	}
	l.pendingSource = nil
}
