package studio

import (
	"github.com/tahtiseq/tahti"
)

type (
	// EditKind tells what quantity of an entity a gesture is editing.
	EditKind int

	// EditPhase is the per-entity state machine: Idle (no session) ->
	// Editing (pointer down, override live) -> PendingConfirmation (pointer
	// up, override still live until the authoritative value converges) ->
	// Idle. PendingConfirmation exits only on a convergence check, never on
	// a timer, so the user never sees a snap-back to a stale value in the
	// gap between gesture end and engine acknowledgement.
	EditPhase int

	// editSession is one in-progress or pending optimistic edit. The anchor
	// is the authoritative value at gesture start; updates are expressed
	// relative to it so chained gestures (resize right after move) compose.
	editSession struct {
		kind    EditKind
		phase   EditPhase
		anchor  float64
		current float64
	}

	// EditTracker holds the transient local overrides for values the user
	// is dragging, shadowing the authoritative engine state until it
	// converges. Sessions are scoped per entity id; drags on different
	// entities are independent, while a second begin on the same entity
	// replaces the first (last writer within the window wins).
	//
	// Owned by the model goroutine; no locking.
	EditTracker struct {
		sessions map[string]*editSession
		epsilon  float64
	}
)

const (
	EditMove EditKind = iota
	EditResizeLeft
	EditResizeRight
	EditLoopStart
	EditLoopEnd
	EditScrub
)

const (
	EditIdle EditPhase = iota
	EditEditing
	EditPendingConfirmation
)

// DefaultEditEpsilon is the convergence tolerance in beats (or the domain
// equivalent for non-time quantities such as gain).
const DefaultEditEpsilon = 0.01

func NewEditTracker(epsilon float64) *EditTracker {
	if epsilon <= 0 {
		epsilon = DefaultEditEpsilon
	}
	return &EditTracker{sessions: make(map[string]*editSession), epsilon: epsilon}
}

// Begin starts a session for the entity, replacing any session already
// active or pending on it.
func (t *EditTracker) Begin(entityID string, kind EditKind, anchor float64) {
	t.sessions[entityID] = &editSession{
		kind:    kind,
		phase:   EditEditing,
		anchor:  anchor,
		current: anchor,
	}
}

// Update moves the session's value by an absolute delta from the anchor.
// Computing against the anchor rather than the raw pointer position keeps
// the gesture stable if intermediate updates are dropped.
func (t *EditTracker) Update(entityID string, delta float64) {
	s, ok := t.sessions[entityID]
	if !ok || s.phase != EditEditing {
		return
	}
	s.current = s.anchor + delta
}

// UpdateTo sets the session's value outright, for gestures that already
// resolved the pointer position to a domain value (e.g. after snapping).
func (t *EditTracker) UpdateTo(entityID string, value float64) {
	s, ok := t.sessions[entityID]
	if !ok || s.phase != EditEditing {
		return
	}
	s.current = value
}

// End marks the gesture finished. The override stays visible; the session
// moves to PendingConfirmation and is retired by Observe once the
// authoritative value has caught up.
func (t *EditTracker) End(entityID string) {
	s, ok := t.sessions[entityID]
	if !ok || s.phase != EditEditing {
		return
	}
	s.phase = EditPendingConfirmation
}

// Cancel discards the session without waiting for convergence. Used when
// the owning view unmounts or the window loses focus mid-gesture.
func (t *EditTracker) Cancel(entityID string) {
	delete(t.sessions, entityID)
}

// CancelAll discards every session, e.g. when the whole window blurs.
func (t *EditTracker) CancelAll() {
	clear(t.sessions)
}

// Observe feeds an authoritative value for the entity into the tracker. A
// pending session whose override agrees with it within the tolerance is
// retired; an active session is never retired, since the user still holds
// the pointer.
func (t *EditTracker) Observe(entityID string, authoritative float64) {
	s, ok := t.sessions[entityID]
	if !ok || s.phase != EditPendingConfirmation {
		return
	}
	if tahti.NearlyEqual(authoritative, s.current, t.epsilon) {
		delete(t.sessions, entityID)
	}
}

// CurrentOverride returns the override value for the entity, if any. Every
// consumer rendering the entity must prefer this over the authoritative
// value.
func (t *EditTracker) CurrentOverride(entityID string) (float64, bool) {
	s, ok := t.sessions[entityID]
	if !ok {
		return 0, false
	}
	return s.current, true
}

// Phase reports the state-machine phase for the entity, EditIdle when no
// session exists.
func (t *EditTracker) Phase(entityID string) EditPhase {
	s, ok := t.sessions[entityID]
	if !ok {
		return EditIdle
	}
	return s.phase
}

// Kind returns the kind of the entity's session; ok is false when idle.
func (t *EditTracker) Kind(entityID string) (EditKind, bool) {
	s, ok := t.sessions[entityID]
	if !ok {
		return 0, false
	}
	return s.kind, true
}

// Active reports whether any session is in the Editing phase, which the
// model uses to decide whether the playhead animation loop may run.
func (t *EditTracker) Active() bool {
	for _, s := range t.sessions {
		if s.phase == EditEditing {
			return true
		}
	}
	return false
}
