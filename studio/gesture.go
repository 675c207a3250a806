package studio

import (
	"context"
)

// Drag gestures. A gesture runs begin -> update* -> end on one clip scalar,
// the loop bounds or the playhead. The override stays visible after end
// until the authoritative value converges (see EditTracker), so the engine
// round-trip never shows as a snap-back. Raw values are snapped here, at
// the model boundary, so the tracker itself stays unit-agnostic.

func (m *Model) BeginClipMove(clipID string) {
	clip, ok := m.ClipView(clipID)
	if !ok {
		return
	}
	m.edits.Begin(ClipStartEntity(clipID), EditMove, clip.Start)
}

func (m *Model) UpdateClipMove(clipID string, deltaBeats float64) {
	entity := ClipStartEntity(clipID)
	m.edits.Update(entity, deltaBeats)
	if v, ok := m.edits.CurrentOverride(entity); ok {
		m.edits.UpdateTo(entity, m.Snap(v))
	}
}

func (m *Model) EndClipMove(clipID string) {
	entity := ClipStartEntity(clipID)
	start, ok := m.edits.CurrentOverride(entity)
	if !ok {
		return
	}
	m.edits.End(entity)
	m.logActivity("moved clip %s to %g", clipID, start)
	m.command("moveClip", func(ctx context.Context) error {
		return m.engine.MoveClip(ctx, clipID, start)
	})
}

// BeginClipResize starts a resize gesture. kind must be EditResizeLeft or
// EditResizeRight; a left resize moves the start and shrinks the duration
// by the same amount, so it holds sessions on both scalars.
func (m *Model) BeginClipResize(clipID string, kind EditKind) {
	clip, ok := m.ClipView(clipID)
	if !ok {
		return
	}
	if kind == EditResizeLeft {
		m.edits.Begin(ClipStartEntity(clipID), kind, clip.Start)
	}
	m.edits.Begin(ClipDurationEntity(clipID), kind, clip.Duration)
}

func (m *Model) UpdateClipResize(clipID string, deltaBeats float64) {
	durEntity := ClipDurationEntity(clipID)
	kind, ok := m.edits.Kind(durEntity)
	if !ok {
		return
	}
	if kind == EditResizeLeft {
		startEntity := ClipStartEntity(clipID)
		m.edits.Update(startEntity, deltaBeats)
		if v, ok := m.edits.CurrentOverride(startEntity); ok {
			m.edits.UpdateTo(startEntity, m.Snap(v))
		}
		m.edits.Update(durEntity, -deltaBeats)
	} else {
		m.edits.Update(durEntity, deltaBeats)
	}
	if v, ok := m.edits.CurrentOverride(durEntity); ok {
		if snapped := m.Snap(v); snapped > 0 {
			m.edits.UpdateTo(durEntity, snapped)
		}
	}
}

func (m *Model) EndClipResize(clipID string) {
	clip, ok := m.ClipView(clipID)
	if !ok {
		return
	}
	m.edits.End(ClipStartEntity(clipID))
	m.edits.End(ClipDurationEntity(clipID))
	m.logActivity("resized clip %s", clipID)
	m.command("resizeClip", func(ctx context.Context) error {
		return m.engine.ResizeClip(ctx, clipID, clip.Start, clip.Duration)
	})
}

// BeginLoopDrag grabs one loop bound; entity is LoopStartEntity or
// LoopEndEntity.
func (m *Model) BeginLoopDrag(entity string) {
	loop := m.Loop()
	switch entity {
	case LoopStartEntity:
		m.edits.Begin(entity, EditLoopStart, loop.Start)
	case LoopEndEntity:
		m.edits.Begin(entity, EditLoopEnd, loop.End)
	}
}

func (m *Model) UpdateLoopDrag(entity string, deltaBeats float64) {
	m.edits.Update(entity, deltaBeats)
	if v, ok := m.edits.CurrentOverride(entity); ok {
		m.edits.UpdateTo(entity, m.Snap(v))
	}
}

func (m *Model) EndLoopDrag(entity string) {
	if m.edits.Phase(entity) != EditEditing {
		return
	}
	m.edits.End(entity)
	loop := m.Loop()
	loop.Enabled = true
	m.d.Loop.Enabled = true
	m.command("setLoop", func(ctx context.Context) error { return m.engine.SetLoop(ctx, loop) })
}

// BeginScrub starts dragging the playhead itself. The animation loop stops
// for the duration of the gesture and the display tracks the pointer
// directly.
func (m *Model) BeginScrub() {
	m.edits.Begin(PlayheadEntity, EditScrub, m.clock.DisplayPosition())
	m.updatePlayheadLoop()
}

func (m *Model) UpdateScrub(positionBeats float64) {
	if m.edits.Phase(PlayheadEntity) != EditEditing {
		return
	}
	m.edits.UpdateTo(PlayheadEntity, positionBeats)
	m.clock.Scrub(positionBeats)
}

func (m *Model) EndScrub(triggerAudio bool) {
	pos, ok := m.edits.CurrentOverride(PlayheadEntity)
	if !ok {
		return
	}
	m.edits.End(PlayheadEntity)
	m.command("seek", func(ctx context.Context) error {
		return m.engine.Seek(ctx, pos, triggerAudio)
	})
	m.updatePlayheadLoop()
}

// CancelGestures discards every in-flight gesture without convergence.
// Called when the window loses focus or the owning view unmounts mid-drag.
func (m *Model) CancelGestures() {
	m.edits.CancelAll()
	m.updatePlayheadLoop()
}
