package studio

type (
	// Action describes a user action that can be performed on the model,
	// initiated by calling Do(), usually from a button or menu item. Action
	// advertises whether it is enabled so the UI can gray out controls. The
	// underlying Doer can optionally implement Enabler; if it does not, the
	// action is always allowed.
	Action struct {
		doer Doer
	}

	Doer interface {
		Do()
	}

	Enabler interface {
		Enabled() bool
	}

	// Bool wraps a toggleable model value for the UI.
	Bool struct {
		data BoolData
	}

	BoolData interface {
		Value() bool
		SetValue(bool)
	}
)

func MakeAction(doer Doer) Action { return Action{doer: doer} }

func (a Action) Do() {
	if e, ok := a.doer.(Enabler); ok && !e.Enabled() {
		return
	}
	if a.doer != nil {
		a.doer.Do()
	}
}

func (a Action) Enabled() bool {
	if a.doer == nil {
		return false
	}
	if e, ok := a.doer.(Enabler); ok {
		return e.Enabled()
	}
	return true
}

func MakeBool(data BoolData) Bool { return Bool{data: data} }

func (b Bool) Value() bool {
	if b.data == nil {
		return false
	}
	return b.data.Value()
}

func (b Bool) Set(value bool) {
	if b.data != nil && b.data.Value() != value {
		b.data.SetValue(value)
	}
}

func (b Bool) Toggle() { b.Set(!b.Value()) }

// PlayingBool toggles playback; setting it true starts the engine from the
// current position, false stops it.
func (m *Model) PlayingBool() Bool { return MakeBool((*playingBool)(m)) }

type playingBool Model

func (m *playingBool) Value() bool { return m.clock.Playing() }
func (m *playingBool) SetValue(val bool) {
	if val {
		(*Model)(m).Play()
	} else {
		(*Model)(m).Stop()
	}
}

// MetronomeBool mirrors the engine's metronome flag.
func (m *Model) MetronomeBool() Bool { return MakeBool((*metronomeBool)(m)) }

type metronomeBool Model

func (m *metronomeBool) Value() bool       { return m.d.Metronome }
func (m *metronomeBool) SetValue(val bool) { (*Model)(m).SetMetronome(val) }

// LoopBool toggles looping over the current loop region.
func (m *Model) LoopBool() Bool { return MakeBool((*loopBool)(m)) }

type loopBool Model

func (m *loopBool) Value() bool { return m.d.Loop.Enabled }
func (m *loopBool) SetValue(val bool) {
	loop := m.d.Loop
	loop.Enabled = val
	(*Model)(m).SetLoop(loop)
}

// TrackMuteBool and TrackSoloBool wrap one track's strip toggles.
func (m *Model) TrackMuteBool(trackID string) Bool {
	return MakeBool(trackMuteBool{m: m, trackID: trackID})
}

type trackMuteBool struct {
	m       *Model
	trackID string
}

func (b trackMuteBool) Value() bool {
	if t := b.m.d.Song.TrackByID(b.trackID); t != nil {
		return t.Mute
	}
	return false
}
func (b trackMuteBool) SetValue(val bool) { b.m.MuteTrack(b.trackID, val) }

func (m *Model) TrackSoloBool(trackID string) Bool {
	return MakeBool(trackSoloBool{m: m, trackID: trackID})
}

type trackSoloBool struct {
	m       *Model
	trackID string
}

func (b trackSoloBool) Value() bool {
	if t := b.m.d.Song.TrackByID(b.trackID); t != nil {
		return t.Solo
	}
	return false
}
func (b trackSoloBool) SetValue(val bool) { b.m.SoloTrack(b.trackID, val) }

// StopAction is always enabled; PlayAction only while stopped.
func (m *Model) PlayAction() Action { return MakeAction((*playAction)(m)) }

type playAction Model

func (m *playAction) Enabled() bool { return !m.clock.Playing() }
func (m *playAction) Do()           { (*Model)(m).Play() }

func (m *Model) StopAction() Action { return MakeAction((*stopAction)(m)) }

type stopAction Model

func (m *stopAction) Do() { (*Model)(m).Stop() }
