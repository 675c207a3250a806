package studio

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tahtiseq/tahti"
)

// Replication channel keys. The set is open: feature areas add keys without
// touching this file, these are just the ones the core panels use. State
// that must stay jointly consistent is encoded under a single key, because
// no ordering holds across keys.
const (
	ChannelMixerChannels = "mixer.channels"
	ChannelMixerMaster   = "mixer.master"
	ChannelEffectChains  = "effects.chains"
	ChannelActivityFeed  = "activity.feed"
	ChannelSyncRequest   = "sync.request"
	ChannelSyncState     = "sync.state"
)

// PlayheadEntity is the edit-tracker entity id of the playhead scrub handle.
const PlayheadEntity = "playhead"

// Entity ids for the draggable scalar values of the domain. The edit
// tracker works on scalars, so a clip contributes one entity per editable
// quantity.
func ClipStartEntity(clipID string) string    { return "clip:" + clipID + ":start" }
func ClipDurationEntity(clipID string) string { return "clip:" + clipID + ":duration" }

const (
	LoopStartEntity = "loop:start"
	LoopEndEntity   = "loop:end"
)

type (
	// modelData is the replica of the shared domain state one window holds.
	modelData struct {
		Song      tahti.Song
		Channels  []tahti.MixerChannel
		Master    tahti.MixerChannel
		Effects   []tahti.EffectChain
		Activity  []tahti.ActivityEntry
		Loop      tahti.Loop
		Metronome bool
	}

	// Model is the explicit state container for one window: it owns the
	// replica of the domain state, the position clock, the optimistic edit
	// tracker and the window's end of the replicator. It is constructed
	// once per window and passed by reference to every consumer; there are
	// no ambient globals. All methods must be called from the goroutine
	// that drains the broker, normally via Run or ProcessPending.
	Model struct {
		broker *Broker
		clock  *PositionClock
		edits  *EditTracker
		repl   *Replicator
		engine EngineClient
		sched  FrameScheduler
		loop   *frameLoop
		log    *zap.Logger

		d      modelData
		alerts alertList

		gridDenom   int
		snapEnabled bool

		subscribers []func()
		unsubs      []func()

		cmdTimeout time.Duration
	}

	// replicatedMsg carries one received envelope from the transport
	// goroutine into the model goroutine.
	replicatedMsg struct {
		channelKey string
		payload    json.RawMessage
	}

	commandFailedMsg struct {
		name string
		err  error
	}

	frameTickMsg struct {
		now time.Time
	}

	// syncState is the whole cross-window state, published in response to a
	// sync request so windows opened after earlier publishes can catch up.
	syncState struct {
		Channels []tahti.MixerChannel  `json:"channels"`
		Master   tahti.MixerChannel    `json:"master"`
		Effects  []tahti.EffectChain   `json:"effects"`
		Activity []tahti.ActivityEntry `json:"activity"`
	}

	syncRequest struct {
		WindowID string `json:"windowId"`
	}

	// EngineDisconnected is sent by the engine transport when the push
	// channel drops; EngineConnected when it (re)establishes.
	EngineConnected    struct{}
	EngineDisconnected struct{ Err error }
)

const defaultCommandTimeout = 5 * time.Second
const maxActivityEntries = 200

func NewModel(broker *Broker, engine EngineClient, repl *Replicator, sched FrameScheduler, log *zap.Logger) *Model {
	if log == nil {
		log = zap.NewNop()
	}
	m := &Model{
		broker:      broker,
		clock:       NewPositionClock(ClockConfig{}),
		edits:       NewEditTracker(0),
		repl:        repl,
		engine:      engine,
		sched:       sched,
		log:         log,
		gridDenom:   4,
		snapEnabled: true,
		cmdTimeout:  defaultCommandTimeout,
	}
	m.loop = newFrameLoop(sched, func(now time.Time) {
		TrySend(broker.ToModel, MsgToModel{Data: &frameTickMsg{now: now}})
	})
	if repl != nil {
		for _, key := range []string{
			ChannelMixerChannels, ChannelMixerMaster, ChannelEffectChains,
			ChannelActivityFeed, ChannelSyncRequest, ChannelSyncState,
		} {
			key := key
			unsub := repl.Subscribe(key, func(payload json.RawMessage) {
				TrySend(broker.ToModel, MsgToModel{Data: &replicatedMsg{channelKey: key, payload: payload}})
			})
			m.unsubs = append(m.unsubs, unsub)
		}
	}
	return m
}

// Start asks the other windows of the session for the current shared state
// and fetches the authoritative song from the engine. A window opened after a
// publish never receives that publish, so joining always begins with this
// explicit request instead of trusting replication alone. The request goes
// out before the song fetch; shared state must still reach a window that
// opens while the engine is down.
func (m *Model) Start(ctx context.Context) error {
	if m.repl != nil {
		if err := m.repl.Publish(ChannelSyncRequest, syncRequest{WindowID: m.repl.WindowID()}); err != nil {
			m.log.Warn("sync request failed", zap.Error(err))
		}
	}
	if m.engine != nil {
		song, err := m.engine.Song(ctx)
		if err != nil {
			return fmt.Errorf("fetching song: %w", err)
		}
		m.d.Song = song
		m.rebuildChannels()
	}
	m.notify()
	return nil
}

// Run drains the broker until the context is done. This is the model
// goroutine's main loop.
func (m *Model) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			m.Close()
			return
		case msg := <-m.broker.ToModel:
			m.handle(msg)
			m.notify()
		}
	}
}

// ProcessPending drains everything currently queued without blocking.
// Exposed so hosts embedding the model in their own event loop (and the
// tests) can pump it deterministically.
func (m *Model) ProcessPending() {
	for {
		select {
		case msg := <-m.broker.ToModel:
			m.handle(msg)
		default:
			m.notify()
			return
		}
	}
}

func (m *Model) Close() {
	m.loop.Stop()
	for _, unsub := range m.unsubs {
		unsub()
	}
	if m.repl != nil {
		m.repl.Close()
	}
	TrySend(m.broker.CloseEngine, struct{}{})
}

func (m *Model) handle(msg MsgToModel) {
	if msg.Reset {
		m.clock.Reset()
	}
	if msg.HasSnapshot {
		m.applySnapshot(msg.Snapshot)
	}
	switch data := msg.Data.(type) {
	case nil:
	case *frameTickMsg:
		m.clock.Tick(data.now)
	case *replicatedMsg:
		m.applyReplicated(data)
	case *commandFailedMsg:
		m.log.Warn("engine command failed", zap.String("command", data.name), zap.Error(data.err))
		m.alerts.add(Alert{
			Name:     "CommandFailed",
			Priority: Error,
			Message:  fmt.Sprintf("%s: %v", data.name, data.err),
		})
	case *EngineConnected:
		m.alerts.dismiss("EngineOffline")
	case *EngineDisconnected:
		m.alerts.add(Alert{Name: "EngineOffline", Priority: Warning, Message: "engine connection lost"})
	}
}

func (m *Model) applySnapshot(s tahti.PlaybackSnapshot) {
	if !m.clock.ApplySnapshot(s, time.Now()) {
		return // stale, must not regress anything
	}
	m.d.Song.TempoBPM = s.TempoBPM
	m.d.Loop = s.Loop()
	m.d.Metronome = s.MetronomeEnabled
	// snapshots are the authoritative source that retires pending edits on
	// the playhead and the loop bounds
	m.edits.Observe(PlayheadEntity, s.PositionBeats)
	m.edits.Observe(LoopStartEntity, s.LoopStart)
	m.edits.Observe(LoopEndEntity, s.LoopEnd)
	m.updatePlayheadLoop()
}

// ApplySongState feeds an authoritative copy of the song into the model,
// e.g. after a feature panel refetches it. It retires converged pending
// clip edits.
func (m *Model) ApplySongState(song tahti.Song) {
	m.d.Song = song
	for _, t := range song.Tracks {
		for _, c := range t.Clips {
			m.edits.Observe(ClipStartEntity(c.ID), c.Start)
			m.edits.Observe(ClipDurationEntity(c.ID), c.Duration)
		}
	}
	m.rebuildChannels()
}

func (m *Model) applyReplicated(msg *replicatedMsg) {
	switch msg.channelKey {
	case ChannelMixerChannels:
		var channels []tahti.MixerChannel
		if json.Unmarshal(msg.payload, &channels) == nil {
			m.d.Channels = channels
		}
	case ChannelMixerMaster:
		var master tahti.MixerChannel
		if json.Unmarshal(msg.payload, &master) == nil {
			m.d.Master = master
		}
	case ChannelEffectChains:
		var effects []tahti.EffectChain
		if json.Unmarshal(msg.payload, &effects) == nil {
			m.d.Effects = effects
		}
	case ChannelActivityFeed:
		var feed []tahti.ActivityEntry
		if json.Unmarshal(msg.payload, &feed) == nil {
			m.d.Activity = feed
		}
	case ChannelSyncRequest:
		// any window may answer; every answer carries the whole state, so
		// multiple answers are idempotent under last-write-wins
		m.publishSyncState()
	case ChannelSyncState:
		var state syncState
		if json.Unmarshal(msg.payload, &state) == nil {
			m.d.Channels = state.Channels
			m.d.Master = state.Master
			m.d.Effects = state.Effects
			m.d.Activity = state.Activity
		}
	}
}

func (m *Model) publishSyncState() {
	if m.repl == nil {
		return
	}
	err := m.repl.Publish(ChannelSyncState, syncState{
		Channels: m.d.Channels,
		Master:   m.d.Master,
		Effects:  m.d.Effects,
		Activity: m.d.Activity,
	})
	if err != nil {
		m.log.Warn("sync state publish failed", zap.Error(err))
	}
}

func (m *Model) publish(channelKey string, payload any) {
	if m.repl == nil {
		return
	}
	if err := m.repl.Publish(channelKey, payload); err != nil {
		m.log.Warn("replication publish failed", zap.String("channel", channelKey), zap.Error(err))
	}
}

// command issues an engine call off the model goroutine, reporting failure
// back as a message. The optimistic state is deliberately left alone on
// failure: the override stays visible until the next authoritative value
// converges or replaces it, and the user sees an alert instead of a
// snap-back.
func (m *Model) command(name string, call func(ctx context.Context) error) {
	if m.engine == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), m.cmdTimeout)
		defer cancel()
		if err := call(ctx); err != nil {
			TrySend(m.broker.ToModel, MsgToModel{Data: &commandFailedMsg{name: name, err: err}})
		}
	}()
}

// the playhead animation loop runs only while the engine plays and no
// gesture holds the playhead; a drag or a pause tears it down, and starting
// it invalidates any stale scheduled tick first
func (m *Model) updatePlayheadLoop() {
	shouldRun := m.clock.Playing() && m.edits.Phase(PlayheadEntity) != EditEditing
	switch {
	case shouldRun && !m.loop.Running():
		m.loop.Start()
	case !shouldRun && m.loop.Running():
		m.loop.Stop()
	}
}

func (m *Model) rebuildChannels() {
	channels := make([]tahti.MixerChannel, 0, len(m.d.Song.Tracks))
	for _, t := range m.d.Song.Tracks {
		ch := tahti.MixerChannel{TrackID: t.ID, Name: t.Name, Gain: 1, Mute: t.Mute, Solo: t.Solo}
		for _, old := range m.d.Channels {
			if old.TrackID == t.ID {
				ch.Gain, ch.Pan, ch.Level = old.Gain, old.Pan, old.Level
				break
			}
		}
		channels = append(channels, ch)
	}
	m.d.Channels = channels
	if m.d.Master.Name == "" {
		m.d.Master = tahti.MixerChannel{TrackID: "master", Name: "Master", Gain: 1}
	}
}

func (m *Model) logActivity(format string, args ...any) {
	entry := tahti.ActivityEntry{
		Message: fmt.Sprintf(format, args...),
		UnixMs:  time.Now().UnixMilli(),
	}
	if m.repl != nil {
		entry.WindowID = m.repl.WindowID()
	}
	m.d.Activity = append(m.d.Activity, entry)
	if len(m.d.Activity) > maxActivityEntries {
		m.d.Activity = m.d.Activity[len(m.d.Activity)-maxActivityEntries:]
	}
	m.publish(ChannelActivityFeed, m.d.Activity)
}

// OnChange registers a subscriber notified after every applied mutation or
// message batch, on the model goroutine. Returns an unsubscribe function.
func (m *Model) OnChange(fn func()) func() {
	m.subscribers = append(m.subscribers, fn)
	i := len(m.subscribers) - 1
	return func() { m.subscribers[i] = nil }
}

func (m *Model) notify() {
	for _, fn := range m.subscribers {
		if fn != nil {
			fn()
		}
	}
}

// read accessors; consumers get copies or scalars, never the model's slices

func (m *Model) PlayheadPosition() float64 {
	if v, ok := m.edits.CurrentOverride(PlayheadEntity); ok {
		return v
	}
	return m.clock.DisplayPosition()
}

func (m *Model) Playing() bool             { return m.clock.Playing() }
func (m *Model) TempoBPM() float64         { return m.d.Song.TempoBPM }
func (m *Model) Metronome() bool           { return m.d.Metronome }
func (m *Model) Song() tahti.Song          { return m.d.Song.Copy() }
func (m *Model) Clock() *PositionClock     { return m.clock }
func (m *Model) Edits() *EditTracker       { return m.edits }
func (m *Model) Alerts() *alertList        { return &m.alerts }
func (m *Model) Activity() []tahti.ActivityEntry {
	return append([]tahti.ActivityEntry(nil), m.d.Activity...)
}
func (m *Model) MixerChannels() []tahti.MixerChannel {
	return append([]tahti.MixerChannel(nil), m.d.Channels...)
}
func (m *Model) MasterChannel() tahti.MixerChannel { return m.d.Master }
func (m *Model) EffectChains() []tahti.EffectChain {
	return append([]tahti.EffectChain(nil), m.d.Effects...)
}

// Loop returns the loop region with any in-flight loop-bound drags applied.
func (m *Model) Loop() tahti.Loop {
	loop := m.d.Loop
	if v, ok := m.edits.CurrentOverride(LoopStartEntity); ok {
		loop.Start = v
	}
	if v, ok := m.edits.CurrentOverride(LoopEndEntity); ok {
		loop.End = v
	}
	return loop
}

// ClipView returns the clip as it should be rendered: authoritative values
// shadowed by any active or pending optimistic edit.
func (m *Model) ClipView(clipID string) (tahti.Clip, bool) {
	_, clip := m.d.Song.ClipByID(clipID)
	if clip == nil {
		return tahti.Clip{}, false
	}
	view := *clip
	if v, ok := m.edits.CurrentOverride(ClipStartEntity(clipID)); ok {
		view.Start = v
	}
	if v, ok := m.edits.CurrentOverride(ClipDurationEntity(clipID)); ok {
		view.Duration = v
	}
	return view, true
}

// SetGrid configures snapping; denom is grid lines per beat.
func (m *Model) SetGrid(denom int, enabled bool) {
	m.gridDenom = denom
	m.snapEnabled = enabled
}

// Snap resolves a raw drag value to the grid when snapping is on.
func (m *Model) Snap(beats float64) float64 {
	if !m.snapEnabled {
		return beats
	}
	return tahti.SnapToGrid(beats, m.gridDenom)
}
