package studio_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tahtiseq/tahti"
	"github.com/tahtiseq/tahti/studio"
)

// fakeEngine records command-channel calls and can be told to reject them.
type fakeEngine struct {
	mu      sync.Mutex
	song    tahti.Song
	songErr error
	calls   []string
	fail    map[string]error

	lastMoveClip  string
	lastMoveStart float64
}

func newFakeEngine(song tahti.Song) *fakeEngine {
	return &fakeEngine{song: song, fail: make(map[string]error)}
}

func (e *fakeEngine) record(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, name)
	return e.fail[name]
}

func (e *fakeEngine) callCount(name string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, c := range e.calls {
		if c == name {
			n++
		}
	}
	return n
}

func (e *fakeEngine) Song(context.Context) (tahti.Song, error) {
	if e.songErr != nil {
		return tahti.Song{}, e.songErr
	}
	return e.song.Copy(), nil
}
func (e *fakeEngine) Seek(_ context.Context, pos float64, _ bool) error {
	return e.record("seek")
}
func (e *fakeEngine) SetTempo(context.Context, float64) error     { return e.record("setTempo") }
func (e *fakeEngine) Play(context.Context) error                  { return e.record("play") }
func (e *fakeEngine) Pause(context.Context) error                 { return e.record("pause") }
func (e *fakeEngine) Resume(context.Context) error                { return e.record("resume") }
func (e *fakeEngine) Stop(context.Context) error                  { return e.record("stop") }
func (e *fakeEngine) SetLoop(context.Context, tahti.Loop) error   { return e.record("setLoop") }
func (e *fakeEngine) SetMetronome(context.Context, bool) error    { return e.record("setMetronome") }
func (e *fakeEngine) MoveClip(_ context.Context, clipID string, start float64) error {
	e.mu.Lock()
	e.lastMoveClip, e.lastMoveStart = clipID, start
	e.mu.Unlock()
	return e.record("moveClip")
}
func (e *fakeEngine) ResizeClip(context.Context, string, float64, float64) error {
	return e.record("resizeClip")
}
func (e *fakeEngine) UpdateClip(context.Context, tahti.Clip) error { return e.record("updateClip") }
func (e *fakeEngine) MuteTrack(context.Context, string, bool) error {
	return e.record("muteTrack")
}
func (e *fakeEngine) SoloTrack(context.Context, string, bool) error {
	return e.record("soloTrack")
}
func (e *fakeEngine) SetChannelGain(context.Context, string, float64) error {
	return e.record("setChannelGain")
}
func (e *fakeEngine) SetChannelPan(context.Context, string, float64) error {
	return e.record("setChannelPan")
}

func testSong() tahti.Song {
	return tahti.Song{
		TempoBPM: 120,
		Tracks: []tahti.Track{
			{ID: "t0", Name: "Drums", Clips: []tahti.Clip{{ID: "c0", Name: "Break", Start: 4.0, Duration: 4.0}}},
			{ID: "t1", Name: "Bass", Clips: []tahti.Clip{{ID: "c1", Name: "Line", Start: 0, Duration: 8.0}}},
		},
	}
}

type window struct {
	broker *studio.Broker
	model  *studio.Model
	engine *fakeEngine
	sched  *manualScheduler
}

func newWindow(t *testing.T, id string, bus *studio.MemoryBus, engine *fakeEngine) *window {
	t.Helper()
	broker := studio.NewBroker()
	var repl *studio.Replicator
	if bus != nil {
		var err error
		repl, err = studio.NewReplicator(id, bus, false)
		require.NoError(t, err)
	}
	sched := &manualScheduler{}
	return &window{
		broker: broker,
		model:  studio.NewModel(broker, engine, repl, sched, nil),
		engine: engine,
		sched:  sched,
	}
}

func (w *window) pushSnapshot(s tahti.PlaybackSnapshot) {
	studio.TrySend(w.broker.ToModel, studio.MsgToModel{HasSnapshot: true, Snapshot: s})
	w.model.ProcessPending()
}

func TestModelAppliesSnapshots(t *testing.T) {
	w := newWindow(t, "win-a", nil, newFakeEngine(testSong()))
	require.NoError(t, w.model.Start(context.Background()))

	w.pushSnapshot(tahti.PlaybackSnapshot{
		Seq: 1, PositionBeats: 2.0, TempoBPM: 128, IsPlaying: true,
		LoopEnabled: true, LoopStart: 0, LoopEnd: 16, MetronomeEnabled: true,
	})

	assert.True(t, w.model.Playing())
	assert.Equal(t, 128.0, w.model.TempoBPM())
	assert.True(t, w.model.Metronome())
	assert.Equal(t, tahti.Loop{Enabled: true, Start: 0, End: 16}, w.model.Loop())
	assert.Equal(t, 2.0, w.model.PlayheadPosition())

	// the animation loop is running now: a frame tick advances the display
	w.pushSnapshot(tahti.PlaybackSnapshot{Seq: 2, PositionBeats: 2.5, TempoBPM: 128, IsPlaying: true})
	w.sched.Fire(time.Now())
	w.model.ProcessPending()
	assert.Greater(t, w.model.PlayheadPosition(), 2.0)
}

func TestModelMuteReplicatesToOtherWindows(t *testing.T) {
	bus := studio.NewMemoryBus()
	a := newWindow(t, "win-a", bus, newFakeEngine(testSong()))
	b := newWindow(t, "win-b", bus, newFakeEngine(testSong()))
	require.NoError(t, a.model.Start(context.Background()))
	require.NoError(t, b.model.Start(context.Background()))
	a.model.ProcessPending()
	b.model.ProcessPending()

	a.model.MuteTrack("t0", true)
	b.model.ProcessPending()

	channels := b.model.MixerChannels()
	require.NotEmpty(t, channels)
	assert.Equal(t, "t0", channels[0].TrackID)
	assert.True(t, channels[0].Mute, "mute mirrored to the other window")
	assert.Eventually(t, func() bool { return a.engine.callCount("muteTrack") == 1 },
		time.Second, 5*time.Millisecond)
}

func TestModelSyncHandshake(t *testing.T) {
	bus := studio.NewMemoryBus()
	a := newWindow(t, "win-a", bus, newFakeEngine(testSong()))
	require.NoError(t, a.model.Start(context.Background()))
	a.model.SetChannelGain("t1", 0.5)

	// a window opened later missed the gain publish entirely; its explicit
	// sync request recovers the state
	b := newWindow(t, "win-b", bus, newFakeEngine(testSong()))
	require.NoError(t, b.model.Start(context.Background()))
	a.model.ProcessPending() // a answers the sync request
	b.model.ProcessPending() // b applies the answer

	channels := b.model.MixerChannels()
	require.Len(t, channels, 2)
	assert.Equal(t, 0.5, channels[1].Gain)
}

func TestModelStartRequestsSyncEvenWhenEngineIsDown(t *testing.T) {
	bus := studio.NewMemoryBus()
	a := newWindow(t, "win-a", bus, newFakeEngine(testSong()))
	require.NoError(t, a.model.Start(context.Background()))
	a.model.SetChannelGain("t0", 0.25)

	// the engine being unreachable fails the song fetch but must not keep
	// this window from asking its peers for the shared state
	down := newFakeEngine(testSong())
	down.songErr = errors.New("connection refused")
	b := newWindow(t, "win-b", bus, down)
	require.Error(t, b.model.Start(context.Background()))
	a.model.ProcessPending()
	b.model.ProcessPending()

	channels := b.model.MixerChannels()
	require.Len(t, channels, 2)
	assert.Equal(t, 0.25, channels[0].Gain)
}

func TestModelCommandFailureRaisesAlert(t *testing.T) {
	engine := newFakeEngine(testSong())
	engine.fail["muteTrack"] = errors.New("engine rejected the change")
	w := newWindow(t, "win-a", nil, engine)
	require.NoError(t, w.model.Start(context.Background()))

	w.model.MuteTrack("t0", true)

	assert.Eventually(t, func() bool {
		w.model.ProcessPending()
		found := false
		w.model.Alerts().Iterate(func(a studio.Alert) bool {
			found = a.Name == "CommandFailed"
			return !found
		})
		return found
	}, time.Second, 5*time.Millisecond)

	// the optimistic state is not rolled back on failure
	song := w.model.Song()
	track := song.TrackByID("t0")
	require.NotNil(t, track)
	assert.True(t, track.Mute)
}

func TestModelClipMoveGesture(t *testing.T) {
	w := newWindow(t, "win-a", nil, newFakeEngine(testSong()))
	require.NoError(t, w.model.Start(context.Background()))

	w.model.BeginClipMove("c0")
	w.model.UpdateClipMove("c0", 2.1) // raw 6.1 snaps to 6.0 on the quarter grid
	clip, ok := w.model.ClipView("c0")
	require.True(t, ok)
	assert.Equal(t, 6.0, clip.Start, "view shadows the authoritative value")

	w.model.EndClipMove("c0")
	clip, _ = w.model.ClipView("c0")
	assert.Equal(t, 6.0, clip.Start, "override survives gesture end until the engine confirms")

	assert.Eventually(t, func() bool { return w.engine.callCount("moveClip") == 1 },
		time.Second, 5*time.Millisecond)
	w.engine.mu.Lock()
	moved, start := w.engine.lastMoveClip, w.engine.lastMoveStart
	w.engine.mu.Unlock()
	assert.Equal(t, "c0", moved)
	assert.Equal(t, 6.0, start)

	// the authoritative song catches up; the override retires
	song := testSong()
	song.Tracks[0].Clips[0].Start = 6.0
	w.model.ApplySongState(song)
	clip, _ = w.model.ClipView("c0")
	assert.Equal(t, 6.0, clip.Start)
	assert.Equal(t, studio.EditIdle, w.model.Edits().Phase(studio.ClipStartEntity("c0")))
}

func TestModelScrubOverridesPlayhead(t *testing.T) {
	w := newWindow(t, "win-a", nil, newFakeEngine(testSong()))
	require.NoError(t, w.model.Start(context.Background()))
	w.pushSnapshot(tahti.PlaybackSnapshot{Seq: 1, PositionBeats: 2.0, TempoBPM: 120, IsPlaying: true})

	w.model.BeginScrub()
	w.model.UpdateScrub(3.3)
	assert.Equal(t, 3.3, w.model.PlayheadPosition())

	// snapshots keep arriving during the drag but must not move the view
	w.pushSnapshot(tahti.PlaybackSnapshot{Seq: 2, PositionBeats: 2.4, TempoBPM: 120, IsPlaying: true})
	assert.Equal(t, 3.3, w.model.PlayheadPosition())

	w.model.EndScrub(false)
	assert.Equal(t, 3.3, w.model.PlayheadPosition(), "still overridden until the engine seeks")
	assert.Eventually(t, func() bool { return w.engine.callCount("seek") == 1 },
		time.Second, 5*time.Millisecond)

	w.pushSnapshot(tahti.PlaybackSnapshot{Seq: 3, PositionBeats: 3.3, TempoBPM: 120, IsPlaying: true})
	assert.Equal(t, studio.EditIdle, w.model.Edits().Phase(studio.PlayheadEntity))
	assert.Equal(t, 3.3, w.model.PlayheadPosition())
}
