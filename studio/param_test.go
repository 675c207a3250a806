package studio_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tahtiseq/tahti"
	"github.com/tahtiseq/tahti/studio"
)

func TestPlayingBoolDrivesTransport(t *testing.T) {
	w := newWindow(t, "win-a", nil, newFakeEngine(testSong()))
	require.NoError(t, w.model.Start(context.Background()))

	playing := w.model.PlayingBool()
	assert.False(t, playing.Value())

	playing.Set(true)
	assert.Eventually(t, func() bool { return w.engine.callCount("play") == 1 },
		time.Second, 5*time.Millisecond)

	w.pushSnapshot(tahti.PlaybackSnapshot{Seq: 1, TempoBPM: 120, IsPlaying: true})
	assert.True(t, playing.Value())

	// setting a bool to its current value must not issue a command
	playing.Set(true)
	assert.Never(t, func() bool { return w.engine.callCount("play") > 1 },
		100*time.Millisecond, 10*time.Millisecond)

	playing.Set(false)
	assert.Eventually(t, func() bool { return w.engine.callCount("stop") == 1 },
		time.Second, 5*time.Millisecond)
}

func TestPlayActionEnabledOnlyWhileStopped(t *testing.T) {
	w := newWindow(t, "win-a", nil, newFakeEngine(testSong()))
	require.NoError(t, w.model.Start(context.Background()))

	play := w.model.PlayAction()
	stop := w.model.StopAction()
	assert.True(t, play.Enabled())
	assert.True(t, stop.Enabled(), "stop has no enabler, it is always allowed")

	play.Do()
	assert.Eventually(t, func() bool { return w.engine.callCount("play") == 1 },
		time.Second, 5*time.Millisecond)
	w.pushSnapshot(tahti.PlaybackSnapshot{Seq: 1, TempoBPM: 120, IsPlaying: true})

	assert.False(t, play.Enabled())
	play.Do() // disabled, must not reach the engine
	assert.Never(t, func() bool { return w.engine.callCount("play") > 1 },
		100*time.Millisecond, 10*time.Millisecond)

	stop.Do()
	assert.Eventually(t, func() bool { return w.engine.callCount("stop") == 1 },
		time.Second, 5*time.Millisecond)
}

func TestMetronomeAndLoopBools(t *testing.T) {
	w := newWindow(t, "win-a", nil, newFakeEngine(testSong()))
	require.NoError(t, w.model.Start(context.Background()))

	metronome := w.model.MetronomeBool()
	assert.False(t, metronome.Value())
	metronome.Toggle()
	assert.True(t, metronome.Value(), "toggle applies optimistically")
	assert.Eventually(t, func() bool { return w.engine.callCount("setMetronome") == 1 },
		time.Second, 5*time.Millisecond)

	loop := w.model.LoopBool()
	assert.False(t, loop.Value())
	loop.Set(true)
	assert.True(t, loop.Value())
	assert.Eventually(t, func() bool { return w.engine.callCount("setLoop") == 1 },
		time.Second, 5*time.Millisecond)
}

func TestTrackStripBools(t *testing.T) {
	w := newWindow(t, "win-a", nil, newFakeEngine(testSong()))
	require.NoError(t, w.model.Start(context.Background()))

	mute := w.model.TrackMuteBool("t0")
	solo := w.model.TrackSoloBool("t1")
	assert.False(t, mute.Value())
	assert.False(t, solo.Value())

	mute.Set(true)
	solo.Set(true)
	assert.True(t, mute.Value())
	assert.True(t, solo.Value())
	assert.Eventually(t, func() bool {
		return w.engine.callCount("muteTrack") == 1 && w.engine.callCount("soloTrack") == 1
	}, time.Second, 5*time.Millisecond)

	missing := w.model.TrackMuteBool("nope")
	assert.False(t, missing.Value(), "unknown track reads as unmuted")
}

func TestActionWithoutDoerIsDisabled(t *testing.T) {
	var a studio.Action
	assert.False(t, a.Enabled())
	a.Do() // no doer, must be a no-op
}
