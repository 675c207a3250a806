package studio

import (
	"context"

	"github.com/tahtiseq/tahti"
)

// Transport and mixer mutations. Each of these applies the edit to the
// local replica first (so the window is immediately consistent with what
// the user did), mirrors the affected slice to the other windows, and then
// issues the engine command off the model goroutine. The engine's own
// confirmation arrives later through the push channel or a song refetch.

func (m *Model) Play() {
	m.clock.Reset()
	m.command("play", func(ctx context.Context) error { return m.engine.Play(ctx) })
}

func (m *Model) Pause() {
	m.command("pause", func(ctx context.Context) error { return m.engine.Pause(ctx) })
}

func (m *Model) Resume() {
	m.command("resume", func(ctx context.Context) error { return m.engine.Resume(ctx) })
}

func (m *Model) Stop() {
	m.command("stop", func(ctx context.Context) error { return m.engine.Stop(ctx) })
}

// Seek jumps the playhead. triggerAudio tells the engine to retrigger notes
// sounding at the target position instead of waiting for the next ones.
func (m *Model) Seek(positionBeats float64, triggerAudio bool) {
	m.clock.Scrub(positionBeats)
	m.command("seek", func(ctx context.Context) error {
		return m.engine.Seek(ctx, positionBeats, triggerAudio)
	})
}

func (m *Model) SetTempo(bpm float64) {
	if bpm <= 0 {
		return
	}
	m.d.Song.TempoBPM = bpm
	m.logActivity("tempo set to %g BPM", bpm)
	m.command("setTempo", func(ctx context.Context) error { return m.engine.SetTempo(ctx, bpm) })
}

func (m *Model) SetLoop(loop tahti.Loop) {
	m.d.Loop = loop
	m.command("setLoop", func(ctx context.Context) error { return m.engine.SetLoop(ctx, loop) })
}

func (m *Model) SetMetronome(enabled bool) {
	m.d.Metronome = enabled
	m.command("setMetronome", func(ctx context.Context) error {
		return m.engine.SetMetronome(ctx, enabled)
	})
}

func (m *Model) MuteTrack(trackID string, mute bool) {
	if t := m.d.Song.TrackByID(trackID); t != nil {
		t.Mute = mute
	}
	for i := range m.d.Channels {
		if m.d.Channels[i].TrackID == trackID {
			m.d.Channels[i].Mute = mute
		}
	}
	m.publish(ChannelMixerChannels, m.d.Channels)
	m.command("muteTrack", func(ctx context.Context) error {
		return m.engine.MuteTrack(ctx, trackID, mute)
	})
}

func (m *Model) SoloTrack(trackID string, solo bool) {
	if t := m.d.Song.TrackByID(trackID); t != nil {
		t.Solo = solo
	}
	for i := range m.d.Channels {
		if m.d.Channels[i].TrackID == trackID {
			m.d.Channels[i].Solo = solo
		}
	}
	m.publish(ChannelMixerChannels, m.d.Channels)
	m.command("soloTrack", func(ctx context.Context) error {
		return m.engine.SoloTrack(ctx, trackID, solo)
	})
}

func (m *Model) SetChannelGain(trackID string, gain float64) {
	if trackID == m.d.Master.TrackID {
		m.d.Master.Gain = gain
		m.publish(ChannelMixerMaster, m.d.Master)
	} else {
		for i := range m.d.Channels {
			if m.d.Channels[i].TrackID == trackID {
				m.d.Channels[i].Gain = gain
			}
		}
		m.publish(ChannelMixerChannels, m.d.Channels)
	}
	m.command("setChannelGain", func(ctx context.Context) error {
		return m.engine.SetChannelGain(ctx, trackID, gain)
	})
}

func (m *Model) SetChannelPan(trackID string, pan float64) {
	if trackID == m.d.Master.TrackID {
		m.d.Master.Pan = pan
		m.publish(ChannelMixerMaster, m.d.Master)
	} else {
		for i := range m.d.Channels {
			if m.d.Channels[i].TrackID == trackID {
				m.d.Channels[i].Pan = pan
			}
		}
		m.publish(ChannelMixerChannels, m.d.Channels)
	}
	m.command("setChannelPan", func(ctx context.Context) error {
		return m.engine.SetChannelPan(ctx, trackID, pan)
	})
}

// SetEffectChains replaces the whole effect-chain slice. Effects are edited
// by their own panel; the core only mirrors the result to other windows.
func (m *Model) SetEffectChains(chains []tahti.EffectChain) {
	m.d.Effects = chains
	m.publish(ChannelEffectChains, m.d.Effects)
}

// UpdateClip pushes a full clip edit (rename, gain) to the engine and the
// local replica, without any gesture involved.
func (m *Model) UpdateClip(clip tahti.Clip) {
	if _, c := m.d.Song.ClipByID(clip.ID); c != nil {
		*c = clip
	}
	m.logActivity("updated clip %s", clip.Name)
	m.command("updateClip", func(ctx context.Context) error { return m.engine.UpdateClip(ctx, clip) })
}
