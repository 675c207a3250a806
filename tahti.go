// Package tahti contains the domain types for the tahti sequencer front-end:
// songs, tracks, clips, mixer channels and playback snapshots, together with
// the beat arithmetic used everywhere in the UI. The package is pure data and
// math; all goroutines, transports and mutable state live in the studio
// package and below.
package tahti

type (
	// Song is the arrangement being edited: an ordered list of tracks, each
	// holding clips positioned on a shared beat axis, plus the tempo the song
	// defaults to when the engine has not reported one yet. The engine owns
	// the authoritative copy; the UI holds a replica that is updated from
	// engine snapshots and optimistically from local edits.
	Song struct {
		TempoBPM float64 `yaml:"tempoBpm" json:"tempoBpm"`
		Tracks   []Track `yaml:"tracks" json:"tracks"`
	}

	// Track is one horizontal lane in the timeline. Mute and Solo mirror the
	// engine state; they are edited through commands, never written directly
	// by views.
	Track struct {
		ID    string `yaml:"id" json:"id"`
		Name  string `yaml:"name" json:"name"`
		Mute  bool   `yaml:"mute,omitempty" json:"mute"`
		Solo  bool   `yaml:"solo,omitempty" json:"solo"`
		Clips []Clip `yaml:"clips" json:"clips"`
	}

	// Clip is a region of audio or notes on a track. Start and Duration are
	// in beats; these two fields are the quantities a user drags, so they are
	// the ones the optimistic edit tracker shadows.
	Clip struct {
		ID       string  `yaml:"id" json:"id"`
		Name     string  `yaml:"name" json:"name"`
		Start    float64 `yaml:"start" json:"start"`
		Duration float64 `yaml:"duration" json:"duration"`
		Gain     float64 `yaml:"gain,omitempty" json:"gain,omitempty"`
	}

	// MixerChannel is the strip state for one track plus the master. Gain is
	// linear (1.0 = unity), Pan is -1..1.
	MixerChannel struct {
		TrackID string  `json:"trackId"`
		Name    string  `json:"name"`
		Gain    float64 `json:"gain"`
		Pan     float64 `json:"pan"`
		Mute    bool    `json:"mute"`
		Solo    bool    `json:"solo"`
		Level   float64 `json:"level"` // last reported meter level, 0..1
	}

	// EffectChain is the ordered list of effect slots on one channel.
	EffectChain struct {
		TrackID string       `json:"trackId"`
		Effects []EffectSlot `json:"effects"`
	}

	EffectSlot struct {
		ID      string             `json:"id"`
		Type    string             `json:"type"`
		Enabled bool               `json:"enabled"`
		Params  map[string]float64 `json:"params,omitempty"`
	}

	// ActivityEntry is one row of the shared activity feed ("moved clip x",
	// "tempo set to 128"), replicated so every window shows the same log.
	ActivityEntry struct {
		WindowID string `json:"windowId"`
		Message  string `json:"message"`
		UnixMs   int64  `json:"unixMs"`
	}
)

// TrackByID returns a pointer to the track with the given id, or nil.
func (s *Song) TrackByID(id string) *Track {
	for i := range s.Tracks {
		if s.Tracks[i].ID == id {
			return &s.Tracks[i]
		}
	}
	return nil
}

// ClipByID returns the track index and a pointer to the clip with the given
// id, or (-1, nil) when no such clip exists.
func (s *Song) ClipByID(id string) (int, *Clip) {
	for i := range s.Tracks {
		for j := range s.Tracks[i].Clips {
			if s.Tracks[i].Clips[j].ID == id {
				return i, &s.Tracks[i].Clips[j]
			}
		}
	}
	return -1, nil
}

// Copy makes a deep copy of the song, so a view can hold a version that does
// not alias the model's slices.
func (s *Song) Copy() Song {
	tracks := make([]Track, len(s.Tracks))
	for i, t := range s.Tracks {
		tracks[i] = t.Copy()
	}
	return Song{TempoBPM: s.TempoBPM, Tracks: tracks}
}

func (t *Track) Copy() Track {
	clips := make([]Clip, len(t.Clips))
	copy(clips, t.Clips)
	ret := *t
	ret.Clips = clips
	return ret
}

// End returns the beat position one past the last beat of the clip.
func (c Clip) End() float64 {
	return c.Start + c.Duration
}
