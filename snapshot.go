package tahti

type (
	// PlaybackSnapshot is one authoritative transport update pushed by the
	// engine. Snapshots arrive on the engine's own cadence, not on a fixed
	// period; the client treats them as latest-value and never acknowledges.
	// Seq is stamped by the transport in arrival order so late or reordered
	// snapshots can be dropped before they regress the display clock.
	PlaybackSnapshot struct {
		Seq              uint64       `json:"seq"`
		PositionBeats    float64      `json:"positionBeats"`
		TempoBPM         float64      `json:"tempoBpm"`
		IsPlaying        bool         `json:"isPlaying"`
		MetronomeEnabled bool         `json:"metronomeEnabled"`
		LoopEnabled      bool         `json:"loopEnabled"`
		LoopStart        float64      `json:"loopStart"`
		LoopEnd          float64      `json:"loopEnd"`
		ActiveNotes      []ActiveNote `json:"activeNotes,omitempty"`
	}

	// ActiveNote is a note currently sounding in the engine, used by views
	// that highlight playing cells.
	ActiveNote struct {
		TrackID string `json:"trackId"`
		Note    int    `json:"note"`
	}

	// Loop is the looped region of the song; the zero value means no loop.
	Loop struct {
		Enabled bool    `json:"enabled"`
		Start   float64 `json:"start"`
		End     float64 `json:"end"`
	}
)

// Loop returns the snapshot's loop region as a Loop value.
func (s PlaybackSnapshot) Loop() Loop {
	return Loop{Enabled: s.LoopEnabled, Start: s.LoopStart, End: s.LoopEnd}
}

// Contains reports whether the position falls inside the loop region.
func (l Loop) Contains(pos float64) bool {
	return l.Enabled && pos >= l.Start && pos < l.End
}
