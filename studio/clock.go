package studio

import (
	"time"

	"github.com/tahtiseq/tahti"
)

type (
	// ClockConfig holds the tunables of the position clock. The defaults
	// come from the values the UI has shipped with; neither has a derivation
	// beyond "looks right at 60 fps", which is why they are configuration
	// and not constants.
	ClockConfig struct {
		// SmoothingFactor is the per-tick exponential convergence rate of
		// the display position toward the extrapolated position, 0..1.
		SmoothingFactor float64
		// DiscontinuityThreshold is the position delta, in beats, above
		// which a snapshot is treated as a seek or loop wrap and snapped to
		// instead of interpolated.
		DiscontinuityThreshold float64
	}

	// PositionClock turns the engine's sparse, irregular position snapshots
	// into a smooth continuously-advancing display position. Between
	// snapshots it dead-reckons from the tempo; on each snapshot it either
	// re-anchors the interpolation or, for large jumps, snaps outright.
	//
	// The clock is not safe for concurrent use; it is owned by the model
	// goroutine and consumers only ever see the scalar DisplayPosition.
	PositionClock struct {
		cfg ClockConfig

		playing bool
		tempo   float64
		loop    tahti.Loop

		seq          uint64
		target       float64
		display      float64
		lastSnapshot float64
		lastUpdate   time.Time
		primed       bool
	}
)

const (
	DefaultSmoothingFactor        = 0.3
	DefaultDiscontinuityThreshold = 1.0

	// how far below the loop end the extrapolation is clamped; the actual
	// wrap always comes from the next authoritative snapshot
	loopEndMargin = 1e-6
)

func NewPositionClock(cfg ClockConfig) *PositionClock {
	if cfg.SmoothingFactor <= 0 || cfg.SmoothingFactor > 1 {
		cfg.SmoothingFactor = DefaultSmoothingFactor
	}
	if cfg.DiscontinuityThreshold <= 0 {
		cfg.DiscontinuityThreshold = DefaultDiscontinuityThreshold
	}
	return &PositionClock{cfg: cfg}
}

// ApplySnapshot feeds one authoritative snapshot into the clock. Returns
// false if the snapshot was dropped as stale. A stale snapshot must not be
// applied at all: re-anchoring on it would visibly walk the playhead
// backwards.
func (c *PositionClock) ApplySnapshot(s tahti.PlaybackSnapshot, now time.Time) bool {
	if c.primed && c.stale(s) {
		return false
	}
	delta := s.PositionBeats - c.lastSnapshot
	if delta < 0 {
		delta = -delta
	}
	if !c.primed || !s.IsPlaying || delta > c.cfg.DiscontinuityThreshold {
		// seek, loop wrap, paused, or the very first snapshot: no
		// interpolation, land exactly on the authoritative position
		c.display = s.PositionBeats
	}
	c.target = s.PositionBeats
	c.lastSnapshot = s.PositionBeats
	c.lastUpdate = now
	c.seq = s.Seq
	c.playing = s.IsPlaying
	c.tempo = s.TempoBPM
	c.loop = s.Loop()
	c.primed = true
	return true
}

// stale implements the monotonicity guard. When the transport stamps
// sequence numbers, those decide; otherwise a snapshot slightly behind the
// previous one while playing forward is taken for a reordered delivery.
// Jumps beyond the discontinuity threshold are never stale: they are seeks.
func (c *PositionClock) stale(s tahti.PlaybackSnapshot) bool {
	if s.Seq != 0 || c.seq != 0 {
		return s.Seq <= c.seq
	}
	if !c.playing || !s.IsPlaying {
		return false
	}
	behind := c.lastSnapshot - s.PositionBeats
	return behind > 0 && behind <= c.cfg.DiscontinuityThreshold
}

// Tick advances the display position by one animation frame. While not
// playing the display holds still, tracking only explicit snapshots and
// scrubs.
func (c *PositionClock) Tick(now time.Time) {
	if !c.playing || !c.primed {
		return
	}
	elapsed := now.Sub(c.lastUpdate)
	expected := c.target + tahti.DurationToBeats(elapsed, c.tempo)
	if c.loop.Enabled && expected >= c.loop.End {
		// never extrapolate through the loop boundary; the wrap arrives as
		// a discontinuity snapshot
		expected = c.loop.End - loopEndMargin
	}
	c.display += (expected - c.display) * c.cfg.SmoothingFactor
}

// Scrub sets the display position directly, bypassing interpolation. Used
// while a drag session targets the playhead; the caller also stops ticking
// the clock for the duration of the gesture.
func (c *PositionClock) Scrub(pos float64) {
	c.display = pos
	c.target = pos
}

func (c *PositionClock) DisplayPosition() float64 { return c.display }
func (c *PositionClock) TargetPosition() float64  { return c.target }
func (c *PositionClock) Playing() bool            { return c.playing }
func (c *PositionClock) Tempo() float64           { return c.tempo }
func (c *PositionClock) Loop() tahti.Loop         { return c.loop }

// Reset forgets the interpolation state, so the next snapshot is applied as
// a snap. Called when playback starts.
func (c *PositionClock) Reset() {
	c.primed = false
	c.seq = 0
}
