package studio

import (
	"context"

	"github.com/tahtiseq/tahti"
)

// EngineClient is the command channel to the external audio engine: plain
// request/response calls with no retry policy beyond what the transport
// provides. The engine never confirms through these calls alone; the
// authoritative state comes back through the push channel and through Song.
type EngineClient interface {
	Song(ctx context.Context) (tahti.Song, error)

	Seek(ctx context.Context, positionBeats float64, triggerAudio bool) error
	SetTempo(ctx context.Context, bpm float64) error
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Stop(ctx context.Context) error
	SetLoop(ctx context.Context, loop tahti.Loop) error
	SetMetronome(ctx context.Context, enabled bool) error

	MoveClip(ctx context.Context, clipID string, startBeats float64) error
	ResizeClip(ctx context.Context, clipID string, startBeats, durationBeats float64) error
	UpdateClip(ctx context.Context, clip tahti.Clip) error
	MuteTrack(ctx context.Context, trackID string, mute bool) error
	SoloTrack(ctx context.Context, trackID string, solo bool) error
	SetChannelGain(ctx context.Context, trackID string, gain float64) error
	SetChannelPan(ctx context.Context, trackID string, pan float64) error
}
