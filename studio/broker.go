// Package studio implements the per-window presentation core of the tahti
// sequencer: the broker that routes messages between the engine transports
// and the model, the dead-reckoned position clock, the optimistic edit
// tracker, cross-window state replication and linked scrolling. One Model is
// constructed per window; all of its state is confined to the goroutine that
// runs it.
package studio

import (
	"time"

	"github.com/tahtiseq/tahti"
)

type (
	// Broker is the centralized message plumbing for one window. The engine
	// transport and the replicator push into ToModel; engine-bound commands
	// travel the other way as direct request/response calls, so there is no
	// channel toward the engine. ToModel is buffered and all sends to it are
	// non-blocking, so a slow or stuck model can never deadlock a transport
	// goroutine; under backpressure the oldest information is simply
	// superseded by the next message.
	//
	// For closing goroutines there is a pair of channels per goroutine:
	// CloseXXX has capacity 1, so requesting a close never blocks and a
	// duplicate request is safely dropped. FinishedXXX is never sent to,
	// only closed, so waiting for "<-FinishedXXX" can be combined with a
	// timeout to avoid deadlocks during teardown.
	Broker struct {
		ToModel chan MsgToModel

		CloseEngine    chan struct{}
		FinishedEngine chan struct{}
	}

	// MsgToModel is a message sent to the model goroutine. The snapshot is
	// not boxed because it is by far the most frequent payload; everything
	// infrequent travels boxed in Data. Casting pointer types to any is
	// cheap, so infrequent messages are passed as pointers.
	MsgToModel struct {
		HasSnapshot bool
		Snapshot    tahti.PlaybackSnapshot
		Reset       bool // the snapshot stream restarted, so interpolation state must too

		Data any
	}
)

func NewBroker() *Broker {
	return &Broker{
		ToModel:        make(chan MsgToModel, 1024),
		CloseEngine:    make(chan struct{}, 1),
		FinishedEngine: make(chan struct{}),
	}
}

// TrySend sends a value to a channel if it is not full. It is guaranteed to
// be non-blocking. Returns true if the value was sent.
func TrySend[T any](c chan<- T, v T) bool {
	select {
	case c <- v:
	default:
		return false
	}
	return true
}

// TimeoutReceive blocks until a value is received from the channel or until
// the timeout elapses. ok is false on timeout or if the channel is closed.
func TimeoutReceive[T any](c <-chan T, t time.Duration) (v T, ok bool) {
	select {
	case v, ok = <-c:
		return v, ok
	case <-time.After(t):
		return v, false
	}
}
