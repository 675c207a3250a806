package studio

import (
	"encoding/json"
	"fmt"
	"sync"
)

type (
	// Envelope is one replicated message: a named channel, the complete
	// current value of the state slice that channel carries, and the window
	// that published it. Payloads are whole values, never deltas; the last
	// published value wins.
	Envelope struct {
		ChannelKey     string          `json:"channelKey"`
		Payload        json.RawMessage `json:"payload"`
		OriginWindowID string          `json:"originWindowId"`
	}

	// ReplicationTransport is the broadcast primitive the replicator runs
	// on. The only requirement is per-sender FIFO delivery of envelopes to
	// all current subscribers; there is no persistence, no retry and no
	// acknowledgement. A subscriber that was not connected at publish time
	// never sees that envelope.
	ReplicationTransport interface {
		Publish(env Envelope) error
		Subscribe(fn func(Envelope)) (unsubscribe func(), err error)
	}

	// Handler receives the payload of one replicated message. It runs on
	// the transport's delivery goroutine; handlers that touch model state
	// must forward into the model's loop instead of mutating directly.
	Handler func(payload json.RawMessage)

	// Replicator mirrors slices of application state across the windows of
	// one session over a named-channel publish/subscribe surface. Channels
	// are logically independent: no ordering holds across two channel keys,
	// so state that must stay jointly consistent belongs under one key.
	Replicator struct {
		windowID  string
		transport ReplicationTransport
		echoSelf  bool

		mu     sync.Mutex
		subs   map[string]map[int]Handler
		nextID int
		unsub  func()
	}

	// MemoryBus is the in-process ReplicationTransport, used for windows
	// hosted in one process and throughout the tests. Delivery is
	// synchronous on the publisher's goroutine, which trivially preserves
	// per-sender FIFO order.
	MemoryBus struct {
		mu     sync.Mutex
		subs   map[int]func(Envelope)
		nextID int
	}
)

// NewReplicator connects a replicator for the given window to the transport.
// If echoSelf is true the window's own publishes are delivered back to its
// subscribers as well.
func NewReplicator(windowID string, transport ReplicationTransport, echoSelf bool) (*Replicator, error) {
	r := &Replicator{
		windowID:  windowID,
		transport: transport,
		echoSelf:  echoSelf,
		subs:      make(map[string]map[int]Handler),
	}
	unsub, err := transport.Subscribe(r.deliver)
	if err != nil {
		return nil, fmt.Errorf("subscribing to replication transport: %w", err)
	}
	r.unsub = unsub
	return r, nil
}

func (r *Replicator) WindowID() string { return r.windowID }

// Publish sends the complete current value of one state slice to every
// window of the session. Delivery is at-most-once and unacknowledged; the
// publisher cannot know whether every window applied it, and does not need
// to, because every publish carries the whole value.
func (r *Replicator) Publish(channelKey string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling payload for %q: %w", channelKey, err)
	}
	env := Envelope{ChannelKey: channelKey, Payload: raw, OriginWindowID: r.windowID}
	if err := r.transport.Publish(env); err != nil {
		return fmt.Errorf("publishing to %q: %w", channelKey, err)
	}
	return nil
}

// Subscribe registers a handler for one channel key and returns a function
// that removes it. Messages published before the subscription are gone.
func (r *Replicator) Subscribe(channelKey string, h Handler) (unsubscribe func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.subs[channelKey]
	if !ok {
		m = make(map[int]Handler)
		r.subs[channelKey] = m
	}
	id := r.nextID
	r.nextID++
	m[id] = h
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(m, id)
	}
}

// Close detaches the replicator from the transport.
func (r *Replicator) Close() {
	if r.unsub != nil {
		r.unsub()
		r.unsub = nil
	}
}

func (r *Replicator) deliver(env Envelope) {
	if !r.echoSelf && env.OriginWindowID == r.windowID {
		return
	}
	r.mu.Lock()
	handlers := make([]Handler, 0, len(r.subs[env.ChannelKey]))
	for _, h := range r.subs[env.ChannelKey] {
		handlers = append(handlers, h)
	}
	r.mu.Unlock()
	for _, h := range handlers {
		h(env.Payload)
	}
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[int]func(Envelope))}
}

func (b *MemoryBus) Publish(env Envelope) error {
	b.mu.Lock()
	fns := make([]func(Envelope), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.mu.Unlock()
	for _, fn := range fns {
		fn(env)
	}
	return nil
}

func (b *MemoryBus) Subscribe(fn func(Envelope)) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, id)
	}, nil
}
