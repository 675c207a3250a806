package main

import (
	"encoding/json"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tahtiseq/tahti"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// mockEngine holds the authoritative transport and song state behind a
// mutex. The real engine schedules audio; this one only advances a position
// counter, which is all the monitor side can observe anyway.
type mockEngine struct {
	log *zap.Logger

	mu        sync.Mutex
	song      tahti.Song
	playing   bool
	position  float64 // beats
	loop      tahti.Loop
	metronome bool
	advanced  time.Time // last time position was advanced
	clients   map[*websocket.Conn]chan tahti.PlaybackSnapshot
}

func newMockEngine(song tahti.Song, log *zap.Logger) *mockEngine {
	if log == nil {
		log = zap.NewNop()
	}
	return &mockEngine{
		log:      log,
		song:     song,
		loop:     tahti.Loop{Enabled: true, Start: 0, End: 16},
		advanced: time.Now(),
		clients:  make(map[*websocket.Conn]chan tahti.PlaybackSnapshot),
	}
}

func (e *mockEngine) router(middlewares ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	for _, mw := range middlewares {
		r.Use(mw)
	}

	r.Get("/health", e.handleHealth)
	r.Get("/song", e.handleSong)
	r.Get("/ws", e.handleWS)

	r.Post("/transport/seek", e.handleSeek)
	r.Post("/transport/tempo", e.handleTempo)
	r.Post("/transport/play", e.handlePlay)
	r.Post("/transport/pause", e.handlePause)
	r.Post("/transport/resume", e.handleResume)
	r.Post("/transport/stop", e.handleStop)
	r.Post("/transport/loop", e.handleLoop)
	r.Post("/transport/metronome", e.handleMetronome)

	r.Post("/clips/{clipID}", e.handleClipUpdate)
	r.Post("/clips/{clipID}/move", e.handleClipMove)
	r.Post("/clips/{clipID}/resize", e.handleClipResize)

	r.Post("/tracks/{trackID}/mute", e.handleTrackMute)
	r.Post("/tracks/{trackID}/solo", e.handleTrackSolo)

	r.Post("/mixer/{trackID}/gain", e.handleGain)
	r.Post("/mixer/{trackID}/pan", e.handlePan)

	return r
}

// runBroadcaster pushes a snapshot to every connected window on an
// irregular cadence, the way a real engine reports from its audio callback
// rather than on a display-friendly schedule. Smoothing on the receiving
// side is what makes this look continuous.
func (e *mockEngine) runBroadcaster() {
	for {
		time.Sleep(time.Duration(150+rand.Intn(300)) * time.Millisecond)
		snap := e.advance(time.Now())
		e.mu.Lock()
		for _, ch := range e.clients {
			select {
			case ch <- snap:
			default:
				// slow consumer; it will catch up from the next snapshot
			}
		}
		e.mu.Unlock()
	}
}

// advance moves the position forward by the wall time elapsed since the
// last advance and returns the resulting snapshot. Loop wrap keeps the
// overshoot so timing stays exact across the boundary.
func (e *mockEngine) advance(now time.Time) tahti.PlaybackSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.playing {
		e.position += tahti.DurationToBeats(now.Sub(e.advanced), e.song.TempoBPM)
		if e.loop.Enabled && e.position >= e.loop.End && e.loop.End > e.loop.Start {
			span := e.loop.End - e.loop.Start
			for e.position >= e.loop.End {
				e.position -= span
			}
		}
	}
	e.advanced = now
	return e.snapshotLocked()
}

func (e *mockEngine) snapshotLocked() tahti.PlaybackSnapshot {
	return tahti.PlaybackSnapshot{
		PositionBeats:    e.position,
		TempoBPM:         e.song.TempoBPM,
		IsPlaying:        e.playing,
		MetronomeEnabled: e.metronome,
		LoopEnabled:      e.loop.Enabled,
		LoopStart:        e.loop.Start,
		LoopEnd:          e.loop.End,
	}
}

// broadcastNow pushes the current state immediately, so transport commands
// are observable without waiting for the next cadence tick.
func (e *mockEngine) broadcastNow() {
	snap := e.advance(time.Now())
	e.mu.Lock()
	for _, ch := range e.clients {
		select {
		case ch <- snap:
		default:
		}
	}
	e.mu.Unlock()
}

func (e *mockEngine) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": "tahti-engine"})
}

func (e *mockEngine) handleSong(w http.ResponseWriter, r *http.Request) {
	e.mu.Lock()
	song := e.song.Copy()
	e.mu.Unlock()
	writeJSON(w, http.StatusOK, song)
}

func (e *mockEngine) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		e.log.Warn("ws upgrade", zap.Error(err))
		return
	}
	send := make(chan tahti.PlaybackSnapshot, 16)
	e.mu.Lock()
	e.clients[conn] = send
	e.mu.Unlock()
	e.log.Info("window connected", zap.String("remote", r.RemoteAddr))

	// greet the new window with the current state right away; send is still
	// open because only dropClient closes it, and the pumps that could call
	// dropClient have not started yet
	send <- e.advance(time.Now())

	// reads are discarded; the push channel is one-way. The read loop is
	// still needed to notice the peer going away.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				e.dropClient(conn)
				return
			}
		}
	}()

	go func() {
		for snap := range send {
			if err := conn.WriteJSON(snap); err != nil {
				e.dropClient(conn)
				// drain until dropClient closes the channel
				for range send {
				}
				return
			}
		}
	}()
}

// dropClient removes a window's connection and closes its send channel,
// exactly once, under the same lock the broadcaster holds while sending.
// Closing the channel is what lets the write pump exit; without it every
// disconnected window would leave a goroutine blocked on the channel.
func (e *mockEngine) dropClient(conn *websocket.Conn) {
	e.mu.Lock()
	send, ok := e.clients[conn]
	if ok {
		delete(e.clients, conn)
		close(send)
	}
	e.mu.Unlock()
	conn.Close()
	if ok {
		e.log.Info("window disconnected", zap.Stringer("remote", conn.RemoteAddr()))
	}
}

func (e *mockEngine) clientCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.clients)
}

func (e *mockEngine) handleSeek(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PositionBeats float64 `json:"positionBeats"`
		TriggerAudio  bool    `json:"triggerAudio"`
	}
	if !decode(w, r, &body) {
		return
	}
	if body.PositionBeats < 0 {
		http.Error(w, "position must be non-negative", http.StatusUnprocessableEntity)
		return
	}
	e.mu.Lock()
	e.position = body.PositionBeats
	e.advanced = time.Now()
	e.mu.Unlock()
	e.log.Debug("seek", zap.Float64("positionBeats", body.PositionBeats), zap.Bool("triggerAudio", body.TriggerAudio))
	w.WriteHeader(http.StatusOK)
	e.broadcastNow()
}

func (e *mockEngine) handleTempo(w http.ResponseWriter, r *http.Request) {
	var body struct {
		BPM float64 `json:"bpm"`
	}
	if !decode(w, r, &body) {
		return
	}
	if body.BPM < 20 || body.BPM > 999 {
		http.Error(w, "tempo out of range", http.StatusUnprocessableEntity)
		return
	}
	e.advance(time.Now()) // bank elapsed beats at the old tempo first
	e.mu.Lock()
	e.song.TempoBPM = body.BPM
	e.mu.Unlock()
	w.WriteHeader(http.StatusOK)
	e.broadcastNow()
}

func (e *mockEngine) handlePlay(w http.ResponseWriter, r *http.Request) {
	e.mu.Lock()
	e.playing = true
	e.position = 0
	e.advanced = time.Now()
	e.mu.Unlock()
	w.WriteHeader(http.StatusOK)
	e.broadcastNow()
}

func (e *mockEngine) handlePause(w http.ResponseWriter, r *http.Request) {
	e.advance(time.Now())
	e.mu.Lock()
	e.playing = false
	e.mu.Unlock()
	w.WriteHeader(http.StatusOK)
	e.broadcastNow()
}

func (e *mockEngine) handleResume(w http.ResponseWriter, r *http.Request) {
	e.mu.Lock()
	e.playing = true
	e.advanced = time.Now()
	e.mu.Unlock()
	w.WriteHeader(http.StatusOK)
	e.broadcastNow()
}

func (e *mockEngine) handleStop(w http.ResponseWriter, r *http.Request) {
	e.mu.Lock()
	e.playing = false
	e.position = 0
	e.mu.Unlock()
	w.WriteHeader(http.StatusOK)
	e.broadcastNow()
}

func (e *mockEngine) handleLoop(w http.ResponseWriter, r *http.Request) {
	var loop tahti.Loop
	if !decode(w, r, &loop) {
		return
	}
	if loop.Enabled && loop.End <= loop.Start {
		http.Error(w, "loop end must be after loop start", http.StatusUnprocessableEntity)
		return
	}
	e.mu.Lock()
	e.loop = loop
	e.mu.Unlock()
	w.WriteHeader(http.StatusOK)
	e.broadcastNow()
}

func (e *mockEngine) handleMetronome(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Enabled bool `json:"enabled"`
	}
	if !decode(w, r, &body) {
		return
	}
	e.mu.Lock()
	e.metronome = body.Enabled
	e.mu.Unlock()
	w.WriteHeader(http.StatusOK)
	e.broadcastNow()
}

func (e *mockEngine) handleClipMove(w http.ResponseWriter, r *http.Request) {
	var body struct {
		StartBeats float64 `json:"startBeats"`
	}
	if !decode(w, r, &body) {
		return
	}
	e.withClip(w, r, func(clip *tahti.Clip) bool {
		if body.StartBeats < 0 {
			http.Error(w, "clip start must be non-negative", http.StatusUnprocessableEntity)
			return false
		}
		clip.Start = body.StartBeats
		return true
	})
}

func (e *mockEngine) handleClipResize(w http.ResponseWriter, r *http.Request) {
	var body struct {
		StartBeats    float64 `json:"startBeats"`
		DurationBeats float64 `json:"durationBeats"`
	}
	if !decode(w, r, &body) {
		return
	}
	e.withClip(w, r, func(clip *tahti.Clip) bool {
		if body.DurationBeats <= 0 {
			http.Error(w, "clip duration must be positive", http.StatusUnprocessableEntity)
			return false
		}
		clip.Start = body.StartBeats
		clip.Duration = body.DurationBeats
		return true
	})
}

func (e *mockEngine) handleClipUpdate(w http.ResponseWriter, r *http.Request) {
	var update tahti.Clip
	if !decode(w, r, &update) {
		return
	}
	e.withClip(w, r, func(clip *tahti.Clip) bool {
		update.ID = clip.ID
		*clip = update
		return true
	})
}

// withClip runs the mutation against the clip named in the URL, answering
// 404 when it does not exist.
func (e *mockEngine) withClip(w http.ResponseWriter, r *http.Request, mutate func(*tahti.Clip) bool) {
	id := chi.URLParam(r, "clipID")
	e.mu.Lock()
	_, clip := e.song.ClipByID(id)
	if clip == nil {
		e.mu.Unlock()
		http.Error(w, "no such clip", http.StatusNotFound)
		return
	}
	ok := mutate(clip)
	e.mu.Unlock()
	if ok {
		w.WriteHeader(http.StatusOK)
	}
}

func (e *mockEngine) handleTrackMute(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Mute bool `json:"mute"`
	}
	if !decode(w, r, &body) {
		return
	}
	e.withTrack(w, r, func(track *tahti.Track) { track.Mute = body.Mute })
}

func (e *mockEngine) handleTrackSolo(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Solo bool `json:"solo"`
	}
	if !decode(w, r, &body) {
		return
	}
	e.withTrack(w, r, func(track *tahti.Track) { track.Solo = body.Solo })
}

func (e *mockEngine) withTrack(w http.ResponseWriter, r *http.Request, mutate func(*tahti.Track)) {
	id := chi.URLParam(r, "trackID")
	e.mu.Lock()
	track := e.song.TrackByID(id)
	if track == nil {
		e.mu.Unlock()
		http.Error(w, "no such track", http.StatusNotFound)
		return
	}
	mutate(track)
	e.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

// gain and pan are accepted for any id including "master"; the mock does
// not model a signal chain, it only needs to not reject the commands the
// mixer sends.

func (e *mockEngine) handleGain(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Gain float64 `json:"gain"`
	}
	if !decode(w, r, &body) {
		return
	}
	if body.Gain < 0 {
		http.Error(w, "gain must be non-negative", http.StatusUnprocessableEntity)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (e *mockEngine) handlePan(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Pan float64 `json:"pan"`
	}
	if !decode(w, r, &body) {
		return
	}
	if body.Pan < -1 || body.Pan > 1 {
		http.Error(w, "pan must be within -1..1", http.StatusUnprocessableEntity)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "bad request body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
