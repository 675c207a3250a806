package wsengine_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tahtiseq/tahti"
	"github.com/tahtiseq/tahti/studio"
	"github.com/tahtiseq/tahti/wsengine"
)

var upgrader = websocket.Upgrader{}

func TestPushChannelStampsArrivalOrder(t *testing.T) {
	snaps := []tahti.PlaybackSnapshot{
		{PositionBeats: 0.0, TempoBPM: 120, IsPlaying: true},
		{PositionBeats: 0.5, TempoBPM: 120, IsPlaying: true},
		{PositionBeats: 1.0, TempoBPM: 120, IsPlaying: true},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/ws", r.URL.Path)
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		for _, s := range snaps {
			require.NoError(t, conn.WriteJSON(s))
		}
	}))
	defer srv.Close()

	broker := studio.NewBroker()
	client, err := wsengine.New(srv.URL, broker, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.RunPushChannel(ctx)

	var got []tahti.PlaybackSnapshot
	deadline := time.After(2 * time.Second)
	for len(got) < len(snaps) {
		select {
		case msg := <-broker.ToModel:
			if msg.HasSnapshot {
				got = append(got, msg.Snapshot)
			}
		case <-deadline:
			t.Fatalf("timed out, got %d snapshots", len(got))
		}
	}
	for i, s := range got {
		assert.Equal(t, uint64(i+1), s.Seq, "seq stamped in arrival order")
		assert.Equal(t, snaps[i].PositionBeats, s.PositionBeats)
	}

	cancel()
	select {
	case <-broker.FinishedEngine:
	case <-time.After(2 * time.Second):
		t.Fatal("push channel did not finish after cancel")
	}
}

func TestPushChannelReportsDisconnect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		conn.Close() // drop immediately
	}))
	defer srv.Close()

	broker := studio.NewBroker()
	client, err := wsengine.New(srv.URL, broker, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.RunPushChannel(ctx)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg := <-broker.ToModel:
			if _, ok := msg.Data.(*studio.EngineDisconnected); ok {
				return
			}
		case <-deadline:
			t.Fatal("no disconnect message")
		}
	}
}

func TestPushChannelReconnectsPromptlyAfterLiveStreamDrops(t *testing.T) {
	var dials atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		dials.Add(1)
		conn.Close() // drop every stream right away
	}))
	defer srv.Close()

	broker := studio.NewBroker()
	client, err := wsengine.New(srv.URL, broker, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.RunPushChannel(ctx)

	// each drop follows a working connection, so the wait before the next
	// dial stays at the minimum instead of doubling toward the cap
	require.Eventually(t, func() bool { return dials.Load() >= 4 },
		3*time.Second, 10*time.Millisecond, "reconnects after established connections must not slow down")
}

func TestCommandClient(t *testing.T) {
	type call struct {
		method string
		path   string
		body   map[string]any
	}
	var mu sync.Mutex
	var calls []call
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/song" {
			_ = json.NewEncoder(w).Encode(tahti.Song{TempoBPM: 120})
			return
		}
		var body map[string]any
		if data, _ := io.ReadAll(r.Body); len(data) > 0 {
			_ = json.Unmarshal(data, &body)
		}
		mu.Lock()
		calls = append(calls, call{method: r.Method, path: r.URL.Path, body: body})
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client, err := wsengine.New(srv.URL, studio.NewBroker(), nil)
	require.NoError(t, err)
	ctx := context.Background()

	song, err := client.Song(ctx)
	require.NoError(t, err)
	assert.Equal(t, 120.0, song.TempoBPM)

	require.NoError(t, client.Seek(ctx, 6.0, true))
	require.NoError(t, client.MoveClip(ctx, "c0", 6.0))
	require.NoError(t, client.MuteTrack(ctx, "t0", true))
	require.NoError(t, client.SetLoop(ctx, tahti.Loop{Enabled: true, Start: 0, End: 16}))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, calls, 4)
	assert.Equal(t, "/transport/seek", calls[0].path)
	assert.Equal(t, 6.0, calls[0].body["positionBeats"])
	assert.Equal(t, true, calls[0].body["triggerAudio"])
	assert.Equal(t, "/clips/c0/move", calls[1].path)
	assert.Equal(t, "/tracks/t0/mute", calls[2].path)
	assert.Equal(t, true, calls[2].body["mute"])
	assert.Equal(t, "/transport/loop", calls[3].path)
	assert.Equal(t, true, calls[3].body["enabled"])
}

func TestCommandFailureSurfacesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "tempo out of range", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	client, err := wsengine.New(srv.URL, studio.NewBroker(), nil)
	require.NoError(t, err)
	err = client.SetTempo(context.Background(), -1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tempo out of range")
}
