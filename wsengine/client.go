// Package wsengine connects a studio window to a remote engine process. The
// push channel is a websocket on which the engine broadcasts playback
// snapshots at its own cadence; the command channel is plain request/response
// HTTP. Snapshots are stamped with an arrival sequence number here, at the
// transport boundary, so the position clock can drop reordered deliveries.
package wsengine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tahtiseq/tahti"
	"github.com/tahtiseq/tahti/studio"
)

type Client struct {
	baseURL string
	wsURL   string
	httpc   *http.Client
	broker  *studio.Broker
	log     *zap.Logger

	// reconnection backoff bounds
	minBackoff time.Duration
	maxBackoff time.Duration
}

// New creates a client for an engine at baseURL (e.g. "http://127.0.0.1:7700").
// The push channel lives at /ws on the same host.
func New(baseURL string, broker *studio.Broker, log *zap.Logger) (*Client, error) {
	if log == nil {
		log = zap.NewNop()
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing engine url: %w", err)
	}
	wsu := *u
	switch u.Scheme {
	case "http":
		wsu.Scheme = "ws"
	case "https":
		wsu.Scheme = "wss"
	default:
		return nil, fmt.Errorf("unsupported engine url scheme %q", u.Scheme)
	}
	wsu.Path = strings.TrimSuffix(wsu.Path, "/") + "/ws"
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		wsURL:      wsu.String(),
		httpc:      &http.Client{Timeout: 10 * time.Second},
		broker:     broker,
		log:        log,
		minBackoff: 250 * time.Millisecond,
		maxBackoff: 5 * time.Second,
	}, nil
}

// RunPushChannel consumes the engine's snapshot stream until the context is
// done or the broker requests a close, reconnecting with backoff when the
// connection drops. Runs on its own goroutine; everything it learns goes to
// the model through the broker.
func (c *Client) RunPushChannel(ctx context.Context) {
	defer close(c.broker.FinishedEngine)
	backoff := c.minBackoff
	var seq uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.broker.CloseEngine:
			return
		default:
		}
		connected, err := c.readConnection(ctx, &seq)
		if connected {
			// the backoff punishes failed dials, not drops of a live stream
			backoff = c.minBackoff
		}
		if err != nil {
			c.log.Warn("push channel dropped", zap.Error(err))
			studio.TrySend(c.broker.ToModel, studio.MsgToModel{Data: &studio.EngineDisconnected{Err: err}})
		}
		select {
		case <-ctx.Done():
			return
		case <-c.broker.CloseEngine:
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > c.maxBackoff {
			backoff = c.maxBackoff
		}
	}
}

// readConnection reports whether a connection was established at all, so the
// caller can tell a failed dial apart from a drop of a working stream.
func (c *Client) readConnection(ctx context.Context, seq *uint64) (bool, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, c.wsURL, nil)
	cancel()
	if err != nil {
		return false, fmt.Errorf("dialing %s: %w", c.wsURL, err)
	}
	defer conn.Close()

	// close the socket when asked to, so ReadJSON below unblocks
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-c.broker.CloseEngine:
			// put the request back for the outer loop to observe
			studio.TrySend(c.broker.CloseEngine, struct{}{})
		case <-done:
		}
		conn.Close()
	}()

	c.log.Info("push channel connected", zap.String("url", c.wsURL))
	// the engine may have restarted while we were away, so the clock must
	// not treat its first position as a continuation of the old stream
	studio.TrySend(c.broker.ToModel, studio.MsgToModel{Reset: true, Data: &studio.EngineConnected{}})

	for {
		var snap tahti.PlaybackSnapshot
		if err := conn.ReadJSON(&snap); err != nil {
			return true, fmt.Errorf("reading snapshot: %w", err)
		}
		*seq++
		snap.Seq = *seq
		studio.TrySend(c.broker.ToModel, studio.MsgToModel{HasSnapshot: true, Snapshot: snap})
	}
}

// command channel; all calls are one HTTP round trip with no retries

func (c *Client) Song(ctx context.Context) (tahti.Song, error) {
	var song tahti.Song
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/song", nil)
	if err != nil {
		return song, err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return song, fmt.Errorf("fetching song: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return song, fmt.Errorf("fetching song: engine returned %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(&song); err != nil {
		return song, fmt.Errorf("decoding song: %w", err)
	}
	return song, nil
}

func (c *Client) Seek(ctx context.Context, positionBeats float64, triggerAudio bool) error {
	return c.post(ctx, "/transport/seek", map[string]any{
		"positionBeats": positionBeats,
		"triggerAudio":  triggerAudio,
	})
}

func (c *Client) SetTempo(ctx context.Context, bpm float64) error {
	return c.post(ctx, "/transport/tempo", map[string]any{"bpm": bpm})
}

func (c *Client) Play(ctx context.Context) error   { return c.post(ctx, "/transport/play", nil) }
func (c *Client) Pause(ctx context.Context) error  { return c.post(ctx, "/transport/pause", nil) }
func (c *Client) Resume(ctx context.Context) error { return c.post(ctx, "/transport/resume", nil) }
func (c *Client) Stop(ctx context.Context) error   { return c.post(ctx, "/transport/stop", nil) }

func (c *Client) SetLoop(ctx context.Context, loop tahti.Loop) error {
	return c.post(ctx, "/transport/loop", loop)
}

func (c *Client) SetMetronome(ctx context.Context, enabled bool) error {
	return c.post(ctx, "/transport/metronome", map[string]any{"enabled": enabled})
}

func (c *Client) MoveClip(ctx context.Context, clipID string, startBeats float64) error {
	return c.post(ctx, "/clips/"+url.PathEscape(clipID)+"/move", map[string]any{
		"startBeats": startBeats,
	})
}

func (c *Client) ResizeClip(ctx context.Context, clipID string, startBeats, durationBeats float64) error {
	return c.post(ctx, "/clips/"+url.PathEscape(clipID)+"/resize", map[string]any{
		"startBeats":    startBeats,
		"durationBeats": durationBeats,
	})
}

func (c *Client) UpdateClip(ctx context.Context, clip tahti.Clip) error {
	return c.post(ctx, "/clips/"+url.PathEscape(clip.ID), clip)
}

func (c *Client) MuteTrack(ctx context.Context, trackID string, mute bool) error {
	return c.post(ctx, "/tracks/"+url.PathEscape(trackID)+"/mute", map[string]any{"mute": mute})
}

func (c *Client) SoloTrack(ctx context.Context, trackID string, solo bool) error {
	return c.post(ctx, "/tracks/"+url.PathEscape(trackID)+"/solo", map[string]any{"solo": solo})
}

func (c *Client) SetChannelGain(ctx context.Context, trackID string, gain float64) error {
	return c.post(ctx, "/mixer/"+url.PathEscape(trackID)+"/gain", map[string]any{"gain": gain})
}

func (c *Client) SetChannelPan(ctx context.Context, trackID string, pan float64) error {
	return c.post(ctx, "/mixer/"+url.PathEscape(trackID)+"/pan", map[string]any{"pan": pan})
}

func (c *Client) post(ctx context.Context, path string, body any) error {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling %s request: %w", path, err)
		}
		payload = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, payload)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s: engine returned %s: %s", path, resp.Status, strings.TrimSpace(string(msg)))
	}
	return nil
}
