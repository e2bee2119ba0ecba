package control

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Kim-Ziho/doorbell-camera/catalog"
	"github.com/Kim-Ziho/doorbell-camera/recording"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeKey(t *testing.T) {
	tests := []struct {
		key  byte
		want recording.Command
	}{
		{' ', recording.CommandToggleRecording},
		{'a', recording.CommandToggleAuto},
		{'A', recording.CommandToggleAuto},
		{27, recording.CommandQuit},
		{3, recording.CommandQuit},
		{'q', recording.CommandNone},
		{'\r', recording.CommandNone},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DecodeKey(tt.key), "key %q", tt.key)
	}
}

func TestHub_SubmitAndPoll(t *testing.T) {
	h := NewHub(2, nil)

	assert.Equal(t, recording.CommandNone, h.Poll())
	assert.True(t, h.Submit(recording.CommandStart))
	assert.True(t, h.Submit(recording.CommandToggleAuto))
	assert.False(t, h.Submit(recording.CommandStop), "full queue drops")
	assert.True(t, h.Submit(recording.CommandNone), "none is never queued")

	assert.Equal(t, recording.CommandStart, h.Poll())
	assert.Equal(t, recording.CommandToggleAuto, h.Poll())
	assert.Equal(t, recording.CommandNone, h.Poll())
}

func drain(h *Hub) []recording.Command {
	var out []recording.Command
	for {
		cmd := h.Poll()
		if cmd == recording.CommandNone {
			return out
		}
		out = append(out, cmd)
	}
}

func TestKeyboard_StopsOnQuitKey(t *testing.T) {
	h := NewHub(8, nil)
	kb := NewKeyboard(strings.NewReader("xa \x1b  "), h, nil)

	require.NoError(t, kb.Run(context.Background()))
	assert.Equal(t, []recording.Command{
		recording.CommandToggleAuto,
		recording.CommandToggleRecording,
		recording.CommandQuit,
	}, drain(h))
}

func TestKeyboard_EndOfInput(t *testing.T) {
	h := NewHub(8, nil)
	kb := NewKeyboard(strings.NewReader(" "), h, nil)

	require.NoError(t, kb.Run(context.Background()))
	assert.Equal(t, []recording.Command{recording.CommandToggleRecording}, drain(h))
}

func TestKeyboard_CancelledContext(t *testing.T) {
	pr, pw := net.Pipe()
	defer pw.Close()
	defer pr.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewKeyboard(pr, NewHub(1, nil), nil).Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("keyboard did not stop after cancellation")
	}
}

func TestEventFeed_BroadcastsEnvelope(t *testing.T) {
	feed := NewEventFeed(4, nil)
	msgs, cancel := feed.Subscribe()
	defer cancel()

	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	feed.OnEvent(recording.Event{Kind: recording.EventClipOpened, At: at, Seq: 102, Origin: recording.OriginAuto, ClipID: "c1"})

	var env struct {
		Type string          `json:"type"`
		Ts   time.Time       `json:"ts"`
		Data recording.Event `json:"data"`
	}
	require.NoError(t, json.Unmarshal(<-msgs, &env))
	assert.Equal(t, "clip_opened", env.Type)
	assert.True(t, at.Equal(env.Ts))
	assert.Equal(t, uint64(102), env.Data.Seq)
	assert.Equal(t, "c1", env.Data.ClipID)
}

func TestEventFeed_DropsSlowSubscriber(t *testing.T) {
	feed := NewEventFeed(1, nil)
	slow, _ := feed.Subscribe()
	fast, cancelFast := feed.Subscribe()
	defer cancelFast()

	feed.Broadcast([]byte("one"))
	<-fast
	feed.Broadcast([]byte("two"))

	assert.Equal(t, []byte("one"), <-slow)
	_, open := <-slow
	assert.False(t, open, "slow subscriber is disconnected")
	assert.Equal(t, []byte("two"), <-fast)
	assert.Equal(t, 1, feed.Subscribers())
}

func TestEventFeed_UnsubscribeAndClose(t *testing.T) {
	feed := NewEventFeed(1, nil)
	a, cancelA := feed.Subscribe()
	b, _ := feed.Subscribe()

	cancelA()
	cancelA()
	_, open := <-a
	assert.False(t, open)

	feed.Close()
	_, open = <-b
	assert.False(t, open)

	c, _ := feed.Subscribe()
	_, open = <-c
	assert.False(t, open, "subscribing to a closed feed yields a closed channel")
}

type serverFixture struct {
	hub   *Hub
	board *recording.StatusBoard
	feed  *EventFeed
	clips *catalog.SQLiteClipRepository
	srv   *Server
}

func newServerFixture(t *testing.T, hubSize int) *serverFixture {
	t.Helper()
	db, err := catalog.NewInMemoryDB()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	clips, err := catalog.NewSQLiteClipRepository(db)
	require.NoError(t, err)

	fx := &serverFixture{
		hub:   NewHub(hubSize, nil),
		board: recording.NewStatusBoard(),
		feed:  NewEventFeed(8, nil),
		clips: clips,
	}
	fx.srv = NewServer(ServerOptions{Hub: fx.hub, Board: fx.board, Feed: fx.feed, Clips: clips})
	return fx
}

func (fx *serverFixture) do(method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	fx.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_CommandEndpoints(t *testing.T) {
	fx := newServerFixture(t, 8)

	routes := map[string]recording.Command{
		"/api/recording/start":  recording.CommandStart,
		"/api/recording/stop":   recording.CommandStop,
		"/api/recording/toggle": recording.CommandToggleRecording,
		"/api/auto/toggle":      recording.CommandToggleAuto,
	}
	for path, want := range routes {
		rec := fx.do(http.MethodPost, path)
		assert.Equal(t, http.StatusAccepted, rec.Code, path)
		assert.Equal(t, want, fx.hub.Poll(), path)
	}

	rec := fx.do(http.MethodGet, "/api/recording/start")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_FullQueue(t *testing.T) {
	fx := newServerFixture(t, 1)

	assert.Equal(t, http.StatusAccepted, fx.do(http.MethodPost, "/api/recording/start").Code)
	assert.Equal(t, http.StatusServiceUnavailable, fx.do(http.MethodPost, "/api/recording/stop").Code)
}

func TestServer_Status(t *testing.T) {
	fx := newServerFixture(t, 1)
	fx.board.Store(recording.Status{
		MachineStatus: recording.MachineStatus{
			State:       recording.StateRecordingManual,
			AutoEnabled: true,
			ClipPath:    "records/manual_x.mp4",
		},
		LastRatio:       0.02,
		FramesProcessed: 99,
		Running:         true,
	})

	rec := fx.do(http.MethodGet, "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "recording_manual", body["state"])
	assert.Equal(t, true, body["auto_enabled"])
	assert.Equal(t, "records/manual_x.mp4", body["clip_path"])
	assert.Equal(t, 99.0, body["frames_processed"])
	assert.Equal(t, true, body["running"])
}

func TestServer_Health(t *testing.T) {
	fx := newServerFixture(t, 1)
	rec := fx.do(http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestServer_Clips(t *testing.T) {
	fx := newServerFixture(t, 1)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	for i, origin := range []string{"motion", "manual", "motion"} {
		opened := base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, fx.clips.Add(ctx, &catalog.Clip{
			ID:       "clip-" + string(rune('a'+i)),
			Origin:   origin,
			Path:     "records/x.mp4",
			MimeType: "video/mp4",
			OpenedAt: opened,
			ClosedAt: opened.Add(time.Second),
		}))
	}

	rec := fx.do(http.MethodGet, "/api/clips?origin=motion&limit=1")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Clips []catalog.Clip `json:"clips"`
		Total int            `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Total)
	require.Len(t, body.Clips, 1)
	assert.Equal(t, "clip-c", body.Clips[0].ID)

	assert.Equal(t, http.StatusBadRequest, fx.do(http.MethodGet, "/api/clips?limit=abc").Code)
	assert.Equal(t, http.StatusBadRequest, fx.do(http.MethodGet, "/api/clips?since=yesterday").Code)

	assert.Equal(t, http.StatusOK, fx.do(http.MethodGet, "/api/clips/clip-b").Code)
	assert.Equal(t, http.StatusNotFound, fx.do(http.MethodGet, "/api/clips/missing").Code)
}

func TestServer_ClipsRouteRequiresCatalog(t *testing.T) {
	srv := NewServer(ServerOptions{})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/clips", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_EventStream(t *testing.T) {
	fx := newServerFixture(t, 1)
	fx.board.Store(recording.Status{Running: true})

	ts := httptest.NewServer(fx.srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var env struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(msg, &env))
	assert.Equal(t, "status", env.Type)

	// the snapshot is written after subscribing, so the feed has us by now
	require.Equal(t, 1, fx.feed.Subscribers())
	fx.feed.OnEvent(recording.Event{Kind: recording.EventClipClosed, At: time.Now(), ClipID: "c9"})

	_, msg, err = conn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(msg, &env))
	assert.Equal(t, "clip_closed", env.Type)
	assert.Contains(t, string(env.Data), `"clip_id":"c9"`)
}

func TestServer_ServeStopsOnCancel(t *testing.T) {
	fx := newServerFixture(t, 1)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- fx.srv.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
