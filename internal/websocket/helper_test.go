package websocket

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/luciancaetano/vowsock"
	"github.com/luciancaetano/vowsock/internal/config"
	"github.com/luciancaetano/vowsock/internal/delivery"
	"github.com/luciancaetano/vowsock/internal/metrics"
	"github.com/luciancaetano/vowsock/internal/projects"
)

const demoProjectID = "p-demo"

type testEnv struct {
	srv *Server
	ts  *httptest.Server
}

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.HandshakeDelay = 5 * time.Millisecond
	cfg.Compression = false
	if mutate != nil {
		mutate(&cfg)
	}

	store := projects.NewMemoryStore(vowsock.Project{
		ID:     demoProjectID,
		Name:   "demo",
		Config: vowsock.ProjectConfig{AutoExecute: true},
	})
	srv := New(&ServerConfig{
		Config:      cfg,
		Store:       store,
		Development: delivery.NewBundle("dev()", "devhash"),
		Production:  delivery.NewBundle("prod()", "prodhash"),
		Logger:      zerolog.Nop(),
		Metrics:     metrics.New("test"),
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.CloseAll()
		ts.Close()
	})
	return &testEnv{srv: srv, ts: ts}
}

// Helper function to create a WebSocket dialer
func newDialer() *websocket.Dialer {
	return &websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}
}

func (e *testEnv) url(target string) string {
	return "ws" + strings.TrimPrefix(e.ts.URL, "http") + target
}

func (e *testEnv) dial(t *testing.T, target string) *websocket.Conn {
	t.Helper()
	conn, _, err := newDialer().Dial(e.url(target), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) (int, []byte) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	mt, data, err := conn.ReadMessage()
	require.NoError(t, err)
	return mt, data
}

func writeText(t *testing.T, conn *websocket.Conn, frame string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))
}

type authFrame struct {
	ID   string `json:"id"`
	Hash string `json:"hash"`
}

type coreFrame struct {
	Core        string            `json:"core"`
	Vars        vowsock.Variables `json:"vars"`
	Debug       bool              `json:"debug"`
	AutoExecute bool              `json:"autoexecute"`
}

// readAuth reads the handshake challenge in the format of version.
func readAuth(t *testing.T, conn *websocket.Conn, version int) authFrame {
	t.Helper()
	_, data := readFrame(t, conn)

	var auth authFrame
	if version == 0 {
		var wrapped struct {
			D authFrame `json:"d"`
		}
		require.NoError(t, json.Unmarshal(data, &wrapped), string(data))
		auth = wrapped.D
	} else {
		require.NoError(t, json.Unmarshal(data, &auth), string(data))
	}
	require.NotEmpty(t, auth.ID)
	return auth
}

func readCore(t *testing.T, conn *websocket.Conn) coreFrame {
	t.Helper()
	_, data := readFrame(t, conn)
	var core coreFrame
	require.NoError(t, json.Unmarshal(data, &core), string(data))
	return core
}

func (e *testEnv) authorize(t *testing.T, id, token, authTarget string) {
	t.Helper()
	require.NoError(t, e.srv.Authorize(context.Background(), id, token, httptest.NewRequest("GET", authTarget, nil)))
}

// connect dials a version 1 session, authorizes it and consumes the core frame.
func (e *testEnv) connect(t *testing.T, target, token string) (*websocket.Conn, string) {
	t.Helper()
	conn := e.dial(t, target)
	auth := readAuth(t, conn, 1)
	e.authorize(t, auth.ID, token, "/a")
	readCore(t, conn)
	return conn, auth.ID
}

func collectEvents(e *testEnv, projectID string) <-chan vowsock.WatchEvent {
	events := make(chan vowsock.WatchEvent, 32)
	e.srv.Watch(projectID, func(ev vowsock.WatchEvent) { events <- ev })
	return events
}

func nextEvent(t *testing.T, events <-chan vowsock.WatchEvent) vowsock.WatchEvent {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no watcher event")
		return vowsock.WatchEvent{}
	}
}

func noEvent(t *testing.T, events <-chan vowsock.WatchEvent, wait time.Duration) {
	t.Helper()
	select {
	case ev := <-events:
		t.Fatalf("unexpected watcher event %+v", ev)
	case <-time.After(wait):
	}
}
