package vowsock

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Project is the read-only view of a project record.
type Project struct {
	ID     string        `json:"id"`
	Name   string        `json:"name"`
	Config ProjectConfig `json:"config"`
}

// ProjectConfig holds the project settings the channel reads.
type ProjectConfig struct {
	// AutoExecute tells the core to run the project's payload as soon as it loads.
	AutoExecute bool `json:"autoexecute"`
}

// Session is the protocol-level descriptor produced by connection validation.
type Session struct {
	ID      string
	Version int
	Debug   bool
	Project Project
}

// ClientInfo describes the browser behind a token.
type ClientInfo struct {
	IP        string `json:"ip"`
	UserAgent string `json:"userAgent"`
	Platform  string `json:"platform"`
	OS        string `json:"os"`
}

// SessionInfo describes one live page of a client.
type SessionInfo struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	Debug       bool      `json:"debug"`
	Version     int       `json:"version"`
	ConnectedAt time.Time `json:"connectedAt"`
}

// ClientSnapshot is an immutable copy of a registered client.
type ClientSnapshot struct {
	Token    string        `json:"token"`
	Info     ClientInfo    `json:"client"`
	Sessions []SessionInfo `json:"sessions"`
}

// EventType names a watcher event.
type EventType string

const (
	EventConnect    EventType = "connect"
	EventDisconnect EventType = "disconnect"
)

// WatchEvent is delivered to project watchers.
//
// Client is set for connect events and holds the client as it was right after
// the session registered.
type WatchEvent struct {
	Type      EventType
	ProjectID string
	Token     string
	SessionID string
	Client    *ClientSnapshot
}

// Watcher receives project events. It runs on its own goroutine.
type Watcher func(event WatchEvent)

// Responder answers a vow. Both methods are no-ops when the frame carried no
// vow id.
type Responder interface {
	Resolve(data any)
	Reject(data any)
}

// Handler processes one admitted frame.
type Handler func(conn Conn, data json.RawMessage, res Responder)

// ProjectStore resolves projects by their exact name.
//
// Implementations return ErrNonexistentProject when no project matches.
type ProjectStore interface {
	FindByName(ctx context.Context, name string) (Project, error)
}

// ClientDescriber enriches a connection into client and session descriptors.
//
// upgradeReq is the WebSocket upgrade request and authReq the request that
// carried the authorization submission.
type ClientDescriber interface {
	Describe(ctx context.Context, upgradeReq, authReq *http.Request, session Session) (ClientInfo, SessionInfo, error)
}

// CoreBundle is a built core with its version hash.
type CoreBundle struct {
	Bundle string
	Hash   string
}

// Transforms turns handshake and delivery values into transport-ready
// payloads. For version 0 sessions the result is wrapped as {"d": result};
// for later versions a string or []byte result is sent as is.
type Transforms interface {
	Auth(sessionID, coreHash string) any
	Cache(vars Variables, debug, autoExecute bool) any
	Core(core CoreBundle, vars Variables, debug, autoExecute bool) any
}

// Variables are the client and server context values handed to the core.
type Variables struct {
	Client ClientVariables `json:"__client"`
	Server ServerVariables `json:"__server"`
}

// ClientVariables describe the requesting browser.
type ClientVariables struct {
	IP        string            `json:"ip"`
	ID        string            `json:"id"`
	UserAgent string            `json:"user-agent"`
	Headers   map[string]string `json:"headers"`
	Platform  string            `json:"platform"`
	OS        string            `json:"os"`
}

// ServerVariables describe the controller.
type ServerVariables struct {
	Compression bool   `json:"compression"`
	Version     string `json:"version"`
	Cached      bool   `json:"cached"`
}
