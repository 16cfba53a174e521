package vowsock

import (
	"context"
	"net/http"
)

// Server defines the controller side of the injected core's control channel.
//
// Browsers connect with a URL naming the target project and the wire format
// version they speak. The server validates the project, sends an "auth"
// challenge, waits for an authorization submission and then exchanges
// rate-limited topic frames with the browser until the socket closes.
//
// Example usage:
//
//	import "github.com/luciancaetano/vowsock/ws"
//
//	sc, err := ws.NewConfig(cfg, store, ws.AllOrigins(), nil)
//	if err != nil {
//	    return err
//	}
//	server := ws.New(sc)
//
//	server.RegisterHandler("i", func(conn vowsock.Conn, data json.RawMessage, res vowsock.Responder) {
//	    res.Resolve(map[string]string{"ok": "1"})
//	})
//
//	server.Start(ctx)
type Server interface {
	// Start starts listening for connections. It returns once the listener
	// is up or with the first startup error.
	Start(ctx context.Context) error

	// Stop closes every live session and shuts the listener down.
	Stop(ctx context.Context) error

	// Handler returns the upgrade endpoint so it can be mounted in another mux.
	Handler() http.Handler

	// RegisterHandler binds a topic to a command handler.
	//
	// Registration fails for empty or reserved topics ("auth", "core", "v"),
	// nil handlers and topics that are already bound. Handlers run on the
	// session's read goroutine, so frames of one connection are handled in
	// arrival order.
	RegisterHandler(topic string, handler Handler) error

	// Authorize completes the handshake of a session that is waiting for
	// authorization. authReq is the HTTP request that carried the submission;
	// its query parameter t=1 selects cached core delivery.
	//
	// Returns ErrUnknownSession if no session with that id is waiting.
	Authorize(ctx context.Context, sessionID, token string, authReq *http.Request) error

	// Watch subscribes to connect and disconnect events of a project.
	// The returned function cancels the subscription.
	Watch(projectID string, watcher Watcher) (cancel func())

	// Clients returns a snapshot of the authorized clients of a project.
	Clients(projectID string) []ClientSnapshot

	// SendToSession pushes a frame to one authorized session.
	SendToSession(projectID, sessionID, topic string, data any) error
}

// Conn is the handle a command handler receives for the session that sent
// the frame.
type Conn interface {
	// ID returns the session id assigned during validation.
	ID() string

	// Token returns the authorization token the session was admitted with.
	Token() string

	// Project returns the read-only project snapshot.
	Project() Project

	// RemoteAddr returns the client's remote network address.
	RemoteAddr() string

	// Context is cancelled when the session closes.
	Context() context.Context

	// Send frames and queues data under topic.
	//
	// A failed send force-closes the connection.
	Send(topic string, data any) error

	// Close closes the session. Calling it more than once is a no-op.
	Close() error
}
