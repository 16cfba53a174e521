package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/luciancaetano/vowsock"
	"github.com/luciancaetano/vowsock/internal/delivery"
	"github.com/luciancaetano/vowsock/internal/limiter"
	"github.com/luciancaetano/vowsock/internal/protocol"
	"github.com/luciancaetano/vowsock/internal/registry"
)

// State is the lifecycle stage of a session.
type State int

const (
	StateConnecting State = iota
	StateAwaitingAuth
	StateAuthorized
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAwaitingAuth:
		return "awaiting_auth"
	case StateAuthorized:
		return "authorized"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Session drives one validated connection from the handshake to close.
//
// The read goroutine decodes, admits and dispatches frames in arrival order.
// Every way a connection can end funnels into teardown, which runs once.
type Session struct {
	server     *Server
	desc       vowsock.Session
	conn       *conn
	upgradeReq *http.Request
	opts       protocol.FrameOptions
	logger     zerolog.Logger

	mu         sync.Mutex
	state      State
	token      string
	authReq    *http.Request
	client     vowsock.ClientInfo
	gate       *limiter.Gate
	registered bool
	handshake  *time.Timer

	closeOnce sync.Once
}

func newSession(s *Server, desc vowsock.Session, ws *websocket.Conn, r *http.Request) *Session {
	logger := s.logger.With().
		Str("session", desc.ID).
		Str("project", desc.Project.Name).
		Logger()
	sess := &Session{
		server:     s,
		desc:       desc,
		conn:       newConn(ws, r.RemoteAddr, s.cfg.SendQueue),
		upgradeReq: r,
		opts:       protocol.FrameOptions{Version: desc.Version, Debug: desc.Debug},
		logger:     logger,
		state:      StateConnecting,
	}
	// give the client time to finish opening the socket before the challenge
	sess.mu.Lock()
	sess.handshake = time.AfterFunc(s.cfg.HandshakeDelay, sess.sendAuth)
	sess.mu.Unlock()
	return sess
}

// ID returns the session id.
func (s *Session) ID() string { return s.desc.ID }

// Descriptor returns the validated session descriptor.
func (s *Session) Descriptor() vowsock.Session { return s.desc }

// Project returns the project snapshot taken at validation.
func (s *Session) Project() vowsock.Project { return s.desc.Project }

// RemoteAddr returns the peer address.
func (s *Session) RemoteAddr() string { return s.conn.remoteAddr }

// Context is cancelled when the session closes.
func (s *Session) Context() context.Context { return s.conn.ctx }

// Token returns the authorization token, empty before authorization.
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// State returns the current lifecycle stage.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Send encodes and queues a frame. A transport failure force-closes the
// connection.
func (s *Session) Send(topic string, data any) error {
	frame, err := s.server.codec.Encode(topic, data, s.opts)
	if err != nil {
		s.logger.Error().Err(err).Str("topic", topic).Msg("encode failed")
		return err
	}
	if err := s.conn.Send(frame); err != nil {
		if errors.Is(err, vowsock.ErrConnectionClosed) {
			return err
		}
		s.server.metrics.SendFailed()
		s.logger.Warn().Err(err).Str("topic", topic).Msg("send failed, closing")
		s.Close()
		return err
	}
	s.server.metrics.FrameOut()
	return nil
}

// Close closes the socket and tears the session down.
func (s *Session) Close() error {
	err := s.conn.Close()
	s.teardown()
	return err
}

// sendAuth runs after the handshake delay.
func (s *Session) sendAuth() {
	s.mu.Lock()
	if s.state != StateConnecting {
		s.mu.Unlock()
		return
	}
	s.state = StateAwaitingAuth
	s.server.auth.Add(s.desc.ID, s.authorize)
	s.server.metrics.AwaitingAuth(1)
	s.mu.Unlock()

	hash := s.server.deliverer.Bundle(s.desc.Debug).Hash
	s.Send(vowsock.TopicAuth, s.server.transforms.Auth(s.desc.ID, hash))
}

// authorize is the one-shot callback stored in the auth table.
func (s *Session) authorize(ctx context.Context, token string, authReq *http.Request) error {
	s.mu.Lock()
	if s.state != StateAwaitingAuth {
		s.mu.Unlock()
		return vowsock.ErrUnknownSession
	}
	s.state = StateAuthorized
	s.token = token
	s.authReq = authReq
	s.gate = limiter.New(s.server.cfg.RateLimit)
	s.mu.Unlock()
	s.server.metrics.AwaitingAuth(-1)

	client, info, err := s.server.describer.Describe(ctx, s.upgradeReq, authReq, s.desc)
	if err != nil {
		s.logger.Error().Err(err).Msg("describe client failed, closing")
		s.Close()
		return err
	}
	rec := registry.NewSessionRecord(info, s)

	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return vowsock.ErrConnectionClosed
	}
	s.client = client
	s.registered = true
	snapshot := s.server.registry.Register(s.desc.Project.ID, token, client, rec)
	s.server.metrics.SessionAuthorized()
	// queued under mu so that teardown's disconnect always follows it
	s.server.registry.Notify(vowsock.WatchEvent{
		Type:      vowsock.EventConnect,
		ProjectID: s.desc.Project.ID,
		Token:     token,
		SessionID: s.desc.ID,
		Client:    &snapshot,
	})
	s.mu.Unlock()

	s.logger.Info().
		Bool("debug", s.desc.Debug).
		Str("ip", client.IP).
		Str("url", info.URL).
		Msg("connect")

	payload := s.server.deliverer.Payload(delivery.Request{
		Session:    s.desc,
		Client:     client,
		UpgradeReq: s.upgradeReq,
		AuthReq:    authReq,
	})
	return s.Send(vowsock.TopicCore, payload)
}

// run is the read loop. It returns when the socket fails or closes.
func (s *Session) run() {
	defer s.teardown()

	ws := s.conn.ws
	ws.SetReadLimit(protocol.MaxFrameSize)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) && s.conn.IsAlive() {
				s.logger.Debug().Err(err).Msg("unexpected close")
			}
			return
		}
		ws.SetReadDeadline(time.Now().Add(pongWait))
		s.handleFrame(data)
	}
}

// rateLimitNotice is sent under "rate-limiter" when a frame is refused.
type rateLimitNotice struct {
	Topic string          `json:"topic"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func (s *Session) handleFrame(raw []byte) {
	s.server.metrics.FrameIn()

	s.mu.Lock()
	state, gate, ip := s.state, s.gate, s.client.IP
	s.mu.Unlock()
	if state != StateAuthorized {
		s.logger.Debug().Str("state", state.String()).Msg("frame before authorization dropped")
		return
	}

	msg, err := s.server.codec.Decode(raw)
	if err != nil {
		s.logDecodeError(err, ip)
		return
	}

	verdict := gate.Admit(msg.Topic)
	s.server.metrics.Admission(verdict.String())

	switch verdict {
	case limiter.Admitted:
		s.dispatch(msg)
	case limiter.Notify:
		s.Send(vowsock.TopicRateLimiter, rateLimitNotice{Topic: msg.Topic, Data: msg.Data})
	default:
		s.logger.Debug().Str("topic", msg.Topic).Str("verdict", verdict.String()).Msg("rate limited")
	}
}

func (s *Session) logDecodeError(err error, ip string) {
	switch {
	case errors.Is(err, vowsock.ErrCompressionDisabled):
		s.server.metrics.DecodeDropped("compression_disabled")
		s.logger.Warn().Str("why", "disabled").Str("ip", ip).Msg("compression")
	case errors.Is(err, vowsock.ErrDecompress):
		s.server.metrics.DecodeDropped("decompress")
		// a broken compressed frame is only worth a warning while debugging
		ev := s.logger.Debug()
		if s.server.cfg.Debug {
			ev = s.logger.Warn()
		}
		ev.Str("why", "error").Str("ip", ip).Err(err).Msg("compression")
	case errors.Is(err, vowsock.ErrMalformedPayload):
		s.server.metrics.DecodeDropped("malformed_payload")
		s.logger.Warn().Str("ip", ip).Msg("parse")
	default:
		s.server.metrics.DecodeDropped("invalid_frame")
		s.logger.Warn().Str("ip", ip).Err(err).Msg("message")
	}
}

func (s *Session) dispatch(msg protocol.Message) {
	handler, ok := s.server.handlers.Get(msg.Topic)
	if !ok {
		s.logger.Debug().Str("topic", msg.Topic).Msg("no handler")
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error().Str("topic", msg.Topic).Interface("panic", rec).Msg("handler panicked")
		}
	}()
	handler(s, msg.Data, &vowResponder{session: s, vow: msg.Vow})
}

// teardown moves the session to Closed. It runs its body exactly once no
// matter how many paths reach it.
func (s *Session) teardown() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		prev := s.state
		s.state = StateClosed
		registered, token := s.registered, s.token
		if s.handshake != nil {
			s.handshake.Stop()
		}
		s.mu.Unlock()

		s.conn.Close()
		s.server.auth.Remove(s.desc.ID)
		if prev == StateAwaitingAuth {
			s.server.metrics.AwaitingAuth(-1)
		}
		s.server.sessions.Delete(s.desc.ID)

		if !registered {
			s.logger.Debug().Str("state", prev.String()).Msg("closed before registration")
			return
		}

		s.server.registry.Deregister(s.desc.Project.ID, token, s.desc.ID)
		s.server.metrics.SessionClosed()
		s.logger.Info().Msg("disconnect")
		s.server.registry.Notify(vowsock.WatchEvent{
			Type:      vowsock.EventDisconnect,
			ProjectID: s.desc.Project.ID,
			Token:     token,
			SessionID: s.desc.ID,
		})
	})
}

// vowResponder answers the vow a frame arrived with. Without a vow id both
// methods do nothing.
type vowResponder struct {
	session *Session
	vow     string
}

func (r *vowResponder) Resolve(data any) {
	if r.vow == "" {
		return
	}
	r.session.Send(vowsock.TopicVow, protocol.Resolve(r.vow, data))
}

func (r *vowResponder) Reject(data any) {
	if r.vow == "" {
		return
	}
	r.session.Send(vowsock.TopicVow, protocol.Reject(r.vow, data))
}
