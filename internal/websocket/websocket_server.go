package websocket

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/luciancaetano/vowsock"
	"github.com/luciancaetano/vowsock/internal/clientinfo"
	"github.com/luciancaetano/vowsock/internal/config"
	"github.com/luciancaetano/vowsock/internal/delivery"
	"github.com/luciancaetano/vowsock/internal/metrics"
	"github.com/luciancaetano/vowsock/internal/protocol"
	"github.com/luciancaetano/vowsock/internal/registry"
	"github.com/luciancaetano/vowsock/internal/validator"
)

// CheckOriginFn is a function that validates the origin of a WebSocket connection request.
// It receives the HTTP request and returns true if the origin is allowed, false otherwise.
// Injected cores run on arbitrary sites, so nil allows every origin.
type CheckOriginFn = func(r *http.Request) bool

// ServerConfig wires a server to its configuration and collaborators.
type ServerConfig struct {
	Config config.Config
	// Store resolves project names. Required.
	Store vowsock.ProjectStore
	// Describer enriches authorized connections. Defaults to header based
	// descriptors.
	Describer vowsock.ClientDescriber
	// Transforms render handshake payloads. Defaults to JSON documents.
	Transforms  vowsock.Transforms
	Development vowsock.CoreBundle
	Production  vowsock.CoreBundle
	// Registry may be shared between servers. A new one is created if nil.
	Registry    *registry.Registry
	Logger      zerolog.Logger
	Metrics     *metrics.Metrics
	CheckOrigin CheckOriginFn
}

// Server implements vowsock.Server.
type Server struct {
	cfg      config.Config
	server   *http.Server
	sessions sync.Map // map[string]*Session
	handlers *handlerTable
	auth     *AuthTable
	registry *registry.Registry

	validator  *validator.Validator
	codec      protocol.Codec
	deliverer  *delivery.Deliverer
	describer  vowsock.ClientDescriber
	transforms vowsock.Transforms

	logger  zerolog.Logger
	metrics *metrics.Metrics

	mu       sync.RWMutex
	running  bool
	upgrader websocket.Upgrader
}

// New creates a server from cfg. Missing collaborators get their defaults.
func New(cfg *ServerConfig) *Server {
	c := cfg.Config
	if c.SendQueue <= 0 {
		c.SendQueue = config.Default().SendQueue
	}
	if c.HandshakeDelay < 0 {
		c.HandshakeDelay = 0
	}

	describer := cfg.Describer
	if describer == nil {
		describer = clientinfo.New(c.TrustProxy)
	}
	transforms := cfg.Transforms
	if transforms == nil {
		transforms = delivery.JSONTransforms{}
	}
	logger := cfg.Logger.With().Str("component", "websockets").Logger()
	reg := cfg.Registry
	if reg == nil {
		reg = registry.New(cfg.Logger)
	}
	checkOrigin := cfg.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}

	return &Server{
		cfg:       c,
		handlers:  newHandlerTable(),
		auth:      NewAuthTable(),
		registry:  reg,
		validator: validator.New(cfg.Store),
		codec:     protocol.NewCodec(c.Compression),
		deliverer: &delivery.Deliverer{
			Development: cfg.Development,
			Production:  cfg.Production,
			Transforms:  transforms,
			Compression: c.Compression,
		},
		describer:  describer,
		transforms: transforms,
		logger:     logger,
		metrics:    cfg.Metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
	}
}

// Start starts the WebSocket server
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return vowsock.ErrServerAlreadyRunning
	}
	s.running = true
	s.mu.Unlock()

	mux := http.NewServeMux()
	path := s.cfg.Path
	if path == "" {
		path = "/"
	}
	mux.Handle(path, s.Handler())
	if s.cfg.Metrics.Enabled && s.metrics != nil {
		mux.Handle(s.cfg.Metrics.Path, s.metrics.Handler())
	}

	s.server = &http.Server{
		Addr:    s.cfg.Addr,
		Handler: mux,
	}

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	// Check for immediate startup errors with a small timeout
	select {
	case err := <-errChan:
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return err
	case <-ctx.Done():
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(stopCtx)
	case <-time.After(100 * time.Millisecond):
		s.logger.Info().Str("addr", s.cfg.Addr).Str("path", path).Msg("listening")
		return nil
	}
}

// Stop closes every session and shuts the listener down.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.CloseAll()

	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// CloseAll closes every live session.
func (s *Server) CloseAll() {
	s.sessions.Range(func(key, value interface{}) bool {
		if sess, ok := value.(*Session); ok {
			sess.Close()
		}
		return true
	})
}

// Handler returns the upgrade endpoint.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.handleWebSocket)
}

// RegisterHandler binds topic to handler.
func (s *Server) RegisterHandler(topic string, handler vowsock.Handler) error {
	return s.handlers.Register(topic, handler)
}

// Authorize completes the handshake of sessionID.
func (s *Server) Authorize(ctx context.Context, sessionID, token string, authReq *http.Request) error {
	if token == "" {
		return vowsock.ErrEmptyToken
	}
	fn, ok := s.auth.Take(sessionID)
	if !ok {
		return vowsock.ErrUnknownSession
	}
	return fn(ctx, token, authReq)
}

// Watch subscribes watcher to projectID.
func (s *Server) Watch(projectID string, watcher vowsock.Watcher) func() {
	return s.registry.Watch(projectID, watcher)
}

// Clients returns the clients of projectID.
func (s *Server) Clients(projectID string) []vowsock.ClientSnapshot {
	return s.registry.Clients(projectID)
}

// SendToSession pushes a frame to an authorized session of projectID.
func (s *Server) SendToSession(projectID, sessionID, topic string, data any) error {
	rec, ok := s.registry.Session(projectID, sessionID)
	if !ok {
		return vowsock.ErrSessionNotFound
	}
	return rec.Send(topic, data)
}

// Registry returns the client registry.
func (s *Server) Registry() *registry.Registry {
	return s.registry
}

// GetSession returns a live session by id, in any state.
func (s *Server) GetSession(id string) (*Session, bool) {
	if sess, ok := s.sessions.Load(id); ok {
		return sess.(*Session), true
	}
	return nil, false
}

// handleWebSocket validates the request and only then upgrades it.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	desc, err := s.validator.Validate(r.Context(), r)
	if err != nil {
		reason, status := rejection(err)
		s.metrics.Rejected(reason)
		s.logger.Error().Err(err).Str("ip", r.RemoteAddr).Msg("websocket rejected, terminating")
		http.Error(w, err.Error(), status)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Str("ip", r.RemoteAddr).Msg("upgrade failed")
		return
	}

	s.registry.EnsureProject(desc.Project.ID)
	sess := newSession(s, desc, ws, r)
	s.sessions.Store(desc.ID, sess)

	go sess.run()
}

func rejection(err error) (reason string, status int) {
	switch {
	case errors.Is(err, vowsock.ErrInvalidProjectEncoding):
		return "invalid_encoding", http.StatusBadRequest
	case errors.Is(err, vowsock.ErrMissingProject):
		return "missing_project", http.StatusBadRequest
	case errors.Is(err, vowsock.ErrNonexistentProject):
		return "nonexistent_project", http.StatusNotFound
	default:
		return "lookup_failed", http.StatusServiceUnavailable
	}
}
