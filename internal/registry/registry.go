// Package registry keeps the authorized clients of every project.
//
// The index is project -> token -> client, and each client holds the ordered
// sessions (pages) that authorized with its token. A client exists exactly as
// long as it has at least one session. Every project bucket has its own lock,
// so registrations in different projects never contend.
package registry

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/luciancaetano/vowsock"
)

// Sender pushes frames to a live session.
type Sender interface {
	Send(topic string, data any) error
}

// SessionRecord is a registered session. It references the connection but
// does not own it.
type SessionRecord struct {
	Info   vowsock.SessionInfo
	sender Sender
}

// NewSessionRecord creates a record that sends through sender.
func NewSessionRecord(info vowsock.SessionInfo, sender Sender) *SessionRecord {
	return &SessionRecord{Info: info, sender: sender}
}

// ID returns the session id.
func (s *SessionRecord) ID() string {
	return s.Info.ID
}

// Send pushes a frame to the session.
func (s *SessionRecord) Send(topic string, data any) error {
	if s.sender == nil {
		return vowsock.ErrConnectionClosed
	}
	return s.sender.Send(topic, data)
}

// Execute asks the session to run script.
func (s *SessionRecord) Execute(script string) error {
	return s.Send(vowsock.TopicExecute, script)
}

// Scroll asks the session to scroll to pos.
func (s *SessionRecord) Scroll(pos any) error {
	return s.Send(vowsock.TopicScroll, pos)
}

// ClientRecord groups the sessions sharing one token within a project.
type ClientRecord struct {
	Token    string
	Info     vowsock.ClientInfo
	Sessions []*SessionRecord
}

func (c *ClientRecord) snapshot() vowsock.ClientSnapshot {
	s := vowsock.ClientSnapshot{
		Token:    c.Token,
		Info:     c.Info,
		Sessions: make([]vowsock.SessionInfo, len(c.Sessions)),
	}
	for i, rec := range c.Sessions {
		s.Sessions[i] = rec.Info
	}
	return s
}

type bucket struct {
	mu       sync.Mutex
	clients  map[string]*ClientRecord
	watchers map[uint64]*subscription
}

// Registry is the process-wide client index. The zero value is not usable;
// call New.
type Registry struct {
	mu          sync.RWMutex
	projects    map[string]*bucket
	nextWatcher atomic.Uint64
	logger      zerolog.Logger
}

// New creates an empty registry.
func New(logger zerolog.Logger) *Registry {
	return &Registry{
		projects: make(map[string]*bucket),
		logger:   logger.With().Str("component", "registry").Logger(),
	}
}

// EnsureProject creates the bucket of projectID if it does not exist yet.
func (r *Registry) EnsureProject(projectID string) {
	r.bucket(projectID)
}

func (r *Registry) bucket(projectID string) *bucket {
	r.mu.RLock()
	b, ok := r.projects[projectID]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok = r.projects[projectID]; ok {
		return b
	}
	b = &bucket{
		clients:  make(map[string]*ClientRecord),
		watchers: make(map[uint64]*subscription),
	}
	r.projects[projectID] = b
	return b
}

func (r *Registry) lookup(projectID string) (*bucket, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.projects[projectID]
	return b, ok
}

// Register appends rec to the client of (projectID, token), creating the
// client from info when the token is new. It returns the client as it is
// after the registration.
func (r *Registry) Register(projectID, token string, info vowsock.ClientInfo, rec *SessionRecord) vowsock.ClientSnapshot {
	b := r.bucket(projectID)

	b.mu.Lock()
	defer b.mu.Unlock()

	client, ok := b.clients[token]
	if !ok {
		client = &ClientRecord{Token: token, Info: info}
		b.clients[token] = client
	}
	client.Sessions = append(client.Sessions, rec)
	return client.snapshot()
}

// Deregister removes the session sessionID from the client of
// (projectID, token). The client is deleted with its last session.
//
// removed reports whether the session was registered; remaining is the
// client after removal and is empty when the client was deleted.
func (r *Registry) Deregister(projectID, token, sessionID string) (remaining vowsock.ClientSnapshot, removed bool) {
	b, ok := r.lookup(projectID)
	if !ok {
		return vowsock.ClientSnapshot{}, false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	client, ok := b.clients[token]
	if !ok {
		return vowsock.ClientSnapshot{}, false
	}

	kept := client.Sessions[:0]
	for _, rec := range client.Sessions {
		if rec.ID() == sessionID {
			removed = true
			continue
		}
		kept = append(kept, rec)
	}
	// clear the tail so removed records can be collected
	for i := len(kept); i < len(client.Sessions); i++ {
		client.Sessions[i] = nil
	}
	client.Sessions = kept

	if len(client.Sessions) == 0 {
		delete(b.clients, token)
		return vowsock.ClientSnapshot{}, removed
	}
	return client.snapshot(), removed
}

// Client returns the client of (projectID, token).
func (r *Registry) Client(projectID, token string) (vowsock.ClientSnapshot, bool) {
	b, ok := r.lookup(projectID)
	if !ok {
		return vowsock.ClientSnapshot{}, false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	client, ok := b.clients[token]
	if !ok {
		return vowsock.ClientSnapshot{}, false
	}
	return client.snapshot(), true
}

// Clients returns every client of projectID.
func (r *Registry) Clients(projectID string) []vowsock.ClientSnapshot {
	b, ok := r.lookup(projectID)
	if !ok {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]vowsock.ClientSnapshot, 0, len(b.clients))
	for _, client := range b.clients {
		out = append(out, client.snapshot())
	}
	return out
}

// Session finds a registered session of projectID by id.
func (r *Registry) Session(projectID, sessionID string) (*SessionRecord, bool) {
	b, ok := r.lookup(projectID)
	if !ok {
		return nil, false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, client := range b.clients {
		for _, rec := range client.Sessions {
			if rec.ID() == sessionID {
				return rec, true
			}
		}
	}
	return nil, false
}

// Watch subscribes watcher to the events of projectID. Events reach a
// watcher in the order they were notified.
func (r *Registry) Watch(projectID string, watcher vowsock.Watcher) (cancel func()) {
	if watcher == nil {
		return func() {}
	}
	b := r.bucket(projectID)
	id := r.nextWatcher.Add(1)
	sub := &subscription{registry: r, watcher: watcher}

	b.mu.Lock()
	b.watchers[id] = sub
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.watchers, id)
			b.mu.Unlock()
			sub.cancel()
		})
	}
}

// Notify queues event for every watcher of its project and returns without
// waiting for them. Watchers run outside any registry lock.
func (r *Registry) Notify(event vowsock.WatchEvent) {
	b, ok := r.lookup(event.ProjectID)
	if !ok {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.watchers {
		sub.push(event)
	}
}

func (r *Registry) deliver(w vowsock.Watcher, event vowsock.WatchEvent) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().
				Str("project", event.ProjectID).
				Str("event", string(event.Type)).
				Interface("panic", rec).
				Msg("watcher panicked")
		}
	}()
	w(event)
}

// subscription is the delivery queue of one watcher. At most one goroutine
// drains it, and only while events are pending.
type subscription struct {
	registry *Registry
	watcher  vowsock.Watcher

	mu        sync.Mutex
	queue     []vowsock.WatchEvent
	draining  bool
	cancelled bool
}

func (s *subscription) push(event vowsock.WatchEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelled {
		return
	}
	s.queue = append(s.queue, event)
	if !s.draining {
		s.draining = true
		go s.drain()
	}
}

func (s *subscription) drain() {
	for {
		s.mu.Lock()
		if s.cancelled || len(s.queue) == 0 {
			s.queue = nil
			s.draining = false
			s.mu.Unlock()
			return
		}
		event := s.queue[0]
		s.queue[0] = vowsock.WatchEvent{}
		s.queue = s.queue[1:]
		s.mu.Unlock()

		s.registry.deliver(s.watcher, event)
	}
}

// cancel drops pending events; an event already being delivered completes.
func (s *subscription) cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = true
	s.queue = nil
}
