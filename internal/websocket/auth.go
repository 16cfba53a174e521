package websocket

import (
	"context"
	"net/http"
	"sync"
)

// AuthFunc completes the handshake of one session.
type AuthFunc func(ctx context.Context, token string, authReq *http.Request) error

// AuthTable holds the sessions waiting for authorization, keyed by session id.
// Every entry can be taken once.
type AuthTable struct {
	mu      sync.Mutex
	pending map[string]AuthFunc
}

// NewAuthTable creates an empty table.
func NewAuthTable() *AuthTable {
	return &AuthTable{pending: make(map[string]AuthFunc)}
}

// Add registers fn for sessionID, replacing any previous entry.
func (t *AuthTable) Add(sessionID string, fn AuthFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending[sessionID] = fn
}

// Take removes and returns the entry of sessionID.
func (t *AuthTable) Take(sessionID string) (AuthFunc, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn, ok := t.pending[sessionID]
	if ok {
		delete(t.pending, sessionID)
	}
	return fn, ok
}

// Remove drops the entry of sessionID and reports whether it existed.
func (t *AuthTable) Remove(sessionID string) bool {
	_, ok := t.Take(sessionID)
	return ok
}

// Len returns the number of waiting sessions.
func (t *AuthTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}
