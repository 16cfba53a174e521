package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luciancaetano/vowsock"
)

type stubServer struct {
	vowsock.Server
	handlers map[string]vowsock.Handler
	cached   bool
}

func (s *stubServer) Authorize(_ context.Context, id, token string, authReq *http.Request) error {
	if token == "" {
		return vowsock.ErrEmptyToken
	}
	if id != "s1" {
		return vowsock.ErrUnknownSession
	}
	s.cached = authReq.URL.Query().Get("t") == "1"
	return nil
}

func (s *stubServer) RegisterHandler(topic string, h vowsock.Handler) error {
	if s.handlers == nil {
		s.handlers = make(map[string]vowsock.Handler)
	}
	s.handlers[topic] = h
	return nil
}

func TestAuthorizeHandler(t *testing.T) {
	t.Parallel()

	srv := &stubServer{}
	h := authorizeHandler(srv, zerolog.Nop())

	post := func(target string, form url.Values) int {
		req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusNoContent, post("/authorize?t=1", url.Values{"id": {"s1"}, "token": {"tok"}}))
	assert.True(t, srv.cached)
	assert.Equal(t, http.StatusNotFound, post("/authorize", url.Values{"id": {"s2"}, "token": {"tok"}}))
	assert.Equal(t, http.StatusBadRequest, post("/authorize", url.Values{"id": {"s1"}}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/authorize", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

type stubConn struct {
	vowsock.Conn
}

func (stubConn) ID() string               { return "s1" }
func (stubConn) Project() vowsock.Project { return vowsock.Project{Name: "demo"} }

type recordingResponder struct {
	resolved bool
}

func (r *recordingResponder) Resolve(any) { r.resolved = true }
func (r *recordingResponder) Reject(any)  {}

func TestRegisterHandlers(t *testing.T) {
	t.Parallel()

	srv := &stubServer{}
	require.NoError(t, registerHandlers(srv, zerolog.Nop()))
	assert.Len(t, srv.handlers, 4)

	res := &recordingResponder{}
	srv.handlers[vowsock.TopicLogger](stubConn{}, json.RawMessage(`"hi"`), res)
	assert.True(t, res.resolved)
}
