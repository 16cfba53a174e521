package validator

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luciancaetano/vowsock"
	"github.com/luciancaetano/vowsock/internal/projects"
)

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

// TestParseTarget tests request target parsing
func TestParseTarget(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		target  string
		want    Target
		wantErr error
	}{
		{name: "production v0", target: "/v0:" + b64("ProjectA"), want: Target{Version: 0, Project: "ProjectA"}},
		{name: "debug v1", target: "/$v1:" + b64("ProjectA"), want: Target{Version: 1, Debug: true, Project: "ProjectA"}},
		{name: "debug on project segment", target: "/v1:$" + b64("demo"), want: Target{Version: 1, Debug: true, Project: "demo"}},
		{name: "multi digit version", target: "/v12:" + b64("demo"), want: Target{Version: 12, Project: "demo"}},
		{name: "mounted under a prefix", target: "/ws/v2:" + b64("demo"), want: Target{Version: 2, Project: "demo"}},
		{name: "query form", target: "/v1?" + b64("demo"), want: Target{Version: 1, Project: "demo"}},
		{name: "query form debug", target: "/i1?$" + b64("demo"), want: Target{Version: 1, Debug: true, Project: "demo"}},
		{name: "unparsable version", target: "/vx:" + b64("demo"), want: Target{Version: 0, Project: "demo"}},
		{name: "missing version", target: "/:" + b64("demo"), want: Target{Version: 0, Project: "demo"}},
		{name: "unpadded base64", target: "/v1:ZGVtbw", want: Target{Version: 1, Project: "demo"}},
		{name: "slash inside base64", target: "/v1:" + b64("???"), want: Target{Version: 1, Project: "???"}},
		{name: "invalid base64", target: "/v1:!!!!", wantErr: vowsock.ErrInvalidProjectEncoding},
		{name: "empty project", target: "/v1:", wantErr: vowsock.ErrMissingProject},
		{name: "empty debug project", target: "/v1:$", wantErr: vowsock.ErrMissingProject},
		{name: "no project at all", target: "/v1", wantErr: vowsock.ErrMissingProject},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseTarget(httptest.NewRequest("GET", tt.target, nil))
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v, want %v", err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// TestValidate tests project resolution
func TestValidate(t *testing.T) {
	t.Parallel()

	demo := vowsock.Project{ID: "p1", Name: "demo", Config: vowsock.ProjectConfig{AutoExecute: true}}
	v := New(projects.NewMemoryStore(demo))

	t.Run("existing project", func(t *testing.T) {
		t.Parallel()

		session, err := v.Validate(context.Background(), httptest.NewRequest("GET", "/$v1:"+b64("demo"), nil))
		require.NoError(t, err)
		assert.Equal(t, 1, session.Version)
		assert.True(t, session.Debug)
		assert.Equal(t, demo, session.Project)
		assert.Len(t, session.ID, 36)
	})

	t.Run("fresh id per session", func(t *testing.T) {
		t.Parallel()

		r := httptest.NewRequest("GET", "/v0:"+b64("demo"), nil)
		a, err := v.Validate(context.Background(), r)
		require.NoError(t, err)
		b, err := v.Validate(context.Background(), r)
		require.NoError(t, err)
		assert.NotEqual(t, a.ID, b.ID)
	})

	t.Run("nonexistent project", func(t *testing.T) {
		t.Parallel()

		_, err := v.Validate(context.Background(), httptest.NewRequest("GET", "/v0:"+b64("nope"), nil))
		assert.ErrorIs(t, err, vowsock.ErrNonexistentProject)
		assert.Contains(t, err.Error(), `"nope"`)
	})

	t.Run("store failure", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := v.Validate(ctx, httptest.NewRequest("GET", "/v0:"+b64("demo"), nil))
		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, errors.Is(err, vowsock.ErrNonexistentProject))
	})
}
