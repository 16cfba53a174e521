// Package validator turns an upgrade request into a session descriptor.
//
// Accepted request targets:
//
//	/v1:UHJvamVjdEE=     version 1, production
//	/$v1:UHJvamVjdEE=    version 1, debug
//	/v0?$UHJvamVjdEE=    version 0, debug (query form)
//
// The character in front of the version digits is a marker and is skipped.
package validator

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/luciancaetano/vowsock"
)

const debugMarker = '$'

// Target is the parsed request target.
type Target struct {
	Version int
	Debug   bool
	// Project is the decoded project name.
	Project string
}

// ParseTarget extracts the version, debug flag and project name from r.
func ParseTarget(r *http.Request) (Target, error) {
	head, project := split(r.URL)

	var t Target
	var headDebug, projectDebug bool
	head, headDebug = stripDebug(head)
	project, projectDebug = stripDebug(project)
	t.Debug = headDebug || projectDebug
	t.Version = parseVersion(head)

	if project == "" {
		return t, vowsock.ErrMissingProject
	}
	name, err := decodeName(project)
	if err != nil {
		return t, fmt.Errorf("%w: %v", vowsock.ErrInvalidProjectEncoding, err)
	}
	if name == "" {
		return t, vowsock.ErrMissingProject
	}
	t.Project = name
	return t, nil
}

// split returns the version segment and the encoded project segment.
func split(u *url.URL) (head, project string) {
	path := u.Path
	if u.RawQuery != "" || u.ForceQuery {
		query := u.RawQuery
		if i := strings.LastIndexByte(query, '?'); i > -1 {
			query = query[i+1:]
		}
		if unescaped, err := url.PathUnescape(query); err == nil {
			query = unescaped
		}
		return lastSegment(path), query
	}

	rest := strings.TrimPrefix(path, "/")
	i := strings.IndexByte(rest, ':')
	if i < 0 {
		return lastSegment(rest), ""
	}
	return lastSegment(rest[:i]), rest[i+1:]
}

func lastSegment(p string) string {
	if i := strings.LastIndexByte(p, '/'); i > -1 {
		return p[i+1:]
	}
	return p
}

func stripDebug(s string) (string, bool) {
	if s != "" && s[0] == debugMarker {
		return s[1:], true
	}
	return s, false
}

// parseVersion skips the marker character and reads the digits after it.
// Anything unparsable is version 0.
func parseVersion(head string) int {
	if len(head) < 2 {
		return 0
	}
	v, err := strconv.Atoi(head[1:])
	if err != nil || v < 0 {
		return 0
	}
	return v
}

var encodings = []*base64.Encoding{
	base64.StdEncoding,
	base64.RawStdEncoding,
	base64.URLEncoding,
	base64.RawURLEncoding,
}

func decodeName(s string) (string, error) {
	var firstErr error
	for _, enc := range encodings {
		b, err := enc.DecodeString(s)
		if err == nil {
			return string(b), nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return "", firstErr
}

// Validator resolves upgrade requests against a project store.
type Validator struct {
	store vowsock.ProjectStore
	newID func() string
}

// New creates a validator backed by store.
func New(store vowsock.ProjectStore) *Validator {
	return &Validator{
		store: store,
		newID: func() string { return uuid.New().String() },
	}
}

// Validate parses r and looks the project up. Every error is terminal for
// the connection.
func (v *Validator) Validate(ctx context.Context, r *http.Request) (vowsock.Session, error) {
	target, err := ParseTarget(r)
	if err != nil {
		return vowsock.Session{}, err
	}

	project, err := v.store.FindByName(ctx, target.Project)
	if err != nil {
		if errors.Is(err, vowsock.ErrNonexistentProject) {
			return vowsock.Session{}, fmt.Errorf("%w %q", vowsock.ErrNonexistentProject, target.Project)
		}
		return vowsock.Session{}, fmt.Errorf("lookup project %q: %w", target.Project, err)
	}

	return vowsock.Session{
		ID:      v.newID(),
		Version: target.Version,
		Debug:   target.Debug,
		Project: project,
	}, nil
}
