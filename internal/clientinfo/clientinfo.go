// Package clientinfo derives client and session descriptors from the
// upgrade and authorization requests.
package clientinfo

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/luciancaetano/vowsock"
)

// Describer implements vowsock.ClientDescriber from request headers.
type Describer struct {
	// TrustProxy makes X-Forwarded-For and X-Real-IP authoritative.
	TrustProxy bool
	now        func() time.Time
}

// New creates a describer.
func New(trustProxy bool) *Describer {
	return &Describer{TrustProxy: trustProxy, now: time.Now}
}

// Describe builds the descriptors of a session.
func (d *Describer) Describe(ctx context.Context, upgradeReq, authReq *http.Request, session vowsock.Session) (vowsock.ClientInfo, vowsock.SessionInfo, error) {
	if err := ctx.Err(); err != nil {
		return vowsock.ClientInfo{}, vowsock.SessionInfo{}, err
	}

	src := upgradeReq
	if src == nil {
		src = authReq
	}
	ua := header(src, "User-Agent")
	if ua == "" {
		ua = header(authReq, "User-Agent")
	}
	platform, os := Platform(ua)

	client := vowsock.ClientInfo{
		IP:        d.RemoteIP(src),
		UserAgent: ua,
		Platform:  platform,
		OS:        os,
	}

	page := header(authReq, "Referer")
	if page == "" {
		page = header(upgradeReq, "Origin")
	}
	now := time.Now
	if d.now != nil {
		now = d.now
	}
	info := vowsock.SessionInfo{
		ID:          session.ID,
		URL:         page,
		Debug:       session.Debug,
		Version:     session.Version,
		ConnectedAt: now(),
	}
	return client, info, nil
}

func header(r *http.Request, name string) string {
	if r == nil {
		return ""
	}
	return r.Header.Get(name)
}

// RemoteIP returns the client address of r.
func (d *Describer) RemoteIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if d.TrustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			return strings.TrimSpace(first)
		}
		if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
			return realIP
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

var osMarkers = []struct {
	marker, platform, os string
}{
	{"Windows", "Win32", "Windows"},
	{"Android", "Linux armv8l", "Android"},
	{"iPhone", "iPhone", "iOS"},
	{"iPad", "iPad", "iOS"},
	{"Mac OS X", "MacIntel", "macOS"},
	{"CrOS", "Linux x86_64", "Chrome OS"},
	{"Linux", "Linux x86_64", "Linux"},
}

// Platform guesses navigator.platform and the OS name from a user agent.
func Platform(userAgent string) (platform, os string) {
	for _, m := range osMarkers {
		if strings.Contains(userAgent, m.marker) {
			return m.platform, m.os
		}
	}
	return "", ""
}
