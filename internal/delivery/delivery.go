// Package delivery selects and builds the core payload sent to a session once
// it is authorized.
package delivery

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/luciancaetano/vowsock"
)

// CachedQueryParam is the auth request query parameter telling the server the
// client holds the current core.
const CachedQueryParam = "t"

// Deliverer builds core payloads.
type Deliverer struct {
	Development vowsock.CoreBundle
	Production  vowsock.CoreBundle
	Transforms  vowsock.Transforms
	// Compression is the server-wide compression setting.
	Compression bool
}

// Request is everything known about a session at delivery time.
type Request struct {
	Session    vowsock.Session
	Client     vowsock.ClientInfo
	UpgradeReq *http.Request
	AuthReq    *http.Request
}

// Bundle returns the core matching the debug flag.
func (d *Deliverer) Bundle(debug bool) vowsock.CoreBundle {
	if debug {
		return d.Development
	}
	return d.Production
}

// IsCached reports whether the auth request carries t=1.
func IsCached(authReq *http.Request) bool {
	if authReq == nil || authReq.URL == nil {
		return false
	}
	return authReq.URL.Query().Get(CachedQueryParam) == "1"
}

// Variables builds the client and server context handed to the core.
func (d *Deliverer) Variables(req Request, cached bool) vowsock.Variables {
	var headers http.Header
	if req.UpgradeReq != nil {
		headers = req.UpgradeReq.Header
	}
	return vowsock.Variables{
		Client: vowsock.ClientVariables{
			IP:        req.Client.IP,
			ID:        req.Session.ID,
			UserAgent: req.Client.UserAgent,
			Headers:   SanitizeHeaders(headers),
			Platform:  req.Client.Platform,
			OS:        req.Client.OS,
		},
		Server: vowsock.ServerVariables{
			Compression: d.Compression && !req.Session.Debug,
			Version:     d.Bundle(req.Session.Debug).Hash,
			Cached:      cached,
		},
	}
}

// Payload returns the data of the "core" frame for req: the cached loader
// when the client already holds the current core, the full bundle otherwise.
func (d *Deliverer) Payload(req Request) any {
	cached := IsCached(req.AuthReq)
	vars := d.Variables(req, cached)
	autoExecute := req.Session.Project.Config.AutoExecute
	if cached {
		return d.Transforms.Cache(vars, req.Session.Debug, autoExecute)
	}
	return d.Transforms.Core(d.Bundle(req.Session.Debug), vars, req.Session.Debug, autoExecute)
}

// SanitizeHeaders flattens h, dropping User-Agent since it is sent on its own.
func SanitizeHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		name = http.CanonicalHeaderKey(name)
		if name == "User-Agent" || len(values) == 0 {
			continue
		}
		out[name] = strings.Join(values, ", ")
	}
	return out
}

// LoadBundle reads a core from path. An empty hash is replaced by the
// SHA-256 of the bundle.
func LoadBundle(path, hash string) (vowsock.CoreBundle, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return vowsock.CoreBundle{}, fmt.Errorf("load core bundle: %w", err)
	}
	return NewBundle(string(b), hash), nil
}

// NewBundle wraps source, hashing it when hash is empty.
func NewBundle(source, hash string) vowsock.CoreBundle {
	if hash == "" {
		sum := sha256.Sum256([]byte(source))
		hash = hex.EncodeToString(sum[:])
	}
	return vowsock.CoreBundle{Bundle: source, Hash: hash}
}

// JSONTransforms renders handshake payloads as JSON documents. The result is
// a json.RawMessage, so version 0 clients get it nested under "d" and later
// versions receive the document as a text frame.
type JSONTransforms struct{}

type authPayload struct {
	ID   string `json:"id"`
	Hash string `json:"hash"`
}

type corePayload struct {
	Core        string            `json:"core,omitempty"`
	Vars        vowsock.Variables `json:"vars"`
	Debug       bool              `json:"debug"`
	AutoExecute bool              `json:"autoexecute"`
}

// Auth renders the handshake challenge.
func (JSONTransforms) Auth(sessionID, coreHash string) any {
	return mustRaw(authPayload{ID: sessionID, Hash: coreHash})
}

// Cache renders the cached-core loader.
func (JSONTransforms) Cache(vars vowsock.Variables, debug, autoExecute bool) any {
	return mustRaw(corePayload{Vars: vars, Debug: debug, AutoExecute: autoExecute})
}

// Core renders the full core.
func (JSONTransforms) Core(core vowsock.CoreBundle, vars vowsock.Variables, debug, autoExecute bool) any {
	return mustRaw(corePayload{Core: core.Bundle, Vars: vars, Debug: debug, AutoExecute: autoExecute})
}

func mustRaw(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		// only plain structs of strings, bools and maps reach here
		panic(fmt.Sprintf("delivery: marshal payload: %v", err))
	}
	return b
}
