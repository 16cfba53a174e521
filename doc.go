// Package vowsock is the server side of the control channel an injected
// browser core keeps open with its controller.
//
// # Connecting
//
// A browser opens a WebSocket whose path names the wire format version and
// the target project, base64 encoded:
//
//	/v1:ZGVtbw==      version 1, project "demo"
//	/$v1:ZGVtbw==     the same session in debug mode
//	/v1?ZGVtbw==      query form
//
// The project is resolved through a ProjectStore before the upgrade; unknown
// projects never get a socket. After a short delay the server sends an
// "auth" frame carrying the session id and the core hash, and waits for the
// embedding application to call Server.Authorize with a token. Authorization
// registers the session under its token, notifies project watchers and
// delivers the core (or only the variables when the auth request carries
// t=1).
//
// # Frames
//
// Every frame is "topic" or "topic:json". Outside debug sessions, frames may
// be compressed when the server enables compression: "#" followed by the
// deflated frame written as a binary string. A request wrapped as
//
//	v:["topic","vowId",payload]
//
// is dispatched to the handler of topic, and the handler's Responder answers
// with "v:[\"resolve\"|\"reject\",vowId,data]".
//
// # Rate limiting
//
// Authorized sessions share nothing: each one owns a token bucket that
// refills over a window. Refused frames produce a throttled "rate-limiter"
// notice, except for quiet topics such as page ghosting which are dropped
// silently.
//
// The ws package builds a ready to run Server from a TOML configuration.
package vowsock
