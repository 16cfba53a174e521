package vowsock

// Reserved topics.
const (
	// TopicAuth carries the handshake challenge.
	TopicAuth = "auth"
	// TopicCore carries the core bundle or the cached-core loader.
	TopicCore = "core"
	// TopicVow wraps correlated requests and their responses.
	TopicVow = "v"
	// TopicRateLimiter is sent when a frame was refused by the rate limiter.
	TopicRateLimiter = "rate-limiter"
	// TopicExecute pushes a script to a session.
	TopicExecute = "execute"
	// TopicScroll pushes a scroll position to a session.
	TopicScroll = "scroll"
)

// Vow response kinds.
const (
	VowResolve = "resolve"
	VowReject  = "reject"
)

// Topics used by the browser core. They only matter here for token costs and
// for silencing rate-limit notices.
const (
	TopicPageGhost  = "p"
	TopicLogger     = "l"
	TopicError      = "e"
	TopicModule     = "module"
	TopicClientInfo = "i"
	TopicHeartbeat  = "heartbeat"
)

// CompressedMarker prefixes a compressed frame.
const CompressedMarker = '#'

// IsReserved reports whether topic is handled by the protocol itself and can
// not be bound to a command handler.
func IsReserved(topic string) bool {
	switch topic {
	case TopicAuth, TopicCore, TopicVow:
		return true
	}
	return false
}

// IsHandshake reports whether topic bypasses framing and compression.
func IsHandshake(topic string) bool {
	return topic == TopicAuth || topic == TopicCore
}
