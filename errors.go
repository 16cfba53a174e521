package vowsock

import "errors"

// Validation errors. All of them are terminal for the connection.
var (
	ErrInvalidProjectEncoding = errors.New("invalid base64 project name")
	ErrMissingProject         = errors.New("missing project name")
	ErrNonexistentProject     = errors.New("nonexistent project")
)

// Frame errors. They drop a single message and leave the connection open.
var (
	ErrCompressionDisabled = errors.New("compressed frame received while compression is disabled")
	ErrDecompress          = errors.New("malformed compressed frame")
	ErrMalformedPayload    = errors.New("malformed json payload")
	ErrEmptyFrame          = errors.New("empty frame")
)

// Session and server errors.
var (
	ErrUnknownSession       = errors.New("no session awaiting authorization")
	ErrEmptyToken           = errors.New("empty authorization token")
	ErrSessionNotFound      = errors.New("session not found")
	ErrConnectionClosed     = errors.New("connection is closed")
	ErrSendQueueFull        = errors.New("send queue is full")
	ErrServerAlreadyRunning = errors.New("server already running")
	ErrInvalidTopic         = errors.New("invalid topic")
	ErrReservedTopic        = errors.New("reserved topic")
	ErrNilHandler           = errors.New("nil handler")
	ErrDuplicateHandler     = errors.New("handler already registered")
)
