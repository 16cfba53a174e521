// Package protocol implements the text framing used on the control channel.
//
// A frame is "topic" or "topic:json". Frames other than the handshake topics
// may be deflated and sent as "#" followed by the compressed bytes written as
// a binary string (one character per byte). Requests can be wrapped in a vow,
// "v:[topic, vowId, payload]", so that the reply can be correlated.
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/luciancaetano/vowsock"
)

const maxPayloadSize = 10 * 1024 * 1024 // 10MB max frame size

// MaxFrameSize is the largest frame accepted in either direction.
const MaxFrameSize = maxPayloadSize

// FrameOptions carries the per-session values that change how a frame is encoded.
type FrameOptions struct {
	Version int
	Debug   bool
}

// Frame is an encoded outbound message.
type Frame struct {
	Data   []byte
	Binary bool
}

// Message is a decoded inbound frame.
type Message struct {
	Topic string
	Data  json.RawMessage
	// Vow is the correlation id of a vow-wrapped request, empty otherwise.
	Vow        string
	Compressed bool
}

// Codec encodes and decodes frames. The zero value has compression disabled.
type Codec struct {
	Compression bool
}

// NewCodec returns a codec with compression set as given.
func NewCodec(compression bool) Codec {
	return Codec{Compression: compression}
}

// Encode frames data under topic.
func (c Codec) Encode(topic string, data any, opts FrameOptions) (Frame, error) {
	if topic == "" {
		return Frame{}, vowsock.ErrInvalidTopic
	}
	if vowsock.IsHandshake(topic) {
		return encodeHandshake(data, opts.Version)
	}

	body, err := marshalPayload(data)
	if err != nil {
		return Frame{}, fmt.Errorf("encode %q: %w", topic, err)
	}

	out := make([]byte, 0, len(topic)+1+len(body))
	out = append(out, topic...)
	if body != nil {
		out = append(out, ':')
		out = append(out, body...)
	}

	if c.Compression && !opts.Debug {
		compressed, err := deflate(out)
		if err != nil {
			return Frame{}, fmt.Errorf("compress %q: %w", topic, err)
		}
		out = append([]byte{vowsock.CompressedMarker}, compressed...)
	}

	if len(out) > maxPayloadSize {
		return Frame{}, fmt.Errorf("frame size %d exceeds maximum %d bytes", len(out), maxPayloadSize)
	}
	return Frame{Data: out}, nil
}

// encodeHandshake bypasses framing: version 0 clients expect {"d": data},
// later versions receive the transform output untouched.
func encodeHandshake(data any, version int) (Frame, error) {
	if version == 0 {
		out, err := json.Marshal(struct {
			D any `json:"d"`
		}{D: data})
		if err != nil {
			return Frame{}, err
		}
		return Frame{Data: out}, nil
	}

	switch v := data.(type) {
	case string:
		return Frame{Data: []byte(v)}, nil
	case []byte:
		return Frame{Data: v, Binary: true}, nil
	case json.RawMessage:
		return Frame{Data: v}, nil
	}
	out, err := json.Marshal(data)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Data: out}, nil
}

// marshalPayload returns nil for absent data so that the colon is omitted.
func marshalPayload(data any) ([]byte, error) {
	switch v := data.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		if len(v) == 0 {
			return nil, nil
		}
	}
	return json.Marshal(data)
}

// Decode parses an inbound frame. Errors only concern this frame.
func (c Codec) Decode(raw []byte) (Message, error) {
	if len(raw) == 0 {
		return Message{}, vowsock.ErrEmptyFrame
	}
	if len(raw) > maxPayloadSize {
		return Message{}, fmt.Errorf("frame size %d exceeds maximum %d bytes", len(raw), maxPayloadSize)
	}

	var msg Message
	if raw[0] == vowsock.CompressedMarker {
		if !c.Compression {
			return Message{}, vowsock.ErrCompressionDisabled
		}
		inflated, err := inflate(raw[1:])
		if err != nil {
			return Message{}, fmt.Errorf("%w: %v", vowsock.ErrDecompress, err)
		}
		raw = inflated
		msg.Compressed = true
	}

	if sep := bytes.IndexByte(raw, ':'); sep > -1 {
		msg.Topic = string(raw[:sep])
		payload := raw[sep+1:]
		if !json.Valid(payload) {
			return Message{}, vowsock.ErrMalformedPayload
		}
		msg.Data = append(json.RawMessage(nil), payload...)
	} else {
		msg.Topic = string(raw)
	}

	if msg.Topic == vowsock.TopicVow {
		unwrapVow(&msg)
	}
	return msg, nil
}
