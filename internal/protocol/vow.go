package protocol

import (
	"encoding/json"

	"github.com/luciancaetano/vowsock"
)

// unwrapVow rewrites v:[topic, vowId, payload?] into the inner request.
// Anything else under "v" is left as is.
func unwrapVow(msg *Message) {
	var parts []json.RawMessage
	if err := json.Unmarshal(msg.Data, &parts); err != nil || len(parts) < 2 {
		return
	}
	var topic, vow string
	if !decodeString(parts[0], &topic) || !decodeString(parts[1], &vow) {
		return
	}
	msg.Topic = topic
	msg.Vow = vow
	msg.Data = nil
	if len(parts) > 2 {
		msg.Data = parts[2]
	}
}

func decodeString(raw json.RawMessage, out *string) bool {
	if len(raw) == 0 || raw[0] != '"' {
		return false
	}
	return json.Unmarshal(raw, out) == nil
}

// VowResponse builds the payload of a "v" frame answering vow id.
func VowResponse(kind, id string, data any) []any {
	return []any{kind, id, data}
}

// Resolve builds v:["resolve", id, data].
func Resolve(id string, data any) []any {
	return VowResponse(vowsock.VowResolve, id, data)
}

// Reject builds v:["reject", id, data].
func Reject(id string, data any) []any {
	return VowResponse(vowsock.VowReject, id, data)
}
