// Package protocol implements the gateway frame envelope and handshake
// payloads. The envelope is interpreted here; dispatch payloads stay opaque.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	// MaxFrameSize bounds a single inbound frame.
	MaxFrameSize = 10 * 1024 * 1024
)

// Opcode identifies the kind of a gateway frame.
type Opcode int

const (
	OpDispatch       Opcode = 0
	OpHeartbeat      Opcode = 1
	OpIdentify       Opcode = 2
	OpResume         Opcode = 6
	OpReconnect      Opcode = 7
	OpInvalidSession Opcode = 9
	OpHello          Opcode = 10
	OpHeartbeatACK   Opcode = 11
)

// String returns the opcode's wire name.
func (o Opcode) String() string {
	switch o {
	case OpDispatch:
		return "dispatch"
	case OpHeartbeat:
		return "heartbeat"
	case OpIdentify:
		return "identify"
	case OpResume:
		return "resume"
	case OpReconnect:
		return "reconnect"
	case OpInvalidSession:
		return "invalid_session"
	case OpHello:
		return "hello"
	case OpHeartbeatACK:
		return "heartbeat_ack"
	default:
		return fmt.Sprintf("opcode(%d)", int(o))
	}
}

// Frame is the wire envelope wrapping every gateway message.
//
// Sequence and Type are only populated on dispatch frames (op 0).
type Frame struct {
	Op       Opcode          `json:"op"`
	Data     json.RawMessage `json:"d,omitempty"`
	Sequence *int64          `json:"s,omitempty"`
	Type     string          `json:"t,omitempty"`
}

// Encode marshals a frame carrying the given payload.
func Encode(op Opcode, payload any) ([]byte, error) {
	var (
		data json.RawMessage
		err  error
	)
	if payload != nil {
		data, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode op %s payload: %w", op, err)
		}
	}
	return json.Marshal(Frame{Op: op, Data: data})
}

// Decode unmarshals a frame envelope. The payload is left undecoded.
func Decode(data []byte) (*Frame, error) {
	if len(data) == 0 {
		return nil, errors.New("empty frame")
	}
	if len(data) > MaxFrameSize {
		return nil, fmt.Errorf("frame size %d exceeds maximum %d bytes", len(data), MaxFrameSize)
	}

	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return &f, nil
}

// Hello is the server's first payload, carrying the heartbeat cadence.
type Hello struct {
	HeartbeatInterval int64 `json:"heartbeat_interval"` // milliseconds
}

// IdentifyProperties describes the connecting client.
type IdentifyProperties struct {
	OS      string `json:"os"`
	Browser string `json:"browser"`
	Device  string `json:"device"`
}

// Identify is the fresh-session handshake payload.
type Identify struct {
	Token      string             `json:"token"`
	Properties IdentifyProperties `json:"properties"`
	Intents    int                `json:"intents"`
	Shard      [2]int             `json:"shard"` // [index, total]
}

// Resume re-establishes a previous session from its id and last-seen
// sequence; the server replays missed events up to a RESUMED marker.
type Resume struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
	Sequence  int64  `json:"seq"`
}

// Ready is the payload of the READY dispatch closing a fresh handshake.
type Ready struct {
	SessionID string `json:"session_id"`
	ResumeURL string `json:"resume_gateway_url"`
	Shard     [2]int `json:"shard"`
}

// ParseInvalidSession reports whether an invalid-session frame still allows
// a resume attempt.
func ParseInvalidSession(data json.RawMessage) bool {
	var resumable bool
	if len(data) == 0 {
		return false
	}
	if err := json.Unmarshal(data, &resumable); err != nil {
		return false
	}
	return resumable
}
