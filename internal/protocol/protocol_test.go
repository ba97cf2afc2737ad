package protocol

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/luciancaetano/gatewire"
)

// TestEncodeDecode tests round-tripping frames through the envelope codec
func TestEncodeDecode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		op      Opcode
		payload any
	}{
		{
			name:    "heartbeat with sequence",
			op:      OpHeartbeat,
			payload: int64(42),
		},
		{
			name: "identify",
			op:   OpIdentify,
			payload: Identify{
				Token:   "token",
				Intents: 513,
				Shard:   [2]int{0, 2},
			},
		},
		{
			name: "resume",
			op:   OpResume,
			payload: Resume{
				Token:     "token",
				SessionID: "abc",
				Sequence:  1337,
			},
		},
		{
			name:    "nil payload",
			op:      OpHeartbeatACK,
			payload: nil,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			encoded, err := Encode(tt.op, tt.payload)
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}

			frame, err := Decode(encoded)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}

			if frame.Op != tt.op {
				t.Errorf("op = %v, want %v", frame.Op, tt.op)
			}

			if tt.payload == nil {
				if len(frame.Data) != 0 {
					t.Errorf("data = %s, want empty", frame.Data)
				}
				return
			}

			want, err := json.Marshal(tt.payload)
			if err != nil {
				t.Fatalf("marshal want: %v", err)
			}
			if !bytes.Equal(frame.Data, want) {
				t.Errorf("data = %s, want %s", frame.Data, want)
			}
		})
	}
}

// TestDecodeDispatch tests that dispatch envelopes expose sequence and type
func TestDecodeDispatch(t *testing.T) {
	t.Parallel()

	raw := []byte(`{"op":0,"d":{"id":"1"},"s":7,"t":"MESSAGE_CREATE"}`)

	frame, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	if frame.Op != OpDispatch {
		t.Errorf("op = %v, want dispatch", frame.Op)
	}
	if frame.Sequence == nil || *frame.Sequence != 7 {
		t.Errorf("sequence = %v, want 7", frame.Sequence)
	}
	if frame.Type != "MESSAGE_CREATE" {
		t.Errorf("type = %q, want MESSAGE_CREATE", frame.Type)
	}
}

// TestDecodeErrors tests malformed frame handling
func TestDecodeErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: nil},
		{name: "not json", data: []byte("hello")},
		{name: "oversized", data: []byte("{" + strings.Repeat(" ", MaxFrameSize) + "}")},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if _, err := Decode(tt.data); err == nil {
				t.Error("Decode() expected error, got nil")
			}
		})
	}
}

// TestParseInvalidSession tests the invalid-session resumable flag
func TestParseInvalidSession(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data string
		want bool
	}{
		{name: "resumable", data: "true", want: true},
		{name: "not resumable", data: "false", want: false},
		{name: "missing payload", data: "", want: false},
		{name: "garbage payload", data: `{"x":1}`, want: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := ParseInvalidSession(json.RawMessage(tt.data))
			if got != tt.want {
				t.Errorf("ParseInvalidSession(%q) = %v, want %v", tt.data, got, tt.want)
			}
		})
	}
}

// TestClassifyClose tests close-code recovery classification
func TestClassifyClose(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		code int
		want CloseAction
	}{
		{name: "unknown error resumes", code: gatewire.CloseUnknownError, want: ActionResume},
		{name: "unclassified code resumes", code: 1006, want: ActionResume},
		{name: "invalid sequence identifies", code: gatewire.CloseInvalidSequence, want: ActionIdentify},
		{name: "session timeout identifies", code: gatewire.CloseSessionTimedOut, want: ActionIdentify},
		{name: "rate limited identifies", code: gatewire.CloseRateLimited, want: ActionIdentify},
		{name: "bad credentials fatal", code: gatewire.CloseAuthenticationFailed, want: ActionFatal},
		{name: "invalid shard fatal", code: gatewire.CloseInvalidShard, want: ActionFatal},
		{name: "disallowed intents fatal", code: gatewire.CloseDisallowedIntents, want: ActionFatal},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := ClassifyClose(tt.code); got != tt.want {
				t.Errorf("ClassifyClose(%d) = %v, want %v", tt.code, got, tt.want)
			}
		})
	}
}
