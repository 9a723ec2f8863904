package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mcdev12/loopradio/go/internal/radio/timeline"
)

// MessageType identifies a relay message on the wire
type MessageType string

const (
	TypeHello MessageType = "hello"
	TypePing  MessageType = "ping"
	TypePong  MessageType = "pong"
)

var (
	// ErrMalformed is returned for payloads that are not valid relay messages
	ErrMalformed = errors.New("malformed message")
	// ErrUnknownType is returned for well-formed messages with an unrecognized type
	ErrUnknownType = errors.New("unknown message type")
)

// TimelineState is the timeline description carried by hello
type TimelineState struct {
	// Always false: the loop never pauses.
	IsPaused       bool    `json:"isPaused"`
	StartAtEpochMs int64   `json:"startAtEpochMs"`
	DurationSec    float64 `json:"durationSec"`
}

// Spec converts the wire state into a timeline spec
func (s TimelineState) Spec() timeline.Spec {
	return timeline.Spec{
		DurationSec:   s.DurationSec,
		AnchorEpochMs: s.StartAtEpochMs,
	}
}

// Hello is sent once by the authority, immediately on connect
type Hello struct {
	Type      MessageType   `json:"type"`
	ServerNow int64         `json:"serverNow"`
	State     TimelineState `json:"state"`
}

// Ping is sent by a client carrying its local monotonic timestamp
type Ping struct {
	Type MessageType `json:"type"`
	Echo float64     `json:"echo"`
}

// Pong answers a ping with the authority time and the echo untouched
type Pong struct {
	Type      MessageType `json:"type"`
	ServerNow int64       `json:"serverNow"`
	Echo      float64     `json:"echo"`
}

// NewHello builds the connect message for spec at authority time serverNow
func NewHello(serverNow int64, spec timeline.Spec) Hello {
	return Hello{
		Type:      TypeHello,
		ServerNow: serverNow,
		State: TimelineState{
			IsPaused:       false,
			StartAtEpochMs: spec.AnchorEpochMs,
			DurationSec:    spec.DurationSec,
		},
	}
}

// NewPing builds a ping carrying echo
func NewPing(echo float64) Ping {
	return Ping{Type: TypePing, Echo: echo}
}

// NewPong answers ping at authority time serverNow
func NewPong(serverNow int64, ping Ping) Pong {
	return Pong{Type: TypePong, ServerNow: serverNow, Echo: ping.Echo}
}

// envelope mirrors every field so required ones can be detected as missing
type envelope struct {
	Type      MessageType     `json:"type"`
	ServerNow *int64          `json:"serverNow"`
	Echo      *float64        `json:"echo"`
	State     json.RawMessage `json:"state"`
}

// Decode parses a relay message into *Hello, *Ping or *Pong.
// Unparsable payloads and messages missing required fields return ErrMalformed;
// a valid message of any other type returns ErrUnknownType.
func Decode(data []byte) (any, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch env.Type {
	case TypeHello:
		if env.ServerNow == nil || len(env.State) == 0 {
			return nil, fmt.Errorf("%w: hello requires serverNow and state", ErrMalformed)
		}
		var state TimelineState
		if err := json.Unmarshal(env.State, &state); err != nil {
			return nil, fmt.Errorf("%w: hello state: %v", ErrMalformed, err)
		}
		return &Hello{Type: TypeHello, ServerNow: *env.ServerNow, State: state}, nil

	case TypePing:
		if env.Echo == nil {
			return nil, fmt.Errorf("%w: ping requires echo", ErrMalformed)
		}
		return &Ping{Type: TypePing, Echo: *env.Echo}, nil

	case TypePong:
		if env.ServerNow == nil || env.Echo == nil {
			return nil, fmt.Errorf("%w: pong requires serverNow and echo", ErrMalformed)
		}
		return &Pong{Type: TypePong, ServerNow: *env.ServerNow, Echo: *env.Echo}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}
