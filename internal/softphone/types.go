package softphone

import (
	"time"

	"webphone/internal/telephony"
)

// Status is the device session status.
type Status string

const (
	StatusUninitialized Status = "uninitialized"
	StatusReady         Status = "ready"
	StatusError         Status = "error"
)

// State is the call lifecycle state.
type State string

const (
	StateIdle      State = "idle"
	StateDialing   State = "dialing"
	StateRinging   State = "ringing"
	StateConnected State = "connected"
	StateEnded     State = "ended"
	StateRejected  State = "rejected"
	StateError     State = "error"
)

// IsTerminal reports whether the call slot is cleared after this state is published.
func (s State) IsTerminal() bool {
	switch s {
	case StateEnded, StateRejected, StateError:
		return true
	default:
		return false
	}
}

type Direction string

const (
	DirectionOutgoing Direction = "outgoing"
	DirectionIncoming Direction = "incoming"
)

type Media struct {
	Muted  bool `json:"muted"`
	OnHold bool `json:"on_hold"`
}

// Call is the single call slot of a session.
type Call struct {
	Direction        Direction `json:"direction"`
	RemoteIdentifier string    `json:"remote_identifier"`
	ProviderCallID   string    `json:"provider_call_id"`
	State            State     `json:"state"`
	Media            Media     `json:"media"`
	StartedAt        time.Time `json:"started_at,omitempty"`

	// Elapsed counts duration timer ticks since the call connected.
	Elapsed int `json:"elapsed"`
}

// Snapshot is a consistent copy of the session published after every step.
type Snapshot struct {
	Status Status `json:"status"`
	State  State  `json:"state"`
	Call   *Call  `json:"call,omitempty"`

	TimerRunning bool `json:"timer_running"`

	// Message is the human-readable status line for the UI.
	Message string         `json:"message,omitempty"`
	ErrKind telephony.Kind `json:"error_kind,omitempty"`
}

// Credential is an access token for the provider's realtime channel.
type Credential struct {
	Token     string    `json:"token"`
	Identity  string    `json:"identity"`
	ExpiresAt time.Time `json:"expires_at"`
}
