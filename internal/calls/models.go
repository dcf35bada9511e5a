package calls

import (
	"time"

	"webphone/internal/telephony"
)

// Record is the relay's observational log of one provider call leg.
//
// The relay never consults records for control decisions; they exist for reporting
// and for operators reconstructing what happened to a call.
type Record struct {
	ID             string `json:"id" db:"id"`
	ProviderCallID string `json:"provider_call_id" db:"provider_call_id"`

	// Identity is the browser client the call belongs to.
	Identity  string    `json:"identity" db:"identity"`
	Direction Direction `json:"direction" db:"direction"`

	From string `json:"from" db:"from_number"`
	To   string `json:"to" db:"to_number"`

	Status CallStatus `json:"status" db:"status"`

	// Duration is the call duration in seconds.
	DurationSeconds int `json:"duration" db:"duration"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Direction string

const (
	DirectionOutbound Direction = "outbound"
	DirectionInbound  Direction = "inbound"
)

type CallStatus string

const (
	CallStatusQueued     CallStatus = "queued"
	CallStatusRinging    CallStatus = "ringing"
	CallStatusInProgress CallStatus = "in_progress"
	CallStatusCompleted  CallStatus = "completed"
	CallStatusFailed     CallStatus = "failed"
	CallStatusNoAnswer   CallStatus = "no_answer"
	CallStatusBusy       CallStatus = "busy"
	CallStatusCanceled   CallStatus = "canceled"
)

// IsTerminal reports whether the call has finished.
func (s CallStatus) IsTerminal() bool {
	switch s {
	case CallStatusCompleted, CallStatusFailed, CallStatusNoAnswer, CallStatusBusy, CallStatusCanceled:
		return true
	}
	return false
}

// rank orders statuses so late or duplicated callbacks cannot move a call backwards.
func (s CallStatus) rank() int {
	switch s {
	case CallStatusQueued:
		return 0
	case CallStatusRinging:
		return 1
	case CallStatusInProgress:
		return 2
	}
	if s.IsTerminal() {
		return 3
	}
	return -1
}

// StatusFromProvider maps provider progress values onto record statuses.
func StatusFromProvider(s telephony.CallStatus) (CallStatus, bool) {
	switch s {
	case telephony.CallStatusQueued, telephony.CallStatusInitiated:
		return CallStatusQueued, true
	case telephony.CallStatusRinging:
		return CallStatusRinging, true
	case telephony.CallStatusInProgress:
		return CallStatusInProgress, true
	case telephony.CallStatusCompleted:
		return CallStatusCompleted, true
	case telephony.CallStatusBusy:
		return CallStatusBusy, true
	case telephony.CallStatusFailed:
		return CallStatusFailed, true
	case telephony.CallStatusNoAnswer:
		return CallStatusNoAnswer, true
	case telephony.CallStatusCanceled:
		return CallStatusCanceled, true
	}
	return "", false
}

// Filter selects records created in [From, To).
type Filter struct {
	Identity string
	From     time.Time
	To       time.Time
}
