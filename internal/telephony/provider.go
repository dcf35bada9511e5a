package telephony

import (
	"context"
	"regexp"
	"strings"
	"time"
)

// CallControl is the minimal capability the relay needs from a telephony provider.
//
// Rules:
// - No provider SDK or REST calls outside telephony adapters.
// - Errors returned are *Error values carrying the stable taxonomy.
type CallControl interface {
	OriginateCall(ctx context.Context, req OriginateRequest) (OriginateResult, error)
	TerminateCall(ctx context.Context, callSID string) error
	SetCallHoldState(ctx context.Context, callSID string, hold bool) error
}

// Provider is a CallControl with identity and liveness.
type Provider interface {
	CallControl
	Name() string
	HealthCheck(ctx context.Context) error
}

// OriginateRequest asks the provider to dial To and bridge the answered leg back to Identity.
type OriginateRequest struct {
	To       string `json:"to"`
	Identity string `json:"identity"`
}

type OriginateResult struct {
	CallSID string `json:"call_sid"`
	Status  string `json:"status"`
	From    string `json:"from"`
	To      string `json:"to"`
}

// CallStatus mirrors the provider's call progress values.
type CallStatus string

const (
	CallStatusQueued     CallStatus = "queued"
	CallStatusInitiated  CallStatus = "initiated"
	CallStatusRinging    CallStatus = "ringing"
	CallStatusInProgress CallStatus = "in-progress"
	CallStatusCompleted  CallStatus = "completed"
	CallStatusBusy       CallStatus = "busy"
	CallStatusFailed     CallStatus = "failed"
	CallStatusNoAnswer   CallStatus = "no-answer"
	CallStatusCanceled   CallStatus = "canceled"
)

// IsTerminal reports whether no further progress events follow this status.
func (s CallStatus) IsTerminal() bool {
	switch s {
	case CallStatusCompleted, CallStatusBusy, CallStatusFailed, CallStatusNoAnswer, CallStatusCanceled:
		return true
	default:
		return false
	}
}

// StatusEvent is a provider call-progress notification in internal form.
type StatusEvent struct {
	CallSID         string     `json:"call_sid"`
	ParentCallSID   string     `json:"parent_call_sid,omitempty"`
	Status          CallStatus `json:"status"`
	Direction       string     `json:"direction"`
	From            string     `json:"from"`
	To              string     `json:"to"`
	DurationSeconds int        `json:"duration_seconds"`
	OccurredAt      time.Time  `json:"occurred_at"`
}

var (
	e164Pattern    = regexp.MustCompile(`^\+?[1-9][0-9]{6,14}$`)
	callSIDPattern = regexp.MustCompile(`^[A-Za-z0-9]{2,64}$`)
	phoneNoise     = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "")
)

// NormalizeDialTarget validates a dial target and returns it in canonical form.
// Phone numbers lose formatting characters; sip: URIs are passed through.
func NormalizeDialTarget(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	if strings.HasPrefix(strings.ToLower(s), "sip:") {
		return s, len(s) > len("sip:")
	}
	n := phoneNoise.Replace(s)
	if !e164Pattern.MatchString(n) {
		return "", false
	}
	return n, true
}

// ValidCallSID reports whether s can safely be used as a call identifier in provider URLs.
func ValidCallSID(s string) bool {
	return callSIDPattern.MatchString(s)
}
