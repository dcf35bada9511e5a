package telephony

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the stable, provider-agnostic error taxonomy surfaced to clients.
// Kinds are errors themselves so callers can use errors.Is(err, telephony.KindX).
type Kind string

const (
	KindCredentialFetchFailed Kind = "credential_fetch_failed"
	KindDeviceInitFailed      Kind = "device_init_failed"
	KindCallOriginationFailed Kind = "call_origination_failed"
	KindCallTerminationFailed Kind = "call_termination_failed"
	KindHoldResumeFailed      Kind = "hold_resume_failed"
)

func (k Kind) Error() string { return string(k) }

// Reason refines a Kind and drives the HTTP status used by the relay.
type Reason string

const (
	ReasonInvalidArgument Reason = "invalid_argument"
	ReasonNotFound        Reason = "not_found"
	ReasonConflict        Reason = "conflict"
	ReasonCallActive      Reason = "call_active"
	ReasonUpstreamAuth    Reason = "upstream_auth"
	ReasonRejected        Reason = "rejected"
	ReasonUnavailable     Reason = "unavailable"
)

func (r Reason) Error() string { return string(r) }

// Error is returned by every telephony operation that fails.
// Message is safe to show to end users; Err keeps the underlying cause for logs.
type Error struct {
	Op      string
	Kind    Kind
	Reason  Reason
	Code    int // provider error code, 0 when unknown
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Reason)
	}
	if e.Err != nil {
		return fmt.Sprintf("telephony: %s: %s: %v", e.Op, msg, e.Err)
	}
	return fmt.Sprintf("telephony: %s: %s", e.Op, msg)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	switch t := target.(type) {
	case Kind:
		return e.Kind == t
	case Reason:
		return e.Reason == t
	}
	return false
}

// HTTPStatus maps the error reason onto the relay's response code.
func (e *Error) HTTPStatus() int {
	switch e.Reason {
	case ReasonInvalidArgument:
		return http.StatusBadRequest
	case ReasonNotFound:
		return http.StatusNotFound
	case ReasonConflict, ReasonCallActive:
		return http.StatusConflict
	case ReasonUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func newError(op string, kind Kind, reason Reason, msg string, cause error) *Error {
	return &Error{Op: op, Kind: kind, Reason: reason, Message: msg, Err: cause}
}

// InvalidArgument builds a validation error for the given operation kind.
func InvalidArgument(op string, kind Kind, msg string) *Error {
	return newError(op, kind, ReasonInvalidArgument, msg, nil)
}

// CallActive reports that the identity already has the maximum number of live calls.
func CallActive(op string) *Error {
	return newError(op, KindCallOriginationFailed, ReasonCallActive, "a call is already active", nil)
}

// AsError extracts a *Error from err.
func AsError(err error) (*Error, bool) {
	var te *Error
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// providerError is the JSON error body returned by the provider REST API.
type providerError struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	MoreInfo string `json:"more_info"`
	Status   int    `json:"status"`
}

func (p providerError) Error() string {
	return fmt.Sprintf("provider error %d (http %d): %s", p.Code, p.Status, p.Message)
}

// fromProvider maps a provider failure to the taxonomy without leaking the raw body.
func fromProvider(op string, kind Kind, httpStatus int, pe providerError) *Error {
	e := &Error{Op: op, Kind: kind, Code: pe.Code, Err: pe}

	switch pe.Code {
	case 21211, 21214, 21217, 21215, 13223, 13224:
		e.Reason = ReasonInvalidArgument
		e.Message = "invalid phone number"
		return e
	case 21210, 21212:
		e.Reason = ReasonInvalidArgument
		e.Message = "caller ID is not verified for outbound calls"
		return e
	case 20404:
		e.Reason = ReasonNotFound
		e.Message = "call not found"
		return e
	case 21220:
		e.Reason = ReasonConflict
		e.Message = "call is not in progress"
		return e
	case 20003, 20005:
		e.Reason = ReasonUpstreamAuth
		e.Message = "provider rejected credentials"
		return e
	case 20429:
		e.Reason = ReasonUnavailable
		e.Message = "provider rate limit exceeded"
		return e
	}

	switch {
	case httpStatus == http.StatusNotFound:
		e.Reason = ReasonNotFound
		e.Message = "call not found"
	case httpStatus == http.StatusUnauthorized || httpStatus == http.StatusForbidden:
		e.Reason = ReasonUpstreamAuth
		e.Message = "provider rejected credentials"
	case httpStatus == http.StatusTooManyRequests || httpStatus >= 500:
		e.Reason = ReasonUnavailable
		e.Message = "provider unavailable"
	default:
		e.Reason = ReasonRejected
		e.Message = "provider rejected the request"
	}
	return e
}

// transportError wraps failures reaching the provider at all.
func transportError(op string, kind Kind, cause error) *Error {
	return newError(op, kind, ReasonUnavailable, "provider unreachable", cause)
}
