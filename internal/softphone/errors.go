package softphone

import "errors"

var (
	ErrNotReady     = errors.New("softphone: device not ready")
	ErrCallActive   = errors.New("softphone: a call is already active")
	ErrNoCall       = errors.New("softphone: no active call")
	ErrInvalidState = errors.New("softphone: action not allowed in current state")
	ErrClosed       = errors.New("softphone: session closed")
)
