package softphone

import "context"

// Relay is the server-side capability the session delegates privileged call control to.
type Relay interface {
	FetchCredential(ctx context.Context) (Credential, error)
	OriginateCall(ctx context.Context, phoneNumber string) (callSID string, err error)
	TerminateCall(ctx context.Context, callSID string) error
	SetCallHoldState(ctx context.Context, callSID string, hold bool) error
}

// Connector registers a device with the provider's realtime channel.
type Connector interface {
	Connect(ctx context.Context, token string) (Device, error)
}

// Device is a registered soft-phone endpoint. Events is closed once the device is gone.
type Device interface {
	Events() <-chan DeviceEvent
	UpdateToken(token string) error
	Destroy()
}

// Connection is one live or pending call leg bound to the device.
type Connection interface {
	CallID() string
	From() string
	Accept() error
	Reject() error
	Disconnect() error
	Mute(muted bool) error
}

// TrackController is implemented by connections that can disable their outgoing audio track.
type TrackController interface {
	SetTrackEnabled(enabled bool) error
}

type DeviceEventKind string

const (
	DeviceReady      DeviceEventKind = "ready"
	DeviceError      DeviceEventKind = "error"
	DeviceIncoming   DeviceEventKind = "incoming"
	DeviceAccepted   DeviceEventKind = "accepted"
	DeviceDisconnect DeviceEventKind = "disconnect"
)

// DeviceEvent is pushed by the device. CallID identifies the leg for accepted and disconnect.
type DeviceEvent struct {
	Kind    DeviceEventKind
	CallID  string
	Conn    Connection
	Message string

	// ParentCallID is set on incoming legs the provider bridged from an outgoing call.
	ParentCallID string
}
