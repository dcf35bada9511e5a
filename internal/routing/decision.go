package routing

// Decision is the provider-agnostic output of the routing engine.
//
// It must contain *only* information required at the provider adapter boundary
// (the TwiML builder) to execute the decision.
type Decision struct {
	Action    Action `json:"action"`
	ConnectTo string `json:"connect_to,omitempty"`

	// Say is spoken to the caller before the action.
	Say string `json:"say,omitempty"`

	// Reason is optional and intended for internal logs and audit.
	Reason string `json:"reason,omitempty"`
}

type Action string

const (
	ActionConnectClient Action = "connect_client"
	ActionConnectNumber Action = "connect_number"
	ActionReject        Action = "reject"
	ActionHangup        Action = "hangup"
)
