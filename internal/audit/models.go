package audit

import "time"

// Event is an immutable, append-only audit log record.
//
// Invariants:
// - Events are never updated or deleted.
// - identity is required; every relay command acts on behalf of one client identity.
// - ip capture is best-effort; do not block call control on audit failures.
type Event struct {
	ID       string    `json:"id" db:"id"`
	Identity string    `json:"identity" db:"identity"`
	Type     EventType `json:"type" db:"type"`

	// IPAddress is the resolved client IP of the relay request, when there was one.
	IPAddress string `json:"ip_address,omitempty" db:"ip_address"`

	CallID string `json:"call_id,omitempty" db:"call_id"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeTokenIssued    EventType = "token_issued"
	EventTypeCallOriginated EventType = "call_originated"
	EventTypeCallTerminated EventType = "call_terminated"
	EventTypeCallHeld       EventType = "call_held"
	EventTypeCallResumed    EventType = "call_resumed"
	EventTypeCallRouted     EventType = "call_routed"
)
