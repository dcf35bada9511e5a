package routing

import (
	"context"
	"time"

	"webphone/internal/telephony"
	"webphone/pkg/logger"
)

// RoutingEngine decides what happens to a call leg when the provider asks /voice.
//
// Priority:
//  1. No client identity configured: reject
//  2. Relay-originated leg: greet and bridge to the client
//  3. Inbound call while the client is busy: forward or reject
//  4. Inbound call while the client is offline: forward when a fallback exists
//  5. Inbound call: ring the client
//
// Return routing decision only. Side effects are limited to the optional audit hook.
type RoutingEngine struct {
	Identity        string
	Greeting        string
	InboundGreeting string

	// FallbackNumber receives inbound calls the client cannot take. Optional.
	FallbackNumber string

	Presence PresenceChecker
	Busy     BusyChecker
	Audit    AuditLogger

	Now func() time.Time
}

// PresenceChecker reports whether a client identity currently has a live session.
type PresenceChecker interface {
	Online(identity string) bool
}

// BusyChecker reports whether a client identity is already on a call.
type BusyChecker interface {
	Busy(ctx context.Context, identity string) (bool, error)
}

// AuditLogger records routing outcomes for inbound calls.
type AuditLogger interface {
	LogRouted(ctx context.Context, e RouteAuditEvent) error
}

type RouteAuditEvent struct {
	Identity       string
	ProviderCallID string
	From           string
	To             string

	Action    Action
	ConnectTo string
	Reason    string

	RoutedAt time.Time
}

func NewRoutingEngine(identity, greeting string) *RoutingEngine {
	return &RoutingEngine{Identity: identity, Greeting: greeting, Now: time.Now}
}

func (e *RoutingEngine) Route(ctx context.Context, req telephony.VoiceRequest) (Decision, error) {
	if e.Identity == "" {
		return Decision{Action: ActionReject, Reason: "no_client_identity"}, nil
	}

	if !req.Inbound {
		return Decision{Action: ActionConnectClient, ConnectTo: e.Identity, Say: e.Greeting, Reason: "outbound_leg"}, nil
	}

	d, err := e.routeInbound(ctx, req)
	if err != nil {
		return Decision{}, err
	}

	if e.Audit != nil {
		now := time.Now
		if e.Now != nil {
			now = e.Now
		}
		// Best-effort; routing must not fail because audit did.
		_ = e.Audit.LogRouted(ctx, RouteAuditEvent{
			Identity:       e.Identity,
			ProviderCallID: req.CallSID,
			From:           req.From,
			To:             req.To,
			Action:         d.Action,
			ConnectTo:      d.ConnectTo,
			Reason:         d.Reason,
			RoutedAt:       now(),
		})
	}
	return d, nil
}

func (e *RoutingEngine) routeInbound(ctx context.Context, req telephony.VoiceRequest) (Decision, error) {
	if e.Busy != nil {
		busy, err := e.Busy.Busy(ctx, e.Identity)
		if err != nil {
			// Fail open: a cap outage must not turn callers away.
			logger.From(ctx).Warn("busy check failed, routing to client", "call_sid", req.CallSID, "err", err)
			busy = false
		}
		if busy {
			if e.FallbackNumber != "" {
				return Decision{Action: ActionConnectNumber, ConnectTo: e.FallbackNumber, Reason: "client_busy_forwarded"}, nil
			}
			return Decision{Action: ActionReject, Reason: "client_busy"}, nil
		}
	}

	if e.Presence != nil && e.FallbackNumber != "" && !e.Presence.Online(e.Identity) {
		return Decision{Action: ActionConnectNumber, ConnectTo: e.FallbackNumber, Reason: "client_offline_forwarded"}, nil
	}

	return Decision{Action: ActionConnectClient, ConnectTo: e.Identity, Say: e.InboundGreeting, Reason: "inbound"}, nil
}
