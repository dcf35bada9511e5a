package routing

import (
	"context"
	"encoding/json"

	"webphone/internal/audit"
)

// AuditAdapter bridges routing's audit hook to the shared audit.Service.
type AuditAdapter struct {
	Audit *audit.Service
}

func (a AuditAdapter) LogRouted(ctx context.Context, e RouteAuditEvent) error {
	if a.Audit == nil {
		return nil
	}
	meta, _ := json.Marshal(map[string]string{
		"from":       e.From,
		"to":         e.To,
		"action":     string(e.Action),
		"connect_to": e.ConnectTo,
	})
	return a.Audit.Append(ctx, audit.Event{
		Identity:  e.Identity,
		Type:      audit.EventTypeCallRouted,
		CallID:    e.ProviderCallID,
		Message:   e.Reason,
		Metadata:  string(meta),
		CreatedAt: e.RoutedAt.UTC(),
	})
}
