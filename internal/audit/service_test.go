package audit

import (
	"context"
	"testing"
)

func TestService_AppendRequiresIdentityAndType(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	if err := svc.Append(context.Background(), Event{Type: EventTypeCallOriginated}); err == nil {
		t.Fatalf("expected error")
	}
	if err := svc.Append(context.Background(), Event{Identity: "web-user"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestService_CapturesClientIPFromContext(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	ctx := WithClientIP(context.Background(), "1.2.3.4")
	if err := svc.LogCallAction(ctx, EventTypeCallHeld, "web-user", "CA1", "hold"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	evs := repo.Events()
	if len(evs) != 1 {
		t.Fatalf("expected 1 event")
	}
	if evs[0].IPAddress != "1.2.3.4" {
		t.Fatalf("expected ip captured")
	}
	if evs[0].Type != EventTypeCallHeld || evs[0].CallID != "CA1" {
		t.Fatalf("unexpected event: %+v", evs[0])
	}
	if evs[0].ID == "" || evs[0].CreatedAt.IsZero() {
		t.Fatalf("expected id and timestamp filled")
	}
}

func TestWithClientIP_IgnoresEmpty(t *testing.T) {
	ctx := WithClientIP(context.Background(), "")
	if got := ClientIPFromContext(ctx); got != "" {
		t.Fatalf("expected empty ip, got %q", got)
	}
}
