package utils

import (
	"context"
	"testing"
	"time"
)

func TestSlotScriptsCompile(t *testing.T) {
	// Compile-time smoke test: scripts should be initialized.
	if slotAcquireScript == nil || slotRenameScript == nil {
		t.Fatalf("expected scripts to be initialized")
	}
}

func TestAcquireSlot_ValidatesArguments(t *testing.T) {
	ctx := context.Background()
	if _, err := AcquireSlot(ctx, nil, "k", "id", 1, time.Second); err == nil {
		t.Fatalf("expected error for nil client")
	}
	if err := ReleaseSlot(ctx, nil, "k", "id"); err == nil {
		t.Fatalf("expected error for nil client")
	}
	if _, err := CountSlots(ctx, nil, "k"); err == nil {
		t.Fatalf("expected error for nil client")
	}
}
