package softphone

import (
	"context"
	"log/slog"
	"time"
)

// RetryPolicy bounds credential fetch attempts with exponential backoff.
type RetryPolicy struct {
	Attempts int
	Initial  time.Duration
	Max      time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.Attempts <= 0 {
		p.Attempts = 3
	}
	if p.Initial <= 0 {
		p.Initial = 500 * time.Millisecond
	}
	if p.Max <= 0 {
		p.Max = 5 * time.Second
	}
	return p
}

func (p RetryPolicy) backoff(attempt int) time.Duration {
	d := p.Initial
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.Max {
			return p.Max
		}
	}
	return d
}

func fetchWithRetry(ctx context.Context, r Relay, p RetryPolicy, log *slog.Logger) (Credential, error) {
	var lastErr error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		cred, err := r.FetchCredential(ctx)
		if err == nil {
			return cred, nil
		}
		lastErr = err
		if ctx.Err() != nil || attempt == p.Attempts {
			break
		}

		wait := p.backoff(attempt)
		log.Warn("credential fetch failed, retrying", "attempt", attempt, "wait", wait, "err", err)
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return Credential{}, ctx.Err()
		case <-t.C:
		}
	}
	return Credential{}, lastErr
}
