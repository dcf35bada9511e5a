package softphone

import (
	"context"
	"time"

	"webphone/internal/telephony"

	"github.com/golang-jwt/jwt/v5"
)

// tokenExpiry reads exp without verifying the signature; the client never holds the signing key.
func tokenExpiry(token string) (time.Time, bool) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// scheduleRefresh arms a timer that fetches a new credential ahead of expiry.
// Runs on the session goroutine.
func (s *Session) scheduleRefresh(token string) {
	if s.refresh != nil {
		s.refresh.Stop()
		s.refresh = nil
	}
	exp, ok := tokenExpiry(token)
	if !ok {
		s.log.Debug("credential has no readable expiry, refresh disabled")
		return
	}
	s.armRefresh(exp, exp.Sub(s.opts.Now())-s.opts.RefreshBefore)
}

func (s *Session) armRefresh(exp time.Time, wait time.Duration) {
	if wait < 0 {
		wait = 0
	}
	s.refresh = time.AfterFunc(wait, func() { s.refreshCredential(exp) })
}

// refreshCredential runs on the timer goroutine and hands the result to the loop.
func (s *Session) refreshCredential(exp time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cred, err := fetchWithRetry(ctx, s.opts.Relay, s.opts.Retry, s.log)
	_ = s.do(ctx, func(context.Context) error {
		if s.device == nil {
			return nil
		}
		if err == nil && cred.Token != "" {
			if uerr := s.device.UpdateToken(cred.Token); uerr != nil {
				s.log.Warn("device token update failed", "err", uerr)
			} else {
				s.log.Info("credential refreshed")
			}
			s.scheduleRefresh(cred.Token)
			return nil
		}

		remaining := exp.Sub(s.opts.Now())
		if remaining > 0 {
			s.log.Warn("credential refresh failed, will retry", "remaining", remaining, "err", err)
			s.armRefresh(exp, min(30*time.Second, remaining/2))
			return nil
		}
		if err == nil {
			err = &telephony.Error{Op: "refresh_credential", Kind: telephony.KindCredentialFetchFailed, Reason: telephony.ReasonRejected, Message: "credential response carried no token"}
		}
		s.fail(asKind(err, "refresh_credential", telephony.KindCredentialFetchFailed))
		s.status = StatusError
		s.publish()
		return nil
	})
}
