package relay

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"webphone/internal/audit"
	"webphone/internal/auth"
	"webphone/internal/calls"
	"webphone/internal/events"
	"webphone/internal/telephony"

	"github.com/google/uuid"
)

// TokenMinter issues client credentials.
type TokenMinter interface {
	MintVoiceToken(now time.Time, identity string) (auth.VoiceToken, error)
}

// Publisher pushes realtime events to subscribers of an identity.
type Publisher interface {
	Publish(identity string, ev events.Event)
}

// Deps are the collaborators of Service. Records, Audit, Cap and Events are optional.
type Deps struct {
	Identity string
	Tokens   TokenMinter
	Calls    telephony.CallControl

	Records *calls.Service
	Audit   *audit.Service
	Cap     CallCap
	Events  Publisher

	Log *slog.Logger
	Now func() time.Time
}

// Service implements the relay's call-control commands. It holds no call state;
// optional records and the cap are side channels that never gate terminate, hold or resume.
type Service struct {
	d Deps
}

func New(d Deps) (*Service, error) {
	if d.Identity == "" {
		return nil, errors.New("relay: client identity is required")
	}
	if d.Tokens == nil || d.Calls == nil {
		return nil, errors.New("relay: token minter and call control are required")
	}
	if d.Log == nil {
		d.Log = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Service{d: d}, nil
}

func (s *Service) Identity() string { return s.d.Identity }

// IssueToken mints a credential for the configured client identity.
func (s *Service) IssueToken(ctx context.Context) (auth.VoiceToken, error) {
	vt, err := s.d.Tokens.MintVoiceToken(s.d.Now(), s.d.Identity)
	if err != nil {
		return auth.VoiceToken{}, &telephony.Error{
			Op:      "issue_token",
			Kind:    telephony.KindCredentialFetchFailed,
			Reason:  telephony.ReasonRejected,
			Message: "token issuance failed",
			Err:     err,
		}
	}
	s.audit(ctx, audit.EventTypeTokenIssued, "", "access token issued")
	return vt, nil
}

// StartCall asks the provider to dial phoneNumber and bridge the answered leg to the client.
func (s *Service) StartCall(ctx context.Context, phoneNumber string) (telephony.OriginateResult, error) {
	const op = "start_call"

	if strings.TrimSpace(phoneNumber) == "" {
		return telephony.OriginateResult{}, telephony.InvalidArgument(op, telephony.KindCallOriginationFailed, "phoneNumber is required")
	}
	to, ok := telephony.NormalizeDialTarget(phoneNumber)
	if !ok {
		return telephony.OriginateResult{}, telephony.InvalidArgument(op, telephony.KindCallOriginationFailed, "phone number is invalid")
	}

	reservation := ""
	if s.d.Cap != nil {
		reservation = "pending-" + uuid.NewString()
		acquired, err := s.d.Cap.Acquire(ctx, s.d.Identity, reservation)
		switch {
		case err != nil:
			// The cap is advisory; an unreachable store must not block calling.
			s.d.Log.Warn("call cap unavailable, continuing", "err", err)
			reservation = ""
		case !acquired:
			return telephony.OriginateResult{}, telephony.CallActive(op)
		}
	}

	res, err := s.d.Calls.OriginateCall(ctx, telephony.OriginateRequest{To: to, Identity: s.d.Identity})
	if err != nil {
		s.release(ctx, reservation)
		return telephony.OriginateResult{}, err
	}

	if reservation != "" {
		if err := s.d.Cap.Rename(ctx, s.d.Identity, reservation, res.CallSID); err != nil {
			s.d.Log.Warn("call cap rename failed", "call_sid", res.CallSID, "err", err)
		}
	}
	if s.d.Records != nil {
		if _, err := s.d.Records.RecordOutbound(ctx, s.d.Identity, res); err != nil {
			s.d.Log.Warn("call record failed", "call_sid", res.CallSID, "err", err)
		}
	}
	s.audit(ctx, audit.EventTypeCallOriginated, res.CallSID, "call started")
	s.publish(events.Event{
		Type:      events.TypeCallStatus,
		CallSID:   res.CallSID,
		Status:    res.Status,
		From:      res.From,
		To:        res.To,
		Direction: "outbound-api",
		At:        s.d.Now().UTC(),
	})
	return res, nil
}

// EndCall terminates callSid at the provider.
func (s *Service) EndCall(ctx context.Context, callSID string) error {
	const op = "end_call"
	if err := validateSID(op, telephony.KindCallTerminationFailed, callSID); err != nil {
		return err
	}

	err := s.d.Calls.TerminateCall(ctx, callSID)
	if err != nil && !errors.Is(err, telephony.ReasonNotFound) {
		return err
	}
	// A call the provider no longer knows cannot hold a slot either.
	s.release(ctx, callSID)
	if err != nil {
		return err
	}
	s.audit(ctx, audit.EventTypeCallTerminated, callSID, "call ended")
	return nil
}

// Hold parks the remote party on hold music.
func (s *Service) Hold(ctx context.Context, callSID string) error {
	return s.setHold(ctx, "hold_call", callSID, true)
}

// Resume bridges the remote party back to the client.
func (s *Service) Resume(ctx context.Context, callSID string) error {
	return s.setHold(ctx, "resume_call", callSID, false)
}

func (s *Service) setHold(ctx context.Context, op, callSID string, hold bool) error {
	if err := validateSID(op, telephony.KindHoldResumeFailed, callSID); err != nil {
		return err
	}
	if err := s.d.Calls.SetCallHoldState(ctx, callSID, hold); err != nil {
		return err
	}
	if hold {
		s.audit(ctx, audit.EventTypeCallHeld, callSID, "call on hold")
	} else {
		s.audit(ctx, audit.EventTypeCallResumed, callSID, "call resumed")
	}
	return nil
}

// HandleStatus consumes provider status callbacks: it updates records, frees the
// cap slot once the call is over, and pushes the event to the client.
func (s *Service) HandleStatus(ctx context.Context, ev telephony.StatusEvent) error {
	identity := s.d.Identity
	sid := ev.CallSID

	if s.d.Records != nil {
		rec, err := s.d.Records.ApplyStatus(ctx, ev)
		switch {
		case errors.Is(err, calls.ErrNotFound), errors.Is(err, calls.ErrInvalidRecord):
			s.d.Log.Debug("status for unrecorded call", "call_sid", ev.CallSID, "status", ev.Status)
		case err != nil:
			return err
		default:
			identity = rec.Identity
			sid = rec.ProviderCallID
		}
	}

	if ev.Status.IsTerminal() {
		s.release(ctx, sid)
	}

	out := events.StatusEvent(ev)
	// Subscribers track the leg they know about.
	out.CallSID = sid
	if s.d.Events != nil {
		s.d.Events.Publish(identity, out)
	}
	return nil
}

// NotifyIncoming is called when an inbound call is about to ring identity.
func (s *Service) NotifyIncoming(ctx context.Context, identity string, req telephony.VoiceRequest) {
	if s.d.Records != nil {
		if _, err := s.d.Records.RecordInbound(ctx, identity, req); err != nil {
			s.d.Log.Warn("call record failed", "call_sid", req.CallSID, "err", err)
		}
	}
	if s.d.Cap != nil {
		// Routing already checked the cap; this only makes the call visible to it.
		if _, err := s.d.Cap.Acquire(ctx, identity, req.CallSID); err != nil {
			s.d.Log.Warn("call cap unavailable", "call_sid", req.CallSID, "err", err)
		}
	}
	if s.d.Events != nil {
		s.d.Events.Publish(identity, events.IncomingEvent(req, s.d.Now()))
	}
}

func (s *Service) release(ctx context.Context, id string) {
	if s.d.Cap == nil || id == "" {
		return
	}
	if err := s.d.Cap.Release(ctx, s.d.Identity, id); err != nil {
		s.d.Log.Warn("call cap release failed", "id", id, "err", err)
	}
}

func (s *Service) audit(ctx context.Context, typ audit.EventType, callSID, msg string) {
	if s.d.Audit == nil {
		return
	}
	if err := s.d.Audit.LogCallAction(ctx, typ, s.d.Identity, callSID, msg); err != nil {
		s.d.Log.Warn("audit append failed", "type", typ, "call_sid", callSID, "err", err)
	}
}

func (s *Service) publish(ev events.Event) {
	if s.d.Events != nil {
		s.d.Events.Publish(s.d.Identity, ev)
	}
}

func validateSID(op string, kind telephony.Kind, callSID string) error {
	if strings.TrimSpace(callSID) == "" {
		return telephony.InvalidArgument(op, kind, "callSid is required")
	}
	if !telephony.ValidCallSID(callSID) {
		return telephony.InvalidArgument(op, kind, "callSid is invalid")
	}
	return nil
}
