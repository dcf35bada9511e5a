package calls

import (
	"context"
	"errors"
	"time"

	"webphone/internal/telephony"

	"github.com/google/uuid"
)

var ErrInvalidRecord = errors.New("calls: invalid record")

// Service maintains call records from relay commands and provider status callbacks.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

// RecordOutbound logs a call the relay originated on behalf of identity.
func (s *Service) RecordOutbound(ctx context.Context, identity string, res telephony.OriginateResult) (Record, error) {
	status, ok := StatusFromProvider(telephony.CallStatus(res.Status))
	if !ok {
		status = CallStatusQueued
	}
	return s.create(ctx, Record{
		ProviderCallID: res.CallSID,
		Identity:       identity,
		Direction:      DirectionOutbound,
		From:           res.From,
		To:             res.To,
		Status:         status,
	})
}

// RecordInbound logs an inbound call that is about to ring identity.
func (s *Service) RecordInbound(ctx context.Context, identity string, req telephony.VoiceRequest) (Record, error) {
	return s.create(ctx, Record{
		ProviderCallID: req.CallSID,
		Identity:       identity,
		Direction:      DirectionInbound,
		From:           req.From,
		To:             req.To,
		Status:         CallStatusRinging,
	})
}

func (s *Service) create(ctx context.Context, r Record) (Record, error) {
	if s.repo == nil {
		return Record{}, errors.New("calls: repository not configured")
	}
	if r.ProviderCallID == "" || r.Identity == "" {
		return Record{}, ErrInvalidRecord
	}
	now := s.clock().UTC()
	r.ID = uuid.NewString()
	r.CreatedAt = now
	r.UpdatedAt = now
	if err := s.repo.Create(ctx, r); err != nil {
		return Record{}, err
	}
	return r, nil
}

// ApplyStatus folds a provider status event into the stored record.
// Events for unknown calls return ErrNotFound. Statuses never move backwards, so
// out-of-order callbacks leave the record as is.
func (s *Service) ApplyStatus(ctx context.Context, ev telephony.StatusEvent) (Record, error) {
	if s.repo == nil {
		return Record{}, errors.New("calls: repository not configured")
	}
	next, ok := StatusFromProvider(ev.Status)
	if !ok {
		return Record{}, ErrInvalidRecord
	}

	sid := ev.CallSID
	if _, err := s.repo.Get(ctx, sid); errors.Is(err, ErrNotFound) && ev.ParentCallSID != "" {
		// Child legs report under the parent that the relay recorded.
		sid = ev.ParentCallSID
	}

	return s.repo.Update(ctx, sid, func(r *Record) error {
		if next.rank() < r.Status.rank() || r.Status.IsTerminal() {
			return nil
		}
		r.Status = next
		if ev.DurationSeconds > r.DurationSeconds {
			r.DurationSeconds = ev.DurationSeconds
		}
		r.UpdatedAt = s.clock().UTC()
		return nil
	})
}

func (s *Service) List(ctx context.Context, f Filter) ([]Record, error) {
	if s.repo == nil {
		return nil, errors.New("calls: repository not configured")
	}
	return s.repo.List(ctx, f)
}
