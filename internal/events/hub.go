package events

import (
	"log/slog"
	"sync"
	"time"

	"webphone/internal/telephony"
)

type Type string

const (
	TypeCallStatus   Type = "call.status"
	TypeCallIncoming Type = "call.incoming"
)

// Event is pushed to realtime subscribers of a client identity.
type Event struct {
	Type      Type      `json:"type"`
	CallSID   string    `json:"call_sid"`
	Status    string    `json:"status,omitempty"`
	From      string    `json:"from,omitempty"`
	To        string    `json:"to,omitempty"`
	Direction string    `json:"direction,omitempty"`
	At        time.Time `json:"at"`
}

// StatusEvent converts a provider status callback to a realtime event.
func StatusEvent(ev telephony.StatusEvent) Event {
	return Event{
		Type:      TypeCallStatus,
		CallSID:   ev.CallSID,
		Status:    string(ev.Status),
		From:      ev.From,
		To:        ev.To,
		Direction: ev.Direction,
		At:        ev.OccurredAt,
	}
}

// IncomingEvent announces an inbound call that is about to ring the client.
func IncomingEvent(req telephony.VoiceRequest, at time.Time) Event {
	return Event{
		Type:      TypeCallIncoming,
		CallSID:   req.CallSID,
		Status:    string(telephony.CallStatusRinging),
		From:      req.From,
		To:        req.To,
		Direction: "inbound",
		At:        at.UTC(),
	}
}

const subscriberBuffer = 16

// Hub fans out events to subscribers keyed by client identity.
// Publishing never blocks: a subscriber whose buffer is full misses the event.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{}

	log *slog.Logger
}

func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{subs: map[string]map[*Subscription]struct{}{}, log: log}
}

type Subscription struct {
	identity string
	ch       chan Event
	hub      *Hub
	once     sync.Once
}

func (s *Subscription) C() <-chan Event { return s.ch }

// Close unregisters the subscription and closes its channel. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		if set, ok := s.hub.subs[s.identity]; ok {
			delete(set, s)
			if len(set) == 0 {
				delete(s.hub.subs, s.identity)
			}
		}
		close(s.ch)
		s.hub.mu.Unlock()
	})
}

func (h *Hub) Subscribe(identity string) *Subscription {
	s := &Subscription{identity: identity, ch: make(chan Event, subscriberBuffer), hub: h}
	h.mu.Lock()
	set, ok := h.subs[identity]
	if !ok {
		set = map[*Subscription]struct{}{}
		h.subs[identity] = set
	}
	set[s] = struct{}{}
	h.mu.Unlock()
	return s
}

func (h *Hub) Publish(identity string, ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs[identity] {
		select {
		case s.ch <- ev:
		default:
			h.log.Warn("event dropped for slow subscriber", "identity", identity, "type", ev.Type, "call_sid", ev.CallSID)
		}
	}
}

// Online reports whether identity has at least one live subscriber.
func (h *Hub) Online(identity string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[identity]) > 0
}
