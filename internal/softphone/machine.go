package softphone

import (
	"context"
	"errors"
	"strings"

	"webphone/internal/telephony"
)

// EventKind is an input to the call state machine, from the user or from the device.
type EventKind string

const (
	EventDial       EventKind = "dial"
	EventAccept     EventKind = "accept"
	EventReject     EventKind = "reject"
	EventEnd        EventKind = "end"
	EventToggleMute EventKind = "toggle_mute"
	EventToggleHold EventKind = "toggle_hold"

	EventAccepted    EventKind = "accepted"
	EventIncoming    EventKind = "incoming"
	EventDisconnect  EventKind = "disconnect"
	EventTick        EventKind = "tick"
	EventDeviceReady EventKind = "device_ready"
	EventDeviceError EventKind = "device_error"
)

func (k EventKind) fromUser() bool {
	switch k {
	case EventDial, EventAccept, EventReject, EventEnd, EventToggleMute, EventToggleHold:
		return true
	default:
		return false
	}
}

type input struct {
	ctx      context.Context
	number   string
	callID   string
	parentID string
	conn     Connection
	message  string
	gen      uint64
}

type handler func(s *Session, in input) error

// transitions is the call lifecycle table. Device ready/error apply in every state
// and are handled before the lookup.
var transitions = map[State]map[EventKind]handler{
	StateIdle: {
		EventDial:     (*Session).dial,
		EventIncoming: (*Session).ring,
	},
	StateDialing: {
		EventDial:       rejectDial,
		EventAccepted:   (*Session).connectOutgoing,
		EventEnd:        (*Session).end,
		EventDisconnect: (*Session).remoteHangup,
		EventIncoming:   (*Session).incomingWhileBusy,
	},
	StateRinging: {
		EventDial:       rejectDial,
		EventAccept:     (*Session).accept,
		EventReject:     (*Session).reject,
		EventEnd:        (*Session).reject,
		EventDisconnect: (*Session).remoteHangup,
		EventIncoming:   (*Session).incomingWhileBusy,
	},
	StateConnected: {
		EventDial:       rejectDial,
		EventEnd:        (*Session).end,
		EventDisconnect: (*Session).remoteHangup,
		EventToggleMute: (*Session).toggleMute,
		EventToggleHold: (*Session).toggleHold,
		EventTick:       (*Session).tick,
		EventIncoming:   (*Session).incomingWhileBusy,
	},
}

func rejectDial(*Session, input) error { return ErrCallActive }

// step feeds one event through the table and publishes the result.
func (s *Session) step(kind EventKind, in input) error {
	switch kind {
	case EventDeviceReady:
		s.status = StatusReady
		s.message = "Ready"
		s.errKind = ""
		s.publish()
		return nil
	case EventDeviceError:
		s.deviceError(in.message)
		return nil
	}

	if kind.fromUser() && s.status != StatusReady {
		return ErrNotReady
	}

	h, ok := transitions[s.state()][kind]
	if !ok {
		if kind.fromUser() {
			if s.call == nil {
				return ErrNoCall
			}
			return ErrInvalidState
		}
		if kind == EventIncoming && in.conn != nil {
			// Not ready for calls; the caller must not be left ringing.
			_ = in.conn.Reject()
		}
		if kind != EventTick {
			s.log.Debug("event ignored", "event", kind, "state", s.state(), "call_sid", in.callID)
		}
		return nil
	}
	return h(s, in)
}

// matches reports whether a device event belongs to the active call.
func (s *Session) matches(in input) bool {
	if s.call == nil {
		return false
	}
	if in.callID != "" && in.callID == s.call.ProviderCallID {
		return true
	}
	return s.conn != nil && in.callID != "" && in.callID == s.conn.CallID()
}

func (s *Session) dial(in input) error {
	number := strings.TrimSpace(in.number)
	if number == "" {
		err := telephony.InvalidArgument("dial", telephony.KindCallOriginationFailed, "phone number is required")
		s.fail(err)
		s.publish()
		return err
	}

	s.pending = true
	s.message = "Calling " + number + "..."
	s.errKind = ""
	s.publish()

	sid, err := s.opts.Relay.OriginateCall(in.ctx, number)
	s.pending = false
	if err != nil {
		err = asKind(err, "dial", telephony.KindCallOriginationFailed)
		s.fail(err)
		s.publish()
		return err
	}

	s.call = &Call{
		Direction:        DirectionOutgoing,
		RemoteIdentifier: number,
		ProviderCallID:   sid,
		State:            StateDialing,
	}
	s.message = "Dialing " + number
	s.publish()
	s.log.Info("call originated", "call_sid", sid)
	return nil
}

func (s *Session) connectOutgoing(in input) error {
	if !s.matches(in) {
		s.log.Debug("accepted for another call ignored", "call_sid", in.callID)
		return nil
	}
	s.call.State = StateConnected
	s.call.StartedAt = s.opts.Now()
	s.startTimer()
	s.message = "Connected"
	s.publish()
	return nil
}

func (s *Session) ring(in input) error {
	s.call = &Call{
		Direction:        DirectionIncoming,
		RemoteIdentifier: in.conn.From(),
		ProviderCallID:   in.conn.CallID(),
		State:            StateRinging,
	}
	s.conn = in.conn
	s.message = "Incoming call from " + in.conn.From()
	s.errKind = ""
	s.publish()
	return nil
}

// incomingWhileBusy attaches the bridged leg of the active outgoing call, or turns the caller away.
// Resume re-bridges with a fresh leg, which replaces any leg still attached.
func (s *Session) incomingWhileBusy(in input) error {
	if s.call.Direction == DirectionOutgoing && in.parentID != "" && in.parentID == s.call.ProviderCallID {
		if err := in.conn.Accept(); err != nil {
			s.log.Warn("bridged leg accept failed", "call_sid", in.callID, "err", err)
			return nil
		}
		if s.conn != nil && s.conn.CallID() != in.callID {
			if err := s.conn.Disconnect(); err != nil {
				s.log.Warn("replaced leg disconnect failed", "call_sid", s.conn.CallID(), "err", err)
			}
		}
		s.conn = in.conn
		if s.call.Media.Muted {
			_ = s.conn.Mute(true)
		}
		return nil
	}
	if err := in.conn.Reject(); err != nil {
		s.log.Warn("busy reject failed", "call_sid", in.callID, "err", err)
	}
	s.log.Info("incoming call rejected, line busy", "call_sid", in.callID)
	return nil
}

func (s *Session) accept(in input) error {
	if err := s.conn.Accept(); err != nil {
		s.finish(StateError, "Could not answer call")
		return err
	}
	s.call.State = StateConnected
	s.call.StartedAt = s.opts.Now()
	s.startTimer()
	s.message = "Connected"
	s.publish()
	return nil
}

func (s *Session) reject(in input) error {
	err := s.conn.Reject()
	if err != nil {
		s.log.Warn("reject failed", "call_sid", s.call.ProviderCallID, "err", err)
	}
	s.finish(StateRejected, "Call rejected")
	return err
}

// end hangs up. Outgoing calls go through the relay by id; incoming ones disconnect the live leg.
func (s *Session) end(in input) error {
	if s.call.Direction == DirectionOutgoing {
		err := s.opts.Relay.TerminateCall(in.ctx, s.call.ProviderCallID)
		if err != nil && !errors.Is(err, telephony.ReasonNotFound) {
			err = asKind(err, "end", telephony.KindCallTerminationFailed)
			s.fail(err)
			s.publish()
			return err
		}
		if s.conn != nil {
			_ = s.conn.Disconnect()
		}
	} else if err := s.conn.Disconnect(); err != nil {
		s.log.Warn("disconnect failed", "call_sid", s.call.ProviderCallID, "err", err)
	}
	s.finish(StateEnded, "Call ended")
	return nil
}

func (s *Session) remoteHangup(in input) error {
	if !s.matches(in) {
		s.log.Debug("disconnect for another call ignored", "call_sid", in.callID)
		return nil
	}
	if s.call.Media.OnHold && s.isBridgedLeg(in.callID) {
		// Hold swaps the parent's instructions, which drops the client leg; the call lives on.
		s.log.Info("bridged leg dropped on hold", "call_sid", in.callID, "parent_sid", s.call.ProviderCallID)
		s.conn = nil
		return nil
	}
	s.finish(StateEnded, "Call ended by remote party")
	return nil
}

// isBridgedLeg reports whether callID is the attached client leg of an outgoing call.
func (s *Session) isBridgedLeg(callID string) bool {
	return s.call.Direction == DirectionOutgoing && s.conn != nil &&
		callID != s.call.ProviderCallID && callID == s.conn.CallID()
}

func (s *Session) toggleMute(in input) error {
	next := !s.call.Media.Muted
	// A locally held leg stays muted; resume applies the flag.
	locallyHeld := s.call.Direction == DirectionIncoming && s.call.Media.OnHold
	if s.conn != nil && !locallyHeld {
		if err := s.conn.Mute(next); err != nil {
			s.message = "Mute failed"
			s.publish()
			return err
		}
	}
	s.call.Media.Muted = next
	if next {
		s.message = "Muted"
	} else {
		s.message = "Unmuted"
	}
	s.publish()
	return nil
}

// toggleHold asks the relay to swap the call's instructions. Incoming legs have no
// relay-side control, so hold is emulated locally by muting and disabling the track.
func (s *Session) toggleHold(in input) error {
	next := !s.call.Media.OnHold

	if s.call.Direction == DirectionOutgoing {
		if err := s.opts.Relay.SetCallHoldState(in.ctx, s.call.ProviderCallID, next); err != nil {
			err = asKind(err, "hold", telephony.KindHoldResumeFailed)
			s.fail(err)
			s.publish()
			return err
		}
	} else if err := s.localHold(next); err != nil {
		err = &telephony.Error{Op: "hold", Kind: telephony.KindHoldResumeFailed, Reason: telephony.ReasonRejected, Message: "local hold failed", Err: err}
		s.fail(err)
		s.publish()
		return err
	}

	s.call.Media.OnHold = next
	s.errKind = ""
	if next {
		s.message = "Call on hold"
	} else {
		s.message = "Call resumed"
	}
	s.publish()
	return nil
}

func (s *Session) localHold(hold bool) error {
	if s.conn == nil {
		return ErrNoCall
	}
	// Resuming restores the user's own mute choice.
	if err := s.conn.Mute(hold || s.call.Media.Muted); err != nil {
		return err
	}
	if tc, ok := s.conn.(TrackController); ok {
		return tc.SetTrackEnabled(!hold)
	}
	return nil
}

func (s *Session) tick(in input) error {
	if in.gen != s.timerGen || !s.timerOn {
		return nil
	}
	s.call.Elapsed++
	s.publish()
	return nil
}

func (s *Session) deviceError(msg string) {
	if msg == "" {
		msg = "device error"
	}
	s.log.Warn("device error", "message", msg)
	s.status = StatusError
	if s.call != nil {
		s.finish(StateError, msg)
	}
	s.message = msg
	s.errKind = telephony.KindDeviceInitFailed
	s.publish()
}

// finish publishes the terminal state once, then clears the slot.
func (s *Session) finish(terminal State, msg string) {
	s.stopTimer()
	s.call.State = terminal
	s.message = msg
	s.publish()

	s.log.Info("call finished", "call_sid", s.call.ProviderCallID, "state", terminal, "elapsed", s.call.Elapsed)
	s.call = nil
	s.conn = nil
	s.publish()
}
