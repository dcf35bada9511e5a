package softphone

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"webphone/internal/telephony"
)

// Options configures a Session. Relay and Connector are required.
type Options struct {
	Relay     Relay
	Connector Connector

	// Observer receives every published snapshot on the session goroutine.
	// It must not call back into the session.
	Observer func(Snapshot)

	Retry RetryPolicy

	// RefreshBefore is how long before credential expiry a new one is fetched.
	RefreshBefore time.Duration

	// TickInterval is the duration timer period.
	TickInterval time.Duration

	Log *slog.Logger
	Now func() time.Time
}

type op struct {
	ctx   context.Context
	fn    func(ctx context.Context) error
	reply chan error
}

type tick struct {
	gen uint64
}

// Session owns one soft-phone device and its single call slot.
// All state is confined to one goroutine; public methods post work to it and wait.
type Session struct {
	opts Options
	log  *slog.Logger

	inbox   chan op
	ticks   chan tick
	done    chan struct{}
	stopped chan struct{}

	closeOnce sync.Once

	// Loop-owned.
	status   Status
	device   Device
	events   <-chan DeviceEvent
	call     *Call
	conn     Connection
	pending  bool
	timerGen uint64
	timerOn  bool
	stopTick chan struct{}
	message  string
	errKind  telephony.Kind
	refresh  *time.Timer
	closing  bool

	mu   sync.Mutex
	snap Snapshot
}

func NewSession(opts Options) (*Session, error) {
	if opts.Relay == nil || opts.Connector == nil {
		return nil, errors.New("softphone: relay and connector are required")
	}
	opts.Retry = opts.Retry.withDefaults()
	if opts.RefreshBefore <= 0 {
		opts.RefreshBefore = 60 * time.Second
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Session{
		opts:    opts,
		log:     opts.Log.With("component", "softphone"),
		inbox:   make(chan op),
		ticks:   make(chan tick),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
		status:  StatusUninitialized,
	}
	s.snap = Snapshot{Status: StatusUninitialized, State: StateIdle}
	go s.loop()
	return s, nil
}

// Snapshot returns the last published state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.snap
	if out.Call != nil {
		c := *out.Call
		out.Call = &c
	}
	return out
}

// Init fetches a credential and registers the device. On failure the session stays
// usable and Init may be called again. A device in error is replaced.
func (s *Session) Init(ctx context.Context) error {
	var installed bool
	if err := s.do(ctx, func(context.Context) error {
		if s.device != nil && s.status == StatusError {
			s.releaseDevice()
		}
		installed = s.device != nil
		return nil
	}); err != nil {
		return err
	}
	if installed {
		return nil
	}

	cred, err := fetchWithRetry(ctx, s.opts.Relay, s.opts.Retry, s.log)
	if err != nil {
		ferr := asKind(err, "fetch_credential", telephony.KindCredentialFetchFailed)
		_ = s.do(ctx, func(context.Context) error {
			s.status = StatusUninitialized
			s.fail(ferr)
			s.publish()
			return nil
		})
		return ferr
	}
	if cred.Token == "" {
		ierr := &telephony.Error{Op: "init_device", Kind: telephony.KindDeviceInitFailed, Reason: telephony.ReasonRejected, Message: "credential response carried no token"}
		_ = s.do(ctx, func(context.Context) error {
			s.status = StatusError
			s.fail(ierr)
			s.publish()
			return nil
		})
		return ierr
	}

	dev, err := s.opts.Connector.Connect(ctx, cred.Token)
	if err != nil {
		ierr := &telephony.Error{Op: "init_device", Kind: telephony.KindDeviceInitFailed, Reason: telephony.ReasonUnavailable, Message: "device registration failed", Err: err}
		_ = s.do(ctx, func(context.Context) error {
			s.status = StatusError
			s.fail(ierr)
			s.publish()
			return nil
		})
		return ierr
	}

	var raced bool
	err = s.do(ctx, func(context.Context) error {
		if s.device != nil {
			raced = true
			return nil
		}
		s.device = dev
		s.events = dev.Events()
		s.message = "Connecting..."
		s.errKind = ""
		s.scheduleRefresh(cred.Token)
		s.publish()
		return nil
	})
	if err != nil || raced {
		// Lost to a concurrent Init, or the session closed meanwhile.
		dev.Destroy()
		return err
	}
	s.log.Info("device registered", "identity", cred.Identity)
	return nil
}

// Dial places an outgoing call through the relay.
func (s *Session) Dial(ctx context.Context, number string) error {
	return s.dispatch(ctx, EventDial, input{number: number})
}

func (s *Session) Accept(ctx context.Context) error {
	return s.dispatch(ctx, EventAccept, input{})
}

func (s *Session) Reject(ctx context.Context) error {
	return s.dispatch(ctx, EventReject, input{})
}

func (s *Session) End(ctx context.Context) error {
	return s.dispatch(ctx, EventEnd, input{})
}

func (s *Session) ToggleMute(ctx context.Context) error {
	return s.dispatch(ctx, EventToggleMute, input{})
}

func (s *Session) ToggleHold(ctx context.Context) error {
	return s.dispatch(ctx, EventToggleHold, input{})
}

// Close tears the session down: the active call is ended best-effort and the device destroyed.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = s.do(ctx, s.teardown)
		close(s.done)
		<-s.stopped
	})
	return err
}

func (s *Session) dispatch(ctx context.Context, kind EventKind, in input) error {
	return s.do(ctx, func(ctx context.Context) error {
		in.ctx = ctx
		return s.step(kind, in)
	})
}

// do runs fn on the session goroutine and waits for its result.
func (s *Session) do(ctx context.Context, fn func(context.Context) error) error {
	reply := make(chan error, 1)
	select {
	case s.inbox <- op{ctx: ctx, fn: fn, reply: reply}:
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-s.stopped:
		return ErrClosed
	}
}

func (s *Session) loop() {
	defer close(s.stopped)
	for {
		select {
		case <-s.done:
			return
		case o := <-s.inbox:
			if s.closing {
				o.reply <- ErrClosed
				continue
			}
			o.reply <- o.fn(o.ctx)
		case ev, ok := <-s.events:
			if !ok {
				s.releaseDevice()
				if !s.closing && s.status != StatusError {
					_ = s.step(EventDeviceError, input{ctx: context.Background(), message: "device disconnected"})
				}
				continue
			}
			s.handleDeviceEvent(ev)
		case t := <-s.ticks:
			_ = s.step(EventTick, input{ctx: context.Background(), gen: t.gen})
		}
	}
}

// releaseDevice drops the current device so Init can register a new one.
func (s *Session) releaseDevice() {
	if s.refresh != nil {
		s.refresh.Stop()
		s.refresh = nil
	}
	if s.device != nil {
		s.device.Destroy()
		s.device = nil
	}
	s.events = nil
}

func (s *Session) handleDeviceEvent(ev DeviceEvent) {
	in := input{ctx: context.Background(), callID: ev.CallID, conn: ev.Conn, parentID: ev.ParentCallID, message: ev.Message}
	switch ev.Kind {
	case DeviceReady:
		_ = s.step(EventDeviceReady, in)
	case DeviceError:
		_ = s.step(EventDeviceError, in)
	case DeviceIncoming:
		if ev.Conn == nil {
			return
		}
		in.callID = ev.Conn.CallID()
		_ = s.step(EventIncoming, in)
	case DeviceAccepted:
		_ = s.step(EventAccepted, in)
	case DeviceDisconnect:
		_ = s.step(EventDisconnect, in)
	default:
		s.log.Debug("unknown device event", "kind", ev.Kind)
	}
}

func (s *Session) teardown(ctx context.Context) error {
	s.closing = true
	if s.refresh != nil {
		s.refresh.Stop()
	}
	s.stopTimer()

	var err error
	if s.call != nil {
		switch {
		case s.call.Direction == DirectionOutgoing && s.call.ProviderCallID != "":
			if terr := s.opts.Relay.TerminateCall(ctx, s.call.ProviderCallID); terr != nil && !errors.Is(terr, telephony.ReasonNotFound) {
				err = terr
			}
		case s.conn != nil:
			err = s.conn.Disconnect()
		}
		s.call = nil
		s.conn = nil
	}
	if s.device != nil {
		s.device.Destroy()
		s.device = nil
	}
	s.events = nil
	s.status = StatusUninitialized
	s.message = "Session closed"
	s.publish()
	return err
}

// fail records err as the status line.
func (s *Session) fail(err error) {
	s.message = err.Error()
	s.errKind = ""
	if te, ok := telephony.AsError(err); ok {
		s.errKind = te.Kind
		if te.Message != "" {
			s.message = te.Message
		}
	}
}

func (s *Session) state() State {
	switch {
	case s.call != nil:
		return s.call.State
	case s.pending:
		return StateDialing
	default:
		return StateIdle
	}
}

// publish copies loop state into the shared snapshot and notifies the observer.
func (s *Session) publish() {
	snap := Snapshot{
		Status:       s.status,
		State:        s.state(),
		TimerRunning: s.timerOn,
		Message:      s.message,
		ErrKind:      s.errKind,
	}
	if s.call != nil {
		c := *s.call
		snap.Call = &c
	}

	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()

	if s.opts.Observer != nil {
		s.opts.Observer(snap)
	}
}

// asKind wraps err as a *telephony.Error of kind unless it already is one.
func asKind(err error, op string, kind telephony.Kind) error {
	if te, ok := telephony.AsError(err); ok && te.Kind == kind {
		return te
	}
	reason := telephony.ReasonUnavailable
	if te, ok := telephony.AsError(err); ok {
		reason = te.Reason
	}
	return &telephony.Error{Op: op, Kind: kind, Reason: reason, Message: string(kind), Err: err}
}
