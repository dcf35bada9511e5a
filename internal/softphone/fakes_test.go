package softphone

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"webphone/pkg/logger"

	"github.com/stretchr/testify/require"
)

type holdCall struct {
	sid  string
	hold bool
}

type fakeRelay struct {
	mu sync.Mutex

	tokens   []string
	fetchErr []error
	fetches  int

	sid          string
	originateErr error
	originated   []string
	onOriginate  func()

	terminateErr error
	terminated   []string

	holdErr error
	holds   []holdCall
}

func (r *fakeRelay) FetchCredential(ctx context.Context) (Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.fetches
	r.fetches++
	if i < len(r.fetchErr) && r.fetchErr[i] != nil {
		return Credential{}, r.fetchErr[i]
	}
	tok := "opaque-token"
	if len(r.tokens) > 0 {
		tok = r.tokens[min(i, len(r.tokens)-1)]
	}
	return Credential{Token: tok, Identity: "web-user"}, nil
}

func (r *fakeRelay) OriginateCall(ctx context.Context, phoneNumber string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.onOriginate != nil {
		r.onOriginate()
	}
	r.originated = append(r.originated, phoneNumber)
	if r.originateErr != nil {
		return "", r.originateErr
	}
	if r.sid == "" {
		return "CA123", nil
	}
	return r.sid, nil
}

func (r *fakeRelay) TerminateCall(ctx context.Context, callSID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.terminated = append(r.terminated, callSID)
	return r.terminateErr
}

func (r *fakeRelay) SetCallHoldState(ctx context.Context, callSID string, hold bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.holdErr != nil {
		return r.holdErr
	}
	r.holds = append(r.holds, holdCall{sid: callSID, hold: hold})
	return nil
}

func (r *fakeRelay) fetchCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fetches
}

type fakeDevice struct {
	events chan DeviceEvent

	mu        sync.Mutex
	tokens    []string
	destroyed bool
}

func newFakeDevice() *fakeDevice {
	// Unbuffered: a send returns only once the session goroutine has taken the event.
	return &fakeDevice{events: make(chan DeviceEvent)}
}

func (d *fakeDevice) Events() <-chan DeviceEvent { return d.events }

func (d *fakeDevice) UpdateToken(token string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tokens = append(d.tokens, token)
	return nil
}

func (d *fakeDevice) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroyed = true
}

func (d *fakeDevice) isDestroyed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.destroyed
}

func (d *fakeDevice) updatedTokens() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.tokens...)
}

type fakeConnector struct {
	dev     *fakeDevice
	err     error
	connect int

	// onConnect runs once, after the device to return has been picked.
	onConnect func()
}

func (c *fakeConnector) Connect(ctx context.Context, token string) (Device, error) {
	c.connect++
	dev := c.dev
	if hook := c.onConnect; hook != nil {
		c.onConnect = nil
		hook()
	}
	if c.err != nil {
		return nil, c.err
	}
	return dev, nil
}

type fakeConn struct {
	sid  string
	from string

	mu           sync.Mutex
	accepted     int
	rejected     int
	disconnected int
	mutes        []bool
	tracks       []bool
}

func (c *fakeConn) CallID() string { return c.sid }
func (c *fakeConn) From() string   { return c.from }

func (c *fakeConn) Accept() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accepted++
	return nil
}

func (c *fakeConn) Reject() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rejected++
	return nil
}

func (c *fakeConn) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected++
	return nil
}

func (c *fakeConn) Mute(muted bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mutes = append(c.mutes, muted)
	return nil
}

// trackConn also exposes track control for the local hold fallback.
type trackConn struct {
	fakeConn
}

func (c *trackConn) SetTrackEnabled(enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tracks = append(c.tracks, enabled)
	return nil
}

type harness struct {
	s     *Session
	relay *fakeRelay
	dev   *fakeDevice
	conn  *fakeConnector

	mu    sync.Mutex
	snaps []Snapshot
}

func newHarness(t *testing.T, relay *fakeRelay, mutate ...func(*Options)) *harness {
	t.Helper()
	h := &harness{relay: relay, dev: newFakeDevice()}
	h.conn = &fakeConnector{dev: h.dev}

	opts := Options{
		Relay:     relay,
		Connector: h.conn,
		Retry:     RetryPolicy{Attempts: 3, Initial: time.Millisecond, Max: 5 * time.Millisecond},
		Observer: func(s Snapshot) {
			h.mu.Lock()
			h.snaps = append(h.snaps, s)
			h.mu.Unlock()
		},
		TickInterval: time.Hour,
		Log:          logger.Discard(),
	}
	for _, m := range mutate {
		m(&opts)
	}

	s, err := NewSession(opts)
	require.NoError(t, err)
	h.s = s
	t.Cleanup(func() { _ = s.Close() })
	return h
}

// ready brings the session up and delivers the device's ready event.
func (h *harness) ready(t *testing.T) {
	t.Helper()
	require.NoError(t, h.s.Init(context.Background()))
	h.emit(t, DeviceEvent{Kind: DeviceReady})
	require.Equal(t, StatusReady, h.s.Snapshot().Status)
}

// emit delivers ev and waits until the session has finished handling it.
func (h *harness) emit(t *testing.T, ev DeviceEvent) {
	t.Helper()
	select {
	case h.dev.events <- ev:
	case <-time.After(time.Second):
		t.Fatalf("session did not take event %s", ev.Kind)
	}
	h.flush(t)
}

func (h *harness) flush(t *testing.T) {
	t.Helper()
	require.NoError(t, h.s.do(context.Background(), func(context.Context) error { return nil }))
}

func (h *harness) states() []State {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]State, 0, len(h.snaps))
	for _, s := range h.snaps {
		out = append(out, s.State)
	}
	return out
}

// connectedOutgoing dials and delivers the provider's accept.
func (h *harness) connectedOutgoing(t *testing.T) {
	t.Helper()
	h.ready(t)
	require.NoError(t, h.s.Dial(context.Background(), "+15551234567"))
	h.emit(t, DeviceEvent{Kind: DeviceAccepted, CallID: "CA123"})
	require.Equal(t, StateConnected, h.s.Snapshot().State)
}

var errBoom = errors.New("boom")
