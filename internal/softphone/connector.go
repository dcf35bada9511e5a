package softphone

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"webphone/internal/events"
	"webphone/internal/telephony"

	"github.com/gorilla/websocket"
)

const deviceEventBuffer = 32

// RelayConnector registers a headless device on the relay's /events stream.
// It carries no media: accepting a leg only changes call state, and hanging up a
// leg is done through the relay by call id.
type RelayConnector struct {
	BaseURL string
	Relay   Relay
	Dialer  *websocket.Dialer
	Log     *slog.Logger
}

func (rc RelayConnector) Connect(ctx context.Context, token string) (Device, error) {
	u, err := eventsURL(rc.BaseURL, token)
	if err != nil {
		return nil, err
	}
	dialer := rc.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	log := rc.Log
	if log == nil {
		log = slog.Default()
	}

	conn, resp, err := dialer.DialContext(ctx, u, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("softphone: event stream rejected: %s: %w", resp.Status, err)
		}
		return nil, fmt.Errorf("softphone: event stream: %w", err)
	}

	d := &relayDevice{
		conn:   conn,
		relay:  rc.Relay,
		log:    log,
		events: make(chan DeviceEvent, deviceEventBuffer),
		closed: make(chan struct{}),
	}
	d.token.Store(token)
	go d.readLoop()
	return d, nil
}

func eventsURL(base, token string) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("softphone: relay url must be absolute, got %q", base)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("softphone: unsupported relay scheme %q", u.Scheme)
	}
	u.Path += "/events"
	u.RawQuery = url.Values{"token": {token}}.Encode()
	return u.String(), nil
}

type relayDevice struct {
	conn   *websocket.Conn
	relay  Relay
	log    *slog.Logger
	events chan DeviceEvent

	token atomic.Value

	closeOnce sync.Once
	closed    chan struct{}
}

func (d *relayDevice) Events() <-chan DeviceEvent { return d.events }

// UpdateToken keeps the new credential; the open stream stays authorized for its lifetime.
func (d *relayDevice) UpdateToken(token string) error {
	if token == "" {
		return errors.New("softphone: empty token")
	}
	d.token.Store(token)
	return nil
}

func (d *relayDevice) Destroy() {
	d.closeOnce.Do(func() {
		close(d.closed)
		_ = d.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = d.conn.Close()
	})
}

func (d *relayDevice) readLoop() {
	defer close(d.events)

	if !d.emit(DeviceEvent{Kind: DeviceReady}) {
		return
	}
	for {
		var ev events.Event
		if err := d.conn.ReadJSON(&ev); err != nil {
			select {
			case <-d.closed:
			default:
				// No reconnection: a dropped stream ends the device.
				d.emit(DeviceEvent{Kind: DeviceError, Message: "event stream closed: " + err.Error()})
			}
			return
		}
		if de, ok := d.translate(ev); ok && !d.emit(de) {
			return
		}
	}
}

func (d *relayDevice) emit(ev DeviceEvent) bool {
	select {
	case d.events <- ev:
		return true
	case <-d.closed:
		return false
	}
}

func (d *relayDevice) translate(ev events.Event) (DeviceEvent, bool) {
	switch ev.Type {
	case events.TypeCallIncoming:
		return DeviceEvent{
			Kind:   DeviceIncoming,
			CallID: ev.CallSID,
			Conn:   &relayConnection{sid: ev.CallSID, from: ev.From, relay: d.relay},
		}, true
	case events.TypeCallStatus:
		st := telephony.CallStatus(ev.Status)
		switch {
		case st == telephony.CallStatusInProgress:
			return DeviceEvent{Kind: DeviceAccepted, CallID: ev.CallSID}, true
		case st.IsTerminal():
			return DeviceEvent{Kind: DeviceDisconnect, CallID: ev.CallSID, Message: ev.Status}, true
		}
	default:
		d.log.Debug("unknown relay event", "type", ev.Type)
	}
	return DeviceEvent{}, false
}

// relayConnection is an inbound leg seen through the event stream.
type relayConnection struct {
	sid   string
	from  string
	relay Relay

	mu    sync.Mutex
	muted bool
}

func (c *relayConnection) CallID() string { return c.sid }
func (c *relayConnection) From() string   { return c.from }

// Accept has nothing to do without a media path.
func (c *relayConnection) Accept() error { return nil }

func (c *relayConnection) Reject() error { return c.hangup() }

func (c *relayConnection) Disconnect() error { return c.hangup() }

func (c *relayConnection) Mute(muted bool) error {
	c.mu.Lock()
	c.muted = muted
	c.mu.Unlock()
	return nil
}

func (c *relayConnection) hangup() error {
	if c.relay == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := c.relay.TerminateCall(ctx, c.sid)
	if errors.Is(err, telephony.ReasonNotFound) {
		return nil
	}
	return err
}
