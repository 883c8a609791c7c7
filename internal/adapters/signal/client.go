// Package signal is the phone side of the relay's signaling socket.
package signal

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/RailPhone/internal/core"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	DefaultRetryInterval = 5 * time.Second
	defaultPingPeriod    = 20 * time.Second
	eventBuffer          = 64
)

// Client keeps one logical connection to the relay alive. After an
// unexpected drop it redials every RetryInterval until it succeeds or
// Disconnect is called.
type Client struct {
	dialer *websocket.Dialer
	retry  time.Duration
	ping   time.Duration
	events chan core.Event

	online atomic.Bool

	mu     sync.Mutex
	conn   *wsConn
	cancel context.CancelFunc
	done   chan struct{}
}

var _ core.SignalChannel = (*Client)(nil)

// NewClient returns a disconnected client. A zero retry interval means
// DefaultRetryInterval.
func NewClient(retry time.Duration) *Client {
	if retry <= 0 {
		retry = DefaultRetryInterval
	}
	return &Client{
		dialer: websocket.DefaultDialer,
		retry:  retry,
		ping:   defaultPingPeriod,
		events: make(chan core.Event, eventBuffer),
	}
}

// Events is shared across reconnects and Disconnect/Connect cycles.
func (c *Client) Events() <-chan core.Event { return c.events }

func (c *Client) Online() bool { return c.online.Load() }

// Connect dials addr (an http(s), ws(s) or bare host:port relay base).
// It returns nil at once when already online. When the first dial fails
// the error is returned and the retry loop keeps trying in the
// background until Disconnect.
func (c *Client) Connect(ctx context.Context, addr string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		if c.online.Load() {
			return nil
		}
		return ErrNotConnected
	}

	u, err := core.RelayURL(addr, core.SignalPath, nil)
	if err != nil {
		return err
	}

	life, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})

	conn, dialErr := c.dial(ctx, u)
	if dialErr == nil {
		c.attachLocked(conn)
	}
	go c.supervise(life, u, conn)

	if dialErr != nil {
		log.Warn().Err(dialErr).Str("module", "signal").Str("url", u).Msg("connect failed, retrying in background")
		return dialErr
	}
	log.Info().Str("module", "signal").Str("url", u).Msg("connected")
	return nil
}

// Disconnect closes the socket and stops the retry loop. Safe to call
// when not connected.
func (c *Client) Disconnect() {
	c.mu.Lock()
	cancel, done, conn := c.cancel, c.done, c.conn
	c.cancel, c.done, c.conn = nil, nil, nil
	c.online.Store(false)
	c.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	if conn != nil {
		conn.Close()
	}
	<-done
	log.Info().Str("module", "signal").Msg("disconnected")
}

// Send is fire-and-forget: offline or congested sends are dropped.
func (c *Client) Send(t core.MessageType, f core.Fields) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		log.Debug().Str("module", "signal").Str("type", string(t)).Msg("offline, message dropped")
		return
	}
	data, err := core.MarshalFields(string(t), f)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("encode message")
		return
	}
	if err := conn.TrySend(data); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("type", string(t)).Msg("message dropped")
	}
}

func (c *Client) dial(ctx context.Context, u string) (*wsConn, error) {
	ws, _, err := c.dialer.DialContext(ctx, u, nil)
	if err != nil {
		return nil, err
	}
	return newWSConn(ws), nil
}

func (c *Client) attachLocked(conn *wsConn) {
	c.conn = conn
	c.online.Store(true)
	pingFrame, _ := core.MarshalFields(string(core.MsgPing), nil)
	go conn.writePump(c.ping, pingFrame)
}

// attach installs conn unless Disconnect ran meanwhile.
func (c *Client) attach(ctx context.Context, conn *wsConn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ctx.Err() != nil {
		return false
	}
	c.attachLocked(conn)
	return true
}

func (c *Client) detach(conn *wsConn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
		c.online.Store(false)
	}
	c.mu.Unlock()
	conn.Close()
}

func (c *Client) supervise(ctx context.Context, u string, conn *wsConn) {
	defer close(c.done)
	for {
		if conn != nil {
			c.readPump(ctx, conn)
			c.detach(conn)
			if ctx.Err() != nil {
				return
			}
			log.Warn().Str("module", "signal").Msg("connection lost")
			c.emit(ctx, core.Event{Kind: core.EventConnectionLost})
		}
		if conn = c.redial(ctx, u); conn == nil {
			return
		}
	}
}

func (c *Client) redial(ctx context.Context, u string) *wsConn {
	timer := time.NewTimer(c.retry)
	defer timer.Stop()
	for attempt := 1; ; attempt++ {
		c.emit(ctx, core.Event{Kind: core.EventReconnecting})
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
		conn, err := c.dial(ctx, u)
		if err != nil {
			log.Debug().Err(err).Str("module", "signal").Int("attempt", attempt).Msg("reconnect failed")
			timer.Reset(c.retry)
			continue
		}
		if !c.attach(ctx, conn) {
			conn.Close()
			return nil
		}
		log.Info().Str("module", "signal").Int("attempt", attempt).Msg("reconnected")
		c.emit(ctx, core.Event{Kind: core.EventReconnected})
		return conn
	}
}

func (c *Client) readPump(ctx context.Context, conn *wsConn) {
	for {
		_, data, err := conn.conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, websocket.ErrCloseSent) {
				log.Debug().Err(err).Str("module", "signal").Msg("readPump read error")
			}
			return
		}
		f, err := core.UnmarshalFields(data)
		if err != nil {
			log.Warn().Err(err).Str("module", "signal").Msg("dropping inbound message")
			continue
		}
		ev, ok := core.ParseEvent(f)
		if !ok {
			if f[core.FieldType] != core.WirePong {
				log.Warn().Str("module", "signal").Str("type", f[core.FieldType]).Msg("unknown or incomplete signal")
			}
			continue
		}
		c.emit(ctx, ev)
	}
}

func (c *Client) emit(ctx context.Context, ev core.Event) {
	select {
	case c.events <- ev:
	case <-ctx.Done():
	}
}
