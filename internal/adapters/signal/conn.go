package signal

import (
	"errors"
	"sync"
	"time"

	"github.com/dkeye/RailPhone/internal/core"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrNotConnected = errors.New("signaling channel offline")
)

const (
	sendQueue = 32
	writeWait = 5 * time.Second
)

// wsConn is one socket to the relay with a bounded outbound queue
// drained by writePump.
type wsConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

var _ core.SignalConnection = (*wsConn)(nil)

func newWSConn(c *websocket.Conn) *wsConn {
	return &wsConn{conn: c, send: make(chan core.Frame, sendQueue)}
}

func (c *wsConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrNotConnected
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

// writePump drains the send queue. Every ping period it writes pingFrame,
// or a protocol-level ping when pingFrame is nil.
func (c *wsConn) writePump(ping time.Duration, pingFrame core.Frame) {
	ticker := time.NewTicker(ping)
	defer ticker.Stop()
	for {
		mt, data := websocket.TextMessage, core.Frame(nil)
		select {
		case f, ok := <-c.send:
			if !ok {
				return
			}
			data = f
		case <-ticker.C:
			data = pingFrame
			if data == nil {
				mt = websocket.PingMessage
			}
		}
		if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
			c.Close()
			return
		}
		if err := c.conn.WriteMessage(mt, data); err != nil {
			log.Warn().Err(err).Str("module", "signal").Msg("writePump write error")
			c.Close()
			return
		}
	}
}
