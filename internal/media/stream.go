package media

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/dkeye/RailPhone/internal/audio"
	"github.com/dkeye/RailPhone/internal/core"
	"github.com/gorilla/websocket"
)

const streamWriteWait = 5 * time.Second

// streamBinding carries frames as binary WebSocket messages through the
// relay's media endpoint, which pairs the two halves by connection id.
type streamBinding struct {
	dialer *websocket.Dialer
}

// NewStreamTransport relays media over a WebSocket. A nil dialer uses
// websocket.DefaultDialer.
func NewStreamTransport(backend audio.Backend, dialer *websocket.Dialer) *Transport {
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	return newTransport(backend, &streamBinding{dialer: dialer})
}

func (b *streamBinding) name() string { return "stream" }

// localEndpoint is empty: the relay knows both halves by connection id.
func (b *streamBinding) localEndpoint() (string, error) { return "", nil }

func (b *streamBinding) dial(ctx context.Context, route core.MediaRoute) (link, error) {
	if route.Self == "" || route.Peer == "" {
		return nil, fmt.Errorf("stream route needs both connection ids")
	}
	u, err := core.RelayURL(route.RelayAddr, core.MediaPath, url.Values{
		"self": {string(route.Self)},
		"peer": {string(route.Peer)},
	})
	if err != nil {
		return nil, err
	}
	conn, _, err := b.dialer.DialContext(ctx, u, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u, err)
	}
	return &streamLink{conn: conn}, nil
}

type streamLink struct {
	conn *websocket.Conn
	// gorilla allows one concurrent writer; Close may race with Send.
	wmu sync.Mutex
}

func (l *streamLink) Send(frame []byte) error {
	l.wmu.Lock()
	defer l.wmu.Unlock()
	if err := l.conn.SetWriteDeadline(time.Now().Add(streamWriteWait)); err != nil {
		return err
	}
	return l.conn.WriteMessage(websocket.BinaryMessage, frame)
}

func (l *streamLink) Receive() ([]byte, error) {
	for {
		mt, data, err := l.conn.ReadMessage()
		if err != nil {
			// gorilla connections are unusable after any read error.
			return nil, errors.Join(errLinkClosed, err)
		}
		if mt == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (l *streamLink) Close() error {
	l.wmu.Lock()
	_ = l.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	l.wmu.Unlock()
	err := l.conn.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
