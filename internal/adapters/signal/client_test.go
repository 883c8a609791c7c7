package signal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dkeye/RailPhone/internal/core"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type relayStub struct {
	srv   *httptest.Server
	conns chan *websocket.Conn
	paths chan string
}

func newRelayStub(t *testing.T) *relayStub {
	t.Helper()
	r := &relayStub{conns: make(chan *websocket.Conn, 8), paths: make(chan string, 8)}
	up := websocket.Upgrader{}
	r.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ws, err := up.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		r.paths <- req.URL.Path
		r.conns <- ws
	}))
	t.Cleanup(r.srv.Close)
	return r
}

func (r *relayStub) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-r.conns:
		t.Cleanup(func() { _ = c.Close() })
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no connection from client")
		return nil
	}
}

func nextEvent(t *testing.T, c *Client) core.Event {
	t.Helper()
	select {
	case ev := <-c.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event")
		return core.Event{}
	}
}

func TestClient_SendAndReceive(t *testing.T) {
	relay := newRelayStub(t)
	c := NewClient(50 * time.Millisecond)
	defer c.Disconnect()

	require.NoError(t, c.Connect(context.Background(), relay.srv.URL))
	server := relay.accept(t)
	assert.Equal(t, core.SignalPath, <-relay.paths)
	assert.True(t, c.Online())

	c.Send(core.MsgLogin, core.Fields{core.FieldNumber: "101", core.FieldName: "Depot"})
	_, data, err := server.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"login","number":"101","name":"Depot"}`, string(data))

	for _, msg := range []string{
		`not json`,
		`{"type":"WHO_KNOWS"}`,
		`{"type":"INCOMING","from":"102"}`,
		`{"type":"pong"}`,
		`{"type":"LOGIN_SUCCESS","id":"c-1"}`,
		`{"type":"INCOMING","from":"102","name":"Yard","callerId":"c-2","media":"10.0.0.2:4000"}`,
	} {
		require.NoError(t, server.WriteMessage(websocket.TextMessage, []byte(msg)))
	}

	ev := nextEvent(t, c)
	assert.Equal(t, core.EventLoginAck, ev.Kind)
	assert.Equal(t, core.ConnID("c-1"), ev.OwnID)

	ev = nextEvent(t, c)
	assert.Equal(t, core.EventIncomingCall, ev.Kind)
	assert.Equal(t, "102", ev.From)
	assert.Equal(t, core.ConnID("c-2"), ev.ConnID)
	assert.Equal(t, "10.0.0.2:4000", ev.Media)
}

func TestClient_ConnectIsIdempotent(t *testing.T) {
	relay := newRelayStub(t)
	c := NewClient(time.Second)
	defer c.Disconnect()

	require.NoError(t, c.Connect(context.Background(), relay.srv.URL))
	relay.accept(t)
	require.NoError(t, c.Connect(context.Background(), relay.srv.URL))

	select {
	case <-relay.conns:
		t.Fatal("second Connect dialed again")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestClient_SendOfflineIsDropped(t *testing.T) {
	c := NewClient(time.Second)
	assert.False(t, c.Online())
	assert.NotPanics(t, func() { c.Send(core.MsgCall, core.Fields{core.FieldTo: "101"}) })
	c.Disconnect()
}

func TestClient_ReconnectsAfterDrop(t *testing.T) {
	relay := newRelayStub(t)
	c := NewClient(30 * time.Millisecond)
	defer c.Disconnect()

	require.NoError(t, c.Connect(context.Background(), relay.srv.URL))
	first := relay.accept(t)
	require.NoError(t, first.Close())

	assert.Equal(t, core.EventConnectionLost, nextEvent(t, c).Kind)
	assert.Equal(t, core.EventReconnecting, nextEvent(t, c).Kind)
	assert.Equal(t, core.EventReconnected, nextEvent(t, c).Kind)
	assert.True(t, c.Online())

	second := relay.accept(t)
	c.Send(core.MsgPing, nil)
	_, data, err := second.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"ping"}`, string(data))
}

func TestClient_DisconnectStopsRetrying(t *testing.T) {
	relay := newRelayStub(t)
	c := NewClient(20 * time.Millisecond)

	require.NoError(t, c.Connect(context.Background(), relay.srv.URL))
	relay.accept(t)
	c.Disconnect()
	assert.False(t, c.Online())

	select {
	case ev := <-c.Events():
		t.Fatalf("unexpected event after disconnect: %s", ev.Kind)
	case <-time.After(100 * time.Millisecond):
	}
	select {
	case <-relay.conns:
		t.Fatal("client redialed after disconnect")
	default:
	}

	// A fresh Connect after Disconnect works.
	require.NoError(t, c.Connect(context.Background(), relay.srv.URL))
	relay.accept(t)
	c.Disconnect()
}

func TestClient_FirstDialFailureKeepsRetrying(t *testing.T) {
	relay := newRelayStub(t)
	addr := relay.srv.URL
	relay.srv.Close()

	c := NewClient(20 * time.Millisecond)
	defer c.Disconnect()
	require.Error(t, c.Connect(context.Background(), addr))
	assert.ErrorIs(t, c.Connect(context.Background(), addr), ErrNotConnected)
	assert.Equal(t, core.EventReconnecting, nextEvent(t, c).Kind)
	assert.False(t, c.Online())
}
