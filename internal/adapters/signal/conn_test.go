package signal

import (
	"testing"

	"github.com/dkeye/RailPhone/internal/core"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWSConn_TrySendNeverBlocks(t *testing.T) {
	stub := newRelayStub(t)
	ws, _, err := websocket.DefaultDialer.Dial("ws"+stub.srv.URL[len("http"):], nil)
	require.NoError(t, err)
	stub.accept(t)

	// No writePump: the queue fills and further sends fail at once.
	c := newWSConn(ws)
	for i := 0; i < sendQueue; i++ {
		require.NoError(t, c.TrySend(core.Frame("x")))
	}
	assert.ErrorIs(t, c.TrySend(core.Frame("x")), ErrBackpressure)

	c.Close()
	c.Close()
	assert.ErrorIs(t, c.TrySend(core.Frame("x")), ErrNotConnected)
}
