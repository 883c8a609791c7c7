package relay

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/RailPhone/internal/core"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mediaServer(t *testing.T, m *MediaRelay) string {
	t.Helper()
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		q := r.URL.Query()
		m.Serve(context.Background(), core.ConnID(q.Get("self")), core.ConnID(q.Get("peer")), ws)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dialMedia(t *testing.T, base, self, peer string) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(base+"/?self="+self+"&peer="+peer, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func TestMediaRelay_ForwardsBetweenPeers(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	m := NewMediaRelay(4, metrics)
	base := mediaServer(t, m)

	a := dialMedia(t, base, "a", "b")
	require.Eventually(t, func() bool { return m.HasOutlet("a") }, time.Second, 5*time.Millisecond)

	// b is not there yet.
	require.NoError(t, a.WriteMessage(websocket.BinaryMessage, []byte{1}))
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.MediaFrames.WithLabelValues(FrameUnrouted)) == 1
	}, time.Second, 5*time.Millisecond)

	b := dialMedia(t, base, "b", "a")
	require.Eventually(t, func() bool { return m.HasOutlet("b") }, time.Second, 5*time.Millisecond)

	require.NoError(t, a.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3}))
	_ = b.SetReadDeadline(time.Now().Add(2 * time.Second))
	mt, data, err := b.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, mt)
	assert.Equal(t, []byte{1, 2, 3}, data)

	require.NoError(t, b.WriteMessage(websocket.BinaryMessage, []byte{9}))
	_ = a.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err = a.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, []byte{9}, data)
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.MediaFrames.WithLabelValues(FrameForwarded)) == 2
	}, time.Second, 5*time.Millisecond)
}

func TestMediaRelay_DropClosesOutlet(t *testing.T) {
	m := NewMediaRelay(0, nil)
	base := mediaServer(t, m)
	a := dialMedia(t, base, "a", "b")
	require.Eventually(t, func() bool { return m.HasOutlet("a") }, time.Second, 5*time.Millisecond)

	m.Drop("a")
	assert.False(t, m.HasOutlet("a"))
	_ = a.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := a.ReadMessage()
	assert.Error(t, err)
}

func TestOutlet_TrySendNeverBlocks(t *testing.T) {
	o := newOutlet(nil, 1)
	assert.True(t, o.TrySend([]byte{1}))
	assert.False(t, o.TrySend([]byte{2}))
	o.state.Store(int32(OutletDelete))
	<-o.queue
	assert.False(t, o.TrySend([]byte{3}))
}
