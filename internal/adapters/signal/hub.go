package signal

import (
	"context"
	"net/http"
	"time"

	"github.com/dkeye/RailPhone/internal/core"
	"github.com/dkeye/RailPhone/internal/relay"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Hub is the relay side of the signaling socket: it upgrades stations,
// pairs calls and routes call-control messages between them.
type Hub struct {
	Registry *relay.Registry
	Calls    *relay.Calls
	Limiter  *relay.CallRateLimiter
	Media    *relay.MediaRelay
	Metrics  *relay.Metrics

	readLimit  int64
	pingPeriod time.Duration
}

type HubOptions struct {
	ReadLimit  int64
	PingPeriod time.Duration
}

func NewHub(reg *relay.Registry, calls *relay.Calls, limiter *relay.CallRateLimiter, media *relay.MediaRelay, m *relay.Metrics, opts HubOptions) *Hub {
	if opts.PingPeriod <= 0 {
		opts.PingPeriod = 54 * time.Second
	}
	h := &Hub{
		Registry:   reg,
		Calls:      calls,
		Limiter:    limiter,
		Media:      media,
		Metrics:    m,
		readLimit:  opts.ReadLimit,
		pingPeriod: opts.PingPeriod,
	}
	if m != nil {
		reg.OnCountChanged(func(n int) { m.StationsOnline.Set(float64(n)) })
	}
	return h
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (h *Hub) HandleSignal(ctx context.Context, c *gin.Context) {
	id := core.ConnID(uuid.NewString())
	log.Info().Str("module", "signal").Str("conn_id", string(id)).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Msg("ws upgrade")
		return
	}
	if h.readLimit > 0 {
		ws.SetReadLimit(h.readLimit)
	}

	conn := newWSConn(ws)
	ctx, cancel := context.WithCancel(ctx)
	h.Registry.Bind(id, conn, cancel)

	go conn.writePump(h.pingPeriod, nil)
	go h.readPump(ctx, id, conn)
}

func (h *Hub) readPump(ctx context.Context, id core.ConnID, c *wsConn) {
	stop := context.AfterFunc(ctx, c.Close)
	defer func() {
		stop()
		log.Info().Str("module", "signal").Str("conn_id", string(id)).Msg("readPump closing")
		c.Close()
		h.disconnect(id)
	}()

	deadline := 2 * h.pingPeriod
	_ = c.conn.SetReadDeadline(time.Now().Add(deadline))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(deadline))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				log.Info().Err(err).Str("module", "signal").Str("conn_id", string(id)).Msg("readPump read error")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(deadline))
		h.handleSignal(id, c, data)
	}
}

// disconnect unregisters id and tells any call partner it is gone.
func (h *Hub) disconnect(id core.ConnID) {
	st, loggedIn := h.Registry.Unbind(id)
	h.Media.Drop(id)
	for _, o := range h.Calls.Drop(id) {
		f := core.Fields{core.FieldFromID: string(id), core.FieldFrom: st.Number, core.FieldReason: o.Reason}
		h.sendTo(o.To, o.Type, f)
	}
	if loggedIn {
		h.Limiter.Forget(st.Number)
	}
}

func (h *Hub) sendTo(id core.ConnID, typ string, f core.Fields) {
	conn, ok := h.Registry.Signal(id)
	if !ok {
		log.Debug().Str("module", "signal").Str("conn_id", string(id)).Str("type", typ).Msg("recipient gone")
		return
	}
	h.sendJSON(conn, typ, f)
}

func (h *Hub) sendJSON(c core.SignalConnection, typ string, f core.Fields) {
	b, err := core.MarshalFields(typ, f)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	if err := c.TrySend(b); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("type", typ).Msg("sendJSON dropped")
	}
}
