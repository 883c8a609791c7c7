package http

import (
	"context"
	"net/http"

	"github.com/dkeye/RailPhone/internal/adapters/signal"
	"github.com/dkeye/RailPhone/internal/core"
	"github.com/dkeye/RailPhone/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

type MediaQuery struct {
	Self string `form:"self" binding:"required"`
	Peer string `form:"peer" binding:"required"`
}

type StationsResponse struct {
	Stations []domain.Station `json:"stations"`
}

var mediaUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func handleStations(c *gin.Context, hub *signal.Hub) {
	c.JSON(http.StatusOK, StationsResponse{Stations: hub.Registry.Online()})
}

func handleMedia(ctx context.Context, c *gin.Context, hub *signal.Hub) {
	var q MediaQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "self and peer are required"})
		return
	}
	self := core.ConnID(q.Self)
	if !hub.Registry.Bound(self) {
		c.JSON(http.StatusForbidden, gin.H{"error": "unknown connection"})
		return
	}

	ws, err := mediaUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("media ws upgrade")
		return
	}
	go hub.Media.Serve(ctx, self, core.ConnID(q.Peer), ws)
}
