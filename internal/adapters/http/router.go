package http

import (
	"context"

	"github.com/dkeye/RailPhone/internal/adapters/signal"
	"github.com/dkeye/RailPhone/internal/config"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

func SetupRouter(ctx context.Context, cfg *config.RelayConfig, hub *signal.Hub, gatherer prometheus.Gatherer) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	r.GET("/healthz", handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	api := r.Group("/api")
	api.GET("/stations", func(c *gin.Context) { handleStations(c, hub) })

	api.GET("/ws/signal", func(c *gin.Context) {
		hub.HandleSignal(ctx, c)
	})
	api.GET("/ws/media", func(c *gin.Context) {
		handleMedia(ctx, c, hub)
	})

	log.Info().Str("module", "adapters.http").Str("mode", cfg.Mode).Msg("router setup")
	return r
}
