// Package http exposes the local control and status API.
package http

import (
	"context"

	"github.com/dkeye/meshcast/internal/config"
	"github.com/dkeye/meshcast/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Controller is the session surface driven by the API.
type Controller interface {
	Status() domain.Status
	Bundle(peer domain.ParticipantID) ([]domain.TrackInfo, bool)
	StartCamera(ctx context.Context) error
	StartScreenShare(ctx context.Context) error
	StopScreenShare() error
	Stop()
}

func SetupRouter(cfg *config.Config, ctrl Controller) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	h := &handlers{ctrl: ctrl}
	api := r.Group("/api")
	api.GET("/status", h.status)
	api.GET("/peers/:id", h.peer)
	api.POST("/media/camera", h.startCamera)
	api.POST("/media/screen", h.startScreen)
	api.DELETE("/media/screen", h.stopScreen)
	api.POST("/session/stop", h.stopSession)

	log.Info().Str("module", "adapters.http").Str("mode", cfg.Mode).Msg("router setup")
	return r
}
