package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/dkeye/meshcast/internal/app"
	"github.com/dkeye/meshcast/internal/app/orch"
	"github.com/dkeye/meshcast/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type handlers struct {
	ctrl Controller
}

type PeerResponse struct {
	ID     domain.ParticipantID `json:"id"`
	Tracks []domain.TrackInfo   `json:"tracks"`
}

func (h *handlers) status(c *gin.Context) {
	c.JSON(http.StatusOK, h.ctrl.Status())
}

func (h *handlers) peer(c *gin.Context) {
	id := domain.ParticipantID(c.Param("id"))
	tracks, ok := h.ctrl.Bundle(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown peer"})
		return
	}
	c.JSON(http.StatusOK, PeerResponse{ID: id, Tracks: tracks})
}

// Capture outlives the request, so only its values are kept.
func captureContext(c *gin.Context) context.Context {
	return context.WithoutCancel(c.Request.Context())
}

func (h *handlers) startCamera(c *gin.Context) {
	h.respond(c, h.ctrl.StartCamera(captureContext(c)))
}

func (h *handlers) startScreen(c *gin.Context) {
	h.respond(c, h.ctrl.StartScreenShare(captureContext(c)))
}

func (h *handlers) stopScreen(c *gin.Context) {
	h.respond(c, h.ctrl.StopScreenShare())
}

func (h *handlers) stopSession(c *gin.Context) {
	h.ctrl.Stop()
	c.JSON(http.StatusOK, h.ctrl.Status())
}

func (h *handlers) respond(c *gin.Context, err error) {
	if err == nil {
		c.JSON(http.StatusOK, h.ctrl.Status())
		return
	}
	code := statusCode(err)
	log.Warn().Err(err).Str("module", "adapters.http").Str("path", c.FullPath()).Int("code", code).Msg("request failed")
	c.JSON(code, gin.H{"error": err.Error()})
}

func statusCode(err error) int {
	switch {
	case errors.Is(err, orch.ErrMediaUnavailable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, app.ErrNoCamera), errors.Is(err, app.ErrNotSharing):
		return http.StatusConflict
	case errors.Is(err, orch.ErrStopped):
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}
