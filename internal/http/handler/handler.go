// Package handler serves the control surface over HTTP: definitions, choices, actions,
// feedback evaluation, variables, status and a Server-Sent Events stream of host events.
package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/edirooss/pearl-bridge/internal/config"
	"github.com/edirooss/pearl-bridge/internal/host"
	mw "github.com/edirooss/pearl-bridge/internal/http/middleware"
	"github.com/edirooss/pearl-bridge/internal/pearl"
	"github.com/edirooss/pearl-bridge/internal/surface"
	"github.com/edirooss/pearl-bridge/pkg/jsonx"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxOptionsBytes = 1 << 20

// Handler groups the API routes. Every route answers JSON; errors carry {"message": ...}.
type Handler struct {
	log     *zap.Logger
	surface *surface.Surface
	hub     *host.Hub
	config  func() *config.Config
}

// New builds a Handler. cfg returns the running configuration (for config field defaults);
// it may be nil.
func New(log *zap.Logger, s *surface.Surface, hub *host.Hub, cfg func() *config.Config) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg == nil {
		cfg = config.Default
	}
	return &Handler{
		log:     log.Named("api"),
		surface: s,
		hub:     hub,
		config:  cfg,
	}
}

// Register mounts every route under /api on r. actionMW wraps the action route only, which
// is the one that waits on the device.
func (h *Handler) Register(r gin.IRouter, actionMW ...gin.HandlerFunc) {
	api := r.Group("/api")
	validID := mw.RequireValidID("id")

	api.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"message": "pong"}) })

	// --- Surface ---
	api.GET("/definitions", h.GetDefinitions)
	api.GET("/choices/:kind", h.GetChoices)
	api.GET("/snapshot", h.GetSnapshot)
	actions := append([]gin.HandlerFunc{validID}, actionMW...)
	api.POST("/actions/:id", append(actions, h.RunAction)...)
	api.POST("/feedbacks/:id/evaluate", validID, h.EvaluateFeedback)

	// --- Variables ---
	api.GET("/variables", h.GetVariables)
	api.POST("/variables/parse", h.ParseVariables)
	api.PUT("/variables/custom/:id", validID, h.SetCustomVariable)

	// --- Instance ---
	api.GET("/status", h.GetStatus)
	api.GET("/config/fields", h.GetConfigFields)
	api.GET("/stream", h.Stream)
}

// writeError maps err onto a status code and a {"message"} body.
func writeError(c *gin.Context, err error) {
	c.Error(err)
	c.JSON(statusOf(err), gin.H{"message": err.Error()})
}

func statusOf(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, surface.ErrUnknownAction):
		return http.StatusNotFound
	case errors.Is(err, surface.ErrInvalidOptions),
		errors.Is(err, jsonx.ErrEmptyBody),
		errors.Is(err, jsonx.ErrTrailingJSON):
		return http.StatusBadRequest
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, surface.ErrConfigurationInvalid):
		return http.StatusUnprocessableEntity
	case errors.Is(err, pearl.ErrFeatureDisabled):
		return http.StatusConflict
	case errors.Is(err, pearl.ErrConnectionFailure), errors.Is(err, pearl.ErrDeviceRejected):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// readOptions returns the raw request body. An empty body is allowed and means "no options".
func readOptions(c *gin.Context) ([]byte, error) {
	b, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxOptionsBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return b, nil
}
