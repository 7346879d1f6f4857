package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/edirooss/pearl-bridge/internal/domain/state"
	"github.com/edirooss/pearl-bridge/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// choiceProjections are the dropdown sources hosts may ask for directly.
var choiceProjections = map[string]func(*state.Snapshot) []state.Choice{
	"channels":   state.ChannelChoices,
	"layouts":    state.ChannelLayoutChoices,
	"publishers": state.ChannelPublisherChoices,
	"recorders":  state.RecorderChoices,
	"events":     state.EventChoices,
}

// GetDefinitions handles GET /definitions.
//
// Status Codes:
//   - 200 OK → actions, feedbacks and presets built from the last snapshot
func (h *Handler) GetDefinitions(c *gin.Context) {
	c.JSON(http.StatusOK, h.surface.Definitions())
}

// GetChoices handles GET /choices/{kind}.
//
// Status Codes:
//   - 200 OK → JSON array of {id, label}; empty before the first poll
//   - 404 Not Found → unknown kind
func (h *Handler) GetChoices(c *gin.Context) {
	project, ok := choiceProjections[c.Param("kind")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": fmt.Sprintf("unknown choice kind %q", c.Param("kind"))})
		return
	}
	choices := project(h.surface.Snapshot())
	c.Header("X-Total-Count", strconv.Itoa(len(choices)))
	c.JSON(http.StatusOK, choices)
}

// GetSnapshot handles GET /snapshot.
//
// Status Codes:
//   - 200 OK → the live snapshot
//   - 503 Service Unavailable → no successful poll yet
func (h *Handler) GetSnapshot(c *gin.Context) {
	snap := h.surface.Snapshot()
	if snap == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"message": "no snapshot yet"})
		return
	}
	c.Header("X-Snapshot-Generated-At", snap.GeneratedAt.UTC().Format(http.TimeFormat))
	c.JSON(http.StatusOK, snap)
}

// RunAction handles POST /actions/{id}. The body holds the action options.
//
// Status Codes:
//   - 200 OK → {command, data, skipped}
//   - 400 Bad Request → options could not be decoded
//   - 404 Not Found → unknown action
//   - 409 Conflict → the feature is disabled in configuration
//   - 422 Unprocessable Entity → options reference something the device does not have
//   - 502 Bad Gateway → the device failed or rejected the call
func (h *Handler) RunAction(c *gin.Context) {
	raw, err := readOptions(c)
	if err != nil {
		writeError(c, err)
		return
	}
	action := c.Param("id")
	res, err := h.surface.Run(c.Request.Context(), action, raw)
	if err != nil {
		h.log.Debug("action failed", zap.String("action", action), zap.Error(err))
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// EvaluateFeedback handles POST /feedbacks/{id}/evaluate. The body holds the feedback options.
//
// Status Codes:
//   - 200 OK → {"value": bool}
//   - 400 Bad Request → options could not be decoded
//   - 404 Not Found → unknown feedback
func (h *Handler) EvaluateFeedback(c *gin.Context) {
	raw, err := readOptions(c)
	if err != nil {
		writeError(c, err)
		return
	}
	value, err := h.surface.Evaluate(service.FeedbackKind(c.Param("id")), raw)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"value": value})
}
