package handler

import (
	"net/http"
	"strconv"

	"github.com/edirooss/pearl-bridge/internal/config"
	"github.com/edirooss/pearl-bridge/pkg/jsonx"
	"github.com/gin-gonic/gin"
)

const defaultHistory = 50

// GetVariables handles GET /variables.
func (h *Handler) GetVariables(c *gin.Context) {
	defs, values := h.hub.Variables()
	c.JSON(http.StatusOK, gin.H{
		"definitions": defs,
		"values":      values,
		"custom":      h.hub.CustomVariables(),
	})
}

// ParseVariables handles POST /variables/parse with {"text": "..."}.
// Unknown references are returned as written.
func (h *Handler) ParseVariables(c *gin.Context) {
	var req struct {
		Text string `json:"text"`
	}
	if err := jsonx.ParseStrictJSONBody(c.Request, &req); err != nil {
		c.Error(err)
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"text": h.hub.ParseVariables(req.Text)})
}

// SetCustomVariable handles PUT /variables/custom/{id} with {"value": "..."}.
func (h *Handler) SetCustomVariable(c *gin.Context) {
	var req struct {
		Value string `json:"value"`
	}
	if err := jsonx.ParseStrictJSONBody(c.Request, &req); err != nil {
		c.Error(err)
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	h.hub.SetCustomVariable(c.Param("id"), req.Value)
	c.Status(http.StatusNoContent)
}

// GetStatus handles GET /status?limit=n. History is newest first.
func (h *Handler) GetStatus(c *gin.Context) {
	limit := defaultHistory
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"message": "invalid limit"})
			return
		}
		limit = n
	}
	c.JSON(http.StatusOK, gin.H{
		"current": h.hub.Status(),
		"history": h.hub.History(limit),
	})
}

// GetConfigFields handles GET /config/fields.
func (h *Handler) GetConfigFields(c *gin.Context) {
	fields := config.Fields(h.config())
	c.Header("X-Total-Count", strconv.Itoa(len(fields)))
	c.JSON(http.StatusOK, fields)
}
