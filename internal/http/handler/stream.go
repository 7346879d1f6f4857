package handler

import (
	"io"
	"time"

	"github.com/edirooss/pearl-bridge/internal/host"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var heartbeatInterval = 15 * time.Second

// Stream handles GET /stream: a Server-Sent Events feed of hub events. The current status and
// definitions are sent first so a client never starts blank. Events a slow client cannot take
// are dropped by the hub.
func (h *Handler) Stream(c *gin.Context) {
	id, events, cancel := h.hub.Subscribe()
	defer cancel()
	log := h.log.With(zap.String("subscriber", id), zap.String("client_ip", c.ClientIP()))
	log.Debug("stream opened")
	defer log.Debug("stream closed")

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	now := time.Now()
	c.SSEvent(host.EventStatus, host.Event{Type: host.EventStatus, At: now, Data: h.hub.Status()})
	c.SSEvent(host.EventDefinitions, host.Event{Type: host.EventDefinitions, At: now, Data: h.surface.Definitions()})
	c.Writer.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	ctx := c.Request.Context()
	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case ev, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(ev.Type, ev)
			return true
		case t := <-heartbeat.C:
			c.SSEvent("heartbeat", gin.H{"at": t})
			return true
		}
	})
}
