package pearl

import (
	"context"
	"errors"
	"net/http"

	"github.com/edirooss/pearl-bridge/internal/domain/state"
)

// EventStatus is one row of GET /api/events/status.
type EventStatus struct {
	ID     state.ID          `json:"id"`
	Status state.EventStatus `json:"status"`
}

// SystemStatus returns uptime, date and CPU figures (versioned API).
func (c *Client) SystemStatus(ctx context.Context) (*state.SystemStatus, error) {
	return get[*state.SystemStatus](ctx, c, "/api/system/status")
}

// Firmware returns firmware version and product name (versioned API).
func (c *Client) Firmware(ctx context.Context) (*state.Firmware, error) {
	return get[*state.Firmware](ctx, c, "/api/system/firmware")
}

// Product returns the product description (versioned API).
func (c *Client) Product(ctx context.Context) (*state.Product, error) {
	return get[*state.Product](ctx, c, "/api/system/product")
}

// Identity returns the device identity. Firmware generations disagree on the endpoint
// name, so /system/ident is tried first and /system/identity second when the first is missing
// or rejected.
func (c *Client) Identity(ctx context.Context) (*state.Identity, error) {
	id, err := get[*state.Identity](ctx, c, "/api/system/ident")
	if err == nil {
		return id, nil
	}
	var rerr *RequestError
	notFound := errors.As(err, &rerr) && rerr.Code == http.StatusNotFound
	if !notFound && !errors.Is(err, ErrDeviceRejected) {
		return nil, err
	}
	return get[*state.Identity](ctx, c, "/api/system/identity")
}

// AFUStatus returns the auto framing units and their state (versioned API).
func (c *Client) AFUStatus(ctx context.Context) ([]state.AFU, error) {
	return get[[]state.AFU](ctx, c, "/api/afu/status")
}

// ListEvents returns every scheduled event (versioned API).
func (c *Client) ListEvents(ctx context.Context) ([]state.Event, error) {
	return get[[]state.Event](ctx, c, "/api/events")
}

// EventStatuses returns the status of every event (versioned API).
func (c *Client) EventStatuses(ctx context.Context) ([]EventStatus, error) {
	return get[[]EventStatus](ctx, c, "/api/events/status")
}

// Reboot restarts the device.
func (c *Client) Reboot(ctx context.Context) error {
	_, err := c.Call(ctx, http.MethodPost, "/api/system/reboot", nil)
	return err
}

// Shutdown powers the device off.
func (c *Client) Shutdown(ctx context.Context) error {
	_, err := c.Call(ctx, http.MethodPost, "/api/system/shutdown", nil)
	return err
}
