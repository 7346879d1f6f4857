package pearl

import (
	"context"
	"net/http"

	"github.com/edirooss/pearl-bridge/internal/domain/state"
)

// RecorderStatus is one row of GET /api/recorders/status.
type RecorderStatus struct {
	ID     state.ID             `json:"id"`
	Status state.RecorderStatus `json:"status"`
}

// ListRecorders returns every recorder (id and name).
func (c *Client) ListRecorders(ctx context.Context) ([]state.Recorder, error) {
	return get[[]state.Recorder](ctx, c, "/api/recorders")
}

// RecorderStatuses returns the status of every recorder.
func (c *Client) RecorderStatuses(ctx context.Context) ([]RecorderStatus, error) {
	return get[[]RecorderStatus](ctx, c, "/api/recorders/status")
}

// ControlRecorder sends start, stop or reset to a recorder.
func (c *Client) ControlRecorder(ctx context.Context, recorder state.ID, command string) error {
	_, err := c.Call(ctx, http.MethodPost, "/api/recorders/"+string(recorder)+"/control/"+command, nil)
	return err
}
