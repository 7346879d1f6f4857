package pearl

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/edirooss/pearl-bridge/internal/domain/state"
)

// ChannelSummary is one row of GET /api/channels?publishers=yes&encoders=yes.
type ChannelSummary struct {
	ID         state.ID        `json:"id"`
	Name       string          `json:"name"`
	Publishers []PublisherType `json:"publishers,omitempty"`
	Encoders   []state.Encoder `json:"encoders,omitempty"`
}

// PublisherType is one row of GET /api/channels/{id}/publishers/type.
type PublisherType struct {
	ID   state.ID `json:"id"`
	Name string   `json:"name"`
	Type string   `json:"type"`
}

// PublisherStatus is one row of GET /api/channels/{id}/publishers/status.
type PublisherStatus struct {
	ID     state.ID              `json:"id"`
	Status state.PublisherStatus `json:"status"`
}

func channelPath(id state.ID) string { return "/api/channels/" + string(id) }

// ListChannels returns every channel with nested publisher and encoder summaries.
func (c *Client) ListChannels(ctx context.Context) ([]ChannelSummary, error) {
	return get[[]ChannelSummary](ctx, c, "/api/channels?publishers=yes&encoders=yes")
}

// Layouts returns the layouts of a channel, including the active flag.
func (c *Client) Layouts(ctx context.Context, channel state.ID) ([]state.Layout, error) {
	return get[[]state.Layout](ctx, c, channelPath(channel)+"/layouts")
}

// SetActiveLayout switches the channel to the given layout.
func (c *Client) SetActiveLayout(ctx context.Context, channel, layout state.ID) error {
	n, err := layout.Number()
	if err != nil {
		return fmt.Errorf("layout: %w", err)
	}
	_, err = c.Call(ctx, http.MethodPut, channelPath(channel)+"/layouts/active", map[string]int64{"id": n})
	return err
}

// PublisherTypes returns the name/type listing of a channel's publishers.
func (c *Client) PublisherTypes(ctx context.Context, channel state.ID) ([]PublisherType, error) {
	return get[[]PublisherType](ctx, c, channelPath(channel)+"/publishers/type")
}

// PublisherStatuses returns the status listing of a channel's publishers.
func (c *Client) PublisherStatuses(ctx context.Context, channel state.ID) ([]PublisherStatus, error) {
	return get[[]PublisherStatus](ctx, c, channelPath(channel)+"/publishers/status")
}

// ControlPublisher starts or stops one publisher. command is "start" or "stop".
func (c *Client) ControlPublisher(ctx context.Context, channel, publisher state.ID, command string) error {
	_, err := c.Call(ctx, http.MethodPost, channelPath(channel)+"/publishers/"+string(publisher)+"/control/"+command, nil)
	return err
}

// ControlAllPublishers starts or stops every publisher of a channel.
func (c *Client) ControlAllPublishers(ctx context.Context, channel state.ID, command string) error {
	_, err := c.Call(ctx, http.MethodPost, channelPath(channel)+"/publishers/control/"+command, nil)
	return err
}

// InsertBookmark adds a marker with the given text to the channel's recording.
func (c *Client) InsertBookmark(ctx context.Context, channel state.ID, text string) error {
	_, err := c.Call(ctx, http.MethodPost, channelPath(channel)+"/bookmarks", map[string]string{"text": text})
	return err
}

// LayoutSettings returns the layout's settings blob as-is.
func (c *Client) LayoutSettings(ctx context.Context, channel, layout state.ID) (json.RawMessage, error) {
	return c.Call(ctx, http.MethodGet, channelPath(channel)+"/layouts/"+string(layout)+"/settings", nil)
}

// SetLayoutSettings replaces the layout's settings with the given JSON blob.
func (c *Client) SetLayoutSettings(ctx context.Context, channel, layout state.ID, settings json.RawMessage) error {
	if !json.Valid(settings) {
		return fmt.Errorf("layout settings: %w", &RequestError{Kind: ErrBadRequest, Reason: "settings are not valid JSON"})
	}
	_, err := c.Call(ctx, http.MethodPut, channelPath(channel)+"/layouts/"+string(layout)+"/settings", settings)
	return err
}
