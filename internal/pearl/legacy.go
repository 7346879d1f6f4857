package pearl

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/edirooss/pearl-bridge/internal/domain/state"
	"go.uber.org/zap"
)

func legacyPath(channel state.ID, script string) string {
	return "/admin/channel" + string(channel) + "/" + script
}

// GetParams reads the named CGI parameters of a channel. Values are percent-decoded.
// Without metadata support it fails with ErrFeatureDisabled before any request is made.
func (c *Client) GetParams(ctx context.Context, channel state.ID, keys ...string) (map[string]string, error) {
	if !c.cfg.Metadata.Enabled {
		return nil, &RequestError{Kind: ErrFeatureDisabled, Method: http.MethodGet, Reason: "metadata support is disabled"}
	}
	// get_params.cgi takes bare keys: ?title&author
	path := legacyPath(channel, "get_params.cgi")
	if len(keys) > 0 {
		path += "?" + strings.Join(keys, "&")
	}
	text, err := c.legacyGet(ctx, path)
	if err != nil {
		return nil, err
	}
	return parseParams(text), nil
}

// SetParams writes CGI parameters of a channel. Values are percent-encoded on the wire.
// An empty set is a no-op.
func (c *Client) SetParams(ctx context.Context, channel state.ID, params map[string]string) error {
	if !c.cfg.Metadata.Enabled {
		return &RequestError{Kind: ErrFeatureDisabled, Method: http.MethodGet, Reason: "metadata support is disabled"}
	}
	if len(params) == 0 {
		return nil
	}
	q := url.Values{}
	for k, v := range params {
		q.Set(k, v)
	}
	_, err := c.legacyGet(ctx, legacyPath(channel, "set_params.cgi")+"?"+q.Encode())
	return err
}

// Metadata reads the content metadata of a channel.
func (c *Client) Metadata(ctx context.Context, channel state.ID) (*state.Metadata, error) {
	p, err := c.GetParams(ctx, channel, state.MetadataKeys...)
	if err != nil {
		return nil, err
	}
	return state.MetadataFromParams(p), nil
}

// SetMetadata writes the non-empty fields of m.
func (c *Client) SetMetadata(ctx context.Context, channel state.ID, m *state.Metadata) error {
	if m == nil {
		return nil
	}
	return c.SetParams(ctx, channel, m.Params())
}

// legacyGet performs a plain-text GET with the metadata credentials (falling back to the primary
// ones). It does not touch the status sink; metadata is supplementary.
func (c *Client) legacyGet(ctx context.Context, path string) (string, error) {
	user, pass := c.cfg.Username, c.cfg.Password
	if c.cfg.Metadata.Username != "" {
		user, pass = c.cfg.Metadata.Username, c.cfg.Metadata.Password
	}
	full := c.cfg.BaseURL() + path
	if c.verbose.Load() {
		c.log.Debug("legacy request", zap.String("url", full))
	}

	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetBasicAuth(user, pass).
		SetHeader("Accept", "text/plain").
		Get(path)
	if err != nil {
		c.observe(http.MethodGet, "transport_error", start)
		return "", &RequestError{Kind: ErrConnectionFailure, Method: http.MethodGet, URL: full, Reason: transportReason(err), Err: err}
	}
	if !resp.IsSuccess() {
		c.observe(http.MethodGet, "http_error", start)
		return "", &RequestError{
			Kind:   ErrConnectionFailure,
			Method: http.MethodGet,
			URL:    full,
			Reason: "non-successful response status code: " + resp.Status(),
		}
	}
	c.observe(http.MethodGet, "ok", start)
	if c.verbose.Load() {
		c.log.Debug("legacy response", zap.String("url", full), zap.ByteString("body", resp.Body()))
	}
	return resp.String(), nil
}

// parseParams reads "key=value" lines. Lines without a key are skipped; a key without
// "=" maps to "".
func parseParams(text string) map[string]string {
	out := make(map[string]string)
	for _, line := range strings.Split(text, "\n") {
		k, v, _ := strings.Cut(line, "=")
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		v = strings.TrimSpace(v)
		if dec, err := url.QueryUnescape(v); err == nil {
			v = dec
		}
		out[k] = v
	}
	return out
}
