package pearl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/edirooss/pearl-bridge/internal/status"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const (
	// BasePathV1 is the unversioned API namespace every path is written against.
	BasePathV1 = "/api"
	// BasePathV2 is substituted for BasePathV1 once the firmware probe allows it.
	BasePathV2 = "/api/v2.0"

	// DefaultTimeout bounds every device request.
	DefaultTimeout = 3 * time.Second
	// DefaultV2MinFirmware is the oldest firmware that serves the versioned API.
	DefaultV2MinFirmware = "4.24.1"
)

// Config holds what the client needs to reach one device.
type Config struct {
	Host          string
	Port          int
	Username      string
	Password      string
	Timeout       time.Duration
	UseAPIv2      bool   // allow switching to the versioned API after the firmware probe
	V2MinFirmware string // "major.minor.patch"
	Verbose       bool
	Metadata      MetadataConfig
}

// MetadataConfig controls the legacy CGI metadata path.
// Empty credentials fall back to the primary ones.
type MetadataConfig struct {
	Enabled  bool
	Username string
	Password string
}

// BaseURL returns "http://host:port".
func (c Config) BaseURL() string {
	return "http://" + c.Host + ":" + strconv.Itoa(c.Port)
}

// Observer receives one call per finished device request.
type Observer interface {
	ObserveRequest(method, outcome string, elapsed time.Duration)
}

// Client talks to a Pearl over HTTP.
//
// Every call through Call:
//   - resolves paths under /api/ against the detected API base,
//   - authenticates with HTTP Basic,
//   - unwraps the {status, result} envelope,
//   - reports connectivity to the status sink.
//
// Safe for concurrent use.
type Client struct {
	log    *zap.Logger
	http   *resty.Client
	cfg    Config
	status status.Sink

	verbose  atomic.Bool
	observer atomic.Pointer[Observer]

	mu       sync.RWMutex
	basePath string
}

// New constructs a client; no request is made until DetectAPIBase or Call.
func New(log *zap.Logger, cfg Config, sink status.Sink) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	if sink == nil {
		sink = status.Discard
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.V2MinFirmware == "" {
		cfg.V2MinFirmware = DefaultV2MinFirmware
	}

	r := resty.New()
	r.SetBaseURL(cfg.BaseURL())
	r.SetBasicAuth(cfg.Username, cfg.Password)
	r.SetTimeout(cfg.Timeout)
	r.SetHeader("Accept", "application/json")
	log = log.Named("pearl")
	r.SetLogger(log.Sugar())

	c := &Client{
		log:      log,
		http:     r,
		cfg:      cfg,
		status:   sink,
		basePath: BasePathV1,
	}
	c.verbose.Store(cfg.Verbose)
	return c
}

// SetVerbose toggles request/response debug logging.
func (c *Client) SetVerbose(v bool) { c.verbose.Store(v) }

// SetObserver installs a request observer (metrics).
func (c *Client) SetObserver(o Observer) { c.observer.Store(&o) }

// BasePath returns the API base in use ("/api" or "/api/v2.0").
func (c *Client) BasePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.basePath
}

// Versioned reports whether the versioned API was selected.
func (c *Client) Versioned() bool { return c.BasePath() == BasePathV2 }

func (c *Client) setBasePath(p string) {
	c.mu.Lock()
	c.basePath = p
	c.mu.Unlock()
}

// MetadataEnabled reports whether the legacy metadata path may be used.
func (c *Client) MetadataEnabled() bool { return c.cfg.Metadata.Enabled }

// resolve maps a path written against /api/ onto the selected API base.
func (c *Client) resolve(path string) string {
	if strings.HasPrefix(path, BasePathV1+"/") {
		return c.BasePath() + path[len(BasePathV1):]
	}
	return path
}

// Call issues one request and returns the envelope's result (or the raw body when there is no
// result field). Failures are returned as *RequestError and reported to the status sink.
func (c *Client) Call(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	method = strings.ToUpper(method)
	if path == "" {
		c.status.UpdateStatus(status.BadConfig, "No URL given for request")
		c.log.Error("no URL given for request")
		return nil, &RequestError{Kind: ErrBadRequest, Method: method, Reason: "empty path"}
	}
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut:
	default:
		c.status.UpdateStatus(status.UnknownError, "Wrong request type: "+method)
		c.log.Error("wrong request type", zap.String("method", method))
		return nil, &RequestError{Kind: ErrBadRequest, Method: method, URL: path, Reason: "unsupported method"}
	}

	res, err := c.exchange(ctx, method, c.resolve(path), body)
	if err != nil {
		c.status.UpdateStatus(status.ConnectionFailure, err.Error())
		c.log.Debug("request failed", zap.Error(err))
		return nil, err
	}
	c.status.UpdateStatus(status.Ok, "")
	return res, nil
}

// exchange performs the HTTP round trip and envelope handling without touching the status sink.
func (c *Client) exchange(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	url := c.cfg.BaseURL() + path
	if c.verbose.Load() {
		c.log.Debug("request", zap.String("method", method), zap.String("url", url))
	}

	req := c.http.R().SetContext(ctx)
	if method != http.MethodGet {
		if body == nil {
			body = struct{}{}
		}
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}

	start := time.Now()
	resp, err := req.Execute(method, path)
	if err != nil {
		c.observe(method, "transport_error", start)
		return nil, &RequestError{Kind: ErrConnectionFailure, Method: method, URL: url, Reason: transportReason(err), Err: err}
	}
	if !resp.IsSuccess() {
		c.observe(method, "http_error", start)
		return nil, &RequestError{
			Kind:   ErrConnectionFailure,
			Method: method,
			URL:    url,
			Reason: "non-successful response status code: " + resp.Status(),
			Code:   resp.StatusCode(),
		}
	}

	raw := bytes.TrimSpace(resp.Body())
	if c.verbose.Load() {
		c.log.Debug("response", zap.String("url", url), zap.ByteString("body", raw))
	}
	res, rerr := unwrapEnvelope(raw)
	if rerr != nil {
		c.observe(method, "rejected", start)
		rerr.Method, rerr.URL = method, url
		return nil, rerr
	}
	c.observe(method, "ok", start)
	return res, nil
}

func transportReason(err error) string {
	var ne net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &ne) && ne.Timeout():
		return "request timed out"
	case errors.Is(err, context.Canceled):
		return "request was aborted"
	}
	return err.Error()
}

func (c *Client) observe(method, outcome string, start time.Time) {
	if o := c.observer.Load(); o != nil && *o != nil {
		(*o).ObserveRequest(method, outcome, time.Since(start))
	}
}

type envelope struct {
	Status  *string         `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// unwrapEnvelope returns envelope.result, or the whole body when the body is not an envelope.
func unwrapEnvelope(raw []byte) (json.RawMessage, *RequestError) {
	if len(raw) == 0 {
		return json.RawMessage("null"), nil
	}
	if !json.Valid(raw) {
		return nil, &RequestError{Kind: ErrConnectionFailure, Reason: "invalid JSON response"}
	}
	if raw[0] != '{' {
		return json.RawMessage(raw), nil
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return json.RawMessage(raw), nil
	}
	if env.Status != nil && *env.Status != "ok" {
		msg := env.Message
		if msg == "" {
			msg = "No error message"
		}
		return nil, &RequestError{Kind: ErrDeviceRejected, Reason: msg}
	}
	if len(env.Result) > 0 && !bytes.Equal(env.Result, []byte("null")) {
		return env.Result, nil
	}
	return json.RawMessage(raw), nil
}

// get calls GET path and decodes the result into T.
func get[T any](ctx context.Context, c *Client, path string) (T, error) {
	var out T
	raw, err := c.Call(ctx, http.MethodGet, path, nil)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		rerr := &RequestError{
			Kind:   ErrConnectionFailure,
			Method: http.MethodGet,
			URL:    c.cfg.BaseURL() + c.resolve(path),
			Reason: "unexpected response: " + err.Error(),
			Err:    err,
		}
		c.status.UpdateStatus(status.ConnectionFailure, rerr.Error())
		c.log.Debug("request failed", zap.Error(rerr))
		return out, rerr
	}
	return out, nil
}
