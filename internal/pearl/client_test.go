package pearl

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/edirooss/pearl-bridge/internal/domain/state"
	"github.com/edirooss/pearl-bridge/internal/pearl/pearltest"
	"github.com/edirooss/pearl-bridge/internal/status"
	"go.uber.org/zap"
)

func newClient(t *testing.T, d *pearltest.Device, mutate func(*Config)) (*Client, *status.Recorder) {
	t.Helper()
	cfg := Config{
		Host:     d.Host(),
		Port:     d.Port(),
		Username: pearltest.Username,
		Password: pearltest.Password,
		Timeout:  time.Second,
		UseAPIv2: true,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	rec := &status.Recorder{}
	return New(zap.NewNop(), cfg, rec), rec
}

func TestListChannelsNormalizesIDs(t *testing.T) {
	d := pearltest.New(t)
	c, rec := newClient(t, d, nil)

	chs, err := c.ListChannels(context.Background())
	if err != nil {
		t.Fatalf("ListChannels: %v", err)
	}
	if len(chs) != 2 {
		t.Fatalf("got %d channels, want 2", len(chs))
	}
	if chs[0].ID != "1" || chs[0].Name != "Main" {
		t.Errorf("first channel = %+v", chs[0])
	}
	if len(chs[0].Publishers) != 2 || chs[0].Publishers[1].ID != "2" {
		t.Errorf("nested publishers = %+v", chs[0].Publishers)
	}
	if s, _ := rec.Last(); s != status.Ok {
		t.Errorf("status = %v, want ok", s)
	}
	if got := d.Count(http.MethodGet, "/api/channels"); got != 1 {
		t.Errorf("GET /api/channels count = %d", got)
	}
}

func TestDetectAPIBase(t *testing.T) {
	t.Run("new firmware", func(t *testing.T) {
		d := pearltest.New(t)
		c, rec := newClient(t, d, nil)
		if got := c.DetectAPIBase(context.Background()); got != BasePathV2 {
			t.Fatalf("base = %q, want %q", got, BasePathV2)
		}
		if rec.Count() != 0 {
			t.Errorf("probe touched the status sink %d times", rec.Count())
		}
		if _, err := c.ListRecorders(context.Background()); err != nil {
			t.Fatalf("ListRecorders: %v", err)
		}
		if d.Count(http.MethodGet, "/api/v2.0/recorders") != 1 {
			t.Errorf("request was not rewritten to the versioned base")
		}
	})

	t.Run("old firmware", func(t *testing.T) {
		d := pearltest.New(t)
		d.Update(func(s *pearltest.State) { s.Firmware = "4.24.0" })
		c, _ := newClient(t, d, nil)
		if got := c.DetectAPIBase(context.Background()); got != BasePathV1 {
			t.Fatalf("base = %q, want %q", got, BasePathV1)
		}
	})

	t.Run("custom threshold", func(t *testing.T) {
		d := pearltest.New(t)
		c, _ := newClient(t, d, func(cfg *Config) { cfg.V2MinFirmware = "4.25.0" })
		if got := c.DetectAPIBase(context.Background()); got != BasePathV1 {
			t.Fatalf("base = %q, want %q", got, BasePathV1)
		}
	})

	t.Run("toggle off", func(t *testing.T) {
		d := pearltest.New(t)
		c, _ := newClient(t, d, func(cfg *Config) { cfg.UseAPIv2 = false })
		if got := c.DetectAPIBase(context.Background()); got != BasePathV1 {
			t.Fatalf("base = %q, want %q", got, BasePathV1)
		}
		if n := len(d.Requests()); n != 0 {
			t.Errorf("probe issued %d requests with the toggle off", n)
		}
	})

	t.Run("probe failure", func(t *testing.T) {
		d := pearltest.New(t)
		d.Update(func(s *pearltest.State) { s.Versioned = false })
		c, _ := newClient(t, d, nil)
		if got := c.DetectAPIBase(context.Background()); got != BasePathV1 {
			t.Fatalf("base = %q, want %q", got, BasePathV1)
		}
	})
}

func TestCallFailures(t *testing.T) {
	d := pearltest.New(t)
	c, rec := newClient(t, d, nil)
	ctx := context.Background()

	d.Reject("/api/recorders", "recorder busy")
	_, err := c.ListRecorders(ctx)
	if !errors.Is(err, ErrDeviceRejected) {
		t.Fatalf("err = %v, want ErrDeviceRejected", err)
	}
	if !strings.Contains(err.Error(), "recorder busy") {
		t.Errorf("device message lost: %v", err)
	}
	if s, _ := rec.Last(); s != status.ConnectionFailure {
		t.Errorf("status = %v, want connection_failure", s)
	}

	d.Fail("/api/recorders/status", http.StatusInternalServerError)
	_, err = c.RecorderStatuses(ctx)
	if !errors.Is(err, ErrConnectionFailure) {
		t.Fatalf("err = %v, want ErrConnectionFailure", err)
	}
	if !strings.Contains(err.Error(), "500") {
		t.Errorf("status text missing: %v", err)
	}

	if _, err := c.ListChannels(ctx); err != nil {
		t.Fatalf("ListChannels: %v", err)
	}
	if s, _ := rec.Last(); s != status.Ok {
		t.Errorf("status after recovery = %v, want ok", s)
	}
}

func TestMalformedResultReportsConnectionFailure(t *testing.T) {
	d := pearltest.New(t)
	c, rec := newClient(t, d, nil)
	d.Respond("/api/recorders", `{"status":"ok","result":{"id":"1"}}`)

	_, err := c.ListRecorders(context.Background())
	if !errors.Is(err, ErrConnectionFailure) {
		t.Fatalf("err = %v, want ErrConnectionFailure", err)
	}
	var rerr *RequestError
	if !errors.As(err, &rerr) || !strings.HasSuffix(rerr.URL, "/recorders") {
		t.Errorf("request error = %+v", rerr)
	}
	if s, msg := rec.Last(); s != status.ConnectionFailure || msg == "" {
		t.Errorf("status = %v %q", s, msg)
	}
}

func TestCallTimeout(t *testing.T) {
	d := pearltest.New(t)
	c, rec := newClient(t, d, func(cfg *Config) { cfg.Timeout = 50 * time.Millisecond })
	d.Delay("/api/channels", 500*time.Millisecond)

	_, err := c.ListChannels(context.Background())
	if !errors.Is(err, ErrConnectionFailure) {
		t.Fatalf("err = %v, want ErrConnectionFailure", err)
	}
	var rerr *RequestError
	if !errors.As(err, &rerr) || rerr.Reason != "request timed out" {
		t.Errorf("reason = %+v", rerr)
	}
	if s, msg := rec.Last(); s != status.ConnectionFailure || msg == "" {
		t.Errorf("status = %v %q", s, msg)
	}
}

func TestCallRejectsBadRequests(t *testing.T) {
	d := pearltest.New(t)
	c, rec := newClient(t, d, nil)

	_, err := c.Call(context.Background(), http.MethodGet, "", nil)
	if !errors.Is(err, ErrBadRequest) {
		t.Fatalf("empty path err = %v", err)
	}
	if s, _ := rec.Last(); s != status.BadConfig {
		t.Errorf("status = %v, want bad_config", s)
	}

	_, err = c.Call(context.Background(), http.MethodDelete, "/api/channels", nil)
	if !errors.Is(err, ErrBadRequest) {
		t.Fatalf("DELETE err = %v", err)
	}
	if s, _ := rec.Last(); s != status.UnknownError {
		t.Errorf("status = %v, want unknown_error", s)
	}
	if n := len(d.Requests()); n != 0 {
		t.Errorf("%d requests reached the device", n)
	}
}

func TestControlPaths(t *testing.T) {
	d := pearltest.New(t)
	c, _ := newClient(t, d, nil)
	ctx := context.Background()

	if err := c.ControlPublisher(ctx, "1", "2", "stop"); err != nil {
		t.Fatalf("ControlPublisher: %v", err)
	}
	if d.Count(http.MethodPost, "/api/channels/1/publishers/2/control/stop") != 1 {
		t.Errorf("stop request missing: %+v", d.Requests())
	}
	if err := c.ControlAllPublishers(ctx, "1", "start"); err != nil {
		t.Fatalf("ControlAllPublishers: %v", err)
	}
	if err := c.ControlRecorder(ctx, "2", "reset"); err != nil {
		t.Fatalf("ControlRecorder: %v", err)
	}
	if err := c.SetActiveLayout(ctx, "1", "2"); err != nil {
		t.Fatalf("SetActiveLayout: %v", err)
	}
	if err := c.InsertBookmark(ctx, "1", "goal"); err != nil {
		t.Fatalf("InsertBookmark: %v", err)
	}

	d.Update(func(s *pearltest.State) {
		ch := s.Channel("1")
		for _, p := range ch.Publishers {
			if p.State != "started" {
				t.Errorf("publisher %s = %s after start-all", p.ID, p.State)
			}
		}
		if !ch.Layout("2").Active || ch.Layout("1").Active {
			t.Errorf("layout 2 not the only active layout")
		}
		if len(ch.Bookmarks) != 1 || ch.Bookmarks[0] != "goal" {
			t.Errorf("bookmarks = %v", ch.Bookmarks)
		}
		if rec := s.Recorder("2"); rec.State != "started" || rec.Duration != 0 {
			t.Errorf("reset recorder = %+v", rec)
		}
	})

	for _, r := range d.Requests() {
		if r.Method == http.MethodPut && strings.HasSuffix(r.Path, "/layouts/active") {
			if strings.TrimSpace(string(r.Body)) != `{"id":2}` {
				t.Errorf("layout body = %s", r.Body)
			}
		}
	}
}

func TestLayoutSettingsRoundTrip(t *testing.T) {
	d := pearltest.New(t)
	c, _ := newClient(t, d, nil)
	ctx := context.Background()

	blob := json.RawMessage(`{"name":"Fullscreen","sources":[{"id":"hdmi-a","x":0,"y":0,"w":1,"h":1}],"background":"#000000"}`)
	if err := c.SetLayoutSettings(ctx, "1", "2", blob); err != nil {
		t.Fatalf("SetLayoutSettings: %v", err)
	}
	got, err := c.LayoutSettings(ctx, "1", "2")
	if err != nil {
		t.Fatalf("LayoutSettings: %v", err)
	}

	var want, have any
	_ = json.Unmarshal(blob, &want)
	if err := json.Unmarshal(got, &have); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(want, have) {
		t.Errorf("round trip mismatch:\n got %s\nwant %s", got, blob)
	}

	if err := c.SetLayoutSettings(ctx, "1", "2", json.RawMessage(`{broken`)); !errors.Is(err, ErrBadRequest) {
		t.Errorf("invalid blob err = %v", err)
	}
}

func TestIdentityFallback(t *testing.T) {
	d := pearltest.New(t)
	d.Update(func(s *pearltest.State) { s.LegacyIdentity = true })
	c, _ := newClient(t, d, nil)

	id, err := c.Identity(context.Background())
	if err != nil {
		t.Fatalf("Identity: %v", err)
	}
	if id.Name != "pearl-studio-a" || id.Location != "Studio A" {
		t.Errorf("identity = %+v", id)
	}
	if d.Count(http.MethodGet, "/api/system/ident") != 1 || d.Count(http.MethodGet, "/api/system/identity") != 1 {
		t.Errorf("fallback requests = %+v", d.Requests())
	}
}

func TestIdentityFallsBackOnlyWhenMissing(t *testing.T) {
	d := pearltest.New(t)
	c, _ := newClient(t, d, func(cfg *Config) { cfg.Timeout = 50 * time.Millisecond })

	d.Delay("/api/system/ident", 500*time.Millisecond)
	if _, err := c.Identity(context.Background()); !errors.Is(err, ErrConnectionFailure) {
		t.Fatalf("err = %v", err)
	}
	d.Heal("/api/system/ident")
	d.Fail("/api/system/ident", http.StatusInternalServerError)
	if _, err := c.Identity(context.Background()); err == nil {
		t.Fatal("server error fell back to /system/identity")
	}
	if n := d.Count(http.MethodGet, "/api/system/identity"); n != 0 {
		t.Errorf("fallback requests = %d", n)
	}

	d.Heal("/api/system/ident")
	d.Update(func(s *pearltest.State) { s.LegacyIdentity = true })
	d.Reject("/api/system/ident", "not here")
	if id, err := c.Identity(context.Background()); err != nil || id.Name != "pearl-studio-a" {
		t.Errorf("rejected ident: id = %+v, err = %v", id, err)
	}
}

func TestMetadataDisabledMakesNoRequest(t *testing.T) {
	d := pearltest.New(t)
	c, _ := newClient(t, d, nil)

	if _, err := c.Metadata(context.Background(), "1"); !errors.Is(err, ErrFeatureDisabled) {
		t.Fatalf("Metadata err = %v, want ErrFeatureDisabled", err)
	}
	if err := c.SetMetadata(context.Background(), "1", &state.Metadata{Title: "x"}); !errors.Is(err, ErrFeatureDisabled) {
		t.Fatalf("SetMetadata err = %v, want ErrFeatureDisabled", err)
	}
	if n := len(d.Requests()); n != 0 {
		t.Errorf("%d requests reached the device", n)
	}
}

func TestMetadataRoundTrip(t *testing.T) {
	d := pearltest.New(t)
	d.Update(func(s *pearltest.State) { s.MetadataUsername, s.MetadataPassword = "meta", "cgi" })
	c, rec := newClient(t, d, func(cfg *Config) {
		cfg.Metadata = MetadataConfig{Enabled: true, Username: "meta", Password: "cgi"}
	})
	ctx := context.Background()

	want := &state.Metadata{Title: "Q&A: 50% off", Author: "Studio A", RecPrefix: "show one"}
	if err := c.SetMetadata(ctx, "1", want); err != nil {
		t.Fatalf("SetMetadata: %v", err)
	}
	got, err := c.Metadata(ctx, "1")
	if err != nil {
		t.Fatalf("Metadata: %v", err)
	}
	if got.Title != want.Title || got.Author != want.Author || got.RecPrefix != want.RecPrefix {
		t.Errorf("metadata = %+v, want %+v", got, want)
	}
	if rec.Count() != 0 {
		t.Errorf("legacy path touched the status sink")
	}

	if err := c.SetParams(ctx, "1", nil); err != nil {
		t.Errorf("empty SetParams: %v", err)
	}
}

func TestMetadataPrimaryCredentialsFallback(t *testing.T) {
	d := pearltest.New(t)
	c, _ := newClient(t, d, func(cfg *Config) { cfg.Metadata.Enabled = true })

	got, err := c.Metadata(context.Background(), "1")
	if err != nil {
		t.Fatalf("Metadata: %v", err)
	}
	if got.Title != "Morning Show" {
		t.Errorf("title = %q", got.Title)
	}
}

func TestParseParams(t *testing.T) {
	got := parseParams("title=Hello%20World\nauthor=\n\nrec_prefix=a%2Bb\r\nbroken\n=orphan\n")
	want := map[string]string{"title": "Hello World", "author": "", "rec_prefix": "a+b", "broken": ""}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("parseParams = %v, want %v", got, want)
	}
}

func TestParseFirmwareVersion(t *testing.T) {
	cases := map[string]int{
		"4.24.1":   42401,
		"4.24.0":   42400,
		"4.9.12":   40912,
		"5.0":      50000,
		"4.24.1r2": 42401,
		" 4.24.1 ": 42401,
	}
	for in, want := range cases {
		got, err := ParseFirmwareVersion(in)
		if err != nil || got != want {
			t.Errorf("ParseFirmwareVersion(%q) = %d, %v; want %d", in, got, err, want)
		}
	}
	for _, bad := range []string{"", "x.1.2", "4.x.1"} {
		if _, err := ParseFirmwareVersion(bad); err == nil {
			t.Errorf("ParseFirmwareVersion(%q) succeeded", bad)
		}
	}
}

func TestUnwrapEnvelope(t *testing.T) {
	cases := []struct {
		in, want string
		kind     error
	}{
		{in: `{"status":"ok","result":[1,2]}`, want: `[1,2]`},
		{in: `{"status":"ok"}`, want: `{"status":"ok"}`},
		{in: `[{"id":1}]`, want: `[{"id":1}]`},
		{in: `"4.24.1"`, want: `"4.24.1"`},
		{in: ``, want: `null`},
		{in: `{"status":"error"}`, kind: ErrDeviceRejected},
		{in: `{"status":`, kind: ErrConnectionFailure},
	}
	for _, tc := range cases {
		got, err := unwrapEnvelope([]byte(tc.in))
		if tc.kind != nil {
			if err == nil || !errors.Is(err, tc.kind) {
				t.Errorf("unwrapEnvelope(%s) err = %v, want %v", tc.in, err, tc.kind)
			}
			continue
		}
		if err != nil || string(got) != tc.want {
			t.Errorf("unwrapEnvelope(%s) = %s, %v; want %s", tc.in, got, err, tc.want)
		}
	}
}
