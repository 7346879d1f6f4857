package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Device.Host != "192.168.255.250" || cfg.Device.Port != 80 || cfg.Device.Username != "admin" {
		t.Errorf("device defaults = %+v", cfg.Device)
	}
	if !cfg.Device.UseAPIv2 || cfg.Device.Timeout != 3*time.Second || cfg.Device.V2MinFirmware != "4.24.1" {
		t.Errorf("api defaults = %+v", cfg.Device)
	}
	if cfg.Poll.FrequencySec != 10 || cfg.Redis.Channel != "pearl-bridge:events" {
		t.Errorf("poll/redis defaults = %+v %+v", cfg.Poll, cfg.Redis)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Config)
		wantErr  bool
		wantPoll int
	}{
		{"ok", func(*Config) {}, false, 10},
		{"hostname rejected", func(c *Config) { c.Device.Host = "pearl.local" }, true, 0},
		{"empty host", func(c *Config) { c.Device.Host = "" }, true, 0},
		{"port zero", func(c *Config) { c.Device.Port = 0 }, true, 0},
		{"port too high", func(c *Config) { c.Device.Port = 65536 }, true, 0},
		{"poll missing", func(c *Config) { c.Poll.FrequencySec = 0 }, false, 10},
		{"poll clamped", func(c *Config) { c.Poll.FrequencySec = 1000 }, false, 300},
		{"poll minimum", func(c *Config) { c.Poll.FrequencySec = 1 }, false, 1},
		{"redis without addr", func(c *Config) { c.Redis.Enabled = true; c.Redis.Addr = "" }, true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrBadConfig) {
					t.Fatalf("err = %v, want ErrBadConfig", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if cfg.Poll.FrequencySec != tt.wantPoll {
				t.Errorf("poll = %d, want %d", cfg.Poll.FrequencySec, tt.wantPoll)
			}
		})
	}
}

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	p := filepath.Join(dir, "pearl-bridge.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadLayersFileEnvAndFlags(t *testing.T) {
	p := writeConfig(t, t.TempDir(), `
device:
  host: 10.0.0.5
  port: 8080
  timeout: 2s
poll:
  frequency_sec: 5
metadata:
  enabled: true
`)
	t.Setenv("PEARL_DEVICE_USERNAME", "operator")
	t.Setenv("PEARL_POLL_FREQUENCY_SEC", "7")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("poll", 0, "")
	flags.String("host", "", "")
	if err := flags.Parse([]string{"--poll", "20"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(p, flags)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Device.Host != "10.0.0.5" || cfg.Device.Port != 8080 || cfg.Device.Timeout != 2*time.Second {
		t.Errorf("file values lost: %+v", cfg.Device)
	}
	if cfg.Device.Username != "operator" {
		t.Errorf("env override lost: %q", cfg.Device.Username)
	}
	if cfg.Poll.FrequencySec != 20 {
		t.Errorf("flag should win over env: %d", cfg.Poll.FrequencySec)
	}
	if !cfg.Metadata.Enabled || !cfg.Device.UseAPIv2 {
		t.Errorf("metadata/api = %+v %+v", cfg.Metadata, cfg.Device)
	}
	if got := cfg.Pearl(); got.Port != 8080 || !got.Metadata.Enabled {
		t.Errorf("pearl config = %+v", got)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Device.Host != Default().Device.Host {
		t.Errorf("host = %q", cfg.Device.Host)
	}
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	cfg := Default()
	err := Parse([]byte("device:\n  hostname: 10.0.0.1\n"), cfg)
	if !errors.Is(err, ErrBadConfig) {
		t.Fatalf("err = %v", err)
	}
}

func TestRequiresRestart(t *testing.T) {
	a, b := Default(), Default()
	b.Poll.FrequencySec = 30
	b.Verbose = true
	if a.RequiresRestart(b) {
		t.Error("poll and verbose apply live")
	}
	b.Device.Port = 81
	if !a.RequiresRestart(b) {
		t.Error("device change needs a restart")
	}
}

func TestFields(t *testing.T) {
	fields := Fields(nil)
	byID := map[string]Field{}
	for _, f := range fields {
		byID[f.ID] = f
	}
	poll := byID["pollfreq"]
	if poll.Default != 10 || *poll.Min != 1 || *poll.Max != 300 {
		t.Errorf("pollfreq = %+v", poll)
	}
	if byID["host_port"].Default != "80" || byID["use_api_v2"].Default != true {
		t.Errorf("fields = %+v", fields)
	}
}

func TestWatcherAppliesValidRevisions(t *testing.T) {
	dir := t.TempDir()
	p := writeConfig(t, dir, "device:\n  host: 10.0.0.5\npoll:\n  frequency_sec: 5\n")
	cur, err := Load(p, nil)
	if err != nil {
		t.Fatal(err)
	}

	applied := make(chan *Config, 4)
	w := NewWatcher(nil, p, nil, cur, func(_, next *Config) { applied <- next })
	w.debounce = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)

	writeConfig(t, dir, "device:\n  host: not-an-ip\n")
	writeConfig(t, dir, "device:\n  host: 10.0.0.5\npoll:\n  frequency_sec: 30\n")

	// A reload may catch the file half-written; wait for the final revision.
	deadline := time.After(5 * time.Second)
	for got := 0; got != 30; {
		select {
		case next := <-applied:
			got = next.Poll.FrequencySec
		case <-deadline:
			t.Fatal("final revision never applied")
		}
	}
	if w.Current().Poll.FrequencySec != 30 {
		t.Errorf("current = %+v", w.Current().Poll)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("run: %v", err)
	}
}

func TestReloadKeepsLastGoodConfig(t *testing.T) {
	p := writeConfig(t, t.TempDir(), "device:\n  host: 10.0.0.5\n")
	cur, err := Load(p, nil)
	if err != nil {
		t.Fatal(err)
	}
	w := NewWatcher(nil, p, nil, cur, func(_, _ *Config) { t.Error("invalid config applied") })
	writeConfig(t, filepath.Dir(p), "device:\n  port: 0\n")
	if err := w.Reload(); !errors.Is(err, ErrBadConfig) {
		t.Fatalf("err = %v", err)
	}
	if w.Current() != cur {
		t.Error("current config replaced")
	}
}
