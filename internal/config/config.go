// Package config loads and validates the bridge configuration.
package config

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/edirooss/pearl-bridge/internal/pearl"
	"github.com/edirooss/pearl-bridge/internal/service"
	"github.com/mcuadros/go-defaults"
)

// ErrBadConfig is returned for configurations the bridge refuses to run with.
var ErrBadConfig = errors.New("bad config")

const (
	MinPollSeconds = 1
	MaxPollSeconds = 300
)

type Config struct {
	Device   DeviceConfig   `yaml:"device" mapstructure:"device"`
	Poll     PollConfig     `yaml:"poll" mapstructure:"poll"`
	Metadata MetadataConfig `yaml:"metadata" mapstructure:"metadata"`
	Verbose  bool           `yaml:"verbose" mapstructure:"verbose" default:"false"`
	HTTP     HTTPConfig     `yaml:"http" mapstructure:"http"`
	Redis    RedisConfig    `yaml:"redis" mapstructure:"redis"`
}

type DeviceConfig struct {
	Host          string        `yaml:"host" mapstructure:"host" default:"192.168.255.250"`
	Port          int           `yaml:"port" mapstructure:"port" default:"80"`
	Username      string        `yaml:"username" mapstructure:"username" default:"admin"`
	Password      string        `yaml:"password" mapstructure:"password"`
	Timeout       time.Duration `yaml:"timeout" mapstructure:"timeout" default:"3s"`
	UseAPIv2      bool          `yaml:"use_api_v2" mapstructure:"use_api_v2" default:"true"`
	V2MinFirmware string        `yaml:"v2_min_firmware" mapstructure:"v2_min_firmware" default:"4.24.1"`
}

type PollConfig struct {
	FrequencySec int `yaml:"frequency_sec" mapstructure:"frequency_sec" default:"10"`
}

// MetadataConfig enables the legacy CGI metadata path. Empty credentials reuse the device ones.
type MetadataConfig struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled" default:"false"`
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr" default:"127.0.0.1:8088"`
	Dev  bool   `yaml:"dev" mapstructure:"dev" default:"false"`

	// MaxConcurrent caps in-flight action requests; 0 disables the limit.
	MaxConcurrent int `yaml:"max_concurrent" mapstructure:"max_concurrent" default:"32"`
}

type RedisConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled" default:"false"`
	Addr    string `yaml:"addr" mapstructure:"addr" default:"127.0.0.1:6379"`
	DB      int    `yaml:"db" mapstructure:"db" default:"0"`
	Channel string `yaml:"channel" mapstructure:"channel" default:"pearl-bridge:events"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Validate checks the device address and normalizes the poll frequency.
// A missing or non-numeric frequency becomes the default; out-of-range values are clamped.
func (c *Config) Validate() error {
	if c.Device.Host == "" || net.ParseIP(c.Device.Host) == nil {
		return fmt.Errorf("%w: invalid IP given in configuration: %q", ErrBadConfig, c.Device.Host)
	}
	if c.Device.Port < 1 || c.Device.Port > 65535 {
		return fmt.Errorf("%w: invalid port number given in configuration: %d", ErrBadConfig, c.Device.Port)
	}
	switch {
	case c.Poll.FrequencySec <= 0:
		c.Poll.FrequencySec = int(service.DefaultInterval / time.Second)
	case c.Poll.FrequencySec > MaxPollSeconds:
		c.Poll.FrequencySec = MaxPollSeconds
	}
	if c.Device.Timeout <= 0 {
		c.Device.Timeout = pearl.DefaultTimeout
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("%w: redis enabled without an address", ErrBadConfig)
	}
	return nil
}

// PollInterval is the validated poll frequency as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Poll.FrequencySec) * time.Second
}

// Pearl maps the device section onto the client configuration.
func (c *Config) Pearl() pearl.Config {
	return pearl.Config{
		Host:          c.Device.Host,
		Port:          c.Device.Port,
		Username:      c.Device.Username,
		Password:      c.Device.Password,
		Timeout:       c.Device.Timeout,
		UseAPIv2:      c.Device.UseAPIv2,
		V2MinFirmware: c.Device.V2MinFirmware,
		Verbose:       c.Verbose,
		Metadata: pearl.MetadataConfig{
			Enabled:  c.Metadata.Enabled,
			Username: c.Metadata.Username,
			Password: c.Metadata.Password,
		},
	}
}

// RequiresRestart reports whether moving from c to next changes anything that cannot be
// applied to a running bridge.
func (c *Config) RequiresRestart(next *Config) bool {
	return c.Device != next.Device || c.Metadata != next.Metadata || c.HTTP != next.HTTP || c.Redis != next.Redis
}
