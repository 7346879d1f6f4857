package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides: PEARL_DEVICE_HOST, PEARL_POLL_FREQUENCY_SEC, ...
const EnvPrefix = "PEARL"

// FlagKeys maps command-line flag names to configuration keys.
var FlagKeys = map[string]string{
	"host":       "device.host",
	"port":       "device.port",
	"username":   "device.username",
	"password":   "device.password",
	"poll":       "poll.frequency_sec",
	"verbose":    "verbose",
	"http-addr":  "http.addr",
	"dev":        "http.dev",
	"redis-addr": "redis.addr",
}

// DefaultPath returns the first config file that exists, or "pearl-bridge.yaml".
func DefaultPath() string {
	for _, p := range []string{"pearl-bridge.yaml", "/etc/pearl-bridge/pearl-bridge.yaml"} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return "pearl-bridge.yaml"
}

// Load reads path (a missing file is not an error), then overlays PEARL_* environment
// variables and any flags in flags that were set explicitly. The result is validated.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	cfg, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := overlay(cfg, flags); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ReadFile decodes path over the defaults. It does not validate.
func ReadFile(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := Parse(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML into cfg. Unknown keys are rejected.
func Parse(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %v", ErrBadConfig, err)
	}
	return nil
}

func overlay(cfg *Config, flags *pflag.FlagSet) error {
	// Round-trip through a map so viper knows every key and can resolve env and flag overrides.
	base, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	var m map[string]any
	if err := yaml.Unmarshal(base, &m); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}

	v := viper.New()
	if err := v.MergeConfigMap(m); err != nil {
		return fmt.Errorf("merge config: %w", err)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range FlagKeys {
			if f := flags.Lookup(name); f != nil && f.Changed {
				if err := v.BindPFlag(key, f); err != nil {
					return fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("%w: %v", ErrBadConfig, err)
	}
	return nil
}
