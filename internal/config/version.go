package config

// Set via -ldflags "-X github.com/edirooss/pearl-bridge/internal/config.Version=..." at build time.
var (
	Version   = "dev"
	GitCommit = "none"
	BuildDate = "unknown"
)
