// Command pearl-bridge polls an Epiphan Pearl and serves its state as a control surface.
package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildLogger returns a development console logger whose level can be changed at runtime.
func buildLogger(verbose bool) (*zap.Logger, zap.AtomicLevel) {
	logConfig := zap.NewDevelopmentConfig()
	logConfig.EncoderConfig.TimeKey = ""
	logConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	logConfig.DisableStacktrace = true
	logConfig.DisableCaller = true
	logConfig.Level = zap.NewAtomicLevelAt(levelFor(verbose))
	return zap.Must(logConfig.Build()), logConfig.Level
}

func levelFor(verbose bool) zapcore.Level {
	if verbose {
		return zap.DebugLevel
	}
	return zap.InfoLevel
}
