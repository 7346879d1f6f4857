package main

import (
	"fmt"

	"github.com/edirooss/pearl-bridge/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type rootOptions struct {
	configPath string
	json       bool
	debug      bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "pearl-bridge",
		Short:         "Bridge an Epiphan Pearl to a control-panel host",
		Long:          "Polls an Epiphan Pearl over its HTTP API and exposes channels, layouts, streams,\nrecorders and events as actions, feedbacks, presets and variables.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "config file (default pearl-bridge.yaml or /etc/pearl-bridge/pearl-bridge.yaml)")
	pf.BoolVar(&opts.json, "json", false, "output results as JSON")
	pf.BoolVar(&opts.debug, "debug", false, "dump error chains")
	pf.String("host", "", "device IP address")
	pf.Int("port", 0, "device HTTP port")
	pf.String("username", "", "device username")
	pf.String("password", "", "device password")
	pf.Bool("verbose", false, "log device requests and responses")

	cmd.AddCommand(
		newRunCmd(opts),
		newSnapshotCmd(opts),
		newProbeCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

func (o *rootOptions) path() string {
	if o.configPath != "" {
		return o.configPath
	}
	return config.DefaultPath()
}

// load reads the config with flags from the invoked command layered on top.
func (o *rootOptions) load(flags *pflag.FlagSet) (*config.Config, error) {
	cfg, err := config.Load(o.path(), flags)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build metadata",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "pearl-bridge %s (commit %s, built %s)\n", config.Version, config.GitCommit, config.BuildDate)
		},
	}
}
