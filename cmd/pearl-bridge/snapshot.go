package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/edirooss/pearl-bridge/internal/config"
	"github.com/edirooss/pearl-bridge/internal/domain/state"
	"github.com/edirooss/pearl-bridge/internal/pearl"
	"github.com/edirooss/pearl-bridge/internal/service"
	"github.com/edirooss/pearl-bridge/internal/status"
	"github.com/edirooss/pearl-bridge/pkg/fmtt"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newSnapshotCmd(root *rootOptions) *cobra.Command {
	var dump bool
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Poll the device once and print its state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load(cmd.Flags())
			if err != nil {
				return err
			}
			snap, err := pollOnce(cmd.Context(), cfg)
			if err != nil {
				return root.fail(cmd, err)
			}

			out := cmd.OutOrStdout()
			switch {
			case root.json:
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(snap)
			case dump:
				fmtt.Dump(out, snap)
				return nil
			}
			writeSnapshot(out, snap)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dump, "dump", false, "deep-dump the snapshot")
	return cmd
}

// pollOnce runs a single tick against the configured device.
func pollOnce(ctx context.Context, cfg *config.Config) (*state.Snapshot, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	log := zap.NewNop()
	if cfg.Verbose {
		log, _ = buildLogger(true)
		defer log.Sync()
	}

	sink := &status.Recorder{}
	client := pearl.New(log, cfg.Pearl(), sink)
	poller := service.NewPoller(log, client, state.NewStore(), service.PollerOptions{Status: sink})

	ctx, cancel := context.WithTimeout(ctx, 4*cfg.Device.Timeout+5*time.Second)
	defer cancel()
	client.DetectAPIBase(ctx)
	res, err := poller.Tick(ctx)
	if err != nil {
		return nil, err
	}
	return res.Snapshot, nil
}

func writeSnapshot(out io.Writer, snap *state.Snapshot) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "CHANNEL\tNAME\tACTIVE LAYOUT\tPUBLISHERS")
	fmt.Fprintln(w, "-------\t----\t-------------\t----------")
	for _, ch := range snap.Channels.Values() {
		active := "-"
		if l, ok := ch.ActiveLayout(); ok {
			active = l.Name
		}
		started := 0
		for _, p := range ch.Publishers.Values() {
			if p.Status.State == state.StateStarted {
				started++
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d started\n", ch.ID, ch.Name, active, started, ch.Publishers.Len())
	}
	w.Flush()

	fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "RECORDER\tNAME\tSTATE\tDURATION")
	fmt.Fprintln(w, "--------\t----\t-----\t--------")
	for _, r := range snap.Recorders.Values() {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.ID, r.Name, r.Status.State, time.Duration(r.Status.Duration)*time.Second)
	}
	w.Flush()

	if snap.Events != nil && snap.Events.Len() > 0 {
		fmt.Fprintln(out)
		w = tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "EVENT\tNAME\tSTATE")
		fmt.Fprintln(w, "-----\t----\t-----")
		for _, e := range snap.Events.Values() {
			fmt.Fprintf(w, "%s\t%s\t%s\n", e.ID, e.Name, e.Status.State)
		}
		w.Flush()
	}
}

// fail prints the error chain when --debug is set and returns err for cobra to report.
func (o *rootOptions) fail(cmd *cobra.Command, err error) error {
	if o.debug {
		fmtt.WriteErrChain(cmd.ErrOrStderr(), err, true)
	}
	return err
}
