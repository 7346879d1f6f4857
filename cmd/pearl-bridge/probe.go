package main

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/edirooss/pearl-bridge/internal/pearl"
	"github.com/edirooss/pearl-bridge/internal/status"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type probeResult struct {
	BaseURL  string `json:"base_url"`
	APIBase  string `json:"api_base"`
	Firmware string `json:"firmware,omitempty"`
	Product  string `json:"product,omitempty"`
	Channels int    `json:"channels"`
	Status   string `json:"status"`
	Message  string `json:"message,omitempty"`
}

func newProbeCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Check connectivity and report which API the device serves",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load(cmd.Flags())
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx, cancel := context.WithTimeout(ctx, 3*cfg.Device.Timeout+2*time.Second)
			defer cancel()

			sink := &status.Recorder{}
			client := pearl.New(zap.NewNop(), cfg.Pearl(), sink)
			res := probeResult{BaseURL: cfg.Pearl().BaseURL(), APIBase: client.DetectAPIBase(ctx)}

			channels, listErr := client.ListChannels(ctx)
			res.Channels = len(channels)
			if fw, err := client.Firmware(ctx); err == nil && fw != nil {
				res.Firmware = fw.Version
			}
			if p, err := client.Product(ctx); err == nil && p != nil {
				res.Product = p.Name
			}
			st, msg := sink.Last()
			res.Status, res.Message = st.String(), msg

			out := cmd.OutOrStdout()
			if root.json {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(res); err != nil {
					return err
				}
			} else {
				w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
				fmt.Fprintf(w, "Device\t%s\n", res.BaseURL)
				fmt.Fprintf(w, "API base\t%s\n", res.APIBase)
				fmt.Fprintf(w, "Firmware\t%s\n", res.Firmware)
				fmt.Fprintf(w, "Product\t%s\n", res.Product)
				fmt.Fprintf(w, "Channels\t%d\n", res.Channels)
				fmt.Fprintf(w, "Status\t%s %s\n", res.Status, res.Message)
				w.Flush()
			}
			if listErr != nil {
				return root.fail(cmd, listErr)
			}
			return nil
		},
	}
}
