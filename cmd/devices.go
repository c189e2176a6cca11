package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/xkilldash9x/mobilepilot/internal/config"
	"github.com/xkilldash9x/mobilepilot/internal/device"
	"github.com/xkilldash9x/mobilepilot/internal/observability"
)

// newDevicesCmd lists attached devices with their screen sizes.
func newDevicesCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List attached devices and their screen sizes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			var devCfg config.DeviceConfig
			if err := v.UnmarshalKey("device", &devCfg); err != nil {
				return fmt.Errorf("failed to unmarshal device config: %w", err)
			}
			if err := devCfg.Validate(); err != nil {
				return err
			}

			devs, err := device.ListDevices(ctx, devCfg.ADBPath, deviceOptions...)
			if err != nil {
				return fmt.Errorf("failed to list devices: %w", err)
			}
			if len(devs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No devices attached.")
				return nil
			}

			newDriver := func(serial string) *device.ADB {
				opts := append([]device.Option{device.WithLogger(logger)}, deviceOptions...)
				return device.NewADB(devCfg, serial, opts...)
			}
			probes := device.ProbeAll(ctx, newDriver, devs, logger)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SERIAL\tSCREEN\tSTATUS")
			for _, p := range probes {
				if p.Err != nil {
					fmt.Fprintf(w, "%s\t-\t%v\n", p.Serial, p.Err)
					continue
				}
				fmt.Fprintf(w, "%s\t%dx%d\tready\n", p.Serial, p.Width, p.Height)
			}
			return w.Flush()
		},
	}
}
