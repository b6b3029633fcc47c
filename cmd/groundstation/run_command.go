package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"groundstation/internal/config"
	"groundstation/internal/daemonrun"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var (
		logLevel string
		dev      bool
		simulate bool
		replay   string
		device   string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the groundstation daemon in the foreground",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := applyRunOverrides(cfg, simulate, replay, device); err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:    strings.TrimSpace(logLevel),
				Development: dev,
			})
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level (debug, info, warn, error)")
	cmd.Flags().BoolVar(&dev, "dev", false, "Include source locations in log output")
	cmd.Flags().BoolVar(&simulate, "simulate", false, "Use the built-in telemetry simulator instead of a serial device")
	cmd.Flags().StringVar(&replay, "replay", "", "Replay a recorded telemetry file instead of reading a serial device")
	cmd.Flags().StringVar(&device, "device", "", "Serial device path (overrides serial.device)")
	cmd.MarkFlagsMutuallyExclusive("simulate", "replay")
	return cmd
}

func applyRunOverrides(cfg *config.Config, simulate bool, replay, device string) error {
	if device = strings.TrimSpace(device); device != "" {
		cfg.Serial.Device = device
	}
	if replay = strings.TrimSpace(replay); replay != "" {
		expanded, err := config.ExpandPath(replay)
		if err != nil {
			return fmt.Errorf("resolve replay path: %w", err)
		}
		cfg.Serial.ReplayFile = expanded
		cfg.Serial.Simulate = false
	}
	if simulate {
		cfg.Serial.Simulate = true
		cfg.Serial.ReplayFile = ""
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
