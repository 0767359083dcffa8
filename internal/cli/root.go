// Package cli wires the grabber commands.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/dandantas/grabber/internal/config"
)

// Version is stamped at build time.
var Version = "dev"

// Dependencies is filled before any subcommand runs.
type Dependencies struct {
	ConfigPath string
	Config     *config.Config
}

func NewRootCmd() *cobra.Command {
	deps := &Dependencies{}

	runCmd := NewRunCmd(deps)
	rootCmd := &cobra.Command{
		Use:           "grabber",
		Short:         "Record WebSDR slots and publish their spectrograms",
		Long:          "grabber records fixed-length audio slots from a WebSDR receiver on a wall-clock schedule, renders a spectrogram for each and uploads it.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(deps.ConfigPath)
			if err != nil {
				return err
			}
			config.InitLogger(cfg)
			deps.Config = cfg
			return nil
		},
		RunE: runCmd.RunE,
	}

	rootCmd.PersistentFlags().StringVar(&deps.ConfigPath, "config", "", "path to config file (default $GRABBER_CONFIG, config.toml, config_dist.toml)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(NewNextCmd(deps))
	rootCmd.AddCommand(NewSweepCmd(deps))
	rootCmd.AddCommand(NewRenderCmd(deps))

	return rootCmd
}
