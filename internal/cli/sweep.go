package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dandantas/grabber/internal/artifact"
)

func NewSweepCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete download files older than max_file_age_days",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			g := deps.Config.General
			removed, err := artifact.Sweep(g.DownloadDir, g.MaxFileAgeDays, time.Now())
			for _, path := range removed {
				fmt.Fprintln(cmd.OutOrStdout(), path)
			}
			return err
		},
	}
}
