package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dandantas/grabber/internal/model"
	"github.com/dandantas/grabber/internal/render"
)

func NewRenderCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "render <wav> [png]",
		Short: "Render the spectrogram of one recording",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			wavPath := args[0]
			pngPath := strings.TrimSuffix(wavPath, filepath.Ext(wavPath)) + ".png"
			if len(args) == 2 {
				pngPath = args[1]
			}

			renderer := render.NewSpectrogram(spectrogramConfig(deps.Config))
			if err := renderer.RenderFile(cmd.Context(), wavPath, pngPath, startFromName(wavPath)); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), pngPath)
			return nil
		},
	}
}

// startFromName reads the recording start from a canonical artifact name,
// falling back to the file's modification time.
func startFromName(path string) time.Time {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if t, err := time.ParseInLocation(model.ArtifactTimeLayout, stem, time.UTC); err == nil {
		return t
	}
	if info, err := os.Stat(path); err == nil {
		return info.ModTime().UTC()
	}
	return time.Time{}
}
