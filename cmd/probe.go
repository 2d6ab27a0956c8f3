package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/drgolem/diskstream/internal/catalog"
	"github.com/drgolem/diskstream/pkg/types"
)

var probeCmd = &cobra.Command{
	Use:   "probe <wav_file> [wav_file...]",
	Short: "Show how the disk reader sees WAV files",
	Long: `Inspect RIFF/WAVE files and report the sample layout and data offset
the disk reader would use. Files that need converting first are reported with
the reason.`,
	Args: cobra.MinimumNArgs(1),
	Run:  runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
}

func runProbe(cmd *cobra.Command, args []string) {
	failed := 0
	for _, path := range args {
		info, err := catalog.Probe(path)
		if err != nil {
			slog.Error("Not streamable", "file", path, "error", err)
			failed++
			continue
		}
		duration := types.FramesToDuration(info.TotalFrames, info.Format.SampleRate)
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d Hz, %d ch, %d bytes/sample, %d frames (%s), data at byte %d\n",
			path,
			info.Format.SampleRate,
			info.Format.Channels,
			info.Format.BytesPerSample,
			info.TotalFrames,
			formatElapsed(duration),
			info.DataOffset)
	}
	if failed > 0 {
		os.Exit(1)
	}
}
