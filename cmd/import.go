package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/drgolem/diskstream/internal/assetimport"
	"github.com/drgolem/diskstream/pkg/decoders"
)

var importOpts struct {
	sampleRate int
	outDir     string
}

var importCmd = &cobra.Command{
	Use:   "import <audio_file> [audio_file...]",
	Short: "Convert audio files to streamable assets",
	Long: `Decode audio files, resample them to the engine rate and write 32-bit
float WAV files the disk reader can stream directly. WAV files that are
already streamable at the requested rate are left as they are.

Examples:
  # Convert to 48kHz float WAV in the current directory
  diskstream import song.mp3 loop.flac

  # Convert to 44.1kHz into assets/
  diskstream import --rate 44100 --out-dir assets *.ogg

Supported Input Formats:
  MP3 (.mp3), FLAC (.flac, .fla), WAV (.wav), Ogg Vorbis (.ogg, .oga),
  AIFF (.aif, .aiff)

Sample Rate Options:
  Common rates: 8000, 16000, 22050, 44100, 48000, 96000, 192000 Hz`,
	Args: cobra.MinimumNArgs(1),
	Run:  runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().IntVarP(&importOpts.sampleRate, "rate", "r", 48000, "Target sample rate in Hz (0 keeps the source rate)")
	importCmd.Flags().StringVar(&importOpts.outDir, "out-dir", ".", "Directory for converted files")
}

func runImport(cmd *cobra.Command, args []string) {
	if importOpts.sampleRate < 0 || importOpts.sampleRate > 384000 {
		slog.Error("Invalid sample rate", "rate", importOpts.sampleRate, "valid_range", "0-384000")
		os.Exit(1)
	}
	if err := os.MkdirAll(importOpts.outDir, 0o755); err != nil {
		slog.Error("Failed to create output directory", "error", err)
		os.Exit(1)
	}

	opts := assetimport.DefaultOptions()
	opts.SampleRate = importOpts.sampleRate
	opts.OutputDir = importOpts.outDir

	failed := 0
	for _, path := range args {
		info, err := assetimport.Import(cmd.Context(), path, opts)
		if err != nil {
			slog.Error("Import failed", "file", path, "error", err, "supported", decoders.Extensions)
			failed++
			continue
		}
		slog.Info("Asset ready",
			"file", path,
			"asset", info.Path,
			"sample_rate", info.Format.SampleRate,
			"channels", info.Format.Channels,
			"bytes_per_sample", info.Format.BytesPerSample,
			"frames", info.TotalFrames)
	}
	if failed > 0 {
		os.Exit(1)
	}
}
