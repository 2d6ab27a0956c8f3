package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

const version = "0.3.0"

var verbose bool

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "diskstream",
	Short:   "Disk-streaming multitrack playback engine",
	Version: version,
	Long: `diskstream - plays many audio clips placed on a timeline by streaming
them from disk. A pool of disk workers keeps a lock-free ring buffer per clip
filled ahead of the playhead while the real-time audio callback mixes them.

Clips are given as path[@seconds][#track], e.g.
  drums.wav@0#0 bass.flac@4.5#1 vox.mp3@8#2

Commands:
  - play:   play clips through a PortAudio device with an interactive console
  - render: bounce clips offline to a WAV file
  - import: convert audio files to streamable float WAV assets
  - probe:  show how the disk reader sees a WAV file`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output (debug logging)")
}

func setupLogging() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
