package cmd

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/drgolem/diskstream/internal/bounce"
)

var renderOpts struct {
	session sessionOptions
	out     string
	from    float64
	length  float64
	bits    int
	block   int
}

var renderCmd = &cobra.Command{
	Use:   "render <clip> [clip...]",
	Short: "Bounce clips offline to a WAV file",
	Long: `Render the timeline to a PCM WAV file faster than real time.

The same engine that drives the audio device mixes the clips; before every
block the renderer waits until the disk workers have filled all active
streams, so an offline render never starves.

Examples:
  # Bounce the whole timeline
  diskstream render drums.wav#0 bass.flac@4#1 --out mix.wav

  # 24-bit, 30 seconds starting at 1:00
  diskstream render --from 60 --length 30 --bits 24 song.wav`,
	Args: cobra.MinimumNArgs(1),
	Run:  runRender,
}

func init() {
	rootCmd.AddCommand(renderCmd)

	renderOpts.session.addFlags(renderCmd)
	def := bounce.DefaultOptions()
	renderCmd.Flags().StringVarP(&renderOpts.out, "out", "o", "mix.wav", "Output WAV file path")
	renderCmd.Flags().Float64Var(&renderOpts.from, "from", 0, "Start time in seconds")
	renderCmd.Flags().Float64Var(&renderOpts.length, "length", 0, "Length in seconds (0 = to the end of the timeline)")
	renderCmd.Flags().IntVar(&renderOpts.bits, "bits", def.BitDepth, "Output bit depth (16 or 24)")
	renderCmd.Flags().IntVar(&renderOpts.block, "block", def.BlockFrames, "Frames per rendered block")
}

func runRender(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess, err := openSession(ctx, renderOpts.session, args)
	if err != nil {
		slog.Error("Failed to open session", "error", err)
		os.Exit(1)
	}
	defer sess.engine.Close()

	rate := float64(sess.engine.Config().SampleRate)
	from := int64(renderOpts.from * rate)
	frames := sess.end - from
	if renderOpts.length > 0 {
		frames = int64(renderOpts.length * rate)
	}
	if frames <= 0 {
		slog.Error("Nothing to render", "from", from, "timeline_end", sess.end)
		os.Exit(1)
	}

	res, err := bounce.RenderFile(ctx, sess.engine, renderOpts.out, from, frames, bounce.Options{
		BlockFrames: renderOpts.block,
		BitDepth:    renderOpts.bits,
	})
	if err != nil {
		slog.Error("Render failed", "error", err)
		os.Exit(1)
	}

	slog.Info("Render complete",
		"output", renderOpts.out,
		"frames", res.Frames,
		"peak", res.Peak,
		"realtime_factor", float64(res.Frames)/rate/res.Duration.Seconds())
}
