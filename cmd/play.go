package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/drgolem/go-portaudio/portaudio"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/drgolem/diskstream/internal/recorder"
	"github.com/drgolem/diskstream/pkg/audioplayer"
)

var playOpts struct {
	session        sessionOptions
	deviceIdx      int
	frames         int
	recordPath     string
	statusInterval time.Duration
	prefetchEvery  time.Duration
	console        bool
}

// playCmd represents the play command
var playCmd = &cobra.Command{
	Use:   "play <clip> [clip...]",
	Short: "Play clips through an audio device",
	Long: `Play clips placed on a timeline through a PortAudio output device.

Each clip is imported at the engine rate (converted to float WAV in the cache
directory when needed) and streamed from disk while playing. An interactive
console pushes transport and mixer commands to the audio thread.

Examples:
  # Two clips on separate tracks, the second entering at 4 seconds
  diskstream play drums.wav#0 bass.flac@4#1

  # Record what is heard
  diskstream play --record take.wav song.mp3

  # Larger device buffer, no console
  diskstream play -f 1024 --console=false *.wav`,
	Args: cobra.MinimumNArgs(1),
	Run:  runPlay,
}

func init() {
	rootCmd.AddCommand(playCmd)

	playOpts.session.addFlags(playCmd)
	playCmd.Flags().IntVarP(&playOpts.deviceIdx, "device", "d", 1, "Audio output device index")
	playCmd.Flags().IntVarP(&playOpts.frames, "frames", "f", 512, "Audio frames per buffer")
	playCmd.Flags().StringVar(&playOpts.recordPath, "record", "", "Record the output to this WAV file")
	playCmd.Flags().DurationVar(&playOpts.statusInterval, "status", 2*time.Second, "Status report interval")
	playCmd.Flags().DurationVar(&playOpts.prefetchEvery, "prefetch", 5*time.Millisecond, "Scheduling pass interval")
	playCmd.Flags().BoolVar(&playOpts.console, "console", true, "Interactive command console")
}

func runPlay(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := play(ctx, args); err != nil {
		slog.Error("Playback failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Exiting")
}

func play(ctx context.Context, args []string) error {
	slog.Info("Initializing PortAudio")
	if err := portaudio.Initialize(); err != nil {
		slog.Error("Hint: Make sure PortAudio is installed on your system")
		return err
	}
	defer portaudio.Terminate()
	slog.Info("PortAudio initialized", "version", portaudio.GetVersion())

	sess, err := openSession(ctx, playOpts.session, args)
	if err != nil {
		return err
	}
	e := sess.engine
	defer e.Close()
	cfg := e.Config()

	player := audioplayer.NewPlayer(audioplayer.Config{
		SampleRate:      cfg.SampleRate,
		FramesPerBuffer: playOpts.frames,
		DeviceIndex:     playOpts.deviceIdx,
		MaxFrames:       cfg.MaxBlockFrames,
	}, e)

	var rec *recorder.Recorder
	if playOpts.recordPath != "" {
		rec = recorder.New(recorder.Config{
			SampleRate:     cfg.SampleRate,
			MaxBlockFrames: cfg.MaxBlockFrames,
		})
		player.SetTap(rec)
	}

	// fill the first seconds before the device starts pulling
	e.Start()
	if err := e.WaitPrimed(ctx); err != nil {
		// interrupted before the device started
		return nil
	}
	if err := player.Start(); err != nil {
		return err
	}
	defer player.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := e.Prefetch(gctx, playOpts.prefetchEvery); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return monitorPlayback(gctx, e, playOpts.statusInterval)
	})
	if rec != nil {
		g.Go(func() error {
			return rec.Run(gctx, playOpts.recordPath)
		})
	}
	if playOpts.console {
		g.Go(func() error {
			return runConsole(gctx, e)
		})
	} else {
		g.Go(func() error {
			return waitForEnd(gctx, e.Position, sess.end)
		})
	}

	err = g.Wait()
	if errors.Is(err, errQuit) || errors.Is(err, errTimelineEnd) {
		err = nil
	}

	logStatus(e.GetEngineStatus())
	if rec != nil {
		tapped, dropped, written := rec.Stats()
		slog.Info("Recording stats", "tapped", tapped, "dropped", dropped, "written", written)
	}
	return err
}

var errTimelineEnd = errors.New("end of timeline")

// waitForEnd returns errTimelineEnd once position passes end, which stops
// the rest of the group.
func waitForEnd(ctx context.Context, position func() int64, end int64) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if position() >= end {
				slog.Info("Playback completed successfully")
				return errTimelineEnd
			}
		}
	}
}
