package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/drgolem/diskstream/internal/assetimport"
	"github.com/drgolem/diskstream/internal/engine"
)

var errBadClip = errors.New("invalid clip")

// clipSpec places one file on the timeline.
type clipSpec struct {
	Path  string
	Start time.Duration
	Track uint32
}

// parseClip parses path[@seconds][#track].
func parseClip(arg string) (clipSpec, error) {
	c := clipSpec{Path: arg}

	if i := strings.LastIndexByte(c.Path, '#'); i >= 0 {
		track, err := strconv.ParseUint(c.Path[i+1:], 10, 32)
		if err != nil {
			return clipSpec{}, fmt.Errorf("%w %q: bad track: %w", errBadClip, arg, err)
		}
		c.Track = uint32(track)
		c.Path = c.Path[:i]
	}
	if i := strings.LastIndexByte(c.Path, '@'); i >= 0 {
		sec, err := strconv.ParseFloat(c.Path[i+1:], 64)
		if err != nil || sec < 0 {
			return clipSpec{}, fmt.Errorf("%w %q: bad start time", errBadClip, arg)
		}
		c.Start = time.Duration(sec * float64(time.Second))
		c.Path = c.Path[:i]
	}
	if c.Path == "" {
		return clipSpec{}, fmt.Errorf("%w %q: empty path", errBadClip, arg)
	}
	return c, nil
}

// sessionOptions are the engine flags shared by play and render.
type sessionOptions struct {
	sampleRate   int
	workers      int
	cacheDir     string
	lookahead    time.Duration
	ringDuration time.Duration
}

func (o *sessionOptions) addFlags(cmd *cobra.Command) {
	def := engine.DefaultConfig()
	cmd.Flags().IntVarP(&o.sampleRate, "rate", "r", def.SampleRate, "Engine sample rate in Hz")
	cmd.Flags().IntVarP(&o.workers, "workers", "w", def.Workers, "Disk reader workers")
	cmd.Flags().StringVar(&o.cacheDir, "cache-dir", filepath.Join(os.TempDir(), "diskstream"), "Directory for converted assets")
	cmd.Flags().DurationVar(&o.lookahead, "lookahead", def.PrimeLookahead, "How far ahead of the playhead clips are primed")
	cmd.Flags().DurationVar(&o.ringDuration, "ring", def.RingDuration, "Ring buffer length per clip")
}

func (o *sessionOptions) config() engine.Config {
	cfg := engine.DefaultConfig()
	cfg.SampleRate = o.sampleRate
	cfg.Workers = o.workers
	cfg.PrimeLookahead = o.lookahead
	cfg.RingDuration = o.ringDuration
	return cfg
}

// session is an engine loaded with clips.
type session struct {
	engine *engine.Engine
	end    int64 // timeline frame where the last clip ends
}

// openSession imports every clip at the engine rate and places it on the
// timeline.
func openSession(ctx context.Context, opts sessionOptions, args []string) (*session, error) {
	clips := make([]clipSpec, 0, len(args))
	for _, arg := range args {
		c, err := parseClip(arg)
		if err != nil {
			return nil, err
		}
		clips = append(clips, c)
	}

	cfg := opts.config()
	e, err := engine.New(cfg, engine.WithLogger(slog.Default()))
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(opts.cacheDir, 0o755); err != nil {
		e.Close()
		return nil, fmt.Errorf("failed to create cache dir: %w", err)
	}
	assetOpts := assetimport.DefaultOptions()
	assetOpts.SampleRate = cfg.SampleRate
	assetOpts.OutputDir = opts.cacheDir

	s := &session{engine: e}
	for _, c := range clips {
		info, err := assetimport.Import(ctx, c.Path, assetOpts)
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("failed to import %s: %w", c.Path, err)
		}
		assetID, err := e.RegisterAsset(info)
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("failed to register %s: %w", c.Path, err)
		}

		start := int64(c.Start.Seconds() * float64(cfg.SampleRate))
		streamID, err := e.CreateStream(engine.StreamParams{
			TrackID:      c.Track,
			AssetID:      assetID,
			TLStartFrame: start,
			TLEndFrame:   start + info.TotalFrames,
			Gain:         1,
		})
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("failed to place %s: %w", c.Path, err)
		}
		s.end = max(s.end, start+info.TotalFrames)

		slog.Info("Clip placed",
			"file", filepath.Base(c.Path),
			"stream", streamID,
			"track", c.Track,
			"start_frame", start,
			"frames", info.TotalFrames)
	}
	e.SetTimelineLength(s.end)

	return s, nil
}
