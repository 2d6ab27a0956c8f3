// Package bounce renders a range of the timeline offline, faster than real
// time, into a PCM WAV file.
package bounce

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/drgolem/diskstream/internal/engine"
)

const (
	outChannels  = 2
	wavFormatPCM = 1
)

var (
	ErrEngineRunning = errors.New("engine is playing")
	ErrBitDepth      = errors.New("unsupported bit depth")
)

// Options configures a render.
type Options struct {
	BlockFrames int // frames per ProcessBlock call
	BitDepth    int // 16 or 24
	Logger      *slog.Logger
}

// DefaultOptions returns default render options
func DefaultOptions() Options {
	return Options{
		BlockFrames: 1024,
		BitDepth:    16,
	}
}

// Result summarizes a finished render.
type Result struct {
	Frames    int64
	Underruns uint64
	Peak      float64 // largest absolute sample before clipping
	Duration  time.Duration
}

// Render plays frames timeline frames of e starting at from and encodes the
// mix to w. Before each block it waits for the disk workers to fill every
// active stream, so an offline render never starves. The engine must be
// stopped; it is left stopped at the end of the range.
func Render(ctx context.Context, e *engine.Engine, w io.WriteSeeker, from, frames int64, opts Options) (Result, error) {
	def := DefaultOptions()
	if opts.BlockFrames <= 0 {
		opts.BlockFrames = def.BlockFrames
	}
	if opts.BitDepth == 0 {
		opts.BitDepth = def.BitDepth
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.BitDepth != 16 && opts.BitDepth != 24 {
		return Result{}, fmt.Errorf("%w: %d", ErrBitDepth, opts.BitDepth)
	}
	if e.Running() {
		return Result{}, ErrEngineRunning
	}

	rate := e.Config().SampleRate
	enc := wav.NewEncoder(w, rate, opts.BitDepth, outChannels, wavFormatPCM)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: outChannels, SampleRate: rate},
		SourceBitDepth: opts.BitDepth,
	}
	ints := make([]int, opts.BlockFrames*outChannels)
	left := make([]float64, opts.BlockFrames)
	right := make([]float64, opts.BlockFrames)
	scale := float64(int(1)<<(opts.BitDepth-1) - 1)

	if err := e.Seek(from); err != nil {
		return Result{}, err
	}
	underrunsBefore := e.GetEngineStatus().Underruns
	started := time.Now()
	e.Start()
	defer e.Stop()

	opts.Logger.Info("Render started",
		"from", from,
		"frames", frames,
		"sample_rate", rate,
		"bit_depth", opts.BitDepth)

	var res Result
	for res.Frames < frames {
		err := ctx.Err()
		if err == nil {
			err = e.WaitPrimed(ctx)
		}
		if err != nil {
			return res, fmt.Errorf("render interrupted at frame %d: %w", from+res.Frames, err)
		}

		n := int(min(int64(opts.BlockFrames), frames-res.Frames))
		e.ProcessBlock(left, right, n)

		data := ints[:n*outChannels]
		for i := range n {
			res.Peak = max(res.Peak, math.Abs(left[i]), math.Abs(right[i]))
			data[2*i] = quantize(left[i], scale)
			data[2*i+1] = quantize(right[i], scale)
		}
		buf.Data = data
		if err := enc.Write(buf); err != nil {
			return res, fmt.Errorf("failed to encode block: %w", err)
		}
		res.Frames += int64(n)
	}

	if err := enc.Close(); err != nil {
		return res, fmt.Errorf("failed to finalize WAV: %w", err)
	}

	res.Underruns = e.GetEngineStatus().Underruns - underrunsBefore
	res.Duration = time.Since(started)
	opts.Logger.Info("Render finished",
		"frames", res.Frames,
		"peak", res.Peak,
		"underruns", res.Underruns,
		"took", res.Duration)
	if res.Peak > 1 {
		opts.Logger.Warn("Render clipped", "peak", res.Peak)
	}
	return res, nil
}

// RenderFile renders into a new WAV file at path.
func RenderFile(ctx context.Context, e *engine.Engine, path string, from, frames int64, opts Options) (Result, error) {
	f, err := os.Create(path)
	if err != nil {
		return Result{}, fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	res, err := Render(ctx, e, f, from, frames, opts)
	if err != nil {
		return res, err
	}
	if err := f.Close(); err != nil {
		return res, fmt.Errorf("failed to close %s: %w", path, err)
	}
	return res, nil
}

func quantize(v, scale float64) int {
	return int(math.Round(max(-1, min(v, 1)) * scale))
}
