// Package assetimport converts audio files into assets the disk reader can
// stream: 32-bit float WAV at the engine sample rate with a known data
// offset.
package assetimport

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	soxr "github.com/zaf/resample"

	"github.com/drgolem/diskstream/internal/catalog"
	"github.com/drgolem/diskstream/pkg/decoders"
	"github.com/drgolem/diskstream/pkg/pcm"
	"github.com/drgolem/diskstream/pkg/types"
)

var ErrUnsupportedFormat = errors.New("unsupported source format")

// Options configures an import.
type Options struct {
	SampleRate  int    // target rate; 0 keeps the source rate
	OutputDir   string // where converted assets are written
	ChunkFrames int    // frames decoded per step
	Quality     int    // soxr quality, e.g. soxr.HighQ
	Logger      *slog.Logger
}

// DefaultOptions returns default import options
func DefaultOptions() Options {
	return Options{
		SampleRate:  48000,
		OutputDir:   ".",
		ChunkFrames: 4096,
		Quality:     soxr.HighQ,
	}
}

func (o *Options) normalize() {
	if o.ChunkFrames < 1 {
		o.ChunkFrames = 4096
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.OutputDir == "" {
		o.OutputDir = "."
	}
}

// Import makes path streamable. A WAV file the disk reader can already read
// at the target rate is returned as is; anything else is decoded, resampled
// if needed and written to OutputDir as <name>.f32.wav.
func Import(ctx context.Context, path string, opts Options) (catalog.AssetInfo, error) {
	opts.normalize()

	if info, err := catalog.Probe(path); err == nil {
		if opts.SampleRate == 0 || info.Format.SampleRate == opts.SampleRate {
			opts.Logger.Debug("Asset usable as is", "path", path, "frames", info.TotalFrames)
			return info, nil
		}
	}

	dec, err := decoders.NewDecoder(path)
	if err != nil {
		return catalog.AssetInfo{}, err
	}
	defer dec.Close()

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	out := filepath.Join(opts.OutputDir, base+".f32.wav")
	return Convert(ctx, dec, out, opts)
}

// Convert decodes everything dec produces into a float WAV at outPath and
// probes the result.
func Convert(ctx context.Context, dec types.AudioDecoder, outPath string, opts Options) (catalog.AssetInfo, error) {
	opts.normalize()

	rate, channels, bps := dec.GetFormat()
	if rate <= 0 || channels < 1 {
		return catalog.AssetInfo{}, fmt.Errorf("%w: rate %d, %d channels", ErrUnsupportedFormat, rate, channels)
	}
	switch bps {
	case 8, 16, 24, 32:
	default:
		return catalog.AssetInfo{}, fmt.Errorf("%w: %d bits", ErrUnsupportedFormat, bps)
	}
	outRate := rate
	if opts.SampleRate > 0 {
		outRate = opts.SampleRate
	}

	w, err := catalog.CreateFloatWAV(outPath, outRate, channels)
	if err != nil {
		return catalog.AssetInfo{}, err
	}

	var sink frameSink = w.Write
	var resampler *soxr.Resampler
	if outRate != rate {
		resampler, err = soxr.New(&floatDecoder{write: w.Write, channels: channels}, float64(rate), float64(outRate), channels, soxr.F32, opts.Quality)
		if err != nil {
			w.Close()
			os.Remove(outPath)
			return catalog.AssetInfo{}, fmt.Errorf("failed to create resampler: %w", err)
		}
		sink = func(samples []float32) error {
			return binary.Write(resampler, binary.LittleEndian, samples)
		}
	}

	inFrames, err := pump(ctx, dec, sink, channels, bps, opts.ChunkFrames)
	if resampler != nil {
		if cerr := resampler.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to flush resampler: %w", cerr)
		}
	}
	outFrames := w.Frames()
	if cerr := w.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(outPath)
		return catalog.AssetInfo{}, err
	}

	opts.Logger.Info("Asset converted",
		"output", outPath,
		"in_rate", rate,
		"out_rate", outRate,
		"channels", channels,
		"in_frames", inFrames,
		"out_frames", outFrames)

	return catalog.Probe(outPath)
}

// frameSink consumes interleaved float32 frames.
type frameSink func(samples []float32) error

// pump decodes dec to the end, handing float32 frames to sink.
func pump(ctx context.Context, dec types.AudioDecoder, sink frameSink, channels, bps, chunk int) (int64, error) {
	raw := make([]byte, chunk*channels*bps/8)
	samples := make([]float32, chunk*channels)

	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		n, err := dec.DecodeSamples(chunk, raw)
		if n > 0 {
			count := n * channels
			if cerr := pcm.IntToFloat32(samples[:count], raw, bps); cerr != nil {
				return total, fmt.Errorf("%w: %w", ErrUnsupportedFormat, cerr)
			}
			if werr := sink(samples[:count]); werr != nil {
				return total, fmt.Errorf("failed to write samples: %w", werr)
			}
			total += int64(n)
		}

		switch {
		case errors.Is(err, io.EOF):
			return total, nil
		case err != nil:
			return total, fmt.Errorf("decode failed after %d frames: %w", total, err)
		case n == 0:
			return total, nil
		}
	}
}

// floatDecoder turns the resampler's float32 byte output back into samples.
// Writes may split a frame; the remainder is kept for the next call.
type floatDecoder struct {
	write    frameSink
	channels int
	pending  []byte
	samples  []float32
}

func (d *floatDecoder) Write(p []byte) (int, error) {
	d.pending = append(d.pending, p...)
	n := len(d.pending) / (4 * d.channels) * d.channels
	if cap(d.samples) < n {
		d.samples = make([]float32, n)
	}
	samples := d.samples[:n]
	pcm.FloatToFloat32(samples, d.pending)
	if err := d.write(samples); err != nil {
		return 0, err
	}
	d.pending = append(d.pending[:0], d.pending[n*4:]...)
	return len(p), nil
}
