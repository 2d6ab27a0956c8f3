// Package recorder captures the engine's stereo output to a 16-bit WAV file
// while it plays.
//
// The audio thread hands each rendered block to Tap, which converts it to
// PCM and stages it in a lock-free byte ring. Run drains the ring on its own
// goroutine and writes the file. When the writer falls behind, Tap drops
// whole blocks rather than wait.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"sync/atomic"
	"time"

	"github.com/drgolem/ringbuffer"
	"github.com/youpy/go-wav"
)

const (
	channels      = 2
	bitsPerSample = 16
	frameBytes    = channels * bitsPerSample / 8
)

var ErrAlreadyRunning = errors.New("recorder already running")

// Config holds recorder configuration
type Config struct {
	SampleRate     int
	BufferFrames   uint64        // staging ring size, rounded up to a power of 2
	MaxBlockFrames int           // largest block Tap converts in one step
	FlushInterval  time.Duration // how often Run drains the ring
	Logger         *slog.Logger
}

// DefaultConfig returns default recorder configuration
func DefaultConfig() Config {
	return Config{
		SampleRate:     48000,
		BufferFrames:   64 * 1024,
		MaxBlockFrames: 4096,
		FlushInterval:  20 * time.Millisecond,
	}
}

// Recorder stages output blocks for a WAV writer goroutine. Tap and Run
// are the ring's single producer and single consumer.
type Recorder struct {
	cfg     Config
	logger  *slog.Logger
	ring    *ringbuffer.RingBuffer
	scratch []byte

	running atomic.Bool
	tapped  atomic.Uint64
	dropped atomic.Uint64
	written atomic.Uint64
}

// New creates a recorder. Zero fields of cfg take their defaults.
func New(cfg Config) *Recorder {
	def := DefaultConfig()
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = def.SampleRate
	}
	if cfg.BufferFrames == 0 {
		cfg.BufferFrames = def.BufferFrames
	}
	if cfg.MaxBlockFrames <= 0 {
		cfg.MaxBlockFrames = def.MaxBlockFrames
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Recorder{
		cfg:     cfg,
		logger:  logger,
		ring:    ringbuffer.New(cfg.BufferFrames * frameBytes),
		scratch: make([]byte, cfg.MaxBlockFrames*frameBytes),
	}
}

// Tap stages frames of left and right. It is called on the audio thread
// and never blocks or allocates; a block that does not fit is dropped.
func (r *Recorder) Tap(left, right []float64, frames int) {
	frames = min(frames, len(left), len(right))
	for off := 0; off < frames; off += r.cfg.MaxBlockFrames {
		n := min(r.cfg.MaxBlockFrames, frames-off)
		buf := r.scratch[:n*frameBytes]
		for i := range n {
			putSample(buf[i*frameBytes:], left[off+i])
			putSample(buf[i*frameBytes+2:], right[off+i])
		}
		if _, err := r.ring.Write(buf); err != nil {
			r.dropped.Add(uint64(n))
			continue
		}
		r.tapped.Add(uint64(n))
	}
}

func putSample(dst []byte, v float64) {
	s := int16(math.Round(max(-1, min(v, 1)) * math.MaxInt16))
	dst[0] = byte(s)
	dst[1] = byte(s >> 8)
}

// Run writes staged audio to path until ctx is done, then flushes what is
// left and finalizes the WAV header. Cancelling ctx is the normal way to end
// a recording and is not reported as an error.
func (r *Recorder) Run(ctx context.Context, path string) error {
	if !r.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer r.running.Store(false)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	// frame count is unknown until the end; the header is rewritten then
	w := wav.NewWriter(f, 0, channels, uint32(r.cfg.SampleRate), bitsPerSample)

	r.logger.Info("Recording started", "path", path, "sample_rate", r.cfg.SampleRate)

	buf := make([]byte, r.ring.Size())
	ticker := time.NewTicker(r.cfg.FlushInterval)
	defer ticker.Stop()

	for done := false; !done; {
		select {
		case <-ctx.Done():
			done = true
		case <-ticker.C:
		}
		if err := r.drain(w, buf); err != nil {
			return err
		}
	}

	frames := r.written.Load()
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to rewind %s: %w", path, err)
	}
	wav.NewWriter(f, uint32(frames), channels, uint32(r.cfg.SampleRate), bitsPerSample)
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}

	r.logger.Info("Recording finished",
		"path", path,
		"frames", frames,
		"dropped_frames", r.dropped.Load())
	return nil
}

func (r *Recorder) drain(w io.Writer, buf []byte) error {
	for {
		avail := r.ring.AvailableRead()
		if avail < frameBytes {
			return nil
		}
		n, err := r.ring.Read(buf[:min(avail, uint64(len(buf)))])
		if n == 0 || err != nil {
			return nil
		}
		if _, err := w.Write(buf[:n]); err != nil {
			return fmt.Errorf("failed to write samples: %w", err)
		}
		r.written.Add(uint64(n / frameBytes))
	}
}

// Stats reports frames accepted by Tap, frames Tap dropped and frames
// written to the file so far.
func (r *Recorder) Stats() (tapped, dropped, written uint64) {
	return r.tapped.Load(), r.dropped.Load(), r.written.Load()
}
