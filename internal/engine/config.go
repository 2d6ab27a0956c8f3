package engine

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/drgolem/diskstream/internal/diskreader"
	"github.com/drgolem/diskstream/internal/eventindex"
)

// Config holds engine configuration
type Config struct {
	SampleRate           int           // Timeline and output sample rate (Hz)
	Workers              int           // Disk reader goroutines
	BinSize              int64         // Event index bin width in frames
	LowWater             uint64        // Buffered frames below which a stream is urgent
	HighWater            uint64        // Refill target in frames
	ReadChunk            int           // Largest single disk read in frames
	MaxBlockFrames       int           // Largest block mixed in one pass
	MaxStreams           int           // Upper bound on the stream table
	MaxTracks            int           // Tracks addressable by control commands
	PrimeLookahead       time.Duration // Streams starting this far ahead are primed
	RingDuration         time.Duration // Per-stream ring buffer length
	ControlQueueCapacity uint64        // Control commands buffered between blocks
}

// DefaultConfig returns default engine configuration
func DefaultConfig() Config {
	return Config{
		SampleRate:           48000,
		Workers:              2,
		BinSize:              eventindex.DefaultBinSize,
		LowWater:             4096,
		HighWater:            16384,
		ReadChunk:            8192,
		MaxBlockFrames:       4096,
		MaxStreams:           1024,
		MaxTracks:            64,
		PrimeLookahead:       2 * time.Second,
		RingDuration:         500 * time.Millisecond,
		ControlQueueCapacity: 256,
	}
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	switch {
	case c.SampleRate <= 0:
		return fmt.Errorf("%w: sample rate %d", ErrInvalidConfig, c.SampleRate)
	case c.Workers < 1:
		return fmt.Errorf("%w: %d workers", ErrInvalidConfig, c.Workers)
	case c.LowWater == 0 || c.HighWater <= c.LowWater:
		return fmt.Errorf("%w: watermarks low=%d high=%d", ErrInvalidConfig, c.LowWater, c.HighWater)
	case c.ReadChunk < 1:
		return fmt.Errorf("%w: read chunk %d", ErrInvalidConfig, c.ReadChunk)
	case c.MaxBlockFrames < 1:
		return fmt.Errorf("%w: max block frames %d", ErrInvalidConfig, c.MaxBlockFrames)
	case c.MaxStreams < 1:
		return fmt.Errorf("%w: max streams %d", ErrInvalidConfig, c.MaxStreams)
	}
	return nil
}

// framesFor converts a duration to frames at the engine rate.
func (c Config) framesFor(d time.Duration) int64 {
	return int64(d.Seconds() * float64(c.SampleRate))
}

// ringFrames returns the per-stream ring size. The ring holds HighWater
// frames plus one read chunk, which a seek can leave behind unplayed, so the
// refill target stays reachable.
func (c Config) ringFrames() uint64 {
	return max(uint64(c.framesFor(c.RingDuration)), c.HighWater+uint64(c.ReadChunk)+1)
}

// Option customizes an Engine.
type Option func(*Engine)

// WithLogger sets the logger. The engine id is attached to every line.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.log = l
	}
}

// WithFrameSource replaces the file reader used by the disk workers.
func WithFrameSource(src diskreader.FrameSource) Option {
	return func(e *Engine) {
		e.source = src
	}
}
