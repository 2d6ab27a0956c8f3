// Package audioplayer drives a real-time renderer from a PortAudio output
// callback.
package audioplayer

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"github.com/drgolem/go-portaudio/portaudio"
)

const (
	outChannels = 2
	sampleBytes = 4 // float32
	frameBytes  = outChannels * sampleBytes
)

var ErrAlreadyStarted = errors.New("player already started")

// Renderer produces the next block of stereo output. It is called on the
// PortAudio callback thread.
type Renderer interface {
	ProcessBlock(left, right []float64, frames int)
}

// Tap observes every rendered block on the callback thread, e.g. to record
// it. It must not block.
type Tap interface {
	Tap(left, right []float64, frames int)
}

// Config holds player configuration
type Config struct {
	SampleRate      int
	FramesPerBuffer int // PortAudio buffer size in frames
	DeviceIndex     int // audio output device index
	MaxFrames       int // largest callback the player renders without splitting
}

// DefaultConfig returns default player configuration
func DefaultConfig() Config {
	return Config{
		SampleRate:      48000,
		FramesPerBuffer: 512,
		DeviceIndex:     1,
		MaxFrames:       4096,
	}
}

// Player owns a PortAudio callback stream with float32 stereo output and
// renders into it from a Renderer.
type Player struct {
	cfg      Config
	renderer Renderer
	tap      Tap
	stream   *portaudio.PaStream

	// callback thread only
	left  []float64
	right []float64

	mu      sync.Mutex
	started bool

	callbacks atomic.Uint64
	frames    atomic.Uint64
	xruns     atomic.Uint64 // callbacks flagged with output underflow
}

// NewPlayer creates a player for r.
func NewPlayer(cfg Config, r Renderer) *Player {
	def := DefaultConfig()
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = def.SampleRate
	}
	if cfg.FramesPerBuffer <= 0 {
		cfg.FramesPerBuffer = def.FramesPerBuffer
	}
	cfg.MaxFrames = max(cfg.MaxFrames, cfg.FramesPerBuffer)

	return &Player{
		cfg:      cfg,
		renderer: r,
		left:     make([]float64, cfg.MaxFrames),
		right:    make([]float64, cfg.MaxFrames),
	}
}

// SetTap installs t. It must be called before Start.
func (p *Player) SetTap(t Tap) {
	p.tap = t
}

// Start opens the output stream and starts the callback.
func (p *Player) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return ErrAlreadyStarted
	}

	p.stream = &portaudio.PaStream{
		OutputParameters: &portaudio.PaStreamParameters{
			DeviceIndex:  p.cfg.DeviceIndex,
			ChannelCount: outChannels,
			SampleFormat: portaudio.SampleFmtFloat32,
		},
		SampleRate: float64(p.cfg.SampleRate),
	}

	if err := p.stream.OpenCallback(p.cfg.FramesPerBuffer, p.callback); err != nil {
		return fmt.Errorf("failed to open stream with callback: %w", err)
	}
	if err := p.stream.StartStream(); err != nil {
		p.stream.CloseCallback()
		return fmt.Errorf("failed to start stream: %w", err)
	}
	p.started = true

	slog.Info("Audio output started",
		"device_index", p.cfg.DeviceIndex,
		"sample_rate", p.cfg.SampleRate,
		"frames_per_buffer", p.cfg.FramesPerBuffer)
	return nil
}

// Stop stops and closes the output stream. It is safe to call more than once.
func (p *Player) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return nil
	}
	p.started = false

	if err := p.stream.StopStream(); err != nil {
		slog.Warn("Failed to stop stream", "error", err)
	}
	if err := p.stream.CloseCallback(); err != nil {
		return fmt.Errorf("failed to close stream: %w", err)
	}

	slog.Info("Audio output stopped",
		"callbacks", p.callbacks.Load(),
		"frames", p.frames.Load(),
		"xruns", p.xruns.Load())
	return nil
}

// callback runs on the PortAudio thread; it must not allocate or block.
func (p *Player) callback(
	input, output []byte,
	frameCount uint,
	timeInfo *portaudio.StreamCallbackTimeInfo,
	statusFlags portaudio.StreamCallbackFlags,
) portaudio.StreamCallbackResult {
	if statusFlags != 0 {
		p.xruns.Add(1)
	}
	p.render(output, int(frameCount))
	return portaudio.Continue
}

// render fills output with frames of interleaved float32 stereo.
func (p *Player) render(output []byte, frames int) {
	frames = min(frames, len(output)/frameBytes)
	for off := 0; off < frames; {
		n := min(len(p.left), frames-off)
		p.renderer.ProcessBlock(p.left, p.right, n)
		if p.tap != nil {
			p.tap.Tap(p.left, p.right, n)
		}

		out := output[off*frameBytes:]
		for i := range n {
			binary.LittleEndian.PutUint32(out[i*frameBytes:], math.Float32bits(float32(p.left[i])))
			binary.LittleEndian.PutUint32(out[i*frameBytes+sampleBytes:], math.Float32bits(float32(p.right[i])))
		}
		off += n
	}

	p.callbacks.Add(1)
	p.frames.Add(uint64(frames))
}

// Stats returns the number of callbacks served, frames rendered and
// callbacks PortAudio flagged with an xrun.
func (p *Player) Stats() (callbacks, frames, xruns uint64) {
	return p.callbacks.Load(), p.frames.Load(), p.xruns.Load()
}
