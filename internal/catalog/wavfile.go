package catalog

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-audio/wav"
)

// ErrNoFrames is returned when a float WAV is closed before any frame was
// written.
var ErrNoFrames = errors.New("no frames written")

// FloatWriter writes interleaved float32 frames to a 32-bit IEEE float WAV
// file, the layout the disk reader streams without conversion.
type FloatWriter struct {
	f        *os.File
	enc      *wav.Encoder
	channels int
	frames   int64
}

// CreateFloatWAV creates path and returns a writer for it. Close must be
// called for the header sizes to be valid.
func CreateFloatWAV(path string, sampleRate, channels int) (*FloatWriter, error) {
	if sampleRate < 1 || channels < 1 {
		return nil, fmt.Errorf("%w: rate %d, %d channels", ErrUnsupportedLayout, sampleRate, channels)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}
	return &FloatWriter{
		f:        f,
		enc:      wav.NewEncoder(f, sampleRate, 32, channels, wavFormatIEEEFloat),
		channels: channels,
	}, nil
}

// Write appends the whole frames held in samples; a trailing partial frame
// is ignored.
func (w *FloatWriter) Write(samples []float32) error {
	for i := 0; i+w.channels <= len(samples); i += w.channels {
		// one call per frame, the encoder counts frames by calls
		if err := w.enc.WriteFrame(samples[i : i+w.channels]); err != nil {
			return fmt.Errorf("failed to write frame %d: %w", w.frames, err)
		}
		w.frames++
	}
	return nil
}

// Frames returns the number of frames written so far.
func (w *FloatWriter) Frames() int64 { return w.frames }

// Close patches the RIFF and data chunk sizes and closes the file.
func (w *FloatWriter) Close() error {
	if w.frames == 0 {
		w.f.Close()
		return ErrNoFrames
	}
	if err := w.enc.Close(); err != nil {
		w.f.Close()
		return fmt.Errorf("failed to finalize %s: %w", w.f.Name(), err)
	}
	return w.f.Close()
}

// WriteFloatWAV writes samples as a float WAV file in one go.
func WriteFloatWAV(path string, sampleRate, channels int, samples []float32) error {
	w, err := CreateFloatWAV(path, sampleRate, channels)
	if err != nil {
		return err
	}
	if err := w.Write(samples); err != nil {
		w.f.Close()
		return err
	}
	return w.Close()
}
