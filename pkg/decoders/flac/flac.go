package flac

import (
	"fmt"

	goflac "github.com/drgolem/go-flac/flac"
)

// Decoder wraps the go-flac decoder to provide FLAC decoding capabilities.
// Implements types.AudioDecoder interface.
type Decoder struct {
	decoder  *goflac.FlacDecoder
	outBits  int // requested output depth
	rate     int
	channels int
	bps      int // bits per sample
}

// NewDecoder creates a new FLAC decoder with 16-bit output
func NewDecoder() *Decoder {
	return NewDecoderWithDepth(16)
}

// NewDecoderWithDepth creates a FLAC decoder producing bits-per-sample
// output (16, 24 or 32). Imports use 24 to keep studio masters intact.
func NewDecoderWithDepth(bits int) *Decoder {
	return &Decoder{outBits: bits}
}

// GetFormat returns the audio format (rate, channels, bits per sample)
func (d *Decoder) GetFormat() (int, int, int) {
	return d.rate, d.channels, d.bps
}

// DecodeSamples decodes the specified number of samples into the audio buffer
func (d *Decoder) DecodeSamples(samples int, audio []byte) (int, error) {
	if d.decoder == nil {
		return 0, fmt.Errorf("decoder not initialized")
	}
	return d.decoder.DecodeSamples(samples, audio)
}

// Open opens and initializes a FLAC file for decoding
func (d *Decoder) Open(fileName string) error {
	switch d.outBits {
	case 16, 24, 32:
	default:
		return fmt.Errorf("unsupported output depth: %d", d.outBits)
	}

	decoder, err := goflac.NewFlacFrameDecoder(d.outBits)
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Open(fileName); err != nil {
		decoder.Delete()
		return fmt.Errorf("failed to open file %s: %w", fileName, err)
	}

	rate, channels, bps := decoder.GetFormat()

	d.decoder = decoder
	d.rate = rate
	d.channels = channels
	d.bps = bps

	return nil
}

// Close closes the decoder and releases resources
func (d *Decoder) Close() error {
	if d.decoder != nil {
		d.decoder.Close()
		d.decoder.Delete()
		d.decoder = nil
	}
	return nil
}

// Rate returns the sample rate in Hz
func (d *Decoder) Rate() int {
	return d.rate
}

// Channels returns the number of audio channels
func (d *Decoder) Channels() int {
	return d.channels
}

// BitsPerSample returns the bits per sample
func (d *Decoder) BitsPerSample() int {
	return d.bps
}
