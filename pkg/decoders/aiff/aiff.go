// Package aiff decodes AIFF files with go-audio/aiff.
package aiff

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/aiff"
	goaudio "github.com/go-audio/audio"
)

var (
	ErrNotAiffFile         = errors.New("not a valid AIFF file")
	ErrUnsupportedBitDepth = errors.New("unsupported AIFF bit depth")
)

// Decoder implements types.AudioDecoder for AIFF. Samples are emitted as
// little-endian PCM at the file's bit depth.
type Decoder struct {
	file     *os.File
	decoder  *aiff.Decoder
	rate     int
	channels int
	bps      int
	intBuf   *goaudio.IntBuffer
}

// NewDecoder creates a new AIFF decoder
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Open opens an AIFF file for decoding
func (d *Decoder) Open(fileName string) error {
	file, err := os.Open(fileName)
	if err != nil {
		return fmt.Errorf("failed to open file %s: %w", fileName, err)
	}

	dec := aiff.NewDecoder(file)
	if !dec.IsValidFile() {
		file.Close()
		return ErrNotAiffFile
	}
	dec.ReadInfo()
	if err := dec.Err(); err != nil {
		file.Close()
		return fmt.Errorf("failed to read AIFF info: %w", err)
	}

	switch dec.BitDepth {
	case 16, 24, 32:
	default:
		file.Close()
		return fmt.Errorf("%w: %d", ErrUnsupportedBitDepth, dec.BitDepth)
	}

	format := dec.Format()
	if format == nil || format.NumChannels < 1 {
		file.Close()
		return fmt.Errorf("failed to read AIFF format")
	}

	d.file = file
	d.decoder = dec
	d.rate = format.SampleRate
	d.channels = format.NumChannels
	d.bps = int(dec.BitDepth)
	d.intBuf = &goaudio.IntBuffer{Format: format}

	return nil
}

// Close closes the file
func (d *Decoder) Close() error {
	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file = nil
	d.decoder = nil
	return err
}

// GetFormat returns the audio format (rate, channels, bits per sample)
func (d *Decoder) GetFormat() (int, int, int) {
	return d.rate, d.channels, d.bps
}

// DecodeSamples decodes up to samples frames into audio.
func (d *Decoder) DecodeSamples(samples int, audio []byte) (int, error) {
	if d.decoder == nil {
		return 0, fmt.Errorf("decoder not initialized")
	}

	bytesPerSample := d.bps / 8
	samples = min(samples, len(audio)/(d.channels*bytesPerSample))
	if samples <= 0 {
		return 0, nil
	}

	need := samples * d.channels
	if cap(d.intBuf.Data) < need {
		d.intBuf.Data = make([]int, need)
	}
	d.intBuf.Data = d.intBuf.Data[:need]

	n, err := d.decoder.PCMBuffer(d.intBuf)
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, err
	}
	if n == 0 {
		return 0, io.EOF
	}

	for i, v := range d.intBuf.Data[:n] {
		offset := i * bytesPerSample
		for b := range bytesPerSample {
			audio[offset+b] = byte(v >> (8 * b))
		}
	}

	return n / d.channels, nil
}
