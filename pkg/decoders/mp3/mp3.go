package mp3

import (
	"errors"
	"fmt"
	"io"
	"os"

	gomp3 "github.com/hajimehoshi/go-mp3"
)

// go-mp3 always produces 16-bit little-endian stereo PCM.
const (
	outChannels = 2
	outBits     = 16
	frameBytes  = outChannels * outBits / 8
)

// Decoder wraps go-mp3 to provide MP3 decoding capabilities.
// Implements types.AudioDecoder interface.
type Decoder struct {
	file    *os.File
	decoder *gomp3.Decoder
	rate    int
}

// NewDecoder creates a new MP3 decoder
func NewDecoder() *Decoder {
	return &Decoder{}
}

// GetFormat returns the audio format (rate, channels, bits per sample)
func (d *Decoder) GetFormat() (int, int, int) {
	if d.decoder == nil {
		return 0, 0, 0
	}
	return d.rate, outChannels, outBits
}

// DecodeSamples decodes up to samples stereo frames into audio.
// Returns the number of frames decoded (not bytes).
func (d *Decoder) DecodeSamples(samples int, audio []byte) (int, error) {
	if d.decoder == nil {
		return 0, fmt.Errorf("decoder not initialized")
	}

	want := min(samples*frameBytes, len(audio)-len(audio)%frameBytes)
	n, err := io.ReadFull(d.decoder, audio[:want])
	if errors.Is(err, io.ErrUnexpectedEOF) {
		err = nil
	}
	if n == 0 && err == nil && want > 0 {
		err = io.EOF
	}
	return n / frameBytes, err
}

// Open opens and initializes an MP3 file for decoding
func (d *Decoder) Open(fileName string) error {
	file, err := os.Open(fileName)
	if err != nil {
		return fmt.Errorf("failed to open file %s: %w", fileName, err)
	}

	decoder, err := gomp3.NewDecoder(file)
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to create decoder: %w", err)
	}

	d.file = file
	d.decoder = decoder
	d.rate = decoder.SampleRate()

	return nil
}

// Close closes the decoder and releases resources
func (d *Decoder) Close() error {
	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file = nil
	d.decoder = nil
	return err
}

// Rate returns the sample rate in Hz
func (d *Decoder) Rate() int {
	return d.rate
}

// Length returns the decoded length in frames, or -1 if unknown.
func (d *Decoder) Length() int64 {
	if d.decoder == nil {
		return -1
	}
	n := d.decoder.Length()
	if n < 0 {
		return -1
	}
	return n / frameBytes
}
