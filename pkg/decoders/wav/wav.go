package wav

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/youpy/go-wav"
)

// Decoder wraps go-wav for decoding PCM WAV files.
// Implements types.AudioDecoder interface.
type Decoder struct {
	file     *os.File
	reader   *wav.Reader
	rate     int
	channels int
	bps      int
}

// NewDecoder creates a new WAV decoder
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Open opens a WAV file for decoding
func (d *Decoder) Open(fileName string) error {
	file, err := os.Open(fileName)
	if err != nil {
		return fmt.Errorf("failed to open WAV file: %w", err)
	}

	reader := wav.NewReader(file)
	format, err := reader.Format()
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to read WAV format: %w", err)
	}

	if format.AudioFormat != wav.AudioFormatPCM {
		file.Close()
		return fmt.Errorf("unsupported WAV format: %d (only PCM supported)", format.AudioFormat)
	}
	// go-wav samples carry at most two channel values
	if format.NumChannels < 1 || format.NumChannels > 2 {
		file.Close()
		return fmt.Errorf("unsupported WAV channel count: %d", format.NumChannels)
	}

	d.file = file
	d.reader = reader
	d.rate = int(format.SampleRate)
	d.channels = int(format.NumChannels)
	d.bps = int(format.BitsPerSample)

	return nil
}

// Close closes the WAV file
func (d *Decoder) Close() error {
	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file = nil
	d.reader = nil
	return err
}

// GetFormat returns the audio format (sample rate, channels, bits per sample)
func (d *Decoder) GetFormat() (rate, channels, bitsPerSample int) {
	return d.rate, d.channels, d.bps
}

// DecodeSamples decodes up to 'samples' frames into audio as little-endian
// PCM at the file's bit depth. It returns io.EOF once the data chunk is
// exhausted.
func (d *Decoder) DecodeSamples(samples int, audio []byte) (int, error) {
	if d.reader == nil {
		return 0, fmt.Errorf("decoder not initialized")
	}

	bytesPerSample := d.bps / 8
	samples = min(samples, len(audio)/(d.channels*bytesPerSample))
	if samples <= 0 {
		return 0, nil
	}

	frames, err := d.reader.ReadSamples(uint32(samples))
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, err
	}
	if len(frames) == 0 {
		return 0, io.EOF
	}

	for i, frame := range frames {
		for ch := 0; ch < d.channels; ch++ {
			value := frame.Values[ch]
			offset := (i*d.channels + ch) * bytesPerSample

			switch d.bps {
			case 8:
				audio[offset] = byte(value)
			case 16, 24, 32:
				for b := range bytesPerSample {
					audio[offset+b] = byte(value >> (8 * b))
				}
			default:
				return i, fmt.Errorf("unsupported bits per sample: %d", d.bps)
			}
		}
	}

	return len(frames), nil
}
