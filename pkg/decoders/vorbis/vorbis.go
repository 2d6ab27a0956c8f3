// Package vorbis decodes Ogg Vorbis files with jfreymuth/oggvorbis.
package vorbis

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/jfreymuth/oggvorbis"
)

// Vorbis decodes to float; the decoder hands out 16-bit PCM like the other
// decoders in this module.
const outBits = 16

// Decoder implements types.AudioDecoder for Ogg Vorbis.
type Decoder struct {
	file     *os.File
	reader   *oggvorbis.Reader
	rate     int
	channels int
	buf      []float32
}

// NewDecoder creates a new Ogg Vorbis decoder
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Open opens an Ogg Vorbis file for decoding
func (d *Decoder) Open(fileName string) error {
	file, err := os.Open(fileName)
	if err != nil {
		return fmt.Errorf("failed to open file %s: %w", fileName, err)
	}

	reader, err := oggvorbis.NewReader(file)
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to create decoder: %w", err)
	}

	d.file = file
	d.reader = reader
	d.rate = reader.SampleRate()
	d.channels = reader.Channels()

	return nil
}

// Close closes the file
func (d *Decoder) Close() error {
	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file = nil
	d.reader = nil
	return err
}

// GetFormat returns the audio format (rate, channels, bits per sample)
func (d *Decoder) GetFormat() (int, int, int) {
	if d.reader == nil {
		return 0, 0, 0
	}
	return d.rate, d.channels, outBits
}

// DecodeSamples decodes up to samples frames into audio as 16-bit PCM.
func (d *Decoder) DecodeSamples(samples int, audio []byte) (int, error) {
	if d.reader == nil {
		return 0, fmt.Errorf("decoder not initialized")
	}

	frameSize := d.channels * outBits / 8
	samples = min(samples, len(audio)/frameSize)
	if samples <= 0 {
		return 0, nil
	}

	need := samples * d.channels
	if cap(d.buf) < need {
		d.buf = make([]float32, need)
	}
	buf := d.buf[:need]

	// Read returns whole frames but may return fewer than asked for
	read := 0
	var err error
	for read < need && err == nil {
		var n int
		n, err = d.reader.Read(buf[read:])
		read += n
	}
	if errors.Is(err, io.EOF) && read > 0 {
		err = nil
	}

	for i, v := range buf[:read] {
		s := int16(math.Round(float64(max(-1, min(v, 1))) * math.MaxInt16))
		audio[2*i] = byte(s)
		audio[2*i+1] = byte(s >> 8)
	}

	return read / d.channels, err
}

// Length returns the stream length in frames, or 0 if unknown.
func (d *Decoder) Length() int64 {
	if d.reader == nil {
		return 0
	}
	return d.reader.Length()
}
