package catalog

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/wav"

	"github.com/drgolem/diskstream/pkg/types"
)

const (
	wavFormatPCM        = 1
	wavFormatIEEEFloat  = 3
	wavFormatExtensible = 0xFFFE
)

// ErrUnsupportedLayout is returned by Probe for files the disk reader cannot
// stream directly (compressed, 8-bit, 64-bit float, ...).
var ErrUnsupportedLayout = errors.New("unsupported sample layout")

// Probe inspects a RIFF/WAVE file and returns an AssetInfo pointing at its
// data chunk. Supported layouts are 16/24-bit PCM and 32-bit IEEE float.
func Probe(path string) (AssetInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return AssetInfo{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if err := dec.FwdToPCM(); err != nil {
		return AssetInfo{}, fmt.Errorf("%s: data chunk not found: %w", path, err)
	}
	// FwdToPCM swallows header errors
	if dec.PCMChunk == nil {
		if err := dec.Err(); err != nil {
			return AssetInfo{}, fmt.Errorf("%s: not a RIFF/WAVE file: %w", path, err)
		}
		return AssetInfo{}, fmt.Errorf("%s: data chunk not found", path)
	}

	// the decoder reads straight from f, which now sits at the first sample
	offset, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return AssetInfo{}, fmt.Errorf("failed to locate data chunk: %w", err)
	}

	format := types.AudioFormat{
		Channels:       int(dec.NumChans),
		SampleRate:     int(dec.SampleRate),
		BytesPerSample: int(dec.BitDepth) / 8,
	}
	if err := checkLayout(dec.WavAudioFormat, format); err != nil {
		return AssetInfo{}, fmt.Errorf("%s: %w", path, err)
	}

	return AssetInfo{
		Path:        path,
		TotalFrames: int64(dec.PCMSize) / int64(format.FrameSize()),
		Format:      format,
		DataOffset:  offset,
	}, nil
}

func checkLayout(formatTag uint16, format types.AudioFormat) error {
	if format.Channels < 1 {
		return fmt.Errorf("%w: %d channels", ErrUnsupportedLayout, format.Channels)
	}
	if format.SampleRate < 1 {
		return fmt.Errorf("%w: sample rate %d", ErrUnsupportedLayout, format.SampleRate)
	}
	pcm := format.BytesPerSample == 2 || format.BytesPerSample == 3
	switch {
	case formatTag == wavFormatIEEEFloat && format.BytesPerSample == 4:
		return nil
	case formatTag == wavFormatPCM && pcm:
		return nil
	case formatTag == wavFormatExtensible && pcm:
		// the decoder drops the sub-format GUID; 16/24-bit is always integer
		return nil
	}
	return fmt.Errorf("%w: format tag %d, %d bytes per sample",
		ErrUnsupportedLayout, formatTag, format.BytesPerSample)
}
