package diskreader

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/drgolem/diskstream/internal/catalog"
	"github.com/drgolem/diskstream/pkg/pcm"
)

// ErrUnsupportedSampleSize is returned for assets the reader cannot convert.
var ErrUnsupportedSampleSize = errors.New("unsupported bytes per sample")

// FrameSource delivers decoded interleaved float32 frames of an asset, keyed
// by source frame. Implementations are called concurrently from several
// workers, each with its own scratch buffer.
type FrameSource interface {
	// ReadFrames fills dst with up to len(dst)/channels frames starting at
	// srcFrame and returns the number of whole frames read.
	ReadFrames(asset catalog.AssetInfo, srcFrame int64, dst []float32, scratch *[]byte) (int, error)
}

// FileSource reads raw little-endian sample data straight from the asset
// file. A file handle is opened per read so workers never share one.
type FileSource struct{}

// ReadFrames opens the asset file, seeks to the frame's byte offset and
// converts the samples read to float32.
func (FileSource) ReadFrames(asset catalog.AssetInfo, srcFrame int64, dst []float32, scratch *[]byte) (int, error) {
	channels := asset.Format.Channels
	frameSize := int(asset.FrameSize())
	if channels < 1 || frameSize == 0 {
		return 0, fmt.Errorf("asset %d: %w: %d", asset.ID, ErrUnsupportedSampleSize, asset.Format.BytesPerSample)
	}

	frames := len(dst) / channels
	if asset.TotalFrames > 0 {
		frames = int(min(int64(frames), asset.TotalFrames-srcFrame))
	}
	if frames <= 0 {
		return 0, nil
	}

	need := frames * frameSize
	if cap(*scratch) < need {
		*scratch = make([]byte, need)
	}
	buf := (*scratch)[:need]

	f, err := os.Open(asset.Path)
	if err != nil {
		return 0, fmt.Errorf("failed to open asset file: %w", err)
	}
	defer f.Close()

	if _, err := f.Seek(asset.ByteOffset(srcFrame), io.SeekStart); err != nil {
		return 0, fmt.Errorf("failed to seek asset file: %w", err)
	}

	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return 0, fmt.Errorf("failed to read asset file: %w", err)
	}

	read := n / frameSize
	if err := decodeSamples(dst[:read*channels], buf[:read*frameSize], asset.Format.BytesPerSample); err != nil {
		return 0, fmt.Errorf("asset %d: %w", asset.ID, err)
	}
	return read, nil
}

// decodeSamples converts little-endian samples to float32 in [-1, 1).
// 4-byte samples are IEEE float, 2- and 3-byte samples are signed PCM.
func decodeSamples(dst []float32, src []byte, bytesPerSample int) error {
	switch bytesPerSample {
	case 4:
		pcm.FloatToFloat32(dst, src)
		return nil
	case 2, 3:
		return pcm.IntToFloat32(dst, src, bytesPerSample*8)
	}
	return fmt.Errorf("%w: %d", ErrUnsupportedSampleSize, bytesPerSample)
}
