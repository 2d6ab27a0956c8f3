package decoders

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/drgolem/diskstream/pkg/decoders/aiff"
	"github.com/drgolem/diskstream/pkg/decoders/flac"
	"github.com/drgolem/diskstream/pkg/decoders/mp3"
	"github.com/drgolem/diskstream/pkg/decoders/vorbis"
	"github.com/drgolem/diskstream/pkg/decoders/wav"
	"github.com/drgolem/diskstream/pkg/types"
)

// Extensions lists the file extensions NewDecoder understands.
var Extensions = []string{".mp3", ".flac", ".fla", ".wav", ".ogg", ".oga", ".aif", ".aiff"}

// NewDecoder creates and opens the appropriate decoder based on file extension.
// Returns an opened decoder ready for use, or an error if the format is unsupported
// or the file cannot be opened.
func NewDecoder(fileName string) (types.AudioDecoder, error) {
	ext := strings.ToLower(filepath.Ext(fileName))

	var decoder types.AudioDecoder

	switch ext {
	case ".mp3":
		decoder = mp3.NewDecoder()
	case ".flac", ".fla":
		decoder = flac.NewDecoderWithDepth(24)
	case ".wav":
		decoder = wav.NewDecoder()
	case ".ogg", ".oga":
		decoder = vorbis.NewDecoder()
	case ".aif", ".aiff":
		decoder = aiff.NewDecoder()
	default:
		return nil, fmt.Errorf("unsupported file format: %s (supported: %s)", ext, strings.Join(Extensions, ", "))
	}

	if err := decoder.Open(fileName); err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", fileName, err)
	}

	return decoder, nil
}
