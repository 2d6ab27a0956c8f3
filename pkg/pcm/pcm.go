// Package pcm converts little-endian sample data to float32.
package pcm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

var ErrUnsupportedDepth = errors.New("unsupported bit depth")

// IntToFloat32 converts integer PCM to float32 in [-1, 1).
// 8-bit samples are unsigned, wider ones signed.
func IntToFloat32(dst []float32, src []byte, bitsPerSample int) error {
	switch bitsPerSample {
	case 8:
		for i := range dst {
			dst[i] = (float32(src[i]) - 128) / 128
		}
	case 16:
		for i := range dst {
			dst[i] = float32(int16(binary.LittleEndian.Uint16(src[i*2:]))) / (1 << 15)
		}
	case 24:
		for i := range dst {
			b := src[i*3:]
			v := int32(uint32(b[0])<<8|uint32(b[1])<<16|uint32(b[2])<<24) >> 8
			dst[i] = float32(v) / (1 << 23)
		}
	case 32:
		for i := range dst {
			dst[i] = float32(float64(int32(binary.LittleEndian.Uint32(src[i*4:]))) / (1 << 31))
		}
	default:
		return fmt.Errorf("%w: %d", ErrUnsupportedDepth, bitsPerSample)
	}
	return nil
}

// FloatToFloat32 decodes IEEE float32 samples.
func FloatToFloat32(dst []float32, src []byte) {
	for i := range dst {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:]))
	}
}
