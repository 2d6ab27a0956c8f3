package pcm

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntToFloat32(t *testing.T) {
	dst := make([]float32, 2)

	require.NoError(t, IntToFloat32(dst, []byte{0, 255}, 8))
	assert.Equal(t, []float32{-1, 127.0 / 128}, dst)

	require.NoError(t, IntToFloat32(dst, []byte{0x00, 0x40, 0x00, 0xC0}, 16))
	assert.Equal(t, []float32{0.5, -0.5}, dst)

	require.NoError(t, IntToFloat32(dst, []byte{0, 0, 0x40, 0, 0, 0xC0}, 24))
	assert.Equal(t, []float32{0.5, -0.5}, dst)

	require.NoError(t, IntToFloat32(dst, []byte{0, 0, 0, 0x40, 0, 0, 0, 0xC0}, 32))
	assert.Equal(t, []float32{0.5, -0.5}, dst)

	assert.ErrorIs(t, IntToFloat32(dst, nil, 12), ErrUnsupportedDepth)
}

func TestIntToFloat32Extremes(t *testing.T) {
	dst := make([]float32, 2)
	require.NoError(t, IntToFloat32(dst, []byte{0xFF, 0x7F, 0x00, 0x80}, 16))
	assert.Equal(t, []float32{32767.0 / 32768, -1}, dst)

	require.NoError(t, IntToFloat32(dst, []byte{0xFF, 0xFF, 0x7F, 0x00, 0x00, 0x80}, 24))
	assert.Equal(t, []float32{8388607.0 / 8388608, -1}, dst)
}

func TestFloatToFloat32(t *testing.T) {
	src := make([]byte, 12)
	for i, v := range []float32{0.25, -1, 3.5} {
		binary.LittleEndian.PutUint32(src[i*4:], math.Float32bits(v))
	}
	dst := make([]float32, 3)
	FloatToFloat32(dst, src)
	assert.Equal(t, []float32{0.25, -1, 3.5}, dst)
}
