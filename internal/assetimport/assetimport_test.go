package assetimport

import (
	"context"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/youpy/go-wav"
	soxr "github.com/zaf/resample"

	"github.com/drgolem/diskstream/internal/catalog"
	"github.com/drgolem/diskstream/internal/diskreader"
	"github.com/drgolem/diskstream/pkg/decoders/stream"
	"github.com/drgolem/diskstream/pkg/types"
)

func pcm16(values ...int16) []byte {
	out := make([]byte, 2*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(v))
	}
	return out
}

func readAll(t *testing.T, info catalog.AssetInfo) []float32 {
	t.Helper()
	dst := make([]float32, info.TotalFrames*int64(info.Format.Channels))
	var scratch []byte
	n, err := diskreader.FileSource{}.ReadFrames(info, 0, dst, &scratch)
	require.NoError(t, err)
	require.Equal(t, int(info.TotalFrames), n)
	return dst
}

func TestConvertWithoutResampling(t *testing.T) {
	format := types.AudioFormat{SampleRate: 48000, Channels: 2, BytesPerSample: 2}
	data := pcm16(0, 16384, -16384, 32767, -32768, 8192)
	dec := stream.NewStreamDecoder(context.Background(), &stream.SliceProvider{Format: format, Data: data}, format)

	out := filepath.Join(t.TempDir(), "out.wav")
	opts := Options{SampleRate: 48000, ChunkFrames: 2}
	info, err := Convert(context.Background(), dec, out, opts)
	require.NoError(t, err)

	assert.Equal(t, int64(3), info.TotalFrames)
	assert.Equal(t, types.AudioFormat{SampleRate: 48000, Channels: 2, BytesPerSample: 4}, info.Format)
	assert.Equal(t, int64(44), info.DataOffset)

	got := readAll(t, info)
	assert.Equal(t, []float32{0, 0.5, -0.5, 32767.0 / 32768, -1, 0.25}, got)
}

func TestConvertResamples(t *testing.T) {
	format := types.AudioFormat{SampleRate: 24000, Channels: 1, BytesPerSample: 2}
	values := make([]int16, 24000)
	for i := range values {
		values[i] = 8000
	}
	dec := stream.NewStreamDecoder(context.Background(), &stream.SliceProvider{Format: format, Data: pcm16(values...)}, format)

	out := filepath.Join(t.TempDir(), "up.wav")
	info, err := Convert(context.Background(), dec, out, Options{SampleRate: 48000, Quality: soxr.HighQ})
	require.NoError(t, err)

	assert.Equal(t, 48000, info.Format.SampleRate)
	assert.InDelta(t, 48000, info.TotalFrames, 100)

	got := readAll(t, info)
	mid := got[len(got)/2]
	assert.InDelta(t, 8000.0/32768, mid, 0.01)
}

func TestConvertRejectsUnknownDepth(t *testing.T) {
	format := types.AudioFormat{SampleRate: 48000, Channels: 1, BytesPerSample: 5}
	dec := stream.NewStreamDecoder(context.Background(), &stream.SliceProvider{Format: format}, format)

	_, err := Convert(context.Background(), dec, filepath.Join(t.TempDir(), "x.wav"), Options{})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestConvertHonoursCancellation(t *testing.T) {
	format := types.AudioFormat{SampleRate: 48000, Channels: 1, BytesPerSample: 2}
	dec := stream.NewStreamDecoder(context.Background(), &stream.SliceProvider{Format: format, Data: make([]byte, 1000)}, format)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := filepath.Join(t.TempDir(), "cancelled.wav")
	_, err := Convert(ctx, dec, out, Options{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoFileExists(t, out)
}

func TestImportUsesFloatWAVAsIs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ready.wav")
	require.NoError(t, catalog.WriteFloatWAV(path, 48000, 1, make([]float32, 4)))

	info, err := Import(context.Background(), path, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, path, info.Path)
	assert.Equal(t, int64(4), info.TotalFrames)
}

func TestImportConvertsPCMWAV(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "take.wav")
	f, err := os.Create(src)
	require.NoError(t, err)
	w := wav.NewWriter(f, 100, 2, 48000, 16)
	samples := make([]wav.Sample, 100)
	for i := range samples {
		samples[i].Values = [2]int{16384, -16384}
	}
	require.NoError(t, w.WriteSamples(samples))
	require.NoError(t, f.Close())

	opts := DefaultOptions()
	opts.OutputDir = t.TempDir()
	opts.SampleRate = 0

	info, err := Import(context.Background(), src, opts)
	require.NoError(t, err)

	// 16-bit PCM is streamable as is
	assert.Equal(t, src, info.Path)
	assert.Equal(t, 2, info.Format.BytesPerSample)

	opts.SampleRate = 44100
	info, err = Import(context.Background(), src, opts)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(opts.OutputDir, "take.f32.wav"), info.Path)
	assert.Equal(t, 44100, info.Format.SampleRate)
	assert.Equal(t, 4, info.Format.BytesPerSample)
}

func TestFloatDecoderKeepsSplitFrames(t *testing.T) {
	var got []float32
	d := &floatDecoder{channels: 2, write: func(samples []float32) error {
		require.Zero(t, len(samples)%2)
		got = append(got, samples...)
		return nil
	}}

	raw := make([]byte, 16)
	for i, v := range []float32{0.5, -0.5, 0.25, -0.25} {
		binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(v))
	}
	for _, part := range [][]byte{raw[:3], raw[3:10], raw[10:]} {
		n, err := d.Write(part)
		require.NoError(t, err)
		assert.Equal(t, len(part), n)
	}

	assert.Equal(t, []float32{0.5, -0.5, 0.25, -0.25}, got)
	assert.Empty(t, d.pending)
}
