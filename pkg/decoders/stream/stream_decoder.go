// Package stream adapts packet-producing sources (generators, network
// feeds, in-memory captures) to types.AudioDecoder so they can be imported
// like files.
package stream

import (
	"context"
	"io"
	"sync"

	"github.com/drgolem/diskstream/pkg/types"
)

// AudioPacket represents a chunk of decoded little-endian PCM.
type AudioPacket struct {
	Audio        []byte
	SamplesCount int // frames
	Format       types.AudioFormat
}

// AudioPacketProvider is the interface for sources that provide audio data
type AudioPacketProvider interface {
	// ReadAudioPacket reads the next audio packet of at most samples frames.
	// Returns io.EOF when the source ends.
	ReadAudioPacket(ctx context.Context, samples int) (*AudioPacket, error)
}

// StreamDecoder implements types.AudioDecoder on top of an AudioPacketProvider.
type StreamDecoder struct {
	provider     AudioPacketProvider
	format       types.AudioFormat
	formatMx     sync.RWMutex
	formatChange chan types.AudioFormat
	ctx          context.Context
}

// NewStreamDecoder creates a decoder for streaming audio sources
func NewStreamDecoder(ctx context.Context, provider AudioPacketProvider, initialFormat types.AudioFormat) *StreamDecoder {
	return &StreamDecoder{
		provider:     provider,
		format:       initialFormat,
		formatChange: make(chan types.AudioFormat, 1),
		ctx:          ctx,
	}
}

// Open is a no-op; the provider is already connected.
func (d *StreamDecoder) Open(string) error {
	return nil
}

func (d *StreamDecoder) Close() error {
	return nil
}

func (d *StreamDecoder) GetFormat() (rate, channels, bitsPerSample int) {
	d.formatMx.RLock()
	defer d.formatMx.RUnlock()
	return d.format.SampleRate,
		d.format.Channels,
		d.format.BytesPerSample * 8
}

func (d *StreamDecoder) DecodeSamples(samples int, audio []byte) (int, error) {
	pkt, err := d.provider.ReadAudioPacket(d.ctx, samples)
	if err != nil {
		return 0, err
	}

	if pkt.SamplesCount == 0 {
		return 0, nil
	}

	if d.formatChanged(pkt.Format) {
		d.formatMx.Lock()
		d.format = pkt.Format
		d.formatMx.Unlock()

		select {
		case d.formatChange <- pkt.Format:
		default:
		}
	}

	frames := min(pkt.SamplesCount, len(audio)/pkt.Format.FrameSize())
	copy(audio, pkt.Audio[:frames*pkt.Format.FrameSize()])

	return frames, nil
}

func (d *StreamDecoder) formatChanged(newFormat types.AudioFormat) bool {
	d.formatMx.RLock()
	defer d.formatMx.RUnlock()
	return d.format != newFormat
}

// FormatChanges returns a channel that receives format change notifications
func (d *StreamDecoder) FormatChanges() <-chan types.AudioFormat {
	return d.formatChange
}

// SliceProvider serves PCM held in memory, in packets of at most the
// requested size.
type SliceProvider struct {
	Format types.AudioFormat
	Data   []byte
	pos    int
}

// ReadAudioPacket implements AudioPacketProvider.
func (p *SliceProvider) ReadAudioPacket(_ context.Context, samples int) (*AudioPacket, error) {
	frameSize := p.Format.FrameSize()
	remaining := (len(p.Data) - p.pos) / frameSize
	if remaining == 0 {
		return nil, io.EOF
	}
	n := min(samples, remaining)
	pkt := &AudioPacket{
		Audio:        p.Data[p.pos : p.pos+n*frameSize],
		SamplesCount: n,
		Format:       p.Format,
	}
	p.pos += n * frameSize
	return pkt, nil
}
