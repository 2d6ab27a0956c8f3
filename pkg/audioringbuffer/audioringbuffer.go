package audioringbuffer

import (
	"sync/atomic"
)

// AudioRingBuffer is a lock-free single-producer single-consumer ring buffer
// of interleaved float32 audio frames.
//
// Thread safety:
//   - Write() must only be called by the producer (disk reader)
//   - Read(), SkipTo() and Discard() must only be called by the consumer
//     (audio callback)
//   - Clear() must only be called while both sides are quiesced
//
// Capacity is rounded up to the next power of 2 so positions can be wrapped
// with a bitwise AND. One frame is kept free so a full buffer can be told
// apart from an empty one: AvailableRead()+AvailableWrite() == Capacity()-1.
type AudioRingBuffer struct {
	writePos atomic.Uint64 // frame index, written by producer only
	_pad1    [56]byte
	readPos  atomic.Uint64 // frame index, written by consumer only
	_pad2    [56]byte

	buffer   []float32
	capacity uint64 // frames, power of 2
	mask     uint64 // capacity - 1
	channels int
}

// New allocates a zero-filled buffer of capacityFrames*channels samples.
// No further allocation happens over the buffer's lifetime.
func New(capacityFrames uint64, channels int) *AudioRingBuffer {
	if channels < 1 {
		channels = 1
	}
	// at least two frames so one can be usable next to the slack frame
	capacity := nextPowerOf2(max(capacityFrames, 2))

	return &AudioRingBuffer{
		buffer:   make([]float32, capacity*uint64(channels)),
		capacity: capacity,
		mask:     capacity - 1,
		channels: channels,
	}
}

// Write copies up to min(frames, AvailableWrite()) frames from src and
// returns the number of frames written. It never blocks and never allocates.
//
// This method must only be called by the producer.
func (rb *AudioRingBuffer) Write(src []float32, frames int) int {
	if frames <= 0 {
		return 0
	}
	frames = min(frames, len(src)/rb.channels)

	toWrite := min(uint64(frames), rb.AvailableWrite())
	if toWrite == 0 {
		return 0
	}

	writePos := rb.writePos.Load()
	ch := uint64(rb.channels)

	start := writePos & rb.mask
	firstChunk := min(toWrite, rb.capacity-start)
	copy(rb.buffer[start*ch:(start+firstChunk)*ch], src[:firstChunk*ch])
	if firstChunk < toWrite {
		// wrap around
		copy(rb.buffer[:(toWrite-firstChunk)*ch], src[firstChunk*ch:toWrite*ch])
	}

	rb.writePos.Store((writePos + toWrite) & rb.mask)

	return int(toWrite)
}

// Read copies up to min(frames, AvailableRead()) frames into dst. Any part of
// the requested frames that could not be served is zero-filled. The returned
// count is the number of frames actually produced; a short count signals an
// underrun to the caller.
//
// This method must only be called by the consumer.
func (rb *AudioRingBuffer) Read(dst []float32, frames int) int {
	if frames <= 0 {
		return 0
	}
	frames = min(frames, len(dst)/rb.channels)
	ch := uint64(rb.channels)

	toRead := min(uint64(frames), rb.AvailableRead())
	if toRead > 0 {
		readPos := rb.readPos.Load()

		start := readPos & rb.mask
		firstChunk := min(toRead, rb.capacity-start)
		copy(dst[:firstChunk*ch], rb.buffer[start*ch:(start+firstChunk)*ch])
		if firstChunk < toRead {
			copy(dst[firstChunk*ch:toRead*ch], rb.buffer[:(toRead-firstChunk)*ch])
		}

		rb.readPos.Store((readPos + toRead) & rb.mask)
	}

	if toRead < uint64(frames) {
		clear(dst[toRead*ch : uint64(frames)*ch])
	}

	return int(toRead)
}

// AvailableRead returns the number of frames available for reading.
func (rb *AudioRingBuffer) AvailableRead() uint64 {
	writePos := rb.writePos.Load()
	readPos := rb.readPos.Load()
	return (writePos - readPos) & rb.mask
}

// AvailableWrite returns the number of frames available for writing.
func (rb *AudioRingBuffer) AvailableWrite() uint64 {
	return rb.capacity - 1 - rb.AvailableRead()
}

// Capacity returns the total capacity in frames, including the slack frame.
func (rb *AudioRingBuffer) Capacity() uint64 {
	return rb.capacity
}

// Channels returns the number of interleaved channels per frame.
func (rb *AudioRingBuffer) Channels() int {
	return rb.channels
}

// Mark returns the current write position. The producer publishes it so
// the consumer can later drop everything written before it with SkipTo.
func (rb *AudioRingBuffer) Mark() uint64 {
	return rb.writePos.Load()
}

// AvailableSince returns the number of frames written after mark.
func (rb *AudioRingBuffer) AvailableSince(mark uint64) uint64 {
	return (rb.writePos.Load() - mark) & rb.mask
}

// SkipTo moves the read position to mark, discarding the frames before it.
// mark must lie between the read and write positions.
//
// This method must only be called by the consumer.
func (rb *AudioRingBuffer) SkipTo(mark uint64) {
	rb.readPos.Store(mark & rb.mask)
}

// Discard drops every frame currently readable.
//
// This method must only be called by the consumer.
func (rb *AudioRingBuffer) Discard() {
	rb.readPos.Store(rb.writePos.Load())
}

// Clear resets both positions to zero. Buffer memory is left as is.
func (rb *AudioRingBuffer) Clear() {
	rb.readPos.Store(0)
	rb.writePos.Store(0)
}

// nextPowerOf2 rounds up to the next power of 2
func nextPowerOf2(n uint64) uint64 {
	if n == 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	n++
	return n
}
