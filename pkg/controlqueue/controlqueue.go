package controlqueue

import (
	"math"
	"sync/atomic"
)

// Kind tags a control command.
type Kind uint8

const (
	KindNone Kind = iota
	KindPlay
	KindStop
	KindSeek        // Value: timeline frame
	KindTrackVolume // Track, Value: float32 bits, linear gain
	KindTrackPan    // Track, Value: float32 bits, -1 (left) .. +1 (right)
	KindTrackMute   // Track, Value: 0 or 1
)

func (k Kind) String() string {
	switch k {
	case KindPlay:
		return "play"
	case KindStop:
		return "stop"
	case KindSeek:
		return "seek"
	case KindTrackVolume:
		return "track_volume"
	case KindTrackPan:
		return "track_pan"
	case KindTrackMute:
		return "track_mute"
	default:
		return "none"
	}
}

// Command is a fixed-size, pointer-free playback control record.
// Value holds a frame position, a boolean or the bit pattern of a float32
// depending on Kind.
type Command struct {
	Kind  Kind
	Track uint32
	Value uint64
}

func Play() Command { return Command{Kind: KindPlay} }

func Stop() Command { return Command{Kind: KindStop} }

func Seek(frame int64) Command {
	return Command{Kind: KindSeek, Value: uint64(frame)}
}

func TrackVolume(track uint32, gain float32) Command {
	return Command{Kind: KindTrackVolume, Track: track, Value: uint64(math.Float32bits(gain))}
}

func TrackPan(track uint32, pan float32) Command {
	return Command{Kind: KindTrackPan, Track: track, Value: uint64(math.Float32bits(pan))}
}

func TrackMute(track uint32, mute bool) Command {
	c := Command{Kind: KindTrackMute, Track: track}
	if mute {
		c.Value = 1
	}
	return c
}

// Frame interprets Value as a timeline frame.
func (c Command) Frame() int64 { return int64(c.Value) }

// Float interprets Value as the bit pattern of a float32.
func (c Command) Float() float32 { return math.Float32frombits(uint32(c.Value)) }

// Bool interprets Value as a boolean.
func (c Command) Bool() bool { return c.Value != 0 }

// Queue is a lock-free single-producer single-consumer queue of Commands.
//
// Thread safety:
//   - Push() must only be called by the control (UI) thread
//   - Pop()/Drain() must only be called by the audio thread
//
// Capacity is rounded up to the next power of 2 for efficient masking.
type Queue struct {
	writePos atomic.Uint64
	_pad1    [56]byte
	readPos  atomic.Uint64
	_pad2    [56]byte

	buffer []Command
	size   uint64
	mask   uint64
}

// New creates a command queue holding at least capacity commands.
func New(capacity uint64) *Queue {
	capacity = nextPowerOf2(capacity)

	return &Queue{
		buffer: make([]Command, capacity),
		size:   capacity,
		mask:   capacity - 1,
	}
}

// Push enqueues cmd. It returns false without blocking when the queue is full;
// the caller decides whether to drop, coalesce or retry.
func (q *Queue) Push(cmd Command) bool {
	writePos := q.writePos.Load()
	if writePos-q.readPos.Load() >= q.size {
		return false
	}

	q.buffer[writePos&q.mask] = cmd
	q.writePos.Store(writePos + 1)
	return true
}

// Pop dequeues the oldest command. It returns false when the queue is empty.
func (q *Queue) Pop() (Command, bool) {
	readPos := q.readPos.Load()
	if readPos == q.writePos.Load() {
		return Command{}, false
	}

	cmd := q.buffer[readPos&q.mask]
	q.readPos.Store(readPos + 1)
	return cmd, true
}

// Drain pops every queued command and hands it to fn, returning the count.
func (q *Queue) Drain(fn func(Command)) int {
	n := 0
	for {
		cmd, ok := q.Pop()
		if !ok {
			return n
		}
		fn(cmd)
		n++
	}
}

// Len returns the number of queued commands. It may be called from any
// goroutine; readPos is loaded first so a concurrent Pop can only make the
// result an overestimate.
func (q *Queue) Len() int {
	readPos := q.readPos.Load()
	writePos := q.writePos.Load()
	return int(min(writePos-readPos, q.size))
}

// Cap returns the queue capacity.
func (q *Queue) Cap() int {
	return int(q.size)
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
