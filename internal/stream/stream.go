package stream

import (
	"sync/atomic"

	"github.com/drgolem/diskstream/pkg/audioringbuffer"
	"github.com/drgolem/diskstream/pkg/types"
)

// Params fixes the identity and timeline placement of a stream.
type Params struct {
	ID            uint32
	TrackID       uint32
	AssetID       uint32
	TLStartFrame  int64 // inclusive
	TLEndFrame    int64 // exclusive
	SrcStartFrame int64 // source frame played at TLStartFrame
	Gain          float32
	Channels      int
}

// Stream is the real-time state of one playing instance of an asset.
//
// Identity and placement are immutable. srcReadFrame is written only by the
// disk reader, srcPlayFrame only by the audio thread; the owned ring buffer
// follows the same single-writer split, so no lock is needed.
//
// Repositioning never touches the producer side. It discards what is
// buffered and publishes a target under a new epoch; the disk reader adopts
// it in SyncReader and marks where the new epoch's data starts in the ring,
// and the audio thread skips to that mark before its next read. Whatever a
// job wrote between the two is never played.
type Stream struct {
	p Params

	srcReadFrame atomic.Int64
	srcPlayFrame atomic.Int64
	state        atomic.Uint32

	epoch  atomic.Uint64 // odd while a reposition is being published
	target atomic.Int64  // source frame of the latest reposition

	writeEpoch atomic.Uint64 // epoch srcReadFrame belongs to, disk reader only
	flushMark  atomic.Uint64 // ring position where writeEpoch data starts
	readEpoch  atomic.Uint64 // epoch the ring read position belongs to, audio thread only

	ring *audioringbuffer.AudioRingBuffer
}

// New creates a Stopped stream whose cursors point at the start of its
// source region.
func New(p Params, ringFrames uint64) *Stream {
	if p.Channels < 1 {
		p.Channels = 1
	}
	s := &Stream{
		p:    p,
		ring: audioringbuffer.New(ringFrames, p.Channels),
	}
	s.srcReadFrame.Store(p.SrcStartFrame)
	s.srcPlayFrame.Store(p.SrcStartFrame)
	s.target.Store(p.SrcStartFrame)
	return s
}

func (s *Stream) ID() uint32 { return s.p.ID }
func (s *Stream) TrackID() uint32 { return s.p.TrackID }
func (s *Stream) AssetID() uint32 { return s.p.AssetID }
func (s *Stream) TLStartFrame() int64 { return s.p.TLStartFrame }
func (s *Stream) TLEndFrame() int64 { return s.p.TLEndFrame }
func (s *Stream) SrcStartFrame() int64 { return s.p.SrcStartFrame }
func (s *Stream) Gain() float32 { return s.p.Gain }
func (s *Stream) Channels() int { return s.p.Channels }

// Ring returns the stream's ring buffer.
func (s *Stream) Ring() *audioringbuffer.AudioRingBuffer { return s.ring }

// IsActiveAt reports whether tlFrame lies in [TLStartFrame, TLEndFrame).
func (s *Stream) IsActiveAt(tlFrame int64) bool {
	return tlFrame >= s.p.TLStartFrame && tlFrame < s.p.TLEndFrame
}

// Overlaps reports whether [from, to) intersects the stream's window.
func (s *Stream) Overlaps(from, to int64) bool {
	return from < s.p.TLEndFrame && to > s.p.TLStartFrame
}

// TLToSrcFrame maps a timeline frame to a source frame. Playback rate is
// always 1:1 with the timeline.
func (s *Stream) TLToSrcFrame(tlFrame int64) int64 {
	return s.p.SrcStartFrame + (tlFrame - s.p.TLStartFrame)
}

// SrcEndFrame is the source frame one past the last frame the stream plays.
func (s *Stream) SrcEndFrame() int64 {
	return s.TLToSrcFrame(s.p.TLEndFrame)
}

// SrcReadFrame returns the source frame the next disk read starts at. A
// reposition the disk reader has not adopted yet is reported as its target.
func (s *Stream) SrcReadFrame() int64 {
	if s.writeEpoch.Load() != s.epoch.Load() {
		return s.target.Load()
	}
	return s.srcReadFrame.Load()
}

// SyncReader adopts the latest reposition, if any, on the producer side:
// the disk cursor moves to the target and the current ring write position
// becomes the point the audio thread skips to. Disk reader only.
//
// It returns the epoch the disk cursor belongs to, and false while a
// reposition is still being published.
func (s *Stream) SyncReader() (uint64, bool) {
	e := s.epoch.Load()
	if e&1 == 1 {
		return e, false
	}
	if s.writeEpoch.Load() == e {
		return e, true
	}
	target := s.target.Load()
	if s.epoch.Load() != e {
		return e, false
	}
	s.srcReadFrame.Store(target)
	s.flushMark.Store(s.ring.Mark())
	s.writeEpoch.Store(e)
	return e, true
}

// AdvanceRead moves the disk cursor forward. Disk reader only.
func (s *Stream) AdvanceRead(frames int64) {
	s.srcReadFrame.Add(frames)
}

func (s *Stream) SrcPlayFrame() int64 { return s.srcPlayFrame.Load() }

// Read copies up to frames buffered frames into dst and zero-fills the
// rest. Nothing is returned between a reposition and the disk reader
// adopting it. Audio thread only.
func (s *Stream) Read(dst []float32, frames int) int {
	if !s.syncPlayer() {
		clear(dst[:min(len(dst), frames*s.p.Channels)])
		return 0
	}
	return s.ring.Read(dst, frames)
}

func (s *Stream) syncPlayer() bool {
	e := s.epoch.Load()
	if s.readEpoch.Load() == e {
		return true
	}
	if e&1 == 1 || s.writeEpoch.Load() != e {
		return false
	}
	s.ring.SkipTo(s.flushMark.Load())
	s.readEpoch.Store(e)
	return true
}

// AdvancePlay moves the playback cursor forward. Audio thread only.
func (s *Stream) AdvancePlay(frames int64) {
	s.srcPlayFrame.Add(frames)
}

func (s *Stream) State() types.StreamState {
	return types.StreamState(s.state.Load())
}

func (s *Stream) SetState(st types.StreamState) {
	s.state.Store(uint32(st))
}

// CompareAndSwapState moves the stream from one state to another if it is still in the first.
func (s *Stream) CompareAndSwapState(from, to types.StreamState) bool {
	return s.state.CompareAndSwap(uint32(from), uint32(to))
}

// Epoch changes every time the stream is repositioned. Disk jobs capture it
// so data read for an old position can be discarded.
func (s *Stream) Epoch() uint64 { return s.epoch.Load() }

// reposition publishes the source frame for tlFrame as the new position of
// both cursors. It acts as the consumer: the caller is the audio thread, or
// the stream is not being mixed. The epoch stays odd while the target is
// written; concurrent callers spin on it.
func (s *Stream) reposition(tlFrame int64) {
	tlFrame = min(max(tlFrame, s.p.TLStartFrame), s.p.TLEndFrame)
	src := s.TLToSrcFrame(tlFrame)

	for {
		e := s.epoch.Load()
		if e&1 == 0 && s.epoch.CompareAndSwap(e, e+1) {
			break
		}
	}
	s.target.Store(src)
	s.srcPlayFrame.Store(src)
	s.ring.Discard()
	s.epoch.Add(1)
}

// Activate moves a Stopped stream to Priming.
func (s *Stream) Activate() bool {
	return s.CompareAndSwapState(types.StateStopped, types.StatePriming)
}

// ActivateAt repositions a Stopped stream at tlFrame and moves it to
// Priming. It reports false, and changes nothing, if the stream was not
// Stopped.
func (s *Stream) ActivateAt(tlFrame int64) bool {
	if s.State() != types.StateStopped {
		return false
	}
	s.reposition(tlFrame)
	return s.Activate()
}

// Deactivate stops the stream. Buffered data is kept; a later Seek or
// Activate decides whether it is still valid.
func (s *Stream) Deactivate() {
	s.SetState(types.StateStopped)
}

// Seek repositions both cursors at tlFrame (clamped to the stream window),
// drops everything buffered and forces the stream to Priming. It may run
// while a disk job for the stream is in flight.
func (s *Stream) Seek(tlFrame int64) {
	s.SetState(types.StatePriming)
	s.reposition(tlFrame)
}

// MarkStarved records an underrun. It reports whether the stream moved from
// Running to Starved; Priming, Stopped and already Starved streams are left
// alone.
func (s *Stream) MarkStarved() bool {
	return s.CompareAndSwapState(types.StateRunning, types.StateStarved)
}

// Promote moves a Priming or Starved stream to Running once lowWater frames
// are buffered, or once everything left in its source region is buffered.
func (s *Stream) Promote(lowWater uint64) bool {
	if s.Buffered() < lowWater && s.SrcReadFrame() < s.SrcEndFrame() {
		return false
	}
	return s.CompareAndSwapState(types.StatePriming, types.StateRunning) ||
		s.CompareAndSwapState(types.StateStarved, types.StateRunning)
}

// Buffered returns the number of frames ready for the audio thread at the
// current position.
func (s *Stream) Buffered() uint64 {
	e := s.epoch.Load()
	switch {
	case s.readEpoch.Load() == e:
		return s.ring.AvailableRead()
	case s.writeEpoch.Load() == e:
		return s.ring.AvailableSince(s.flushMark.Load())
	}
	return 0
}

// Status returns a snapshot for diagnostics.
func (s *Stream) Status() types.StreamStatus {
	return types.StreamStatus{
		ID:            s.p.ID,
		TrackID:       s.p.TrackID,
		AssetID:       s.p.AssetID,
		State:         s.State(),
		TLStartFrame:  s.p.TLStartFrame,
		TLEndFrame:    s.p.TLEndFrame,
		SrcReadFrame:  s.SrcReadFrame(),
		SrcPlayFrame:  s.SrcPlayFrame(),
		BufferedFrame: s.Buffered(),
		RingCapacity:  s.ring.Capacity(),
	}
}
