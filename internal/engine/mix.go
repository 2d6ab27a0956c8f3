package engine

import (
	"math"

	"github.com/drgolem/diskstream/internal/stream"
	"github.com/drgolem/diskstream/pkg/controlqueue"
	"github.com/drgolem/diskstream/pkg/types"
)

// ProcessBlock renders frames of the mix into left and right. It is the
// audio thread's entry point: pending control commands are applied first,
// then the output is cleared and, if playing, every stream that overlaps
// the block is mixed in at its sample offset and the playhead advances.
//
// ProcessBlock does not allocate, block or take locks. Blocks larger than
// Config.MaxBlockFrames are rendered in several passes.
func (e *Engine) ProcessBlock(left, right []float64, frames int) {
	for {
		cmd, ok := e.controls.Pop()
		if !ok {
			break
		}
		e.apply(cmd)
	}

	frames = min(frames, len(left), len(right))
	if frames <= 0 {
		return
	}
	clear(left[:frames])
	clear(right[:frames])

	if !e.running.Load() {
		return
	}

	for off := 0; off < frames; off += e.cfg.MaxBlockFrames {
		n := min(e.cfg.MaxBlockFrames, frames-off)
		e.mix(left[off:off+n], right[off:off+n])
	}
	e.blocks.Add(1)
}

func (e *Engine) mix(left, right []float64) {
	n := int64(len(left))
	tl := e.position.Load()
	table := e.table.Load()

	e.candidates = e.index.AppendCandidatesRange(e.candidates[:0], tl, tl+n)
	for _, id := range e.candidates {
		s, ok := table.byID[id]
		if !ok || !s.Overlaps(tl, tl+n) {
			continue
		}
		state := s.State()
		if state == types.StateStopped {
			continue
		}

		start := max(s.TLStartFrame(), tl)
		end := min(s.TLEndFrame(), tl+n)
		if lag := s.TLToSrcFrame(start) - s.SrcPlayFrame(); lag > 0 {
			e.skip(s, lag)
		}
		off := int(start - tl)
		e.mixStream(s, state, left[off:], right[off:], int(end-start))
	}

	e.position.Add(n)
}

// skip discards up to frames buffered frames of s. A stream that spent
// blocks without data is behind the timeline; dropping what it buffered for
// the frames already passed puts it back in sync.
func (e *Engine) skip(s *stream.Stream, frames int64) {
	ch := s.Channels()
	chunk := int64(len(e.scratch) / ch)
	for frames > 0 {
		n := int(min(frames, chunk, int64(s.Buffered())))
		if n == 0 {
			return
		}
		got := s.Read(e.scratch[:n*ch], n)
		s.AdvancePlay(int64(got))
		frames -= int64(got)
	}
}

// mixStream reads count frames of s and accumulates them into left and
// right. A read that yields nothing while the stream is not Priming is an
// underrun. A short read is zero-filled but leaves the state alone; the
// stream flips once it is actually dry.
func (e *Engine) mixStream(s *stream.Stream, state types.StreamState, left, right []float64, count int) {
	ch := s.Channels()
	buf := e.scratch[:count*ch]

	got := s.Read(buf, count)
	s.AdvancePlay(int64(got))
	if got == 0 && state != types.StatePriming && s.MarkStarved() {
		e.underruns.Add(1)
	}
	if got == 0 {
		return
	}

	gain := float64(s.Gain())
	lg, rg := gain, gain
	if t := s.TrackID(); int(t) < len(e.tracks) {
		tr := &e.tracks[t]
		if tr.muted {
			return
		}
		g := gain * float64(tr.gain)
		lg, rg = g*tr.left, g*tr.right
	}

	switch ch {
	case 1:
		for i := range got {
			v := float64(buf[i])
			left[i] += v * lg
			right[i] += v * rg
		}
	default:
		// only the first two channels reach the stereo bus
		for i := range got {
			left[i] += float64(buf[i*ch]) * lg
			right[i] += float64(buf[i*ch+1]) * rg
		}
	}
}

// apply executes one control command on the audio thread.
func (e *Engine) apply(cmd controlqueue.Command) {
	e.commands.Add(1)

	switch cmd.Kind {
	case controlqueue.KindPlay:
		e.playFromAudioThread()
	case controlqueue.KindStop:
		e.running.Store(false)
		for _, s := range e.table.Load().byID {
			s.Deactivate()
		}
	case controlqueue.KindSeek:
		e.seekStreams(e.table.Load().byID, max(cmd.Frame(), 0))
	case controlqueue.KindTrackVolume:
		if tr := e.track(cmd.Track); tr != nil {
			tr.gain = max(cmd.Float(), 0)
		}
	case controlqueue.KindTrackPan:
		if tr := e.track(cmd.Track); tr != nil {
			tr.pan = min(max(cmd.Float(), -1), 1)
			tr.left, tr.right = panGains(tr.pan)
		}
	case controlqueue.KindTrackMute:
		if tr := e.track(cmd.Track); tr != nil {
			tr.muted = cmd.Bool()
		}
	}
}

func (e *Engine) playFromAudioThread() {
	if e.running.Load() {
		return
	}
	pos := e.position.Load()
	for _, s := range e.table.Load().byID {
		if s.Overlaps(pos, pos+e.lookahead+1) {
			s.ActivateAt(pos)
		}
	}
	e.running.Store(true)
}

func (e *Engine) track(id uint32) *trackMix {
	if int(id) >= len(e.tracks) {
		return nil
	}
	return &e.tracks[id]
}

// panGains is a constant-power pan law scaled so the center position is
// unity on both sides.
func panGains(pan float32) (left, right float64) {
	angle := (float64(pan) + 1) * math.Pi / 4
	return math.Cos(angle) * math.Sqrt2, math.Sin(angle) * math.Sqrt2
}
