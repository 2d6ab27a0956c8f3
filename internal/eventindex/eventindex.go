package eventindex

import (
	"sync/atomic"
)

// DefaultBinSize is the default bin width in timeline frames.
const DefaultBinSize = 2048

// Span is the timeline placement of one stream.
type Span struct {
	StreamID   uint32
	StartFrame int64 // inclusive
	EndFrame   int64 // exclusive
}

type bins struct {
	binSize int64
	ids     [][]uint32
}

// Index is a time-binned lookup from timeline frame to candidate stream ids.
//
// It is rebuilt wholesale from the control thread and published atomically,
// so lookups from the audio thread never take a lock. Between rebuilds the
// index may be stale; callers re-check each candidate against its stream.
type Index struct {
	binSize int64
	current atomic.Pointer[bins]
}

// New creates an empty index with the given bin width.
func New(binSize int64) *Index {
	if binSize <= 0 {
		binSize = DefaultBinSize
	}
	idx := &Index{binSize: binSize}
	idx.current.Store(&bins{binSize: binSize})
	return idx
}

// BinSize returns the bin width in timeline frames.
func (idx *Index) BinSize() int64 {
	return idx.binSize
}

// Rebuild replaces the index with bins covering [0, timelineFrames).
// Every span is added to each bin its interval touches, clamped to the
// timeline; spans starting beyond the timeline are skipped.
func (idx *Index) Rebuild(spans []Span, timelineFrames int64) {
	timelineFrames = max(timelineFrames, 0)
	numBins := timelineFrames/idx.binSize + 1

	next := &bins{
		binSize: idx.binSize,
		ids:     make([][]uint32, numBins),
	}

	for _, sp := range spans {
		if sp.EndFrame <= sp.StartFrame {
			continue
		}
		first := max(sp.StartFrame, 0) / idx.binSize
		last := (sp.EndFrame - 1) / idx.binSize
		if first >= numBins || last < 0 {
			continue
		}
		last = min(last, numBins-1)
		for b := first; b <= last; b++ {
			next.ids[b] = append(next.ids[b], sp.StreamID)
		}
	}

	idx.current.Store(next)
}

// NumBins returns the number of bins in the current index.
func (idx *Index) NumBins() int {
	return len(idx.current.Load().ids)
}

// GetCandidates returns a copy of the stream ids binned at tlFrame.
// It allocates and is meant for non-real-time callers.
func (idx *Index) GetCandidates(tlFrame int64) []uint32 {
	return idx.AppendCandidates(nil, tlFrame)
}

// AppendCandidates appends the stream ids binned at tlFrame to dst and
// returns the extended slice. It does not allocate when dst has room.
func (idx *Index) AppendCandidates(dst []uint32, tlFrame int64) []uint32 {
	b := idx.current.Load()
	if tlFrame < 0 {
		return dst
	}
	bin := tlFrame / b.binSize
	if bin >= int64(len(b.ids)) {
		return dst
	}
	return append(dst, b.ids[bin]...)
}

// AppendCandidatesRange appends the ids binned anywhere in [from, to),
// skipping ids already present in dst.
func (idx *Index) AppendCandidatesRange(dst []uint32, from, to int64) []uint32 {
	b := idx.current.Load()
	if to <= from || to <= 0 {
		return dst
	}
	first := max(from, 0) / b.binSize
	last := min((to-1)/b.binSize, int64(len(b.ids))-1)

	for bin := first; bin <= last; bin++ {
		for _, id := range b.ids[bin] {
			if !contains(dst, id) {
				dst = append(dst, id)
			}
		}
	}
	return dst
}

func contains(ids []uint32, id uint32) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
