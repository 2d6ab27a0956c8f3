package diskreader

import (
	"slices"
)

// Job is a request to read Frames source frames of an asset, starting at
// SrcFrame, into the ring buffer of a stream.
type Job struct {
	StreamID uint32
	AssetID  uint32
	SrcFrame int64
	Frames   int
	Priority int64
	Epoch    uint64 // stream epoch when the job was scheduled
}

// Priority scores how urgently a stream needs data:
//
//	urgency*1000 + need*10 - distance/64
//
// urgency = max(0, lowWater-available) dominates so that streams about to
// underrun are served first, need = highWater-available prefers the emptiest
// buffers, and distance = |tlStart-tlNow| mildly prefers streams that play soon.
func Priority(available, lowWater, highWater uint64, tlStart, tlNow int64) int64 {
	avail := int64(available)
	urgency := max(0, int64(lowWater)-avail)
	need := int64(highWater) - avail
	distance := tlStart - tlNow
	if distance < 0 {
		distance = -distance
	}
	return urgency*1000 + need*10 - distance/64
}

// SortJobs orders jobs by priority, highest first. Jobs with equal priority
// keep their relative order.
func SortJobs(jobs []Job) {
	slices.SortStableFunc(jobs, func(a, b Job) int {
		switch {
		case a.Priority > b.Priority:
			return -1
		case a.Priority < b.Priority:
			return 1
		}
		return 0
	})
}
