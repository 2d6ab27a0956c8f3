package engine

import (
	"context"
	"time"

	"github.com/drgolem/diskstream/internal/diskreader"
	"github.com/drgolem/diskstream/pkg/types"
)

// SchedulePrefetch runs one scheduling pass and returns the number of disk
// jobs accepted by the pool.
//
// While playing, Stopped streams that start within the prime lookahead are
// activated and streams whose window has passed are stopped. Every other
// active stream below the high-water mark gets a read job for
// min(HighWater-buffered, ReadChunk) frames at its read cursor. Jobs are
// submitted highest priority first.
func (e *Engine) SchedulePrefetch() int {
	pos := e.position.Load()
	running := e.running.Load()
	cfg := e.cfg

	var jobs []diskreader.Job

	e.mu.RLock()
	for id, s := range e.streams {
		switch {
		case s.State() == types.StateStopped:
			if !running || !s.Overlaps(pos, pos+e.lookahead+1) || !s.ActivateAt(pos) {
				continue
			}
		case running && pos >= s.TLEndFrame():
			s.Deactivate()
			continue
		}

		remaining := s.SrcEndFrame() - s.SrcReadFrame()
		if remaining <= 0 {
			s.Promote(cfg.LowWater)
			continue
		}

		avail := s.Buffered()
		if avail >= cfg.HighWater {
			continue
		}
		frames := min(int64(cfg.HighWater-avail), int64(cfg.ReadChunk), remaining)

		jobs = append(jobs, diskreader.Job{
			StreamID: id,
			AssetID:  s.AssetID(),
			SrcFrame: s.SrcReadFrame(),
			Frames:   int(frames),
			Priority: diskreader.Priority(avail, cfg.LowWater, cfg.HighWater, s.TLStartFrame(), pos),
			Epoch:    s.Epoch(),
		})
	}
	e.mu.RUnlock()

	if len(jobs) == 0 {
		return 0
	}
	diskreader.SortJobs(jobs)
	return e.pool.Submit(jobs...)
}

// Prefetch runs SchedulePrefetch every interval until ctx is done.
func (e *Engine) Prefetch(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.SchedulePrefetch()
		}
	}
}

// WaitPrimed runs scheduling passes until every active stream is filled to
// the high-water mark, or holds the rest of its source, and the pool is idle.
func (e *Engine) WaitPrimed(ctx context.Context) error {
	for {
		e.SchedulePrefetch()
		if e.primed() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}

// primed reports whether every active stream has reached its refill
// target, or buffered all it has left to play.
func (e *Engine) primed() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, s := range e.streams {
		if s.State() == types.StateStopped {
			continue
		}
		if s.Buffered() < e.cfg.HighWater && s.SrcReadFrame() < s.SrcEndFrame() {
			return false
		}
	}
	return e.pool.Idle()
}
