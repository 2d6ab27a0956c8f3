package diskreader

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/drgolem/diskstream/internal/catalog"
	"github.com/drgolem/diskstream/internal/stream"
)

// Resolver looks up the targets of a job. Streams and assets may disappear
// while a job is queued or running; the job is then discarded.
type Resolver interface {
	Stream(id uint32) (*stream.Stream, bool)
	Asset(id uint32) (catalog.AssetInfo, bool)
}

// Options configures a Pool.
type Options struct {
	Workers     int
	ChunkFrames int    // largest read a worker performs, in frames
	LowWater    uint64 // buffered frames at which a Priming stream starts Running
	Logger      *slog.Logger
}

// Stats is a snapshot of pool counters.
type Stats struct {
	Completed  uint64 // jobs that wrote into a ring buffer
	Dropped    uint64 // jobs abandoned: I/O error, vanished target or stale position
	FramesRead uint64
	Pending    int
	InFlight   int
}

// Pool runs blocking disk reads on a fixed set of worker goroutines.
//
// Workers take the highest-priority job from a shared queue. The pool never
// runs two jobs for the same stream at once, which keeps each ring buffer
// single-producer.
type Pool struct {
	opts     Options
	resolver Resolver
	source   FrameSource
	log      *slog.Logger

	mu       sync.Mutex
	cond     *sync.Cond
	queue    []Job
	inFlight map[uint32]struct{}

	shutdown  atomic.Bool
	closeOnce sync.Once
	wg        sync.WaitGroup

	completed  atomic.Uint64
	dropped    atomic.Uint64
	framesRead atomic.Uint64

	// beforeWrite runs between the last epoch check and the ring write.
	beforeWrite func(s *stream.Stream)
}

// NewPool starts opts.Workers worker goroutines. A nil source reads from files.
func NewPool(opts Options, resolver Resolver, source FrameSource) *Pool {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.ChunkFrames < 1 {
		opts.ChunkFrames = 8192
	}
	if source == nil {
		source = FileSource{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	p := &Pool{
		opts:     opts,
		resolver: resolver,
		source:   source,
		log:      logger,
		inFlight: make(map[uint32]struct{}),
	}
	p.cond = sync.NewCond(&p.mu)

	for i := 0; i < opts.Workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}

	p.log.Debug("Disk reader pool started",
		"workers", opts.Workers,
		"chunk_frames", opts.ChunkFrames)

	return p
}

// Submit queues jobs and returns how many were accepted. A job for a stream
// that already has one queued replaces it; a job for a stream with a read in
// flight is rejected and will be rescheduled on a later pass.
func (p *Pool) Submit(jobs ...Job) int {
	if p.shutdown.Load() {
		return 0
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	accepted := 0
	for _, job := range jobs {
		if job.Frames <= 0 {
			continue
		}
		if _, busy := p.inFlight[job.StreamID]; busy {
			continue
		}
		if i := p.queuedIndex(job.StreamID); i >= 0 {
			p.queue[i] = job
		} else {
			p.queue = append(p.queue, job)
		}
		accepted++
	}

	if accepted > 0 {
		p.cond.Broadcast()
	}
	return accepted
}

func (p *Pool) queuedIndex(streamID uint32) int {
	for i := range p.queue {
		if p.queue[i].StreamID == streamID {
			return i
		}
	}
	return -1
}

// Pending returns the number of queued jobs.
func (p *Pool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Idle reports whether no job is queued or running.
func (p *Pool) Idle() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue) == 0 && len(p.inFlight) == 0
}

// Stats returns the pool counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	pending, inFlight := len(p.queue), len(p.inFlight)
	p.mu.Unlock()

	return Stats{
		Completed:  p.completed.Load(),
		Dropped:    p.dropped.Load(),
		FramesRead: p.framesRead.Load(),
		Pending:    pending,
		InFlight:   inFlight,
	}
}

// Close signals the workers to exit and waits for them. Queued jobs are
// discarded; reads in progress complete first. Close is safe to call more
// than once.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		p.shutdown.Store(true)

		p.mu.Lock()
		p.queue = nil
		p.cond.Broadcast()
		p.mu.Unlock()

		p.wg.Wait()
		p.log.Debug("Disk reader pool stopped",
			"completed", p.completed.Load(),
			"dropped", p.dropped.Load())
	})
}

// next blocks until a job is available and removes the one with the highest
// priority. Ties go to the job queued first.
func (p *Pool) next() (Job, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.queue) == 0 && !p.shutdown.Load() {
		p.cond.Wait()
	}
	if p.shutdown.Load() {
		return Job{}, false
	}

	best := 0
	for i := 1; i < len(p.queue); i++ {
		if p.queue[i].Priority > p.queue[best].Priority {
			best = i
		}
	}
	job := p.queue[best]
	p.queue = append(p.queue[:best], p.queue[best+1:]...)
	p.inFlight[job.StreamID] = struct{}{}

	return job, true
}

func (p *Pool) done(job Job) {
	p.mu.Lock()
	delete(p.inFlight, job.StreamID)
	p.mu.Unlock()
}

func (p *Pool) worker() {
	defer p.wg.Done()

	samples := make([]float32, p.opts.ChunkFrames*2)
	var scratch []byte

	for {
		job, ok := p.next()
		if !ok {
			return
		}
		p.run(job, &samples, &scratch)
		p.done(job)
	}
}

// run executes one job. Failures are not retried here: the stream stays
// under-filled and the next scheduling pass submits a fresh job.
func (p *Pool) run(job Job, samples *[]float32, scratch *[]byte) {
	s, ok := p.resolver.Stream(job.StreamID)
	if !ok {
		p.drop(job, "stream removed", nil)
		return
	}
	epoch, synced := s.SyncReader()
	if !synced || epoch != job.Epoch || s.SrcReadFrame() != job.SrcFrame {
		p.drop(job, "stale position", nil)
		return
	}
	asset, ok := p.resolver.Asset(job.AssetID)
	if !ok {
		p.drop(job, "asset removed", nil)
		return
	}
	if asset.Format.Channels != s.Channels() {
		p.drop(job, "channel count mismatch", nil)
		return
	}

	frames := min(job.Frames, p.opts.ChunkFrames, int(s.Ring().AvailableWrite()))
	if frames <= 0 {
		p.completed.Add(1)
		return
	}

	need := frames * s.Channels()
	if cap(*samples) < need {
		*samples = make([]float32, need)
	}
	dst := (*samples)[:need]

	n, err := p.source.ReadFrames(asset, job.SrcFrame, dst, scratch)
	if err != nil {
		p.drop(job, "read failed", err)
		return
	}

	// the stream may have been repositioned while the read was blocked
	if s.Epoch() != job.Epoch {
		p.drop(job, "stale position", nil)
		return
	}
	if p.beforeWrite != nil {
		p.beforeWrite(s)
	}

	// a reposition landing here is harmless: the audio thread skips past
	// this write once the next SyncReader marks the ring
	written := s.Ring().Write(dst, n)
	s.AdvanceRead(int64(written))
	s.Promote(p.opts.LowWater)

	p.completed.Add(1)
	p.framesRead.Add(uint64(written))
}

func (p *Pool) drop(job Job, reason string, err error) {
	p.dropped.Add(1)
	level := slog.LevelDebug
	if err != nil {
		level = slog.LevelWarn
	}
	p.log.Log(context.Background(), level, "Disk job dropped",
		"reason", reason,
		"stream", job.StreamID,
		"asset", job.AssetID,
		"src_frame", job.SrcFrame,
		"frames", job.Frames,
		"error", err)
}
