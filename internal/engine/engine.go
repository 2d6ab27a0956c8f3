// Package engine mixes many disk-streamed audio clips placed on a timeline.
//
// Three roles share an Engine. One real-time audio goroutine calls
// ProcessBlock; it never blocks, allocates or takes a lock. A control
// goroutine registers assets, creates streams, pushes commands and calls
// SchedulePrefetch periodically. A pool of disk workers fills the per-stream
// ring buffers.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"sync/atomic"

	"github.com/rs/xid"

	"github.com/drgolem/diskstream/internal/catalog"
	"github.com/drgolem/diskstream/internal/diskreader"
	"github.com/drgolem/diskstream/internal/eventindex"
	"github.com/drgolem/diskstream/internal/stream"
	"github.com/drgolem/diskstream/pkg/controlqueue"
	"github.com/drgolem/diskstream/pkg/types"
)

// maxStreamChannels bounds the per-block scratch buffer.
const maxStreamChannels = 8

var (
	ErrInvalidConfig    = errors.New("invalid engine config")
	ErrUnknownAsset     = catalog.ErrUnknownAsset
	ErrUnknownStream    = errors.New("unknown stream")
	ErrInvalidPlacement = errors.New("invalid stream placement")
	ErrFormatMismatch   = errors.New("asset format not playable by engine")
	ErrTooManyStreams   = errors.New("stream table full")
	ErrControlQueueFull = errors.New("control queue full")
)

// StreamParams places an asset on the timeline.
type StreamParams struct {
	TrackID       uint32
	AssetID       uint32
	TLStartFrame  int64 // inclusive
	TLEndFrame    int64 // exclusive
	SrcStartFrame int64 // source frame played at TLStartFrame
	Gain          float32
}

// streamTable is an immutable view of the stream table for the audio
// thread. A new table is published on every insert or removal.
type streamTable struct {
	byID map[uint32]*stream.Stream
}

// trackMix is the per-track mix state, owned by the audio thread.
type trackMix struct {
	gain  float32
	pan   float32
	left  float64 // pan law gains
	right float64
	muted bool
}

// Engine is the disk-streaming playback core.
type Engine struct {
	cfg    Config
	id     string
	log    *slog.Logger
	source diskreader.FrameSource

	catalog  *catalog.Catalog
	index    *eventindex.Index
	pool     *diskreader.Pool
	controls *controlqueue.Queue
	pushMu   sync.Mutex

	mu             sync.RWMutex // stream table
	streams        map[uint32]*stream.Stream
	nextStreamID   uint32
	timelineFrames int64
	table          atomic.Pointer[streamTable]

	running  atomic.Bool
	position atomic.Int64
	closed   atomic.Bool

	lookahead int64 // frames

	// audio thread only
	tracks     []trackMix
	candidates []uint32
	scratch    []float32

	underruns atomic.Uint64
	blocks    atomic.Uint64
	commands  atomic.Uint64 // control commands applied
}

// New creates an engine and starts its disk workers.
func New(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.BinSize <= 0 {
		cfg.BinSize = eventindex.DefaultBinSize
	}
	if cfg.MaxTracks < 1 {
		cfg.MaxTracks = 1
	}

	e := &Engine{
		cfg:          cfg,
		id:           xid.New().String(),
		log:          slog.Default(),
		catalog:      catalog.New(),
		index:        eventindex.New(cfg.BinSize),
		controls:     controlqueue.New(cfg.ControlQueueCapacity),
		streams:      make(map[uint32]*stream.Stream),
		nextStreamID: 1,
		lookahead:    cfg.framesFor(cfg.PrimeLookahead),
		tracks:       make([]trackMix, cfg.MaxTracks),
		candidates:   make([]uint32, 0, cfg.MaxStreams),
		scratch:      make([]float32, cfg.MaxBlockFrames*maxStreamChannels),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.With("engine", e.id)
	for i := range e.tracks {
		e.tracks[i] = trackMix{gain: 1, left: 1, right: 1}
	}
	e.table.Store(&streamTable{byID: map[uint32]*stream.Stream{}})

	e.pool = diskreader.NewPool(diskreader.Options{
		Workers:     cfg.Workers,
		ChunkFrames: cfg.ReadChunk,
		LowWater:    cfg.LowWater,
		Logger:      e.log,
	}, resolver{e}, e.source)

	e.log.Info("Streaming engine created",
		"sample_rate", cfg.SampleRate,
		"workers", cfg.Workers,
		"low_water", cfg.LowWater,
		"high_water", cfg.HighWater,
		"ring_frames", cfg.ringFrames())

	return e, nil
}

// ID returns the engine instance id used in logs.
func (e *Engine) ID() string {
	return e.id
}

// Config returns the configuration the engine was created with.
func (e *Engine) Config() Config {
	return e.cfg
}

// Close stops playback and shuts down the disk workers. The engine must not
// be used afterwards.
func (e *Engine) Close() {
	if e.closed.Swap(true) {
		return
	}
	e.Stop()
	e.pool.Close()
	e.log.Info("Streaming engine closed",
		"blocks", e.blocks.Load(),
		"underruns", e.underruns.Load())
}

// RegisterAsset adds a pre-converted asset to the catalog.
func (e *Engine) RegisterAsset(info catalog.AssetInfo) (uint32, error) {
	f := info.Format
	switch {
	case f.SampleRate != e.cfg.SampleRate:
		return 0, fmt.Errorf("%w: sample rate %d, engine runs at %d", ErrFormatMismatch, f.SampleRate, e.cfg.SampleRate)
	case f.Channels < 1 || f.Channels > maxStreamChannels:
		return 0, fmt.Errorf("%w: %d channels", ErrFormatMismatch, f.Channels)
	case f.BytesPerSample < 2 || f.BytesPerSample > 4:
		return 0, fmt.Errorf("%w: %d bytes per sample", ErrFormatMismatch, f.BytesPerSample)
	case info.TotalFrames <= 0:
		return 0, fmt.Errorf("%w: empty asset", ErrFormatMismatch)
	}

	id := e.catalog.Register(info)
	e.log.Debug("Asset registered",
		"asset", id,
		"path", info.Path,
		"frames", info.TotalFrames,
		"channels", f.Channels)
	return id, nil
}

// RegisterFile probes a WAV file and registers it.
func (e *Engine) RegisterFile(path string) (uint32, error) {
	info, err := catalog.Probe(path)
	if err != nil {
		return 0, err
	}
	return e.RegisterAsset(info)
}

// Asset returns the catalog record of an asset.
func (e *Engine) Asset(id uint32) (catalog.AssetInfo, bool) {
	return e.catalog.Get(id)
}

// RemoveAsset evicts an asset. Streams still referencing it go silent.
func (e *Engine) RemoveAsset(id uint32) bool {
	return e.catalog.Remove(id)
}

// CreateStream places an asset on the timeline and returns the stream id.
// The placement is trimmed so the stream never runs past the end of the
// asset. The stream starts Stopped; SchedulePrefetch or Start activates it
// once playback approaches.
func (e *Engine) CreateStream(p StreamParams) (uint32, error) {
	asset, ok := e.catalog.Get(p.AssetID)
	if !ok {
		return 0, fmt.Errorf("asset %d: %w", p.AssetID, ErrUnknownAsset)
	}
	if p.TLStartFrame < 0 || p.SrcStartFrame < 0 || p.SrcStartFrame >= asset.TotalFrames || p.TLEndFrame <= p.TLStartFrame {
		return 0, fmt.Errorf("%w: tl [%d,%d) src %d of %d",
			ErrInvalidPlacement, p.TLStartFrame, p.TLEndFrame, p.SrcStartFrame, asset.TotalFrames)
	}
	tlEnd := min(p.TLEndFrame, p.TLStartFrame+asset.TotalFrames-p.SrcStartFrame)

	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.streams) >= e.cfg.MaxStreams {
		return 0, ErrTooManyStreams
	}

	id := e.nextStreamID
	e.nextStreamID++

	s := stream.New(stream.Params{
		ID:            id,
		TrackID:       p.TrackID,
		AssetID:       p.AssetID,
		TLStartFrame:  p.TLStartFrame,
		TLEndFrame:    tlEnd,
		SrcStartFrame: p.SrcStartFrame,
		Gain:          p.Gain,
		Channels:      asset.Format.Channels,
	}, e.cfg.ringFrames())

	e.streams[id] = s
	e.publishLocked()

	e.log.Debug("Stream created",
		"stream", id,
		"asset", p.AssetID,
		"track", p.TrackID,
		"tl_start", p.TLStartFrame,
		"tl_end", tlEnd)
	return id, nil
}

// RemoveStream drops a stream. A disk job still reading for it finds no
// stream on completion and discards its data.
func (e *Engine) RemoveStream(id uint32) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.streams[id]
	if !ok {
		return false
	}
	s.Deactivate()
	delete(e.streams, id)
	e.publishLocked()

	e.log.Debug("Stream removed", "stream", id)
	return true
}

// StreamInfo returns a snapshot of one stream.
func (e *Engine) StreamInfo(id uint32) (types.StreamStatus, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	s, ok := e.streams[id]
	if !ok {
		return types.StreamStatus{}, fmt.Errorf("stream %d: %w", id, ErrUnknownStream)
	}
	return s.Status(), nil
}

// Streams returns snapshots of all streams.
func (e *Engine) Streams() []types.StreamStatus {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]types.StreamStatus, 0, len(e.streams))
	for _, s := range e.streams {
		out = append(out, s.Status())
	}
	return out
}

// SetTimelineLength sets the timeline length the index covers. Streams that
// extend past it are indexed up to their own end.
func (e *Engine) SetTimelineLength(frames int64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.timelineFrames = max(frames, 0)
	e.rebuildIndexLocked()
}

// TimelineLength returns the indexed timeline length in frames.
func (e *Engine) TimelineLength() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.indexLengthLocked()
}

// RebuildIndex recomputes the event index from the stream table. The engine
// rebuilds on every stream insert or removal; calling it is only needed to
// refresh diagnostics.
func (e *Engine) RebuildIndex() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rebuildIndexLocked()
}

// publishLocked swaps in a fresh stream table snapshot and rebuilds the
// index. Callers hold e.mu for writing.
func (e *Engine) publishLocked() {
	e.table.Store(&streamTable{byID: maps.Clone(e.streams)})
	e.rebuildIndexLocked()
}

func (e *Engine) rebuildIndexLocked() {
	spans := make([]eventindex.Span, 0, len(e.streams))
	for id, s := range e.streams {
		spans = append(spans, eventindex.Span{
			StreamID:   id,
			StartFrame: s.TLStartFrame(),
			EndFrame:   s.TLEndFrame(),
		})
	}
	e.index.Rebuild(spans, e.indexLengthLocked())
}

func (e *Engine) indexLengthLocked() int64 {
	length := e.timelineFrames
	for _, s := range e.streams {
		length = max(length, s.TLEndFrame())
	}
	return length
}

// Start begins playback at the current position. Streams starting within
// the prime lookahead are activated first so the disk workers can fill
// them.
func (e *Engine) Start() {
	if e.running.Load() {
		return
	}
	pos := e.position.Load()

	e.mu.RLock()
	activated := 0
	for _, s := range e.streams {
		if s.Overlaps(pos, pos+e.lookahead+1) && s.ActivateAt(pos) {
			activated++
		}
	}
	e.mu.RUnlock()

	e.running.Store(true)
	e.log.Info("Playback started", "position", pos, "activated", activated)
}

// Stop halts playback. Every stream is set to Stopped.
func (e *Engine) Stop() {
	wasRunning := e.running.Swap(false)

	e.mu.RLock()
	for _, s := range e.streams {
		s.Deactivate()
	}
	e.mu.RUnlock()

	if wasRunning {
		e.log.Info("Playback stopped", "position", e.position.Load())
	}
}

// Running reports whether the engine is playing.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// Position returns the timeline frame of the next block.
func (e *Engine) Position() int64 {
	return e.position.Load()
}

// Seek moves the playhead. While playing, the seek is queued and applied by
// the audio thread at the start of its next block, so ring buffers are
// never cleared under the consumer. While stopped it is applied at once.
func (e *Engine) Seek(frame int64) error {
	frame = max(frame, 0)
	if e.running.Load() {
		if !e.PushControl(controlqueue.Seek(frame)) {
			return ErrControlQueueFull
		}
		return nil
	}
	e.mu.RLock()
	e.seekStreams(e.streams, frame)
	e.mu.RUnlock()
	return nil
}

// seekStreams repositions every stream that plays at frame or within the
// prime lookahead after it; the rest are stopped and re-activated by the
// scheduler when their turn comes.
func (e *Engine) seekStreams(streams map[uint32]*stream.Stream, frame int64) {
	for _, s := range streams {
		if s.Overlaps(frame, frame+e.lookahead+1) {
			s.Seek(frame)
		} else {
			s.Deactivate()
		}
	}
	e.position.Store(frame)
}

// Controls returns the command queue drained by the audio thread.
func (e *Engine) Controls() *controlqueue.Queue {
	return e.controls
}

// PushControl queues a command for the audio thread. It never blocks and
// reports false when the queue is full; the caller decides whether to
// drop, coalesce or retry. Concurrent callers are serialized.
func (e *Engine) PushControl(cmd controlqueue.Command) bool {
	e.pushMu.Lock()
	defer e.pushMu.Unlock()
	return e.controls.Push(cmd)
}

// GetEngineStatus implements types.PlaybackMonitor.
func (e *Engine) GetEngineStatus() types.EngineStatus {
	st := types.EngineStatus{
		EngineID:        e.id,
		SampleRate:      e.cfg.SampleRate,
		Running:         e.running.Load(),
		Position:        e.position.Load(),
		Underruns:       e.underruns.Load(),
		BlocksProcessed: e.blocks.Load(),
	}
	st.ElapsedTime = types.FramesToDuration(st.Position, e.cfg.SampleRate)

	e.mu.RLock()
	st.Streams = len(e.streams)
	for _, s := range e.streams {
		switch s.State() {
		case types.StateStopped:
		case types.StateStarved:
			st.StarvedStreams++
			st.ActiveStreams++
		default:
			st.ActiveStreams++
		}
	}
	e.mu.RUnlock()

	ps := e.pool.Stats()
	st.JobsCompleted = ps.Completed
	st.JobsDropped = ps.Dropped
	st.PendingJobs = ps.Pending
	return st
}

// resolver gives disk workers lock-free access to streams and assets.
type resolver struct {
	e *Engine
}

func (r resolver) Stream(id uint32) (*stream.Stream, bool) {
	s, ok := r.e.table.Load().byID[id]
	return s, ok
}

func (r resolver) Asset(id uint32) (catalog.AssetInfo, bool) {
	return r.e.catalog.Get(id)
}
