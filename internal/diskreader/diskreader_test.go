package diskreader

import (
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/drgolem/diskstream/internal/catalog"
	"github.com/drgolem/diskstream/internal/stream"
	"github.com/drgolem/diskstream/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeResolver struct {
	mu      sync.Mutex
	streams map[uint32]*stream.Stream
	assets  map[uint32]catalog.AssetInfo
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{
		streams: make(map[uint32]*stream.Stream),
		assets:  make(map[uint32]catalog.AssetInfo),
	}
}

func (r *fakeResolver) Stream(id uint32) (*stream.Stream, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.streams[id]
	return s, ok
}

func (r *fakeResolver) Asset(id uint32) (catalog.AssetInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.assets[id]
	return a, ok
}

// funcSource adapts a function to FrameSource.
type funcSource func(asset catalog.AssetInfo, srcFrame int64, dst []float32) (int, error)

func (f funcSource) ReadFrames(asset catalog.AssetInfo, srcFrame int64, dst []float32, _ *[]byte) (int, error) {
	return f(asset, srcFrame, dst)
}

// rampSource produces sample value == source frame index.
var rampSource = funcSource(func(asset catalog.AssetInfo, srcFrame int64, dst []float32) (int, error) {
	ch := asset.Format.Channels
	n := len(dst) / ch
	for i := range n {
		for c := range ch {
			dst[i*ch+c] = float32(srcFrame + int64(i))
		}
	}
	return n, nil
})

func monoAsset(id uint32) catalog.AssetInfo {
	return catalog.AssetInfo{
		ID:          id,
		Path:        "mem",
		TotalFrames: 1 << 20,
		Format:      types.AudioFormat{SampleRate: 48000, Channels: 1, BytesPerSample: 4},
	}
}

func addStream(r *fakeResolver, id uint32) *stream.Stream {
	s := stream.New(stream.Params{ID: id, AssetID: 1, TLStartFrame: 0, TLEndFrame: 1 << 20, Channels: 1}, 8192)
	s.Activate()
	r.mu.Lock()
	r.streams[id] = s
	r.assets[1] = monoAsset(1)
	r.mu.Unlock()
	return s
}

func waitIdle(t *testing.T, p *Pool) {
	t.Helper()
	require.Eventually(t, p.Idle, 2*time.Second, time.Millisecond)
}

func TestPriorityFormula(t *testing.T) {
	// available 100, low 1000, high 4000, distance 6400
	got := Priority(100, 1000, 4000, 6400, 0)
	want := int64(900*1000 + 3900*10 - 100)
	assert.Equal(t, want, got)

	// full buffer: no urgency and negative need
	assert.Less(t, Priority(5000, 1000, 4000, 0, 0), int64(0))

	// distance is symmetric
	assert.Equal(t, Priority(10, 100, 200, 0, 6400), Priority(10, 100, 200, 12800, 6400))
}

func TestPriorityOrdering(t *testing.T) {
	const low, high = 4096, 16384

	// identical need, different urgency
	urgent := Job{StreamID: 1, Priority: Priority(0, low, high, 0, 0)}
	calm := Job{StreamID: 2, Priority: Priority(0, 0, high, 0, 0)}
	jobs := []Job{calm, urgent}
	SortJobs(jobs)
	assert.Equal(t, uint32(1), jobs[0].StreamID, "higher urgency first")

	// equal urgency and need, different distance
	near := Job{StreamID: 3, Priority: Priority(1000, low, high, 48000, 0)}
	far := Job{StreamID: 4, Priority: Priority(1000, low, high, 480000, 0)}
	jobs = []Job{far, near}
	SortJobs(jobs)
	assert.Equal(t, uint32(3), jobs[0].StreamID, "smaller distance first")
}

func TestSortJobsStable(t *testing.T) {
	jobs := []Job{{StreamID: 1, Priority: 5}, {StreamID: 2, Priority: 9}, {StreamID: 3, Priority: 5}}
	SortJobs(jobs)
	assert.Equal(t, []uint32{2, 1, 3}, []uint32{jobs[0].StreamID, jobs[1].StreamID, jobs[2].StreamID})
}

func TestPoolFillsRingBuffer(t *testing.T) {
	r := newFakeResolver()
	s := addStream(r, 1)

	p := NewPool(Options{Workers: 2, ChunkFrames: 1024, LowWater: 512}, r, rampSource)
	defer p.Close()

	accepted := p.Submit(Job{StreamID: 1, AssetID: 1, SrcFrame: 0, Frames: 1024, Epoch: s.Epoch()})
	require.Equal(t, 1, accepted)
	waitIdle(t, p)

	assert.Equal(t, uint64(1024), s.Buffered())
	assert.Equal(t, int64(1024), s.SrcReadFrame())
	assert.Equal(t, types.StateRunning, s.State())

	out := make([]float32, 4)
	s.Ring().Read(out, 4)
	assert.Equal(t, []float32{0, 1, 2, 3}, out)

	st := p.Stats()
	assert.Equal(t, uint64(1), st.Completed)
	assert.Equal(t, uint64(1024), st.FramesRead)
}

func TestPoolAdvancesByFramesWritten(t *testing.T) {
	r := newFakeResolver()
	s := addStream(r, 1)

	// leave room for only 100 more frames
	filler := make([]float32, 8192)
	room := int(s.Ring().AvailableWrite())
	s.Ring().Write(filler, room-100)
	s.AdvanceRead(int64(room - 100))

	p := NewPool(Options{Workers: 1, ChunkFrames: 4096}, r, rampSource)
	defer p.Close()

	p.Submit(Job{StreamID: 1, AssetID: 1, SrcFrame: s.SrcReadFrame(), Frames: 4096, Epoch: s.Epoch()})
	waitIdle(t, p)

	assert.Equal(t, int64(room), s.SrcReadFrame())
	assert.Equal(t, uint64(0), s.Ring().AvailableWrite())
}

func TestSeekDuringWriteNeverPlaysStaleFrames(t *testing.T) {
	r := newFakeResolver()
	s := addStream(r, 1)

	p := NewPool(Options{Workers: 1, ChunkFrames: 1024, LowWater: 512}, r, rampSource)
	defer p.Close()

	var seeked atomic.Bool
	p.beforeWrite = func(st *stream.Stream) {
		if seeked.CompareAndSwap(false, true) {
			st.Seek(5000)
		}
	}

	p.Submit(Job{StreamID: 1, AssetID: 1, SrcFrame: 0, Frames: 1024, Epoch: s.Epoch()})
	waitIdle(t, p)
	require.True(t, seeked.Load())

	// the write from the old position landed, but is not playable
	assert.Equal(t, uint64(0), s.Buffered())
	assert.Equal(t, int64(5000), s.SrcReadFrame())
	assert.Equal(t, int64(5000), s.SrcPlayFrame())
	out := []float32{9, 9, 9, 9}
	assert.Equal(t, 0, s.Read(out, 4))
	assert.Equal(t, []float32{0, 0, 0, 0}, out)

	p.Submit(Job{StreamID: 1, AssetID: 1, SrcFrame: s.SrcReadFrame(), Frames: 1024, Epoch: s.Epoch()})
	waitIdle(t, p)

	assert.Equal(t, uint64(1024), s.Buffered())
	assert.Equal(t, int64(6024), s.SrcReadFrame())
	assert.Equal(t, types.StateRunning, s.State())

	require.Equal(t, 4, s.Read(out, 4))
	assert.Equal(t, []float32{5000, 5001, 5002, 5003}, out)
	assert.Equal(t, uint64(1020), s.Buffered())
}

func TestPoolDropsJobs(t *testing.T) {
	r := newFakeResolver()
	s := addStream(r, 1)

	failing := funcSource(func(catalog.AssetInfo, int64, []float32) (int, error) {
		return 0, errors.New("disk on fire")
	})
	p := NewPool(Options{Workers: 1}, r, failing)
	defer p.Close()

	p.Submit(Job{StreamID: 1, AssetID: 1, SrcFrame: 0, Frames: 128, Epoch: s.Epoch()})
	waitIdle(t, p)
	p.Submit(Job{StreamID: 99, AssetID: 1, SrcFrame: 0, Frames: 128})
	waitIdle(t, p)
	p.Submit(Job{StreamID: 1, AssetID: 1, SrcFrame: 0, Frames: 128, Epoch: s.Epoch() + 1})
	waitIdle(t, p)

	st := p.Stats()
	assert.Equal(t, uint64(3), st.Dropped)
	assert.Equal(t, uint64(0), st.Completed)
	assert.Equal(t, uint64(0), s.Buffered())
	assert.Equal(t, types.StatePriming, s.State())
}

func TestPoolServesHighestPriorityFirst(t *testing.T) {
	r := newFakeResolver()
	for id := uint32(1); id <= 4; id++ {
		addStream(r, id)
	}

	release := make(chan struct{})
	var mu sync.Mutex
	var order []int64
	gated := funcSource(func(asset catalog.AssetInfo, srcFrame int64, dst []float32) (int, error) {
		<-release
		mu.Lock()
		order = append(order, int64(len(dst)))
		mu.Unlock()
		return rampSource(asset, srcFrame, dst)
	})

	p := NewPool(Options{Workers: 1, ChunkFrames: 4096}, r, gated)
	defer p.Close()

	// occupy the only worker
	p.Submit(Job{StreamID: 1, AssetID: 1, Frames: 1, Priority: 0})
	require.Eventually(t, func() bool { return p.Pending() == 0 }, time.Second, time.Millisecond)

	// frame counts double as labels
	p.Submit(
		Job{StreamID: 2, AssetID: 1, Frames: 2, Priority: 10},
		Job{StreamID: 3, AssetID: 1, Frames: 3, Priority: 30},
		Job{StreamID: 4, AssetID: 1, Frames: 4, Priority: 20},
	)
	close(release)
	waitIdle(t, p)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int64{1, 3, 4, 2}, order)
}

func TestPoolNeverRunsTwoJobsForOneStream(t *testing.T) {
	r := newFakeResolver()
	s := addStream(r, 1)

	release := make(chan struct{})
	gated := funcSource(func(asset catalog.AssetInfo, srcFrame int64, dst []float32) (int, error) {
		<-release
		return rampSource(asset, srcFrame, dst)
	})

	p := NewPool(Options{Workers: 4}, r, gated)
	defer p.Close()

	assert.Equal(t, 1, p.Submit(Job{StreamID: 1, AssetID: 1, Frames: 64, Epoch: s.Epoch()}))
	require.Eventually(t, func() bool { return p.Stats().InFlight == 1 }, time.Second, time.Millisecond)

	assert.Equal(t, 0, p.Submit(Job{StreamID: 1, AssetID: 1, Frames: 64, Epoch: s.Epoch()}), "stream busy")
	close(release)
	waitIdle(t, p)
}

func TestSubmitReplacesQueuedJob(t *testing.T) {
	r := newFakeResolver()
	addStream(r, 1)
	addStream(r, 2)

	release := make(chan struct{})
	gated := funcSource(func(asset catalog.AssetInfo, srcFrame int64, dst []float32) (int, error) {
		<-release
		return rampSource(asset, srcFrame, dst)
	})
	p := NewPool(Options{Workers: 1}, r, gated)
	defer p.Close()

	p.Submit(Job{StreamID: 1, AssetID: 1, Frames: 8})
	require.Eventually(t, func() bool { return p.Pending() == 0 }, time.Second, time.Millisecond)

	p.Submit(Job{StreamID: 2, AssetID: 1, Frames: 8})
	p.Submit(Job{StreamID: 2, AssetID: 1, Frames: 16})
	assert.Equal(t, 1, p.Pending())

	close(release)
	waitIdle(t, p)
}

func TestCloseIsIdempotentAndRejectsWork(t *testing.T) {
	p := NewPool(Options{Workers: 3}, newFakeResolver(), rampSource)
	p.Close()
	p.Close()

	assert.Equal(t, 0, p.Submit(Job{StreamID: 1, Frames: 10}))
}

func writeFloatAsset(t *testing.T, channels int, frames int) catalog.AssetInfo {
	t.Helper()
	samples := make([]float32, frames*channels)
	for i := range samples {
		samples[i] = float32(i)
	}
	path := filepath.Join(t.TempDir(), "asset.wav")
	require.NoError(t, catalog.WriteFloatWAV(path, 48000, channels, samples))

	info, err := catalog.Probe(path)
	require.NoError(t, err)
	return info
}

func TestFileSourceReadsAtOffset(t *testing.T) {
	info := writeFloatAsset(t, 2, 100)

	dst := make([]float32, 8)
	var scratch []byte
	n, err := FileSource{}.ReadFrames(info, 10, dst, &scratch)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []float32{20, 21, 22, 23, 24, 25, 26, 27}, dst)
}

func TestFileSourceStopsAtEndOfAsset(t *testing.T) {
	info := writeFloatAsset(t, 1, 10)

	dst := make([]float32, 8)
	var scratch []byte
	n, err := FileSource{}.ReadFrames(info, 7, dst, &scratch)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = FileSource{}.ReadFrames(info, 10, dst, &scratch)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestFileSourceMissingFile(t *testing.T) {
	info := monoAsset(1)
	info.Path = filepath.Join(t.TempDir(), "gone.wav")

	var scratch []byte
	_, err := FileSource{}.ReadFrames(info, 0, make([]float32, 16), &scratch)
	assert.Error(t, err)
}

func TestDecodeSamples(t *testing.T) {
	pcm16 := []byte{0x00, 0x40, 0x00, 0xC0} // 16384, -16384
	dst := make([]float32, 2)
	require.NoError(t, decodeSamples(dst, pcm16, 2))
	assert.Equal(t, []float32{0.5, -0.5}, dst)

	pcm24 := []byte{0x00, 0x00, 0x40, 0x00, 0x00, 0xC0}
	require.NoError(t, decodeSamples(dst, pcm24, 3))
	assert.Equal(t, []float32{0.5, -0.5}, dst)

	assert.ErrorIs(t, decodeSamples(dst, make([]byte, 2), 1), ErrUnsupportedSampleSize)
}
