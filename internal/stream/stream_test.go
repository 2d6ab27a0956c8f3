package stream

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drgolem/diskstream/pkg/types"
)

func newTestStream() *Stream {
	return New(Params{
		ID:            7,
		TrackID:       2,
		AssetID:       3,
		TLStartFrame:  1000,
		TLEndFrame:    5000,
		SrcStartFrame: 200,
		Gain:          0.5,
		Channels:      1,
	}, 1024)
}

func TestNewStreamIsStopped(t *testing.T) {
	s := newTestStream()

	assert.Equal(t, types.StateStopped, s.State())
	assert.Equal(t, int64(200), s.SrcReadFrame())
	assert.Equal(t, int64(200), s.SrcPlayFrame())
	assert.Equal(t, uint64(0), s.Buffered())
	assert.Equal(t, uint64(1024), s.Ring().Capacity())
}

func TestIsActiveAt(t *testing.T) {
	s := newTestStream()

	tests := []struct {
		frame int64
		want  bool
	}{
		{999, false},
		{1000, true},
		{4999, true},
		{5000, false},
	}
	for _, tt := range tests {
		if got := s.IsActiveAt(tt.frame); got != tt.want {
			t.Errorf("IsActiveAt(%d): got %v, want %v", tt.frame, got, tt.want)
		}
	}

	assert.True(t, s.Overlaps(500, 1001))
	assert.False(t, s.Overlaps(500, 1000))
	assert.False(t, s.Overlaps(5000, 6000))
}

func TestTLToSrcFrame(t *testing.T) {
	s := newTestStream()

	assert.Equal(t, int64(200), s.TLToSrcFrame(1000))
	assert.Equal(t, int64(1200), s.TLToSrcFrame(2000))
	assert.Equal(t, int64(4200), s.SrcEndFrame())
}

func TestStateMachine(t *testing.T) {
	s := newTestStream()
	const lowWater = 256

	require.True(t, s.Activate())
	assert.Equal(t, types.StatePriming, s.State())
	assert.False(t, s.Activate(), "Activate only applies to Stopped streams")

	// starvation is not reported while priming
	assert.False(t, s.MarkStarved())

	buf := make([]float32, 512)
	s.Ring().Write(buf, 100)
	assert.False(t, s.Promote(lowWater))
	assert.Equal(t, types.StatePriming, s.State())

	s.Ring().Write(buf, 200)
	require.True(t, s.Promote(lowWater))
	assert.Equal(t, types.StateRunning, s.State())

	s.Ring().Read(buf, 300)
	require.True(t, s.MarkStarved())
	assert.Equal(t, types.StateStarved, s.State())
	assert.False(t, s.MarkStarved())

	s.Ring().Write(buf, 300)
	require.True(t, s.Promote(lowWater))
	assert.Equal(t, types.StateRunning, s.State())
}

func TestPromoteAtEndOfSource(t *testing.T) {
	s := New(Params{TLStartFrame: 0, TLEndFrame: 100, Channels: 1}, 1024)
	s.Activate()

	s.Ring().Write(make([]float32, 100), 100)
	s.AdvanceRead(100)

	assert.True(t, s.Promote(512), "fully buffered short stream must run")
}

func TestSeekResetsFromAnyState(t *testing.T) {
	states := []types.StreamState{types.StateStopped, types.StatePriming, types.StateRunning, types.StateStarved}

	for _, st := range states {
		s := newTestStream()
		s.SetState(st)
		s.Ring().Write(make([]float32, 64), 64)
		s.AdvanceRead(64)
		epoch := s.Epoch()

		s.Seek(3000)

		assert.Equal(t, types.StatePriming, s.State(), "from %v", st)
		assert.Equal(t, uint64(0), s.Buffered(), "from %v", st)
		assert.Equal(t, int64(2200), s.SrcReadFrame(), "from %v", st)
		assert.Equal(t, int64(2200), s.SrcPlayFrame(), "from %v", st)
		assert.NotEqual(t, epoch, s.Epoch(), "from %v", st)
	}
}

func TestSeekSkipsFramesWrittenBeforeSync(t *testing.T) {
	s := newTestStream()
	s.Activate()
	s.Ring().Write([]float32{1, 1}, 2)
	s.AdvanceRead(2)

	s.Seek(3000)

	// a write still in flight from the old position
	s.Ring().Write([]float32{2}, 1)
	s.AdvanceRead(1)

	out := make([]float32, 1)
	assert.Equal(t, 0, s.Read(out, 1))
	assert.Equal(t, int64(2200), s.SrcReadFrame())

	epoch, ok := s.SyncReader()
	require.True(t, ok)
	assert.Equal(t, s.Epoch(), epoch)
	assert.Equal(t, uint64(0), s.Buffered())

	s.Ring().Write([]float32{7}, 1)
	s.AdvanceRead(1)
	assert.Equal(t, int64(2201), s.SrcReadFrame())
	assert.Equal(t, uint64(1), s.Buffered())

	require.Equal(t, 1, s.Read(out, 1))
	assert.Equal(t, []float32{7}, out)
	assert.Equal(t, uint64(0), s.Buffered())
}

func TestRepositionFromSeveralGoroutines(t *testing.T) {
	s := newTestStream()

	var wg sync.WaitGroup
	for g := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 500 {
				s.Seek(int64(1000 + g*100 + i%50))
			}
		}()
	}
	wg.Wait()

	assert.Zero(t, s.Epoch()%2, "no reposition left half published")
	assert.Equal(t, uint64(2*4*500), s.Epoch())
	_, ok := s.SyncReader()
	assert.True(t, ok)
}

func TestSeekClampsToWindow(t *testing.T) {
	s := newTestStream()

	s.Seek(0)
	assert.Equal(t, int64(200), s.SrcReadFrame())

	s.Seek(99999)
	assert.Equal(t, s.SrcEndFrame(), s.SrcReadFrame())
}

func TestStatus(t *testing.T) {
	s := newTestStream()
	s.Activate()

	st := s.Status()
	assert.Equal(t, uint32(7), st.ID)
	assert.Equal(t, uint32(2), st.TrackID)
	assert.Equal(t, uint32(3), st.AssetID)
	assert.Equal(t, types.StatePriming, st.State)
	assert.Equal(t, "priming", st.State.String())
}

func TestActivateAt(t *testing.T) {
	s := newTestStream()
	s.Ring().Write(make([]float32, 10), 10)
	epoch := s.Epoch()

	require.True(t, s.ActivateAt(3000))
	assert.Equal(t, types.StatePriming, s.State())
	assert.Equal(t, uint64(0), s.Buffered())
	assert.Equal(t, int64(2200), s.SrcReadFrame())
	assert.Equal(t, int64(2200), s.SrcPlayFrame())
	assert.Greater(t, s.Epoch(), epoch)

	assert.False(t, s.ActivateAt(1000), "already active")
	assert.Equal(t, int64(2200), s.SrcReadFrame())
}
