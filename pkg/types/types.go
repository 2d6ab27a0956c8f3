package types

import "time"

// AudioDecoder is the common interface for all audio decoders (MP3, FLAC, WAV, ...).
// Decoders are used only when importing assets; the streaming core reads
// pre-converted sample data directly from disk.
type AudioDecoder interface {
	// Open opens an audio file for decoding
	Open(fileName string) error

	// Close closes the decoder and releases resources
	Close() error

	// GetFormat returns the audio format information
	// Returns: sample rate (Hz), channels (1=mono, 2=stereo), bits per sample (8/16/24/32)
	GetFormat() (rate, channels, bitsPerSample int)

	// DecodeSamples decodes audio samples into the provided buffer
	// Parameters:
	//   samples: number of samples to decode (not bytes!)
	//   audio: buffer to write decoded audio data
	// Returns: number of samples actually decoded, error if decoding failed
	// Note: Buffer must be large enough: samples * channels * (bitsPerSample/8) bytes
	DecodeSamples(samples int, audio []byte) (int, error)
}

// AudioFormat describes the sample layout of an asset or stream.
// It is immutable once an asset is registered.
type AudioFormat struct {
	SampleRate     int // Hz
	Channels       int
	BytesPerSample int // 2 = int16 PCM, 3 = int24 PCM, 4 = float32
}

// FramesToDuration converts a frame count at sampleRate to a duration
// without overflowing for any realistic session length.
func FramesToDuration(frames int64, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	rate := int64(sampleRate)
	return time.Duration(frames/rate)*time.Second +
		time.Duration(frames%rate)*time.Second/time.Duration(rate)
}

// FrameSize returns the size in bytes of one interleaved frame.
func (f AudioFormat) FrameSize() int {
	return f.Channels * f.BytesPerSample
}

// StreamState is the lifecycle state of a playback stream.
type StreamState uint32

const (
	// StateStopped: inactive, no disk reads are scheduled.
	StateStopped StreamState = iota
	// StatePriming: activated, buffer below the playable threshold.
	StatePriming
	// StateRunning: buffer healthy, frames flow to the output.
	StateRunning
	// StateStarved: buffer ran dry mid-playback.
	StateStarved
)

func (s StreamState) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StatePriming:
		return "priming"
	case StateRunning:
		return "running"
	case StateStarved:
		return "starved"
	default:
		return "unknown"
	}
}

// StreamStatus is a point-in-time snapshot of one stream, for UI and diagnostics.
type StreamStatus struct {
	ID            uint32
	TrackID       uint32
	AssetID       uint32
	State         StreamState
	TLStartFrame  int64
	TLEndFrame    int64
	SrcReadFrame  int64
	SrcPlayFrame  int64
	BufferedFrame uint64 // frames currently readable from the ring buffer
	RingCapacity  uint64
}

// EngineStatus holds real-time metrics of the streaming engine.
type EngineStatus struct {
	EngineID        string
	SampleRate      int
	Running         bool
	Position        int64  // timeline frame of the next block
	Streams         int    // streams in the table
	ActiveStreams   int    // streams not Stopped
	StarvedStreams  int    // streams currently Starved
	Underruns       uint64 // transitions into Starved
	BlocksProcessed uint64
	JobsCompleted   uint64
	JobsDropped     uint64 // jobs abandoned on I/O error or staleness
	PendingJobs     int
	ElapsedTime     time.Duration
}

// PlaybackMonitor is an interface for types that can report engine status.
type PlaybackMonitor interface {
	GetEngineStatus() EngineStatus
}
