package cmd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drgolem/diskstream/pkg/controlqueue"
)

func TestParseClip(t *testing.T) {
	tests := []struct {
		arg  string
		want clipSpec
	}{
		{"drums.wav", clipSpec{Path: "drums.wav"}},
		{"bass.flac@4.5", clipSpec{Path: "bass.flac", Start: 4500 * time.Millisecond}},
		{"vox.mp3#2", clipSpec{Path: "vox.mp3", Track: 2}},
		{"dir/take@1@2#3", clipSpec{Path: "dir/take@1", Start: 2 * time.Second, Track: 3}},
	}
	for _, tt := range tests {
		got, err := parseClip(tt.arg)
		require.NoError(t, err, tt.arg)
		assert.Equal(t, tt.want, got, tt.arg)
	}

	for _, bad := range []string{"x.wav@-1", "x.wav@abc", "x.wav#-1", "@2", "#1"} {
		_, err := parseClip(bad)
		assert.ErrorIs(t, err, errBadClip, bad)
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line string
		want controlqueue.Command
	}{
		{"play", controlqueue.Play()},
		{"stop", controlqueue.Stop()},
		{"seek 1.5", controlqueue.Seek(72000)},
		{"vol 2 0.5", controlqueue.TrackVolume(2, 0.5)},
		{"pan 1 -1", controlqueue.TrackPan(1, -1)},
		{"mute 3", controlqueue.TrackMute(3, true)},
		{"  unmute   3 ", controlqueue.TrackMute(3, false)},
	}
	for _, tt := range tests {
		got, err := parseCommand(tt.line, 48000)
		require.NoError(t, err, tt.line)
		assert.Equal(t, tt.want, got, tt.line)
	}

	for _, bad := range []string{"", "rewind", "play now", "seek", "seek -1", "vol x 1", "pan 1 left", "mute"} {
		_, err := parseCommand(bad, 48000)
		assert.ErrorIs(t, err, errBadCommand, bad)
	}
}

func TestFormatElapsed(t *testing.T) {
	d := time.Hour + 2*time.Minute + 3*time.Second + 45*time.Millisecond
	if got := formatElapsed(d); got != "01:02:03.045" {
		t.Errorf("got %s, want 01:02:03.045", got)
	}
}
