package stream

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/drgolem/diskstream/pkg/types"
)

func TestSliceProviderThroughDecoder(t *testing.T) {
	format := types.AudioFormat{SampleRate: 8000, Channels: 2, BytesPerSample: 2}
	data := make([]byte, 10*format.FrameSize())
	for i := range data {
		data[i] = byte(i)
	}

	dec := NewStreamDecoder(context.Background(), &SliceProvider{Format: format, Data: data}, format)
	if err := dec.Open(""); err != nil {
		t.Fatal(err)
	}

	rate, channels, bps := dec.GetFormat()
	if rate != 8000 || channels != 2 || bps != 16 {
		t.Fatalf("GetFormat: got %d/%d/%d", rate, channels, bps)
	}

	buf := make([]byte, 4*format.FrameSize())
	var got []byte
	for {
		n, err := dec.DecodeSamples(4, buf)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, buf[:n*format.FrameSize()]...)
	}

	if len(got) != len(data) {
		t.Fatalf("decoded %d bytes, want %d", len(got), len(data))
	}
	for i := range data {
		if got[i] != data[i] {
			t.Fatalf("byte %d: got %d, want %d", i, got[i], data[i])
		}
	}
}

func TestFormatChangeIsSignalled(t *testing.T) {
	initial := types.AudioFormat{SampleRate: 44100, Channels: 1, BytesPerSample: 2}
	actual := types.AudioFormat{SampleRate: 48000, Channels: 1, BytesPerSample: 2}

	dec := NewStreamDecoder(context.Background(), &SliceProvider{Format: actual, Data: make([]byte, 8)}, initial)
	if _, err := dec.DecodeSamples(4, make([]byte, 8)); err != nil {
		t.Fatal(err)
	}

	select {
	case f := <-dec.FormatChanges():
		if f != actual {
			t.Errorf("got %+v, want %+v", f, actual)
		}
	default:
		t.Fatal("no format change signalled")
	}

	if rate, _, _ := dec.GetFormat(); rate != 48000 {
		t.Errorf("rate: got %d, want 48000", rate)
	}
}
