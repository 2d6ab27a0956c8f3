package flac

import (
	"path/filepath"
	"testing"
)

func TestNewDecoder(t *testing.T) {
	decoder := NewDecoder()
	if decoder == nil {
		t.Fatal("NewDecoder returned nil")
	}
	if decoder.outBits != 16 {
		t.Errorf("outBits: got %d, want 16", decoder.outBits)
	}
	if got := NewDecoderWithDepth(24).outBits; got != 24 {
		t.Errorf("outBits: got %d, want 24", got)
	}
}

func TestDecoderGetFormat(t *testing.T) {
	decoder := NewDecoder()

	// Before opening a file, format should be zero values
	rate, channels, bps := decoder.GetFormat()
	if rate != 0 || channels != 0 || bps != 0 {
		t.Errorf("Expected zero values before Open, got rate=%d, channels=%d, bps=%d",
			rate, channels, bps)
	}
	if decoder.Rate() != 0 || decoder.Channels() != 0 || decoder.BitsPerSample() != 0 {
		t.Error("Expected zero helper values before Open")
	}
}

func TestOpenRejectsOutputDepth(t *testing.T) {
	decoder := NewDecoderWithDepth(12)
	if err := decoder.Open(filepath.Join(t.TempDir(), "missing.flac")); err == nil {
		t.Error("Expected error for 12-bit output")
	}
}

func TestDecoderClose(t *testing.T) {
	decoder := NewDecoder()

	// Should be safe to close without opening
	if err := decoder.Close(); err != nil {
		t.Errorf("Close on unopened decoder failed: %v", err)
	}

	// Should be safe to close multiple times
	if err := decoder.Close(); err != nil {
		t.Errorf("Second Close failed: %v", err)
	}
}

func TestDecodeSamplesWithoutOpen(t *testing.T) {
	decoder := NewDecoder()

	buffer := make([]byte, 1024)
	if _, err := decoder.DecodeSamples(len(buffer), buffer); err == nil {
		t.Error("Expected error when decoding without opening file")
	}
}
