package ogg

import "testing"

func TestNewDecoder(t *testing.T) {
	if d := NewDecoder(); d == nil {
		t.Fatal("NewDecoder returned nil")
	}
}

func TestDecoderGetFormatBeforeOpen(t *testing.T) {
	d := NewDecoder()
	rate, channels, bps := d.GetFormat()
	if rate != 0 || channels != 0 {
		t.Errorf("expected zero rate/channels before Open, got rate=%d channels=%d", rate, channels)
	}
	if bps != 16 {
		t.Errorf("expected fixed 16 bits per sample, got %d", bps)
	}
}

func TestDecodeSamplesWithoutOpen(t *testing.T) {
	d := NewDecoder()
	buf := make([]byte, 1024)
	if _, err := d.DecodeSamples(len(buf), buf); err == nil {
		t.Error("expected error decoding before Open")
	}
}

func TestDecoderCloseIdempotent(t *testing.T) {
	d := NewDecoder()
	if err := d.Close(); err != nil {
		t.Errorf("Close on unopened decoder failed: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

func TestOpenMissingFile(t *testing.T) {
	d := NewDecoder()
	if err := d.Open("/nonexistent/track.ogg"); err == nil {
		t.Error("expected error opening a missing file")
	}
}
