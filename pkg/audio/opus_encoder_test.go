package audio

import (
	"errors"
	"testing"
)

func TestOpusSupportsRate(t *testing.T) {
	for rate, want := range map[int]bool{8000: true, 16000: true, 48000: true, 22050: false, 44100: false} {
		if got := OpusSupportsRate(rate); got != want {
			t.Fatalf("OpusSupportsRate(%d)=%v, want %v", rate, got, want)
		}
	}
}

func TestNewOpusEncoderRejectsInvalidSettings(t *testing.T) {
	if _, err := NewOpusEncoder(22050, 20, OpusOptions{}); !errors.Is(err, ErrUnsupportedOpusRate) {
		t.Fatalf("err=%v, want ErrUnsupportedOpusRate", err)
	}
	if _, err := NewOpusEncoder(16000, 25, OpusOptions{}); err == nil {
		t.Fatal("25ms frame err=nil, want non-nil")
	}
}

func TestOpusEncodeChunkCarriesRemainder(t *testing.T) {
	enc, err := AcquireOpusEncoder(16000, 20, OpusOptions{})
	if err != nil {
		t.Fatalf("AcquireOpusEncoder error: %v", err)
	}
	defer ReleaseOpusEncoder(enc)

	if enc.FrameSize() != 320 || enc.FrameDuration() != 20 {
		t.Fatalf("frame size=%d duration=%d", enc.FrameSize(), enc.FrameDuration())
	}
	samples := make([]int16, DefaultBufferCapacity)
	for i := range samples {
		samples[i] = int16((i % 64) * 256)
	}
	packets, err := enc.EncodeChunk(samples)
	if err != nil {
		t.Fatalf("EncodeChunk error: %v", err)
	}
	if len(packets) != 6 || enc.Pending() != 128 {
		t.Fatalf("packets=%d pending=%d, want 6 and 128", len(packets), enc.Pending())
	}
	for i, p := range packets {
		if len(p) == 0 {
			t.Fatalf("packet %d empty", i)
		}
	}

	// 128 held over + 2048 = 6 frames + 256.
	packets, err = enc.EncodeChunk(samples)
	if err != nil {
		t.Fatalf("second EncodeChunk error: %v", err)
	}
	if len(packets) != 6 || enc.Pending() != 256 {
		t.Fatalf("second packets=%d pending=%d, want 6 and 256", len(packets), enc.Pending())
	}

	last, err := enc.Flush()
	if err != nil {
		t.Fatalf("Flush error: %v", err)
	}
	if len(last) == 0 || enc.Pending() != 0 {
		t.Fatalf("flush packet=%d bytes pending=%d", len(last), enc.Pending())
	}
	if last, err = enc.Flush(); err != nil || last != nil {
		t.Fatalf("empty Flush=%v, %v, want nil", last, err)
	}
}

func TestOpusEncodeChunkShorterThanFrame(t *testing.T) {
	enc, err := NewOpusEncoder(8000, 20, OpusOptions{})
	if err != nil {
		t.Fatalf("NewOpusEncoder error: %v", err)
	}
	for i := 0; i < 3; i++ {
		packets, err := enc.EncodeChunk(make([]int16, 50))
		if err != nil || len(packets) != 0 {
			t.Fatalf("call %d packets=%d err=%v, want none", i, len(packets), err)
		}
	}
	packets, err := enc.EncodeChunk(make([]int16, 20))
	if err != nil || len(packets) != 1 || enc.Pending() != 10 {
		t.Fatalf("packets=%d pending=%d err=%v, want 1 and 10", len(packets), enc.Pending(), err)
	}
}

func TestAcquireOpusEncoderKeysPoolByOptions(t *testing.T) {
	on := true
	dtx := OpusOptions{DTX: &on, Bitrate: 12000}
	enc, err := AcquireOpusEncoder(12000, 20, dtx)
	if err != nil {
		t.Fatalf("AcquireOpusEncoder error: %v", err)
	}
	if _, err := enc.EncodeChunk(make([]int16, 100)); err != nil {
		t.Fatalf("EncodeChunk error: %v", err)
	}
	ReleaseOpusEncoder(enc)

	plain, err := AcquireOpusEncoder(12000, 20, OpusOptions{})
	if err != nil {
		t.Fatalf("AcquireOpusEncoder error: %v", err)
	}
	defer ReleaseOpusEncoder(plain)
	if plain == enc {
		t.Fatal("encoder with different options was reused")
	}
	if plain.key.options != (OpusOptions{}).key() {
		t.Fatalf("options key=%+v, want defaults", plain.key.options)
	}
	if enc.Pending() != 0 {
		t.Fatalf("released encoder pending=%d, want 0", enc.Pending())
	}
}

func TestOpusOptionsKey(t *testing.T) {
	on, off := true, false
	if (OpusOptions{VBR: &on}).key() == (OpusOptions{VBR: &off}).key() {
		t.Fatal("VBR true and false share a key")
	}
	if (OpusOptions{}).key() == (OpusOptions{VBR: &off}).key() {
		t.Fatal("unset and false VBR share a key")
	}
	if (OpusOptions{MaxBandwidth: " WB"}).key() != (OpusOptions{MaxBandwidth: "wb"}).key() {
		t.Fatal("bandwidth key is not normalized")
	}
	if (OpusOptions{Bitrate: -5}).key() != (OpusOptions{}).key() {
		t.Fatal("negative bitrate key differs from default")
	}
}

func TestOpusEncoderClosed(t *testing.T) {
	enc, err := NewOpusEncoder(8000, 10, OpusOptions{})
	if err != nil {
		t.Fatalf("NewOpusEncoder error: %v", err)
	}
	_ = enc.Close()
	if _, err := enc.EncodeChunk(make([]int16, 80)); err == nil {
		t.Fatal("EncodeChunk after Close err=nil, want non-nil")
	}
}
