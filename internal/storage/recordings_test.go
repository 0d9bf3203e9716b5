package storage

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"testing"

	"github.com/saker-ai/speech-uplink/pkg/audio"
)

func TestRecorderWritesValidWAV(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore error: %v", err)
	}
	rec, err := store.Create(16000)
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	ctx := context.Background()
	if err := rec.WriteChunk(ctx, audio.Chunk{Samples: []int16{1, -1, 32767}}); err != nil {
		t.Fatalf("WriteChunk error: %v", err)
	}
	if err := rec.WriteChunk(ctx, audio.Chunk{Samples: []int16{-32768}, Partial: true}); err != nil {
		t.Fatalf("WriteChunk error: %v", err)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("second Close error: %v", err)
	}
	if err := rec.WriteChunk(ctx, audio.Chunk{Samples: []int16{1}}); err == nil {
		t.Fatal("WriteChunk after Close error=nil, want non-nil")
	}

	data, err := os.ReadFile(rec.Path())
	if err != nil {
		t.Fatalf("ReadFile error: %v", err)
	}
	if len(data) != wavHeaderSize+8 {
		t.Fatalf("file size=%d, want %d", len(data), wavHeaderSize+8)
	}
	if string(data[0:4]) != "RIFF" || string(data[36:40]) != "data" {
		t.Fatalf("header=%q", data[:44])
	}
	if got := binary.LittleEndian.Uint32(data[40:44]); got != 8 {
		t.Fatalf("data size=%d, want 8", got)
	}
	if got := binary.LittleEndian.Uint32(data[24:28]); got != 16000 {
		t.Fatalf("sample rate=%d, want 16000", got)
	}
	if got := int16(binary.LittleEndian.Uint16(data[50:52])); got != -32768 {
		t.Fatalf("last sample=%d, want -32768", got)
	}
}

func TestRecorderRejectsChunksPastSizeLimit(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore error: %v", err)
	}
	rec, err := store.Create(16000)
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	ctx := context.Background()
	rec.samples = maxWAVDataBytes/2 - 1

	if err := rec.WriteChunk(ctx, audio.Chunk{Samples: []int16{7}}); err != nil {
		t.Fatalf("WriteChunk at limit error: %v", err)
	}
	if err := rec.WriteChunk(ctx, audio.Chunk{Samples: []int16{8}}); !errors.Is(err, ErrRecordingFull) {
		t.Fatalf("WriteChunk past limit err=%v, want ErrRecordingFull", err)
	}
	if got := rec.Samples(); got != maxWAVDataBytes/2 {
		t.Fatalf("Samples=%d, want %d", got, maxWAVDataBytes/2)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	data, err := os.ReadFile(rec.Path())
	if err != nil {
		t.Fatalf("ReadFile error: %v", err)
	}
	riff := binary.LittleEndian.Uint32(data[4:8])
	size := binary.LittleEndian.Uint32(data[40:44])
	if size != uint32(maxWAVDataBytes/2*2) || riff != size+36 {
		t.Fatalf("riff=%d data=%d, want data %d", riff, size, maxWAVDataBytes/2*2)
	}
	if riff < size {
		t.Fatalf("riff size %d wrapped below data size %d", riff, size)
	}
}

func TestStoreListAndDelete(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewStore(dir)
	rec, _ := store.Create(8000)
	_ = rec.WriteChunk(context.Background(), audio.Chunk{Samples: make([]int16, 8000)})
	_ = rec.Close()
	if err := os.WriteFile(dir+"/junk.wav", []byte("nope"), 0o644); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}

	list := store.List()
	if len(list) != 1 {
		t.Fatalf("List=%d entries, want 1", len(list))
	}
	if list[0].ID != rec.ID() || list[0].DurationSeconds != 1 || list[0].SampleRate != 8000 {
		t.Fatalf("info=%+v", list[0])
	}

	if store.Delete("../escape") {
		t.Fatal("Delete accepted a path traversal id")
	}
	if !store.Delete(rec.ID()) {
		t.Fatal("Delete=false for existing recording")
	}
	if store.Delete(rec.ID()) {
		t.Fatal("Delete=true for missing recording")
	}
}

func TestStoreRejectsInvalidInput(t *testing.T) {
	if _, err := NewStore(" "); err == nil {
		t.Fatal("NewStore(blank) error=nil, want non-nil")
	}
	store, _ := NewStore(t.TempDir())
	if _, err := store.Create(0); err == nil {
		t.Fatal("Create(0) error=nil, want non-nil")
	}
	if _, err := store.Path("a/b"); err != ErrInvalidID {
		t.Fatalf("Path err=%v, want ErrInvalidID", err)
	}
}

func TestCreateFileTruncates(t *testing.T) {
	path := t.TempDir() + "/replay.wav"
	if err := os.WriteFile(path, make([]byte, 500), 0o644); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}
	rec, err := CreateFile(path, 8000)
	if err != nil {
		t.Fatalf("CreateFile error: %v", err)
	}
	if rec.ID() != "replay" {
		t.Fatalf("id=%q, want replay", rec.ID())
	}
	if err := rec.WriteChunk(context.Background(), audio.Chunk{Samples: []int16{7}}); err != nil {
		t.Fatalf("WriteChunk error: %v", err)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat error: %v", err)
	}
	if info.Size() != wavHeaderSize+2 {
		t.Fatalf("size=%d, want %d", info.Size(), wavHeaderSize+2)
	}
	if _, err := CreateFile(path, 0); err == nil {
		t.Fatal("CreateFile rate 0 error=nil, want non-nil")
	}
}
