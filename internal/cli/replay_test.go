package cli

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func rawSamples(n int) []byte {
	out := make([]byte, n*4)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(float32(i%8)/10))
	}
	return out
}

func executeReplay(t *testing.T, stdin []byte, args ...string) (ReplaySummary, error) {
	t.Helper()
	root := NewRootCmd("test")
	var stdout bytes.Buffer
	root.SetIn(bytes.NewReader(stdin))
	root.SetOut(&stdout)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(append([]string{"replay"}, args...))
	if err := root.Execute(); err != nil {
		return ReplaySummary{}, err
	}
	var summary ReplaySummary
	if err := json.Unmarshal(stdout.Bytes(), &summary); err != nil {
		t.Fatalf("decode summary %q: %v", stdout.String(), err)
	}
	return summary, nil
}

func TestReplayDownsamplesAndFlushesPartial(t *testing.T) {
	out := filepath.Join(t.TempDir(), "replay.wav")
	summary, err := executeReplay(t, rawSamples(96),
		"--in", "-", "--source-rate", "48000", "--capacity", "10", "--block", "32",
		"--flush-partial", "--out", out)
	if err != nil {
		t.Fatalf("replay error: %v", err)
	}
	if summary.FullChunks != 3 || summary.PartialChunks != 1 {
		t.Fatalf("chunks full=%d partial=%d, want 3 and 1", summary.FullChunks, summary.PartialChunks)
	}
	if summary.Stats.InputSamples != 96 || summary.Stats.OutputSamples != 32 {
		t.Fatalf("stats=%+v", summary.Stats)
	}
	if summary.Stats.Blocks != 3 {
		t.Fatalf("blocks=%d, want 3", summary.Stats.Blocks)
	}

	info, err := os.Stat(out)
	if err != nil {
		t.Fatalf("Stat error: %v", err)
	}
	if info.Size() != 44+32*2 {
		t.Fatalf("wav size=%d, want %d", info.Size(), 44+32*2)
	}
}

func TestReplayDropsPartialByDefault(t *testing.T) {
	in := filepath.Join(t.TempDir(), "mic.f32")
	if err := os.WriteFile(in, rawSamples(96), 0o644); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}
	summary, err := executeReplay(t, nil, "--in", in, "--source-rate", "48000", "--capacity", "10")
	if err != nil {
		t.Fatalf("replay error: %v", err)
	}
	if summary.FullChunks != 3 || summary.PartialChunks != 0 {
		t.Fatalf("chunks full=%d partial=%d, want 3 and 0", summary.FullChunks, summary.PartialChunks)
	}
	if summary.Config.TargetSampleRate != 16000 || summary.Config.Resampler != "linear" {
		t.Fatalf("config=%+v", summary.Config)
	}
}

func TestReplayErrors(t *testing.T) {
	if _, err := executeReplay(t, nil, "--in", "-"); err == nil || !strings.Contains(err.Error(), "required flag") {
		t.Fatalf("missing source rate err=%v", err)
	}
	if _, err := executeReplay(t, []byte{1, 2}, "--in", "-", "--source-rate", "16000"); !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("short input err=%v, want ErrEmptyInput", err)
	}
	if _, err := executeReplay(t, rawSamples(4), "--in", "-", "--source-rate", "16000", "--capacity", "-1"); err == nil {
		t.Fatal("negative capacity err=nil, want non-nil")
	}
	if _, err := executeReplay(t, rawSamples(4), "--in", "-", "--source-rate", "16000", "--block", "0"); err == nil {
		t.Fatal("zero block err=nil, want non-nil")
	}
}
