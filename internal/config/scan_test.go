package config

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestScanProfiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "wideband.yaml"), "target_sample_rate: 24000\nbuffer_capacity: 4096\n")
	writeFile(t, filepath.Join(dir, "nested", "low.yaml"), "name: low-latency\nbuffer_capacity: 256\nflush_partial_on_close: true\n")
	writeFile(t, filepath.Join(dir, "notes.txt"), "ignored")
	writeFile(t, filepath.Join(dir, "broken.yaml"), "buffer_capacity: [\n")

	profiles, err := ScanProfiles(dir)
	if err != nil {
		t.Fatalf("ScanProfiles error: %v", err)
	}
	if len(profiles) != 2 {
		t.Fatalf("profiles=%d, want 2", len(profiles))
	}
	if profiles[0].Name != "low-latency" || profiles[1].Name != "wideband" {
		t.Fatalf("names=%q,%q, want low-latency,wideband", profiles[0].Name, profiles[1].Name)
	}
	if profiles[1].Filename != "wideband.yaml" {
		t.Fatalf("Filename=%q, want wideband.yaml", profiles[1].Filename)
	}
}

func TestFindProfileApply(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "low.yaml"), "buffer_capacity: 256\nflush_partial_on_close: true\n")

	profile, err := FindProfile(dir, "low")
	if err != nil {
		t.Fatalf("FindProfile error: %v", err)
	}
	base := CaptureConfig{TargetSampleRate: 16000, BufferCapacity: 2048, Resampler: "linear"}
	got := profile.Apply(base)
	if got.BufferCapacity != 256 || !got.FlushPartialOnClose {
		t.Fatalf("Apply=%+v, want capacity 256 with partial flush", got)
	}
	if got.TargetSampleRate != 16000 || got.Resampler != "linear" {
		t.Fatalf("Apply changed unset fields: %+v", got)
	}

	if _, err := FindProfile(dir, "missing"); !errors.Is(err, ErrProfileNotFound) {
		t.Fatalf("FindProfile err=%v, want ErrProfileNotFound", err)
	}
}
