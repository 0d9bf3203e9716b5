package config

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrProfileNotFound is returned when a capture client asks for an unknown profile.
var ErrProfileNotFound = errors.New("capture profile not found")

// CaptureProfile is a named override of the capture defaults.
// Zero fields keep the service-wide value.
type CaptureProfile struct {
	Name                string `yaml:"name" json:"name"`
	Filename            string `yaml:"-" json:"filename"`
	TargetSampleRate    int    `yaml:"target_sample_rate" json:"target_sample_rate,omitempty"`
	BufferCapacity      int    `yaml:"buffer_capacity" json:"buffer_capacity,omitempty"`
	FlushPartialOnClose *bool  `yaml:"flush_partial_on_close" json:"flush_partial_on_close,omitempty"`
	Resampler           string `yaml:"resampler" json:"resampler,omitempty"`
}

// Apply overlays the profile on base.
func (p CaptureProfile) Apply(base CaptureConfig) CaptureConfig {
	if p.TargetSampleRate > 0 {
		base.TargetSampleRate = p.TargetSampleRate
	}
	if p.BufferCapacity > 0 {
		base.BufferCapacity = p.BufferCapacity
	}
	if p.FlushPartialOnClose != nil {
		base.FlushPartialOnClose = *p.FlushPartialOnClose
	}
	if p.Resampler != "" {
		base.Resampler = p.Resampler
	}
	return base
}

// ScanProfiles reads every *.yaml file under dir. Unreadable files are skipped.
func ScanProfiles(dir string) ([]CaptureProfile, error) {
	profiles := []CaptureProfile{}
	if dir == "" {
		return profiles, nil
	}

	_ = filepath.WalkDir(dir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil || d == nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !strings.HasSuffix(d.Name(), ".yaml") {
			return nil
		}
		profile, err := ReadCaptureProfile(path)
		if err != nil {
			return nil
		}
		profiles = append(profiles, profile)
		return nil
	})

	sort.Slice(profiles, func(i, j int) bool { return profiles[i].Name < profiles[j].Name })
	return profiles, nil
}

// FindProfile returns the profile called name from dir.
func FindProfile(dir string, name string) (CaptureProfile, error) {
	profiles, err := ScanProfiles(dir)
	if err != nil {
		return CaptureProfile{}, err
	}
	for _, profile := range profiles {
		if profile.Name == name {
			return profile, nil
		}
	}
	return CaptureProfile{}, ErrProfileNotFound
}

// ReadCaptureProfile parses one profile file. The name defaults to the file name without extension.
func ReadCaptureProfile(path string) (CaptureProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return CaptureProfile{}, err
	}
	var profile CaptureProfile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return CaptureProfile{}, err
	}
	profile.Filename = filepath.Base(path)
	if profile.Name == "" {
		profile.Name = strings.TrimSuffix(profile.Filename, filepath.Ext(profile.Filename))
	}
	return profile, nil
}
