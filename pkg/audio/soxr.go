package audio

import (
	"sync"
	"sync/atomic"

	resampler "github.com/godeps/go-audio-soxr"
)

type soxrKey struct {
	inRate  float64
	outRate float64
	quality resampler.QualityPreset
}

var soxrPools sync.Map

func getSoxrPool(key soxrKey) *sync.Pool {
	if pool, ok := soxrPools.Load(key); ok {
		return pool.(*sync.Pool)
	}
	pool := &sync.Pool{}
	actual, _ := soxrPools.LoadOrStore(key, pool)
	return actual.(*sync.Pool)
}

func acquireSoxrEngine(key soxrKey) (*resampler.SimpleResamplerFloat32, error) {
	if v := getSoxrPool(key).Get(); v != nil {
		if r, ok := v.(*resampler.SimpleResamplerFloat32); ok && r != nil {
			return r, nil
		}
	}
	return resampler.NewEngineFloat32(key.inRate, key.outRate, key.quality)
}

func releaseSoxrEngine(key soxrKey, r *resampler.SimpleResamplerFloat32) {
	if r == nil {
		return
	}
	r.Reset()
	getSoxrPool(key).Put(r)
}

// SoxrResampler wraps a pooled soxr engine behind the Resampler interface.
// Engine failures are counted instead of returned so the real-time path never fails.
type SoxrResampler struct {
	key    soxrKey
	r      *resampler.SimpleResamplerFloat32
	errors atomic.Uint64
}

// NewSoxrResampler acquires a high quality soxr engine for the given rates.
func NewSoxrResampler(sourceRate, targetRate float64) (*SoxrResampler, error) {
	if err := validateRates(sourceRate, targetRate); err != nil {
		return nil, err
	}
	key := soxrKey{inRate: sourceRate, outRate: targetRate, quality: resampler.QualityHigh}
	r, err := acquireSoxrEngine(key)
	if err != nil {
		return nil, err
	}
	return &SoxrResampler{key: key, r: r}, nil
}

// Resample implements Resampler.
func (s *SoxrResampler) Resample(input []float32) []float32 {
	if s == nil || s.r == nil || len(input) == 0 {
		return nil
	}
	if s.key.inRate == s.key.outRate {
		return input
	}
	out, err := s.r.Process(input)
	if err != nil {
		s.errors.Add(1)
		return nil
	}
	return out
}

// Flush drains the engine's internal delay line.
func (s *SoxrResampler) Flush() []float32 {
	if s == nil || s.r == nil {
		return nil
	}
	out, err := s.r.Flush()
	if err != nil {
		s.errors.Add(1)
		return nil
	}
	return out
}

// Errors reports how many engine calls failed.
func (s *SoxrResampler) Errors() uint64 {
	return s.errors.Load()
}

// Close returns the engine to its pool.
func (s *SoxrResampler) Close() {
	if s == nil || s.r == nil {
		return
	}
	releaseSoxrEngine(s.key, s.r)
	s.r = nil
}
