package audio

import (
	"fmt"
	"math"
	"strings"
)

const (
	// ResamplerLinear selects LinearResampler.
	ResamplerLinear = "linear"
	// ResamplerSoxr selects SoxrResampler.
	ResamplerSoxr = "soxr"

	// MaxRateRatio bounds sourceRate/targetRate in either direction.
	MaxRateRatio = 64.0
)

// Resampler converts successive blocks of one stream to the target rate.
//
// The returned slice may alias internal scratch memory and is only valid
// until the next call.
type Resampler interface {
	Resample(input []float32) []float32
	// Flush returns samples still held by the resampler at end of stream.
	Flush() []float32
	Close()
}

// NewResampler builds the resampler named by kind.
func NewResampler(kind string, sourceRate, targetRate float64) (Resampler, error) {
	switch normalizeResamplerKind(kind) {
	case ResamplerLinear:
		return NewLinearResampler(sourceRate, targetRate)
	case ResamplerSoxr:
		return NewSoxrResampler(sourceRate, targetRate)
	default:
		return nil, fmt.Errorf("resampler %q: %w", kind, ErrUnknownResampler)
	}
}

func normalizeResamplerKind(kind string) string {
	kind = strings.ToLower(strings.TrimSpace(kind))
	if kind == "" {
		return ResamplerLinear
	}
	return kind
}

func validateRates(sourceRate, targetRate float64) error {
	if !(sourceRate > 0) || math.IsInf(sourceRate, 0) {
		return fmt.Errorf("source rate %v: %w", sourceRate, ErrInvalidSampleRate)
	}
	if !(targetRate > 0) || math.IsInf(targetRate, 0) {
		return fmt.Errorf("target rate %v: %w", targetRate, ErrInvalidSampleRate)
	}
	if ratio := sourceRate / targetRate; ratio > MaxRateRatio || ratio < 1/MaxRateRatio {
		return fmt.Errorf("rate ratio %v outside [1/%v, %v]: %w", ratio, MaxRateRatio, MaxRateRatio, ErrInvalidSampleRate)
	}
	return nil
}

// LinearResampler resamples by linear interpolation and keeps the tail of
// each block that was too short to reach the next output position.
type LinearResampler struct {
	ratio    float64
	leftover []float32
	combined []float32
	out      []float32
}

// NewLinearResampler creates a resampler with ratio sourceRate/targetRate.
func NewLinearResampler(sourceRate, targetRate float64) (*LinearResampler, error) {
	if err := validateRates(sourceRate, targetRate); err != nil {
		return nil, err
	}
	return &LinearResampler{ratio: sourceRate / targetRate}, nil
}

// Ratio returns sourceRate/targetRate.
func (r *LinearResampler) Ratio() float64 {
	return r.ratio
}

// Leftover returns a copy of the samples carried into the next call.
func (r *LinearResampler) Leftover() []float32 {
	if len(r.leftover) == 0 {
		return nil
	}
	out := make([]float32, len(r.leftover))
	copy(out, r.leftover)
	return out
}

// Resample converts one block. With equal rates the input is returned as is.
func (r *LinearResampler) Resample(input []float32) []float32 {
	if r.ratio == 1 {
		return input
	}

	if len(r.leftover) > 0 {
		r.combined = append(r.combined[:0], r.leftover...)
		r.combined = append(r.combined, input...)
		input = r.combined
		r.leftover = r.leftover[:0]
	}

	outputLength := int(float64(len(input)) / r.ratio)
	if outputLength <= 0 {
		r.leftover = append(r.leftover[:0], input...)
		return r.out[:0]
	}

	if cap(r.out) < outputLength {
		r.out = make([]float32, outputLength)
	}
	out := r.out[:outputLength]
	last := len(input) - 1
	for i := range out {
		pos := float64(i) * r.ratio
		lo := int(pos)
		hi := lo + 1
		if hi > last {
			hi = last
		}
		frac := float32(pos - float64(lo))
		out[i] = input[lo] + (input[hi]-input[lo])*frac
	}

	if start := int(float64(outputLength) * r.ratio); start < len(input) {
		// input may alias r.combined; leftover has its own backing array.
		r.leftover = append(r.leftover[:0], input[start:]...)
	}
	return out
}

// Flush drops the carried tail; it is shorter than one output step.
func (r *LinearResampler) Flush() []float32 {
	r.leftover = r.leftover[:0]
	return nil
}

// Close releases scratch buffers.
func (r *LinearResampler) Close() {
	r.leftover = nil
	r.combined = nil
	r.out = nil
}
