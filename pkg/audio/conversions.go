package audio

import (
	"encoding/binary"
	"math"
)

const (
	quantizeScale = 32768
	maxPCM16      = math.MaxInt16
	minPCM16      = math.MinInt16
)

// Quantize converts a float sample in [-1, 1] to PCM16.
//
// The value is scaled by 32768 and clamped to [-32768, 32767] before the
// integer conversion, which truncates toward zero. NaN maps to silence.
func Quantize(sample float32) int16 {
	if sample != sample {
		return 0
	}
	value := float64(sample) * quantizeScale
	if value >= maxPCM16 {
		return maxPCM16
	}
	if value <= minPCM16 {
		return minPCM16
	}
	return int16(value)
}

// QuantizeInto fills dst with quantized samples and returns the slice.
func QuantizeInto(dst []int16, samples []float32) []int16 {
	if cap(dst) < len(samples) {
		dst = make([]int16, len(samples))
	} else {
		dst = dst[:len(samples)]
	}
	for i, sample := range samples {
		dst[i] = Quantize(sample)
	}
	return dst
}

// Int16SliceToBytesInto converts int16 samples to little-endian bytes.
func Int16SliceToBytesInto(dst []byte, samples []int16) []byte {
	needed := len(samples) * 2
	if cap(dst) < needed {
		dst = make([]byte, needed)
	} else {
		dst = dst[:needed]
	}
	for i, sample := range samples {
		binary.LittleEndian.PutUint16(dst[i*2:], uint16(sample))
	}
	return dst
}

// BytesToInt16SliceInto fills dst with little-endian int16 samples. A trailing odd byte is ignored.
func BytesToInt16SliceInto(dst []int16, data []byte) []int16 {
	needed := len(data) / 2
	if cap(dst) < needed {
		dst = make([]int16, needed)
	} else {
		dst = dst[:needed]
	}
	for i := 0; i < needed; i++ {
		dst[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return dst
}

// BytesToFloat32SliceInto decodes little-endian float32 samples, as sent by
// capture clients. Trailing bytes that do not form a full sample are ignored.
func BytesToFloat32SliceInto(dst []float32, data []byte) []float32 {
	needed := len(data) / 4
	if cap(dst) < needed {
		dst = make([]float32, needed)
	} else {
		dst = dst[:needed]
	}
	for i := 0; i < needed; i++ {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return dst
}

// Float64SliceToFloat32Into narrows JSON-decoded samples.
func Float64SliceToFloat32Into(dst []float32, samples []float64) []float32 {
	if cap(dst) < len(samples) {
		dst = make([]float32, len(samples))
	} else {
		dst = dst[:len(samples)]
	}
	for i, sample := range samples {
		dst[i] = float32(sample)
	}
	return dst
}
