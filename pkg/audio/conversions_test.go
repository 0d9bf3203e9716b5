package audio

import (
	"math"
	"testing"
)

func TestQuantizeBounds(t *testing.T) {
	tests := []struct {
		in   float32
		want int16
	}{
		{in: 0, want: 0},
		{in: 0.5, want: 16384},
		{in: -0.5, want: -16384},
		{in: 1, want: 32767},
		{in: 1.5, want: 32767},
		{in: 1000, want: 32767},
		{in: -1, want: -32768},
		{in: -2, want: -32768},
		{in: 0.99999, want: 32767},
		{in: float32(math.Inf(1)), want: 32767},
		{in: float32(math.Inf(-1)), want: -32768},
		{in: float32(math.NaN()), want: 0},
	}
	for _, tt := range tests {
		if got := Quantize(tt.in); got != tt.want {
			t.Fatalf("Quantize(%v)=%d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestQuantizeTruncatesTowardZero(t *testing.T) {
	// 3.75 and -3.75 after scaling.
	pos := float32(3.75 / 32768)
	neg := float32(-3.75 / 32768)
	if got := Quantize(pos); got != 3 {
		t.Fatalf("Quantize(%v)=%d, want 3", pos, got)
	}
	if got := Quantize(neg); got != -3 {
		t.Fatalf("Quantize(%v)=%d, want -3", neg, got)
	}
}

func TestQuantizeIntoReusesDst(t *testing.T) {
	dst := make([]int16, 0, 8)
	got := QuantizeInto(dst, []float32{0.5, -0.5, 1.5, -2.0})
	want := []int16{16384, -16384, 32767, -32768}
	if len(got) != len(want) {
		t.Fatalf("len=%d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got[%d]=%d, want %d", i, got[i], want[i])
		}
	}
	if &got[0] != &dst[:1][0] {
		t.Fatal("QuantizeInto allocated despite sufficient capacity")
	}
}

func TestInt16SliceToBytesLittleEndian(t *testing.T) {
	got := Int16SliceToBytesInto(nil, []int16{0x0102, -2})
	want := []byte{0x02, 0x01, 0xfe, 0xff}
	if string(got) != string(want) {
		t.Fatalf("bytes=%v, want %v", got, want)
	}
	back := BytesToInt16SliceInto(nil, append(got, 0x7f))
	if len(back) != 2 || back[0] != 0x0102 || back[1] != -2 {
		t.Fatalf("BytesToInt16SliceInto=%v, want [258 -2]", back)
	}
}

func TestBytesToFloat32IgnoresTrailingBytes(t *testing.T) {
	data := make([]byte, 0, 10)
	for _, v := range []float32{0.25, -1} {
		bits := math.Float32bits(v)
		data = append(data, byte(bits), byte(bits>>8), byte(bits>>16), byte(bits>>24))
	}
	data = append(data, 0x01, 0x02)

	got := BytesToFloat32SliceInto(nil, data)
	if len(got) != 2 || got[0] != 0.25 || got[1] != -1 {
		t.Fatalf("BytesToFloat32SliceInto=%v, want [0.25 -1]", got)
	}
}
