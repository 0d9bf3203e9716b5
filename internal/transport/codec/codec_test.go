package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

func TestPackDecodeV1Raw(t *testing.T) {
	payload := []byte{0x01, 0x02}
	frame, err := Pack(Version1, 7, payload)
	if err != nil {
		t.Fatalf("Pack(v1) returned error: %v", err)
	}
	if !bytes.Equal(frame, payload) {
		t.Fatalf("Pack(v1)=%v, want %v", frame, payload)
	}
	got, err := Decode(0, frame)
	if err != nil || got.Version != Version1 || !bytes.Equal(got.Payload, payload) {
		t.Fatalf("Decode(unknown)=%+v, %v; want raw v1 payload", got, err)
	}
}

func TestPackDecodeV2Audio(t *testing.T) {
	payload := []byte{0x01, 0x02, 0x03, 0x04}
	frame, err := Pack(Version2, 42, payload)
	if err != nil {
		t.Fatalf("Pack(v2) returned error: %v", err)
	}
	if len(frame) != headerSizeV2+len(payload) {
		t.Fatalf("Pack(v2) len=%d, want %d", len(frame), headerSizeV2+len(payload))
	}

	got, err := Decode(Version2, frame)
	if err != nil {
		t.Fatalf("Decode(v2) returned error: %v", err)
	}
	if got.Kind != PayloadKindAudio {
		t.Fatalf("Decode(v2) kind=%v, want %v", got.Kind, PayloadKindAudio)
	}
	if got.Seq != 42 {
		t.Fatalf("Decode(v2) seq=%d, want 42", got.Seq)
	}
	if !bytes.Equal(got.Payload, payload) {
		t.Fatalf("Decode(v2) payload=%v, want %v", got.Payload, payload)
	}
}

func TestPackDecodeV3Audio(t *testing.T) {
	payload := []byte{0x09, 0x08, 0x07}
	frame, err := Pack(Version3, 1, payload)
	if err != nil {
		t.Fatalf("Pack(v3) returned error: %v", err)
	}

	got, err := Decode(Version3, frame)
	if err != nil {
		t.Fatalf("Decode(v3) returned error: %v", err)
	}
	if got.Kind != PayloadKindAudio {
		t.Fatalf("Decode(v3) kind=%v, want %v", got.Kind, PayloadKindAudio)
	}
	if !bytes.Equal(got.Payload, payload) {
		t.Fatalf("Decode(v3) payload=%v, want %v", got.Payload, payload)
	}
}

func TestAppendFrameCommandReusesBuffer(t *testing.T) {
	buf := make([]byte, 0, 64)
	payload := []byte(`{"type":"listen"}`)
	frame, err := AppendFrame(buf, Version3, PayloadKindCommand, 0, payload)
	if err != nil {
		t.Fatalf("AppendFrame returned error: %v", err)
	}
	if &frame[0] != &buf[:1][0] {
		t.Fatal("AppendFrame reallocated a buffer with enough capacity")
	}
	got, err := Decode(Version3, frame)
	if err != nil || got.Kind != PayloadKindCommand {
		t.Fatalf("Decode(v3 cmd)=%+v, %v; want command", got, err)
	}
}

func TestDecodeV2CommandPayload(t *testing.T) {
	payload := []byte(`{"type":"hello"}`)
	frame := make([]byte, 16+len(payload))
	binary.BigEndian.PutUint16(frame[0:2], Version2)
	binary.BigEndian.PutUint16(frame[2:4], payloadTypeCmd)
	binary.BigEndian.PutUint32(frame[12:16], uint32(len(payload)))
	copy(frame[16:], payload)

	got, err := Decode(Version2, frame)
	if err != nil {
		t.Fatalf("Decode(v2 cmd) returned error: %v", err)
	}
	if got.Kind != PayloadKindCommand {
		t.Fatalf("Decode(v2 cmd) kind=%v, want %v", got.Kind, PayloadKindCommand)
	}
	if string(got.Payload) != string(payload) {
		t.Fatalf("Decode(v2 cmd) payload=%q, want %q", string(got.Payload), string(payload))
	}
}

func TestDecodeErrors(t *testing.T) {
	oversized := make([]byte, 16)
	binary.BigEndian.PutUint16(oversized[0:2], Version2)
	binary.BigEndian.PutUint32(oversized[12:16], 10)

	badType := []byte{9, 0, 0, 0}

	tests := []struct {
		name    string
		version int
		frame   []byte
		want    error
	}{
		{name: "v2 short", version: Version2, frame: make([]byte, 3), want: ErrFrameTooShort},
		{name: "v2 size", version: Version2, frame: oversized, want: ErrInvalidPayloadSize},
		{name: "v3 short", version: Version3, frame: []byte{0}, want: ErrFrameTooShort},
		{name: "v3 type", version: Version3, frame: badType, want: ErrUnsupportedPayloadType},
	}
	for _, tt := range tests {
		if _, err := Decode(tt.version, tt.frame); !errors.Is(err, tt.want) {
			t.Fatalf("%s: err=%v, want %v", tt.name, err, tt.want)
		}
	}
}

func TestPackV3RejectsLargePayload(t *testing.T) {
	if _, err := Pack(Version3, 0, make([]byte, 70000)); !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("Pack(v3) err=%v, want ErrPayloadTooLarge", err)
	}
}
