package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"
)

const (
	// Version1 sends the payload as-is with no header.
	Version1 = 1
	// Version2 uses a 16-byte header: version, type, sequence, timestamp, size.
	Version2 = 2
	// Version3 uses a compact 4-byte header: type, reserved, size.
	Version3 = 3

	headerSizeV2 = 16
	headerSizeV3 = 4

	payloadTypeAudio = 0
	payloadTypeCmd   = 1
)

var (
	// ErrFrameTooShort is returned when a frame is smaller than its header.
	ErrFrameTooShort = errors.New("binary frame too short")
	// ErrInvalidPayloadSize is returned when the header size exceeds the frame.
	ErrInvalidPayloadSize = errors.New("binary frame invalid payload size")
	// ErrUnsupportedPayloadType is returned for an unknown type field.
	ErrUnsupportedPayloadType = errors.New("binary frame unsupported payload type")
	// ErrPayloadTooLarge is returned when a payload does not fit the header's size field.
	ErrPayloadTooLarge = errors.New("binary frame payload too large")
)

// PayloadKind describes the decoded payload category.
type PayloadKind int

const (
	// PayloadKindAudio indicates audio bytes.
	PayloadKindAudio PayloadKind = iota
	// PayloadKindCommand indicates JSON command bytes.
	PayloadKindCommand
)

func (k PayloadKind) String() string {
	if k == PayloadKindCommand {
		return "command"
	}
	return "audio"
}

// Frame is a decoded binary frame. Seq and Timestamp are only carried by Version2.
type Frame struct {
	Version   int
	Kind      PayloadKind
	Seq       uint32
	Timestamp uint32
	Payload   []byte
}

// NormalizeVersion returns a supported protocol version.
func NormalizeVersion(version int) int {
	switch version {
	case Version2, Version3:
		return version
	default:
		return Version1
	}
}

// Decode parses a binary frame according to protocol version.
// The returned payload aliases frame.
func Decode(version int, frame []byte) (Frame, error) {
	switch NormalizeVersion(version) {
	case Version2:
		return decodeV2(frame)
	case Version3:
		return decodeV3(frame)
	default:
		return Frame{Version: Version1, Kind: PayloadKindAudio, Payload: frame}, nil
	}
}

// Pack creates an audio frame according to protocol version.
func Pack(version int, seq uint32, payload []byte) ([]byte, error) {
	return AppendFrame(nil, version, PayloadKindAudio, seq, payload)
}

// AppendFrame appends an encoded frame to dst so callers can reuse a send buffer.
func AppendFrame(dst []byte, version int, kind PayloadKind, seq uint32, payload []byte) ([]byte, error) {
	switch NormalizeVersion(version) {
	case Version2:
		return appendV2(dst, kind, seq, payload)
	case Version3:
		return appendV3(dst, kind, payload)
	default:
		return append(dst, payload...), nil
	}
}

func payloadType(kind PayloadKind) uint16 {
	if kind == PayloadKindCommand {
		return payloadTypeCmd
	}
	return payloadTypeAudio
}

func kindOf(msgType uint16) (PayloadKind, error) {
	switch msgType {
	case payloadTypeAudio:
		return PayloadKindAudio, nil
	case payloadTypeCmd:
		return PayloadKindCommand, nil
	default:
		return PayloadKindAudio, fmt.Errorf("type %d: %w", msgType, ErrUnsupportedPayloadType)
	}
}

func decodeV2(frame []byte) (Frame, error) {
	if len(frame) < headerSizeV2 {
		return Frame{}, fmt.Errorf("v2: %w", ErrFrameTooShort)
	}
	payloadSize := binary.BigEndian.Uint32(frame[12:16])
	if int64(payloadSize) > int64(len(frame)-headerSizeV2) {
		return Frame{}, fmt.Errorf("v2: %w", ErrInvalidPayloadSize)
	}
	kind, err := kindOf(binary.BigEndian.Uint16(frame[2:4]))
	if err != nil {
		return Frame{}, fmt.Errorf("v2: %w", err)
	}
	return Frame{
		Version:   Version2,
		Kind:      kind,
		Seq:       binary.BigEndian.Uint32(frame[4:8]),
		Timestamp: binary.BigEndian.Uint32(frame[8:12]),
		Payload:   frame[headerSizeV2 : headerSizeV2+int(payloadSize)],
	}, nil
}

func decodeV3(frame []byte) (Frame, error) {
	if len(frame) < headerSizeV3 {
		return Frame{}, fmt.Errorf("v3: %w", ErrFrameTooShort)
	}
	payloadSize := binary.BigEndian.Uint16(frame[2:4])
	if int(payloadSize) > len(frame)-headerSizeV3 {
		return Frame{}, fmt.Errorf("v3: %w", ErrInvalidPayloadSize)
	}
	kind, err := kindOf(uint16(frame[0]))
	if err != nil {
		return Frame{}, fmt.Errorf("v3: %w", err)
	}
	return Frame{
		Version: Version3,
		Kind:    kind,
		Payload: frame[headerSizeV3 : headerSizeV3+int(payloadSize)],
	}, nil
}

func appendV2(dst []byte, kind PayloadKind, seq uint32, payload []byte) ([]byte, error) {
	if uint64(len(payload)) > math.MaxUint32 {
		return dst, fmt.Errorf("v2: %w", ErrPayloadTooLarge)
	}
	var head [headerSizeV2]byte
	binary.BigEndian.PutUint16(head[0:2], Version2)
	binary.BigEndian.PutUint16(head[2:4], payloadType(kind))
	binary.BigEndian.PutUint32(head[4:8], seq)
	binary.BigEndian.PutUint32(head[8:12], uint32(time.Now().UnixMilli()))
	binary.BigEndian.PutUint32(head[12:16], uint32(len(payload)))
	dst = append(dst, head[:]...)
	return append(dst, payload...), nil
}

func appendV3(dst []byte, kind PayloadKind, payload []byte) ([]byte, error) {
	if len(payload) > math.MaxUint16 {
		return dst, fmt.Errorf("v3 payload %d bytes: %w", len(payload), ErrPayloadTooLarge)
	}
	var head [headerSizeV3]byte
	head[0] = byte(payloadType(kind))
	head[1] = 0
	binary.BigEndian.PutUint16(head[2:4], uint16(len(payload)))
	dst = append(dst, head[:]...)
	return append(dst, payload...), nil
}
