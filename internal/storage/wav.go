package storage

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

const wavHeaderSize = 44

// maxWAVDataBytes is the largest data chunk whose RIFF size still fits in 32 bits.
const maxWAVDataBytes = math.MaxUint32 - (wavHeaderSize - 8)

// wavHeader is the canonical 44-byte header of a mono PCM16 WAV file.
type wavHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // file size - 8
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32
}

func newWAVHeader(sampleRate int, dataSize uint32) wavHeader {
	const channels, bits = 1, 16
	return wavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   channels,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate) * channels * bits / 8,
		BlockAlign:    channels * bits / 8,
		BitsPerSample: bits,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}
}

func (h wavHeader) bytes() []byte {
	buf := bytes.NewBuffer(make([]byte, 0, wavHeaderSize))
	_ = binary.Write(buf, binary.LittleEndian, h)
	return buf.Bytes()
}

func readWAVHeader(r io.Reader) (wavHeader, error) {
	var h wavHeader
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return wavHeader{}, fmt.Errorf("read wav header: %w", err)
	}
	if string(h.ChunkID[:]) != "RIFF" || string(h.Format[:]) != "WAVE" {
		return wavHeader{}, fmt.Errorf("invalid wav file: missing RIFF/WAVE")
	}
	if string(h.Subchunk2ID[:]) != "data" {
		return wavHeader{}, fmt.Errorf("invalid wav file: missing data chunk")
	}
	return h, nil
}

func (h wavHeader) duration() float64 {
	if h.SampleRate == 0 || h.BlockAlign == 0 {
		return 0
	}
	return float64(h.Subchunk2Size/uint32(h.BlockAlign)) / float64(h.SampleRate)
}
