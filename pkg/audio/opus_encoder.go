package audio

import (
	"fmt"
	"sync"

	"github.com/saker-ai/speech-uplink/pkg/audio/opusx"
)

const maxOpusPacket = 4000

type opusEncoderKey struct {
	sampleRate    int
	frameDuration int
	options       opusOptionsKey
}

var opusEncoderPools sync.Map

func getOpusEncoderPool(key opusEncoderKey) *sync.Pool {
	if pool, ok := opusEncoderPools.Load(key); ok {
		return pool.(*sync.Pool)
	}
	pool := &sync.Pool{}
	actual, _ := opusEncoderPools.LoadOrStore(key, pool)
	return actual.(*sync.Pool)
}

// OpusEncoder encodes mono PCM16 chunks into opus packets of a fixed frame duration.
type OpusEncoder struct {
	encoder   *opusx.Encoder
	key       opusEncoderKey
	frameSize int
	packet    []byte
	frame     []int16
	pending   int
	mutex     sync.Mutex
}

// NewOpusEncoder creates a mono encoder. frameDurationMs must be a valid opus frame length.
func NewOpusEncoder(sampleRate, frameDurationMs int, opts OpusOptions) (*OpusEncoder, error) {
	if !OpusSupportsRate(sampleRate) {
		return nil, fmt.Errorf("opus encoder at %d Hz: %w", sampleRate, ErrUnsupportedOpusRate)
	}
	switch frameDurationMs {
	case 10, 20, 40, 60:
	default:
		return nil, fmt.Errorf("opus frame duration %d ms is not supported", frameDurationMs)
	}
	enc, err := opusx.NewEncoder(sampleRate, 1, opusx.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("create opus encoder: %w", err)
	}
	opts.apply(enc)

	frameSize := sampleRate * frameDurationMs / 1000
	return &OpusEncoder{
		encoder:   enc,
		key:       opusEncoderKey{sampleRate: sampleRate, frameDuration: frameDurationMs, options: opts.key()},
		frameSize: frameSize,
		packet:    make([]byte, maxOpusPacket),
		frame:     make([]int16, frameSize),
	}, nil
}

// AcquireOpusEncoder reuses encoders created with the same rate, frame
// duration and options.
func AcquireOpusEncoder(sampleRate, frameDurationMs int, opts OpusOptions) (*OpusEncoder, error) {
	pool := getOpusEncoderPool(opusEncoderKey{sampleRate: sampleRate, frameDuration: frameDurationMs, options: opts.key()})
	if v := pool.Get(); v != nil {
		if enc := v.(*OpusEncoder); enc.encoder != nil {
			return enc, nil
		}
	}
	return NewOpusEncoder(sampleRate, frameDurationMs, opts)
}

// ReleaseOpusEncoder resets the encoder, discards any pending samples and
// returns it to the pool.
func ReleaseOpusEncoder(enc *OpusEncoder) {
	if enc == nil {
		return
	}
	enc.mutex.Lock()
	if enc.encoder != nil {
		_ = enc.encoder.Reset()
	}
	enc.pending = 0
	enc.mutex.Unlock()
	getOpusEncoderPool(enc.key).Put(enc)
}

// EncodeChunk encodes every complete frame available from the samples held
// over from the previous call followed by samples. Samples that do not fill
// a frame are kept for the next call or for Flush. Each returned packet is
// an independent allocation.
func (e *OpusEncoder) EncodeChunk(samples []int16) ([][]byte, error) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.encoder == nil {
		return nil, fmt.Errorf("opus encoder closed")
	}
	packets := make([][]byte, 0, (e.pending+len(samples))/e.frameSize)
	if e.pending > 0 {
		n := copy(e.frame[e.pending:], samples)
		e.pending += n
		samples = samples[n:]
		if e.pending < e.frameSize {
			return packets, nil
		}
		e.pending = 0
		var err error
		if packets, err = e.encodeFrame(packets, e.frame); err != nil {
			return nil, err
		}
	}
	for len(samples) >= e.frameSize {
		var err error
		if packets, err = e.encodeFrame(packets, samples[:e.frameSize]); err != nil {
			return nil, err
		}
		samples = samples[e.frameSize:]
	}
	e.pending = copy(e.frame, samples)
	return packets, nil
}

// Flush zero pads the held-over samples to a full frame and encodes it.
// It returns nil when nothing is pending.
func (e *OpusEncoder) Flush() ([]byte, error) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.encoder == nil {
		return nil, fmt.Errorf("opus encoder closed")
	}
	if e.pending == 0 {
		return nil, nil
	}
	clear(e.frame[e.pending:])
	e.pending = 0
	packets, err := e.encodeFrame(nil, e.frame)
	if err != nil || len(packets) == 0 {
		return nil, err
	}
	return packets[0], nil
}

// Pending returns how many samples are waiting for a full frame.
func (e *OpusEncoder) Pending() int {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.pending
}

func (e *OpusEncoder) encodeFrame(dst [][]byte, frame []int16) ([][]byte, error) {
	n, err := e.encoder.Encode(frame, e.packet)
	if err != nil {
		return dst, fmt.Errorf("opus encode: %w", err)
	}
	if n == 0 {
		return dst, nil
	}
	packet := make([]byte, n)
	copy(packet, e.packet[:n])
	return append(dst, packet), nil
}

// Close releases the underlying encoder.
func (e *OpusEncoder) Close() error {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.encoder = nil
	e.packet = nil
	e.frame = nil
	e.pending = 0
	return nil
}

// FrameSize returns samples per opus frame.
func (e *OpusEncoder) FrameSize() int {
	return e.frameSize
}

// FrameDuration returns the frame length in milliseconds.
func (e *OpusEncoder) FrameDuration() int {
	return e.key.frameDuration
}
