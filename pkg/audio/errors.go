package audio

import "errors"

var (
	// ErrInvalidSampleRate is returned when a source or target rate is not a positive finite number.
	ErrInvalidSampleRate = errors.New("sample rate must be positive")

	// ErrInvalidCapacity is returned when a chunk buffer capacity is not positive.
	ErrInvalidCapacity = errors.New("buffer capacity must be positive")

	// ErrUnknownResampler is returned for an unsupported resampler kind.
	ErrUnknownResampler = errors.New("unknown resampler")

	// ErrUnsupportedOpusRate is returned when opus is asked to encode at a rate it does not support.
	ErrUnsupportedOpusRate = errors.New("sample rate not supported by opus")
)
