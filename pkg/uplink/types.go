package uplink

import "time"

const (
	// FormatPCM16 sends chunks as little-endian PCM16 bytes.
	FormatPCM16 = "pcm16"
	// FormatOpus sends one Opus packet per frame.
	FormatOpus = "opus"
)

// AudioParams is announced to the speech service in the hello message.
type AudioParams struct {
	Format        string
	SampleRate    int
	Channels      int
	FrameDuration int
	ChunkSamples  int
}

// Config describes the remote speech service.
type Config struct {
	BackendURL      string
	ProtocolVersion int
	AudioParams     AudioParams
	ListenMode      string
	DeviceID        string
	ClientID        string
	AccessToken     string
	HelloTimeout    time.Duration
}

// Transcript is recognized text pushed back by the speech service.
type Transcript struct {
	Text  string `json:"text"`
	Final bool   `json:"final"`
}
