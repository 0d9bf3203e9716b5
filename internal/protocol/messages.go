package protocol

// Command types sent by a capture client.
const (
	CommandStart      = "start"
	CommandAudioBlock = "audio-block"
	CommandStop       = "stop"
	CommandHeartbeat  = "heartbeat"
)

// Event types sent back to a capture client.
const (
	EventSessionStarted = "session-started"
	EventSessionStopped = "session-stopped"
	EventTranscript     = "transcript"
	EventError          = "error"
)

// ClientCommand is a JSON text message from a capture client. Audio blocks
// normally arrive as binary little-endian float32 messages; Audio is the
// JSON fallback.
type ClientCommand struct {
	Type                string    `json:"type"`
	SourceSampleRate    float64   `json:"source_sample_rate,omitempty"`
	TargetSampleRate    int       `json:"target_sample_rate,omitempty"`
	BufferCapacity      int       `json:"buffer_capacity,omitempty"`
	FlushPartialOnClose *bool     `json:"flush_partial_on_close,omitempty"`
	Resampler           string    `json:"resampler,omitempty"`
	Profile             string    `json:"profile,omitempty"`
	Audio               []float64 `json:"audio,omitempty"`
}

// ServerEvent is a JSON text message to a capture client.
type ServerEvent struct {
	Type                string  `json:"type"`
	SessionID           string  `json:"session_id,omitempty"`
	SourceSampleRate    float64 `json:"source_sample_rate,omitempty"`
	TargetSampleRate    float64 `json:"target_sample_rate,omitempty"`
	BufferCapacity      int     `json:"buffer_capacity,omitempty"`
	FlushPartialOnClose bool    `json:"flush_partial_on_close,omitempty"`
	Resampler           string  `json:"resampler,omitempty"`
	RecordingID         string  `json:"recording_id,omitempty"`
	Text                string  `json:"text,omitempty"`
	Final               bool    `json:"final,omitempty"`
	Message             string  `json:"message,omitempty"`
	Stats               any     `json:"stats,omitempty"`
}
