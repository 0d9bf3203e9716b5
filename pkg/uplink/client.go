package uplink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/saker-ai/speech-uplink/internal/transport/codec"
	"github.com/saker-ai/speech-uplink/pkg/audio"
)

const (
	defaultHelloTimeout = 5 * time.Second
	maxBackoff          = 30 * time.Second
)

var (
	// ErrNotConnected is returned when no connection is established.
	ErrNotConnected = errors.New("uplink connection not ready")
	// ErrHelloTimeout is returned when the service does not acknowledge hello in time.
	ErrHelloTimeout = errors.New("uplink hello not acknowledged")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("uplink client closed")
)

// RemoteError is an error message sent by the speech service.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return "uplink remote error: " + e.Message
}

// Callbacks receive events from the read loop. All are optional.
type Callbacks struct {
	OnTranscript   func(t Transcript)
	OnGoodbye      func()
	OnConnected    func()
	OnDisconnected func(err error)
	OnError        func(err error)
}

// Client is a reconnecting websocket client for one capture session.
type Client struct {
	cfg       Config
	logger    *zap.Logger
	callbacks Callbacks

	mu sync.Mutex

	conn      *websocket.Conn
	closed    bool
	sessionID string

	protocolVersion int
	helloReady      bool

	seq        atomic.Uint32
	reconnects atomic.Uint64

	encoder *audio.OpusEncoder
	writeMu sync.Mutex
	pcm     []byte
	frame   []byte
}

// NewClient validates cfg and prepares the encoder for the configured format.
func NewClient(cfg Config, callbacks Callbacks, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(cfg.BackendURL) == "" {
		return nil, errors.New("uplink backend url is empty")
	}

	cfg.ProtocolVersion = codec.NormalizeVersion(cfg.ProtocolVersion)
	cfg.AudioParams = normalizeAudioParams(cfg.AudioParams)
	cfg.ListenMode = normalizeListenMode(cfg.ListenMode)
	if cfg.HelloTimeout <= 0 {
		cfg.HelloTimeout = defaultHelloTimeout
	}

	client := &Client{
		cfg:             cfg,
		logger:          logger,
		callbacks:       callbacks,
		protocolVersion: cfg.ProtocolVersion,
	}
	if cfg.AudioParams.Format == FormatOpus {
		enc, err := audio.AcquireOpusEncoder(cfg.AudioParams.SampleRate, cfg.AudioParams.FrameDuration, audio.OpusOptionsFromEnv())
		if err != nil {
			return nil, fmt.Errorf("uplink opus encoder: %w", err)
		}
		client.encoder = enc
	}
	return client, nil
}

// Config returns the normalized configuration.
func (c *Client) Config() Config { return c.cfg }

// Connect starts the connection loop in the background. It returns immediately.
func (c *Client) Connect(ctx context.Context) {
	go c.run(ctx)
}

// Close drops the connection and stops reconnecting.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		c.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		c.writeMu.Unlock()
		_ = conn.Close()
	}

	c.writeMu.Lock()
	if c.encoder != nil {
		audio.ReleaseOpusEncoder(c.encoder)
		c.encoder = nil
	}
	c.writeMu.Unlock()
}

// Ready reports whether hello has been acknowledged on the current connection.
func (c *Client) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil && c.helloReady
}

// Reconnects returns how many times the client had to dial again.
func (c *Client) Reconnects() uint64 { return c.reconnects.Load() }

// SessionID returns the id assigned by the speech service, if any.
func (c *Client) SessionID() string { return c.getSessionID() }

// SendListenState tells the service that capture started or stopped.
func (c *Client) SendListenState(ctx context.Context, state string) error {
	if err := c.waitHelloReady(ctx); err != nil {
		return err
	}
	payload := map[string]any{
		"type":      "listen",
		"state":     state,
		"mode":      c.cfg.ListenMode,
		"device_id": c.cfg.DeviceID,
	}
	c.attachSessionID(payload)
	return c.sendJSON(ctx, payload)
}

// SendChunk frames and writes one chunk. It returns the number of binary
// frames written.
func (c *Client) SendChunk(ctx context.Context, chunk audio.Chunk) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(chunk.Samples) == 0 {
		return 0, nil
	}
	if err := c.waitHelloReady(ctx); err != nil {
		return 0, err
	}

	c.mu.Lock()
	conn := c.conn
	version := c.protocolVersion
	c.mu.Unlock()
	if conn == nil {
		return 0, ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.cfg.AudioParams.Format == FormatOpus {
		if c.encoder == nil {
			return 0, ErrClosed
		}
		packets, err := c.encoder.EncodeChunk(chunk.Samples)
		if err != nil {
			return 0, err
		}
		for i, packet := range packets {
			if err := c.writeFrameLocked(conn, version, packet); err != nil {
				return i, err
			}
		}
		return len(packets), nil
	}

	c.pcm = audio.Int16SliceToBytesInto(c.pcm, chunk.Samples)
	if err := c.writeFrameLocked(conn, version, c.pcm); err != nil {
		return 0, err
	}
	return 1, nil
}

// Flush sends the Opus samples held back by SendChunk as one zero padded
// frame. It returns the number of frames written and is a no-op for pcm16.
func (c *Client) Flush(ctx context.Context) (int, error) {
	if c.cfg.AudioParams.Format != FormatOpus {
		return 0, nil
	}
	if err := c.waitHelloReady(ctx); err != nil {
		return 0, err
	}

	c.mu.Lock()
	conn := c.conn
	version := c.protocolVersion
	c.mu.Unlock()
	if conn == nil {
		return 0, ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.encoder == nil {
		return 0, ErrClosed
	}
	packet, err := c.encoder.Flush()
	if err != nil || packet == nil {
		return 0, err
	}
	if err := c.writeFrameLocked(conn, version, packet); err != nil {
		return 0, err
	}
	return 1, nil
}

func (c *Client) writeFrameLocked(conn *websocket.Conn, version int, payload []byte) error {
	frame, err := codec.AppendFrame(c.frame[:0], version, codec.PayloadKindAudio, c.seq.Add(1)-1, payload)
	if err != nil {
		return err
	}
	c.frame = frame
	return conn.WriteMessage(websocket.BinaryMessage, frame)
}

func (c *Client) sendJSON(ctx context.Context, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(payload)
}

func (c *Client) waitHelloReady(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	timer := time.NewTimer(c.cfg.HelloTimeout)
	defer timer.Stop()
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		c.mu.Lock()
		closed := c.closed
		connReady := c.conn != nil
		helloReady := c.helloReady
		c.mu.Unlock()

		if closed {
			return ErrClosed
		}
		if connReady && helloReady {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			if !connReady {
				return ErrNotConnected
			}
			return ErrHelloTimeout
		case <-ticker.C:
		}
	}
}

func (c *Client) run(ctx context.Context) {
	delay := time.Second
	for {
		if ctx.Err() != nil || c.isClosed() {
			return
		}
		c.logger.Info("uplink connecting",
			zap.String("backend_url", c.cfg.BackendURL),
			zap.String("device_id", c.cfg.DeviceID),
			zap.String("client_id", c.cfg.ClientID),
		)
		if err := c.connectOnce(ctx); err != nil {
			c.reportError(err)
			c.logger.Warn("uplink connect failed", zap.Error(err))
			if !sleepContext(ctx, delay) {
				return
			}
			delay = nextBackoff(delay)
			c.reconnects.Add(1)
			continue
		}
		c.logger.Info("uplink connected",
			zap.String("backend_url", c.cfg.BackendURL),
			zap.Int("protocol_version", c.getProtocolVersion()),
		)
		delay = time.Second

		stop := context.AfterFunc(ctx, c.dropConn)
		err := c.readLoop()
		stop()
		if c.isClosed() || ctx.Err() != nil {
			return
		}
		if c.callbacks.OnDisconnected != nil {
			c.callbacks.OnDisconnected(err)
		}
		c.reportError(err)
		c.logger.Warn("uplink connection lost", zap.Error(err))
		if !sleepContext(ctx, delay) {
			return
		}
		delay = nextBackoff(delay)
		c.reconnects.Add(1)
	}
}

func (c *Client) dropConn() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

func (c *Client) connectOnce(ctx context.Context) error {
	version := c.getProtocolVersion()
	headers := http.Header{}
	headers.Set("Protocol-Version", strconv.Itoa(version))
	headers.Set("Client-Id", c.cfg.ClientID)
	headers.Set("Device-Id", c.cfg.DeviceID)
	if c.cfg.AccessToken != "" {
		headers.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	}

	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.HelloTimeout}
	conn, _, err := dialer.DialContext(ctx, c.cfg.BackendURL, headers)
	if err != nil {
		return err
	}
	conn.SetPingHandler(func(appData string) error {
		c.writeMu.Lock()
		defer c.writeMu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(5*time.Second))
	})

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return ErrClosed
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn = conn
	c.sessionID = ""
	c.helloReady = false
	c.mu.Unlock()
	c.seq.Store(0)

	return c.sendHello(ctx)
}

func (c *Client) sendHello(ctx context.Context) error {
	params := c.cfg.AudioParams
	payload := map[string]any{
		"type":      "hello",
		"device_id": c.cfg.DeviceID,
		"version":   c.getProtocolVersion(),
		"transport": "websocket",
		"audio_params": map[string]any{
			"format":         params.Format,
			"sample_rate":    params.SampleRate,
			"channels":       params.Channels,
			"frame_duration": params.FrameDuration,
			"chunk_samples":  params.ChunkSamples,
		},
	}
	return c.sendJSON(ctx, payload)
}

func (c *Client) readLoop() error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			if c.conn == conn {
				_ = c.conn.Close()
				c.conn = nil
			}
			c.mu.Unlock()
			return err
		}

		switch msgType {
		case websocket.TextMessage:
			c.handleTextMessage(data)
		case websocket.BinaryMessage:
			frame, decodeErr := codec.Decode(c.getProtocolVersion(), data)
			if decodeErr != nil {
				c.reportError(decodeErr)
				continue
			}
			if frame.Kind == codec.PayloadKindCommand && len(frame.Payload) > 0 {
				c.handleTextMessage(frame.Payload)
			}
		}
	}
}

func (c *Client) handleTextMessage(data []byte) {
	var payload struct {
		Type      string `json:"type"`
		SessionID string `json:"session_id,omitempty"`
		Version   int    `json:"version,omitempty"`
		Text      string `json:"text"`
		State     string `json:"state"`
		Final     *bool  `json:"final,omitempty"`
		Message   string `json:"message"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		c.reportError(err)
		return
	}
	if payload.SessionID != "" {
		c.setSessionID(payload.SessionID)
	}

	switch payload.Type {
	case "hello":
		if payload.Version > 0 {
			c.setProtocolVersion(payload.Version)
		}
		c.logger.Info("uplink hello acknowledged",
			zap.String("session_id", c.getSessionID()),
			zap.Int("protocol_version", c.getProtocolVersion()),
		)
		if c.markHelloReady() && c.callbacks.OnConnected != nil {
			c.callbacks.OnConnected()
		}
	case "stt", "transcript":
		if payload.Text == "" || c.callbacks.OnTranscript == nil {
			return
		}
		final := payload.State != "partial"
		if payload.Final != nil {
			final = *payload.Final
		}
		c.callbacks.OnTranscript(Transcript{Text: payload.Text, Final: final})
	case "error":
		c.reportError(&RemoteError{Message: payload.Message})
	case "goodbye":
		if c.callbacks.OnGoodbye != nil {
			c.callbacks.OnGoodbye()
		}
	}
}

func (c *Client) attachSessionID(payload map[string]any) {
	if sessionID := c.getSessionID(); sessionID != "" {
		payload["session_id"] = sessionID
	}
}

func (c *Client) getSessionID() string {
	c.mu.Lock()
	sessionID := c.sessionID
	c.mu.Unlock()
	return sessionID
}

func (c *Client) setSessionID(sessionID string) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return
	}
	c.mu.Lock()
	c.sessionID = sessionID
	c.mu.Unlock()
}

func (c *Client) getProtocolVersion() int {
	c.mu.Lock()
	version := c.protocolVersion
	c.mu.Unlock()
	return version
}

func (c *Client) setProtocolVersion(version int) {
	normalized := codec.NormalizeVersion(version)
	c.mu.Lock()
	changed := c.protocolVersion != normalized
	c.protocolVersion = normalized
	c.mu.Unlock()
	if changed {
		c.logger.Info("uplink negotiated protocol version updated", zap.Int("protocol_version", normalized))
	}
}

func (c *Client) markHelloReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.helloReady {
		return false
	}
	c.helloReady = true
	return true
}

func (c *Client) reportError(err error) {
	if err != nil && c.callbacks.OnError != nil {
		c.callbacks.OnError(err)
	}
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	return closed
}

func normalizeAudioParams(params AudioParams) AudioParams {
	params.Format = normalizeAudioFormat(params.Format)
	if params.SampleRate <= 0 {
		params.SampleRate = 16000
	}
	params.Channels = 1
	if params.FrameDuration <= 0 {
		params.FrameDuration = 20
	}
	if params.ChunkSamples <= 0 {
		params.ChunkSamples = audio.DefaultBufferCapacity
	}
	return params
}

func normalizeAudioFormat(format string) string {
	switch strings.TrimSpace(strings.ToLower(format)) {
	case "opus":
		return FormatOpus
	default:
		return FormatPCM16
	}
}

func normalizeListenMode(mode string) string {
	switch strings.TrimSpace(strings.ToLower(mode)) {
	case "manual", "realtime", "auto":
		return strings.TrimSpace(strings.ToLower(mode))
	default:
		return "auto"
	}
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func nextBackoff(delay time.Duration) time.Duration {
	if delay*2 >= maxBackoff {
		return maxBackoff
	}
	return delay * 2
}
