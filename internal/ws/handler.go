package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	appconfig "github.com/saker-ai/speech-uplink/internal/config"
	"github.com/saker-ai/speech-uplink/internal/metrics"
	"github.com/saker-ai/speech-uplink/internal/protocol"
	"github.com/saker-ai/speech-uplink/internal/session"
	"github.com/saker-ai/speech-uplink/internal/storage"
)

// Handler serves the capture websocket. Each connection may run one capture
// session at a time; a new start after stop begins a new session.
type Handler struct {
	logger   *zap.Logger
	upgrader websocket.Upgrader
	config   appconfig.Config
	registry *session.Registry
	store    *storage.Store
	metrics  *metrics.Metrics
}

// NewHandler creates a capture handler. store is nil when recording is disabled.
func NewHandler(logger *zap.Logger, cfg appconfig.Config, registry *session.Registry, store *storage.Store, m *metrics.Metrics) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		logger:   logger,
		config:   cfg,
		registry: registry,
		store:    store,
		metrics:  m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

type connection struct {
	conn    *websocket.Conn
	sendMu  sync.Mutex
	logger  *zap.Logger
	handler *Handler
	id      string

	ctx     context.Context
	group   *errgroup.Group
	capture *session.Session
	samples []float32
}

// Handle upgrades the request and serves capture commands until the client disconnects.
func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(h.config.Capture.MaxMessageBytes)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	c := &connection{
		conn:    conn,
		logger:  h.logger,
		handler: h,
		id:      uuid.NewString(),
		ctx:     gctx,
		group:   g,
	}
	c.logger.Info("ws connection opened",
		zap.String("connection_id", c.id),
		zap.String("remote_addr", r.RemoteAddr),
	)

	g.Go(func() error {
		c.readLoop()
		cancel()
		c.abortCapture()
		return nil
	})
	_ = g.Wait()

	c.logger.Info("ws connection closed", zap.String("connection_id", c.id))
}

func (c *connection) readLoop() {
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			c.logger.Debug("ws read ended", zap.String("connection_id", c.id), zap.Error(err))
			return
		}
		if msgType == websocket.BinaryMessage {
			c.onBinaryBlock(data)
			continue
		}
		var cmd protocol.ClientCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			c.sendError("invalid json")
			continue
		}
		if cmd.Type != protocol.CommandHeartbeat && cmd.Type != protocol.CommandAudioBlock {
			c.logger.Debug("ws incoming command",
				zap.String("connection_id", c.id),
				zap.String("type", cmd.Type),
			)
		}
		c.dispatch(cmd)
	}
}

func (c *connection) sendJSON(event protocol.ServerEvent) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if err := c.conn.WriteJSON(event); err != nil {
		c.logger.Debug("ws send failed", zap.Error(err))
	}
}

func (c *connection) sendError(message string) {
	c.sendJSON(protocol.ServerEvent{Type: protocol.EventError, Message: message})
}

func (c *connection) abortCapture() {
	if c.capture == nil {
		return
	}
	capture := c.capture
	c.capture = nil
	capture.Abort()
	<-capture.Done()
	c.handler.registry.Remove(capture.ID())
	c.logger.Info("capture session aborted", zap.String("session_id", capture.ID()))
}

func newSessionID() string {
	return uuid.NewString()
}
