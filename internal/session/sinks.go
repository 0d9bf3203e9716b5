package session

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/saker-ai/speech-uplink/internal/metrics"
	"github.com/saker-ai/speech-uplink/pkg/audio"
	"github.com/saker-ai/speech-uplink/pkg/uplink"
)

const listenStopTimeout = 2 * time.Second

// UplinkSink forwards chunks to the speech service. It announces listen
// start before the first chunk and listen stop when closed, then closes the client.
type UplinkSink struct {
	client  *uplink.Client
	metrics *metrics.Metrics
	logger  *zap.Logger
	started bool
}

// NewUplinkSink wraps client. m and logger may be nil.
func NewUplinkSink(client *uplink.Client, m *metrics.Metrics, logger *zap.Logger) *UplinkSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UplinkSink{client: client, metrics: m, logger: logger}
}

// WriteChunk sends chunk and records the frames written.
func (s *UplinkSink) WriteChunk(ctx context.Context, chunk audio.Chunk) error {
	if !s.started {
		if err := s.client.SendListenState(ctx, "start"); err != nil {
			s.metrics.RecordUplinkError("listen")
			return err
		}
		s.started = true
	}
	frames, err := s.client.SendChunk(ctx, chunk)
	s.metrics.RecordFrameSent(s.client.Config().AudioParams.Format, frames)
	if err != nil {
		s.metrics.RecordUplinkError("send")
	}
	return err
}

// Reconnects reports how many times the uplink client dialed again.
func (s *UplinkSink) Reconnects() uint64 { return s.client.Reconnects() }

// Close flushes held-back Opus samples and sends listen stop if capture was
// announced, then closes the client.
func (s *UplinkSink) Close() error {
	defer s.client.Close()
	if !s.started {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), listenStopTimeout)
	defer cancel()
	frames, err := s.client.Flush(ctx)
	s.metrics.RecordFrameSent(s.client.Config().AudioParams.Format, frames)
	if err != nil {
		s.metrics.RecordUplinkError("send")
		s.logger.Debug("uplink flush failed", zap.Error(err))
	}
	if err := s.client.SendListenState(ctx, "stop"); err != nil {
		s.logger.Debug("uplink listen stop failed", zap.Error(err))
	}
	return nil
}

// SinkFunc adapts a function to ChunkSink.
type SinkFunc func(ctx context.Context, chunk audio.Chunk) error

// WriteChunk calls f.
func (f SinkFunc) WriteChunk(ctx context.Context, chunk audio.Chunk) error {
	return f(ctx, chunk)
}
