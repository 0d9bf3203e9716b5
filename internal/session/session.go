package session

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/saker-ai/speech-uplink/internal/metrics"
	"github.com/saker-ai/speech-uplink/internal/session/fsm"
	"github.com/saker-ai/speech-uplink/pkg/audio"
)

// ErrNotCapturing is returned by Stop when the session was never started or already stopped.
var ErrNotCapturing = errors.New("session is not capturing")

// ChunkSink consumes chunks on the consumer goroutine. A sink that also
// implements io.Closer is closed once the queue is drained.
type ChunkSink interface {
	WriteChunk(ctx context.Context, chunk audio.Chunk) error
}

// Options configures a capture session.
type Options struct {
	ID         string
	Pipeline   audio.Config
	QueueDepth int
	Sinks      []ChunkSink
	Metrics    *metrics.Metrics
	Logger     *zap.Logger
}

// Stats is a point-in-time view of a session.
type Stats struct {
	ID               string              `json:"session_id"`
	State            fsm.State           `json:"state"`
	SourceSampleRate float64             `json:"source_sample_rate"`
	TargetSampleRate float64             `json:"target_sample_rate"`
	BufferCapacity   int                 `json:"buffer_capacity"`
	StartedAt        time.Time           `json:"started_at"`
	Pipeline         audio.PipelineStats `json:"pipeline"`
	QueueDepth       int                 `json:"queue_depth"`
	Dropped          uint64              `json:"dropped_chunks"`
	Delivered        uint64              `json:"delivered_chunks"`
	SinkErrors       uint64              `json:"sink_errors"`
	UplinkReconnects uint64              `json:"uplink_reconnects"`
}

// Session owns one pipeline and its hand-off queue.
//
// Feed and Stop are called by the producer goroutine only. Run is the
// consumer and must be called exactly once.
type Session struct {
	id        string
	startedAt time.Time
	machine   *fsm.Machine
	queue     *audio.ChunkQueue
	sinks     []ChunkSink
	metrics   *metrics.Metrics
	logger    *zap.Logger

	mu       sync.Mutex
	pipeline *audio.Pipeline
	scratch  []audio.Chunk

	delivered  atomic.Uint64
	sinkErrors atomic.Uint64
	done       chan struct{}
}

// New validates the pipeline configuration and returns a capturing session.
func New(opts Options) (*Session, error) {
	pipeline, err := audio.NewPipeline(opts.Pipeline)
	if err != nil {
		return nil, err
	}
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	s := &Session{
		id:        opts.ID,
		startedAt: time.Now(),
		machine:   fsm.New(),
		queue:     audio.NewChunkQueue(opts.QueueDepth),
		sinks:     opts.Sinks,
		metrics:   opts.Metrics,
		logger:    opts.Logger.With(zap.String("session_id", opts.ID)),
		pipeline:  pipeline,
		done:      make(chan struct{}),
	}
	if err := s.machine.OnStart(); err != nil {
		return nil, err
	}
	cfg := pipeline.Config()
	s.logger.Info("capture session started",
		zap.Float64("source_sample_rate", cfg.SourceSampleRate),
		zap.Float64("target_sample_rate", cfg.TargetSampleRate),
		zap.Int("buffer_capacity", cfg.BufferCapacity),
		zap.String("resampler", cfg.Resampler),
		zap.Bool("flush_partial_on_close", cfg.FlushPartialOnClose),
	)
	return s, nil
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// StartedAt returns when the session was created.
func (s *Session) StartedAt() time.Time { return s.startedAt }

// State returns the lifecycle state.
func (s *Session) State() fsm.State { return s.machine.State() }

// Done is closed when Run returns.
func (s *Session) Done() <-chan struct{} { return s.done }

// Feed runs one audio block through the pipeline and hands completed chunks
// to the consumer. It never blocks on the consumer; chunks that do not fit
// the queue are dropped. Blocks fed outside the capturing state are ignored.
func (s *Session) Feed(block []float32) int {
	if !s.machine.Accepting() {
		return 0
	}
	start := time.Now()

	s.mu.Lock()
	before := s.pipeline.Stats()
	s.scratch = s.pipeline.ProcessBlockInto(s.scratch[:0], block)
	after := s.pipeline.Stats()
	chunks := s.scratch
	s.mu.Unlock()

	dropped := s.handOff(chunks)
	clear(chunks)
	s.metrics.RecordBlock(len(block), int(after.OutputSamples-before.OutputSamples), len(chunks), time.Since(start))
	s.metrics.RecordResamplerErrors(after.ResamplerErrors - before.ResamplerErrors)
	s.metrics.RecordDropped(dropped)
	s.metrics.SetQueueDepth(s.queue.Len())
	return len(chunks)
}

func (s *Session) handOff(chunks []audio.Chunk) int {
	dropped := 0
	for _, chunk := range chunks {
		if !s.queue.TryPush(chunk) {
			dropped++
			s.logger.Warn("chunk dropped, consumer behind", zap.Uint64("seq", chunk.Seq), zap.Int("queue_depth", s.queue.Len()))
		}
	}
	return dropped
}

// Stop ends capture. The pipeline is closed (flushing a partial chunk when
// configured) and the queue is closed so Run can drain and return.
func (s *Session) Stop() (Stats, error) {
	if err := s.machine.OnStop(); err != nil {
		return s.Stats(), ErrNotCapturing
	}
	s.mu.Lock()
	before := s.pipeline.Stats().ResamplerErrors
	chunks := s.pipeline.Close()
	resamplerErrors := s.pipeline.Stats().ResamplerErrors - before
	s.mu.Unlock()

	s.metrics.RecordResamplerErrors(resamplerErrors)

	for _, chunk := range chunks {
		s.metrics.RecordFlushedChunk(chunk.Partial)
	}
	s.metrics.RecordDropped(s.handOff(chunks))
	s.queue.Close()

	stats := s.Stats()
	s.logger.Info("capture session stopped",
		zap.Uint64("blocks", stats.Pipeline.Blocks),
		zap.Uint64("chunks", stats.Pipeline.Chunks),
		zap.Uint64("dropped_chunks", stats.Dropped),
	)
	return stats, nil
}

// Abort stops capture without flushing. Used when the capture connection is lost.
func (s *Session) Abort() {
	if s.machine.State() == fsm.StateCapturing {
		_ = s.machine.Force(fsm.StateDraining)
		s.mu.Lock()
		for _, chunk := range s.pipeline.Close() {
			chunk.Release()
		}
		s.mu.Unlock()
		s.queue.Close()
	}
}

// Run delivers queued chunks to every sink in order until the queue is closed
// and drained or ctx is cancelled. Sink errors are logged and counted, not returned.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.done)
	defer s.closeSinks()

	for {
		select {
		case <-ctx.Done():
			s.machine.Abort()
			s.drainAndRelease()
			return ctx.Err()
		case chunk, ok := <-s.queue.C():
			if !ok {
				_ = s.machine.OnDrained()
				return nil
			}
			s.deliver(ctx, chunk)
			s.metrics.SetQueueDepth(s.queue.Len())
		}
	}
}

func (s *Session) deliver(ctx context.Context, chunk audio.Chunk) {
	for _, sink := range s.sinks {
		if err := sink.WriteChunk(ctx, chunk); err != nil {
			s.sinkErrors.Add(1)
			s.logger.Warn("chunk sink failed", zap.Uint64("seq", chunk.Seq), zap.Error(err))
		}
	}
	s.delivered.Add(1)
	chunk.Release()
}

func (s *Session) drainAndRelease() {
	for {
		select {
		case chunk, ok := <-s.queue.C():
			if !ok {
				return
			}
			chunk.Release()
		default:
			return
		}
	}
}

func (s *Session) closeSinks() {
	for _, sink := range s.sinks {
		closer, ok := sink.(io.Closer)
		if !ok {
			continue
		}
		if err := closer.Close(); err != nil {
			s.logger.Warn("chunk sink close failed", zap.Error(err))
		}
	}
}

// Stats returns a snapshot of the session counters.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	pipelineStats := s.pipeline.Stats()
	cfg := s.pipeline.Config()
	s.mu.Unlock()

	return Stats{
		ID:               s.id,
		State:            s.machine.State(),
		SourceSampleRate: cfg.SourceSampleRate,
		TargetSampleRate: cfg.TargetSampleRate,
		BufferCapacity:   cfg.BufferCapacity,
		StartedAt:        s.startedAt,
		Pipeline:         pipelineStats,
		QueueDepth:       s.queue.Len(),
		Dropped:          s.queue.Dropped(),
		Delivered:        s.delivered.Load(),
		SinkErrors:       s.sinkErrors.Load(),
		UplinkReconnects: s.uplinkReconnects(),
	}
}

func (s *Session) uplinkReconnects() uint64 {
	var total uint64
	for _, sink := range s.sinks {
		if counter, ok := sink.(interface{ Reconnects() uint64 }); ok {
			total += counter.Reconnects()
		}
	}
	return total
}
