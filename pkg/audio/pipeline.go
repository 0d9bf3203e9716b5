package audio

import "fmt"

// Config describes one capture session's conversion.
type Config struct {
	SourceSampleRate    float64 `json:"source_sample_rate"`
	TargetSampleRate    float64 `json:"target_sample_rate"`
	BufferCapacity      int     `json:"buffer_capacity"`
	FlushPartialOnClose bool    `json:"flush_partial_on_close"`
	Resampler           string  `json:"resampler"`
}

// WithDefaults fills unset optional fields.
func (c Config) WithDefaults() Config {
	if c.BufferCapacity == 0 {
		c.BufferCapacity = DefaultBufferCapacity
	}
	c.Resampler = normalizeResamplerKind(c.Resampler)
	return c
}

// Validate reports configuration errors before any audio is processed.
func (c Config) Validate() error {
	if err := validateRates(c.SourceSampleRate, c.TargetSampleRate); err != nil {
		return err
	}
	if c.BufferCapacity <= 0 {
		return fmt.Errorf("capacity %d: %w", c.BufferCapacity, ErrInvalidCapacity)
	}
	switch normalizeResamplerKind(c.Resampler) {
	case ResamplerLinear, ResamplerSoxr:
	default:
		return fmt.Errorf("resampler %q: %w", c.Resampler, ErrUnknownResampler)
	}
	return nil
}

// PipelineStats counts what a pipeline has consumed and produced.
type PipelineStats struct {
	Blocks         uint64 `json:"blocks"`
	InputSamples   uint64 `json:"input_samples"`
	OutputSamples  uint64 `json:"output_samples"`
	Chunks         uint64 `json:"chunks"`
	BufferedSample int    `json:"buffered_samples"`
	// ResamplerErrors counts engine failures whose block was dropped.
	ResamplerErrors uint64 `json:"resampler_errors"`
}

// Pipeline resamples, quantizes and batches one mono stream.
//
// A Pipeline is owned by a single caller; none of its methods are safe for
// concurrent use and none of them block.
type Pipeline struct {
	cfg       Config
	resampler Resampler
	buffer    *ChunkBuffer
	stats     PipelineStats
	closed    bool
}

// NewPipeline validates cfg and builds the pipeline stages.
func NewPipeline(cfg Config) (*Pipeline, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	buffer, err := NewChunkBuffer(cfg.BufferCapacity)
	if err != nil {
		return nil, err
	}
	r, err := NewResampler(cfg.Resampler, cfg.SourceSampleRate, cfg.TargetSampleRate)
	if err != nil {
		return nil, err
	}
	return &Pipeline{cfg: cfg, resampler: r, buffer: buffer}, nil
}

// Config returns the effective configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// ProcessBlock runs one block through the pipeline and returns the chunks it completed, in order.
func (p *Pipeline) ProcessBlock(block []float32) []Chunk {
	return p.ProcessBlockInto(nil, block)
}

// ProcessBlockInto is ProcessBlock appending to dst, so callers can reuse a chunk slice.
func (p *Pipeline) ProcessBlockInto(dst []Chunk, block []float32) []Chunk {
	if p.closed {
		return dst
	}
	p.stats.Blocks++
	p.stats.InputSamples += uint64(len(block))
	return p.push(dst, p.resampler.Resample(block))
}

func (p *Pipeline) push(dst []Chunk, samples []float32) []Chunk {
	p.stats.OutputSamples += uint64(len(samples))
	for _, sample := range samples {
		if chunk, ok := p.buffer.Push(Quantize(sample)); ok {
			p.stats.Chunks++
			dst = append(dst, chunk)
		}
	}
	return dst
}

// Close ends the stream. With FlushPartialOnClose any resampler tail is
// pushed through and the buffered remainder is returned as a final partial
// chunk; otherwise buffered samples are discarded. Close is idempotent.
func (p *Pipeline) Close() []Chunk {
	if p.closed {
		return nil
	}
	p.closed = true
	defer p.resampler.Close()

	if !p.cfg.FlushPartialOnClose {
		p.buffer.Reset()
		return nil
	}

	chunks := p.push(nil, p.resampler.Flush())
	if chunk, ok := p.buffer.Flush(); ok {
		p.stats.Chunks++
		chunks = append(chunks, chunk)
	}
	return chunks
}

// Stats returns counters since construction.
func (p *Pipeline) Stats() PipelineStats {
	stats := p.stats
	stats.BufferedSample = p.buffer.Len()
	if counter, ok := p.resampler.(interface{ Errors() uint64 }); ok {
		stats.ResamplerErrors = counter.Errors()
	}
	return stats
}
