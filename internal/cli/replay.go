package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/saker-ai/speech-uplink/internal/storage"
	"github.com/saker-ai/speech-uplink/pkg/audio"
)

// ErrEmptyInput is returned when the replay input holds no complete sample.
var ErrEmptyInput = errors.New("input contains no float32 samples")

// ReplaySummary is printed after a replay.
type ReplaySummary struct {
	Config        audio.Config        `json:"config"`
	Stats         audio.PipelineStats `json:"stats"`
	FullChunks    int                 `json:"full_chunks"`
	PartialChunks int                 `json:"partial_chunks"`
	Output        string              `json:"output,omitempty"`
}

type replayOptions struct {
	in           string
	out          string
	sourceRate   float64
	targetRate   float64
	capacity     int
	block        int
	flushPartial bool
	resampler    string
}

// ReplayCmd runs a raw float32 capture file through the pipeline offline.
func ReplayCmd() *cobra.Command {
	var opts replayOptions

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Run a raw float32 capture through the chunking pipeline",
		Long: `Replay reads little-endian float32 mono samples, feeds them to the
pipeline in blocks of --block samples, and optionally writes the emitted
16-bit chunks to a WAV file. A JSON summary is printed on stdout.`,
		Example: `  speech-uplink replay --in mic.f32 --source-rate 48000 --out mic.wav
  speech-uplink replay --in - --source-rate 44100 --capacity 1024 --flush-partial`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runReplay(cmd.InOrStdin(), cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.in, "in", "i", "", "Input file of float32 samples, or - for stdin")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "Write emitted chunks to this WAV file")
	cmd.Flags().Float64Var(&opts.sourceRate, "source-rate", 0, "Capture sample rate in Hz")
	cmd.Flags().Float64Var(&opts.targetRate, "target-rate", 16000, "Output sample rate in Hz")
	cmd.Flags().IntVar(&opts.capacity, "capacity", audio.DefaultBufferCapacity, "Samples per emitted chunk")
	cmd.Flags().IntVar(&opts.block, "block", 1024, "Samples per input block")
	cmd.Flags().BoolVar(&opts.flushPartial, "flush-partial", false, "Emit the final partial chunk on close")
	cmd.Flags().StringVar(&opts.resampler, "resampler", audio.ResamplerLinear, "Resampler: linear, soxr")
	_ = cmd.MarkFlagRequired("in")
	_ = cmd.MarkFlagRequired("source-rate")

	return cmd
}

func runReplay(stdin io.Reader, stdout io.Writer, opts replayOptions) error {
	if opts.block <= 0 {
		return fmt.Errorf("block %d must be positive", opts.block)
	}

	pipeline, err := audio.NewPipeline(audio.Config{
		SourceSampleRate:    opts.sourceRate,
		TargetSampleRate:    opts.targetRate,
		BufferCapacity:      opts.capacity,
		FlushPartialOnClose: opts.flushPartial,
		Resampler:           opts.resampler,
	})
	if err != nil {
		return err
	}

	data, err := readInput(stdin, opts.in)
	if err != nil {
		return err
	}
	if len(data) < 4 {
		return ErrEmptyInput
	}

	var rec *storage.Recorder
	if opts.out != "" {
		rec, err = storage.CreateFile(opts.out, int(pipeline.Config().TargetSampleRate))
		if err != nil {
			return err
		}
		defer rec.Close()
	}

	ctx := context.Background()
	summary := ReplaySummary{Config: pipeline.Config(), Output: opts.out}
	emit := func(chunks []audio.Chunk) error {
		var writeErr error
		for _, chunk := range chunks {
			if chunk.Partial {
				summary.PartialChunks++
			} else {
				summary.FullChunks++
			}
			if rec != nil && writeErr == nil {
				writeErr = rec.WriteChunk(ctx, chunk)
			}
			chunk.Release()
		}
		return writeErr
	}

	var (
		samples []float32
		chunks  []audio.Chunk
	)
	blockBytes := opts.block * 4
	for offset := 0; offset < len(data); offset += blockBytes {
		end := min(offset+blockBytes, len(data))
		samples = audio.BytesToFloat32SliceInto(samples, data[offset:end])
		chunks = pipeline.ProcessBlockInto(chunks[:0], samples)
		if err := emit(chunks); err != nil {
			return err
		}
	}
	if err := emit(pipeline.Close()); err != nil {
		return err
	}
	summary.Stats = pipeline.Stats()

	if rec != nil {
		if err := rec.Close(); err != nil {
			return err
		}
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}
