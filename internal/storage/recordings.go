package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/saker-ai/speech-uplink/pkg/audio"
)

var safeNamePattern = regexp.MustCompile(`^[A-Za-z0-9_\-\.]+$`)

var (
	// ErrInvalidID is returned for recording ids that are not plain file names.
	ErrInvalidID = errors.New("invalid recording id")
	// ErrRecordingFull is returned when a chunk would push the WAV data past 4 GiB.
	ErrRecordingFull = errors.New("recording exceeds wav size limit")
)

// RecordingInfo describes one stored recording.
type RecordingInfo struct {
	ID              string  `json:"id"`
	SampleRate      int     `json:"sample_rate"`
	DurationSeconds float64 `json:"duration_seconds"`
	SizeBytes       int64   `json:"size_bytes"`
	Timestamp       string  `json:"timestamp"`
}

// Store keeps per-session WAV recordings in one directory.
type Store struct {
	dir string
}

// NewStore creates dir if needed.
func NewStore(dir string) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("recording dir is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Store{dir: dir}, nil
}

// Dir returns the recording directory.
func (s *Store) Dir() string { return s.dir }

// Create opens a new recording at sampleRate.
func (s *Store) Create(sampleRate int) (*Recorder, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate %d: %w", sampleRate, audio.ErrInvalidSampleRate)
	}
	id := time.Now().Format("2006-01-02_15-04-05") + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	return createRecorder(id, filepath.Join(s.dir, id+".wav"), os.O_EXCL, sampleRate)
}

// CreateFile writes a recording to path outside any store, truncating an existing file.
func CreateFile(path string, sampleRate int) (*Recorder, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate %d: %w", sampleRate, audio.ErrInvalidSampleRate)
	}
	id := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return createRecorder(id, path, os.O_TRUNC, sampleRate)
}

func createRecorder(id, path string, mode int, sampleRate int) (*Recorder, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|mode, 0o644)
	if err != nil {
		return nil, err
	}
	if _, err := f.Write(newWAVHeader(sampleRate, 0).bytes()); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Recorder{id: id, path: path, file: f, sampleRate: sampleRate}, nil
}

// Path returns the file path of the recording with id.
func (s *Store) Path(id string) (string, error) {
	if !safeNamePattern.MatchString(id) || strings.Contains(id, "..") {
		return "", ErrInvalidID
	}
	return filepath.Join(s.dir, id+".wav"), nil
}

// Delete removes the recording with id. It reports whether a file was removed.
func (s *Store) Delete(id string) bool {
	path, err := s.Path(id)
	if err != nil {
		return false
	}
	if _, err := os.Stat(path); err != nil {
		return false
	}
	return os.Remove(path) == nil
}

// List returns all readable recordings, newest first.
func (s *Store) List() []RecordingInfo {
	list := []RecordingInfo{}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return list
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".wav") {
			continue
		}
		info, err := readInfo(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			continue
		}
		list = append(list, info)
	}

	sort.Slice(list, func(i, j int) bool {
		if list[i].Timestamp == list[j].Timestamp {
			return list[i].ID > list[j].ID
		}
		return list[i].Timestamp > list[j].Timestamp
	})
	return list
}

func readInfo(path string) (RecordingInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return RecordingInfo{}, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return RecordingInfo{}, err
	}
	header, err := readWAVHeader(f)
	if err != nil {
		return RecordingInfo{}, err
	}
	return RecordingInfo{
		ID:              strings.TrimSuffix(filepath.Base(path), ".wav"),
		SampleRate:      int(header.SampleRate),
		DurationSeconds: header.duration(),
		SizeBytes:       stat.Size(),
		Timestamp:       stat.ModTime().Format(time.RFC3339Nano),
	}, nil
}

// Recorder appends chunks to one WAV file. The header sizes are written on Close.
type Recorder struct {
	id         string
	path       string
	sampleRate int

	mu      sync.Mutex
	file    *os.File
	samples int64
	buf     []byte
}

// ID returns the recording id.
func (r *Recorder) ID() string { return r.id }

// Path returns the file path.
func (r *Recorder) Path() string { return r.path }

// Samples returns the number of samples written so far.
func (r *Recorder) Samples() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.samples
}

// WriteChunk appends the chunk's samples. Chunks that would overflow the WAV
// size fields are rejected with ErrRecordingFull and nothing is written.
func (r *Recorder) WriteChunk(_ context.Context, chunk audio.Chunk) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return os.ErrClosed
	}
	if (r.samples+int64(len(chunk.Samples)))*2 > maxWAVDataBytes {
		return ErrRecordingFull
	}
	r.buf = audio.Int16SliceToBytesInto(r.buf, chunk.Samples)
	if _, err := r.file.Write(r.buf); err != nil {
		return err
	}
	r.samples += int64(len(chunk.Samples))
	return nil
}

// Close patches the header with the final sizes and closes the file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	f := r.file
	r.file = nil

	header := newWAVHeader(r.sampleRate, uint32(r.samples*2))
	if _, err := f.WriteAt(header.bytes(), 0); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
