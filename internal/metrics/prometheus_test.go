package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordSessionLifecycle(t *testing.T) {
	m := NewMetrics()
	m.RecordSessionStarted()
	m.RecordSessionStarted()
	m.RecordSessionStopped(2 * time.Second)

	if got := testutil.ToFloat64(m.ActiveSessions); got != 1 {
		t.Fatalf("active=%v, want 1", got)
	}
	if got := testutil.ToFloat64(m.SessionsStarted); got != 2 {
		t.Fatalf("started=%v, want 2", got)
	}
}

func TestRecordBlockAndDrops(t *testing.T) {
	m := NewMetrics()
	m.RecordBlock(128, 42, 1, time.Millisecond)
	m.RecordFlushedChunk(true)
	m.RecordDropped(3)
	m.RecordDropped(0)
	m.RecordResamplerErrors(2)
	m.RecordResamplerErrors(0)

	if got := testutil.ToFloat64(m.ChunksEmitted); got != 2 {
		t.Fatalf("chunks=%v, want 2", got)
	}
	if got := testutil.ToFloat64(m.PartialChunks); got != 1 {
		t.Fatalf("partial=%v, want 1", got)
	}
	if got := testutil.ToFloat64(m.OutputSamples); got != 42 {
		t.Fatalf("output samples=%v, want 42", got)
	}
	if got := testutil.ToFloat64(m.ChunksDropped); got != 3 {
		t.Fatalf("dropped=%v, want 3", got)
	}
	if got := testutil.ToFloat64(m.ResamplerErrors); got != 2 {
		t.Fatalf("resampler errors=%v, want 2", got)
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := NewMetrics()
	m.RecordFrameSent("pcm16", 2)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `uplink_frames_sent_total{format="pcm16"} 2`) {
		t.Fatalf("metrics body missing frame counter:\n%s", body)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordSessionStarted()
	m.RecordBlock(1, 1, 1, time.Millisecond)
	m.RecordUplinkError("dial")
	if m.Registry() != nil {
		t.Fatal("nil metrics returned a registry")
	}
}
