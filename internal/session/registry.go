package session

import (
	"sort"
	"sync"
	"time"

	"github.com/saker-ai/speech-uplink/internal/metrics"
)

// Registry tracks the live capture sessions.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	metrics  *metrics.Metrics
}

// NewRegistry creates an empty registry. m may be nil.
func NewRegistry(m *metrics.Metrics) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		metrics:  m,
	}
}

// Add registers s. It reports false if a session with the same id exists.
func (r *Registry) Add(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.ID()]; ok {
		return false
	}
	r.sessions[s.ID()] = s
	r.metrics.RecordSessionStarted()
	return true
}

// Remove unregisters the session with id and returns it.
func (r *Registry) Remove(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil
	}
	delete(r.sessions, id)
	r.metrics.RecordSessionStopped(time.Since(s.StartedAt()))
	return s
}

// Get returns the session with id, or nil.
func (r *Registry) Get(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[id]
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Snapshot returns stats for every live session, oldest first.
func (r *Registry) Snapshot() []Stats {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	stats := make([]Stats, 0, len(sessions))
	for _, s := range sessions {
		stats = append(stats, s.Stats())
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].StartedAt.Equal(stats[j].StartedAt) {
			return stats[i].ID < stats[j].ID
		}
		return stats[i].StartedAt.Before(stats[j].StartedAt)
	})
	return stats
}
