package engine

import (
	"fmt"
	"sync"
)

// Registry hands out sessions keyed by (session ID, dataset slug). Sessions
// are created lazily on first access and passed by reference to callers; no
// process-wide singleton state exists outside the registry instance.
type Registry struct {
	mu       sync.Mutex
	catalog  *Catalog
	sessions map[string]*Session
	logger   Logger
	metrics  MetricsRecorder
}

// NewRegistry constructs a session registry over the catalog.
func NewRegistry(catalog *Catalog, logger Logger, metrics MetricsRecorder) *Registry {
	if logger == nil {
		logger = NopLogger()
	}
	if metrics == nil {
		metrics = NopMetrics()
	}
	return &Registry{
		catalog:  catalog,
		sessions: make(map[string]*Session),
		logger:   logger,
		metrics:  metrics,
	}
}

// Session returns the session for a user and dataset, creating it on first use.
func (r *Registry) Session(sessionID, slug string) (*Session, error) {
	ds, ok := r.catalog.Dataset(slug)
	if !ok {
		return nil, fmt.Errorf("dataset %q not found", slug)
	}
	key := sessionID + "\x00" + slug
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[key]; ok {
		return s, nil
	}
	s := NewSession(sessionID, ds, r.logger, r.metrics)
	r.sessions[key] = s
	r.logger.Debug("session created", "session", sessionID, "dataset", slug)
	return s, nil
}

// Drop removes all sessions for a session ID, releasing their state.
func (r *Registry) Drop(sessionID string) {
	prefix := sessionID + "\x00"
	r.mu.Lock()
	defer r.mu.Unlock()
	for key := range r.sessions {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			delete(r.sessions, key)
		}
	}
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
