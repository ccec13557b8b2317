package server

import (
	"sync"

	"github.com/STTM-NSU/futures-signal/internal/pipeline"
)

// Store keeps the latest published snapshot for readers.
type Store struct {
	mu   sync.RWMutex
	last *pipeline.Snapshot
}

func NewStore() *Store {
	return &Store{}
}

func (s *Store) Publish(snap pipeline.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.last = &snap
}

func (s *Store) Last() (pipeline.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.last == nil {
		return pipeline.Snapshot{}, false
	}
	return *s.last, true
}
