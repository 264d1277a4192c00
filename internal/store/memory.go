// Package store persists match snapshots for the engine.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/DoyleJ11/party-engine/internal/engine"
)

// Memory keeps encoded snapshots in a map. Every Load decodes a fresh copy,
// so no two callers ever share a live state object.
type Memory struct {
	mu      sync.RWMutex
	matches map[string][]byte
	version map[string]int64
}

func NewMemory() *Memory {
	return &Memory{
		matches: make(map[string][]byte),
		version: make(map[string]int64),
	}
}

func (m *Memory) Create(_ context.Context, s *engine.MatchState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.matches[s.ID]; ok {
		return engine.ErrMatchExists
	}
	s.Version = 1
	data, err := engine.Marshal(s)
	if err != nil {
		s.Version = 0
		return err
	}
	m.matches[s.ID] = data
	m.version[s.ID] = s.Version
	return nil
}

func (m *Memory) Load(_ context.Context, id string) (*engine.MatchState, error) {
	m.mu.RLock()
	data, ok := m.matches[id]
	m.mu.RUnlock()
	if !ok {
		return nil, engine.ErrMatchNotFound
	}
	return engine.Unmarshal(data)
}

func (m *Memory) Save(_ context.Context, s *engine.MatchState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.version[s.ID]
	if !ok {
		return engine.ErrMatchNotFound
	}
	if current != s.Version {
		return engine.ErrVersionConflict
	}
	s.Version++
	data, err := engine.Marshal(s)
	if err != nil {
		s.Version--
		return err
	}
	m.matches[s.ID] = data
	m.version[s.ID] = s.Version
	return nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.matches, id)
	delete(m.version, id)
	return nil
}

func (m *Memory) ListByPhase(_ context.Context, phase engine.Phase) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for id, data := range m.matches {
		s, err := engine.Unmarshal(data)
		if err != nil {
			return nil, err
		}
		if s.Phase == phase {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) Close() error { return nil }
