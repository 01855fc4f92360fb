// Package modelpref keeps each user's completion-model selection in memory.
// Selections do not survive a restart.
package modelpref

import (
	"strings"
	"sync"
)

type Store struct {
	mu       sync.RWMutex
	models   map[string]string
	fallback string
}

// NewStore returns a store that answers Get with fallback until the user
// makes a selection.
func NewStore(fallback string) *Store {
	return &Store{
		models:   make(map[string]string),
		fallback: strings.TrimSpace(fallback),
	}
}

// Get returns the model selected by the user, or the fallback when the user
// has never made a selection.
func (s *Store) Get(userID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if model, ok := s.models[strings.TrimSpace(userID)]; ok {
		return model
	}
	return s.fallback
}

// Set records the user's selection. The last write wins.
func (s *Store) Set(userID, model string) {
	userID = strings.TrimSpace(userID)
	model = strings.TrimSpace(model)
	if userID == "" || model == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.models[userID] = model
}

// Fallback returns the default model used for users without a selection.
func (s *Store) Fallback() string {
	return s.fallback
}
