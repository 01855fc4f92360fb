// Package threadctx remembers, per assistant thread, which channel the user
// was viewing when the thread was opened. The platform only sends that
// context on thread-started and context-changed events, so later messages in
// the thread have to look it up here.
package threadctx

import (
	"strings"
	"sync"
	"time"
)

const defaultMaxItems = 1000

// Context mirrors the assistant thread context payload.
type Context struct {
	ChannelID    string
	TeamID       string
	EnterpriseID string
}

type entry struct {
	ctx     Context
	savedAt time.Time
}

type Store struct {
	mu       sync.RWMutex
	items    map[string]entry
	maxItems int
	now      func() time.Time
}

func NewStore(maxItems int) *Store {
	if maxItems <= 0 {
		maxItems = defaultMaxItems
	}
	return &Store{
		items:    make(map[string]entry),
		maxItems: maxItems,
		now:      time.Now,
	}
}

// Save stores the context for a thread, replacing any previous value.
func (s *Store) Save(channelID, threadTS string, ctx Context) {
	key := threadKey(channelID, threadTS)
	if key == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = entry{ctx: ctx, savedAt: s.now()}
	s.pruneLocked()
}

// Get returns the stored context for a thread.
func (s *Store) Get(channelID, threadTS string) (Context, bool) {
	key := threadKey(channelID, threadTS)
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.items[key]
	return e.ctx, ok
}

func (s *Store) pruneLocked() {
	for len(s.items) > s.maxItems {
		oldestKey := ""
		var oldestAt time.Time
		for key, e := range s.items {
			if oldestKey == "" || e.savedAt.Before(oldestAt) {
				oldestKey = key
				oldestAt = e.savedAt
			}
		}
		if oldestKey == "" {
			return
		}
		delete(s.items, oldestKey)
	}
}

func threadKey(channelID, threadTS string) string {
	channelID = strings.TrimSpace(channelID)
	threadTS = strings.TrimSpace(threadTS)
	if channelID == "" || threadTS == "" {
		return ""
	}
	return channelID + ":" + threadTS
}
