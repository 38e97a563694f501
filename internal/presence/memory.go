package presence

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"
)

// Memory is the in-process Tracker. Safe for concurrent use.
type Memory struct {
	mu   sync.RWMutex
	docs map[string]map[string]*Entry
}

func NewMemory() *Memory {
	return &Memory{docs: make(map[string]map[string]*Entry)}
}

func (m *Memory) Update(_ context.Context, documentID, participantID, username string, cursor json.RawMessage) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	doc := m.docs[documentID]
	if doc == nil {
		doc = make(map[string]*Entry)
		m.docs[documentID] = doc
	}
	entry, ok := doc[participantID]
	if !ok {
		entry = &Entry{ParticipantID: participantID, JoinedAt: now}
		doc[participantID] = entry
	}
	if username != "" {
		entry.Username = username
	}
	if cursor != nil {
		entry.Cursor = cursor
	}
	entry.LastActivity = now

	return snapshot(doc), nil
}

func (m *Memory) Remove(_ context.Context, documentID, participantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.docs[documentID]
	if !ok {
		return nil
	}
	delete(doc, participantID)
	if len(doc) == 0 {
		delete(m.docs, documentID)
	}
	return nil
}

func (m *Memory) List(_ context.Context, documentID string) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return snapshot(m.docs[documentID]), nil
}

func snapshot(doc map[string]*Entry) []Entry {
	out := make([]Entry, 0, len(doc))
	for _, e := range doc {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].ParticipantID < out[j].ParticipantID
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out
}
