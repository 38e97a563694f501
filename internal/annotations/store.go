// Package annotations keeps per-document comments with resolution state.
// Entries never auto-expire; an external collaborator may garbage-collect
// documents wholesale.
package annotations

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"inkwell/api/internal/util"
)

// Comment is one annotation attached to a document.
type Comment struct {
	ID        string          `json:"id"`
	Author    string          `json:"author"`
	Body      string          `json:"body"`
	Anchor    json.RawMessage `json:"anchor,omitempty"`
	Resolved  bool            `json:"resolved"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Update carries the patchable comment fields. Nil means leave unchanged.
type Update struct {
	Body     *string         `json:"body,omitempty"`
	Resolved *bool           `json:"resolved,omitempty"`
	Anchor   json.RawMessage `json:"anchor,omitempty"`
}

// Store owns all comments in the process, keyed by (document, comment).
type Store struct {
	mu   sync.RWMutex
	docs map[string]map[string]*Comment
}

func NewStore() *Store {
	return &Store{docs: make(map[string]map[string]*Comment)}
}

// Add creates a comment with a generated id, unresolved.
func (s *Store) Add(documentID, author, body string, anchor json.RawMessage) Comment {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	comment := &Comment{
		ID:        util.NewID("cmt"),
		Author:    author,
		Body:      body,
		Anchor:    anchor,
		CreatedAt: now,
		UpdatedAt: now,
	}
	doc := s.docs[documentID]
	if doc == nil {
		doc = make(map[string]*Comment)
		s.docs[documentID] = doc
	}
	doc[comment.ID] = comment
	return *comment
}

// Update merges the given fields and stamps UpdatedAt. Returns nil when the
// comment does not exist.
func (s *Store) Update(documentID, commentID string, fields Update) *Comment {
	s.mu.Lock()
	defer s.mu.Unlock()

	comment, ok := s.docs[documentID][commentID]
	if !ok {
		return nil
	}
	if fields.Body != nil {
		comment.Body = *fields.Body
	}
	if fields.Resolved != nil {
		comment.Resolved = *fields.Resolved
	}
	if fields.Anchor != nil {
		comment.Anchor = fields.Anchor
	}
	comment.UpdatedAt = time.Now()
	c := *comment
	return &c
}

// Remove deletes a comment, reporting whether anything was removed.
func (s *Store) Remove(documentID, commentID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[documentID]
	if !ok {
		return false
	}
	if _, ok := doc[commentID]; !ok {
		return false
	}
	delete(doc, commentID)
	if len(doc) == 0 {
		delete(s.docs, documentID)
	}
	return true
}

// List returns a document's comments, oldest first.
func (s *Store) List(documentID string) []Comment {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc := s.docs[documentID]
	out := make([]Comment, 0, len(doc))
	for _, c := range doc {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
