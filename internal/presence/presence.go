// Package presence tracks live cursors and selections of connected
// participants, keyed by (document, participant). Backends: in-process map
// for single-node deployments, Redis for shared state.
package presence

import (
	"context"
	"encoding/json"
	"time"
)

// Entry is one participant's live presence in a document.
type Entry struct {
	ParticipantID string          `json:"participantId"`
	Username      string          `json:"username,omitempty"`
	Cursor        json.RawMessage `json:"cursor,omitempty"`
	JoinedAt      time.Time       `json:"joinedAt"`
	LastActivity  time.Time       `json:"lastActivity"`
}

// Tracker stores presence entries. Update upserts with a refreshed activity
// timestamp and returns the document's current entries; Remove drops the
// whole per-document set once the last participant leaves.
type Tracker interface {
	Update(ctx context.Context, documentID, participantID, username string, cursor json.RawMessage) ([]Entry, error)
	Remove(ctx context.Context, documentID, participantID string) error
	List(ctx context.Context, documentID string) ([]Entry, error)
}
