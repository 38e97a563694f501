package ws

import (
	"encoding/json"

	"inkwell/api/internal/annotations"
	"inkwell/api/internal/ot"
)

// Inbound event types accepted from clients.
const (
	EventJoin          = "join"
	EventOperation     = "operation"
	EventCursorUpdate  = "cursorUpdate"
	EventAddComment    = "addComment"
	EventUpdateComment = "updateComment"
	EventRemoveComment = "removeComment"
	EventLeave         = "leave"
)

// ClientMessage is the inbound frame. Fields beyond Type and DocumentID are
// event-specific and left empty otherwise.
type ClientMessage struct {
	Type       string              `json:"type"`
	DocumentID string              `json:"documentId"`
	Operation  ot.Operation        `json:"operation,omitempty"`
	Cursor     json.RawMessage     `json:"cursor,omitempty"`
	Body       string              `json:"body,omitempty"`
	Anchor     json.RawMessage     `json:"anchor,omitempty"`
	CommentID  string              `json:"commentId,omitempty"`
	Fields     *annotations.Update `json:"fields,omitempty"`
}
