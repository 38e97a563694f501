package collab

import (
	"encoding/json"

	"inkwell/api/internal/annotations"
	"inkwell/api/internal/ot"
	"inkwell/api/internal/presence"
)

// Outbound message types fanned out to document rooms.
const (
	MsgDocumentState  = "documentState"
	MsgUserJoined     = "userJoined"
	MsgUserLeft       = "userLeft"
	MsgOperation      = "operation"
	MsgOperationError = "operationError"
	MsgCursorUpdate   = "cursorUpdate"
	MsgCommentAdded   = "commentAdded"
	MsgCommentUpdated = "commentUpdated"
	MsgCommentRemoved = "commentRemoved"
	MsgError          = "error"
)

// Participant is the identity attached to a connection by the identity
// collaborator.
type Participant struct {
	ID       string `json:"id"`
	Username string `json:"username,omitempty"`
}

// Message is the single outbound envelope; unused fields stay empty on the
// wire. Framing beyond JSON is the transport's business.
type Message struct {
	Type         string                `json:"type"`
	DocumentID   string                `json:"documentId,omitempty"`
	Participant  *Participant          `json:"participant,omitempty"`
	Content      string                `json:"content,omitempty"`
	Version      int                   `json:"version,omitempty"`
	Operation    ot.Operation          `json:"operation,omitempty"`
	Participants []Participant         `json:"participants,omitempty"`
	Presence     []presence.Entry      `json:"presence,omitempty"`
	Comments     []annotations.Comment `json:"comments,omitempty"`
	Comment      *annotations.Comment  `json:"comment,omitempty"`
	CommentID    string                `json:"commentId,omitempty"`
	Cursor       json.RawMessage       `json:"cursor,omitempty"`
	Code         string                `json:"code,omitempty"`
	Error        string                `json:"error,omitempty"`
}

// Outbound is one participant's message sink. Send must not block; slow
// consumers are the transport's problem.
type Outbound interface {
	Send(msg Message)
}

// StateSnapshot is the full state handed to a joining participant so the
// client can render without replaying history.
type StateSnapshot struct {
	DocumentID   string                `json:"documentId"`
	Content      string                `json:"content"`
	Version      int                   `json:"version"`
	Participants []Participant         `json:"participants"`
	Presence     []presence.Entry      `json:"presence"`
	Comments     []annotations.Comment `json:"comments"`
}
