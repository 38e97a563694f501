// Package collab coordinates live document sessions: joins, operation
// fan-out, cursor and comment events, and eager teardown when the last
// participant leaves. Events for one document are serialized by its session
// lock; different documents interleave freely.
package collab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"inkwell/api/internal/annotations"
	"inkwell/api/internal/ot"
	"inkwell/api/internal/presence"
)

var (
	ErrNoSession       = errors.New("no active session for document")
	ErrNotParticipant  = errors.New("participant not in session")
	ErrCommentNotFound = errors.New("comment not found")
)

// ContentStore is the external persistence collaborator consulted when a
// session is created.
type ContentStore interface {
	LoadContent(ctx context.Context, documentID string) (string, bool, error)
	CreateContent(ctx context.Context, documentID, content, contentType string) error
}

type session struct {
	mu           sync.Mutex
	loaded       bool
	content      string
	version      int
	participants map[string]Participant
	outbound     map[string]Outbound
	createdAt    time.Time
	lastModified time.Time
}

// Orchestrator owns the live session registry. Construct one per process and
// inject it; there is no package-level instance.
type Orchestrator struct {
	store    ContentStore
	presence presence.Tracker
	comments *annotations.Store

	mu       sync.Mutex
	sessions map[string]*session
}

func NewOrchestrator(store ContentStore, tracker presence.Tracker, comments *annotations.Store) *Orchestrator {
	return &Orchestrator{
		store:    store,
		presence: tracker,
		comments: comments,
		sessions: make(map[string]*session),
	}
}

// Join registers a participant with the document's session, creating it from
// persisted content on first join, and returns the full state snapshot.
// Presence or comment fetch failures degrade to empty sets; only a content
// load failure fails the join.
func (o *Orchestrator) Join(ctx context.Context, documentID string, p Participant, out Outbound) (*StateSnapshot, error) {
	var sess *session
	for {
		sess = o.getOrCreateSession(documentID)
		sess.mu.Lock()
		if o.registered(documentID, sess) {
			break
		}
		// A concurrent Leave tore this session down between the registry
		// fetch and the lock; start over with a fresh one.
		sess.mu.Unlock()
	}
	defer sess.mu.Unlock()

	if !sess.loaded {
		content, found, err := o.store.LoadContent(ctx, documentID)
		if err != nil {
			o.dropIfEmpty(documentID, sess)
			return nil, fmt.Errorf("load content for %s: %w", documentID, err)
		}
		if !found {
			if err := o.store.CreateContent(ctx, documentID, "", "text"); err != nil {
				log.Printf("collab: create content for %s: %v", documentID, err)
			}
		}
		sess.content = content
		sess.loaded = true
	}

	sess.participants[p.ID] = p
	if out != nil {
		sess.outbound[p.ID] = out
	}

	entries, err := o.presence.Update(ctx, documentID, p.ID, p.Username, nil)
	if err != nil {
		log.Printf("collab: presence update for %s/%s: %v", documentID, p.ID, err)
		entries = []presence.Entry{}
	}

	o.broadcastLocked(sess, p.ID, Message{
		Type:        MsgUserJoined,
		DocumentID:  documentID,
		Participant: &p,
		Presence:    entries,
	})

	return &StateSnapshot{
		DocumentID:   documentID,
		Content:      sess.content,
		Version:      sess.version,
		Participants: participantList(sess),
		Presence:     entries,
		Comments:     o.comments.List(documentID),
	}, nil
}

// SubmitOperation applies one edit to the live content, bumps the session
// version and rebroadcasts the raw operation to everyone else. Apply
// failures leave the content untouched and surface only to the submitter.
func (o *Orchestrator) SubmitOperation(ctx context.Context, documentID, participantID string, op ot.Operation) (int, error) {
	sess, err := o.lookup(documentID, participantID)
	if err != nil {
		return 0, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	updated, err := ot.Apply(sess.content, op)
	if err != nil {
		return sess.version, fmt.Errorf("apply operation: %w", err)
	}
	sess.content = updated
	sess.version++
	sess.lastModified = time.Now()

	if _, err := o.presence.Update(ctx, documentID, participantID, "", nil); err != nil {
		log.Printf("collab: presence refresh for %s/%s: %v", documentID, participantID, err)
	}

	p := sess.participants[participantID]
	o.broadcastLocked(sess, participantID, Message{
		Type:        MsgOperation,
		DocumentID:  documentID,
		Participant: &p,
		Operation:   op,
		Version:     sess.version,
	})
	return sess.version, nil
}

// UpdateCursor upserts the participant's presence entry and fans the cursor
// out to everyone except the author.
func (o *Orchestrator) UpdateCursor(ctx context.Context, documentID, participantID string, cursor json.RawMessage) error {
	sess, err := o.lookup(documentID, participantID)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if _, err := o.presence.Update(ctx, documentID, participantID, "", cursor); err != nil {
		return fmt.Errorf("update presence: %w", err)
	}
	p := sess.participants[participantID]
	o.broadcastLocked(sess, participantID, Message{
		Type:        MsgCursorUpdate,
		DocumentID:  documentID,
		Participant: &p,
		Cursor:      cursor,
	})
	return nil
}

// AddComment stores the annotation and broadcasts it to all participants,
// the author included.
func (o *Orchestrator) AddComment(_ context.Context, documentID, participantID, body string, anchor json.RawMessage) (*annotations.Comment, error) {
	sess, err := o.lookup(documentID, participantID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	p := sess.participants[participantID]
	comment := o.comments.Add(documentID, p.Username, body, anchor)
	o.broadcastLocked(sess, "", Message{
		Type:       MsgCommentAdded,
		DocumentID: documentID,
		Comment:    &comment,
	})
	return &comment, nil
}

// UpdateComment merges fields into an existing annotation and broadcasts the
// result to all participants.
func (o *Orchestrator) UpdateComment(_ context.Context, documentID, participantID, commentID string, fields annotations.Update) (*annotations.Comment, error) {
	sess, err := o.lookup(documentID, participantID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	comment := o.comments.Update(documentID, commentID, fields)
	if comment == nil {
		return nil, fmt.Errorf("comment %s: %w", commentID, ErrCommentNotFound)
	}
	o.broadcastLocked(sess, "", Message{
		Type:       MsgCommentUpdated,
		DocumentID: documentID,
		Comment:    comment,
	})
	return comment, nil
}

// RemoveComment deletes an annotation and broadcasts the removal.
func (o *Orchestrator) RemoveComment(_ context.Context, documentID, participantID, commentID string) error {
	sess, err := o.lookup(documentID, participantID)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if !o.comments.Remove(documentID, commentID) {
		return fmt.Errorf("comment %s: %w", commentID, ErrCommentNotFound)
	}
	o.broadcastLocked(sess, "", Message{
		Type:       MsgCommentRemoved,
		DocumentID: documentID,
		CommentID:  commentID,
	})
	return nil
}

// Leave removes the participant from the session and presence. The session
// is torn down entirely once its participant set empties; the next join
// rebuilds it from persisted content.
func (o *Orchestrator) Leave(ctx context.Context, documentID, participantID string) error {
	o.mu.Lock()
	sess, ok := o.sessions[documentID]
	o.mu.Unlock()
	if !ok {
		return nil
	}

	sess.mu.Lock()
	p, present := sess.participants[participantID]
	delete(sess.participants, participantID)
	delete(sess.outbound, participantID)
	empty := len(sess.participants) == 0
	if present {
		o.broadcastLocked(sess, participantID, Message{
			Type:        MsgUserLeft,
			DocumentID:  documentID,
			Participant: &p,
		})
	}
	sess.mu.Unlock()

	if err := o.presence.Remove(ctx, documentID, participantID); err != nil {
		log.Printf("collab: presence remove for %s/%s: %v", documentID, participantID, err)
	}

	if empty {
		// Lock order is session then registry, matching dropIfEmpty. A join
		// racing in between keeps the session alive.
		sess.mu.Lock()
		if len(sess.participants) == 0 {
			o.mu.Lock()
			if current, ok := o.sessions[documentID]; ok && current == sess {
				delete(o.sessions, documentID)
			}
			o.mu.Unlock()
		}
		sess.mu.Unlock()
	}
	return nil
}

// SessionContent exposes the live content and version for explicit snapshot
// commits. Returns ErrNoSession when the document has no live session.
func (o *Orchestrator) SessionContent(documentID string) (string, int, error) {
	o.mu.Lock()
	sess, ok := o.sessions[documentID]
	o.mu.Unlock()
	if !ok {
		return "", 0, fmt.Errorf("document %s: %w", documentID, ErrNoSession)
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.content, sess.version, nil
}

// ActiveSessions reports the number of live document sessions.
func (o *Orchestrator) ActiveSessions() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.sessions)
}

func (o *Orchestrator) getOrCreateSession(documentID string) *session {
	o.mu.Lock()
	defer o.mu.Unlock()
	sess, ok := o.sessions[documentID]
	if !ok {
		sess = &session{
			participants: make(map[string]Participant),
			outbound:     make(map[string]Outbound),
			createdAt:    time.Now(),
		}
		o.sessions[documentID] = sess
	}
	return sess
}

// dropIfEmpty discards a session whose initial content load failed so the
// next join retries from scratch. Callers hold sess.mu.
func (o *Orchestrator) dropIfEmpty(documentID string, sess *session) {
	if len(sess.participants) > 0 {
		return
	}
	o.mu.Lock()
	if current, ok := o.sessions[documentID]; ok && current == sess {
		delete(o.sessions, documentID)
	}
	o.mu.Unlock()
}

func (o *Orchestrator) registered(documentID string, sess *session) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sessions[documentID] == sess
}

func (o *Orchestrator) lookup(documentID, participantID string) (*session, error) {
	o.mu.Lock()
	sess, ok := o.sessions[documentID]
	o.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("document %s: %w", documentID, ErrNoSession)
	}
	sess.mu.Lock()
	_, member := sess.participants[participantID]
	sess.mu.Unlock()
	if !member {
		return nil, fmt.Errorf("participant %s in %s: %w", participantID, documentID, ErrNotParticipant)
	}
	return sess, nil
}

// broadcastLocked fans a message out to the session's participants, skipping
// except when non-empty. Sends are fire-and-forget enqueues; delivery is the
// transport's concern. Callers hold sess.mu.
func (o *Orchestrator) broadcastLocked(sess *session, except string, msg Message) {
	for id, out := range sess.outbound {
		if except != "" && id == except {
			continue
		}
		out.Send(msg)
	}
}

func participantList(sess *session) []Participant {
	out := make([]Participant, 0, len(sess.participants))
	for _, p := range sess.participants {
		out = append(out, p)
	}
	return out
}
