// Package ws is the websocket transport for the collaboration orchestrator:
// one goroutine pair per connection, JSON frames, buffered outbound queue.
// Session semantics live in internal/collab; this package only moves frames.
package ws

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"inkwell/api/internal/collab"
)

const (
	writeWait      = 10 * time.Second
	sendBufferSize = 64
)

// Authenticator resolves the participant identity for an incoming upgrade
// request. Returning an error rejects the connection.
type Authenticator func(r *http.Request) (collab.Participant, error)

// Handler upgrades HTTP requests and speaks the collaboration protocol.
type Handler struct {
	orch     *collab.Orchestrator
	auth     Authenticator
	upgrader websocket.Upgrader
}

func NewHandler(orch *collab.Orchestrator, auth Authenticator) *Handler {
	return &Handler{
		orch: orch,
		auth: auth,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Cross-origin policy is enforced at the HTTP layer.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	participant, err := h.auth(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	socket, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws: upgrade failed for %s: %v", participant.ID, err)
		return
	}

	conn := &Conn{
		socket:      socket,
		orch:        h.orch,
		participant: participant,
		send:        make(chan collab.Message, sendBufferSize),
		joined:      make(map[string]struct{}),
	}
	go conn.writePump()
	conn.readLoop()
}

// Conn is one participant connection. It implements collab.Outbound: Send
// enqueues without blocking and drops frames when the client cannot keep up.
type Conn struct {
	socket      *websocket.Conn
	orch        *collab.Orchestrator
	participant collab.Participant

	mu     sync.Mutex
	joined map[string]struct{}
	closed bool

	send chan collab.Message
}

func (c *Conn) Send(msg collab.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- msg:
	default:
		log.Printf("ws: send buffer full, dropping %s frame for %s", msg.Type, c.participant.ID)
	}
}

func (c *Conn) writePump() {
	for msg := range c.send {
		c.socket.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.socket.WriteJSON(msg); err != nil {
			log.Printf("ws: write to %s: %v", c.participant.ID, err)
			c.socket.Close()
			// Drain so enqueuers never block on a dead connection.
			for range c.send {
			}
			return
		}
	}
	c.socket.Close()
}

// readLoop dispatches inbound frames until the socket closes, then leaves
// every joined document so empty sessions tear down.
func (c *Conn) readLoop() {
	defer c.teardown()

	for {
		var msg ClientMessage
		if err := c.socket.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("ws: read from %s: %v", c.participant.ID, err)
			}
			return
		}
		c.dispatch(msg)
	}
}

func (c *Conn) dispatch(msg ClientMessage) {
	ctx := context.Background()
	switch msg.Type {
	case EventJoin:
		snapshot, err := c.orch.Join(ctx, msg.DocumentID, c.participant, c)
		if err != nil {
			c.Send(collab.Message{Type: collab.MsgError, DocumentID: msg.DocumentID, Error: err.Error()})
			return
		}
		c.mu.Lock()
		c.joined[msg.DocumentID] = struct{}{}
		c.mu.Unlock()
		c.Send(collab.Message{
			Type:         collab.MsgDocumentState,
			DocumentID:   snapshot.DocumentID,
			Content:      snapshot.Content,
			Version:      snapshot.Version,
			Participants: snapshot.Participants,
			Presence:     snapshot.Presence,
			Comments:     snapshot.Comments,
		})

	case EventOperation:
		version, err := c.orch.SubmitOperation(ctx, msg.DocumentID, c.participant.ID, msg.Operation)
		if err != nil {
			// Apply failures stay between the submitter and the server.
			c.Send(collab.Message{Type: collab.MsgOperationError, DocumentID: msg.DocumentID, Error: err.Error()})
			return
		}
		c.Send(collab.Message{Type: collab.MsgOperation, DocumentID: msg.DocumentID, Version: version})

	case EventCursorUpdate:
		if err := c.orch.UpdateCursor(ctx, msg.DocumentID, c.participant.ID, msg.Cursor); err != nil {
			c.Send(collab.Message{Type: collab.MsgError, DocumentID: msg.DocumentID, Error: err.Error()})
		}

	case EventAddComment:
		if _, err := c.orch.AddComment(ctx, msg.DocumentID, c.participant.ID, msg.Body, msg.Anchor); err != nil {
			c.Send(collab.Message{Type: collab.MsgError, DocumentID: msg.DocumentID, Error: err.Error()})
		}

	case EventUpdateComment:
		fields := msg.Fields
		if fields == nil {
			c.Send(collab.Message{Type: collab.MsgError, DocumentID: msg.DocumentID, Error: "missing fields"})
			return
		}
		if _, err := c.orch.UpdateComment(ctx, msg.DocumentID, c.participant.ID, msg.CommentID, *fields); err != nil {
			c.Send(collab.Message{Type: collab.MsgError, DocumentID: msg.DocumentID, Error: err.Error()})
		}

	case EventRemoveComment:
		if err := c.orch.RemoveComment(ctx, msg.DocumentID, c.participant.ID, msg.CommentID); err != nil {
			c.Send(collab.Message{Type: collab.MsgError, DocumentID: msg.DocumentID, Error: err.Error()})
		}

	case EventLeave:
		c.leaveDocument(msg.DocumentID)

	default:
		c.Send(collab.Message{Type: collab.MsgError, Error: "unknown event type: " + msg.Type})
	}
}

func (c *Conn) leaveDocument(documentID string) {
	c.mu.Lock()
	delete(c.joined, documentID)
	c.mu.Unlock()
	if err := c.orch.Leave(context.Background(), documentID, c.participant.ID); err != nil {
		log.Printf("ws: leave %s for %s: %v", documentID, c.participant.ID, err)
	}
}

func (c *Conn) teardown() {
	c.mu.Lock()
	docs := make([]string, 0, len(c.joined))
	for id := range c.joined {
		docs = append(docs, id)
	}
	c.joined = map[string]struct{}{}
	c.mu.Unlock()

	for _, id := range docs {
		if err := c.orch.Leave(context.Background(), id, c.participant.ID); err != nil {
			log.Printf("ws: disconnect leave %s for %s: %v", id, c.participant.ID, err)
		}
	}

	c.mu.Lock()
	c.closed = true
	close(c.send)
	c.mu.Unlock()
}
