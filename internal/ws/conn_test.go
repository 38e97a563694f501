package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"inkwell/api/internal/annotations"
	"inkwell/api/internal/collab"
	"inkwell/api/internal/ot"
	"inkwell/api/internal/presence"
)

type memoryContent struct {
	mu      sync.Mutex
	content map[string]string
}

func (m *memoryContent) LoadContent(_ context.Context, documentID string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.content[documentID]
	return c, ok, nil
}

func (m *memoryContent) CreateContent(_ context.Context, documentID, content, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.content[documentID] = content
	return nil
}

func newTestServer(t *testing.T) (*httptest.Server, *collab.Orchestrator) {
	t.Helper()
	store := &memoryContent{content: map[string]string{"doc1": "Hello"}}
	orch := collab.NewOrchestrator(store, presence.NewMemory(), annotations.NewStore())
	auth := func(r *http.Request) (collab.Participant, error) {
		id := r.URL.Query().Get("participant")
		return collab.Participant{ID: id, Username: id}, nil
	}
	srv := httptest.NewServer(NewHandler(orch, auth))
	t.Cleanup(srv.Close)
	return srv, orch
}

func dial(t *testing.T, srv *httptest.Server, participant string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?participant=" + participant
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn, wantType string) collab.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var msg collab.Message
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("ReadJSON() error = %v (waiting for %s)", err, wantType)
		}
		if msg.Type == wantType {
			return msg
		}
	}
}

func TestJoinDeliversDocumentState(t *testing.T) {
	srv, _ := newTestServer(t)
	conn := dial(t, srv, "ada")

	if err := conn.WriteJSON(ClientMessage{Type: EventJoin, DocumentID: "doc1"}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	state := readMessage(t, conn, collab.MsgDocumentState)
	if state.Content != "Hello" {
		t.Fatalf("state content = %q, want %q", state.Content, "Hello")
	}
	if len(state.Participants) != 1 {
		t.Fatalf("participants = %+v", state.Participants)
	}
}

func TestOperationFansOutToOtherParticipants(t *testing.T) {
	srv, _ := newTestServer(t)

	ada := dial(t, srv, "ada")
	if err := ada.WriteJSON(ClientMessage{Type: EventJoin, DocumentID: "doc1"}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	readMessage(t, ada, collab.MsgDocumentState)

	bob := dial(t, srv, "bob")
	if err := bob.WriteJSON(ClientMessage{Type: EventJoin, DocumentID: "doc1"}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	readMessage(t, bob, collab.MsgDocumentState)
	readMessage(t, ada, collab.MsgUserJoined)

	op := ot.Operation{{Kind: ot.KindInsert, Text: "X"}}
	if err := ada.WriteJSON(ClientMessage{Type: EventOperation, DocumentID: "doc1", Operation: op}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}

	// Submitter gets the ack with the committed version.
	ack := readMessage(t, ada, collab.MsgOperation)
	if ack.Version != 1 {
		t.Fatalf("ack version = %d, want 1", ack.Version)
	}

	// The other participant receives the raw operation once.
	broadcast := readMessage(t, bob, collab.MsgOperation)
	if broadcast.Version != 1 || broadcast.Participant == nil || broadcast.Participant.ID != "ada" {
		t.Fatalf("broadcast = %+v", broadcast)
	}
	if len(broadcast.Operation) != 1 || broadcast.Operation[0].Text != "X" {
		t.Fatalf("broadcast operation = %+v", broadcast.Operation)
	}
}

func TestOperationErrorOnlyReachesSubmitter(t *testing.T) {
	srv, _ := newTestServer(t)

	ada := dial(t, srv, "ada")
	ada.WriteJSON(ClientMessage{Type: EventJoin, DocumentID: "doc1"})
	readMessage(t, ada, collab.MsgDocumentState)

	bad := ot.Operation{{Kind: ot.KindRetain, Count: 9999}}
	if err := ada.WriteJSON(ClientMessage{Type: EventOperation, DocumentID: "doc1", Operation: bad}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	failure := readMessage(t, ada, collab.MsgOperationError)
	if failure.Error == "" {
		t.Fatal("operationError carried no detail")
	}
}

func TestDisconnectTearsDownSession(t *testing.T) {
	srv, orch := newTestServer(t)

	conn := dial(t, srv, "ada")
	conn.WriteJSON(ClientMessage{Type: EventJoin, DocumentID: "doc1"})
	readMessage(t, conn, collab.MsgDocumentState)

	if orch.ActiveSessions() != 1 {
		t.Fatalf("ActiveSessions() = %d, want 1", orch.ActiveSessions())
	}
	conn.Close()

	deadline := time.Now().Add(5 * time.Second)
	for orch.ActiveSessions() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("session not torn down after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestUnauthorizedUpgradeRejected(t *testing.T) {
	store := &memoryContent{content: map[string]string{}}
	orch := collab.NewOrchestrator(store, presence.NewMemory(), annotations.NewStore())
	auth := func(*http.Request) (collab.Participant, error) {
		return collab.Participant{}, http.ErrNoCookie
	}
	srv := httptest.NewServer(NewHandler(orch, auth))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("Dial() succeeded, want rejection")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %v, want 401", resp)
	}
}
