package presence

import (
	"context"
	"encoding/json"
	"testing"
)

func TestMemoryUpdateAndList(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	entries, err := m.Update(ctx, "doc1", "user-1", "ada", json.RawMessage(`{"offset":3}`))
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1", len(entries))
	}
	if entries[0].ParticipantID != "user-1" || entries[0].Username != "ada" {
		t.Fatalf("entry = %+v", entries[0])
	}
	if entries[0].JoinedAt.IsZero() || entries[0].LastActivity.IsZero() {
		t.Fatal("timestamps not set")
	}

	entries, err = m.Update(ctx, "doc1", "user-2", "grace", nil)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
}

func TestMemoryUpdatePreservesJoinTime(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	first, _ := m.Update(ctx, "doc1", "user-1", "ada", nil)
	second, _ := m.Update(ctx, "doc1", "user-1", "", json.RawMessage(`{"offset":9}`))

	if len(second) != 1 {
		t.Fatalf("len(entries) = %d, want 1", len(second))
	}
	if !second[0].JoinedAt.Equal(first[0].JoinedAt) {
		t.Fatal("JoinedAt changed on refresh")
	}
	if second[0].Username != "ada" {
		t.Fatalf("Username = %q, want preserved", second[0].Username)
	}
	if string(second[0].Cursor) != `{"offset":9}` {
		t.Fatalf("Cursor = %s", second[0].Cursor)
	}
}

func TestMemoryRemoveDropsEmptyDocument(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	m.Update(ctx, "doc1", "user-1", "ada", nil)
	m.Update(ctx, "doc1", "user-2", "grace", nil)

	if err := m.Remove(ctx, "doc1", "user-1"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	entries, _ := m.List(ctx, "doc1")
	if len(entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1", len(entries))
	}

	if err := m.Remove(ctx, "doc1", "user-2"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, ok := m.docs["doc1"]; ok {
		t.Fatal("empty document map not dropped")
	}

	// Removing from an unknown document is a no-op.
	if err := m.Remove(ctx, "ghost", "user-1"); err != nil {
		t.Fatalf("Remove(ghost) error = %v", err)
	}
}
