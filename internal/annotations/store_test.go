package annotations

import (
	"encoding/json"
	"testing"
)

func TestAddAndList(t *testing.T) {
	s := NewStore()

	c := s.Add("doc1", "ada", "needs a source", json.RawMessage(`{"from":4,"to":9}`))
	if c.ID == "" {
		t.Fatal("expected generated id")
	}
	if c.Resolved {
		t.Fatal("new comment must start unresolved")
	}
	if c.CreatedAt.IsZero() || c.UpdatedAt.IsZero() {
		t.Fatal("timestamps not set")
	}

	s.Add("doc1", "grace", "agreed", nil)
	s.Add("doc2", "ada", "other doc", nil)

	list := s.List("doc1")
	if len(list) != 2 {
		t.Fatalf("len(List) = %d, want 2", len(list))
	}
	if len(s.List("doc2")) != 1 {
		t.Fatal("documents must be isolated")
	}
	if len(s.List("ghost")) != 0 {
		t.Fatal("unknown document should list empty")
	}
}

func TestUpdate(t *testing.T) {
	s := NewStore()
	c := s.Add("doc1", "ada", "draft", nil)

	body := "final wording"
	resolved := true
	updated := s.Update("doc1", c.ID, Update{Body: &body, Resolved: &resolved})
	if updated == nil {
		t.Fatal("Update() = nil")
	}
	if updated.Body != "final wording" || !updated.Resolved {
		t.Fatalf("updated = %+v", updated)
	}
	if updated.Author != "ada" {
		t.Fatalf("Author = %q, untouched fields must survive", updated.Author)
	}
	if updated.UpdatedAt.Before(c.UpdatedAt) {
		t.Fatal("UpdatedAt not refreshed")
	}

	if got := s.Update("doc1", "cmt_missing", Update{Body: &body}); got != nil {
		t.Fatalf("Update(missing) = %+v, want nil", got)
	}
}

func TestRemove(t *testing.T) {
	s := NewStore()
	c := s.Add("doc1", "ada", "temp", nil)

	if !s.Remove("doc1", c.ID) {
		t.Fatal("Remove() = false, want true")
	}
	if s.Remove("doc1", c.ID) {
		t.Fatal("second Remove() = true, want false")
	}
	if _, ok := s.docs["doc1"]; ok {
		t.Fatal("empty document map not dropped")
	}
}
