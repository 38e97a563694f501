package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestArchiveLifecycle(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)

	if err := svc.EnsureRepo("doc-1", "Hello", "Avery"); err != nil {
		t.Fatalf("EnsureRepo() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(tempDir, "doc-1")); err != nil {
		t.Fatalf("repo directory missing: %v", err)
	}
	// Idempotent on re-ensure.
	if err := svc.EnsureRepo("doc-1", "ignored", "Avery"); err != nil {
		t.Fatalf("second EnsureRepo() error = %v", err)
	}

	if err := svc.EnsureBranch("doc-1", "feature", "main"); err != nil {
		t.Fatalf("EnsureBranch() error = %v", err)
	}

	commit, err := svc.CommitVersion("doc-1", "feature", "Hello World", "Avery", "Add greeting target")
	if err != nil {
		t.Fatalf("CommitVersion() error = %v", err)
	}
	if commit.Hash == "" {
		t.Fatal("expected commit hash")
	}

	content, head, err := svc.HeadContent("doc-1", "feature")
	if err != nil {
		t.Fatalf("HeadContent() error = %v", err)
	}
	if content != "Hello World" {
		t.Fatalf("head content = %q", content)
	}
	if head.Hash != commit.Hash {
		t.Fatalf("head hash = %q, want %q", head.Hash, commit.Hash)
	}

	history, err := svc.Log("doc-1", "feature", 10)
	if err != nil {
		t.Fatalf("Log() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("len(Log) = %d, want baseline + commit", len(history))
	}
	if history[0].Message != "Add greeting target" {
		t.Fatalf("Log[0].Message = %q", history[0].Message)
	}

	if err := svc.TagHead("doc-1", "feature", "v1.0"); err != nil {
		t.Fatalf("TagHead() error = %v", err)
	}
	// Same tag name again is tolerated, not overwritten.
	if err := svc.TagHead("doc-1", "feature", "v1.0"); err != nil {
		t.Fatalf("second TagHead() error = %v", err)
	}
}

func TestCommitVersionUnknownDocument(t *testing.T) {
	svc := New(t.TempDir())
	if _, err := svc.CommitVersion("ghost", "main", "x", "a", "m"); err == nil {
		t.Fatal("CommitVersion() error = nil, want open failure")
	}
}

func TestConcurrentCommitsSameDocument(t *testing.T) {
	svc := New(t.TempDir())
	if err := svc.EnsureRepo("doc-1", "base", "Avery"); err != nil {
		t.Fatalf("EnsureRepo() error = %v", err)
	}

	const workers = 4
	var wg sync.WaitGroup
	errCh := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			content := fmt.Sprintf("revision %d", n)
			if _, err := svc.CommitVersion("doc-1", "main", content, "Avery", content); err != nil {
				errCh <- err
			}
		}(i)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatalf("CommitVersion() error = %v", err)
	}

	history, err := svc.Log("doc-1", "main", 0)
	if err != nil {
		t.Fatalf("Log() error = %v", err)
	}
	if len(history) != workers+1 {
		t.Fatalf("len(Log) = %d, want %d", len(history), workers+1)
	}
}
