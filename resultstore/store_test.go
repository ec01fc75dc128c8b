package resultstore

import (
	"context"
	"path/filepath"
	"testing"
)

func TestInMemoryStoreNeverTouchesDisk(t *testing.T) {
	s, err := Open("", 10)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	r, err := s.Put(ctx, Result{Platform: "p", Workflow: "w", Algorithm: "HEFT", RecordedAtNanos: 1, Makespan: 10})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if r.ID == "" {
		t.Fatal("Put should stamp an ID when absent")
	}

	recent := s.Recent(5)
	if len(recent) != 1 || recent[0].ID != r.ID {
		t.Fatalf("Recent() = %+v, want the just-put result", recent)
	}
}

func TestRecentIsNewestFirstAndCapped(t *testing.T) {
	s, err := Open("", 2)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	for i := int64(1); i <= 3; i++ {
		if _, err := s.Put(ctx, Result{Platform: "p", Workflow: "w", Algorithm: "HEFT", RecordedAtNanos: i}); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	recent := s.Recent(10)
	if len(recent) != 2 {
		t.Fatalf("Recent() returned %d entries, want the cache cap of 2", len(recent))
	}
	if recent[0].RecordedAtNanos != 3 || recent[1].RecordedAtNanos != 2 {
		t.Fatalf("Recent() order = %v, want newest first [3 2]", recent)
	}
}

func TestForAlgorithmFiltersAndOrdersAscending(t *testing.T) {
	s, err := Open("", 10)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	put := func(platform, workflow, algorithm string, nanos int64) {
		if _, err := s.Put(ctx, Result{Platform: platform, Workflow: workflow, Algorithm: algorithm, RecordedAtNanos: nanos}); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	put("p", "w", "HEFT", 20)
	put("p", "w", "HEFT", 10)
	put("p", "w", "PEFT", 15)
	put("other", "w", "HEFT", 30)

	got, err := s.ForAlgorithm("p", "w", "HEFT")
	if err != nil {
		t.Fatalf("ForAlgorithm: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ForAlgorithm returned %d results, want 2", len(got))
	}
	if got[0].RecordedAtNanos != 10 || got[1].RecordedAtNanos != 20 {
		t.Fatalf("ForAlgorithm order = %v, want ascending [10 20]", got)
	}
}

func TestBboltBackedStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "results.db")

	s, err := Open(path, 10)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ctx := context.Background()
	if _, err := s.Put(ctx, Result{Platform: "p", Workflow: "w", Algorithm: "HEFT", RecordedAtNanos: 1, Makespan: 42}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(path, 10)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.ForAlgorithm("p", "w", "HEFT")
	if err != nil {
		t.Fatalf("ForAlgorithm after reopen: %v", err)
	}
	if len(got) != 1 || got[0].Makespan != 42 {
		t.Fatalf("ForAlgorithm after reopen = %+v, want one result with makespan 42", got)
	}
}
