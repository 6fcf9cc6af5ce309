package journal_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/vozcards/internal/journal"
)

func TestFileStore_AppendAndHistory(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "sessions.jsonl")
	s := journal.NewFileStore(path)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	for i, e := range []journal.Entry{
		{SessionID: "s1", StudentID: "lucia", CardSetID: "animals", Score: 10},
		{SessionID: "s2", StudentID: "mateo", CardSetID: "animals", Score: 30},
		{SessionID: "s3", StudentID: "lucia", CardSetID: "colours", Score: 20, Completed: true},
	} {
		e.StartedAt = base.Add(time.Duration(i) * time.Hour)
		e.EndedAt = e.StartedAt.Add(10 * time.Minute)
		if err := s.Append(e); err != nil {
			t.Fatalf("Append(%s): %v", e.SessionID, err)
		}
	}

	got, err := s.History("lucia", 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(got) != 2 || got[0].SessionID != "s3" || got[1].SessionID != "s1" {
		t.Fatalf("History(lucia) = %+v, want s3 then s1", got)
	}
	if !got[0].Completed || got[0].Score != 20 || !got[0].EndedAt.Equal(base.Add(2*time.Hour+10*time.Minute)) {
		t.Errorf("newest entry = %+v, fields not preserved", got[0])
	}

	limited, err := s.History("lucia", 1)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(limited) != 1 || limited[0].SessionID != "s3" {
		t.Errorf("History(lucia, 1) = %+v, want only s3", limited)
	}
}

func TestFileStore_MissingFileIsEmpty(t *testing.T) {
	t.Parallel()

	s := journal.NewFileStore(filepath.Join(t.TempDir(), "none.jsonl"))
	got, err := s.History("lucia", 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("History = %#v, want an empty non-nil slice", got)
	}
}

func TestFileStore_SkipsCorruptLines(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "sessions.jsonl")
	content := `{"session_id":"s1","student_id":"lucia"}` + "\n" +
		"not json\n" +
		`{"session_id":"s2","student_id":"lucia"}` + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := journal.NewFileStore(path).History("lucia", 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("History = %+v, want the 2 valid entries", got)
	}
}

func TestFileStore_ConcurrentAppend(t *testing.T) {
	t.Parallel()

	s := journal.NewFileStore(filepath.Join(t.TempDir(), "sessions.jsonl"))

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Append(journal.Entry{SessionID: "s", StudentID: "lucia"}); err != nil {
				t.Errorf("Append: %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := s.History("lucia", 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(got) != 20 {
		t.Errorf("History has %d entries, want 20", len(got))
	}
}

func TestFileStore_AppendToUnwritablePath(t *testing.T) {
	t.Parallel()

	s := journal.NewFileStore(filepath.Join(t.TempDir(), "missing-dir", "sessions.jsonl"))
	if err := s.Append(journal.Entry{SessionID: "s1"}); err == nil {
		t.Error("Append into a missing directory succeeded")
	}
}
