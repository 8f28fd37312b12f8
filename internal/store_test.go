package internal

import (
	"errors"
	"path/filepath"
	"testing"
)

// tb is a millisecond base so test timestamps are not mistaken for seconds.
const tb = int64(1_700_000_000_000)

func newTestStore(t *testing.T) *EventStore {
	t.Helper()
	s, err := OpenEventStore(filepath.Join(t.TempDir(), "data", "events.db"))
	if err != nil {
		t.Fatalf("OpenEventStore() error = %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func mustEvent(t *testing.T, p EventParams) Event {
	t.Helper()
	if p.Repo == "" {
		p.Repo = "/repo"
	}
	if p.Source == "" {
		p.Source = SourceCLI
	}
	if p.Kind == "" {
		p.Kind = KindCommand
	}
	ev, err := NewEvent(p)
	if err != nil {
		t.Fatalf("NewEvent() error = %v", err)
	}
	return ev
}

func TestEventStore_InsertAndFindByTimeRange(t *testing.T) {
	s := newTestStore(t)

	evs := []Event{
		mustEvent(t, EventParams{TS: tb + 3000, Text: "third"}),
		mustEvent(t, EventParams{TS: tb + 1000, Text: "first"}),
		mustEvent(t, EventParams{TS: tb + 2000, Text: "second"}),
		mustEvent(t, EventParams{TS: tb + 9000, Text: "outside"}),
	}
	for _, ev := range evs {
		if err := s.Insert(ev); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
	}

	got, err := s.FindByTimeRange(tb+1000, tb+3000)
	if err != nil {
		t.Fatalf("FindByTimeRange() error = %v", err)
	}
	want := []string{"first", "second", "third"}
	if len(got) != len(want) {
		t.Fatalf("FindByTimeRange() returned %d events, want %d", len(got), len(want))
	}
	for i, w := range want {
		if got[i].Text != w {
			t.Errorf("event[%d].Text = %q, want %q", i, got[i].Text, w)
		}
	}
}

func TestEventStore_InsertIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ev := mustEvent(t, EventParams{TS: tb + 1000, Text: "git status"})

	for i := 0; i < 3; i++ {
		if err := s.Insert(ev); err != nil {
			t.Fatalf("Insert() #%d error = %v", i, err)
		}
	}
	if err := s.InsertBatch([]Event{ev, ev}); err != nil {
		t.Fatalf("InsertBatch() error = %v", err)
	}

	n, err := s.Count()
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Count() = %d, want 1", n)
	}
}

func TestEventStore_InsertBatchRollsBack(t *testing.T) {
	s := newTestStore(t)

	good := mustEvent(t, EventParams{TS: tb + 1000, Text: "good"})
	bad := Event{ID: "bad", TS: tb + 2000, Source: SourceCLI, Kind: KindCommand, Repo: "/repo", CWD: "/repo", Text: ""}

	err := s.InsertBatch([]Event{good, bad})
	if err == nil {
		t.Fatal("InsertBatch() expected error for invalid event")
	}
	var se *StorageError
	if !errors.As(err, &se) {
		t.Errorf("InsertBatch() error = %T, want *StorageError", err)
	}

	n, _ := s.Count()
	if n != 0 {
		t.Errorf("Count() = %d after failed batch, want 0", n)
	}
}

func TestEventStore_RoundTripFields(t *testing.T) {
	s := newTestStore(t)
	ev := mustEvent(t, EventParams{
		TS:       tb + 1500,
		Source:   SourceCursor,
		Kind:     KindConversation,
		Actor:    ActorAssistant,
		Repo:     "/repo",
		CWD:      "/repo/sub",
		File:     "main.go",
		Range:    &Range{Start: 3, End: 9},
		Text:     "refactor main",
		URL:      "https://example.com/x",
		Metadata: map[string]any{"composerId": "c1"},
	})
	if err := s.Insert(ev); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	got, err := s.FindByRepo("/repo", tb, tb+2000)
	if err != nil || len(got) != 1 {
		t.Fatalf("FindByRepo() = %v, %v", got, err)
	}
	g := got[0]
	if g.ID != ev.ID || g.Source != SourceCursor || g.Kind != KindConversation || g.Actor != ActorAssistant {
		t.Errorf("identity fields mismatch: %+v", g)
	}
	if g.CWD != "/repo/sub" || g.File != "main.go" || g.URL != ev.URL {
		t.Errorf("location fields mismatch: %+v", g)
	}
	if g.Range == nil || g.Range.Start != 3 || g.Range.End != 9 {
		t.Errorf("Range = %+v, want {3 9}", g.Range)
	}
	if g.Metadata["composerId"] != "c1" {
		t.Errorf("Metadata = %v", g.Metadata)
	}
}

func TestEventStore_FindByRepoAndFile(t *testing.T) {
	s := newTestStore(t)
	batch := []Event{
		mustEvent(t, EventParams{TS: tb + 100, Repo: "/a", File: "x.go", Text: "a-x"}),
		mustEvent(t, EventParams{TS: tb + 200, Repo: "/a", File: "y.go", Text: "a-y"}),
		mustEvent(t, EventParams{TS: tb + 150, Repo: "/b", File: "x.go", Text: "b-x"}),
	}
	if err := s.InsertBatch(batch); err != nil {
		t.Fatalf("InsertBatch() error = %v", err)
	}

	byRepo, err := s.FindByRepo("/a", tb, tb+1000)
	if err != nil {
		t.Fatalf("FindByRepo() error = %v", err)
	}
	if len(byRepo) != 2 || byRepo[0].Text != "a-x" || byRepo[1].Text != "a-y" {
		t.Errorf("FindByRepo() = %+v", byRepo)
	}

	byFile, err := s.FindByFile("x.go", tb, tb+1000)
	if err != nil {
		t.Fatalf("FindByFile() error = %v", err)
	}
	if len(byFile) != 2 || byFile[0].Text != "a-x" || byFile[1].Text != "b-x" {
		t.Errorf("FindByFile() = %+v", byFile)
	}
}

func TestEventStore_TiesOrderedByID(t *testing.T) {
	s := newTestStore(t)
	var batch []Event
	for _, text := range []string{"one", "two", "three", "four"} {
		batch = append(batch, mustEvent(t, EventParams{TS: tb + 500, Text: text}))
	}
	if err := s.InsertBatch(batch); err != nil {
		t.Fatalf("InsertBatch() error = %v", err)
	}

	first, _ := s.FindByTimeRange(tb, tb+1000)
	second, _ := s.FindByTimeRange(tb, tb+1000)
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Fatalf("order differs between identical queries at %d", i)
		}
		if i > 0 && first[i-1].ID > first[i].ID {
			t.Errorf("ties not ordered by id: %s before %s", first[i-1].ID, first[i].ID)
		}
	}
}

func TestEventStore_SearchText(t *testing.T) {
	s := newTestStore(t)
	batch := []Event{
		mustEvent(t, EventParams{TS: tb + 1, Text: "fix the sqlite locking bug"}),
		mustEvent(t, EventParams{TS: tb + 2, Text: "sqlite sqlite sqlite everywhere"}),
		mustEvent(t, EventParams{TS: tb + 3, Text: "unrelated change to README"}),
	}
	if err := s.InsertBatch(batch); err != nil {
		t.Fatalf("InsertBatch() error = %v", err)
	}

	got, err := s.SearchText("sqlite", 10)
	if err != nil {
		t.Fatalf("SearchText() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("SearchText() returned %d results, want 2", len(got))
	}
	if got[0].Text != "sqlite sqlite sqlite everywhere" {
		t.Errorf("SearchText() top hit = %q, want the denser match", got[0].Text)
	}

	// Punctuation must not break the FTS query.
	if _, err := s.SearchText(`fix: "sqlite" (bug) AND -x`, 10); err != nil {
		t.Errorf("SearchText() with punctuation error = %v", err)
	}
	if got, _ := s.SearchText(`  ""  `, 10); len(got) != 0 {
		t.Errorf("SearchText() of empty query = %v", got)
	}
}

func TestEventStore_LastCommit(t *testing.T) {
	s := newTestStore(t)

	if ts, err := s.GetLastCommitTime("/repo"); err != nil || ts != 0 {
		t.Fatalf("GetLastCommitTime() on empty store = %d, %v", ts, err)
	}
	if ev, err := s.FindLastCommit("/repo"); err != nil || ev != nil {
		t.Fatalf("FindLastCommit() on empty store = %v, %v", ev, err)
	}

	batch := []Event{
		mustEvent(t, EventParams{TS: tb + 1000, Source: SourceGit, Kind: KindCommit, Text: "first commit", Key: "a"}),
		mustEvent(t, EventParams{TS: tb + 3000, Source: SourceGit, Kind: KindCommit, Text: "second commit", Key: "b"}),
		mustEvent(t, EventParams{TS: tb + 5000, Source: SourceGit, Kind: KindDiff, Text: "M main.go"}),
		mustEvent(t, EventParams{TS: tb + 7000, Source: SourceGit, Kind: KindCommit, Repo: "/other", Text: "elsewhere"}),
	}
	if err := s.InsertBatch(batch); err != nil {
		t.Fatalf("InsertBatch() error = %v", err)
	}

	ts, err := s.GetLastCommitTime("/repo")
	if err != nil {
		t.Fatalf("GetLastCommitTime() error = %v", err)
	}
	if ts != tb+3000 {
		t.Errorf("GetLastCommitTime() = %d, want %d", ts, tb+3000)
	}
	ev, err := s.FindLastCommit("/repo")
	if err != nil || ev == nil {
		t.Fatalf("FindLastCommit() = %v, %v", ev, err)
	}
	if ev.Text != "second commit" {
		t.Errorf("FindLastCommit().Text = %q", ev.Text)
	}
}

func TestEventStore_CountBySource(t *testing.T) {
	s := newTestStore(t)
	_ = s.InsertBatch([]Event{
		mustEvent(t, EventParams{TS: tb + 1, Source: SourceCLI, Text: "ls"}),
		mustEvent(t, EventParams{TS: tb + 2, Source: SourceCLI, Text: "pwd"}),
		mustEvent(t, EventParams{TS: tb + 3, Source: SourceGit, Kind: KindCommit, Text: "init"}),
	})
	counts, err := s.CountBySource()
	if err != nil {
		t.Fatalf("CountBySource() error = %v", err)
	}
	if counts[SourceCLI] != 2 || counts[SourceGit] != 1 {
		t.Errorf("CountBySource() = %v", counts)
	}
}

func TestOpenEventStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	s, err := OpenEventStore(path)
	if err != nil {
		t.Fatalf("OpenEventStore() error = %v", err)
	}
	_ = s.Insert(mustEvent(t, EventParams{TS: tb + 1, Text: "persisted"}))
	_ = s.Close()

	s2, err := OpenEventStore(path)
	if err != nil {
		t.Fatalf("OpenEventStore() reopen error = %v", err)
	}
	defer s2.Close()
	got, _ := s2.SearchText("persisted", 5)
	if len(got) != 1 {
		t.Errorf("SearchText() after reopen = %d results, want 1", len(got))
	}
}
