package internal

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestNewEvent(t *testing.T) {
	ev, err := NewEvent(EventParams{
		TS:     1690000000,
		Source: SourceCursor,
		Kind:   KindConversation,
		Actor:  ActorUser,
		Repo:   "/repo",
		Text:   "  fix bug  ",
		Key:    "bubble-1",
	})
	if err != nil {
		t.Fatalf("NewEvent() error = %v", err)
	}
	if ev.TS != 1690000000000 {
		t.Errorf("TS = %d, want 1690000000000", ev.TS)
	}
	if ev.Text != "fix bug" {
		t.Errorf("Text = %q, want %q", ev.Text, "fix bug")
	}
	if ev.CWD != "/repo" {
		t.Errorf("CWD = %q, want repo fallback", ev.CWD)
	}
	if ev.ID == "" {
		t.Error("ID is empty")
	}
}

func TestNewEvent_Validation(t *testing.T) {
	tests := []struct {
		name string
		p    EventParams
		want error
	}{
		{"empty text", EventParams{Repo: "/r", Text: "   "}, ErrEmptyText},
		{"empty repo", EventParams{Text: "hello"}, ErrNoRepo},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEvent(tt.p)
			if !errors.Is(err, tt.want) {
				t.Errorf("NewEvent() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestNewEvent_DeterministicID(t *testing.T) {
	p := EventParams{TS: 1700000000000, Source: SourceGit, Kind: KindCommit, Repo: "/r", Text: "init", Key: "abc"}
	a, err := NewEvent(p)
	if err != nil {
		t.Fatalf("NewEvent() error = %v", err)
	}
	b, _ := NewEvent(p)
	if a.ID != b.ID {
		t.Errorf("IDs differ for identical input: %s vs %s", a.ID, b.ID)
	}

	p.Key = "def"
	c, _ := NewEvent(p)
	if c.ID == a.ID {
		t.Error("different key produced the same ID")
	}

	// NFC and NFD forms of the same text map to one ID.
	p.Key = ""
	p.Text = "caf\u00e9"
	d, _ := NewEvent(p)
	p.Text = "cafe\u0301"
	e, _ := NewEvent(p)
	if d.ID != e.ID {
		t.Error("composed and decomposed text produced different IDs")
	}
}

func TestNewEvent_KeyedIDIgnoresTimeAndText(t *testing.T) {
	p := EventParams{TS: 1690000001000, Source: SourceCursor, Kind: KindConversation, Repo: "/r", Text: "first draft", Key: "c1:b1"}
	a, _ := NewEvent(p)
	p.TS = 1690000900000
	p.Text = "edited draft"
	b, _ := NewEvent(p)
	if a.ID != b.ID {
		t.Errorf("keyed IDs differ: %s vs %s", a.ID, b.ID)
	}

	p.Repo = "/other"
	if c, _ := NewEvent(p); c.ID == a.ID {
		t.Error("same key in another repo produced the same ID")
	}

	// Without a key the timestamp is part of the identity.
	p.Key = ""
	d, _ := NewEvent(p)
	p.TS++
	if e, _ := NewEvent(p); e.ID == d.ID {
		t.Error("keyless events at different times share an ID")
	}
}

func TestNewEvent_TruncatesText(t *testing.T) {
	long := strings.Repeat("é", MaxTextLength+100)
	ev, err := NewEvent(EventParams{Repo: "/r", Text: long})
	if err != nil {
		t.Fatalf("NewEvent() error = %v", err)
	}
	if n := utf8.RuneCountInString(ev.Text); n != MaxTextLength {
		t.Errorf("text length = %d runes, want %d", n, MaxTextLength)
	}
}

func TestNewEvent_CopiesInputs(t *testing.T) {
	meta := map[string]any{"k": "v"}
	rng := &Range{Start: 1, End: 2}
	ev, err := NewEvent(EventParams{Repo: "/r", Text: "hello", Metadata: meta, Range: rng})
	if err != nil {
		t.Fatalf("NewEvent() error = %v", err)
	}
	meta["k"] = "changed"
	rng.Start = 99
	if ev.Metadata["k"] != "v" {
		t.Error("event metadata aliases caller map")
	}
	if ev.Range.Start != 1 {
		t.Error("event range aliases caller value")
	}
}

func TestEvent_WithText(t *testing.T) {
	ev, _ := NewEvent(EventParams{Repo: "/r", Text: "token sk-abc", Metadata: map[string]any{"a": 1}})
	red := ev.WithText("token [REDACTED]")
	if ev.Text != "token sk-abc" {
		t.Error("WithText() mutated the original event")
	}
	if red.ID != ev.ID {
		t.Error("WithText() changed the ID")
	}
	red.Metadata["a"] = 2
	if ev.Metadata["a"] != 1 {
		t.Error("WithText() shares metadata with the original")
	}
}

func TestNormalizeTimestamp(t *testing.T) {
	tests := []struct {
		in, want int64
	}{
		{0, 0},
		{-5, -5},
		{1690000000, 1690000000000},
		{1690000000000, 1690000000000},
		{9_999_999_999, 9_999_999_999_000},
	}
	for _, tt := range tests {
		if got := NormalizeTimestamp(tt.in); got != tt.want {
			t.Errorf("NormalizeTimestamp(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
