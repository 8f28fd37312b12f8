package export

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/iksnae/devtrail/internal"
	"gopkg.in/yaml.v3"
)

const tb = int64(1_700_000_000_000)

func sampleEvents(t *testing.T) []internal.Event {
	t.Helper()
	params := []internal.EventParams{
		{TS: tb, Source: internal.SourceClaude, Kind: internal.KindConversation, Actor: internal.ActorUser, Repo: "/repo", Text: "Why is the **query** slow?"},
		{TS: tb + 60_000, Source: internal.SourceCLI, Kind: internal.KindCommand, Actor: internal.ActorUser, Repo: "/repo", Text: "go test ./...", Metadata: map[string]any{"exitCode": 1}},
		{TS: tb + 86_400_000, Source: internal.SourceGit, Kind: internal.KindDiff, Actor: internal.ActorUser, Repo: "/repo", File: "internal/store.go", Text: "modified internal/store.go"},
	}
	events := make([]internal.Event, 0, len(params))
	for _, p := range params {
		ev, err := internal.NewEvent(p)
		if err != nil {
			t.Fatalf("NewEvent() error = %v", err)
		}
		events = append(events, ev)
	}
	return events
}

func TestNewExporter(t *testing.T) {
	tests := []struct {
		format  string
		wantExt string
		wantErr bool
	}{
		{"jsonl", "jsonl", false},
		{"json", "json", false},
		{"yaml", "yaml", false},
		{"yml", "yaml", false},
		{"md", "md", false},
		{"markdown", "md", false},
		{"csv", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			exp, err := NewExporter(tt.format)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewExporter(%q) error = %v, wantErr %v", tt.format, err, tt.wantErr)
			}
			if tt.wantErr {
				var ee *internal.ExportError
				if !errors.As(err, &ee) || ee.Format != tt.format {
					t.Errorf("error = %v, want ExportError", err)
				}
				return
			}
			if exp.Extension() != tt.wantExt {
				t.Errorf("Extension() = %q, want %q", exp.Extension(), tt.wantExt)
			}
		})
	}
}

func TestJSONExporter(t *testing.T) {
	events := sampleEvents(t)
	var buf bytes.Buffer
	if err := (&JSONExporter{}).Export(events, &buf); err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	var got []internal.Event
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if len(got) != 3 || got[2].File != "internal/store.go" || got[0].ID != events[0].ID {
		t.Errorf("decoded = %+v", got)
	}

	buf.Reset()
	if err := (&JSONExporter{}).Export(nil, &buf); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(buf.String()) != "[]" {
		t.Errorf("empty export = %q", buf.String())
	}
}

func TestJSONLExporter(t *testing.T) {
	events := sampleEvents(t)
	var buf bytes.Buffer
	if err := (&JSONLExporter{}).Export(events, &buf); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	scanner := bufio.NewScanner(&buf)
	var lines int
	for scanner.Scan() {
		var ev internal.Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			t.Fatalf("line %d: %v", lines+1, err)
		}
		if ev.ID != events[lines].ID {
			t.Errorf("line %d id = %s, want %s", lines+1, ev.ID, events[lines].ID)
		}
		lines++
	}
	if lines != 3 {
		t.Errorf("lines = %d, want 3", lines)
	}
}

func TestYAMLExporter(t *testing.T) {
	var buf bytes.Buffer
	if err := (&YAMLExporter{}).Export(sampleEvents(t), &buf); err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	var got []map[string]any
	if err := yaml.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not YAML: %v", err)
	}
	if len(got) != 3 || got[1]["source"] != "cli" || got[1]["text"] != "go test ./..." {
		t.Errorf("decoded = %+v", got)
	}
}

func TestMarkdownExporter(t *testing.T) {
	var buf bytes.Buffer
	exp := &MarkdownExporter{Location: time.UTC}
	if err := exp.Export(sampleEvents(t), &buf); err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"# Timeline",
		"**Events:** 3",
		"## 2023-11-14",
		"### 22:13:20 claude/conversation (user)",
		`Why is the \*\*query\*\* slow?`,
		"## 2023-11-15",
		"git/diff (user) `internal/store.go`",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("markdown missing %q:\n%s", want, out)
		}
	}
	if strings.Count(out, "\n## ") != 2 {
		t.Errorf("want two day headings:\n%s", out)
	}
}

func TestEscapeMarkdown(t *testing.T) {
	in := "# not a heading\n```go\nx := a**b\n```\n__init__"
	want := "\\# not a heading\n```go\nx := a**b\n```\n\\_\\_init\\_\\_"
	if got := escapeMarkdown(in); got != want {
		t.Errorf("escapeMarkdown() = %q, want %q", got, want)
	}
}
