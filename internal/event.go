package internal

import (
	"maps"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

// Source identifies where an event was collected from.
type Source string

const (
	SourceClaude Source = "claude"
	SourceCursor Source = "cursor"
	SourceCLI    Source = "cli"
	SourceGit    Source = "git"
)

// Kind classifies what an event records.
type Kind string

const (
	KindConversation Kind = "conversation"
	KindCommand      Kind = "command"
	KindCommit       Kind = "commit"
	KindDiff         Kind = "diff"
)

// Actor is who produced the event.
type Actor string

const (
	ActorUser      Actor = "user"
	ActorAssistant Actor = "assistant"
	ActorSystem    Actor = "system"
)

const (
	// MaxTextLength caps event text, in runes.
	MaxTextLength = 5000
	// secondsThreshold separates epoch seconds from epoch milliseconds.
	secondsThreshold = 10_000_000_000
)

var eventNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/iksnae/devtrail/event"))

// Range is an optional line range within File.
type Range struct {
	Start int `json:"start" yaml:"start"`
	End   int `json:"end" yaml:"end"`
}

// Event is one immutable record of developer activity.
type Event struct {
	ID       string         `json:"id" yaml:"id"`
	TS       int64          `json:"ts" yaml:"ts"`
	Source   Source         `json:"source" yaml:"source"`
	Kind     Kind           `json:"kind" yaml:"kind"`
	Repo     string         `json:"repo" yaml:"repo"`
	CWD      string         `json:"cwd" yaml:"cwd"`
	File     string         `json:"file,omitempty" yaml:"file,omitempty"`
	Range    *Range         `json:"range,omitempty" yaml:"range,omitempty"`
	Actor    Actor          `json:"actor,omitempty" yaml:"actor,omitempty"`
	Text     string         `json:"text" yaml:"text"`
	URL      string         `json:"url,omitempty" yaml:"url,omitempty"`
	Metadata map[string]any `json:"meta,omitempty" yaml:"meta,omitempty"`
}

// EventParams are the inputs to NewEvent.
type EventParams struct {
	TS     int64
	Source Source
	Kind   Kind
	Actor  Actor
	Repo   string
	CWD    string
	File   string
	Range  *Range
	Text   string
	URL    string
	// Key is a stable identifier from the source (commit hash, bubble id,
	// message uuid). When set, the event ID depends on it instead of TS and
	// Text.
	Key      string
	Metadata map[string]any
}

// NewEvent validates and normalizes p into an Event.
// The same activity always maps to the same ID.
func NewEvent(p EventParams) (Event, error) {
	text := TruncateText(strings.TrimSpace(p.Text), MaxTextLength)
	if text == "" {
		return Event{}, ErrEmptyText
	}
	if strings.TrimSpace(p.Repo) == "" {
		return Event{}, ErrNoRepo
	}

	ts := NormalizeTimestamp(p.TS)
	cwd := p.CWD
	if cwd == "" {
		cwd = p.Repo
	}

	var rng *Range
	if p.Range != nil {
		r := *p.Range
		rng = &r
	}

	ev := Event{
		TS:       ts,
		Source:   p.Source,
		Kind:     p.Kind,
		Actor:    p.Actor,
		Repo:     p.Repo,
		CWD:      cwd,
		File:     p.File,
		Range:    rng,
		Text:     text,
		URL:      p.URL,
		Metadata: maps.Clone(p.Metadata),
	}
	ev.ID = eventID(ev, p.Key)
	return ev, nil
}

// eventID names an event by its natural key when the source has one, so a
// message keeps its ID when its timestamp fallback or text changes. Keyless
// events are named by their content.
func eventID(ev Event, key string) string {
	var parts []string
	if key != "" {
		parts = []string{string(ev.Source), string(ev.Kind), ev.Repo, "key", key}
	} else {
		parts = []string{
			string(ev.Source),
			string(ev.Kind),
			ev.Repo,
			ev.File,
			strconv.FormatInt(ev.TS, 10),
			norm.NFC.String(ev.Text),
		}
	}
	return uuid.NewSHA1(eventNamespace, []byte(strings.Join(parts, "\x1f"))).String()
}

// WithText returns a copy of ev carrying text. The ID is kept so redaction
// does not break deduplication.
func (ev Event) WithText(text string) Event {
	out := ev
	out.Text = text
	out.Metadata = maps.Clone(ev.Metadata)
	if ev.Range != nil {
		r := *ev.Range
		out.Range = &r
	}
	return out
}

// Time returns the event timestamp as a time.Time.
func (ev Event) Time() time.Time {
	return time.UnixMilli(ev.TS)
}

// NormalizeTimestamp converts epoch seconds to epoch milliseconds.
// Values that already look like milliseconds pass through.
func NormalizeTimestamp(ts int64) int64 {
	if ts > 0 && ts < secondsThreshold {
		return ts * 1000
	}
	return ts
}

// TruncateText caps s at max runes.
func TruncateText(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
