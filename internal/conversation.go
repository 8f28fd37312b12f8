package internal

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Message is one conversation turn as read from a source, before filtering.
type Message struct {
	Timestamp int64
	Role      string
	Text      string
	// Content is the raw structured body: a JSON string or a list of typed parts.
	Content  json.RawMessage
	File     string
	CWD      string
	Key      string
	Metadata map[string]any
}

// contentPart is one element of a structured message body.
type contentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// minEventTextLength is the final length gate for conversation events.
const minEventTextLength = 3

// conversationBase turns messages into conversation events. Shared by the
// transcript and editor-store collectors.
type conversationBase struct {
	source Source
}

// toEvent filters msg and builds an event for repo. The bool is false when
// the message is dropped.
func (b conversationBase) toEvent(msg Message, repo string) (Event, bool) {
	var actor Actor
	switch msg.Role {
	case "user":
		actor = ActorUser
	case "assistant":
		actor = ActorAssistant
	default:
		return Event{}, false
	}

	text := msg.Text
	if text == "" {
		text = extractContentText(msg.Content)
	}
	if text == "" {
		return Event{}, false
	}

	if c := Classify(text); c.Noise {
		LogDebug("Dropping %s message %s: %s", b.source, msg.Key, c.Reason)
		return Event{}, false
	}
	if utf8.RuneCountInString(strings.TrimSpace(text)) < minEventTextLength {
		return Event{}, false
	}

	ev, err := NewEvent(EventParams{
		TS:       msg.Timestamp,
		Source:   b.source,
		Kind:     KindConversation,
		Actor:    actor,
		Repo:     repo,
		CWD:      msg.CWD,
		File:     msg.File,
		Text:     text,
		Key:      msg.Key,
		Metadata: msg.Metadata,
	})
	if err != nil {
		return Event{}, false
	}
	return ev, true
}

// extractContentText returns the prose in a structured message body. Tool
// parts are skipped, and so are text parts that are themselves tool noise.
func extractContentText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var parts []contentPart
	if err := json.Unmarshal(raw, &parts); err != nil {
		return ""
	}

	var texts []string
	for _, part := range parts {
		// tool_use, tool_result and the like never carry prose.
		if part.Type != "text" {
			continue
		}
		if part.Text == "" || IsToolRelated(part.Text) {
			continue
		}
		texts = append(texts, part.Text)
	}
	return strings.Join(texts, "\n")
}

// flexMillis decodes a timestamp written as epoch seconds, epoch
// milliseconds, a numeric string or an RFC3339 string. The decoded value is
// in milliseconds; zero means absent or unparseable.
type flexMillis int64

func (f *flexMillis) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexMillis(parseTimeString(s))
		return nil
	}

	n, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		*f = 0
		return nil
	}
	*f = flexMillis(NormalizeTimestamp(int64(n)))
	return nil
}

func parseTimeString(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return NormalizeTimestamp(int64(n))
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UnixMilli()
		}
	}
	return 0
}
