package internal

import (
	"encoding/json"
	"fmt"
	"strings"
)

// RawBubble is one message row from the editor's global key-value store.
type RawBubble struct {
	BubbleID      string          `json:"bubbleId"`
	ComposerID    string          `json:"-"`
	Text          string          `json:"text,omitempty"`
	RichText      string          `json:"richText,omitempty"`
	Timestamp     flexMillis      `json:"timestamp,omitempty"`
	CreatedAt     flexMillis      `json:"createdAt,omitempty"`
	Type          int             `json:"type"` // 1=user, 2=assistant
	RelevantFiles json.RawMessage `json:"relevantFiles,omitempty"`
	CodeBlocks    []CodeBlock     `json:"codeBlocks,omitempty"`
}

// CodeBlock is a code suggestion attached to a bubble.
type CodeBlock struct {
	Language string `json:"languageId,omitempty"`
	Content  string `json:"content,omitempty"`
}

// RawComposer is one chat session entry from a workspace's composer index.
type RawComposer struct {
	ComposerID    string     `json:"composerId"`
	Name          string     `json:"name,omitempty"`
	CreatedAt     flexMillis `json:"createdAt,omitempty"`
	LastUpdatedAt flexMillis `json:"lastUpdatedAt,omitempty"`
}

// ComposerIndex is the value of ItemTable['composer.composerData'].
type ComposerIndex struct {
	AllComposers []RawComposer `json:"allComposers"`
}

// ParseRawBubble parses a bubbleId:<composerId>:<bubbleId> row.
func ParseRawBubble(key, value string) (*RawBubble, error) {
	parts := splitKey(key, "bubbleId:")
	if len(parts) != 3 {
		return nil, fmt.Errorf("invalid bubbleId key format: %s", key)
	}

	var bubble RawBubble
	if err := json.Unmarshal([]byte(value), &bubble); err != nil {
		return nil, fmt.Errorf("failed to parse bubble JSON: %w", err)
	}

	bubble.ComposerID = parts[1]
	bubble.BubbleID = parts[2]
	return &bubble, nil
}

// ParseComposerIndex decodes a workspace composer index.
func ParseComposerIndex(value string) (*ComposerIndex, error) {
	var idx ComposerIndex
	if err := json.Unmarshal([]byte(value), &idx); err != nil {
		return nil, fmt.Errorf("failed to parse composer index: %w", err)
	}
	return &idx, nil
}

// splitKey splits a key by prefix and returns the parts, with an empty
// first element standing in for the prefix
func splitKey(key, prefix string) []string {
	if !strings.HasPrefix(key, prefix) {
		return nil
	}
	return append([]string{""}, strings.Split(key[len(prefix):], ":")...)
}

// MessageTime picks the first positive timestamp of the bubble's own
// timestamp, its createdAt and the session's lastUpdatedAt.
func (rb *RawBubble) MessageTime(session *RawComposer) int64 {
	if rb.Timestamp > 0 {
		return int64(rb.Timestamp)
	}
	if rb.CreatedAt > 0 {
		return int64(rb.CreatedAt)
	}
	if session != nil && session.LastUpdatedAt > 0 {
		return int64(session.LastUpdatedAt)
	}
	return 0
}

// Role maps the bubble type to a conversation role.
func (rb *RawBubble) Role() string {
	if rb.Type == 1 {
		return "user"
	}
	return "assistant"
}

// FirstRelevantFile returns the first file the message references. Entries
// may be plain paths or objects carrying a path.
func (rb *RawBubble) FirstRelevantFile() string {
	if len(rb.RelevantFiles) == 0 {
		return ""
	}
	var items []json.RawMessage
	if err := json.Unmarshal(rb.RelevantFiles, &items); err != nil {
		return ""
	}
	for _, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err == nil && s != "" {
			return s
		}
		var obj struct {
			Path    string `json:"path"`
			FsPath  string `json:"fsPath"`
			RelPath string `json:"relativePath"`
		}
		if err := json.Unmarshal(item, &obj); err == nil {
			for _, p := range []string{obj.Path, obj.FsPath, obj.RelPath} {
				if p != "" {
					return p
				}
			}
		}
	}
	return ""
}

// Touched reports whether the session was created or updated at or after sinceMs.
func (rc *RawComposer) Touched(sinceMs int64) bool {
	return int64(rc.CreatedAt) >= sinceMs || int64(rc.LastUpdatedAt) >= sinceMs
}
