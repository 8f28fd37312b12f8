package internal

import (
	"encoding/json"
	"fmt"
	"strings"
)

// RichTextNode represents a node in the editor's rich text tree
type RichTextNode struct {
	Type     string         `json:"type"`
	Text     string         `json:"text,omitempty"`
	Children []RichTextNode `json:"children,omitempty"`
}

// RichTextRoot represents the root of the rich text structure
type RichTextRoot struct {
	Root *RichTextNode `json:"root"`
}

// hiddenNodeTypes hold model reasoning or tool traffic, not conversation.
var hiddenNodeTypes = map[string]bool{
	"thinking":           true,
	"tool":               true,
	"tool_call":          true,
	"function_call":      true,
	"redacted_reasoning": true,
	"redacted-reasoning": true,
}

// blockNodeTypes end with a line break.
var blockNodeTypes = map[string]bool{
	"paragraph": true,
	"heading":   true,
	"listitem":  true,
	"quote":     true,
}

// ExtractTextFromRichText parses richText JSON and extracts plain text.
// Accepted shapes are {"root":{...}}, a bare node and an array of nodes.
func ExtractTextFromRichText(richTextJSON string) (string, error) {
	if strings.TrimSpace(richTextJSON) == "" {
		return "", nil
	}

	var root RichTextRoot
	if err := json.Unmarshal([]byte(richTextJSON), &root); err == nil && root.Root != nil {
		return strings.TrimSpace(extractTextFromNode(*root.Root)), nil
	}

	var node RichTextNode
	if err := json.Unmarshal([]byte(richTextJSON), &node); err == nil && (node.Type != "" || len(node.Children) > 0) {
		return strings.TrimSpace(extractTextFromNode(node)), nil
	}

	var nodes []RichTextNode
	if err := json.Unmarshal([]byte(richTextJSON), &nodes); err == nil {
		return strings.TrimSpace(extractTextFromChildren(nodes)), nil
	}

	return "", fmt.Errorf("failed to parse richText JSON in any known format")
}

// extractTextFromNode recursively extracts text from a node
func extractTextFromNode(node RichTextNode) string {
	if hiddenNodeTypes[node.Type] {
		return ""
	}

	var b strings.Builder
	switch node.Type {
	case "linebreak":
		b.WriteString("\n")
	case "code":
		if code := extractTextFromChildren(node.Children); code != "" {
			b.WriteString("\n```\n" + code + "\n```\n")
		}
		return b.String()
	default:
		b.WriteString(node.Text)
	}

	b.WriteString(extractTextFromChildren(node.Children))
	if blockNodeTypes[node.Type] {
		b.WriteString("\n")
	}
	return b.String()
}

// extractTextFromChildren extracts text from an array of nodes
func extractTextFromChildren(children []RichTextNode) string {
	var b strings.Builder
	for _, child := range children {
		b.WriteString(extractTextFromNode(child))
	}
	return b.String()
}
