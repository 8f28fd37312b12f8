package internal

import (
	"strings"
	"unicode/utf8"
)

// Classification is the verdict on a piece of conversation text.
type Classification struct {
	Content bool
	Noise   bool
	Reason  string
}

const (
	// minContentLength is the shortest text treated as human content.
	minContentLength = 5
	// bracketDensity is the share of braces above which text reads as a data payload.
	bracketDensity = 0.05
)

// toolMarkers are substrings that only show up in tool-call plumbing.
var toolMarkers = []string{
	"tool_use_id",
	"function_calls",
	"<invoke>",
	"antml:parameter",
	"tool_result",
	"tool_use",
	"function_call",
	"tool_call",
	"tool_response",
	"invoke name=",
	"parameter name=",
	"tool_call_id",
	"function_result",
	"tool_choice",
	"tool_usage",
	"function_definition",
	"tool_definition",
}

var toolTags = []string{"<invoke", "<parameter", "<tool", "<function"}

// Classify decides whether text is human conversation or tool noise.
func Classify(text string) Classification {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Classification{Noise: true, Reason: "empty"}
	}

	lower := strings.ToLower(trimmed)
	for _, marker := range toolMarkers {
		if strings.Contains(lower, marker) {
			return Classification{Noise: true, Reason: "marker " + marker}
		}
	}

	if strings.Contains(trimmed, "{") && strings.Contains(trimmed, "}") {
		braces := strings.Count(trimmed, "{") + strings.Count(trimmed, "}")
		if float64(braces) > float64(len(trimmed))*bracketDensity {
			return Classification{Noise: true, Reason: "json density"}
		}
	}

	if strings.Contains(trimmed, "<") && strings.Contains(trimmed, ">") {
		for _, tag := range toolTags {
			if strings.Contains(lower, tag) {
				return Classification{Noise: true, Reason: "tool tag " + tag}
			}
		}
	}

	if utf8.RuneCountInString(trimmed) < minContentLength {
		return Classification{Noise: true, Reason: "too short"}
	}

	return Classification{Content: true}
}

// IsToolRelated reports whether text is tool noise.
func IsToolRelated(text string) bool {
	return Classify(text).Noise
}
