package internal

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// ExtractBubbleText returns the displayable text of a bubble:
// the text field, else the rich text tree, else any "text" strings
// recoverable from a malformed rich text blob. Code blocks are appended as
// fenced blocks. An empty result means the bubble carries no text.
func ExtractBubbleText(b *RawBubble) string {
	if b == nil {
		return ""
	}
	text := strings.TrimSpace(b.Text)
	if text == "" && b.RichText != "" {
		parsed, err := ExtractTextFromRichText(b.RichText)
		if err != nil {
			LogDebug("%v", &ParseError{Source: string(SourceCursor), Key: b.BubbleID, Err: err})
			parsed = scanTextFields(b.RichText)
		}
		text = parsed
	}
	if text == "" {
		return ""
	}

	parts := []string{text}
	for _, cb := range b.CodeBlocks {
		if strings.TrimSpace(cb.Content) == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("```%s\n%s\n```", cb.Language, strings.TrimRight(cb.Content, "\n")))
	}
	return strings.Join(parts, "\n\n")
}

// scanTextFields walks a JSON document token by token and joins the values
// of every "text" key it reaches before the first syntax error.
func scanTextFields(doc string) string {
	type frame struct {
		object  bool
		wantKey bool
		key     string
	}
	var (
		stack []*frame
		out   []string
	)
	valueDone := func() {
		if n := len(stack); n > 0 && stack[n-1].object {
			stack[n-1].wantKey = true
		}
	}

	dec := json.NewDecoder(strings.NewReader(doc))
	for {
		tok, err := dec.Token()
		if err != nil {
			if err != io.EOF {
				LogDebug("rich text scan stopped: %v", err)
			}
			break
		}
		if d, ok := tok.(json.Delim); ok {
			switch d {
			case '{':
				stack = append(stack, &frame{object: true, wantKey: true})
			case '[':
				stack = append(stack, &frame{})
			default:
				if len(stack) > 0 {
					stack = stack[:len(stack)-1]
				}
				valueDone()
			}
			continue
		}
		var top *frame
		if len(stack) > 0 {
			top = stack[len(stack)-1]
		}
		if top != nil && top.object && top.wantKey {
			top.key, _ = tok.(string)
			top.wantKey = false
			continue
		}
		if s, ok := tok.(string); ok && top != nil && top.object && top.key == "text" {
			if v := strings.TrimSpace(s); v != "" {
				out = append(out, v)
			}
		}
		valueDone()
	}
	return strings.Join(out, " ")
}
