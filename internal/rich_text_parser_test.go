package internal

import (
	"strings"
	"testing"
)

func TestExtractTextFromRichText(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{
			name:  "empty string",
			input: "",
			want:  "",
		},
		{
			name:  "root children",
			input: `{"root":{"children":[{"type":"text","text":"Hello"}]}}`,
			want:  "Hello",
		},
		{
			name:  "paragraphs",
			input: `{"root":{"type":"root","children":[{"type":"paragraph","children":[{"type":"text","text":"First line"}]},{"type":"paragraph","children":[{"type":"text","text":"Second line"}]}]}}`,
			want:  "First line\nSecond line",
		},
		{
			name:  "code block",
			input: `{"root":{"children":[{"type":"code","children":[{"type":"text","text":"package main"}]}]}}`,
			want:  "```\npackage main\n```",
		},
		{
			name:  "multiple text nodes",
			input: `{"root":{"children":[{"type":"text","text":"Hello"},{"type":"text","text":" World"}]}}`,
			want:  "Hello World",
		},
		{
			name:  "reasoning hidden",
			input: `{"root":{"children":[{"type":"text","text":"Answer"},{"type":"redacted_reasoning","children":[{"type":"text","text":"secret"}]},{"type":"thinking","children":[{"type":"text","text":"hmm"}]}]}}`,
			want:  "Answer",
		},
		{
			name:  "direct node",
			input: `{"type":"text","text":"Direct node"}`,
			want:  "Direct node",
		},
		{
			name:  "array of nodes",
			input: `[{"type":"text","text":"First"},{"type":"text","text":" Second"}]`,
			want:  "First Second",
		},
		{
			name:    "invalid JSON",
			input:   `{invalid json}`,
			wantErr: true,
		},
		{
			name:    "unknown format",
			input:   `"just a string"`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractTextFromRichText(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ExtractTextFromRichText() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("ExtractTextFromRichText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractTextFromRichText_Linebreak(t *testing.T) {
	input := `{"root":{"children":[{"type":"paragraph","children":[{"type":"text","text":"a"},{"type":"linebreak"},{"type":"text","text":"b"}]}]}}`
	got, err := ExtractTextFromRichText(input)
	if err != nil {
		t.Fatalf("ExtractTextFromRichText() error = %v", err)
	}
	if !strings.Contains(got, "a\nb") {
		t.Errorf("ExtractTextFromRichText() = %q, want line break preserved", got)
	}
}
