package internal

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// maxTranscriptLine bounds a single transcript line. Longer lines are skipped.
const maxTranscriptLine = 32 << 20

// transcriptLine is one JSON object in a session transcript.
type transcriptLine struct {
	Timestamp flexMillis `json:"timestamp"`
	Type      string     `json:"type"`
	SessionID string     `json:"sessionId"`
	UUID      string     `json:"uuid"`
	CWD       string     `json:"cwd"`
	GitBranch string     `json:"gitBranch"`
	Message   *struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	} `json:"message"`
}

// TranscriptCollector reads assistant session transcripts stored as JSONL,
// one directory per project.
type TranscriptCollector struct {
	conversationBase
	repoRoot    string
	projectsDir string
	resolver    RepoResolver
}

// NewTranscriptCollector creates a collector for repoRoot. An empty
// projectsDir means ~/.claude/projects.
func NewTranscriptCollector(repoRoot, projectsDir string, resolver RepoResolver) *TranscriptCollector {
	if projectsDir == "" {
		projectsDir = DefaultTranscriptDir()
	}
	return &TranscriptCollector{
		conversationBase: conversationBase{source: SourceClaude},
		repoRoot:         repoRoot,
		projectsDir:      projectsDir,
		resolver:         resolver,
	}
}

// DefaultTranscriptDir returns ~/.claude/projects, or "" without a home dir.
func DefaultTranscriptDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".claude", "projects")
}

// EscapeProjectPath maps an absolute path to its project directory name.
func EscapeProjectPath(path string) string {
	return strings.ReplaceAll(filepath.Clean(path), string(filepath.Separator), "-")
}

func (c *TranscriptCollector) Name() string   { return "claude.conversation" }
func (c *TranscriptCollector) Source() Source { return SourceClaude }

// ProjectDir is the transcript directory for the collector's repository.
func (c *TranscriptCollector) ProjectDir() string {
	return filepath.Join(c.projectsDir, EscapeProjectPath(c.repoRoot))
}

// Discover reports whether any transcripts exist for repoRoot.
func (c *TranscriptCollector) Discover(repoRoot string) bool {
	dir := filepath.Join(c.projectsDir, EscapeProjectPath(repoRoot))
	files, _ := filepath.Glob(filepath.Join(dir, "*.jsonl"))
	return len(files) > 0
}

// PullSince returns conversation events from transcripts touched since sinceMs.
func (c *TranscriptCollector) PullSince(ctx context.Context, sinceMs, untilMs int64, cfg *Config) []Event {
	files, err := c.transcriptFiles(sinceMs)
	if err != nil {
		var su *SourceUnavailableError
		if errors.As(err, &su) {
			LogDebug("%v", err)
		} else {
			LogWarn("Failed to list transcripts: %v", err)
		}
		return nil
	}

	roots := make(map[string]string)
	var events []Event
	for _, path := range files {
		if ctx.Err() != nil {
			break
		}
		msgs, err := ReadTranscript(path)
		if err != nil {
			LogDebug("Failed to read transcript %s: %v", path, err)
		}
		for _, msg := range msgs {
			if !inWindow(msg.Timestamp, sinceMs, untilMs) {
				continue
			}
			repo, ok := c.resolveRepo(ctx, msg.CWD, roots)
			if !ok {
				continue
			}
			if ev, ok := c.toEvent(msg, repo); ok {
				events = append(events, ev)
			}
		}
	}
	return events
}

// resolveRepo maps a line's cwd (or the project path when absent) to its
// repository root. Answers are memoized for the duration of one pull.
func (c *TranscriptCollector) resolveRepo(ctx context.Context, cwd string, memo map[string]string) (string, bool) {
	if cwd == "" {
		cwd = c.repoRoot
	}
	if root, ok := memo[cwd]; ok {
		return root, root != ""
	}
	root := ""
	if c.resolver != nil {
		r, err := c.resolver.Resolve(ctx, cwd)
		if err != nil {
			LogDebug("Resolving %s: %v", cwd, err)
		}
		root = r
	}
	memo[cwd] = root
	return root, root != ""
}

// transcriptFiles lists *.jsonl files in the project directory whose
// modification time is not older than sinceMs, oldest first.
func (c *TranscriptCollector) transcriptFiles(sinceMs int64) ([]string, error) {
	dir := c.ProjectDir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &SourceUnavailableError{Source: SourceClaude, Path: dir, Err: err}
		}
		return nil, err
	}

	type candidate struct {
		path  string
		mtime int64
	}
	var found []candidate
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".jsonl" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		mtime := info.ModTime().UnixMilli()
		if mtime < sinceMs {
			continue
		}
		found = append(found, candidate{filepath.Join(dir, entry.Name()), mtime})
	}
	sort.Slice(found, func(i, j int) bool {
		if found[i].mtime != found[j].mtime {
			return found[i].mtime < found[j].mtime
		}
		return found[i].path < found[j].path
	})

	paths := make([]string, len(found))
	for i, f := range found {
		paths[i] = f.path
	}
	return paths, nil
}

// ReadTranscript parses every message line in path. Malformed lines and
// lines without a message are skipped; an error is returned only when the
// file itself cannot be read, alongside whatever was parsed before it.
func ReadTranscript(path string) ([]Message, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	name := filepath.Base(path)
	reader := bufio.NewReaderSize(f, 64*1024)
	var msgs []Message
	for lineNo := 1; ; lineNo++ {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 && len(line) <= maxTranscriptLine {
			if msg, perr := parseTranscriptLine(line, name, lineNo); perr == nil {
				if msg != nil {
					msgs = append(msgs, *msg)
				}
			} else {
				LogDebug("%v", perr)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return msgs, nil
			}
			return msgs, err
		}
	}
}

func parseTranscriptLine(line []byte, file string, lineNo int) (*Message, error) {
	line = []byte(strings.TrimSpace(string(line)))
	if len(line) == 0 {
		return nil, nil
	}
	var tl transcriptLine
	if err := json.Unmarshal(line, &tl); err != nil {
		return nil, &ParseError{Source: string(SourceClaude), Key: file + ":" + strconv.Itoa(lineNo), Err: err}
	}
	if tl.Message == nil {
		return nil, nil
	}

	role := tl.Message.Role
	if role == "" {
		role = tl.Type
	}
	key := tl.UUID
	if key == "" {
		key = file + ":" + strconv.Itoa(lineNo)
	}

	meta := map[string]any{"transcript": file}
	if tl.SessionID != "" {
		meta["sessionId"] = tl.SessionID
	}
	if tl.GitBranch != "" {
		meta["gitBranch"] = tl.GitBranch
	}

	return &Message{
		Timestamp: int64(tl.Timestamp),
		Role:      role,
		Content:   tl.Message.Content,
		CWD:       tl.CWD,
		Key:       key,
		Metadata:  meta,
	}, nil
}

// Health reports whether the project directory exists and how many
// transcripts it holds.
func (c *TranscriptCollector) Health() Health {
	dir := c.ProjectDir()
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return Health{OK: false, Reason: "no transcripts for " + c.repoRoot}
	}
	files, _ := filepath.Glob(filepath.Join(dir, "*.jsonl"))
	return Health{
		OK:     true,
		Reason: "transcripts found",
		Counts: map[string]int{"sessions": len(files)},
	}
}

// Redact applies the privacy masks.
func (c *TranscriptCollector) Redact(ev Event, cfg *Config) Event {
	return redactEvent(ev, cfg)
}
