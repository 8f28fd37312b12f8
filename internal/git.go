package internal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// CommandRunner runs git subcommands in a directory and returns stdout.
type CommandRunner interface {
	Run(ctx context.Context, dir string, args ...string) (string, error)
}

// GitRunner shells out to the git binary under a retry policy.
type GitRunner struct {
	Binary string
	Policy RetryPolicy
}

// NewGitRunner creates a runner for the git on PATH.
func NewGitRunner(policy RetryPolicy) *GitRunner {
	return &GitRunner{Binary: "git", Policy: policy}
}

// Run executes `git <args>` in dir. Timeouts are retried; other failures are not.
func (r *GitRunner) Run(ctx context.Context, dir string, args ...string) (string, error) {
	var out string
	err := r.Policy.Do(ctx, func(ctx context.Context) error {
		var runErr error
		out, runErr = r.runOnce(ctx, dir, args)
		return runErr
	}, func(err error) bool { return IsTimeout(err) })
	return out, err
}

func (r *GitRunner) runOnce(ctx context.Context, dir string, args []string) (string, error) {
	bin := r.Binary
	if bin == "" {
		bin = "git"
	}
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = dir
	cmd.WaitDelay = time.Second
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		pe := &ExternalProcessError{
			Command:  append([]string{bin}, args...),
			ExitCode: -1,
			Stderr:   strings.TrimSpace(stderr.String()),
			Err:      err,
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			pe.TimedOut = true
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			pe.ExitCode = exitErr.ExitCode()
		}
		return "", pe
	}
	return stdout.String(), nil
}

// Commit is one parsed `git log` entry.
type Commit struct {
	Hash    string
	Subject string
	Author  string
	Email   string
	TS      int64 // ms
	Parents []string
}

// FileChange is one line of `git diff --name-status`.
type FileChange struct {
	Status string
	Path   string
}

// excludedDiffPaths are generated or vendored files not worth an event.
var excludedDiffPaths = []string{
	"package-lock.json", "yarn.lock", "pnpm-lock.yaml", "Gemfile.lock",
	"Pipfile.lock", "poetry.lock", "composer.lock", "go.sum", "Cargo.lock",
	".min.js", ".min.css", ".map", "vendor/", "node_modules/", "dist/",
}

// GitCollector records commits and their file changes.
type GitCollector struct {
	repoRoot string
	runner   CommandRunner
}

// NewGitCollector creates a collector for repoRoot.
func NewGitCollector(repoRoot string, runner CommandRunner) *GitCollector {
	return &GitCollector{repoRoot: repoRoot, runner: runner}
}

func (g *GitCollector) Name() string   { return "git.core" }
func (g *GitCollector) Source() Source { return SourceGit }

// Discover reports whether repoRoot is a git repository.
func (g *GitCollector) Discover(repoRoot string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := g.runner.Run(ctx, repoRoot, "rev-parse", "--git-dir")
	return err == nil
}

// PullSince returns commit events in the window, plus diff events for the
// newest commits.
func (g *GitCollector) PullSince(ctx context.Context, sinceMs, untilMs int64, cfg *Config) []Event {
	commits, err := g.commitsBetween(ctx, sinceMs, untilMs)
	if err != nil {
		LogDebug("git log failed in %s: %v", g.repoRoot, err)
		return nil
	}

	maxDiffs := DefaultConfig().Collection.MaxDiffCommits
	if cfg != nil {
		maxDiffs = cfg.Collection.MaxDiffCommits
	}

	var events []Event
	for i, c := range commits {
		ev, err := NewEvent(EventParams{
			TS:     c.TS,
			Source: SourceGit,
			Kind:   KindCommit,
			Actor:  ActorUser,
			Repo:   g.repoRoot,
			Text:   c.Subject,
			Key:    c.Hash,
			Metadata: map[string]any{
				"hash":    c.Hash,
				"author":  c.Author,
				"email":   c.Email,
				"parents": c.Parents,
			},
		})
		if err != nil {
			continue
		}
		events = append(events, ev)

		if i >= maxDiffs || len(c.Parents) == 0 {
			continue
		}
		changes, err := g.changesBetween(ctx, c.Parents[0], c.Hash)
		if err != nil {
			LogDebug("git diff %s failed: %v", c.Hash, err)
			continue
		}
		for _, fc := range changes {
			if excludedDiffPath(fc.Path) {
				continue
			}
			dev, err := NewEvent(EventParams{
				TS:     c.TS,
				Source: SourceGit,
				Kind:   KindDiff,
				Actor:  ActorUser,
				Repo:   g.repoRoot,
				File:   fc.Path,
				Text:   statusName(fc.Status) + " " + fc.Path,
				Key:    c.Hash + ":" + fc.Path,
				Metadata: map[string]any{
					"commit": c.Hash,
					"parent": c.Parents[0],
					"status": statusName(fc.Status),
				},
			})
			if err == nil {
				events = append(events, dev)
			}
		}
	}
	return events
}

// LastCommit returns HEAD's commit, or nil when the repository has none.
func (g *GitCollector) LastCommit(ctx context.Context) (*Commit, error) {
	out, err := g.runner.Run(ctx, g.repoRoot, "log", "-1", "--format=%H|%s|%at")
	if err != nil {
		return nil, err
	}
	line := strings.TrimSpace(out)
	if line == "" {
		return nil, nil
	}
	parts := strings.Split(line, "|")
	if len(parts) < 3 {
		return nil, &ParseError{Source: string(SourceGit), Key: "HEAD", Err: fmt.Errorf("unexpected log line %q", line)}
	}
	at, err := strconv.ParseInt(parts[len(parts)-1], 10, 64)
	if err != nil {
		return nil, &ParseError{Source: string(SourceGit), Key: parts[0], Err: err}
	}
	return &Commit{
		Hash:    parts[0],
		Subject: strings.Join(parts[1:len(parts)-1], "|"),
		TS:      at * 1000,
	}, nil
}

// StagedChanges lists the files in the index that differ from HEAD.
func (g *GitCollector) StagedChanges(ctx context.Context) ([]FileChange, error) {
	out, err := g.runner.Run(ctx, g.repoRoot, "diff", "--cached", "--name-status")
	if err != nil {
		return nil, err
	}
	return parseNameStatus(out), nil
}

// StagedEvents turns the staged change set into diff events stamped at nowMs.
func (g *GitCollector) StagedEvents(ctx context.Context, nowMs int64) []Event {
	changes, err := g.StagedChanges(ctx)
	if err != nil {
		LogDebug("git diff --cached failed in %s: %v", g.repoRoot, err)
		return nil
	}
	var events []Event
	for _, fc := range changes {
		if excludedDiffPath(fc.Path) {
			continue
		}
		ev, err := NewEvent(EventParams{
			TS:       nowMs,
			Source:   SourceGit,
			Kind:     KindDiff,
			Actor:    ActorUser,
			Repo:     g.repoRoot,
			File:     fc.Path,
			Text:     statusName(fc.Status) + " " + fc.Path,
			Metadata: map[string]any{"status": statusName(fc.Status), "staged": true},
		})
		if err == nil {
			events = append(events, ev)
		}
	}
	return events
}

// Health reports whether the repository is reachable.
func (g *GitCollector) Health() Health {
	if !g.Discover(g.repoRoot) {
		return Health{OK: false, Reason: "not a git repository"}
	}
	return Health{OK: true, Reason: "repository found"}
}

// Redact applies the privacy masks.
func (g *GitCollector) Redact(ev Event, cfg *Config) Event {
	return redactEvent(ev, cfg)
}

func (g *GitCollector) commitsBetween(ctx context.Context, sinceMs, untilMs int64) ([]Commit, error) {
	// git compares whole seconds; widen by one and filter exactly below.
	out, err := g.runner.Run(ctx, g.repoRoot,
		"log",
		"--since="+time.UnixMilli(sinceMs-1000).UTC().Format(time.RFC3339),
		"--until="+time.UnixMilli(untilMs+1000).UTC().Format(time.RFC3339),
		"--no-merges",
		"--format=%H|%s|%an|%ae|%at|%P",
	)
	if err != nil {
		return nil, err
	}

	var commits []Commit
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		c, err := parseCommitLine(line)
		if err != nil {
			LogDebug("Skipping git log line: %v", err)
			continue
		}
		if !inWindow(c.TS, sinceMs, untilMs) {
			continue
		}
		commits = append(commits, c)
	}
	return commits, nil
}

func (g *GitCollector) changesBetween(ctx context.Context, from, to string) ([]FileChange, error) {
	out, err := g.runner.Run(ctx, g.repoRoot, "diff", "--name-status", from, to)
	if err != nil {
		return nil, err
	}
	return parseNameStatus(out), nil
}

// parseCommitLine parses `%H|%s|%an|%ae|%at|%P`. The subject may itself
// contain '|', so fields are taken from both ends.
func parseCommitLine(line string) (Commit, error) {
	parts := strings.Split(line, "|")
	n := len(parts)
	if n < 6 {
		return Commit{}, &ParseError{Source: string(SourceGit), Key: line, Err: errors.New("too few fields")}
	}
	at, err := strconv.ParseInt(strings.TrimSpace(parts[n-2]), 10, 64)
	if err != nil {
		return Commit{}, &ParseError{Source: string(SourceGit), Key: parts[0], Err: err}
	}
	return Commit{
		Hash:    parts[0],
		Subject: strings.Join(parts[1:n-4], "|"),
		Author:  parts[n-4],
		Email:   parts[n-3],
		TS:      at * 1000,
		Parents: strings.Fields(parts[n-1]),
	}, nil
}

func parseNameStatus(out string) []FileChange {
	var changes []FileChange
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Split(strings.TrimRight(line, "\r"), "\t")
		if len(fields) < 2 || fields[0] == "" {
			continue
		}
		// Renames and copies carry old and new paths; keep the new one.
		path := fields[len(fields)-1]
		changes = append(changes, FileChange{Status: fields[0][:1], Path: path})
	}
	return changes
}

func statusName(status string) string {
	switch status {
	case "A":
		return "added"
	case "M":
		return "modified"
	case "D":
		return "deleted"
	case "R":
		return "renamed"
	case "C":
		return "copied"
	case "T":
		return "type-changed"
	default:
		return strings.ToLower(status)
	}
}

func excludedDiffPath(path string) bool {
	for _, pattern := range excludedDiffPaths {
		if strings.HasSuffix(path, pattern) || strings.Contains(path, pattern) {
			return true
		}
	}
	return false
}
