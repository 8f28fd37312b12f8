package internal

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/iksnae/devtrail/testutil"
)

// fakeRunner answers git invocations from a table keyed by the joined args.
// Keys ending in "*" match by prefix.
type fakeRunner struct {
	mu      sync.Mutex
	outputs map[string]string
	errs    map[string]error
	calls   []string
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{outputs: map[string]string{}, errs: map[string]error{}}
}

func (f *fakeRunner) Run(ctx context.Context, dir string, args ...string) (string, error) {
	key := strings.Join(args, " ")
	f.mu.Lock()
	f.calls = append(f.calls, key)
	f.mu.Unlock()

	for k, err := range f.errs {
		if k == key || (strings.HasSuffix(k, "*") && strings.HasPrefix(key, strings.TrimSuffix(k, "*"))) {
			return "", err
		}
	}
	for k, out := range f.outputs {
		if k == key || (strings.HasSuffix(k, "*") && strings.HasPrefix(key, strings.TrimSuffix(k, "*"))) {
			return out, nil
		}
	}
	return "", &ExternalProcessError{Command: append([]string{"git"}, args...), ExitCode: 128, Stderr: "unexpected call"}
}

func (f *fakeRunner) count(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func TestParseCommitLine(t *testing.T) {
	tests := []struct {
		name        string
		line        string
		wantSubject string
		wantParents int
		wantErr     bool
	}{
		{"simple", "abc|fix parser|Dev|dev@x.io|1690000000|p1", "fix parser", 1, false},
		{"pipe in subject", "abc|feat: a | b | c|Dev|dev@x.io|1690000000|p1 p2", "feat: a | b | c", 2, false},
		{"root commit", "abc|initial|Dev|dev@x.io|1690000000|", "initial", 0, false},
		{"too few fields", "abc|subject|Dev", "", 0, true},
		{"bad timestamp", "abc|s|Dev|dev@x.io|notanumber|p1", "", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := parseCommitLine(tt.line)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseCommitLine() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if c.Subject != tt.wantSubject {
				t.Errorf("Subject = %q, want %q", c.Subject, tt.wantSubject)
			}
			if len(c.Parents) != tt.wantParents {
				t.Errorf("Parents = %v, want %d", c.Parents, tt.wantParents)
			}
			if c.TS != 1690000000000 {
				t.Errorf("TS = %d, want ms", c.TS)
			}
		})
	}
}

func TestParseNameStatus(t *testing.T) {
	out := "M\tinternal/store.go\nA\tREADME.md\nR100\told.go\tnew.go\n\nD\tgone.txt\n"
	got := parseNameStatus(out)
	want := []FileChange{
		{"M", "internal/store.go"},
		{"A", "README.md"},
		{"R", "new.go"},
		{"D", "gone.txt"},
	}
	if len(got) != len(want) {
		t.Fatalf("parseNameStatus() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("change[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestGitCollector_PullSince(t *testing.T) {
	r := newFakeRunner()
	r.outputs["log --since=*"] = strings.Join([]string{
		"c2|second | with pipe|Dev|dev@x.io|1700000200|c1",
		"c1|first|Dev|dev@x.io|1700000100|c0",
		"garbage line",
	}, "\n")
	r.outputs["diff --name-status c1 c2"] = "M\tmain.go\nM\tgo.sum\n"
	r.outputs["diff --name-status c0 c1"] = "A\tREADME.md\n"

	cfg := DefaultConfig()
	cfg.Collection.MaxDiffCommits = 1

	g := NewGitCollector("/repo", r)
	events := g.PullSince(context.Background(), 1700000000000, 1700000300000, cfg)

	var commits, diffs []Event
	for _, ev := range events {
		switch ev.Kind {
		case KindCommit:
			commits = append(commits, ev)
		case KindDiff:
			diffs = append(diffs, ev)
		}
	}
	if len(commits) != 2 {
		t.Fatalf("commit events = %d, want 2", len(commits))
	}
	if commits[0].Text != "second | with pipe" {
		t.Errorf("commit text = %q", commits[0].Text)
	}
	if commits[0].Metadata["hash"] != "c2" || commits[0].Actor != ActorUser {
		t.Errorf("commit metadata = %v actor = %q", commits[0].Metadata, commits[0].Actor)
	}
	// Only the newest commit gets diffs, and go.sum is excluded.
	if len(diffs) != 1 {
		t.Fatalf("diff events = %d, want 1: %+v", len(diffs), diffs)
	}
	if diffs[0].File != "main.go" || diffs[0].Text != "modified main.go" {
		t.Errorf("diff event = %+v", diffs[0])
	}
	if r.count("diff --name-status c0 c1") != 0 {
		t.Error("diff fetched beyond MaxDiffCommits")
	}
}

func TestGitCollector_PullSinceFailureYieldsNothing(t *testing.T) {
	r := newFakeRunner()
	r.errs["log*"] = &ExternalProcessError{Command: []string{"git", "log"}, ExitCode: 128}
	g := NewGitCollector("/not-a-repo", r)
	if events := g.PullSince(context.Background(), 0, 1, nil); len(events) != 0 {
		t.Errorf("PullSince() = %d events, want 0", len(events))
	}
	if g.Health().OK {
		t.Error("Health().OK = true for failing repo")
	}
}

func TestGitCollector_LastCommit(t *testing.T) {
	r := newFakeRunner()
	r.outputs["log -1 --format=%H|%s|%at"] = "abc|fix | thing|1700000000\n"
	g := NewGitCollector("/repo", r)

	c, err := g.LastCommit(context.Background())
	if err != nil {
		t.Fatalf("LastCommit() error = %v", err)
	}
	if c.Hash != "abc" || c.Subject != "fix | thing" || c.TS != 1700000000000 {
		t.Errorf("LastCommit() = %+v", c)
	}

	r.outputs["log -1 --format=%H|%s|%at"] = ""
	c, err = g.LastCommit(context.Background())
	if err != nil || c != nil {
		t.Errorf("LastCommit() on empty repo = %+v, %v", c, err)
	}
}

func TestGitCollector_StagedEvents(t *testing.T) {
	r := newFakeRunner()
	r.outputs["diff --cached --name-status"] = "A\tnew.go\nM\tyarn.lock\n"
	g := NewGitCollector("/repo", r)

	events := g.StagedEvents(context.Background(), tb)
	if len(events) != 1 {
		t.Fatalf("StagedEvents() = %d, want 1", len(events))
	}
	if events[0].Kind != KindDiff || events[0].File != "new.go" || events[0].Metadata["staged"] != true {
		t.Errorf("staged event = %+v", events[0])
	}
}

func TestGitRunner_Timeout(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	r := &GitRunner{Binary: "sh", Policy: RetryPolicy{Attempts: 2, Timeout: 50 * time.Millisecond}}
	start := time.Now()
	_, err := r.Run(context.Background(), t.TempDir(), "-c", "exec sleep 5")
	if !IsTimeout(err) {
		t.Fatalf("Run() error = %v, want timeout", err)
	}
	if time.Since(start) > 3*time.Second {
		t.Error("Run() did not honour the per-attempt timeout")
	}
}

func TestGitCollector_RealRepository(t *testing.T) {
	repo := testutil.InitGitRepo(t)
	testutil.GitCommit(t, repo, "main.go", "package main\n", "add main")
	testutil.GitCommit(t, repo, "main.go", "package main\n\nfunc main() {}\n", "implement main | entry")

	g := NewGitCollector(repo, NewGitRunner(DefaultRetryPolicy()))
	if !g.Discover(repo) {
		t.Fatal("Discover() = false for a fresh repository")
	}

	now := time.Now().UnixMilli()
	events := g.PullSince(context.Background(), now-time.Hour.Milliseconds(), now+time.Minute.Milliseconds(), DefaultConfig())

	var sawPipe, sawDiff bool
	for _, ev := range events {
		if ev.Kind == KindCommit && ev.Text == "implement main | entry" {
			sawPipe = true
		}
		if ev.Kind == KindDiff && ev.File == "main.go" {
			sawDiff = true
		}
	}
	if !sawPipe || !sawDiff {
		t.Errorf("events = %+v, want commit with pipe and diff on main.go", events)
	}

	last, err := g.LastCommit(context.Background())
	if err != nil || last == nil || last.Subject != "implement main | entry" {
		t.Errorf("LastCommit() = %+v, %v", last, err)
	}
}

func TestExternalProcessError_FromRunner(t *testing.T) {
	testutil.RequireGit(t)
	r := NewGitRunner(RetryPolicy{Attempts: 1, Timeout: 5 * time.Second})
	_, err := r.Run(context.Background(), t.TempDir(), "rev-parse", "--show-toplevel")
	var pe *ExternalProcessError
	if !errors.As(err, &pe) {
		t.Fatalf("Run() outside repo error = %v, want *ExternalProcessError", err)
	}
	if pe.ExitCode == 0 || pe.TimedOut {
		t.Errorf("ExternalProcessError = %+v", pe)
	}
}
