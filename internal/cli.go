package internal

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// CLILogName is the command log file inside the data directory.
const CLILogName = "cli.jsonl"

// cliFreshness is how recently the log must have been written for the
// collector to report healthy.
const cliFreshness = 24 * time.Hour

var errMissingCommand = errors.New("missing cmd")

// CommandEntry is one line of the command log.
type CommandEntry struct {
	TS       int64  `json:"ts"`
	Cmd      string `json:"cmd"`
	ExitCode int    `json:"exitCode"`
	Duration int64  `json:"duration"` // seconds
	CWD      string `json:"cwd"`
}

// CLICollector reads shell commands recorded by the shell hook.
type CLICollector struct {
	repoRoot string
	logPath  string
	now      func() time.Time
}

// NewCLICollector creates a collector reading logPath for repoRoot.
func NewCLICollector(repoRoot, logPath string) *CLICollector {
	return &CLICollector{repoRoot: repoRoot, logPath: logPath, now: time.Now}
}

// CLILogPath returns the configured command log, defaulting to
// <dataDir>/cli.jsonl.
func CLILogPath(cfg *Config) (string, error) {
	if cfg.Connectors.CLI.Path != "" {
		return cfg.Connectors.CLI.Path, nil
	}
	dataDir, err := cfg.ResolveDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, CLILogName), nil
}

func (c *CLICollector) Name() string   { return "cli.shell" }
func (c *CLICollector) Source() Source { return SourceCLI }

// Discover reports whether the command log exists.
func (c *CLICollector) Discover(repoRoot string) bool {
	_, err := os.Stat(c.logPath)
	return err == nil
}

// PullSince returns command events run inside the repository during the window.
func (c *CLICollector) PullSince(ctx context.Context, sinceMs, untilMs int64, cfg *Config) []Event {
	entries, err := ReadCommandLog(c.logPath)
	if err != nil {
		if os.IsNotExist(err) {
			LogDebug("%v", &SourceUnavailableError{Source: SourceCLI, Path: c.logPath, Err: err})
		} else {
			LogDebug("Failed to read command log %s: %v", c.logPath, err)
		}
	}

	var events []Event
	for _, e := range entries {
		ts := NormalizeTimestamp(e.TS)
		if !inWindow(ts, sinceMs, untilMs) || !PathWithin(e.CWD, c.repoRoot) {
			continue
		}
		ev, err := NewEvent(EventParams{
			TS:     ts,
			Source: SourceCLI,
			Kind:   KindCommand,
			Actor:  ActorUser,
			Repo:   c.repoRoot,
			CWD:    e.CWD,
			Text:   e.Cmd,
			Metadata: map[string]any{
				"exitCode": e.ExitCode,
				"duration": e.Duration,
				"success":  e.ExitCode == 0,
				"category": CommandCategory(e.Cmd),
			},
		})
		if err != nil {
			continue
		}
		events = append(events, ev)
	}
	return events
}

// ReadCommandLog parses the command log, skipping malformed lines.
func ReadCommandLog(path string) ([]CommandEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	var entries []CommandEntry
	for lineNo := 1; ; lineNo++ {
		line, err := reader.ReadBytes('\n')
		if trimmed := strings.TrimSpace(string(line)); trimmed != "" {
			var e CommandEntry
			jerr := json.Unmarshal([]byte(trimmed), &e)
			if jerr == nil && e.Cmd == "" {
				jerr = errMissingCommand
			}
			if jerr != nil {
				LogDebug("%v", &ParseError{Source: string(SourceCLI), Key: path + ":" + strconv.Itoa(lineNo), Err: jerr})
			} else {
				entries = append(entries, e)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return entries, nil
			}
			return entries, err
		}
	}
}

var appendMu sync.Mutex

// AppendCommand appends one entry to the command log, creating it if needed.
func AppendCommand(path string, e CommandEntry) error {
	if strings.TrimSpace(e.Cmd) == "" {
		return ErrEmptyText
	}
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}

	appendMu.Lock()
	defer appendMu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open command log: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to append command: %w", err)
	}
	return nil
}

// CommandCategory buckets a command line for display and search.
func CommandCategory(cmd string) string {
	lower := strings.ToLower(strings.TrimSpace(cmd))
	fields := strings.Fields(lower)
	first := ""
	if len(fields) > 0 {
		first = fields[0]
	}

	switch {
	case containsAny(lower, "npm test", "yarn test", "pnpm test", "jest", "pytest", "go test", "cargo test"):
		return "test"
	case containsAny(lower, "npm run build", "yarn build", "cargo build", "go build") || first == "make":
		return "build"
	case first == "git":
		return "vcs"
	case containsAny(lower, "benchmark", "bench", "perf"):
		return "bench"
	default:
		return "run"
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// Health is OK when the log exists and was written within the last day.
func (c *CLICollector) Health() Health {
	info, err := os.Stat(c.logPath)
	if err != nil {
		return Health{OK: false, Reason: "command log not found: " + c.logPath}
	}
	age := c.now().Sub(info.ModTime())
	if age > cliFreshness {
		return Health{OK: false, Reason: fmt.Sprintf("command log not written for %s", age.Truncate(time.Minute))}
	}
	return Health{OK: true, Reason: "command log active"}
}

// Redact applies the privacy masks.
func (c *CLICollector) Redact(ev Event, cfg *Config) Event {
	return redactEvent(ev, cfg)
}

// ShellHookScript returns a shell snippet that records each command through
// `<binary> log-command`. Supported shells are zsh and bash.
func ShellHookScript(shell, binary string) (string, error) {
	switch shell {
	case "zsh":
		return fmt.Sprintf(zshHook, binary), nil
	case "bash":
		return fmt.Sprintf(bashHook, binary), nil
	default:
		return "", fmt.Errorf("unsupported shell: %s", shell)
	}
}

const zshHook = `# devtrail command capture
_devtrail_preexec() {
  _DEVTRAIL_CMD="$1"
  _DEVTRAIL_START=$EPOCHSECONDS
}
_devtrail_precmd() {
  local exit_code=$?
  if [[ -n "$_DEVTRAIL_CMD" ]]; then
    (%[1]q log-command --exit-code "$exit_code" --duration "$((EPOCHSECONDS - _DEVTRAIL_START))" --cwd "$PWD" -- "$_DEVTRAIL_CMD" >/dev/null 2>&1 &)
    unset _DEVTRAIL_CMD _DEVTRAIL_START
  fi
}
zmodload zsh/datetime
autoload -U add-zsh-hook
add-zsh-hook preexec _devtrail_preexec
add-zsh-hook precmd _devtrail_precmd
`

const bashHook = `# devtrail command capture
_devtrail_prompt() {
  local exit_code=$?
  local cmd
  cmd=$(HISTTIMEFORMAT= history 1 | sed -e 's/^ *[0-9]* *//')
  if [[ -n "$cmd" && "$cmd" != "$_DEVTRAIL_LAST" ]]; then
    _DEVTRAIL_LAST="$cmd"
    (%[1]q log-command --exit-code "$exit_code" --cwd "$PWD" -- "$cmd" >/dev/null 2>&1 &)
  fi
}
PROMPT_COMMAND="_devtrail_prompt${PROMPT_COMMAND:+;$PROMPT_COMMAND}"
`
