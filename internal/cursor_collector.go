package internal

import (
	"context"
	"errors"
	"sort"
	"time"
)

const healthTimeout = 10 * time.Second

// CursorCollector reads chat sessions from the editor's embedded stores.
// Session membership comes from the workspace database opened on the
// repository; message bodies come from the global database.
type CursorCollector struct {
	conversationBase
	repoRoot string
	paths    StoragePaths
	policy   RetryPolicy
}

// NewCursorCollector creates a collector for repoRoot. An empty basePath
// uses the platform's default User directory.
func NewCursorCollector(repoRoot, basePath string, policy RetryPolicy) *CursorCollector {
	var paths StoragePaths
	if basePath != "" {
		paths = StoragePathsAt(basePath)
	} else if detected, err := DetectStoragePaths(); err == nil {
		paths = detected
	} else {
		LogDebug("Editor storage not detected: %v", err)
	}
	return &CursorCollector{
		conversationBase: conversationBase{source: SourceCursor},
		repoRoot:         repoRoot,
		paths:            paths,
		policy:           policy,
	}
}

func (c *CursorCollector) Name() string   { return "cursor.conversation" }
func (c *CursorCollector) Source() Source { return SourceCursor }

// Discover reports whether the global store exists and a workspace was
// opened on repoRoot.
func (c *CursorCollector) Discover(repoRoot string) bool {
	if c.paths.BasePath == "" || !c.paths.GlobalStorageExists() {
		return false
	}
	ws, err := c.workspace(repoRoot)
	return err == nil && ws != nil
}

func (c *CursorCollector) workspace(repoRoot string) (*WorkspaceInfo, error) {
	workspaces, err := DetectWorkspaces(c.paths.BasePath)
	if err != nil {
		return nil, err
	}
	return FindWorkspaceForRepo(workspaces, repoRoot), nil
}

// sessions returns the workspace's sessions touched since sinceMs, newest
// first, capped at limit.
func (c *CursorCollector) sessions(ctx context.Context, ws *WorkspaceInfo, sinceMs int64, limit int) ([]RawComposer, error) {
	db, err := OpenDatabaseWithRetry(ctx, ws.DBPath, c.policy)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	all, err := NewStorage(db).LoadComposers(ctx)
	if err != nil {
		return nil, err
	}
	var kept []RawComposer
	for _, s := range all {
		if !s.Touched(sinceMs) {
			continue
		}
		kept = append(kept, s)
		if limit > 0 && len(kept) == limit {
			break
		}
	}
	return kept, nil
}

// PullSince returns conversation events from the repository's recent sessions.
func (c *CursorCollector) PullSince(ctx context.Context, sinceMs, untilMs int64, cfg *Config) []Event {
	if c.paths.BasePath == "" {
		return nil
	}
	limit := DefaultConfig().Collection.MaxSessions
	if cfg != nil {
		limit = cfg.Collection.MaxSessions
	}

	ws, err := c.workspace(c.repoRoot)
	if err != nil || ws == nil {
		var su *SourceUnavailableError
		if err != nil && !errors.As(err, &su) {
			LogWarn("Failed to scan editor workspaces: %v", err)
		} else {
			LogDebug("No editor workspace for %s", c.repoRoot)
		}
		return nil
	}

	sessions, err := c.sessions(ctx, ws, sinceMs, limit)
	if err != nil {
		LogDebug("Failed to read sessions for workspace %s: %v", ws.Hash, err)
		return nil
	}
	if len(sessions) == 0 {
		return nil
	}

	global, err := OpenDatabaseWithRetry(ctx, c.paths.GetGlobalStorageDBPath(), c.policy)
	if err != nil {
		LogDebug("Failed to open global store: %v", err)
		return nil
	}
	defer global.Close()
	storage := NewStorage(global)

	var events []Event
	for i := range sessions {
		session := &sessions[i]
		if ctx.Err() != nil {
			break
		}
		bubbles, err := storage.LoadBubbles(ctx, session.ComposerID)
		if err != nil {
			LogDebug("Failed to load messages for session %s: %v", session.ComposerID, err)
			continue
		}
		for _, msg := range bubbleMessages(bubbles, session, sinceMs, untilMs) {
			if ev, ok := c.toEvent(msg, c.repoRoot); ok {
				events = append(events, ev)
			}
		}
	}
	return events
}

// bubbleMessages converts a session's rows into messages inside the window,
// ordered by time.
func bubbleMessages(bubbles []*RawBubble, session *RawComposer, sinceMs, untilMs int64) []Message {
	var msgs []Message
	for _, b := range bubbles {
		msg, ok := bubbleMessage(b, session)
		if !ok || !inWindow(msg.Timestamp, sinceMs, untilMs) {
			continue
		}
		msgs = append(msgs, msg)
	}
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].Timestamp < msgs[j].Timestamp })
	return msgs
}

// bubbleMessage builds a message from one row. Rows without text or without
// a usable timestamp are dropped.
func bubbleMessage(b *RawBubble, session *RawComposer) (Message, bool) {
	text := ExtractBubbleText(b)
	ts := b.MessageTime(session)
	if text == "" || ts <= 0 {
		return Message{}, false
	}

	meta := map[string]any{"composerId": b.ComposerID}
	if session != nil && session.Name != "" {
		meta["session"] = session.Name
	}
	return Message{
		Timestamp: ts,
		Role:      b.Role(),
		Text:      text,
		File:      b.FirstRelevantFile(),
		Key:       b.ComposerID + ":" + b.BubbleID,
		Metadata:  meta,
	}, true
}

// Health reports store availability and session counts for the repository.
func (c *CursorCollector) Health() Health {
	if c.paths.BasePath == "" || !c.paths.GlobalStorageExists() {
		return Health{OK: false, Reason: "editor storage not found"}
	}
	ws, err := c.workspace(c.repoRoot)
	if err != nil || ws == nil {
		return Health{OK: false, Reason: "no workspace for " + c.repoRoot}
	}

	ctx, cancel := context.WithTimeout(context.Background(), healthTimeout)
	defer cancel()
	sessions, err := c.sessions(ctx, ws, 0, 0)
	if err != nil {
		return Health{OK: false, Reason: err.Error()}
	}
	return Health{
		OK:     true,
		Reason: "workspace " + ws.Hash,
		Counts: map[string]int{"sessions": len(sessions)},
	}
}

// Redact applies the privacy masks.
func (c *CursorCollector) Redact(ev Event, cfg *Config) Event {
	return redactEvent(ev, cfg)
}
