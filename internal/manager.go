package internal

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime/debug"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// EventRepository is the part of the event store the manager writes to and
// reads back from.
type EventRepository interface {
	InsertBatch(events []Event) error
	FindByRepo(repo string, start, end int64) ([]Event, error)
}

// AnchorSource reports the newest commit of a repository.
type AnchorSource interface {
	LastCommit(ctx context.Context) (*Commit, error)
}

// CollectStats summarizes one Collect run.
type CollectStats struct {
	Start     int64
	End       int64
	Collected map[string]int
	Failed    []string
	Stored    int
	StoreErr  error
}

// CollectorManager runs every enabled collector for a repository over the
// window since the last commit, persists the merged result and returns the
// stored view of that window.
type CollectorManager struct {
	repoRoot   string
	cfg        *Config
	store      EventRepository
	cache      *CollectorCache
	anchor     AnchorSource
	staged     *GitCollector
	collectors []Collector
	now        func() time.Time
	lastStats  atomic.Pointer[CollectStats]
}

// ManagerOption customizes a CollectorManager.
type ManagerOption func(*CollectorManager)

// WithCollectors replaces the default collector registry.
func WithCollectors(collectors ...Collector) ManagerOption {
	return func(m *CollectorManager) {
		m.collectors = append([]Collector{}, collectors...)
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *CollectorManager) { m.now = now }
}

// WithAnchor sets where the last commit time comes from.
func WithAnchor(a AnchorSource) ManagerOption {
	return func(m *CollectorManager) { m.anchor = a }
}

// WithCache sets the anchor cache. A nil cache disables caching.
func WithCache(c *CollectorCache) ManagerOption {
	return func(m *CollectorManager) { m.cache = c }
}

// NewCollectorManager builds a manager for repoRoot with the default
// collectors enabled by cfg.
func NewCollectorManager(repoRoot string, cfg *Config, store EventRepository, opts ...ManagerOption) *CollectorManager {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	m := &CollectorManager{
		repoRoot: repoRoot,
		cfg:      cfg,
		store:    store,
		now:      time.Now,
	}

	if dataDir, err := cfg.ResolveDataDir(); err == nil {
		m.cache = NewCollectorCache(NewCacheManager(CacheDir(dataDir)), cfg.Collection)
	} else {
		LogDebug("Anchor cache disabled: %v", err)
	}

	runner := NewGitRunner(cfg.RetryPolicy())
	git := NewGitCollector(repoRoot, runner)
	m.anchor = git
	m.staged = git

	for _, opt := range opts {
		opt(m)
	}
	if m.collectors == nil {
		m.collectors = DefaultCollectors(repoRoot, cfg, runner, m.cache, git)
	}
	return m
}

// CacheDir returns the anchor cache directory under dataDir.
func CacheDir(dataDir string) string {
	return filepath.Join(dataDir, "cache")
}

// DefaultCollectors returns the collectors cfg enables, in registry order.
func DefaultCollectors(repoRoot string, cfg *Config, runner CommandRunner, cache *CollectorCache, git *GitCollector) []Collector {
	var collectors []Collector
	c := cfg.Connectors
	if c.Git.Enabled {
		if git == nil {
			git = NewGitCollector(repoRoot, runner)
		}
		collectors = append(collectors, git)
	}
	if c.CLI.Enabled() {
		if path, err := CLILogPath(cfg); err == nil {
			collectors = append(collectors, NewCLICollector(repoRoot, path))
		} else {
			LogDebug("CLI collector disabled: %v", err)
		}
	}
	if c.Cursor.Enabled {
		collectors = append(collectors, NewCursorCollector(repoRoot, c.Cursor.Path, cfg.RetryPolicy()))
	}
	if c.Claude.Enabled {
		collectors = append(collectors, NewTranscriptCollector(repoRoot, c.Claude.Path, NewGitRepoResolver(runner, cache)))
	}
	return collectors
}

// RepoRoot returns the repository the manager collects for.
func (m *CollectorManager) RepoRoot() string { return m.repoRoot }

// Collectors returns the registry.
func (m *CollectorManager) Collectors() []Collector { return m.collectors }

// LastStats returns the statistics of the most recent Collect, or nil.
func (m *CollectorManager) LastStats() *CollectStats { return m.lastStats.Load() }

// Cache returns the anchor cache, or nil when caching is disabled.
func (m *CollectorManager) Cache() *CollectorCache { return m.cache }

// ForgetAnchor drops the cached last commit time so the next window starts
// at the newest commit.
func (m *CollectorManager) ForgetAnchor() {
	m.cache.ForgetLastCommitTime(m.repoRoot)
}

// ResolveWindow returns [start, end] in epoch milliseconds. start is the
// last commit time (cached), falling back to the configured lookback; end
// is now.
func (m *CollectorManager) ResolveWindow(ctx context.Context) (int64, int64) {
	end := m.now().UnixMilli()

	if ts, ok := m.cache.LastCommitTime(m.repoRoot); ok && ts > 0 {
		LogDebug("Using cached last commit time %d", ts)
		return ts, end
	}

	if m.anchor != nil {
		commit, err := m.anchor.LastCommit(ctx)
		if err != nil {
			LogDebug("Last commit lookup failed: %v", err)
		} else if commit != nil && commit.TS > 0 {
			m.cache.SetLastCommitTime(m.repoRoot, commit.TS)
			return commit.TS, end
		}
	}

	lookback := m.cfg.Collection.Lookback
	if lookback <= 0 {
		lookback = DefaultConfig().Collection.Lookback
	}
	LogDebug("No commit history, using %s lookback", lookback)
	return end - lookback.Milliseconds(), end
}

// Collect runs the collectors over the resolved window, stores what they
// return and reads the window back from the store. Only a failed read is
// returned as an error.
func (m *CollectorManager) Collect(ctx context.Context) ([]Event, error) {
	start, end := m.ResolveWindow(ctx)
	return m.CollectWindow(ctx, start, end)
}

// CollectWindow is Collect over an explicit window.
func (m *CollectorManager) CollectWindow(ctx context.Context, start, end int64) ([]Event, error) {
	stats := &CollectStats{Start: start, End: end, Collected: make(map[string]int)}

	results := m.dispatch(ctx, start, end, stats)

	var merged []Event
	for i, c := range m.collectors {
		for _, ev := range results[i] {
			merged = append(merged, c.Redact(ev, m.cfg))
		}
	}
	merged = NewDeduplicator().Deduplicate(merged)

	if len(merged) > 0 {
		if err := m.store.InsertBatch(merged); err != nil {
			stats.StoreErr = err
			LogError("Failed to store %d events: %v", len(merged), err)
		} else {
			stats.Stored = len(merged)
		}
	}
	m.lastStats.Store(stats)

	events, err := m.store.FindByRepo(m.repoRoot, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	return events, nil
}

// dispatch runs each collector on the bounded pool. Slot i holds the events
// of collector i; a failed collector leaves its slot empty.
func (m *CollectorManager) dispatch(ctx context.Context, start, end int64, stats *CollectStats) [][]Event {
	results := make([][]Event, len(m.collectors))
	failed := make([]bool, len(m.collectors))

	workers := m.cfg.Collection.Workers
	if workers <= 0 {
		workers = 1
	}
	var g errgroup.Group
	g.SetLimit(workers)

	for i, c := range m.collectors {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					failed[i] = true
					LogError("Collector %s panicked: %v", c.Name(), r)
					LogDebug("%s", debug.Stack())
				}
			}()
			started := time.Now()
			events := c.PullSince(ctx, start, end, m.cfg)
			LogWith(LogLevelDebug, "collector finished",
				"collector", c.Name(),
				"events", len(events),
				"took", time.Since(started).Round(time.Millisecond))
			results[i] = events
			return nil
		})
	}
	_ = g.Wait()

	for i, c := range m.collectors {
		stats.Collected[c.Name()] = len(results[i])
		if failed[i] {
			stats.Failed = append(stats.Failed, c.Name())
		}
	}
	return results
}

// CollectStaged records the staged change set as diff events.
func (m *CollectorManager) CollectStaged(ctx context.Context) ([]Event, error) {
	if m.staged == nil {
		return nil, nil
	}
	events := m.staged.StagedEvents(ctx, m.now().UnixMilli())
	for i := range events {
		events[i] = m.staged.Redact(events[i], m.cfg)
	}
	if len(events) == 0 {
		return nil, nil
	}
	if err := m.store.InsertBatch(events); err != nil {
		return events, err
	}
	return events, nil
}

// HealthCheck asks every collector for its status.
func (m *CollectorManager) HealthCheck() map[string]Health {
	out := make(map[string]Health, len(m.collectors))
	for _, c := range m.collectors {
		out[c.Name()] = safeHealth(c)
	}
	return out
}

func safeHealth(c Collector) (h Health) {
	defer func() {
		if r := recover(); r != nil {
			h = Health{OK: false, Reason: fmt.Sprintf("panic: %v", r)}
		}
	}()
	return c.Health()
}
