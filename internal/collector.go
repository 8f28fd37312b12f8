package internal

import (
	"context"
)

// Collector pulls events for one source.
//
// PullSince never fails: a missing data location, an unreadable unit or a
// failed subprocess yields fewer (or zero) events, logged at debug level.
type Collector interface {
	Name() string
	Source() Source
	Discover(repoRoot string) bool
	PullSince(ctx context.Context, sinceMs, untilMs int64, cfg *Config) []Event
	Health() Health
	Redact(ev Event, cfg *Config) Event
}

// Health is a collector's self-reported status.
type Health struct {
	OK     bool           `json:"ok" yaml:"ok"`
	Reason string         `json:"reason" yaml:"reason"`
	Counts map[string]int `json:"counts,omitempty" yaml:"counts,omitempty"`
}

// redactEvent applies the configured privacy masks and returns a copy.
func redactEvent(ev Event, cfg *Config) Event {
	if cfg == nil || !cfg.Privacy.MaskSecrets {
		return ev
	}
	text := cfg.RedactText(ev.Text)
	if text == ev.Text {
		return ev
	}
	return ev.WithText(text)
}

// inWindow reports whether ts falls inside [since, until].
func inWindow(ts, since, until int64) bool {
	return ts >= since && ts <= until
}
