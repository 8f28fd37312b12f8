package internal

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
)

// composerIndexKey is the ItemTable key holding a workspace's sessions.
const composerIndexKey = "composer.composerData"

// Storage reads sessions and messages out of the editor's SQLite stores
type Storage struct {
	db *sql.DB
}

// NewStorage creates a new Storage instance
func NewStorage(db *sql.DB) *Storage {
	return &Storage{db: db}
}

// LoadComposers returns the sessions listed in a workspace database, most
// recently updated first. A workspace without an index has no sessions.
func (s *Storage) LoadComposers(ctx context.Context) ([]RawComposer, error) {
	value, ok, err := QueryItemTable(ctx, s.db, composerIndexKey)
	if err != nil {
		return nil, fmt.Errorf("failed to query composer index: %w", err)
	}
	if !ok {
		return nil, nil
	}

	idx, err := ParseComposerIndex(value)
	if err != nil {
		return nil, &ParseError{Source: string(SourceCursor), Key: composerIndexKey, Err: err}
	}

	composers := make([]RawComposer, 0, len(idx.AllComposers))
	for _, c := range idx.AllComposers {
		if c.ComposerID != "" {
			composers = append(composers, c)
		}
	}
	sort.SliceStable(composers, func(i, j int) bool {
		return composers[i].LastUpdatedAt > composers[j].LastUpdatedAt
	})
	return composers, nil
}

// LoadBubbles loads the messages of one session from the global database.
// Rows that fail to parse are skipped.
func (s *Storage) LoadBubbles(ctx context.Context, composerID string) ([]*RawBubble, error) {
	pairs, err := QueryCursorDiskKV(ctx, s.db, "bubbleId:"+composerID+":")
	if err != nil {
		return nil, fmt.Errorf("failed to query bubbles: %w", err)
	}

	bubbles := make([]*RawBubble, 0, len(pairs))
	for _, pair := range pairs {
		bubble, err := ParseRawBubble(pair.Key, pair.Value)
		if err != nil {
			LogDebug("%v", &ParseError{Source: string(SourceCursor), Key: pair.Key, Err: err})
			continue
		}
		bubbles = append(bubbles, bubble)
	}

	return bubbles, nil
}
