package internal

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// EventStore persists events in SQLite with an FTS5 index over their text.
type EventStore struct {
	db   *sql.DB
	path string
}

const eventColumns = "id, ts, source, kind, repo, cwd, file, range_start, range_end, actor, text, url, meta"

// OpenEventStore opens (creating if needed) the event database at path.
func OpenEventStore(path string) (*EventStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, &StorageError{Path: path, Op: "open", Err: err}
	}

	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, &StorageError{Path: path, Op: "open", Err: err}
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &StorageError{Path: path, Op: "open", Err: err}
	}

	s := &EventStore{db: db, path: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, &StorageError{Path: path, Op: "migrate", Err: err}
	}
	return s, nil
}

// DefaultStorePath returns <dataDir>/events.db.
func DefaultStorePath(dataDir string) string {
	return filepath.Join(dataDir, "events.db")
}

// Path returns the database file path.
func (s *EventStore) Path() string {
	return s.path
}

// Close closes the underlying database.
func (s *EventStore) Close() error {
	return s.db.Close()
}

func (s *EventStore) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS events (
			id          TEXT PRIMARY KEY,
			ts          INTEGER NOT NULL,
			source      TEXT NOT NULL,
			kind        TEXT NOT NULL,
			repo        TEXT NOT NULL CHECK (repo <> ''),
			cwd         TEXT NOT NULL,
			file        TEXT,
			range_start INTEGER,
			range_end   INTEGER,
			actor       TEXT,
			text        TEXT NOT NULL CHECK (text <> ''),
			url         TEXT,
			meta        TEXT NOT NULL DEFAULT '{}'
		);

		CREATE INDEX IF NOT EXISTS idx_events_repo_ts ON events(repo, ts);
		CREATE INDEX IF NOT EXISTS idx_events_file_ts ON events(file, ts);
		CREATE INDEX IF NOT EXISTS idx_events_ts ON events(ts);
		CREATE INDEX IF NOT EXISTS idx_events_source_kind ON events(source, kind, repo, ts);

		CREATE VIRTUAL TABLE IF NOT EXISTS events_fts USING fts5(
			text,
			content='events',
			content_rowid='rowid'
		);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	var name string
	err := s.db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='trigger' AND name='events_fts_insert'",
	).Scan(&name)
	if err == sql.ErrNoRows {
		triggers := `
			CREATE TRIGGER events_fts_insert AFTER INSERT ON events BEGIN
				INSERT INTO events_fts(rowid, text) VALUES (new.rowid, new.text);
			END;

			CREATE TRIGGER events_fts_delete AFTER DELETE ON events BEGIN
				INSERT INTO events_fts(events_fts, rowid, text) VALUES ('delete', old.rowid, old.text);
			END;

			CREATE TRIGGER events_fts_update AFTER UPDATE ON events BEGIN
				INSERT INTO events_fts(events_fts, rowid, text) VALUES ('delete', old.rowid, old.text);
				INSERT INTO events_fts(rowid, text) VALUES (new.rowid, new.text);
			END;
		`
		if _, err := s.db.Exec(triggers); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	return nil
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func insertEvent(x execer, ev Event) error {
	meta := "{}"
	if len(ev.Metadata) > 0 {
		data, err := json.Marshal(ev.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata for %s: %w", ev.ID, err)
		}
		meta = string(data)
	}

	var rangeStart, rangeEnd sql.NullInt64
	if ev.Range != nil {
		rangeStart = sql.NullInt64{Int64: int64(ev.Range.Start), Valid: true}
		rangeEnd = sql.NullInt64{Int64: int64(ev.Range.End), Valid: true}
	}

	_, err := x.Exec(
		`INSERT INTO events (`+eventColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		ev.ID, ev.TS, string(ev.Source), string(ev.Kind), ev.Repo, ev.CWD,
		nullString(ev.File), rangeStart, rangeEnd, nullString(string(ev.Actor)),
		ev.Text, nullString(ev.URL), meta,
	)
	return err
}

// Insert stores one event. An event whose ID already exists is ignored.
func (s *EventStore) Insert(ev Event) error {
	if err := insertEvent(s.db, ev); err != nil {
		return &StorageError{Path: s.path, Op: "insert", Err: err}
	}
	return nil
}

// InsertBatch stores events in a single transaction. Any failure rolls back
// the whole batch.
func (s *EventStore) InsertBatch(events []Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return &StorageError{Path: s.path, Op: "insert", Err: err}
	}
	defer tx.Rollback()

	for _, ev := range events {
		if err := insertEvent(tx, ev); err != nil {
			return &StorageError{Path: s.path, Op: "insert", Err: fmt.Errorf("event %s: %w", ev.ID, err)}
		}
	}

	if err := tx.Commit(); err != nil {
		return &StorageError{Path: s.path, Op: "insert", Err: err}
	}
	return nil
}

// FindByTimeRange returns events with start <= ts <= end, oldest first.
func (s *EventStore) FindByTimeRange(start, end int64) ([]Event, error) {
	return s.queryEvents(
		"SELECT "+eventColumns+" FROM events WHERE ts >= ? AND ts <= ? ORDER BY ts ASC, id ASC",
		start, end,
	)
}

// FindByRepo returns the repo's events with start <= ts <= end, oldest first.
func (s *EventStore) FindByRepo(repo string, start, end int64) ([]Event, error) {
	return s.queryEvents(
		"SELECT "+eventColumns+" FROM events WHERE repo = ? AND ts >= ? AND ts <= ? ORDER BY ts ASC, id ASC",
		repo, start, end,
	)
}

// FindByFile returns events that touch file with start <= ts <= end, oldest first.
func (s *EventStore) FindByFile(file string, start, end int64) ([]Event, error) {
	return s.queryEvents(
		"SELECT "+eventColumns+" FROM events WHERE file = ? AND ts >= ? AND ts <= ? ORDER BY ts ASC, id ASC",
		file, start, end,
	)
}

// SearchText runs a full-text query and returns matches by relevance.
func (s *EventStore) SearchText(query string, limit int) ([]Event, error) {
	ftsQuery := sanitizeFTS(query)
	if ftsQuery == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	cols := make([]string, 0, 13)
	for _, c := range strings.Split(eventColumns, ", ") {
		cols = append(cols, "e."+c)
	}
	return s.queryEvents(
		`SELECT `+strings.Join(cols, ", ")+`
		 FROM events_fts fts
		 JOIN events e ON e.rowid = fts.rowid
		 WHERE events_fts MATCH ?
		 ORDER BY fts.rank, e.ts DESC
		 LIMIT ?`,
		ftsQuery, limit,
	)
}

// GetLastCommitTime returns the newest commit timestamp for repo, or 0.
func (s *EventStore) GetLastCommitTime(repo string) (int64, error) {
	var ts sql.NullInt64
	err := s.db.QueryRow(
		"SELECT MAX(ts) FROM events WHERE source = ? AND kind = ? AND repo = ?",
		string(SourceGit), string(KindCommit), repo,
	).Scan(&ts)
	if err != nil {
		return 0, &StorageError{Path: s.path, Op: "query", Err: err}
	}
	return ts.Int64, nil
}

// FindLastCommit returns the newest commit event for repo, or nil.
func (s *EventStore) FindLastCommit(repo string) (*Event, error) {
	events, err := s.queryEvents(
		"SELECT "+eventColumns+" FROM events WHERE source = ? AND kind = ? AND repo = ? ORDER BY ts DESC, id DESC LIMIT 1",
		string(SourceGit), string(KindCommit), repo,
	)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}
	return &events[0], nil
}

// Count returns the number of stored events.
func (s *EventStore) Count() (int, error) {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM events").Scan(&n); err != nil {
		return 0, &StorageError{Path: s.path, Op: "query", Err: err}
	}
	return n, nil
}

// CountBySource returns event counts grouped by source.
func (s *EventStore) CountBySource() (map[Source]int, error) {
	rows, err := s.db.Query("SELECT source, COUNT(*) FROM events GROUP BY source")
	if err != nil {
		return nil, &StorageError{Path: s.path, Op: "query", Err: err}
	}
	defer rows.Close()

	counts := make(map[Source]int)
	for rows.Next() {
		var src string
		var n int
		if err := rows.Scan(&src, &n); err != nil {
			return nil, &StorageError{Path: s.path, Op: "query", Err: err}
		}
		counts[Source(src)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Path: s.path, Op: "query", Err: err}
	}
	return counts, nil
}

func (s *EventStore) queryEvents(query string, args ...any) ([]Event, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, &StorageError{Path: s.path, Op: "query", Err: err}
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			ev                   Event
			source, kind         string
			file, actor, url     sql.NullString
			rangeStart, rangeEnd sql.NullInt64
			meta                 string
		)
		if err := rows.Scan(&ev.ID, &ev.TS, &source, &kind, &ev.Repo, &ev.CWD,
			&file, &rangeStart, &rangeEnd, &actor, &ev.Text, &url, &meta); err != nil {
			return nil, &StorageError{Path: s.path, Op: "query", Err: err}
		}
		ev.Source = Source(source)
		ev.Kind = Kind(kind)
		ev.File = file.String
		ev.Actor = Actor(actor.String)
		ev.URL = url.String
		if rangeStart.Valid && rangeEnd.Valid {
			ev.Range = &Range{Start: int(rangeStart.Int64), End: int(rangeEnd.Int64)}
		}
		if meta != "" && meta != "{}" {
			if err := json.Unmarshal([]byte(meta), &ev.Metadata); err != nil {
				LogDebug("Ignoring unreadable metadata for event %s: %v", ev.ID, err)
			}
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Path: s.path, Op: "query", Err: err}
	}
	return events, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// sanitizeFTS wraps each word in quotes so FTS5 doesn't choke on special chars.
func sanitizeFTS(query string) string {
	var words []string
	for _, w := range strings.Fields(query) {
		w = strings.ReplaceAll(w, `"`, "")
		if w == "" {
			continue
		}
		words = append(words, `"`+w+`"`)
	}
	return strings.Join(words, " ")
}
