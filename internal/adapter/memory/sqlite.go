// Package memory implements the long-term activity archive: conversation
// turns, committed deltas, and detected decisions, searchable by keyword.
// The archive is recall material, never authoritative state; the record
// store owns the truth.
package memory

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"adjutant/internal/domain"
	"adjutant/internal/infra/config"
)

// New builds the archive named by configuration. Unknown providers are a
// config error, not a silent fallback.
func New(cfg config.ArchiveConfig, logger *slog.Logger) (domain.Archive, error) {
	switch cfg.Provider {
	case "sqlite":
		return NewSQLiteArchive(cfg.Path, logger)
	case "none", "":
		return NewNoopArchive(), nil
	default:
		return nil, fmt.Errorf("unknown archive provider %q", cfg.Provider)
	}
}

// SQLiteArchive implements domain.Archive on SQLite with an FTS5 index for
// keyword recall.
type SQLiteArchive struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ domain.Archive = (*SQLiteArchive)(nil)

// NewSQLiteArchive opens (or creates) the archive database at dbPath and
// runs migrations.
func NewSQLiteArchive(dbPath string, logger *slog.Logger) (*SQLiteArchive, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open db: %v", domain.ErrArchiveStore, err)
	}

	// SQLite write safety: single writer.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: pragma: %v", domain.ErrArchiveStore, err)
		}
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: migrate: %v", domain.ErrArchiveStore, err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	return &SQLiteArchive{db: db, logger: logger}, nil
}

// migrate creates the schema if it doesn't exist. Entries are append-only,
// so FTS sync needs only the insert trigger.
func migrate(db *sql.DB) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS entries (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			kind       TEXT NOT NULL,
			agent_key  TEXT NOT NULL DEFAULT '',
			content    TEXT NOT NULL,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_entries_session ON entries(session_id, id);

		CREATE VIRTUAL TABLE IF NOT EXISTS entries_fts USING fts5(
			content, content=entries, content_rowid=id
		);

		CREATE TRIGGER IF NOT EXISTS entries_ai AFTER INSERT ON entries BEGIN
			INSERT INTO entries_fts(rowid, content) VALUES (new.id, new.content);
		END;
	`
	_, err := db.Exec(schema)
	return err
}

// Append implements domain.Archive.
func (a *SQLiteArchive) Append(ctx context.Context, entry domain.ArchiveEntry) (int64, error) {
	if strings.TrimSpace(entry.Content) == "" {
		return 0, fmt.Errorf("%w: empty content", domain.ErrArchiveStore)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	res, err := a.db.ExecContext(ctx,
		`INSERT INTO entries (session_id, kind, agent_key, content, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		entry.SessionID,
		entry.Kind,
		entry.AgentKey,
		entry.Content,
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("%w: insert: %v", domain.ErrArchiveStore, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%w: last id: %v", domain.ErrArchiveStore, err)
	}
	return id, nil
}

// Search implements domain.Archive: entries matching all keywords, newest
// first. Keywords are matched as FTS5 terms, ANDed together.
func (a *SQLiteArchive) Search(ctx context.Context, keywords []string, limit int) ([]domain.ArchiveEntry, error) {
	match := ftsQuery(keywords)
	if match == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	rows, err := a.db.QueryContext(ctx,
		`SELECT e.id, e.session_id, e.kind, e.agent_key, e.content, e.created_at
		 FROM entries_fts f
		 JOIN entries e ON e.id = f.rowid
		 WHERE entries_fts MATCH ?
		 ORDER BY e.id DESC
		 LIMIT ?`,
		match, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: query: %v", domain.ErrArchiveSearch, err)
	}
	defer rows.Close()
	return a.scanEntries(rows)
}

// Recent implements domain.Archive: the newest entries for a session.
func (a *SQLiteArchive) Recent(ctx context.Context, sessionID string, limit int) ([]domain.ArchiveEntry, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := a.db.QueryContext(ctx,
		`SELECT id, session_id, kind, agent_key, content, created_at
		 FROM entries
		 WHERE session_id = ?
		 ORDER BY id DESC
		 LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: query: %v", domain.ErrArchiveSearch, err)
	}
	defer rows.Close()
	return a.scanEntries(rows)
}

// Close implements domain.Archive.
func (a *SQLiteArchive) Close() error {
	return a.db.Close()
}

func (a *SQLiteArchive) scanEntries(rows *sql.Rows) ([]domain.ArchiveEntry, error) {
	var out []domain.ArchiveEntry
	for rows.Next() {
		var (
			e       domain.ArchiveEntry
			created string
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Kind, &e.AgentKey, &e.Content, &created); err != nil {
			return nil, fmt.Errorf("%w: scan: %v", domain.ErrArchiveSearch, err)
		}
		// A bad timestamp is data corruption, not a retrieval failure.
		t, err := time.Parse(time.RFC3339Nano, created)
		if err != nil {
			a.logger.Warn("archive entry has bad timestamp", "id", e.ID, "value", created)
		} else {
			e.CreatedAt = t
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: rows: %v", domain.ErrArchiveSearch, err)
	}
	return out, nil
}

// ftsQuery builds an AND query of quoted terms so user keywords can never
// inject FTS5 operators.
func ftsQuery(keywords []string) string {
	var terms []string
	for _, kw := range keywords {
		kw = strings.ReplaceAll(strings.TrimSpace(kw), `"`, "")
		if kw == "" {
			continue
		}
		terms = append(terms, `"`+kw+`"`)
	}
	return strings.Join(terms, " AND ")
}
