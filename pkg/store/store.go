// Package store persists per-user watchlists and continue-watching state
// in SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"embedgate/pkg/logging"
	"embedgate/pkg/providers"

	_ "modernc.org/sqlite"
)

// WatchlistEntry is one saved title on a user's watchlist.
type WatchlistEntry struct {
	UserID     string              `json:"user_id"`
	TMDBID     int                 `json:"tmdb_id"`
	MediaType  providers.MediaType `json:"media_type"`
	Title      string              `json:"title"`
	PosterPath string              `json:"poster_path,omitempty"`
	AddedAt    string              `json:"added_at,omitempty"`
}

// Progress is one continue-watching record. Season and Episode are zero
// for movies.
type Progress struct {
	UserID      string              `json:"user_id"`
	TMDBID      int                 `json:"tmdb_id"`
	MediaType   providers.MediaType `json:"media_type"`
	Title       string              `json:"title"`
	Season      int                 `json:"season,omitempty"`
	Episode     int                 `json:"episode,omitempty"`
	LastWatched string              `json:"last_watched,omitempty"`
}

// Store wraps the SQLite database.
type Store struct {
	db  *sql.DB
	log *logging.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS watchlist (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id TEXT NOT NULL,
	tmdb_id INTEGER NOT NULL,
	media_type TEXT NOT NULL CHECK(media_type IN ('movie', 'tv')),
	title TEXT NOT NULL,
	poster_path TEXT,
	added_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(user_id, tmdb_id, media_type)
);
CREATE INDEX IF NOT EXISTS idx_watchlist_user ON watchlist(user_id);

CREATE TABLE IF NOT EXISTS continue_watching (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id TEXT NOT NULL,
	tmdb_id INTEGER NOT NULL,
	media_type TEXT NOT NULL CHECK(media_type IN ('movie', 'tv')),
	title TEXT NOT NULL,
	season INTEGER,
	episode INTEGER,
	last_watched DATETIME DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(user_id, tmdb_id, media_type)
);
CREATE INDEX IF NOT EXISTS idx_continue_user ON continue_watching(user_id);
`

// Open opens (creating if necessary) the database at path and ensures the
// schema exists.
func Open(path string, log *logging.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db, log: log.WithComponent("store")}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// AddToWatchlist saves an entry; re-adding an existing title is a no-op.
func (s *Store) AddToWatchlist(ctx context.Context, e WatchlistEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO watchlist (user_id, tmdb_id, media_type, title, poster_path)
		VALUES (?, ?, ?, ?, ?)`,
		e.UserID, e.TMDBID, string(e.MediaType), e.Title, e.PosterPath)
	if err != nil {
		return fmt.Errorf("add to watchlist: %w", err)
	}
	return nil
}

// RemoveFromWatchlist deletes an entry. Returns true when something was
// removed.
func (s *Store) RemoveFromWatchlist(ctx context.Context, userID string, tmdbID int, mediaType providers.MediaType) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM watchlist WHERE user_id = ? AND tmdb_id = ? AND media_type = ?`,
		userID, tmdbID, string(mediaType))
	if err != nil {
		return false, fmt.Errorf("remove from watchlist: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Watchlist returns a user's entries, most recently added first.
func (s *Store) Watchlist(ctx context.Context, userID string) ([]WatchlistEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, tmdb_id, media_type, title, COALESCE(poster_path, ''), added_at
		FROM watchlist WHERE user_id = ? ORDER BY added_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list watchlist: %w", err)
	}
	defer rows.Close()

	var entries []WatchlistEntry
	for rows.Next() {
		var e WatchlistEntry
		var mt string
		if err := rows.Scan(&e.UserID, &e.TMDBID, &mt, &e.Title, &e.PosterPath, &e.AddedAt); err != nil {
			return nil, fmt.Errorf("scan watchlist: %w", err)
		}
		e.MediaType = providers.MediaType(mt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// InWatchlist reports whether a title is on a user's watchlist.
func (s *Store) InWatchlist(ctx context.Context, userID string, tmdbID int, mediaType providers.MediaType) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM watchlist WHERE user_id = ? AND tmdb_id = ? AND media_type = ?`,
		userID, tmdbID, string(mediaType)).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check watchlist: %w", err)
	}
	return true, nil
}

// RecordProgress upserts a continue-watching record; watching the same
// title again bumps season/episode and the timestamp.
func (s *Store) RecordProgress(ctx context.Context, p Progress) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO continue_watching (user_id, tmdb_id, media_type, title, season, episode, last_watched)
		VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(user_id, tmdb_id, media_type)
		DO UPDATE SET
			season = excluded.season,
			episode = excluded.episode,
			last_watched = CURRENT_TIMESTAMP`,
		p.UserID, p.TMDBID, string(p.MediaType), p.Title, p.Season, p.Episode)
	if err != nil {
		return fmt.Errorf("record progress: %w", err)
	}
	return nil
}

// ContinueWatching returns a user's progress records, most recent first.
func (s *Store) ContinueWatching(ctx context.Context, userID string, limit int) ([]Progress, error) {
	if limit < 1 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, tmdb_id, media_type, title, COALESCE(season, 0), COALESCE(episode, 0), last_watched
		FROM continue_watching WHERE user_id = ?
		ORDER BY last_watched DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	defer rows.Close()

	var out []Progress
	for rows.Next() {
		var p Progress
		var mt string
		if err := rows.Scan(&p.UserID, &p.TMDBID, &mt, &p.Title, &p.Season, &p.Episode, &p.LastWatched); err != nil {
			return nil, fmt.Errorf("scan progress: %w", err)
		}
		p.MediaType = providers.MediaType(mt)
		out = append(out, p)
	}
	return out, rows.Err()
}

// ClearProgress removes one continue-watching record.
func (s *Store) ClearProgress(ctx context.Context, userID string, tmdbID int, mediaType providers.MediaType) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM continue_watching WHERE user_id = ? AND tmdb_id = ? AND media_type = ?`,
		userID, tmdbID, string(mediaType))
	if err != nil {
		return fmt.Errorf("clear progress: %w", err)
	}
	return nil
}
