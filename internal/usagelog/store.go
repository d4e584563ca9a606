package usagelog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/leafline-ai/voiced/internal/config"
	_ "modernc.org/sqlite"
)

// Entry is one recorded voice request.
type Entry struct {
	ID         int64
	SessionID  string
	Kind       string // synthesis, transcription
	VoiceID    string
	Provider   string
	Language   string
	CacheHit   bool
	DurationMS int
	TextChars  int
	CreatedAt  time.Time
}

// Summary aggregates usage for the status surface.
type Summary struct {
	Syntheses      int64 `json:"syntheses"`
	Transcriptions int64 `json:"transcriptions"`
	CacheHits      int64 `json:"cache_hits"`
}

// Store keeps a SQLite-backed usage log with retention pruning.
type Store struct {
	db    *sql.DB
	cfg   config.UsageLogConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the usage log according to config. Ephemeral mode
// returns a store that accepts writes and drops them.
func Open(ctx context.Context, cfg config.UsageLogConfig, log *slog.Logger) (*Store, error) {
	if cfg.RetentionMode == "ephemeral" {
		return &Store{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.VacuumOnStart {
		if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
			log.Warn("usage log vacuum failed", slog.String("error", err.Error()))
		}
	}
	if err := s.Prune(ctx); err != nil {
		log.Warn("usage log prune on start failed", slog.String("error", err.Error()))
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS usage (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    kind TEXT NOT NULL,
    voice_id TEXT,
    provider TEXT,
    language TEXT,
    cache_hit INTEGER NOT NULL DEFAULT 0,
    duration_ms INTEGER NOT NULL DEFAULT 0,
    text_chars INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_usage_session_created ON usage(session_id, created_at);
CREATE INDEX IF NOT EXISTS idx_usage_created ON usage(created_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record writes one usage row. Ephemeral stores accept and drop it.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if s.db == nil {
		return nil
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO usage(session_id, kind, voice_id, provider, language, cache_hit, duration_ms, text_chars, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.SessionID, e.Kind, e.VoiceID, e.Provider, e.Language, e.CacheHit, e.DurationMS, e.TextChars, e.CreatedAt)
	return err
}

// Recent retrieves up to limit rows for a session, oldest first.
func (s *Store) Recent(ctx context.Context, sessionID string, limit int) ([]Entry, error) {
	if s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, kind, voice_id, provider, language, cache_hit, duration_ms, text_chars, created_at
		 FROM usage WHERE session_id = ? ORDER BY created_at ASC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var created string
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Kind, &e.VoiceID, &e.Provider, &e.Language,
			&e.CacheHit, &e.DurationMS, &e.TextChars, &created); err != nil {
			return nil, err
		}
		if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
			e.CreatedAt = ts
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Summarize aggregates totals across the retained window.
func (s *Store) Summarize(ctx context.Context) (Summary, error) {
	if s.db == nil {
		return Summary{}, nil
	}
	var sum Summary
	row := s.db.QueryRowContext(ctx,
		`SELECT
		   COALESCE(SUM(CASE WHEN kind = 'synthesis' THEN 1 ELSE 0 END), 0),
		   COALESCE(SUM(CASE WHEN kind = 'transcription' THEN 1 ELSE 0 END), 0),
		   COALESCE(SUM(cache_hit), 0)
		 FROM usage`)
	if err := row.Scan(&sum.Syntheses, &sum.Transcriptions, &sum.CacheHits); err != nil {
		return Summary{}, err
	}
	return sum, nil
}

// Prune applies configured retention.
func (s *Store) Prune(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if s.cfg.RetentionDays > 0 {
		cutoff := s.clock().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour)
		if _, err = tx.ExecContext(ctx, `DELETE FROM usage WHERE created_at < ?`, cutoff.UTC()); err != nil {
			return err
		}
	}
	if s.cfg.MaxSessions > 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM usage WHERE session_id IN (
			SELECT session_id FROM (
				SELECT session_id, MAX(created_at) AS last_seen FROM usage
				GROUP BY session_id ORDER BY last_seen DESC LIMIT -1 OFFSET ?
			)
		)`, s.cfg.MaxSessions)
		if err != nil {
			return err
		}
	}
	err = tx.Commit()
	return err
}
