package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/herta-labs/vibechecker/internal/model"
	"github.com/herta-labs/vibechecker/internal/store"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := applySchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// migrations is an ordered list of SQL migrations.
// Each migration runs exactly once, tracked by the schema_version table.
var migrations = []string{
	// Migration 1: Initial schema
	`
CREATE TABLE IF NOT EXISTS clients (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	client_id TEXT NOT NULL,
	secret_hash TEXT NOT NULL,
	app_name TEXT,
	contact_email TEXT,
	homepage_uri TEXT,
	created_at INTEGER NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_clients_client_id ON clients(client_id);

CREATE TABLE IF NOT EXISTS math_challenges (
	challenge_id TEXT PRIMARY KEY,
	question TEXT NOT NULL,
	answer INTEGER NOT NULL,
	expires_at INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS custom_words (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	client_id TEXT NOT NULL,
	word TEXT NOT NULL,
	category TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_custom_words_unique ON custom_words(client_id, word, category);
CREATE INDEX IF NOT EXISTS idx_custom_words_client ON custom_words(client_id, category);

CREATE TABLE IF NOT EXISTS vibe_results (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	client_id TEXT NOT NULL,
	text TEXT NOT NULL,
	vibe_label TEXT NOT NULL,
	score REAL NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_vibe_results_client ON vibe_results(client_id, id DESC);
`,
	// Future migrations go here:
	// Migration 2: `ALTER TABLE ...`,
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY
		)
	`); err != nil {
		return err
	}

	var currentVersion int
	row := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`)
	if err := row.Scan(&currentVersion); err != nil {
		return err
	}

	for i := currentVersion; i < len(migrations); i++ {
		if _, err := db.Exec(migrations[i]); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
		if _, err := db.Exec(`INSERT INTO schema_version (version) VALUES (?)`, i+1); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", i+1, err)
		}
	}

	return nil
}

func (s *Store) CreateClient(ctx context.Context, client *model.Client) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
INSERT INTO clients (client_id, secret_hash, app_name, contact_email, homepage_uri, created_at)
VALUES (?, ?, ?, ?, ?, ?)
`, client.ClientID, client.SecretHash, nullIfEmpty(client.AppName), nullIfEmpty(client.ContactEmail), nullIfEmpty(client.HomepageURI), client.CreatedAt.Unix())
	if err != nil {
		if isUniqueViolation(err) {
			return 0, store.ErrDuplicateClient
		}
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Store) GetClient(ctx context.Context, clientID string) (model.Client, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, client_id, secret_hash, app_name, contact_email, homepage_uri, created_at
FROM clients
WHERE client_id = ?
`, clientID)
	var c model.Client
	var appName, email, uri sql.NullString
	var created int64
	if err := row.Scan(&c.ID, &c.ClientID, &c.SecretHash, &appName, &email, &uri, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Client{}, store.ErrNotFound
		}
		return model.Client{}, err
	}
	if appName.Valid {
		c.AppName = appName.String
	}
	if email.Valid {
		c.ContactEmail = email.String
	}
	if uri.Valid {
		c.HomepageURI = uri.String
	}
	c.CreatedAt = time.Unix(created, 0)
	return c, nil
}

func (s *Store) CreateChallenge(ctx context.Context, c model.Challenge) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO math_challenges (challenge_id, question, answer, expires_at, created_at)
VALUES (?, ?, ?, ?, ?)
`, c.ChallengeID, c.Question, c.Answer, c.ExpiresAt.Unix(), time.Now().Unix())
	return err
}

func (s *Store) ConsumeChallenge(ctx context.Context, challengeID string, answer int) error {
	row := s.db.QueryRowContext(ctx, `
SELECT answer, expires_at
FROM math_challenges
WHERE challenge_id = ?
`, challengeID)
	var want int
	var expires int64
	if err := row.Scan(&want, &expires); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return err
	}
	if time.Now().After(time.Unix(expires, 0)) {
		// Stale row; delete it so it cannot linger.
		_, _ = s.db.ExecContext(ctx, `DELETE FROM math_challenges WHERE challenge_id = ?`, challengeID)
		return store.ErrNotFound
	}
	if want != answer {
		return store.ErrNotFound
	}
	// The delete doubles as the consume barrier: with two concurrent
	// verifications only one statement affects a row.
	res, err := s.db.ExecContext(ctx, `
DELETE FROM math_challenges WHERE challenge_id = ? AND answer = ?
`, challengeID, answer)
	if err != nil {
		return err
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) AddWord(ctx context.Context, w model.CustomWord) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO custom_words (client_id, word, category, created_at)
VALUES (?, ?, ?, ?)
`, w.ClientID, w.Word, w.Category, time.Now().Unix())
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicateWord
		}
		return err
	}
	return nil
}

func (s *Store) RemoveWord(ctx context.Context, w model.CustomWord) error {
	_, err := s.db.ExecContext(ctx, `
DELETE FROM custom_words WHERE client_id = ? AND word = ? AND category = ?
`, w.ClientID, w.Word, w.Category)
	return err
}

func (s *Store) ListWords(ctx context.Context, clientID, category string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT word FROM custom_words WHERE client_id = ? AND category = ? ORDER BY word ASC
`, clientID, category)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var words []string
	for rows.Next() {
		var w string
		if err := rows.Scan(&w); err != nil {
			return nil, err
		}
		words = append(words, w)
	}
	return words, rows.Err()
}

func (s *Store) CreateResult(ctx context.Context, r *model.VibeResult) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
INSERT INTO vibe_results (client_id, text, vibe_label, score, created_at)
VALUES (?, ?, ?, ?, ?)
`, r.ClientID, r.Text, r.Vibe, r.Score, r.CreatedAt.Unix())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Store) CreateResults(ctx context.Context, rs []*model.VibeResult) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, r := range rs {
		res, err2 := tx.ExecContext(ctx, `
INSERT INTO vibe_results (client_id, text, vibe_label, score, created_at)
VALUES (?, ?, ?, ?, ?)
`, r.ClientID, r.Text, r.Vibe, r.Score, r.CreatedAt.Unix())
		if err2 != nil {
			err = err2
			return err
		}
		if r.ID, err2 = res.LastInsertId(); err2 != nil {
			err = err2
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) ListResultsByClient(ctx context.Context, clientID string, limit, offset int) ([]model.VibeResult, error) {
	limit = clamp(limit, 1, 200)
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, client_id, text, vibe_label, score, created_at
FROM vibe_results
WHERE client_id = ?
ORDER BY id DESC
LIMIT ? OFFSET ?
`, clientID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []model.VibeResult
	for rows.Next() {
		var r model.VibeResult
		var created int64
		if err := rows.Scan(&r.ID, &r.ClientID, &r.Text, &r.Vibe, &r.Score, &created); err != nil {
			return nil, err
		}
		r.CreatedAt = time.Unix(created, 0)
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *Store) GetUsageStats(ctx context.Context) (model.UsageStats, error) {
	var stats model.UsageStats
	row := s.db.QueryRowContext(ctx, `
SELECT COUNT(*),
	COALESCE(SUM(CASE WHEN vibe_label = 'positive' THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN vibe_label = 'neutral' THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN vibe_label = 'negative' THEN 1 ELSE 0 END), 0)
FROM vibe_results
`)
	if err := row.Scan(&stats.Total, &stats.Positive, &stats.Neutral, &stats.Negative); err != nil {
		return stats, err
	}
	return stats, nil
}

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func nullIfEmpty(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "PRIMARY KEY")
}
