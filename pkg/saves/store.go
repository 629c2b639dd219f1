// Package saves keeps save documents in a SQLite database, one row per save.
package saves

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dotsetgreg/studiogm/pkg/gamestate"
	"github.com/dotsetgreg/studiogm/pkg/logger"
)

var (
	ErrNotFound = errors.New("save not found")
	ErrNoSaveID = errors.New("save has no metadata.save_id")
)

// Summary describes a stored save without decoding it.
type Summary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Company   string    `json:"company"`
	GameTime  string    `json:"gameTime"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Store struct {
	db  *sql.DB
	now func() time.Time
}

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Open creates/opens the save database at path.
func Open(path string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create saves dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open saves db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) init() error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA synchronous=NORMAL;`,
		`PRAGMA busy_timeout=5000;`,
		`CREATE TABLE IF NOT EXISTS saves (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			company TEXT NOT NULL DEFAULT '',
			game_time TEXT NOT NULL DEFAULT '',
			document TEXT NOT NULL,
			created_at_ms INTEGER NOT NULL,
			updated_at_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS saves_updated_idx ON saves(updated_at_ms);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init saves schema: %w", err)
		}
	}
	return nil
}

const upsertSaveSQL = `
INSERT INTO saves(id, name, company, game_time, document, created_at_ms, updated_at_ms)
VALUES(?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	name = excluded.name,
	company = excluded.company,
	game_time = excluded.game_time,
	document = excluded.document,
	updated_at_ms = excluded.updated_at_ms`

// Save writes gs under its metadata.save_id, replacing any earlier version.
func (s *Store) Save(ctx context.Context, gs *gamestate.GameState) (Summary, error) {
	if gs == nil {
		return Summary{}, fmt.Errorf("save: nil game state")
	}
	id := strings.TrimSpace(gs.SaveID())
	if id == "" {
		return Summary{}, ErrNoSaveID
	}
	now := s.now()
	data, err := gamestate.Marshal(gs, now)
	if err != nil {
		return Summary{}, fmt.Errorf("encode save %s: %w", id, err)
	}
	sum := Summary{
		ID:        id,
		Name:      gs.SaveName(),
		Company:   gs.CompanyName(),
		GameTime:  gs.TimeLabel(),
		UpdatedAt: time.UnixMilli(now.UnixMilli()).UTC(),
	}
	ms := now.UnixMilli()
	if _, err := s.db.ExecContext(ctx, upsertSaveSQL, sum.ID, sum.Name, sum.Company, sum.GameTime, string(data), ms, ms); err != nil {
		return Summary{}, fmt.Errorf("write save %s: %w", id, err)
	}
	logger.DebugCF("saves", "Save written", map[string]interface{}{
		"save_id": id,
		"bytes":   len(data),
	})
	return sum, nil
}

func (s *Store) Load(ctx context.Context, id string) (*gamestate.GameState, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT document FROM saves WHERE id = ?`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("read save %s: %w", id, err)
	}
	gs, err := gamestate.Unmarshal([]byte(doc))
	if err != nil {
		return nil, fmt.Errorf("decode save %s: %w", id, err)
	}
	return gs, nil
}

// List returns every save, most recently updated first.
func (s *Store) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, company, game_time, updated_at_ms FROM saves ORDER BY updated_at_ms DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list saves: %w", err)
	}
	defer rows.Close()

	out := []Summary{}
	for rows.Next() {
		var (
			sum Summary
			ms  int64
		)
		if err := rows.Scan(&sum.ID, &sum.Name, &sum.Company, &sum.GameTime, &ms); err != nil {
			return nil, fmt.Errorf("scan save row: %w", err)
		}
		sum.UpdatedAt = time.UnixMilli(ms).UTC()
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Latest is the most recently updated save.
func (s *Store) Latest(ctx context.Context) (Summary, error) {
	list, err := s.List(ctx)
	if err != nil {
		return Summary{}, err
	}
	if len(list) == 0 {
		return Summary{}, ErrNotFound
	}
	return list[0], nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM saves WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete save %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}
