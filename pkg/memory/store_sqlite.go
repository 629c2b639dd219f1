package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dotsetgreg/studiogm/pkg/logger"
)

// SQLiteStore keeps vector entries for every save in one database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates/opens the vector memory database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create memory db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One shared connection avoids writer lock contention.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) init() error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA synchronous=NORMAL;`,
		`PRAGMA temp_store=MEMORY;`,
		`PRAGMA busy_timeout=5000;`,
		`CREATE TABLE IF NOT EXISTS vector_memories (
			save_id TEXT NOT NULL,
			id TEXT NOT NULL,
			content TEXT NOT NULL,
			tags_json TEXT NOT NULL DEFAULT '[]',
			vector_json TEXT NOT NULL DEFAULT '[]',
			vector_type TEXT NOT NULL DEFAULT 'tfidf',
			embedding_model TEXT NOT NULL DEFAULT '',
			importance INTEGER NOT NULL DEFAULT 5,
			category TEXT NOT NULL DEFAULT 'other',
			metadata_json TEXT NOT NULL DEFAULT '{}',
			created_at_ms INTEGER NOT NULL,
			PRIMARY KEY (save_id, id)
		);`,
		`CREATE INDEX IF NOT EXISTS vector_memories_category_idx ON vector_memories(save_id, category);`,
		`CREATE INDEX IF NOT EXISTS vector_memories_time_idx ON vector_memories(save_id, created_at_ms);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init memory schema (%s): %w", trimSQL(stmt), err)
		}
	}
	return nil
}

func trimSQL(sql string) string {
	line := strings.TrimSpace(sql)
	if len(line) > 96 {
		return line[:96] + "..."
	}
	return line
}

func nowMS() int64 { return time.Now().UnixMilli() }

func encodeVector(vec []float32) string {
	if len(vec) == 0 {
		return "[]"
	}
	b, err := json.Marshal(vec)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func decodeVector(raw string) []float32 {
	if raw == "" {
		return nil
	}
	out := []float32{}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}

func encodeJSON(v any, empty string) string {
	b, err := json.Marshal(v)
	if err != nil || string(b) == "null" {
		return empty
	}
	return string(b)
}

const upsertEntrySQL = `
INSERT INTO vector_memories(save_id, id, content, tags_json, vector_json, vector_type, embedding_model, importance, category, metadata_json, created_at_ms)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(save_id, id) DO UPDATE SET
	content = excluded.content,
	tags_json = excluded.tags_json,
	vector_json = excluded.vector_json,
	vector_type = excluded.vector_type,
	embedding_model = excluded.embedding_model,
	importance = excluded.importance,
	category = excluded.category,
	metadata_json = excluded.metadata_json,
	created_at_ms = excluded.created_at_ms`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func putEntry(ctx context.Context, ex execer, saveID string, e Entry) error {
	if e.Timestamp == 0 {
		e.Timestamp = nowMS()
	}
	if e.VectorType == "" {
		e.VectorType = VectorTFIDF
	}
	_, err := ex.ExecContext(ctx, upsertEntrySQL,
		saveID, e.ID, e.Content,
		encodeJSON(e.Tags, "[]"), encodeVector(e.Vector),
		string(e.VectorType), e.EmbeddingModel,
		e.Importance, string(e.Category),
		encodeJSON(e.Metadata, "{}"), e.Timestamp,
	)
	return err
}

func (s *SQLiteStore) PutEntry(ctx context.Context, saveID string, entry Entry) error {
	if saveID == "" {
		return ErrNoSaveID
	}
	if err := putEntry(ctx, s.db, saveID, entry); err != nil {
		return fmt.Errorf("upsert vector memory: %w", err)
	}
	return nil
}

// PutEntries writes a batch in one transaction.
func (s *SQLiteStore) PutEntries(ctx context.Context, saveID string, entries []Entry) error {
	if saveID == "" {
		return ErrNoSaveID
	}
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin vector memory batch: %w", err)
	}
	for _, e := range entries {
		if err := putEntry(ctx, tx, saveID, e); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("upsert vector memory %s: %w", e.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit vector memory batch: %w", err)
	}
	return nil
}

const selectEntryColumns = `id, content, tags_json, vector_json, vector_type, embedding_model, importance, category, metadata_json, created_at_ms`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (Entry, error) {
	var (
		e                                           Entry
		tagsRaw, vecRaw, vecType, category, metaRaw string
	)
	if err := row.Scan(&e.ID, &e.Content, &tagsRaw, &vecRaw, &vecType, &e.EmbeddingModel, &e.Importance, &category, &metaRaw, &e.Timestamp); err != nil {
		return Entry{}, err
	}
	if err := json.Unmarshal([]byte(tagsRaw), &e.Tags); err != nil {
		logger.WarnCF("vector", "Stored tags unreadable, entry loses tag matching", map[string]interface{}{
			"id":    e.ID,
			"error": err.Error(),
		})
		e.Tags = nil
	}
	if err := json.Unmarshal([]byte(metaRaw), &e.Metadata); err != nil {
		logger.WarnCF("vector", "Stored metadata unreadable", map[string]interface{}{
			"id":    e.ID,
			"error": err.Error(),
		})
		e.Metadata = EntryMetadata{}
	}
	e.Vector = decodeVector(vecRaw)
	e.VectorType = VectorType(vecType)
	e.Category = Category(category)
	return e, nil
}

// ListEntries returns every entry of a save, oldest first.
func (s *SQLiteStore) ListEntries(ctx context.Context, saveID string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectEntryColumns+` FROM vector_memories WHERE save_id = ? ORDER BY created_at_ms ASC, id ASC`, saveID)
	if err != nil {
		return nil, fmt.Errorf("list vector memories: %w", err)
	}
	defer rows.Close()

	out := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan vector memory: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vector memories: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) GetEntry(ctx context.Context, saveID, id string) (Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectEntryColumns+` FROM vector_memories WHERE save_id = ? AND id = ?`, saveID, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("get vector memory: %w", err)
	}
	return e, nil
}

func (s *SQLiteStore) DeleteEntry(ctx context.Context, saveID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM vector_memories WHERE save_id = ? AND id = ?`, saveID, id)
	if err != nil {
		return fmt.Errorf("delete vector memory: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) ClearEntries(ctx context.Context, saveID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM vector_memories WHERE save_id = ?`, saveID); err != nil {
		return fmt.Errorf("clear vector memories: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CountEntries(ctx context.Context, saveID string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vector_memories WHERE save_id = ?`, saveID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count vector memories: %w", err)
	}
	return n, nil
}
