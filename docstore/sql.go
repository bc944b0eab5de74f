package docstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// SQL stores documents as JSON text in a single table keyed by
// (collection, id). It runs on SQLite and Postgres.
type SQL struct {
	db       *sql.DB
	postgres bool
}

// OpenSQLite opens (or creates) the SQLite database at path, ensures the data
// directory exists, and creates the documents table.
func OpenSQLite(ctx context.Context, path string) (*SQL, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// WAL lets readers proceed during the seed batch; busy_timeout makes
	// writers wait instead of failing with SQLITE_BUSY.
	if _, err := db.ExecContext(ctx, `
		PRAGMA journal_mode=WAL;
		PRAGMA busy_timeout=5000;
		PRAGMA synchronous=NORMAL;
	`); err != nil {
		db.Close()
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	s := &SQL{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// OpenPostgres connects through the pgx stdlib driver.
func OpenPostgres(ctx context.Context, databaseURL string) (*SQL, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxIdleConns(10)
	db.SetMaxOpenConns(20)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	s := &SQL{db: db, postgres: true}
	if err := s.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQL) ensureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS documents (
    collection TEXT NOT NULL,
    id TEXT NOT NULL,
    data TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    PRIMARY KEY (collection, id)
);
`)
	return err
}

// rebind rewrites ? placeholders to $n for Postgres.
func (s *SQL) rebind(query string) string {
	if !s.postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQL) get(ctx context.Context, q queryer, collection, id string) (map[string]any, error) {
	var raw string
	err := q.QueryRowContext(ctx, s.rebind(`SELECT data FROM documents WHERE collection = ? AND id = ?`), collection, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decode([]byte(raw))
}

func (s *SQL) put(ctx context.Context, q queryer, collection, id string, data map[string]any) error {
	raw, err := encode(data)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, s.rebind(`
INSERT INTO documents (collection, id, data, updated_at) VALUES (?, ?, ?, ?)
ON CONFLICT (collection, id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`),
		collection, id, string(raw), time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

func (s *SQL) Get(ctx context.Context, collection, id string) (Document, error) {
	data, err := s.get(ctx, s.db, collection, id)
	if err != nil {
		return Document{}, err
	}
	return Document{ID: id, Data: data}, nil
}

func (s *SQL) List(ctx context.Context, collection string) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT id, data FROM documents WHERE collection = ? ORDER BY id`), collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		data, err := decode([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", collection, id, err)
		}
		docs = append(docs, Document{ID: id, Data: data})
	}
	return docs, rows.Err()
}

func (s *SQL) Set(ctx context.Context, collection, id string, data map[string]any, mergeFields bool) error {
	if !mergeFields {
		return s.put(ctx, s.db, collection, id, data)
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		existing, err := s.get(ctx, tx, collection, id)
		switch {
		case errors.Is(err, ErrNotFound):
		case err != nil:
			return err
		default:
			data = merge(existing, data)
		}
		return s.put(ctx, tx, collection, id, data)
	})
}

func (s *SQL) Update(ctx context.Context, collection, id string, data map[string]any) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		existing, err := s.get(ctx, tx, collection, id)
		if err != nil {
			return err
		}
		return s.put(ctx, tx, collection, id, merge(existing, data))
	})
}

func (s *SQL) Add(ctx context.Context, collection string, data map[string]any) (string, error) {
	id := newID()
	if err := s.put(ctx, s.db, collection, id, data); err != nil {
		return "", err
	}
	return id, nil
}

func (s *SQL) Delete(ctx context.Context, collection, id string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM documents WHERE collection = ? AND id = ?`), collection, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQL) Commit(ctx context.Context, writes ...Write) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, w := range writes {
			if err := s.put(ctx, tx, w.Collection, w.ID, w.Data); err != nil {
				return fmt.Errorf("write %s/%s: %w", w.Collection, w.ID, err)
			}
		}
		return nil
	})
}

func (s *SQL) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database connection.
func (s *SQL) Close() error {
	return s.db.Close()
}

func (s *SQL) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
