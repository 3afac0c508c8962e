package index

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
)

const (
	metaSchema = `
CREATE TABLE IF NOT EXISTS index_meta (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);`

	imagesSchema = `
CREATE TABLE images (
    path   TEXT PRIMARY KEY,
    mtime  INTEGER NOT NULL,
    vector BLOB NOT NULL,
    failed INTEGER NOT NULL DEFAULT 0
);`

	// readChunk bounds the number of bound parameters in one IN (...) query.
	readChunk = 500
)

// SQLiteTable stores records in an "images" table of a SQLite database.
// Each Write runs in a single transaction.
type SQLiteTable struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens (creating if needed) the database at path. The images
// table itself is only created by the first ModeCreate write.
func OpenSQLite(path string) (*SQLiteTable, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := path
	if strings.Contains(dsn, "?") {
		dsn += "&"
	} else {
		dsn += "?"
	}
	dsn += "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open index db: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec(metaSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize index schema: %w", err)
	}

	return &SQLiteTable{db: db, path: path}, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func tableExists(ctx context.Context, q queryer) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'images'`).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check images table: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteTable) Exists(ctx context.Context) (bool, error) {
	return tableExists(ctx, s.db)
}

func (s *SQLiteTable) Fingerprints(ctx context.Context) (map[string]Fingerprint, error) {
	out := map[string]Fingerprint{}
	exists, err := s.Exists(ctx)
	if err != nil || !exists {
		return out, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT path, mtime, failed FROM images`)
	if err != nil {
		return nil, fmt.Errorf("read fingerprints: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			path   string
			fp     Fingerprint
			failed int
		)
		if err := rows.Scan(&path, &fp.MTime, &failed); err != nil {
			return nil, fmt.Errorf("scan fingerprint row: %w", err)
		}
		fp.Failed = failed != 0
		out[path] = fp
	}
	return out, rows.Err()
}

func (s *SQLiteTable) ReadAll(ctx context.Context) ([]Record, error) {
	exists, err := s.Exists(ctx)
	if err != nil || !exists {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT path, mtime, vector FROM images ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("read images: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows, nil)
}

func (s *SQLiteTable) ReadPaths(ctx context.Context, paths []string) ([]Record, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	exists, err := s.Exists(ctx)
	if err != nil || !exists {
		return nil, err
	}

	seen := make(map[string]struct{}, len(paths))
	unique := make([]string, 0, len(paths))
	for _, p := range paths {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		unique = append(unique, p)
	}

	out := make([]Record, 0, len(unique))
	for start := 0; start < len(unique); start += readChunk {
		end := min(start+readChunk, len(unique))
		chunk := unique[start:end]

		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")
		query := fmt.Sprintf(`SELECT path, mtime, vector FROM images WHERE path IN (%s)`, placeholders)
		args := make([]any, len(chunk))
		for i, p := range chunk {
			args[i] = p
		}

		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("read images by path: %w", err)
		}
		out, err = scanRecords(rows, out)
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func scanRecords(rows *sql.Rows, out []Record) ([]Record, error) {
	for rows.Next() {
		var (
			r    Record
			blob []byte
		)
		if err := rows.Scan(&r.Path, &r.MTime, &blob); err != nil {
			return nil, fmt.Errorf("scan image row: %w", err)
		}
		vec, err := decodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("decode vector for %s: %w", r.Path, err)
		}
		r.Vector = vec
		out = append(out, r)
	}
	return out, rows.Err()
}

// Write replaces the images table in one transaction.
func (s *SQLiteTable) Write(ctx context.Context, records []Record, mode WriteMode) (err error) {
	if err := checkDuplicates(records); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin write: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	exists, err := tableExists(ctx, tx)
	if err != nil {
		return err
	}

	switch mode {
	case ModeCreate:
		if exists {
			return fmt.Errorf("create %s: %w", s.path, ErrStoreExists)
		}
		if _, err = tx.ExecContext(ctx, imagesSchema); err != nil {
			return fmt.Errorf("create images table: %w", err)
		}
	case ModeOverwrite:
		if !exists {
			return fmt.Errorf("overwrite %s: %w", s.path, ErrStoreMissing)
		}
		if _, err = tx.ExecContext(ctx, `DELETE FROM images`); err != nil {
			return fmt.Errorf("clear images table: %w", err)
		}
	default:
		return fmt.Errorf("unsupported write mode %d", mode)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO images(path, mtime, vector, failed) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		failed := 0
		if r.Failed() {
			failed = 1
		}
		if _, err = stmt.ExecContext(ctx, r.Path, r.MTime, encodeVector(r.Vector), failed); err != nil {
			return fmt.Errorf("insert %s: %w", r.Path, err)
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO index_meta(key, value) VALUES ('updated_at', ?)`,
		time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("update index meta: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit write: %w", err)
	}
	return nil
}

func (s *SQLiteTable) UpdatedAt(ctx context.Context) (time.Time, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM index_meta WHERE key = 'updated_at'`).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("read index meta: %w", err)
	}
	return time.Parse(time.RFC3339Nano, value)
}

func (s *SQLiteTable) Close() error {
	return s.db.Close()
}
