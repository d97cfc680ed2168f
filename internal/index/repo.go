package index

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/starford/ctxcache/internal/apperr"
)

// DocumentRow represents a row in the documents table. Path is relative to
// the cache root.
type DocumentRow struct {
	Path        string `json:"path"`
	Slug        string `json:"slug"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Checksum    string `json:"checksum"`
	Updated     string `json:"updated"`
}

// SearchResult represents one search hit.
type SearchResult struct {
	Path    string `json:"path"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// UpsertDocument inserts or replaces a document, its FTS entry and its
// references within a transaction.
func (db *DB) UpsertDocument(row DocumentRow, body string, references map[string]string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.Exec(`
		INSERT INTO documents (path, slug, title, description, checksum, updated, body)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			slug        = excluded.slug,
			title       = excluded.title,
			description = excluded.description,
			checksum    = excluded.checksum,
			updated     = excluded.updated,
			body        = excluded.body
	`, row.Path, row.Slug, row.Title, row.Description, row.Checksum, row.Updated, body)
	if err != nil {
		return fmt.Errorf("index: upsert document: %w", err)
	}

	if err := ftsUpsert(tx, row, body); err != nil {
		return err
	}

	if _, err := tx.Exec(`DELETE FROM refs WHERE document = ?`, row.Path); err != nil {
		return fmt.Errorf("index: clear refs: %w", err)
	}
	if len(references) > 0 {
		stmt, err := tx.Prepare(`INSERT OR REPLACE INTO refs (document, reference, fingerprint) VALUES (?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("index: prepare ref insert: %w", err)
		}
		defer stmt.Close()
		for ref, fp := range references {
			if _, err := stmt.Exec(row.Path, ref, fp); err != nil {
				return fmt.Errorf("index: insert ref: %w", err)
			}
		}
	}

	return tx.Commit()
}

// DeleteDocument removes a document, its FTS entry and its references.
func (db *DB) DeleteDocument(path string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDelete(tx, path)
	if _, err := tx.Exec(`DELETE FROM refs WHERE document = ?`, path); err != nil {
		return fmt.Errorf("index: delete refs: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM documents WHERE path = ?`, path); err != nil {
		return fmt.Errorf("index: delete document: %w", err)
	}
	return tx.Commit()
}

// GetChecksum returns the stored checksum for a document, or an empty string
// if it is not indexed.
func (db *DB) GetChecksum(path string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM documents WHERE path = ?`, path).Scan(&cs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("index: get checksum: %w", err)
	}
	return cs, nil
}

// GetDocument returns the indexed metadata of one document.
func (db *DB) GetDocument(path string) (*DocumentRow, error) {
	var r DocumentRow
	err := db.conn.QueryRow(`
		SELECT path, slug, title, description, checksum, updated
		FROM documents WHERE path = ?
	`, path).Scan(&r.Path, &r.Slug, &r.Title, &r.Description, &r.Checksum, &r.Updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: document %s: %w", path, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("index: get document: %w", err)
	}
	return &r, nil
}

// AllChecksums returns path → checksum for every indexed document.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

// Referencing returns the documents whose references contain reference, in
// path order.
func (db *DB) Referencing(reference string) ([]string, error) {
	return db.strings(`SELECT document FROM refs WHERE reference = ? ORDER BY document`, reference)
}

// ReferencedPaths returns every distinct referenced source path.
func (db *DB) ReferencedPaths() ([]string, error) {
	return db.strings(`SELECT DISTINCT reference FROM refs ORDER BY reference`)
}

func (db *DB) strings(query string, args ...any) ([]string, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("index: query: %w", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanResults(rows *sql.Rows) ([]SearchResult, error) {
	out := []SearchResult{}
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.Path, &r.Title, &r.Snippet); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
