package index

import (
	"log/slog"

	"github.com/starford/ctxcache/internal/checksum"
	"github.com/starford/ctxcache/internal/document"
	"github.com/starford/ctxcache/internal/storage"
)

// Sync walks the cache and brings the index up to date:
//   - new or changed documents are parsed and upserted
//   - documents removed from disk are deleted from the index
//
// Documents that fail to parse are logged and skipped.
func Sync(db *DB, store storage.Provider, logger *slog.Logger) error {
	paths, err := store.List("")
	if err != nil {
		return err
	}

	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		disk[p] = struct{}{}

		data, err := store.Read(p)
		if err != nil {
			logger.Warn("index: read failed", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		if checksums[p] == checksum.Sum(data) {
			continue
		}
		if err := indexFile(db, p, data); err != nil {
			logger.Warn("index: parse failed", slog.String("path", p), slog.String("error", err.Error()))
		} else {
			logger.Debug("index: indexed", slog.String("path", p))
		}
	}

	for p := range checksums {
		if _, ok := disk[p]; !ok {
			if err := db.DeleteDocument(p); err != nil {
				logger.Warn("index: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			} else {
				logger.Debug("index: removed stale", slog.String("path", p))
			}
		}
	}
	return nil
}

// indexFile parses data and upserts it into the DB.
func indexFile(db *DB, path string, data []byte) error {
	d, err := document.Parse(path, data)
	if err != nil {
		return err
	}
	row := DocumentRow{
		Path:        path,
		Slug:        d.Slug,
		Title:       d.Title(),
		Description: d.Description,
		Checksum:    checksum.Sum(data),
		Updated:     d.Updated,
	}
	return db.UpsertDocument(row, d.Body, d.References)
}
