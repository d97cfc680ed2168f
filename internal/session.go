package internal

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/starford/ctxcache/internal/cache"
	"github.com/starford/ctxcache/internal/docservice"
	"github.com/starford/ctxcache/internal/document"
	"github.com/starford/ctxcache/internal/index"
)

// Session bundles what a command needs to work on one context cache.
type Session struct {
	Cache   *cache.Cache
	DB      *index.DB
	Service *docservice.Service
}

// ResolveRoot returns the .context directory governing dir, searching upward.
// An empty dir starts from the working directory.
func ResolveRoot(dir string) (string, error) {
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("resolve root: %w", err)
		}
		dir = wd
	}
	return cache.Discover(dir)
}

// OpenSession discovers the cache named by cfg, opens its index and builds
// the document service over both.
func OpenSession(cfg *Config, logger *slog.Logger, opts ...docservice.Option) (*Session, error) {
	root, err := ResolveRoot(cfg.Context.Root)
	if err != nil {
		return nil, err
	}

	c, err := cache.New(root, cache.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	opts = append([]docservice.Option{docservice.WithLogger(logger)}, opts...)
	svc, err := docservice.New(c, db, opts...)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init service: %w", err)
	}

	logger.Debug("session opened",
		slog.String("root", root),
		slog.String("sqlite_path", cfg.SQLite.Path))

	return &Session{Cache: c, DB: db, Service: svc}, nil
}

// Close releases the index.
func (s *Session) Close() error {
	return s.DB.Close()
}

// InitCache creates dir/.context with its index templates and returns the
// cache root. Existing files are kept.
func InitCache(dir string, logger *slog.Logger) (string, error) {
	c, err := cache.New(filepath.Join(dir, document.ContextDirName), cache.WithLogger(logger))
	if err != nil {
		return "", err
	}
	if err := c.Init(); err != nil {
		return "", err
	}
	return c.Root(), nil
}
