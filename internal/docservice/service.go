// Package docservice coordinates the cache, the index and change
// notifications for the outer surfaces (CLI, HTTP, MCP).
package docservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/starford/ctxcache/internal/apperr"
	"github.com/starford/ctxcache/internal/cache"
	"github.com/starford/ctxcache/internal/document"
	"github.com/starford/ctxcache/internal/index"
	"github.com/starford/ctxcache/internal/models"
	"github.com/starford/ctxcache/internal/storage"
)

// Notifier receives status changes detected by the watcher.
type Notifier interface {
	PublishStatus(v models.Validation)
	PublishRemoved(path string)
}

// DocumentDetail is the full representation of a document.
type DocumentDetail struct {
	Path        string            `json:"path"`
	Slug        string            `json:"slug"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Updated     string            `json:"updated"`
	References  map[string]string `json:"references"`
	Content     string            `json:"content"`
	Validation  models.Validation `json:"validation"`
}

// Service serializes access to a cache and keeps the index in step with it.
// Every operation reloads the cache from disk first, so results reflect
// edits made by other processes.
type Service struct {
	mu       sync.Mutex
	cache    *cache.Cache
	store    storage.Provider
	db       *index.DB
	logger   *slog.Logger
	notifier Notifier
}

// Option configures a Service.
type Option func(*Service)

// WithNotifier sets the receiver of watcher-driven status changes.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// New creates a service over c, indexing into db. The cache root must exist.
func New(c *cache.Cache, db *index.DB, opts ...Option) (*Service, error) {
	store, err := storage.NewFS(c.Root())
	if err != nil {
		return nil, err
	}
	s := &Service{cache: c, store: store, db: db, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Root returns the cache root.
func (s *Service) Root() string { return s.cache.Root() }

// Store returns the storage provider of the cache root.
func (s *Service) Store() storage.Provider { return s.store }

// DB returns the index.
func (s *Service) DB() *index.DB { return s.db }

func (s *Service) load() error {
	return s.cache.Load()
}

// Reindex reloads the cache and brings the index up to date.
func (s *Service) Reindex(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return err
	}
	return index.Sync(s.db, s.store, s.logger)
}

// Status validates every document. With invalidOnly, valid documents are
// left out.
func (s *Service) Status(ctx context.Context, invalidOnly bool) ([]models.Validation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return nil, err
	}
	all, err := s.cache.Status(ctx)
	if err != nil {
		return nil, err
	}
	if !invalidOnly {
		return all, nil
	}
	out := []models.Validation{}
	for _, v := range all {
		if v.Status != models.StatusValid {
			out = append(out, v)
		}
	}
	return out, nil
}

// Sync refreshes one document, or every document when path is empty, and
// reindexes the cache. See cache.Cache.Sync for failure semantics.
func (s *Service) Sync(ctx context.Context, path string) (*models.SyncResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return nil, err
	}
	scope := cache.AllDocuments()
	if path != "" {
		scope = cache.DocumentScope(path)
	}
	result, err := s.cache.Sync(ctx, scope)
	if err != nil {
		return nil, err
	}
	if err := index.Sync(s.db, s.store, s.logger); err != nil {
		s.logger.Warn("sync: reindex failed", slog.String("error", err.Error()))
	}
	return result, nil
}

// Find returns, for each queried source path, the documents referencing it.
func (s *Service) Find(_ context.Context, paths []string) ([]models.FindResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return nil, err
	}
	out := make([]models.FindResult, 0, len(paths))
	for _, p := range paths {
		res, err := s.cache.FindByReference(p)
		if errors.Is(err, apperr.ErrNotFound) {
			out = append(out, models.FindResult{Query: p, Matches: []models.FindMatch{}})
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}

// Search runs a text search over slug, title, description and body.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]index.SearchResult, error) {
	if err := s.Reindex(ctx); err != nil {
		return nil, err
	}
	return s.db.Search(query, limit)
}

// GetDocument returns one document with its current validation.
func (s *Service) GetDocument(_ context.Context, path string) (*DocumentDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return nil, err
	}
	d, err := s.cache.Lookup(path)
	if err != nil {
		return nil, err
	}
	return s.detail(d)
}

// IndexDocuments returns the well-known index documents that exist, in the
// order index.md, guides/index.md, references/index.md.
func (s *Service) IndexDocuments(_ context.Context) ([]DocumentDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return nil, err
	}
	out := []DocumentDetail{}
	for _, d := range []*document.Document{s.cache.Index(), s.cache.Guides(), s.cache.References()} {
		if d == nil {
			continue
		}
		detail, err := s.detail(d)
		if err != nil {
			return nil, err
		}
		out = append(out, *detail)
	}
	return out, nil
}

func (s *Service) detail(d *document.Document) (*DocumentDetail, error) {
	v, err := d.Validate()
	if err != nil {
		return nil, err
	}
	rel := s.cache.Rel(d)
	v.Path = rel
	content, err := s.store.Read(rel)
	if err != nil {
		return nil, err
	}
	return &DocumentDetail{
		Path:        rel,
		Slug:        d.Slug,
		Title:       d.Title(),
		Description: d.Description,
		Updated:     d.Updated,
		References:  d.References,
		Content:     string(content),
		Validation:  v,
	}, nil
}

// HandleEvent is an index.EventCallback: it re-validates the documents
// affected by a change and forwards their status to the notifier.
func (s *Service) HandleEvent(kind, path string) {
	if s.notifier == nil {
		return
	}
	if kind == index.EventDeleted {
		s.notifier.PublishRemoved(path)
		return
	}

	docs := []string{path}
	if kind == index.EventSource {
		var err error
		docs, err = s.db.Referencing(path)
		if err != nil {
			s.logger.Warn("watch: lookup failed", slog.String("path", path), slog.String("error", err.Error()))
			return
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		s.logger.Warn("watch: reload failed", slog.String("error", err.Error()))
		return
	}
	for _, rel := range docs {
		if err := s.publish(rel); err != nil {
			s.logger.Warn("watch: validate failed", slog.String("document", rel), slog.String("error", err.Error()))
		}
	}
}

func (s *Service) publish(rel string) error {
	d, err := s.cache.Lookup(rel)
	if err != nil {
		return err
	}
	v, err := d.Validate()
	if err != nil {
		return fmt.Errorf("validate %s: %w", rel, err)
	}
	v.Path = rel
	s.notifier.PublishStatus(v)
	return nil
}
