// Package cache orchestrates the documents of one .context directory.
package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/starford/ctxcache/internal/apperr"
	"github.com/starford/ctxcache/internal/document"
	"github.com/starford/ctxcache/internal/models"
	"github.com/starford/ctxcache/internal/refs"
	"github.com/starford/ctxcache/internal/storage"
)

// Well-known index documents, relative to the cache root.
const (
	IndexPath      = "index.md"
	GuidesPath     = "guides/index.md"
	ReferencesPath = "references/index.md"
)

const indexTemplate = "---\nslug: index\ndescription: \"\"\nreferences: {}\nupdated: \"\"\n---\n\n"

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// WithClock sets the function returning the date recorded by Sync.
func WithClock(today func() string) Option {
	return func(c *Cache) { c.today = today }
}

// Cache holds the loaded documents of a .context directory. It is not safe
// for concurrent mutation; callers serialize Load and Sync.
type Cache struct {
	root   string
	logger *slog.Logger
	today  func() string

	documents  []*document.Document
	index      *document.Document
	guides     *document.Document
	references *document.Document
}

// New returns an empty cache rooted at the given .context directory.
func New(root string, opts ...Option) (*Cache, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("cache: resolve root: %w", err)
	}
	// The root itself may be a link; only its parent is resolved so the
	// project root stays next to it.
	if parent, err := filepath.EvalSymlinks(filepath.Dir(abs)); err == nil {
		abs = filepath.Join(parent, filepath.Base(abs))
	}
	c := &Cache{
		root:   abs,
		logger: slog.New(slog.DiscardHandler),
		today:  document.Today,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Root returns the absolute .context directory.
func (c *Cache) Root() string { return c.root }

// ProjectRoot returns the directory containing the cache.
func (c *Cache) ProjectRoot() string { return filepath.Dir(c.root) }

// Documents returns the loaded documents in discovery order.
func (c *Cache) Documents() []*document.Document { return c.documents }

// Index returns the top-level index document, or nil when absent.
func (c *Cache) Index() *document.Document { return c.index }

// Guides returns guides/index.md, or nil when absent.
func (c *Cache) Guides() *document.Document { return c.guides }

// References returns references/index.md, or nil when absent.
func (c *Cache) References() *document.Document { return c.references }

// Rel returns the slash-separated path of d relative to the cache root.
func (c *Cache) Rel(d *document.Document) string {
	rel, err := filepath.Rel(c.root, d.Path)
	if err != nil {
		return d.Path
	}
	return filepath.ToSlash(rel)
}

// Init creates the cache layout and writes the index templates that do not
// exist yet. Existing files are left untouched.
func (c *Cache) Init() error {
	if err := os.MkdirAll(c.root, 0o755); err != nil {
		return fmt.Errorf("cache: init: %w", err)
	}
	store, err := storage.NewFS(c.root)
	if err != nil {
		return fmt.Errorf("cache: init: %w", err)
	}
	for _, rel := range []string{IndexPath, GuidesPath, ReferencesPath} {
		abs, err := store.Abs(rel)
		if err != nil {
			return fmt.Errorf("cache: init: %w", err)
		}
		if _, err := os.Stat(abs); err == nil {
			continue
		} else if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("cache: init: %w", err)
		}
		if err := store.Write(rel, []byte(indexTemplate)); err != nil {
			return fmt.Errorf("cache: init: %w", err)
		}
		c.logger.Debug("cache: template written", "path", rel)
	}
	return nil
}

// Load discards the in-memory documents and reads every .md file under the
// root, following symbolic links. Any unreadable or malformed document
// aborts the load and leaves the cache empty.
func (c *Cache) Load() error {
	c.documents, c.index, c.guides, c.references = nil, nil, nil, nil

	store, err := storage.NewFS(c.root)
	if err != nil {
		return fmt.Errorf("cache: load: %w", err)
	}
	paths, err := store.List("")
	if err != nil {
		return fmt.Errorf("cache: load: %w", err)
	}

	docs := make([]*document.Document, 0, len(paths))
	for _, rel := range paths {
		data, err := store.Read(rel)
		if err != nil {
			return fmt.Errorf("cache: load: %w", err)
		}
		abs, err := store.Abs(rel)
		if err != nil {
			return fmt.Errorf("cache: load: %w", err)
		}
		d, err := document.Parse(abs, data)
		if err != nil {
			return err
		}
		docs = append(docs, d)
	}

	c.documents = docs
	for _, d := range docs {
		switch c.Rel(d) {
		case IndexPath:
			c.index = d
		case GuidesPath:
			c.guides = d
		case ReferencesPath:
			c.references = d
		}
	}
	c.logger.Debug("cache: loaded", "root", c.root, "documents", len(docs))
	return nil
}

// Scope selects the documents an operation applies to.
type Scope struct {
	path string
}

// AllDocuments selects every loaded document.
func AllDocuments() Scope { return Scope{} }

// DocumentScope selects the single document at path. Any form accepted by
// ResolveDocumentPath may be used.
func DocumentScope(path string) Scope { return Scope{path: path} }

func (c *Cache) targets(s Scope) ([]*document.Document, error) {
	if s.path == "" {
		return c.documents, nil
	}
	d, err := c.Lookup(s.path)
	if err != nil {
		return nil, err
	}
	return []*document.Document{d}, nil
}

// Status validates every document.
func (c *Cache) Status(ctx context.Context) ([]models.Validation, error) {
	return c.Validate(ctx, AllDocuments())
}

// Validate computes the status of the documents in scope concurrently. The
// result follows discovery order; paths are relative to the cache root.
func (c *Cache) Validate(ctx context.Context, scope Scope) ([]models.Validation, error) {
	docs, err := c.targets(scope)
	if err != nil {
		return nil, err
	}

	out := make([]models.Validation, len(docs))
	g, ctx := errgroup.WithContext(ctx)
	for i, d := range docs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			v, err := d.Validate()
			if err != nil {
				return err
			}
			v.Path = c.Rel(d)
			out[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("cache: status: %w", err)
	}
	return out, nil
}

// Sync refreshes the references of the documents in scope in two phases.
// Every document is first prepared; if any of them mentions an invalid path
// the call returns *apperr.InvalidReferencesError and nothing is written.
// Otherwise each document is committed in turn. Commit is best-effort: a
// write failure is recorded in SyncResult.Failed and does not undo the
// documents already written.
func (c *Cache) Sync(ctx context.Context, scope Scope) (*models.SyncResult, error) {
	docs, err := c.targets(scope)
	if err != nil {
		return nil, err
	}

	rejected := make([][]apperr.InvalidReference, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	for i, d := range docs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			invalid, err := d.Prepare()
			if err != nil {
				return err
			}
			rejected[i] = invalid
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("cache: sync: %w", err)
	}

	var report []apperr.DocumentReferences
	for i, invalid := range rejected {
		if len(invalid) > 0 {
			report = append(report, apperr.DocumentReferences{Document: c.Rel(docs[i]), Invalid: invalid})
		}
	}
	if len(report) > 0 {
		return nil, &apperr.InvalidReferencesError{Documents: report}
	}

	today := c.today()
	result := models.NewSyncResult()
	for _, d := range docs {
		rel := c.Rel(d)
		if err := d.Commit(today); err != nil {
			c.logger.Warn("sync: commit failed", "document", rel, "error", err)
			result.Failed = append(result.Failed, fmt.Sprintf("%s: %v", rel, err))
			continue
		}
		result.Count++
		result.Updated = append(result.Updated, rel)
		c.logger.Debug("sync: committed", "document", rel, "references", len(d.References))
	}
	return result, nil
}

// Lookup returns the loaded document at p; see ResolveDocumentPath.
func (c *Cache) Lookup(p string) (*document.Document, error) {
	abs, err := c.ResolveDocumentPath(p)
	if err != nil {
		return nil, err
	}
	for _, d := range c.documents {
		if d.Path == abs {
			return d, nil
		}
	}
	return nil, fmt.Errorf("cache: document %s: %w", p, apperr.ErrNotFound)
}

// ResolveDocumentPath maps a user-supplied document path to the location of
// a loaded document. p may be absolute or relative to the working directory,
// the cache root or the project root, with or without the .md suffix.
func (c *Cache) ResolveDocumentPath(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("cache: empty document path: %w", apperr.ErrNotFound)
	}
	native := filepath.FromSlash(p)

	var bases []string
	if filepath.IsAbs(native) {
		bases = []string{""}
	} else {
		if wd, err := os.Getwd(); err == nil {
			bases = append(bases, wd)
		}
		bases = append(bases, c.root, c.ProjectRoot())
	}

	loaded := make(map[string]bool, len(c.documents))
	for _, d := range c.documents {
		loaded[d.Path] = true
	}

	for _, base := range bases {
		candidate := filepath.Clean(filepath.Join(base, native))
		for _, abs := range []string{candidate, candidate + ".md"} {
			if loaded[abs] {
				return abs, nil
			}
			if dir, err := filepath.EvalSymlinks(filepath.Dir(abs)); err == nil {
				if resolved := filepath.Join(dir, filepath.Base(abs)); loaded[resolved] {
					return resolved, nil
				}
			}
			if real, err := filepath.EvalSymlinks(abs); err == nil && loaded[real] {
				return real, nil
			}
		}
	}
	return "", fmt.Errorf("cache: document %s: %w", p, apperr.ErrNotFound)
}

// FindByReference returns the documents whose references contain the given
// source path, with each document's current status. p may be relative to the
// project root (optionally "./"-prefixed) or absolute within the project.
func (c *Cache) FindByReference(p string) (models.FindResult, error) {
	ref, err := c.normalizeReference(p)
	if err != nil {
		return models.FindResult{}, err
	}

	result := models.FindResult{Query: p, Matches: []models.FindMatch{}}
	for _, d := range c.documents {
		if _, ok := d.References[ref]; !ok {
			continue
		}
		v, err := d.Validate()
		if err != nil {
			return models.FindResult{}, fmt.Errorf("cache: find: %w", err)
		}
		result.Matches = append(result.Matches, models.FindMatch{
			Document:  c.Rel(d),
			Reference: ref,
			Status:    v.Status,
		})
	}
	return result, nil
}

func (c *Cache) normalizeReference(p string) (string, error) {
	native := filepath.FromSlash(p)
	if filepath.IsAbs(native) {
		rel, err := filepath.Rel(c.ProjectRoot(), native)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return "", fmt.Errorf("cache: %s is outside the project: %w", p, apperr.ErrNotFound)
		}
		native = rel
	}
	return refs.Normalize(filepath.ToSlash(filepath.Clean(native))), nil
}

// Discover walks upward from dir to the first directory containing a
// .context directory and returns that .context path.
func Discover(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("cache: discover: %w", err)
	}
	for {
		candidate := filepath.Join(abs, document.ContextDirName)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate, nil
		}
		parent := filepath.Dir(abs)
		if parent == abs {
			return "", apperr.ErrNotARepository
		}
		abs = parent
	}
}
