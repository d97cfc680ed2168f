// Package document loads, validates and synchronizes a single context
// document.
package document

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/starford/ctxcache/internal/apperr"
	"github.com/starford/ctxcache/internal/checksum"
	"github.com/starford/ctxcache/internal/models"
	"github.com/starford/ctxcache/internal/parser"
	"github.com/starford/ctxcache/internal/refs"
	"github.com/starford/ctxcache/internal/storage"
)

// ContextDirName is the name of the directory holding the cache.
const ContextDirName = ".context"

// UnknownReference is reported in place of a path when the document has no
// project root to resolve references against.
const UnknownReference = "<unknown>"

// Document is a context document backed by a Markdown file.
type Document struct {
	Path        string
	Slug        string
	Description string
	// References maps project-relative paths to their short fingerprints.
	References map[string]string
	Updated    string
	Body       string

	extra map[string]any
}

// Load reads and decodes the document at path. A file without frontmatter
// loads with its filename stem as slug and no references.
func Load(path string) (*Document, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("document: resolve %s: %w", path, err)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("document: read %s: %w", abs, err)
	}
	return Parse(abs, data)
}

// Parse decodes raw document content for the file at path.
func Parse(path string, data []byte) (*Document, error) {
	fm, body, err := parser.Decode(data)
	if err != nil {
		return nil, apperr.InvalidDocument(path, "%v", err)
	}
	d := &Document{Path: path, Body: body, References: map[string]string{}}
	if fm == nil {
		d.Slug = stem(path)
		return d, nil
	}
	d.Slug = fm.Slug
	if d.Slug == "" {
		d.Slug = stem(path)
	}
	d.Description = fm.Description
	d.References = fm.References
	d.Updated = fm.Updated
	d.extra = fm.Extra
	return d, nil
}

func stem(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

// Encode renders the document as frontmatter followed by its body.
func (d *Document) Encode() ([]byte, error) {
	return parser.Encode(&parser.Frontmatter{
		Slug:        d.Slug,
		Description: d.Description,
		References:  d.References,
		Updated:     d.Updated,
		Extra:       d.extra,
	}, d.Body)
}

// Save atomically writes the document to its backing file.
func (d *Document) Save() error {
	data, err := d.Encode()
	if err != nil {
		return fmt.Errorf("document: encode %s: %w", d.Path, err)
	}
	if err := storage.WriteFile(d.Path, data); err != nil {
		return fmt.Errorf("document: save %s: %w", d.Path, err)
	}
	return nil
}

// Title returns the first heading of the body, or the slug.
func (d *Document) Title() string {
	return parser.DeriveTitle(d.Body, d.Slug)
}

// ProjectRoot returns the parent of the nearest ancestor directory named
// .context. ok is false when the document lives outside any cache.
func (d *Document) ProjectRoot() (root string, ok bool) {
	dir := filepath.Dir(d.Path)
	for {
		if filepath.Base(dir) == ContextDirName {
			return filepath.Dir(dir), true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// Validate compares the stored fingerprints against the referenced files.
// It never modifies the document.
func (d *Document) Validate() (models.Validation, error) {
	v := models.NewValidation(d.Path)
	root, hasRoot := d.ProjectRoot()

	for _, ref := range slices.Sorted(maps.Keys(d.References)) {
		if !hasRoot {
			v.AddMissing(ref)
			continue
		}
		data, err := os.ReadFile(refs.Resolve(root, ref))
		if refs.IsNotExist(err) {
			v.AddMissing(ref)
			continue
		}
		if err != nil {
			return models.Validation{}, fmt.Errorf("document: validate %s: %w", d.Path, err)
		}
		if checksum.Short(data) != d.References[ref] {
			v.AddChanged(ref)
		}
	}
	return v, nil
}

// Prepare scans the body and validates every mentioned path without writing
// anything. All rejections are collected; only I/O failures return an error.
func (d *Document) Prepare() ([]apperr.InvalidReference, error) {
	root, ok := d.ProjectRoot()
	if !ok {
		return []apperr.InvalidReference{{Path: UnknownReference, Reason: apperr.ReasonNotFound}}, nil
	}

	var invalid []apperr.InvalidReference
	for _, raw := range refs.ExtractPaths(d.Body) {
		_, err := refs.ValidatePath(raw, root)
		var pe *apperr.PathError
		switch {
		case err == nil:
		case errors.As(err, &pe):
			invalid = append(invalid, apperr.InvalidReference{Path: pe.Path, Reason: pe.Reason})
		default:
			return nil, fmt.Errorf("document: prepare %s: %w", d.Path, err)
		}
	}
	return invalid, nil
}

// Commit fingerprints every path mentioned in the body into a new reference
// map, sets Updated to today and persists the document. The in-memory
// document changes only after the write succeeds.
func (d *Document) Commit(today string) error {
	root, ok := d.ProjectRoot()
	if !ok {
		return fmt.Errorf("document: commit %s: no %s ancestor", d.Path, ContextDirName)
	}

	references := make(map[string]string)
	for _, raw := range refs.ExtractPaths(d.Body) {
		rel, err := refs.ValidatePath(raw, root)
		if err != nil {
			return fmt.Errorf("document: commit %s: %w", d.Path, err)
		}
		data, err := os.ReadFile(refs.Resolve(root, rel))
		if err != nil {
			return fmt.Errorf("document: commit %s: %w", d.Path, err)
		}
		references[rel] = checksum.Short(data)
	}

	next := *d
	next.References = references
	next.Updated = today
	if err := next.Save(); err != nil {
		return err
	}
	d.References = references
	d.Updated = today
	return nil
}

// Sync prepares and commits a single document. Rejected references are
// returned as *apperr.InvalidReferencesError and nothing is written.
func (d *Document) Sync(today string) error {
	invalid, err := d.Prepare()
	if err != nil {
		return err
	}
	if len(invalid) > 0 {
		return &apperr.InvalidReferencesError{Documents: []apperr.DocumentReferences{
			{Document: d.Path, Invalid: invalid},
		}}
	}
	return d.Commit(today)
}

// Today returns the local date as YYYY-MM-DD.
func Today() string {
	return time.Now().Format(time.DateOnly)
}
