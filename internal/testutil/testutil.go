// Package testutil provides shared test helpers for setting up projects with
// a .context cache.
package testutil

import (
	"maps"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

// Project is a temporary project directory holding a .context cache.
type Project struct {
	t *testing.T
	// Root is the project root, the parent of ContextDir.
	Root string
	// ContextDir is Root/.context.
	ContextDir string
}

// NewProject creates a temporary project with an empty .context directory.
func NewProject(t *testing.T) *Project {
	t.Helper()
	root, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctxDir := filepath.Join(root, ".context")
	if err := os.MkdirAll(ctxDir, 0o755); err != nil {
		t.Fatal(err)
	}
	return &Project{t: t, Root: root, ContextDir: ctxDir}
}

// WriteSource writes a project file and returns its absolute path.
func (p *Project) WriteSource(rel, content string) string {
	p.t.Helper()
	return write(p.t, filepath.Join(p.Root, filepath.FromSlash(rel)), content)
}

// RemoveSource deletes a project file.
func (p *Project) RemoveSource(rel string) {
	p.t.Helper()
	if err := os.Remove(filepath.Join(p.Root, filepath.FromSlash(rel))); err != nil {
		p.t.Fatal(err)
	}
}

// WriteDoc writes a document under .context and returns its absolute path.
func (p *Project) WriteDoc(rel, content string) string {
	p.t.Helper()
	return write(p.t, p.DocPath(rel), content)
}

// ReadDoc returns the raw content of a document under .context.
func (p *Project) ReadDoc(rel string) string {
	p.t.Helper()
	data, err := os.ReadFile(p.DocPath(rel))
	if err != nil {
		p.t.Fatal(err)
	}
	return string(data)
}

// DocPath returns the absolute path of a document under .context.
func (p *Project) DocPath(rel string) string {
	return filepath.Join(p.ContextDir, filepath.FromSlash(rel))
}

// Doc renders a document with the given slug, references and body.
func Doc(slug string, references map[string]string, body string) string {
	s := "---\nslug: " + slug + "\ndescription: \"\"\n"
	if len(references) == 0 {
		s += "references: {}\n"
	} else {
		s += "references:\n"
		for _, k := range slices.Sorted(maps.Keys(references)) {
			s += "  " + k + ": \"" + references[k] + "\"\n"
		}
	}
	return s + "updated: \"\"\n---\n\n" + body
}

func write(t *testing.T, abs, content string) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return abs
}
