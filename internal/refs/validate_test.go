package refs

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/ctxcache/internal/apperr"
)

func setupProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "src", "subdir"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "src", "exists.rs"), []byte("// content"), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func reasonOf(t *testing.T, err error) apperr.Reason {
	t.Helper()
	var pe *apperr.PathError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *apperr.PathError, got %v", err)
	}
	return pe.Reason
}

func TestValidatePath_Absolute(t *testing.T) {
	root := setupProject(t)
	_, err := ValidatePath("/etc/passwd", root)
	if got := reasonOf(t, err); got != apperr.ReasonAbsolute {
		t.Errorf("reason = %v, want absolute", got)
	}
}

func TestValidatePath_AbsoluteBeforeFilesystem(t *testing.T) {
	// The root does not exist; the lexical check must still win.
	_, err := ValidatePath("/etc/passwd", filepath.Join(t.TempDir(), "missing"))
	if got := reasonOf(t, err); got != apperr.ReasonAbsolute {
		t.Errorf("reason = %v, want absolute", got)
	}
}

func TestValidatePath_ParentTraversal(t *testing.T) {
	root := setupProject(t)
	inner := filepath.Join(root, "inner")
	if err := os.MkdirAll(inner, 0o755); err != nil {
		t.Fatal(err)
	}
	// root/inner/../x exists, but traversal is rejected regardless.
	if err := os.WriteFile(filepath.Join(root, "x"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := ValidatePath("../x", inner)
	if got := reasonOf(t, err); got != apperr.ReasonParentTraversal {
		t.Errorf("reason = %v, want parent_traversal", got)
	}
}

func TestValidatePath_NotFound(t *testing.T) {
	root := setupProject(t)
	_, err := ValidatePath("src/missing.rs", root)
	if got := reasonOf(t, err); got != apperr.ReasonNotFound {
		t.Errorf("reason = %v, want not_found", got)
	}
}

func TestValidatePath_IsDirectory(t *testing.T) {
	root := setupProject(t)
	_, err := ValidatePath("src/subdir", root)
	if got := reasonOf(t, err); got != apperr.ReasonIsDirectory {
		t.Errorf("reason = %v, want is_directory", got)
	}
}

func TestValidatePath_Existing(t *testing.T) {
	root := setupProject(t)
	for _, in := range []string{"src/exists.rs", "./src/exists.rs"} {
		got, err := ValidatePath(in, root)
		if err != nil {
			t.Fatalf("ValidatePath(%q): %v", in, err)
		}
		if got != "src/exists.rs" {
			t.Errorf("ValidatePath(%q) = %q, want %q", in, got, "src/exists.rs")
		}
	}
}

func TestValidatePath_KeepsOriginalText(t *testing.T) {
	root := setupProject(t)
	_, err := ValidatePath("./src/nope.rs", root)
	var pe *apperr.PathError
	if !errors.As(err, &pe) {
		t.Fatalf("expected PathError, got %v", err)
	}
	if pe.Path != "./src/nope.rs" {
		t.Errorf("path = %q, want original text", pe.Path)
	}
}

func TestValidatePath_ThroughFile(t *testing.T) {
	root := setupProject(t)
	_, err := ValidatePath("src/exists.rs/intro", root)
	if got := reasonOf(t, err); got != apperr.ReasonNotFound {
		t.Errorf("reason = %v, want not_found", got)
	}
}
