// Package apperr defines the error taxonomy shared by the cache, its
// collaborators and the outer surfaces (CLI, HTTP, MCP).
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidDocument = errors.New("invalid document")
	ErrNotARepository  = errors.New("not a context repository (or any parent directories): .context")
)

// Reason classifies why a path mentioned in a document body was rejected.
type Reason int

const (
	ReasonAbsolute Reason = iota + 1
	ReasonParentTraversal
	ReasonNotFound
	ReasonIsDirectory
)

// String returns the machine-readable reason name.
func (r Reason) String() string {
	switch r {
	case ReasonAbsolute:
		return "absolute"
	case ReasonParentTraversal:
		return "parent_traversal"
	case ReasonNotFound:
		return "not_found"
	case ReasonIsDirectory:
		return "is_directory"
	default:
		return "unknown"
	}
}

// Message returns a human-readable explanation of the reason.
func (r Reason) Message() string {
	switch r {
	case ReasonAbsolute:
		return "absolute path not allowed"
	case ReasonParentTraversal:
		return "parent traversal (..) not allowed"
	case ReasonNotFound:
		return "file not found"
	case ReasonIsDirectory:
		return "path is a directory, not a file"
	default:
		return "invalid path"
	}
}

// MarshalText renders the reason as its String form.
func (r Reason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// PathError is returned by the path validator for a rejected reference.
type PathError struct {
	Path   string
	Reason Reason
}

func (e *PathError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Reason.Message())
}

// InvalidReference is one rejected path as it was written in a document body.
type InvalidReference struct {
	Path   string `json:"path"`
	Reason Reason `json:"reason"`
}

// DocumentReferences groups the rejections found in a single document.
type DocumentReferences struct {
	Document string             `json:"document"`
	Invalid  []InvalidReference `json:"invalid"`
}

// InvalidReferencesError fails a whole sync batch. No document of the batch
// has been written when it is returned.
type InvalidReferencesError struct {
	Documents []DocumentReferences
}

func (e *InvalidReferencesError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("invalid references in %d document(s)", len(e.Documents))
}

// Detail renders every rejection, one per line.
func (e *InvalidReferencesError) Detail() string {
	var b strings.Builder
	b.WriteString(e.Error())
	b.WriteString(":\n")
	for _, d := range e.Documents {
		fmt.Fprintf(&b, "\n%s:\n", d.Document)
		for _, r := range d.Invalid {
			fmt.Fprintf(&b, "  - %s: %s\n", r.Path, r.Reason.Message())
		}
	}
	return b.String()
}

// InvalidDocument wraps ErrInvalidDocument with the offending file and cause.
func InvalidDocument(path string, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidDocument, path, fmt.Sprintf(format, args...))
}
