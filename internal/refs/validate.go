package refs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/starford/ctxcache/internal/apperr"
)

// ValidatePath checks a candidate reference against projectRoot and returns
// its normalized form. Rejections are reported as *apperr.PathError; any
// other error is an I/O failure.
//
// The lexical checks run before the filesystem is touched.
func ValidatePath(raw, projectRoot string) (string, error) {
	if strings.HasPrefix(raw, "/") {
		return "", &apperr.PathError{Path: raw, Reason: apperr.ReasonAbsolute}
	}
	if strings.Contains(raw, "..") {
		return "", &apperr.PathError{Path: raw, Reason: apperr.ReasonParentTraversal}
	}

	normalized := Normalize(raw)
	info, err := os.Stat(Resolve(projectRoot, normalized))
	if err != nil {
		if IsNotExist(err) {
			return "", &apperr.PathError{Path: raw, Reason: apperr.ReasonNotFound}
		}
		return "", fmt.Errorf("refs: stat %s: %w", normalized, err)
	}
	if info.IsDir() {
		return "", &apperr.PathError{Path: raw, Reason: apperr.ReasonIsDirectory}
	}
	return normalized, nil
}

// IsNotExist reports whether err means the path has no entry, including
// when a parent component is a regular file.
func IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR)
}

// Resolve joins a forward-slash reference onto projectRoot.
func Resolve(projectRoot, ref string) string {
	return filepath.Join(projectRoot, filepath.FromSlash(ref))
}
