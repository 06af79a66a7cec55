// Package security confines file access of the MCP tools to one directory.
package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	pdferrors "github.com/a3tai/pdfslot/internal/pdf/errors"
)

// PathValidator resolves user supplied paths against a configured directory
// and rejects anything that escapes it, including through symlinks.
type PathValidator struct {
	configuredDirectory string
	realDirectory       string
}

// NewPathValidator creates a validator for dir, which must exist
func NewPathValidator(dir string) (*PathValidator, error) {
	if dir == "" {
		return nil, fmt.Errorf("configured directory cannot be empty")
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve configured directory: %w", err)
	}
	realDir, err := filepath.EvalSymlinks(absDir)
	if err != nil {
		return nil, fmt.Errorf("cannot access configured directory %s: %w", dir, err)
	}

	info, err := os.Stat(realDir)
	if err != nil {
		return nil, fmt.Errorf("cannot access configured directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("configured path is not a directory: %s", dir)
	}

	return &PathValidator{
		configuredDirectory: filepath.Clean(absDir),
		realDirectory:       realDir,
	}, nil
}

// Directory returns the configured directory as an absolute path
func (v *PathValidator) Directory() string {
	return v.configuredDirectory
}

// Resolve returns the absolute form of path inside the configured directory.
// Relative paths are taken relative to it. The target need not exist, but
// its nearest existing ancestor is resolved through symlinks and must stay
// inside the directory.
func (v *PathValidator) Resolve(path string) (string, error) {
	path = strings.ReplaceAll(path, "\x00", "")
	if strings.TrimSpace(path) == "" {
		return "", pdferrors.New(pdferrors.ErrorTypeInvalidRequest, "path cannot be empty")
	}

	if !filepath.IsAbs(path) {
		path = filepath.Join(v.configuredDirectory, path)
	}
	clean := filepath.Clean(path)

	if !v.contains(clean) {
		return "", outside(path)
	}

	resolved, err := realPath(clean)
	if err != nil {
		return "", pdferrors.Wrap(pdferrors.ErrorTypeInvalidRequest, err, "failed to resolve path").
			WithContext(path)
	}
	if !v.contains(resolved) {
		return "", outside(path)
	}

	return clean, nil
}

// ResolveFile is Resolve for a path that must name an existing regular file
func (v *PathValidator) ResolveFile(path string) (string, error) {
	resolved, err := v.Resolve(path)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", pdferrors.Newf(pdferrors.ErrorTypeNotFound, "file not found: %s", path)
		}
		return "", pdferrors.Wrap(pdferrors.ErrorTypeInvalidRequest, err, "cannot access file").
			WithContext(path)
	}
	if !info.Mode().IsRegular() {
		return "", pdferrors.Newf(pdferrors.ErrorTypeInvalidRequest, "not a regular file: %s", path)
	}

	return resolved, nil
}

// contains reports whether p is the directory itself or below it, comparing
// against both the configured and the symlink-free form.
func (v *PathValidator) contains(p string) bool {
	for _, dir := range []string{v.configuredDirectory, v.realDirectory} {
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			continue
		}
		if rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))) {
			return true
		}
	}
	return false
}

// realPath evaluates symlinks of the longest existing prefix of p and
// appends the remaining, not yet existing, elements.
func realPath(p string) (string, error) {
	var missing []string
	current := p
	for {
		resolved, err := filepath.EvalSymlinks(current)
		if err == nil {
			for i := len(missing) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, missing[i])
			}
			return resolved, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		// a dangling symlink would be followed on write
		if _, lerr := os.Lstat(current); lerr == nil {
			return "", fmt.Errorf("dangling symlink: %s", current)
		}

		parent := filepath.Dir(current)
		if parent == current {
			return p, nil
		}
		missing = append(missing, filepath.Base(current))
		current = parent
	}
}

func outside(path string) error {
	return pdferrors.Newf(pdferrors.ErrorTypeInvalidRequest, "path is outside configured directory: %s", path)
}
