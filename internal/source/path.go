package source

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideDirectory is returned for paths that escape the document directory.
var ErrOutsideDirectory = errors.New("path is outside the document directory")

// PathValidator confines document paths to one directory.
type PathValidator struct {
	dir string
}

// NewPathValidator creates a validator for dir. The directory does not have
// to exist yet; until it does every path is accepted.
func NewPathValidator(dir string) (*PathValidator, error) {
	if dir == "" {
		return nil, fmt.Errorf("document directory cannot be empty")
	}
	return &PathValidator{dir: dir}, nil
}

// Directory returns the configured directory.
func (v *PathValidator) Directory() string { return v.dir }

// Resolve strips NUL bytes, anchors relative paths at the directory and
// returns the absolute path once it is known to stay inside.
func (v *PathValidator) Resolve(path string) (string, error) {
	path = strings.ReplaceAll(path, "\x00", "")
	if path == "" {
		return "", fmt.Errorf("path cannot be empty")
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(v.dir, path)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	if err := v.Check(abs); err != nil {
		return "", err
	}
	return abs, nil
}

// Check returns ErrOutsideDirectory when path, or the target of any symlink
// along it, lies outside the directory.
func (v *PathValidator) Check(path string) error {
	if path == "" {
		return fmt.Errorf("path cannot be empty")
	}
	if _, err := os.Stat(v.dir); os.IsNotExist(err) {
		return nil
	}

	inside, err := v.within(path)
	if err != nil {
		return fmt.Errorf("path validation failed: %w", err)
	}
	if !inside {
		return fmt.Errorf("%w: %s", ErrOutsideDirectory, path)
	}
	return nil
}

func (v *PathValidator) within(path string) (bool, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false, fmt.Errorf("failed to resolve path: %w", err)
	}
	absDir, err := filepath.Abs(v.dir)
	if err != nil {
		return false, fmt.Errorf("failed to resolve directory: %w", err)
	}

	clean := filepath.Clean(abs)
	dirs := []string{filepath.Clean(absDir)}
	if real, err := filepath.EvalSymlinks(dirs[0]); err == nil && real != dirs[0] {
		dirs = append(dirs, real)
	}

	return underAny(clean, dirs) && underAny(resolve(clean), dirs), nil
}

// resolve follows every symlink in path. Components that do not exist yet are
// appended to the nearest existing ancestor unresolved. A dangling symlink
// resolves to "", which is never inside a directory.
func resolve(path string) string {
	rest := ""
	for p := path; ; {
		if real, err := filepath.EvalSymlinks(p); err == nil {
			return filepath.Join(real, rest)
		}
		if info, err := os.Lstat(p); err == nil && info.Mode()&os.ModeSymlink != 0 {
			return ""
		}
		parent := filepath.Dir(p)
		if parent == p {
			return path
		}
		rest = filepath.Join(filepath.Base(p), rest)
		p = parent
	}
}

func underAny(path string, dirs []string) bool {
	for _, dir := range dirs {
		if path == dir {
			return true
		}
		prefix := dir
		if !strings.HasSuffix(prefix, string(filepath.Separator)) {
			prefix += string(filepath.Separator)
		}
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
