// Package pathutil locates project directories and confines file paths
// received from clients to them.
package pathutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// ErrOutsideRoots is returned by Confine when a path does not land inside
// any of the permitted roots once symlinks are followed.
var ErrOutsideRoots = errors.New("path is outside the projects directory")

// RedactPath reduces a full path to .../<parent>/<basename> for log lines
// and error messages. "/home/user/CognitiveMaps/climate.json" becomes
// ".../CognitiveMaps/climate.json".
func RedactPath(path string) string {
	if path == "" {
		return ""
	}
	cleaned := filepath.Clean(path)
	base := filepath.Base(cleaned)
	parent := filepath.Base(filepath.Dir(cleaned))
	if parent == "." || parent == string(filepath.Separator) {
		return base
	}
	return ".../" + parent + "/" + base
}

// Confine makes path absolute and checks that it lies within one of roots.
// Containment is decided on the symlink-resolved form, so a link inside a
// root that points elsewhere is rejected. The returned path is the cleaned
// absolute path as given, not the resolved one.
func Confine(path string, roots []string) (string, error) {
	switch {
	case strings.TrimSpace(path) == "":
		return "", errors.New("path is empty")
	case strings.ContainsRune(path, 0):
		return "", errors.New("path contains a null byte")
	case len(roots) == 0:
		return "", errors.New("no projects directory configured")
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", RedactPath(path), err)
	}
	resolved, err := evalPartial(abs)
	if err != nil {
		return "", err
	}
	for _, root := range roots {
		rootAbs, err := filepath.Abs(root)
		if err != nil {
			continue
		}
		rootReal, err := evalPartial(rootAbs)
		if err != nil {
			continue
		}
		if within(rootReal, resolved) {
			return abs, nil
		}
	}
	return "", fmt.Errorf("%s: %w", RedactPath(abs), ErrOutsideRoots)
}

// evalPartial follows symlinks in the longest existing prefix of an absolute
// path and appends the remaining components unchanged. The target of a save
// and some of its parent directories need not exist yet.
func evalPartial(abs string) (string, error) {
	var tail []string
	cur := abs
	for {
		resolved, err := filepath.EvalSymlinks(cur)
		if err == nil {
			for i := len(tail) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, tail[i])
			}
			return resolved, nil
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return "", fmt.Errorf("resolving %s: %w", RedactPath(abs), err)
		}
		tail = append(tail, filepath.Base(cur))
		cur = parent
	}
}

// within reports whether target is root or below it.
func within(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// DefaultProjectsDir returns the directory new projects are stored in:
// Documents/CognitiveMaps on Windows, otherwise $XDG_DATA_HOME/CognitiveMaps
// falling back to ~/.local/share/CognitiveMaps.
func DefaultProjectsDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	if runtime.GOOS == "windows" {
		return filepath.Join(homeDir, "Documents", "CognitiveMaps"), nil
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" && filepath.IsAbs(xdg) {
		return filepath.Join(xdg, "CognitiveMaps"), nil
	}
	return filepath.Join(homeDir, ".local", "share", "CognitiveMaps"), nil
}

// AllowedProjectDirs returns the non-empty directories among dirs, cleaned
// and made absolute, for use as Confine roots.
func AllowedProjectDirs(dirs ...string) []string {
	var out []string
	for _, d := range dirs {
		if d == "" {
			continue
		}
		abs, err := filepath.Abs(filepath.Clean(d))
		if err != nil {
			continue
		}
		out = append(out, abs)
	}
	return out
}
