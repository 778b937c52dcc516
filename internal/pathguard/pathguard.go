// Package pathguard enforces the daemon's filesystem allow-list: every
// path a tool touches must resolve, symlinks included, under one of a
// fixed set of configured roots.
package pathguard

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/aitoolkit/librarian-mcp/internal/apperr"
)

// Guard resolves and validates paths against a fixed set of allowed roots.
type Guard struct {
	roots []string // absolute, cleaned, no trailing separator
}

// New builds a Guard from a list of allow-listed root directories. Each
// root is made absolute and cleaned; roots that don't exist are kept
// (they may be created later) but will never resolve a live symlink
// escape check until they do.
func New(roots []string) (*Guard, error) {
	if len(roots) == 0 {
		return nil, apperr.New(apperr.InvalidArgument, "pathguard: at least one allowed root is required")
	}
	g := &Guard{}
	for _, r := range roots {
		abs, err := filepath.Abs(r)
		if err != nil {
			return nil, apperr.Wrap(apperr.InvalidArgument, err, "pathguard: resolve root")
		}
		g.roots = append(g.roots, filepath.Clean(abs))
	}
	return g, nil
}

// Roots returns the configured allow-list, for list_allowed_directories.
func (g *Guard) Roots() []string {
	out := make([]string, len(g.roots))
	copy(out, g.roots)
	return out
}

// Resolve validates that path (absolute or relative-to-cwd) lies within an
// allowed root and returns its cleaned absolute form. It follows symlinks
// for every existing path component and rejects any that escape the
// allow-list, so a symlink planted inside an allowed root can't be used to
// read or write outside it.
func (g *Guard) Resolve(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", apperr.Wrap(apperr.InvalidArgument, err, "pathguard: resolve path")
	}
	abs = filepath.Clean(abs)

	if !g.withinAnyRoot(abs) {
		return "", apperr.Newf(apperr.PermissionDenied, "path %q is outside the allowed roots", path)
	}

	real, err := resolveSymlinks(abs)
	if err != nil {
		return "", apperr.Wrap(apperr.Internal, err, "pathguard: resolve symlinks")
	}
	if !g.withinAnyRoot(real) {
		return "", apperr.Newf(apperr.PermissionDenied, "path %q escapes the allowed roots via a symlink", path)
	}
	return real, nil
}

// ResolveForCreate is like Resolve but tolerates the final path component
// not existing yet (for write_file, create_directory, move_file targets).
// It validates the deepest existing ancestor and rejects if that ancestor
// escapes the allow-list.
func (g *Guard) ResolveForCreate(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", apperr.Wrap(apperr.InvalidArgument, err, "pathguard: resolve path")
	}
	abs = filepath.Clean(abs)
	if !g.withinAnyRoot(abs) {
		return "", apperr.Newf(apperr.PermissionDenied, "path %q is outside the allowed roots", path)
	}

	ancestor := abs
	for {
		if _, err := os.Lstat(ancestor); err == nil {
			break
		}
		parent := filepath.Dir(ancestor)
		if parent == ancestor {
			break
		}
		ancestor = parent
	}
	real, err := resolveSymlinks(ancestor)
	if err != nil {
		return "", apperr.Wrap(apperr.Internal, err, "pathguard: resolve symlinks")
	}
	if !g.withinAnyRoot(real) {
		return "", apperr.Newf(apperr.PermissionDenied, "path %q escapes the allowed roots via a symlink", path)
	}
	return abs, nil
}

func (g *Guard) withinAnyRoot(abs string) bool {
	for _, root := range g.roots {
		if abs == root || strings.HasPrefix(abs, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// resolveSymlinks walks path component by component, resolving any
// symlink encountered, and returns the fully resolved absolute path. It
// does not require the final component to exist.
func resolveSymlinks(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err == nil {
		return filepath.Clean(resolved), nil
	}
	if !os.IsNotExist(err) {
		return "", err
	}
	// Final component doesn't exist: resolve the parent and reattach.
	parent, base := filepath.Dir(path), filepath.Base(path)
	if parent == path {
		return path, nil
	}
	resolvedParent, perr := resolveSymlinks(parent)
	if perr != nil {
		return "", perr
	}
	return filepath.Join(resolvedParent, base), nil
}
