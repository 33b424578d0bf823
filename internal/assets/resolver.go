// Package assets maps stylesheet references to files under the public asset
// root or to remote URLs.
package assets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrStyleSheetNotFound = errors.New("stylesheet not found")
	ErrPathTraversal      = errors.New("stylesheet path escapes asset root")
)

// Resolver resolves "~/css/site.css", "/css/site.css" and "css/site.css"
// against Root. http(s) URLs are returned unchanged.
type Resolver struct {
	Root string
}

// NewResolver returns a Resolver for root, made absolute.
func NewResolver(root string) (*Resolver, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	return &Resolver{Root: abs}, nil
}

// Resolve returns an absolute file path or the original URL.
func (r *Resolver) Resolve(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", fmt.Errorf("%w: empty path", ErrStyleSheetNotFound)
	}
	if IsRemote(path) {
		return path, nil
	}

	rel := strings.TrimPrefix(path, "~")
	rel = strings.TrimLeft(filepath.FromSlash(rel), string(filepath.Separator))
	abs := filepath.Join(r.Root, rel)
	if !isPathUnderDir(abs, r.Root) {
		return "", fmt.Errorf("%w: %s", ErrPathTraversal, path)
	}

	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrStyleSheetNotFound, path)
		}
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s is a directory", ErrStyleSheetNotFound, path)
	}
	return abs, nil
}

// IsRemote reports whether location is an http(s) URL.
func IsRemote(location string) bool {
	lower := strings.ToLower(location)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

func isPathUnderDir(absPath, dir string) bool {
	cleanPath := filepath.Clean(absPath)
	cleanDir := filepath.Clean(dir)
	if !strings.HasSuffix(cleanDir, string(filepath.Separator)) {
		cleanDir += string(filepath.Separator)
	}
	return strings.HasPrefix(cleanPath+string(filepath.Separator), cleanDir)
}
