// Package views renders named templates from a views directory. Two engines
// are available: Go's html/template and pongo2 (Django syntax).
package views

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"viewpdf/internal/document"
	u "viewpdf/internal/utils"
)

// ErrViewNotFound is returned when no template file exists for a view name.
var ErrViewNotFound = errors.New("view not found")

// NewEngine builds the engine selected by cfg.Views.Engine.
func NewEngine(cfg u.Config) (document.ViewRenderer, error) {
	switch cfg.Views.Engine {
	case "", "html":
		return NewTemplateEngine(cfg.Views.Dir, cfg.Views.Extension), nil
	case "pongo2":
		return NewPongoEngine(cfg.Views.Dir, cfg.Views.Extension)
	default:
		return nil, fmt.Errorf("unknown view engine %q", cfg.Views.Engine)
	}
}

// viewFile maps a view name such as "invoices/detail" to a file under dir.
func viewFile(dir, view, ext string) (string, error) {
	name := filepath.FromSlash(strings.TrimSpace(view))
	if ext != "" && !strings.HasSuffix(name, ext) {
		name += ext
	}
	if name == "" || filepath.IsAbs(name) || strings.HasPrefix(filepath.Clean(name), "..") {
		return "", fmt.Errorf("%w: %s", ErrViewNotFound, view)
	}
	path := filepath.Join(dir, name)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrViewNotFound, view)
	}
	return path, nil
}
