package views

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/flosch/pongo2/v6"
)

// PongoEngine renders pongo2 views. The model is available as "model"; map
// models are also merged into the top-level context.
type PongoEngine struct {
	Dir string
	Ext string
	set *pongo2.TemplateSet
}

func NewPongoEngine(dir, ext string) (*PongoEngine, error) {
	if ext == "" {
		ext = ".html"
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	loader, err := pongo2.NewLocalFileSystemLoader(abs)
	if err != nil {
		return nil, fmt.Errorf("pongo2 loader: %w", err)
	}
	return &PongoEngine{
		Dir: abs,
		Ext: ext,
		set: pongo2.NewSet("views", loader),
	}, nil
}

func (e *PongoEngine) Render(ctx context.Context, view string, model any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path, err := viewFile(e.Dir, view, e.Ext)
	if err != nil {
		return "", err
	}
	tpl, err := e.set.FromCache(path)
	if err != nil {
		return "", fmt.Errorf("parse %s: %w", view, err)
	}

	data := pongo2.Context{"model": model}
	if m, ok := model.(map[string]any); ok {
		for k, v := range m {
			if k != "model" {
				data[k] = v
			}
		}
	}
	out, err := tpl.Execute(data)
	if err != nil {
		return "", fmt.Errorf("execute %s: %w", view, err)
	}
	return out, nil
}
