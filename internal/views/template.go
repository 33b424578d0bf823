package views

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// partialsDir holds shared templates parsed alongside every view.
const partialsDir = "_partials"

// TemplateEngine renders html/template views. Parsed templates are cached
// per view name.
type TemplateEngine struct {
	Dir   string
	Ext   string
	Funcs template.FuncMap

	mu    sync.RWMutex
	cache map[string]*template.Template
}

func NewTemplateEngine(dir, ext string) *TemplateEngine {
	if ext == "" {
		ext = ".html"
	}
	return &TemplateEngine{
		Dir:   dir,
		Ext:   ext,
		Funcs: defaultFuncs(),
		cache: make(map[string]*template.Template),
	}
}

// Render executes the view with model as its data.
func (e *TemplateEngine) Render(ctx context.Context, view string, model any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	tmpl, err := e.lookup(view)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, model); err != nil {
		return "", fmt.Errorf("execute %s: %w", view, err)
	}
	return buf.String(), nil
}

func (e *TemplateEngine) lookup(view string) (*template.Template, error) {
	e.mu.RLock()
	tmpl, ok := e.cache[view]
	e.mu.RUnlock()
	if ok {
		return tmpl, nil
	}

	path, err := viewFile(e.Dir, view, e.Ext)
	if err != nil {
		return nil, err
	}

	tmpl, err = template.New(filepath.Base(path)).Funcs(e.Funcs).ParseFiles(path)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", view, err)
	}
	partials, _ := filepath.Glob(filepath.Join(e.Dir, partialsDir, "*"+e.Ext))
	if len(partials) > 0 {
		if tmpl, err = tmpl.ParseFiles(partials...); err != nil {
			return nil, fmt.Errorf("parse partials for %s: %w", view, err)
		}
	}

	e.mu.Lock()
	if e.cache == nil {
		e.cache = make(map[string]*template.Template)
	}
	e.cache[view] = tmpl
	e.mu.Unlock()
	return tmpl, nil
}

func defaultFuncs() template.FuncMap {
	return template.FuncMap{
		"upper": strings.ToUpper,
		"lower": strings.ToLower,
		"join":  strings.Join,
		"now":   time.Now,
		"default": func(def, value any) any {
			if value == nil {
				return def
			}
			if s, ok := value.(string); ok && s == "" {
				return def
			}
			return value
		},
		"formatDate": func(layout string, t time.Time) string {
			return t.Format(layout)
		},
	}
}
