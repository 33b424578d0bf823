package document

import (
	"context"
	"io"
)

// ViewRenderer turns a view name and model into HTML.
type ViewRenderer interface {
	Render(ctx context.Context, view string, model any) (string, error)
}

// ViewRendererFunc adapts a function to a ViewRenderer.
type ViewRendererFunc func(ctx context.Context, view string, model any) (string, error)

func (f ViewRendererFunc) Render(ctx context.Context, view string, model any) (string, error) {
	return f(ctx, view, model)
}

// StyleResolver maps a stylesheet reference to a concrete file path or URL.
type StyleResolver interface {
	Resolve(path string) (string, error)
}

// Pipeline opens PDF documents with a fixed page geometry.
type Pipeline interface {
	Open(ctx context.Context, settings Settings) (Document, error)
}

// Document is an open HTML-to-PDF conversion. Close must be called on every
// path once Open succeeded.
type Document interface {
	AddStyleSheet(location string) error
	Render(ctx context.Context, html string, w io.Writer) error
	Close() error
}
