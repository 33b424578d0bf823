package document

import (
	"bytes"
	"context"
	"fmt"
)

// Executor runs the render sequence for a Request. It keeps no per-request
// state and may be shared between goroutines when its collaborators can.
type Executor struct {
	Views    ViewRenderer
	Styles   StyleResolver
	Pipeline Pipeline
}

// Execute renders req and writes the PDF to w. Errors from the view renderer
// come back as *RenderError and pipeline failures as *PipelineError; nothing
// is retried and no body is sent on failure.
func (e *Executor) Execute(ctx context.Context, req *Request, base BaseURL, w Response) error {
	if req == nil {
		return fmt.Errorf("%w: request is nil", ErrInvalidArgument)
	}
	if err := req.Settings.Validate(); err != nil {
		return err
	}

	w.Set(headerContentType, ContentTypePDF)
	if req.download {
		w.Set(headerContentDisposition, "attachment; filename="+req.fileName)
	}

	html, err := e.Views.Render(ctx, req.viewName, req.model)
	if err != nil {
		return &RenderError{View: req.viewName, Err: err}
	}

	html, err = NormalizeAssetURLs(html, base)
	if err != nil {
		return err
	}
	req.html = html

	pdf, err := e.emit(ctx, req)
	if err != nil {
		return err
	}
	return w.Send(pdf)
}

func (e *Executor) emit(ctx context.Context, req *Request) (_ []byte, err error) {
	doc, err := e.Pipeline.Open(ctx, req.Settings)
	if err != nil {
		return nil, &PipelineError{Op: "open", Err: err}
	}
	defer func() {
		if cerr := doc.Close(); cerr != nil && err == nil {
			err = &PipelineError{Op: "close", Err: cerr}
		}
	}()

	for _, path := range req.StyleSheets {
		location := path
		if e.Styles != nil {
			location, err = e.Styles.Resolve(path)
			if err != nil {
				return nil, &PipelineError{Op: "stylesheet", Err: err}
			}
		}
		if err := doc.AddStyleSheet(location); err != nil {
			return nil, &PipelineError{Op: "stylesheet", Err: err}
		}
	}

	var buf bytes.Buffer
	if err := doc.Render(ctx, req.html, &buf); err != nil {
		return nil, &PipelineError{Op: "render", Err: err}
	}
	return buf.Bytes(), nil
}
