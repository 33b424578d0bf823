package document

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Request describes one view-to-PDF conversion. It is built per HTTP action
// and discarded once the response has been sent.
type Request struct {
	viewName string
	model    any
	fileName string
	download bool
	html     string

	StyleSheets []string
	Settings    Settings
}

// Option customises a Request during NewRequest.
type Option func(*Request) error

// WithModel sets the data passed to the view.
func WithModel(model any) Option {
	return func(r *Request) error {
		r.model = model
		return nil
	}
}

// WithFileName overrides the generated output file name. An empty name is
// rejected.
func WithFileName(name string) Option {
	return func(r *Request) error {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("%w: file name is empty", ErrInvalidArgument)
		}
		r.fileName = name
		return nil
	}
}

// WithDownload controls the content-disposition header.
func WithDownload(download bool) Option {
	return func(r *Request) error {
		r.download = download
		return nil
	}
}

// WithStyleSheets appends stylesheet references in order.
func WithStyleSheets(paths ...string) Option {
	return func(r *Request) error {
		r.StyleSheets = append(r.StyleSheets, paths...)
		return nil
	}
}

// WithSettings replaces the default page geometry.
func WithSettings(s Settings) Option {
	return func(r *Request) error {
		r.Settings = s
		return nil
	}
}

// NewRequest builds a Request for the named view. Defaults: no model,
// download forced, DefaultSettings and a generated file name.
func NewRequest(viewName string, opts ...Option) (*Request, error) {
	if strings.TrimSpace(viewName) == "" {
		return nil, fmt.Errorf("%w: view name is empty", ErrInvalidArgument)
	}

	r := &Request{
		viewName: viewName,
		fileName: GenerateFileName(),
		download: true,
		Settings: DefaultSettings(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// GenerateFileName returns an upper-case UUID with a .pdf suffix.
func GenerateFileName() string {
	return strings.ToUpper(uuid.NewString()) + ".pdf"
}

func (r *Request) ViewName() string { return r.viewName }
func (r *Request) Model() any       { return r.model }
func (r *Request) FileName() string { return r.fileName }
func (r *Request) Download() bool   { return r.download }

// HTML returns the normalized markup. It is empty until Execute has rendered
// the view.
func (r *Request) HTML() string { return r.html }
