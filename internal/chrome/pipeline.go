package chrome

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"viewpdf/internal/assets"
	"viewpdf/internal/document"
	u "viewpdf/internal/utils"
)

const (
	pointsPerInch  = 72.0
	acquireTimeout = 5 * time.Second
	settleDelay    = 200 * time.Millisecond
)

// Pipeline implements document.Pipeline on headless Chrome.
type Pipeline struct {
	Config u.Config

	poolMu  sync.Mutex
	pool    *Pool
	poolErr error
}

func NewPipeline(cfg u.Config) *Pipeline {
	return &Pipeline{Config: cfg}
}

// Pool returns the shared tab pool, creating it on first use. A nil pool
// with nil error means pooling is disabled.
func (p *Pipeline) Pool() (*Pool, error) {
	p.poolMu.Lock()
	defer p.poolMu.Unlock()

	if p.Config.PDF.ChromePoolSize <= 0 {
		return nil, nil
	}
	if p.pool != nil {
		return p.pool, nil
	}
	pool, err := NewPool(p.Config)
	if err != nil {
		p.poolErr = err
		return nil, err
	}
	p.pool, p.poolErr = pool, nil
	return pool, nil
}

// Close stops the shared browser, if any.
func (p *Pipeline) Close() {
	p.poolMu.Lock()
	defer p.poolMu.Unlock()
	if p.pool != nil {
		p.pool.Close()
		p.pool = nil
	}
}

func (p *Pipeline) timeout() time.Duration {
	if p.Config.PDF.TimeoutSecs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(p.Config.PDF.TimeoutSecs) * time.Second
}

// Open checks out a tab (or starts a private browser when pooling is off).
// The returned document must be closed.
func (p *Pipeline) Open(ctx context.Context, settings document.Settings) (document.Document, error) {
	pool, err := p.Pool()
	if err != nil {
		return nil, err
	}
	doc := &pdfDocument{pipeline: p, pool: pool, settings: settings}

	if pool == nil {
		if err := doc.startPrivateBrowser(); err != nil {
			return nil, err
		}
		return doc, nil
	}

	acquireCtx, cancel := context.WithTimeout(ctx, acquireTimeout)
	defer cancel()
	tab, err := pool.Acquire(acquireCtx)
	if err != nil {
		return nil, fmt.Errorf("acquire chrome tab: %w", err)
	}
	doc.tab = tab
	return doc, nil
}

type pdfDocument struct {
	pipeline *Pipeline
	pool     *Pool
	settings document.Settings

	tab *Tab

	// private browser, pooling disabled
	profileDir    string
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	styles []string
	links  []string
	closed bool
}

func (d *pdfDocument) startPrivateBrowser() error {
	dir, err := createProfileDir(d.pipeline.Config)
	if err != nil {
		return err
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(d.pipeline.Config, dir)...)
	d.profileDir = dir
	d.allocCancel = allocCancel
	d.browserCtx, d.browserCancel = chromedp.NewContext(allocCtx)
	return nil
}

// AddStyleSheet registers a resolved stylesheet. Files are inlined; remote
// URLs are linked.
func (d *pdfDocument) AddStyleSheet(location string) error {
	if assets.IsRemote(location) {
		d.links = append(d.links, location)
		return nil
	}
	css, err := os.ReadFile(location)
	if err != nil {
		return fmt.Errorf("read stylesheet: %w", err)
	}
	d.styles = append(d.styles, string(css))
	return nil
}

func (d *pdfDocument) Render(ctx context.Context, htmlContent string, w io.Writer) error {
	if d.closed {
		return errors.New("document is closed")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	htmlContent = injectStyles(htmlContent, d.links, d.styles)

	pdf, err := d.renderOnce(ctx, htmlContent)
	if err != nil && d.pool != nil && ctx.Err() == nil && IsSessionInterrupted(err) {
		u.Warn("Chrome session interrupted; restarting pool and retrying once", "error", err)
		d.pool.Release(d.tab, err)
		d.tab = nil
		_ = d.pool.Restart()

		acquireCtx, cancel := context.WithTimeout(ctx, acquireTimeout)
		tab, aerr := d.pool.Acquire(acquireCtx)
		cancel()
		if aerr != nil {
			return fmt.Errorf("reacquire chrome tab: %w", aerr)
		}
		d.tab = tab
		pdf, err = d.renderOnce(ctx, htmlContent)
	}
	if err != nil {
		return err
	}
	_, err = w.Write(pdf)
	return err
}

func (d *pdfDocument) renderOnce(ctx context.Context, htmlContent string) ([]byte, error) {
	parent := d.browserCtx
	if d.tab != nil {
		parent = d.tab.Ctx
	}
	if parent == nil {
		return nil, errors.New("no browser context")
	}

	execCtx, cancel := context.WithTimeout(parent, d.pipeline.timeout())
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return renderInTab(execCtx, htmlContent, d.settings)
}

// Close returns the tab to the pool or shuts the private browser down.
func (d *pdfDocument) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	if d.tab != nil {
		d.pool.Release(d.tab, nil)
		d.tab = nil
	}
	if d.browserCancel != nil {
		d.browserCancel()
	}
	if d.allocCancel != nil {
		d.allocCancel()
	}
	if d.profileDir != "" {
		return os.RemoveAll(d.profileDir)
	}
	return nil
}

// renderInTab loads htmlContent into a blank page and prints it.
func renderInTab(ctx context.Context, htmlContent string, settings document.Settings) ([]byte, error) {
	params := printParams(settings)
	var pdf []byte
	err := chromedp.Run(ctx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			frame, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(frame.Frame.ID, htmlContent).Do(ctx)
		}),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(settleDelay),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			pdf, _, err = params.Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, err
	}
	return pdf, nil
}

func printParams(s document.Settings) *page.PrintToPDFParams {
	return page.PrintToPDF().
		WithPrintBackground(true).
		WithPaperWidth(s.PageSize.Width / pointsPerInch).
		WithPaperHeight(s.PageSize.Height / pointsPerInch).
		WithMarginTop(s.Margin.Top / pointsPerInch).
		WithMarginBottom(s.Margin.Bottom / pointsPerInch).
		WithMarginLeft(s.Margin.Left / pointsPerInch).
		WithMarginRight(s.Margin.Right / pointsPerInch)
}

// injectStyles places <link> and <style> elements before </head>, after the
// opening <body>, or at the start of the markup, in that order of preference.
func injectStyles(htmlContent string, links, styles []string) string {
	if len(links) == 0 && len(styles) == 0 {
		return htmlContent
	}

	var block strings.Builder
	for _, href := range links {
		block.WriteString(`<link rel="stylesheet" href="`)
		block.WriteString(html.EscapeString(href))
		block.WriteString(`">`)
	}
	for _, css := range styles {
		block.WriteString("<style>")
		block.WriteString(strings.ReplaceAll(css, "</", `<\/`))
		block.WriteString("</style>")
	}
	tags := block.String()

	if idx := indexFold(htmlContent, "</head>"); idx != -1 {
		return htmlContent[:idx] + tags + htmlContent[idx:]
	}
	if idx := indexFold(htmlContent, "<body"); idx != -1 {
		if end := strings.Index(htmlContent[idx:], ">"); end != -1 {
			pos := idx + end + 1
			return htmlContent[:pos] + tags + htmlContent[pos:]
		}
	}
	return tags + htmlContent
}

// indexFold finds an ASCII tag token in s ignoring ASCII case. Offsets are
// those of s itself.
func indexFold(s, token string) int {
	n := len(token)
	for i := 0; i+n <= len(s); i++ {
		match := true
		for j := 0; j < n; j++ {
			if lowerASCII(s[i+j]) != lowerASCII(token[j]) {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

func lowerASCII(b byte) byte {
	if 'A' <= b && b <= 'Z' {
		return b + 'a' - 'A'
	}
	return b
}
