// Command viewpdf-render renders a view to a PDF file without running the
// HTTP server.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	flag "github.com/spf13/pflag"

	"viewpdf/internal/assets"
	"viewpdf/internal/chrome"
	"viewpdf/internal/document"
	u "viewpdf/internal/utils"
	"viewpdf/internal/views"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

// pipelineFactory builds the PDF pipeline; replaced in tests.
type pipelineFactory func(cfg u.Config) (document.Pipeline, func())

func chromePipeline(cfg u.Config) (document.Pipeline, func()) {
	p := chrome.NewPipeline(cfg)
	return p, p.Close
}

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr, chromePipeline))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, newPipeline pipelineFactory) int {
	f, err := parseFlags(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return exitOK
	}
	if err != nil {
		return exitUsage
	}
	if f.view == "" {
		fmt.Fprintln(stderr, "error: --view is required")
		return exitUsage
	}

	if err := render(ctx, f, stdout, newPipeline); err != nil {
		fmt.Fprintln(stderr, "error:", err)
		if errors.Is(err, document.ErrInvalidArgument) {
			return exitUsage
		}
		return exitError
	}
	return exitOK
}

func loadConfig(f *renderFlags) (cfg u.Config, err error) {
	if f.config == "" {
		cfg = u.DefaultConfig()
	} else {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%v", r)
			}
		}()
		cfg = u.LoadConfigFrom(f.config)
	}
	if f.viewsDir != "" {
		cfg.Views.Dir = f.viewsDir
	}
	if f.assetsRoot != "" {
		cfg.Assets.Root = f.assetsRoot
	}
	if cfg.PDF.ChromePath == "" {
		cfg.PDF.ChromePath = os.Getenv("CHROME_BIN")
	}
	// One document per run; a shared pool buys nothing.
	cfg.PDF.ChromePoolSize = 0
	return cfg, nil
}

func render(ctx context.Context, f *renderFlags, stdout io.Writer, newPipeline pipelineFactory) error {
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}
	u.SetLogLevel(cfg.Logger.Level)

	if f.timeout < 0 {
		return fmt.Errorf("%w: timeout %s is negative", document.ErrInvalidArgument, f.timeout)
	}
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	req, err := buildRequest(f, cfg)
	if err != nil {
		return err
	}
	base, err := document.BaseURLFromString(firstNonEmpty(f.baseURL, cfg.Server.PublicBaseURL))
	if err != nil {
		return err
	}

	engine, err := views.NewEngine(cfg)
	if err != nil {
		return err
	}
	resolver, err := assets.NewResolver(cfg.Assets.Root)
	if err != nil {
		return err
	}
	pipeline, closePipeline := newPipeline(cfg)
	defer closePipeline()

	exec := &document.Executor{Views: engine, Styles: resolver, Pipeline: pipeline}
	rec := document.NewResponseRecorder()
	if err := exec.Execute(ctx, req, base, rec); err != nil {
		return err
	}
	return writeOutput(f.output, req.FileName(), rec.Body.Bytes(), stdout)
}

func buildRequest(f *renderFlags, cfg u.Config) (*document.Request, error) {
	var model any
	if f.model != "" {
		raw, err := os.ReadFile(f.model)
		if err != nil {
			return nil, fmt.Errorf("read model: %w", err)
		}
		if err := json.Unmarshal(raw, &model); err != nil {
			return nil, fmt.Errorf("%w: model %s is not valid JSON: %v", document.ErrInvalidArgument, f.model, err)
		}
	}

	name := strings.ToUpper(firstNonEmpty(f.pageSize, cfg.PDF.DefaultPaper))
	size, ok := document.PageSizeByName(name)
	if paper, found := cfg.PDF.PaperSizes[name]; found {
		size, ok = document.PageSize{Name: name, Width: paper.Width, Height: paper.Height}, true
	}
	if !ok {
		return nil, fmt.Errorf("%w: unknown page size %q", document.ErrInvalidArgument, name)
	}
	if f.landscape {
		size = size.Rotate()
	}

	margin := document.UniformMargin(cfg.PDF.DefaultMargin)
	if f.marginSet {
		margin = document.UniformMargin(f.margin)
	}

	return document.NewRequest(f.view,
		document.WithModel(model),
		document.WithStyleSheets(f.styleSheets...),
		document.WithSettings(document.Settings{PageSize: size, Margin: margin}),
	)
}

func writeOutput(path, fileName string, pdf []byte, stdout io.Writer) error {
	if path == "-" {
		_, err := stdout.Write(pdf)
		return err
	}
	if path == "" {
		path = fileName
		fmt.Fprintln(stdout, path)
	}
	return os.WriteFile(path, pdf, 0o644)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
