package main

import (
	"io"
	"time"

	flag "github.com/spf13/pflag"
)

// renderFlags holds all flags of viewpdf-render.
type renderFlags struct {
	config      string
	view        string
	model       string
	output      string
	baseURL     string
	styleSheets []string
	pageSize    string
	landscape   bool
	margin      float64
	marginSet   bool
	viewsDir    string
	assetsRoot  string
	timeout     time.Duration
}

func parseFlags(args []string, stderr io.Writer) (*renderFlags, error) {
	fs := flag.NewFlagSet("viewpdf-render", flag.ContinueOnError)
	fs.SetOutput(stderr)
	f := &renderFlags{}

	fs.StringVarP(&f.config, "config", "c", "", "config file path (defaults apply when empty)")
	fs.StringVar(&f.view, "view", "", "view name, e.g. invoices/detail")
	fs.StringVarP(&f.model, "model", "m", "", "JSON file with the view model")
	fs.StringVarP(&f.output, "out", "o", "", "output file (\"-\" = stdout, empty = generated name)")
	fs.StringVar(&f.baseURL, "base-url", "", "scheme://host used to absolutize image URLs")
	fs.StringArrayVarP(&f.styleSheets, "stylesheet", "s", nil, "stylesheet path or URL (repeatable)")
	fs.StringVarP(&f.pageSize, "page-size", "p", "", "page size: A3, A4, A5, LETTER, LEGAL")
	fs.BoolVar(&f.landscape, "landscape", false, "rotate the page to landscape")
	fs.Float64Var(&f.margin, "margin", 0, "uniform page margin in points (default from config)")
	fs.StringVar(&f.viewsDir, "views-dir", "", "override views.dir")
	fs.StringVar(&f.assetsRoot, "assets-root", "", "override assets.root")
	fs.DurationVarP(&f.timeout, "timeout", "t", 0, "overall render timeout (e.g. 30s, 2m; 0 = none)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	f.marginSet = fs.Changed("margin")
	if f.view == "" && fs.NArg() > 0 {
		f.view = fs.Arg(0)
	}
	return f, nil
}
