package chrome

import (
	"bytes"
	"context"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"viewpdf/internal/document"
)

func chromeBinaryPath(t *testing.T) string {
	t.Helper()
	if p := os.Getenv("CHROME_BIN"); p != "" {
		return p
	}
	for _, candidate := range []string{"google-chrome", "chromium", "chromium-browser"} {
		if p, err := exec.LookPath(candidate); err == nil {
			return p
		}
	}
	t.Skip("chromium binary not found; set CHROME_BIN to run this test")
	return ""
}

func TestPrintParams_ConvertsPointsToInches(t *testing.T) {
	params := printParams(document.DefaultSettings())
	assert.InDelta(t, 595.0/72, params.PaperWidth, 1e-9)
	assert.InDelta(t, 842.0/72, params.PaperHeight, 1e-9)
	for _, m := range []float64{params.MarginTop, params.MarginBottom, params.MarginLeft, params.MarginRight} {
		assert.InDelta(t, 40.0/72, m, 1e-9)
	}
	assert.True(t, params.PrintBackground)
	assert.False(t, math.IsNaN(params.PaperWidth))
}

func TestInjectStyles(t *testing.T) {
	links := []string{"https://cdn.example.com/a.css?x=1&y=2"}
	styles := []string{"body{color:red}</style><script>"}

	out := injectStyles("<html><head><title>t</title></head><body></body></html>", links, styles)
	head := out[:strings.Index(out, "</head>")]
	assert.Contains(t, head, `<link rel="stylesheet" href="https://cdn.example.com/a.css?x=1&amp;y=2">`)
	assert.Contains(t, head, `<style>body{color:red}<\/style><script></style>`)

	out = injectStyles(`<body class="x"><p>hi</p></body>`, nil, []string{"p{}"})
	assert.Equal(t, `<body class="x"><style>p{}</style><p>hi</p></body>`, out)

	out = injectStyles(`<p>hi</p>`, nil, []string{"p{}"})
	assert.Equal(t, `<style>p{}</style><p>hi</p>`, out)

	assert.Equal(t, "<p>hi</p>", injectStyles("<p>hi</p>", nil, nil))
}

func TestInjectStyles_NonASCIIText(t *testing.T) {
	in := "<html><head><title>ȺȺȺȺ İstanbul</title></HEAD><body>x</body></html>"
	out := injectStyles(in, nil, []string{"p{}"})
	assert.Equal(t, "<html><head><title>ȺȺȺȺ İstanbul</title><style>p{}</style></HEAD><body>x</body></html>", out)

	in = "<p>İİİ</p><BODY class=\"ş\">x</BODY>"
	out = injectStyles(in, nil, []string{"p{}"})
	assert.Equal(t, "<p>İİİ</p><BODY class=\"ş\"><style>p{}</style>x</BODY>", out)
}

func TestIndexFold(t *testing.T) {
	assert.Equal(t, 0, indexFold("</HeAd>", "</head>"))
	assert.Equal(t, len("İ"), indexFold("İ</head>", "</head>"))
	assert.Equal(t, -1, indexFold("</hea", "</head>"))
}

func TestDocumentAddStyleSheet(t *testing.T) {
	css := filepath.Join(t.TempDir(), "site.css")
	require.NoError(t, os.WriteFile(css, []byte("h1{}"), 0o644))

	d := &pdfDocument{}
	require.NoError(t, d.AddStyleSheet(css))
	require.NoError(t, d.AddStyleSheet("https://cdn.example.com/site.css"))
	assert.Equal(t, []string{"h1{}"}, d.styles)
	assert.Equal(t, []string{"https://cdn.example.com/site.css"}, d.links)

	assert.Error(t, d.AddStyleSheet(filepath.Join(t.TempDir(), "missing.css")))
}

func TestPipelineOpen_ClosedPool(t *testing.T) {
	p := NewPipeline(testConfig(1))
	pool := &Pool{sem: make(chan struct{}, 1), closed: true}
	p.pool = pool

	_, err := p.Open(context.Background(), document.DefaultSettings())
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestPipeline_ReleasesTabWhenRenderFails(t *testing.T) {
	p := NewPipeline(testConfig(1))
	pool := &Pool{sem: make(chan struct{}, 1), browserCtx: context.Background()}
	pool.sem <- struct{}{}
	p.pool = pool

	doc, err := p.Open(context.Background(), document.DefaultSettings())
	require.NoError(t, err)
	assert.Equal(t, 1, pool.Stats(1).InUse)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var buf bytes.Buffer
	err = doc.Render(ctx, "<p>hi</p>", &buf)
	require.Error(t, err)
	assert.Zero(t, buf.Len())

	require.NoError(t, doc.Close())
	require.NoError(t, doc.Close())
	st := pool.Stats(1)
	assert.Equal(t, 0, st.InUse)
	assert.Equal(t, 1, st.Idle)
	assert.Equal(t, 0, st.Restarts)
}

func TestPipeline_PrivateBrowserCleansProfile(t *testing.T) {
	cfg := testConfig(0)
	cfg.PDF.UserDataDir = t.TempDir()
	cfg.PDF.ChromePath = "/definitely/missing/chrome"
	p := NewPipeline(cfg)

	doc, err := p.Open(context.Background(), document.DefaultSettings())
	require.NoError(t, err)
	entries, _ := os.ReadDir(cfg.PDF.UserDataDir)
	assert.Len(t, entries, 1)

	err = doc.Render(context.Background(), "<p>hi</p>", &bytes.Buffer{})
	assert.Error(t, err)

	require.NoError(t, doc.Close())
	entries, _ = os.ReadDir(cfg.PDF.UserDataDir)
	assert.Empty(t, entries)
}

func TestPipeline_RenderSmoke(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping chromium smoke test in short mode")
	}
	cfg := testConfig(1)
	cfg.PDF.ChromePath = chromeBinaryPath(t)
	cfg.PDF.ChromeNoSandbox = true
	cfg.PDF.TimeoutSecs = 20
	p := NewPipeline(cfg)
	defer p.Close()

	doc, err := p.Open(context.Background(), document.DefaultSettings())
	require.NoError(t, err)
	defer doc.Close()

	var buf bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, doc.Render(ctx, "<html><body><h1>Hello</h1></body></html>", &buf))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF")))
}
