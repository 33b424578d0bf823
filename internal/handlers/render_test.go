package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"viewpdf/internal/document"
	u "viewpdf/internal/utils"
)

func testCfg() u.Config {
	var cfg u.Config
	cfg.PDF.DefaultPaper = "A4"
	cfg.PDF.PaperSizes = map[string]u.PaperSize{
		"A4":     {Width: 595, Height: 842},
		"LETTER": {Width: 612, Height: 792},
	}
	cfg.PDF.DefaultMargin = 40
	cfg.PDF.TimeoutSecs = 1
	cfg.Limits.MaxPDFBytes = 1024 * 1024
	return cfg
}

type echoDocument struct{ settings document.Settings }

func (d *echoDocument) AddStyleSheet(string) error { return nil }
func (d *echoDocument) Close() error               { return nil }
func (d *echoDocument) Render(_ context.Context, html string, w io.Writer) error {
	_, err := io.WriteString(w, "%PDF-"+html)
	return err
}

type echoPipeline struct{ last document.Settings }

func (p *echoPipeline) Open(_ context.Context, s document.Settings) (document.Document, error) {
	p.last = s
	return &echoDocument{settings: s}, nil
}

// modelView renders the model as JSON so tests can inspect it.
func modelView(_ context.Context, view string, model any) (string, error) {
	raw, err := json.Marshal(model)
	if err != nil {
		return "", err
	}
	return "<p>" + view + ":" + string(raw) + "</p>", nil
}

func newTestService(cfg u.Config) (*RenderService, *echoPipeline) {
	pipeline := &echoPipeline{}
	return &RenderService{
		Config: &cfg,
		Executor: &document.Executor{
			Views:    document.ViewRendererFunc(modelView),
			Pipeline: pipeline,
		},
	}, pipeline
}

func TestBuildRequest_Defaults(t *testing.T) {
	req, err := buildRequest(&RenderParams{View: "invoice"}, testCfg())
	require.NoError(t, err)

	assert.Equal(t, "invoice", req.ViewName())
	assert.True(t, req.Download())
	assert.Regexp(t, `^[0-9A-F-]{36}\.pdf$`, req.FileName())
	assert.Equal(t, "A4", req.Settings.PageSize.Name)
	assert.Equal(t, document.UniformMargin(40), req.Settings.Margin)
}

func TestBuildRequest_Overrides(t *testing.T) {
	download := false
	margin := document.Margin{Top: 10, Bottom: 20, Left: 5, Right: 5}
	req, err := buildRequest(&RenderParams{
		View:        " report ",
		FileName:    "report-2024.pdf",
		Download:    &download,
		PageSize:    "letter",
		Orientation: "Landscape",
		Margin:      &margin,
		StyleSheets: []string{"~/css/site.css"},
	}, testCfg())
	require.NoError(t, err)

	assert.Equal(t, "report", req.ViewName())
	assert.Equal(t, "report-2024.pdf", req.FileName())
	assert.False(t, req.Download())
	assert.Equal(t, 792.0, req.Settings.PageSize.Width)
	assert.Equal(t, 612.0, req.Settings.PageSize.Height)
	assert.Equal(t, margin, req.Settings.Margin)
	assert.Equal(t, []string{"~/css/site.css"}, req.StyleSheets)
}

func TestBuildRequest_ValidationErrors(t *testing.T) {
	negative := document.Margin{Top: -1}
	tests := []struct {
		name   string
		params RenderParams
		code   int
	}{
		{"missing view", RenderParams{}, fiber.StatusBadRequest},
		{"unknown page size", RenderParams{View: "v", PageSize: "B0"}, fiber.StatusBadRequest},
		{"bad orientation", RenderParams{View: "v", Orientation: "diag"}, fiber.StatusBadRequest},
		{"negative margin", RenderParams{View: "v", Margin: &negative}, fiber.StatusBadRequest},
		{"filename extension", RenderParams{View: "v", FileName: "file.txt"}, fiber.StatusBadRequest},
		{"filename chars", RenderParams{View: "v", FileName: "bad name.pdf"}, fiber.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := buildRequest(&tc.params, testCfg())
			var fe *fiber.Error
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, tc.code, fe.Code)
		})
	}
}

func TestBuildRequest_DefaultPaperMissing(t *testing.T) {
	cfg := testCfg()
	cfg.PDF.PaperSizes = map[string]u.PaperSize{}
	_, err := buildRequest(&RenderParams{View: "v"}, cfg)
	var fe *fiber.Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, fiber.StatusInternalServerError, fe.Code)
}

func TestHandleRender(t *testing.T) {
	svc, pipeline := newTestService(testCfg())
	app := fiber.New()
	app.Post("/render", svc.HandleRender)

	body := `{"view":"invoice","model":{"id":7},"file_name":"inv.pdf","page_size":"LETTER"}`
	req := httptest.NewRequest("POST", "http://reports.example.com/render", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	assert.Equal(t, "attachment; filename=inv.pdf", resp.Header.Get("Content-Disposition"))
	out, _ := io.ReadAll(resp.Body)
	assert.Equal(t, `%PDF-<p>invoice:{"id":7}</p>`, string(out))
	assert.Equal(t, "LETTER", pipeline.last.PageSize.Name)
}

func TestHandleRender_InvalidJSON(t *testing.T) {
	svc, _ := newTestService(testCfg())
	app := fiber.New()
	app.Post("/render", svc.HandleRender)

	req := httptest.NewRequest("POST", "/render", strings.NewReader(`{"view":`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestHandleView_QueryBecomesModel(t *testing.T) {
	svc, pipeline := newTestService(testCfg())
	app := fiber.New()
	app.Get("/views/*", svc.HandleView)

	req := httptest.NewRequest("GET", "/views/reports/daily?customer=ACME&download=false&orientation=landscape&margin=12", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	assert.Empty(t, resp.Header.Get("Content-Disposition"))
	out, _ := io.ReadAll(resp.Body)
	assert.Equal(t, `%PDF-<p>reports/daily:{"customer":"ACME"}</p>`, string(out))
	assert.True(t, pipeline.last.PageSize.Landscape())
	assert.Equal(t, document.UniformMargin(12), pipeline.last.Margin)
}

func TestHandleView_BadQuery(t *testing.T) {
	svc, _ := newTestService(testCfg())
	app := fiber.New()
	app.Get("/views/*", svc.HandleView)

	for _, target := range []string{
		"/views/v?download=maybe",
		"/views/v?margin=wide",
		"/views/v?filename=x.txt",
	} {
		resp, err := app.Test(httptest.NewRequest("GET", target, nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode, target)
	}
}

func TestExecute_PDFTooLarge(t *testing.T) {
	cfg := testCfg()
	cfg.Limits.MaxPDFBytes = 8
	svc, _ := newTestService(cfg)
	app := fiber.New()
	app.Get("/views/*", svc.HandleView)

	resp, err := app.Test(httptest.NewRequest("GET", "/views/big", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestBaseURL(t *testing.T) {
	svc, _ := newTestService(testCfg())
	app := fiber.New()
	var got document.BaseURL
	app.Get("/", func(c *fiber.Ctx) error {
		got = svc.baseURL(c)
		return nil
	})

	_, err := app.Test(httptest.NewRequest("GET", "http://localhost:8080/", nil))
	require.NoError(t, err)
	assert.Equal(t, document.BaseURL{Scheme: "http", Host: "localhost:8080"}, got)

	public := document.BaseURL{Scheme: "https", Host: "pdf.example.com"}
	svc.publicBase = &public
	_, err = app.Test(httptest.NewRequest("GET", "http://localhost:8080/", nil))
	require.NoError(t, err)
	assert.Equal(t, public, got)
}

func TestHandleChromeStats_Disabled(t *testing.T) {
	cfg := testCfg()
	svc, _ := newTestService(cfg)
	app := fiber.New()
	app.Get("/stats", svc.HandleChromeStats)

	resp, err := app.Test(httptest.NewRequest("GET", "/stats", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var stats map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, false, stats["enabled"])
	assert.Equal(t, float64(cfg.PDF.TimeoutSecs), stats["timeout_secs"])
}

func TestNewRenderService(t *testing.T) {
	cfg := testCfg()
	cfg.Views.Engine = "html"
	cfg.Views.Dir = t.TempDir()
	cfg.Assets.Root = t.TempDir()
	cfg.Server.PublicBaseURL = "https://pdf.example.com"

	svc, err := NewRenderService(cfg, nil)
	require.NoError(t, err)
	defer svc.Close()
	require.NotNil(t, svc.publicBase)
	assert.Equal(t, "pdf.example.com", svc.publicBase.Host)
	assert.Same(t, svc.Chrome, svc.Executor.Pipeline, "cache is skipped without redis")

	cfg.Views.Engine = "jinja"
	_, err = NewRenderService(cfg, nil)
	assert.Error(t, err)
}
