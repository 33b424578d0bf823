package handlers

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"viewpdf/internal/assets"
	"viewpdf/internal/cache"
	"viewpdf/internal/chrome"
	"viewpdf/internal/document"
	u "viewpdf/internal/utils"
	"viewpdf/internal/views"
)

var fileNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

// Query parameters of GET /v1/views/* that are not passed to the view.
var reservedQueryParams = map[string]bool{
	"filename":    true,
	"download":    true,
	"page_size":   true,
	"orientation": true,
	"margin":      true,
	"stylesheet":  true,
}

// RenderParams is the JSON body of POST /v1/render.
type RenderParams struct {
	View        string           `json:"view"`
	Model       any              `json:"model"`
	FileName    string           `json:"file_name"`
	Download    *bool            `json:"download"`
	StyleSheets []string         `json:"stylesheets"`
	PageSize    string           `json:"page_size"`
	Orientation string           `json:"orientation"`
	Margin      *document.Margin `json:"margin"`
}

// RenderService bundles configuration and dependencies for view rendering.
type RenderService struct {
	Config   *u.Config
	Redis    *redis.Client
	Chrome   *chrome.Pipeline
	Executor *document.Executor

	publicBase *document.BaseURL
}

// NewRenderService wires the configured view engine, stylesheet resolver,
// Chrome pipeline and optional Redis cache.
func NewRenderService(cfg u.Config, rdb *redis.Client) (*RenderService, error) {
	engine, err := views.NewEngine(cfg)
	if err != nil {
		return nil, err
	}
	resolver, err := assets.NewResolver(cfg.Assets.Root)
	if err != nil {
		return nil, err
	}
	pipeline := chrome.NewPipeline(cfg)
	svc := &RenderService{
		Config: &cfg,
		Redis:  rdb,
		Chrome: pipeline,
		Executor: &document.Executor{
			Views:    engine,
			Styles:   resolver,
			Pipeline: cache.Wrap(pipeline, rdb, cfg),
		},
	}
	if cfg.Server.PublicBaseURL != "" {
		base, err := document.BaseURLFromString(cfg.Server.PublicBaseURL)
		if err != nil {
			return nil, fmt.Errorf("server.public_base_url: %w", err)
		}
		svc.publicBase = &base
	}
	return svc, nil
}

// Close releases the shared Chrome browser.
func (svc *RenderService) Close() {
	if svc.Chrome != nil {
		svc.Chrome.Close()
	}
}

// HandleRender renders the view named in the JSON body.
func (svc *RenderService) HandleRender(c *fiber.Ctx) error {
	var params RenderParams
	if err := c.BodyParser(&params); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid JSON body")
	}
	req, err := buildRequest(&params, *svc.Config)
	if err != nil {
		return err
	}
	return svc.execute(c, req)
}

// HandleView renders the view named in the path; query parameters become the
// model.
func (svc *RenderService) HandleView(c *fiber.Ctx) error {
	params := RenderParams{
		View:        c.Params("*"),
		FileName:    c.Query("filename"),
		PageSize:    c.Query("page_size"),
		Orientation: c.Query("orientation"),
	}
	if v := c.Query("download"); v != "" {
		download, err := strconv.ParseBool(v)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid download: must be true or false")
		}
		params.Download = &download
	}
	if v := c.Query("margin"); v != "" {
		m, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid margin: must be a number of points")
		}
		margin := document.UniformMargin(m)
		params.Margin = &margin
	}
	for _, s := range c.Context().QueryArgs().PeekMulti("stylesheet") {
		params.StyleSheets = append(params.StyleSheets, string(s))
	}

	model := make(map[string]any)
	for k, v := range c.Queries() {
		if !reservedQueryParams[k] {
			model[k] = v
		}
	}
	params.Model = model

	req, err := buildRequest(&params, *svc.Config)
	if err != nil {
		return err
	}
	return svc.execute(c, req)
}

func (svc *RenderService) execute(c *fiber.Ctx, req *document.Request) error {
	w := &limitedResponse{c: c, max: svc.Config.Limits.MaxPDFBytes}
	if err := svc.Executor.Execute(c.UserContext(), req, svc.baseURL(c), w); err != nil {
		return err
	}

	u.Info("PDF generated",
		"view", req.ViewName(),
		"filename", req.FileName(),
		"bytes", w.size,
		"request_id", c.GetRespHeader(fiber.HeaderXRequestID),
	)
	return nil
}

// baseURL is the scheme and authority used to make relative image URLs
// absolute.
func (svc *RenderService) baseURL(c *fiber.Ctx) document.BaseURL {
	if svc.publicBase != nil {
		return *svc.publicBase
	}
	return document.BaseURL{Scheme: c.Protocol(), Host: c.Hostname()}
}

// buildRequest validates params against cfg and applies defaults.
func buildRequest(params *RenderParams, cfg u.Config) (*document.Request, error) {
	view := strings.TrimSpace(params.View)
	if view == "" {
		return nil, fiber.NewError(fiber.StatusBadRequest, "Invalid view: missing")
	}

	format := strings.ToUpper(params.PageSize)
	if format == "" {
		format = cfg.PDF.DefaultPaper
	}
	paper, ok := cfg.PDF.PaperSizes[format]
	if !ok {
		if params.PageSize != "" {
			return nil, fiber.NewError(fiber.StatusBadRequest, "Invalid page_size: not supported")
		}
		return nil, fiber.NewError(fiber.StatusInternalServerError, "Default paper size not configured")
	}
	size := document.PageSize{Name: format, Width: paper.Width, Height: paper.Height}

	switch strings.ToLower(params.Orientation) {
	case "", "portrait":
	case "landscape":
		size = size.Rotate()
	default:
		return nil, fiber.NewError(fiber.StatusBadRequest, "Invalid orientation: must be 'portrait' or 'landscape'")
	}

	margin := document.UniformMargin(cfg.PDF.DefaultMargin)
	if params.Margin != nil {
		margin = *params.Margin
	}
	if margin.Top < 0 || margin.Bottom < 0 || margin.Left < 0 || margin.Right < 0 {
		return nil, fiber.NewError(fiber.StatusBadRequest, "Invalid margin: must not be negative")
	}

	opts := []document.Option{
		document.WithModel(params.Model),
		document.WithSettings(document.Settings{PageSize: size, Margin: margin}),
		document.WithStyleSheets(params.StyleSheets...),
	}

	if params.FileName != "" {
		if !strings.HasSuffix(params.FileName, ".pdf") {
			return nil, fiber.NewError(fiber.StatusBadRequest, "Filename must end with .pdf")
		}
		if !fileNamePattern.MatchString(params.FileName) {
			return nil, fiber.NewError(fiber.StatusBadRequest, "Filename contains invalid characters")
		}
		opts = append(opts, document.WithFileName(params.FileName))
	}
	if params.Download != nil {
		opts = append(opts, document.WithDownload(*params.Download))
	}

	return document.NewRequest(view, opts...)
}

// limitedResponse rejects PDFs larger than max before anything is written.
type limitedResponse struct {
	c    *fiber.Ctx
	max  int
	size int
}

func (r *limitedResponse) Set(key, value string) {
	r.c.Set(key, value)
}

func (r *limitedResponse) Send(body []byte) error {
	if r.max > 0 && len(body) > r.max {
		return fiber.NewError(fiber.StatusRequestEntityTooLarge, "PDF exceeds allowed size")
	}
	r.size = len(body)
	return r.c.Send(body)
}

// HandleChromeStats exposes basic observability for the Chrome pool.
func (svc *RenderService) HandleChromeStats(c *fiber.Ctx) error {
	var pool *chrome.Pool
	if svc.Chrome != nil {
		var err error
		pool, err = svc.Chrome.Pool()
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Chrome pool init failed: "+err.Error())
		}
	}

	// Pool disabled.
	if pool == nil {
		return c.JSON(chrome.PoolStats{
			PoolSizeConf: svc.Config.PDF.ChromePoolSize,
			TimeoutSecs:  svc.Config.PDF.TimeoutSecs,
		})
	}
	return c.JSON(pool.Stats(svc.Config.PDF.TimeoutSecs))
}
