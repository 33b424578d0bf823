package app

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/redis/go-redis/v9"

	"viewpdf/internal/assets"
	"viewpdf/internal/document"
	"viewpdf/internal/handlers"
	u "viewpdf/internal/utils"
	"viewpdf/internal/views"
)

// SetupApp creates and configures a new Fiber app instance
func SetupApp(cfg u.Config, redis *redis.Client) (*fiber.App, error) {
	svc, err := handlers.NewRenderService(cfg, redis)
	if err != nil {
		return nil, err
	}
	return newApp(cfg, svc), nil
}

func newApp(cfg u.Config, svc *handlers.RenderService) *fiber.App {
	app := fiber.New(fiber.Config{
		Prefork:               cfg.Server.Prefork,
		DisableStartupMessage: true,
		BodyLimit:             cfg.Limits.MaxBodyBytes,
		ErrorHandler:          ErrorHandler,
	})
	app.Hooks().OnShutdown(func() error {
		svc.Close()
		return nil
	})

	RegisterMiddleware(app, cfg)
	RegisterRoutes(app, svc)

	// Ensure all responses, including 404s, return JSON
	app.Use(func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusNotFound, "Not Found")
	})

	return app
}

// ErrorHandler maps handler errors to JSON error responses. A failed render
// never leaves a PDF Content-Disposition behind.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code, msg := statusFor(err)
	if code >= fiber.StatusInternalServerError {
		u.Error("Request failed", "path", c.Path(), "status", code, "error", err)
	} else {
		u.Warn("Request failed", "path", c.Path(), "status", code, "message", msg)
	}

	c.Response().Header.Del(fiber.HeaderContentDisposition)
	c.Response().ResetBody()
	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    code,
			"message": msg,
		},
	})
}

func statusFor(err error) (int, string) {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code, fe.Message
	case errors.Is(err, document.ErrInvalidArgument),
		errors.Is(err, document.ErrBaseURLUnknown),
		errors.Is(err, assets.ErrStyleSheetNotFound),
		errors.Is(err, assets.ErrPathTraversal):
		return fiber.StatusBadRequest, err.Error()
	case errors.Is(err, views.ErrViewNotFound):
		return fiber.StatusNotFound, err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusRequestTimeout, "PDF rendering took too long"
	default:
		return fiber.StatusInternalServerError, "Internal Server Error"
	}
}

// RegisterRoutes mounts all route handlers to the app
func RegisterRoutes(app *fiber.App, svc *handlers.RenderService) {
	v1 := app.Group("/v1")

	v1.Post("/render", svc.HandleRender)
	v1.Get("/views/*", svc.HandleView)
	v1.Get("/chrome/stats", svc.HandleChromeStats)

	v1.Get("/monitor", monitor.New())
}
