// Package chrome renders HTML to PDF with headless Chrome (chromedp). Tabs
// come from a fixed-size Pool sharing one browser process, or from a
// throwaway browser per document when pooling is disabled.
package chrome

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	u "viewpdf/internal/utils"
)

var (
	ErrPoolDisabled = errors.New("chrome pool disabled")
	ErrPoolClosed   = errors.New("chrome pool closed")
)

// Tab is a browser tab checked out of a Pool.
type Tab struct {
	Ctx    context.Context
	cancel context.CancelFunc
}

// PoolStats is a snapshot of pool usage.
type PoolStats struct {
	Enabled      bool      `json:"enabled"`
	Capacity     int       `json:"capacity"`
	Idle         int       `json:"idle"`
	InUse        int       `json:"in_use"`
	PoolSizeConf int       `json:"pool_size_conf"`
	ProfileDir   string    `json:"profile_dir"`
	TimeoutSecs  int       `json:"timeout_secs"`
	Restarts     int       `json:"restarts"`
	LastRestart  *time.Time `json:"last_restart,omitempty"`
}

// Pool bounds concurrent renders to PDF.ChromePoolSize tabs of one browser.
type Pool struct {
	mu  sync.Mutex
	cfg u.Config

	sem chan struct{}

	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	profileDir  string
	closed      bool
	restarts    int
	lastRestart time.Time
}

// NewPool prepares a pool. The browser process starts lazily with the first
// render.
func NewPool(cfg u.Config) (*Pool, error) {
	size := cfg.PDF.ChromePoolSize
	if size <= 0 {
		return nil, ErrPoolDisabled
	}

	p := &Pool{
		cfg: cfg,
		sem: make(chan struct{}, size),
	}
	for i := 0; i < size; i++ {
		p.sem <- struct{}{}
	}
	if err := p.start(); err != nil {
		return nil, err
	}
	u.Info("Chrome pool ready", "size", size, "profile_dir", p.profileDir)
	return p, nil
}

// start creates a fresh profile dir and browser context. Callers hold mu or
// own p exclusively.
func (p *Pool) start() error {
	dir, err := createProfileDir(p.cfg)
	if err != nil {
		return err
	}
	p.profileDir = dir
	p.allocCtx, p.allocCancel = chromedp.NewExecAllocator(context.Background(), allocatorOptions(p.cfg, dir)...)
	p.browserCtx, p.browserCancel = chromedp.NewContext(p.allocCtx)
	return nil
}

func (p *Pool) stop() {
	if p.browserCancel != nil {
		p.browserCancel()
	}
	if p.allocCancel != nil {
		p.allocCancel()
	}
	p.browserCancel, p.allocCancel = nil, nil
	if p.profileDir != "" {
		_ = os.RemoveAll(p.profileDir)
	}
}

// Acquire waits for a free slot and opens a tab.
func (p *Pool) Acquire(ctx context.Context) (*Tab, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, ErrPoolClosed
	}

	select {
	case <-p.sem:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		p.sem <- struct{}{}
		return nil, ErrPoolClosed
	}
	parent := p.browserCtx
	if parent == nil {
		parent = context.Background()
	}
	tabCtx, cancel := chromedp.NewContext(parent)
	return &Tab{Ctx: tabCtx, cancel: cancel}, nil
}

// Release closes the tab and frees its slot. renderErr is logged when the
// tab failed.
func (p *Pool) Release(tab *Tab, renderErr error) {
	if tab == nil {
		return
	}
	if tab.cancel != nil {
		tab.cancel()
	}
	if renderErr != nil {
		u.Debug("Chrome tab released after error", "error", renderErr)
	}
	select {
	case p.sem <- struct{}{}:
	default:
	}
}

// Restart replaces the browser process and its profile directory.
func (p *Pool) Restart() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolClosed
	}
	p.stop()
	if err := p.start(); err != nil {
		return err
	}
	p.restarts++
	p.lastRestart = time.Now()
	u.Warn("Chrome pool restarted", "restarts", p.restarts)
	return nil
}

// Close stops the browser. It is safe to call more than once.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	p.stop()
}

func (p *Pool) Stats(timeoutSecs int) PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	capacity := cap(p.sem)
	idle := len(p.sem)
	var lastRestart *time.Time
	if !p.lastRestart.IsZero() {
		t := p.lastRestart
		lastRestart = &t
	}
	return PoolStats{
		Enabled:      !p.closed && p.sem != nil,
		Capacity:     capacity,
		Idle:         idle,
		InUse:        capacity - idle,
		PoolSizeConf: p.cfg.PDF.ChromePoolSize,
		ProfileDir:   p.profileDir,
		TimeoutSecs:  timeoutSecs,
		Restarts:     p.restarts,
		LastRestart:  lastRestart,
	}
}

func createProfileDir(cfg u.Config) (string, error) {
	base := cfg.PDF.UserDataDir
	if base == "" {
		base = os.TempDir()
	}
	if err := os.MkdirAll(base, 0o700); err != nil {
		return "", fmt.Errorf("create chrome profile base: %w", err)
	}
	dir, err := os.MkdirTemp(base, "viewpdf-chrome-*")
	if err != nil {
		return "", fmt.Errorf("create chrome profile dir: %w", err)
	}
	return dir, nil
}

func allocatorOptions(cfg u.Config, profileDir string) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserDataDir(profileDir),
		// Software rendering avoids GPU/Vulkan issues in minimal containers.
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-gpu-compositing", true),
		chromedp.Flag("disable-features", "Vulkan,UseSkiaRenderer"),
		chromedp.Flag("use-gl", "swiftshader"),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("font-render-hinting", "none"),
	)
	if cfg.PDF.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.PDF.ChromePath))
	}
	if cfg.PDF.ChromeNoSandbox {
		opts = append(opts, chromedp.Flag("no-sandbox", true))
	}
	return opts
}

// IsSessionInterrupted reports errors after which the browser session should
// be considered broken.
func IsSessionInterrupted(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"target closed", "session closed", "websocket: close", "invalid context"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
