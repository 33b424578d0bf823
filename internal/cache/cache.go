// Package cache memoizes rendered PDFs in Redis in front of another
// document.Pipeline.
package cache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"viewpdf/internal/document"
	u "viewpdf/internal/utils"
)

const (
	keyPrefix    = "pdfcache:"
	redisTimeout = time.Second
	defaultTTL   = time.Minute
)

// Pipeline serves PDFs from Redis and falls through to Inner on a miss. The
// inner document is only opened when the cache cannot answer.
type Pipeline struct {
	Inner document.Pipeline
	Redis *redis.Client
	TTL   time.Duration
}

// Wrap returns inner unchanged when caching is disabled or no Redis client
// is available.
func Wrap(inner document.Pipeline, rdb *redis.Client, cfg u.Config) document.Pipeline {
	if rdb == nil || !cfg.Cache.PDFCacheEnabled {
		return inner
	}
	return &Pipeline{Inner: inner, Redis: rdb, TTL: cfg.Cache.PDFCacheTTL}
}

func (p *Pipeline) Open(ctx context.Context, settings document.Settings) (document.Document, error) {
	if p.Inner == nil {
		return nil, errors.New("cache: no inner pipeline")
	}
	return &cachedDocument{pipeline: p, settings: settings}, nil
}

type cachedDocument struct {
	pipeline    *Pipeline
	settings    document.Settings
	stylesheets []string

	inner  document.Document
	closed bool
}

func (d *cachedDocument) AddStyleSheet(location string) error {
	d.stylesheets = append(d.stylesheets, location)
	return nil
}

func (d *cachedDocument) Render(ctx context.Context, html string, w io.Writer) error {
	if d.closed {
		return errors.New("document is closed")
	}
	key := Key(html, d.settings, d.stylesheets)

	if cached := d.pipeline.get(ctx, key); cached != nil {
		u.Info("PDF cache hit", "key", key)
		_, err := w.Write(cached)
		return err
	}

	inner, err := d.pipeline.Inner.Open(ctx, d.settings)
	if err != nil {
		return err
	}
	d.inner = inner
	for _, location := range d.stylesheets {
		if err := inner.AddStyleSheet(location); err != nil {
			return err
		}
	}

	var buf bytes.Buffer
	if err := inner.Render(ctx, html, &buf); err != nil {
		return err
	}
	d.pipeline.set(ctx, key, buf.Bytes())
	_, err = w.Write(buf.Bytes())
	return err
}

func (d *cachedDocument) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	if d.inner != nil {
		return d.inner.Close()
	}
	return nil
}

// Key derives the Redis key for a rendered document.
func Key(html string, settings document.Settings, stylesheets []string) string {
	h := sha256.New()
	h.Write([]byte(html))
	h.Write([]byte{0})
	h.Write([]byte(settings.PageSize.Name))
	for _, f := range []float64{
		settings.PageSize.Width, settings.PageSize.Height,
		settings.Margin.Top, settings.Margin.Bottom, settings.Margin.Left, settings.Margin.Right,
	} {
		h.Write([]byte{0})
		h.Write([]byte(strconv.FormatFloat(f, 'f', 2, 64)))
	}
	for _, s := range stylesheets {
		h.Write([]byte{0})
		h.Write([]byte(s))
	}
	return keyPrefix + hex.EncodeToString(h.Sum(nil))
}

// get returns nil on a miss or when Redis is unavailable.
func (p *Pipeline) get(ctx context.Context, key string) []byte {
	ctxRedis, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()

	cached, err := p.Redis.Get(ctxRedis, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		u.Warn("Redis read failed", "error", err)
		return nil
	}
	return cached
}

func (p *Pipeline) set(ctx context.Context, key string, data []byte) {
	ctxRedis, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()

	ttl := p.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if err := p.Redis.Set(ctxRedis, key, data, ttl).Err(); err != nil {
		u.Warn("Redis write failed", "error", fmt.Errorf("set %s: %w", key, err))
	}
}
