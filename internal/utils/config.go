package utils

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// PostgresConfig locates the API token database.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

// PaperSize is a named page size in points.
type PaperSize struct {
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`
}

// Config is the service configuration loaded from YAML.
type Config struct {
	Server struct {
		Host    string `yaml:"host"`
		Port    string `yaml:"port"`
		Prefork bool   `yaml:"prefork"`
		// PublicBaseURL overrides the request scheme/host used to make image
		// URLs absolute, e.g. when running behind a proxy.
		PublicBaseURL string `yaml:"public_base_url"`
	} `yaml:"server"`

	Limits struct {
		MaxBodyBytes int `yaml:"max_body_bytes"`
		MaxPDFBytes  int `yaml:"max_pdf_bytes"`
	} `yaml:"limits"`

	Logger struct {
		File       string `yaml:"file"`
		Level      string `yaml:"level"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
		Compress   bool   `yaml:"compress"`
	} `yaml:"logger"`

	Cache struct {
		PDFCacheEnabled bool          `yaml:"pdf_cache_enabled"`
		PDFCacheTTL     time.Duration `yaml:"pdf_cache_ttl"`
		RedisHost       string        `yaml:"redis_host"`
		RateLimitDB     int           `yaml:"redis_rate_db"`
		PDFCacheDB      int           `yaml:"redis_pdf_db"`
	} `yaml:"cache"`

	PDF struct {
		DefaultPaper    string               `yaml:"default_paper"`
		PaperSizes      map[string]PaperSize `yaml:"paper_sizes"`
		DefaultMargin   float64              `yaml:"default_margin"`
		TimeoutSecs     int                  `yaml:"timeout_secs"`
		ChromePath      string               `yaml:"chrome_path"`
		ChromeNoSandbox bool                 `yaml:"chrome_no_sandbox"`
		ChromePoolSize  int                  `yaml:"chrome_pool_size"`
		UserDataDir     string               `yaml:"user_data_dir"`
	} `yaml:"pdf"`

	Views struct {
		Engine    string `yaml:"engine"`
		Dir       string `yaml:"dir"`
		Extension string `yaml:"extension"`
	} `yaml:"views"`

	Assets struct {
		Root string `yaml:"root"`
	} `yaml:"assets"`

	Auth struct {
		Postgres PostgresConfig `yaml:"postgres"`
	} `yaml:"auth"`

	RateLimiter struct {
		Interval          time.Duration `yaml:"interval"`
		UserLimit         int           `yaml:"user_limit"`
		EnableUserLimiter bool          `yaml:"enable_user_limiter"`
	} `yaml:"rate_limiter"`
}

var (
	configMu  sync.RWMutex
	AppConfig Config
)

// GetConfig returns the configuration set by the last LoadConfig call.
func GetConfig() Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return AppConfig
}

// LoadConfig reads the file named by CONFIG_PATH (default config.yaml).
func LoadConfig() Config {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	return LoadConfigFrom(path)
}

// LoadConfigFrom reads, defaults and validates the YAML file at path. It
// panics when the file is unreadable or invalid; the service cannot start
// without a usable configuration.
func LoadConfigFrom(path string) Config {
	raw, err := os.ReadFile(path)
	if err != nil {
		panic(fmt.Sprintf("read config %s: %v", path, err))
	}

	cfg := presetDefaults()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		panic(fmt.Sprintf("parse config %s: %v", path, err))
	}

	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		panic(fmt.Sprintf("invalid config %s: %v", path, err))
	}

	configMu.Lock()
	AppConfig = cfg
	configMu.Unlock()
	return cfg
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	cfg := presetDefaults()
	applyDefaults(&cfg)
	return cfg
}

// presetDefaults holds defaults for keys where zero is a valid setting. They
// are set before decoding so only an absent key keeps them.
func presetDefaults() Config {
	var cfg Config
	cfg.PDF.DefaultMargin = 40
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = ":8080"
	}
	if cfg.Limits.MaxBodyBytes == 0 {
		cfg.Limits.MaxBodyBytes = 1 << 20
	}
	if cfg.Limits.MaxPDFBytes == 0 {
		cfg.Limits.MaxPDFBytes = 20 << 20
	}
	if cfg.Logger.Level == "" {
		cfg.Logger.Level = "info"
	}
	if cfg.PDF.DefaultPaper == "" {
		cfg.PDF.DefaultPaper = "A4"
	}
	if cfg.PDF.PaperSizes == nil {
		cfg.PDF.PaperSizes = map[string]PaperSize{
			"A3":     {Width: 842, Height: 1191},
			"A4":     {Width: 595, Height: 842},
			"A5":     {Width: 420, Height: 595},
			"LETTER": {Width: 612, Height: 792},
			"LEGAL":  {Width: 612, Height: 1008},
		}
	} else {
		upper := make(map[string]PaperSize, len(cfg.PDF.PaperSizes))
		for name, size := range cfg.PDF.PaperSizes {
			upper[strings.ToUpper(name)] = size
		}
		cfg.PDF.PaperSizes = upper
	}
	cfg.PDF.DefaultPaper = strings.ToUpper(cfg.PDF.DefaultPaper)
	if cfg.PDF.TimeoutSecs == 0 {
		cfg.PDF.TimeoutSecs = 30
	}
	if cfg.Views.Engine == "" {
		cfg.Views.Engine = "html"
	}
	if cfg.Views.Dir == "" {
		cfg.Views.Dir = "views"
	}
	if cfg.Views.Extension == "" {
		cfg.Views.Extension = ".html"
	}
	if cfg.Assets.Root == "" {
		cfg.Assets.Root = "public"
	}
	if cfg.RateLimiter.Interval == 0 {
		cfg.RateLimiter.Interval = time.Minute
	}
	if cfg.Cache.PDFCacheTTL == 0 {
		cfg.Cache.PDFCacheTTL = time.Minute
	}
}

func validateConfig(cfg Config) error {
	if _, ok := cfg.PDF.PaperSizes[cfg.PDF.DefaultPaper]; !ok {
		return fmt.Errorf("default paper %q is not in paper_sizes", cfg.PDF.DefaultPaper)
	}
	for name, size := range cfg.PDF.PaperSizes {
		if size.Width <= 0 || size.Height <= 0 {
			return fmt.Errorf("paper size %s must have positive width and height", name)
		}
	}
	if cfg.PDF.DefaultMargin < 0 {
		return fmt.Errorf("pdf.default_margin must not be negative")
	}
	if cfg.PDF.TimeoutSecs < 0 {
		return fmt.Errorf("pdf.timeout_secs must not be negative")
	}
	if cfg.PDF.ChromePoolSize < 0 {
		return fmt.Errorf("pdf.chrome_pool_size must not be negative")
	}
	switch cfg.Views.Engine {
	case "html", "pongo2":
	default:
		return fmt.Errorf("views.engine must be html or pongo2, got %q", cfg.Views.Engine)
	}
	if cfg.RateLimiter.Interval < 0 {
		return fmt.Errorf("rate_limiter.interval must not be negative")
	}
	if cfg.RateLimiter.UserLimit < 0 {
		return fmt.Errorf("rate_limiter.user_limit must not be negative")
	}
	if cfg.Server.PublicBaseURL != "" && !strings.Contains(cfg.Server.PublicBaseURL, "://") {
		return fmt.Errorf("server.public_base_url must include a scheme")
	}
	return nil
}
