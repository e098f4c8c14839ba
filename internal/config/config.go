package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-deck-export/deck"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "DECKPDF_"

// Config holds the deckpdf configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Frontend      FrontendConfig      `yaml:"frontend"`
	Export        ExportConfig        `yaml:"export"`
	Browser       BrowserConfig       `yaml:"browser"`
	Log           LogConfig           `yaml:"log"`
	Viewer        ViewerConfig        `yaml:"viewer"`
	Presentations []deck.Presentation `yaml:"presentations"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// FrontendConfig points at the app that renders presentations.
type FrontendConfig struct {
	BaseURL string `yaml:"base_url"`
}

// ExportConfig holds export pipeline settings.
type ExportConfig struct {
	ArtifactDir     string        `yaml:"artifact_dir"`
	Scale           float64       `yaml:"scale"`
	FirstSettle     time.Duration `yaml:"first_settle"`
	SlideSettle     time.Duration `yaml:"slide_settle"`
	Timeout         time.Duration `yaml:"timeout"`
	MaxAge          time.Duration `yaml:"max_age"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
	Encoding        string        `yaml:"encoding"`
	JPEGQuality     int           `yaml:"jpeg_quality"`
	Tracker         string        `yaml:"tracker"`
	SQLiteDSN       string        `yaml:"sqlite_dsn"`
}

// BrowserConfig holds headless Chromium settings.
type BrowserConfig struct {
	Path           string        `yaml:"path"`
	Headless       bool          `yaml:"headless"`
	Args           []string      `yaml:"args"`
	ViewportWidth  int           `yaml:"viewport_width"`
	ViewportHeight int           `yaml:"viewport_height"`
	RootSelectors  []string      `yaml:"root_selectors"`
	LoadTimeout    time.Duration `yaml:"load_timeout"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ViewerConfig toggles the built-in deck viewer.
type ViewerConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Background   string `yaml:"background"`
	Foreground   string `yaml:"foreground"`
	TransitionMS int    `yaml:"transition_ms"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: "8000",
		},
		Frontend: FrontendConfig{
			BaseURL: "http://localhost:8000",
		},
		Export: ExportConfig{
			ArtifactDir:     "./exports",
			Scale:           deck.DefaultScale,
			FirstSettle:     deck.DefaultFirstSettle,
			SlideSettle:     deck.DefaultSlideSettle,
			Timeout:         deck.DefaultTimeout,
			MaxAge:          deck.DefaultMaxAge,
			CleanupInterval: time.Hour,
			Encoding:        "jpeg",
			JPEGQuality:     95,
			Tracker:         "memory",
		},
		Browser: BrowserConfig{
			Headless:       true,
			Args:           []string{"--no-sandbox", "--disable-dev-shm-usage", "--disable-gpu"},
			ViewportWidth:  1920,
			ViewportHeight: 1080,
			LoadTimeout:    30 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Viewer: ViewerConfig{
			Enabled:      true,
			TransitionMS: 250,
		},
	}
}

// Load reads path over the defaults and applies environment overrides.
// An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv applies DECKPDF_* overrides using lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	var errs []error
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	dur := func(name string, dst *time.Duration) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = d
		}
	}
	num := func(name string, dst *int) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}

	str("HOST", &c.Server.Host)
	str("PORT", &c.Server.Port)
	str("FRONTEND_URL", &c.Frontend.BaseURL)
	str("ARTIFACT_DIR", &c.Export.ArtifactDir)
	str("ENCODING", &c.Export.Encoding)
	str("TRACKER", &c.Export.Tracker)
	str("SQLITE_DSN", &c.Export.SQLiteDSN)
	str("CHROME_PATH", &c.Browser.Path)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	dur("FIRST_SETTLE", &c.Export.FirstSettle)
	dur("SLIDE_SETTLE", &c.Export.SlideSettle)
	dur("TIMEOUT", &c.Export.Timeout)
	dur("MAX_AGE", &c.Export.MaxAge)
	num("JPEG_QUALITY", &c.Export.JPEGQuality)

	if v, ok := lookup(EnvPrefix + "SCALE"); ok && v != "" {
		scale, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sSCALE: %w", EnvPrefix, err))
		} else {
			c.Export.Scale = scale
		}
	}
	if v, ok := lookup(EnvPrefix + "HEADLESS"); ok && v != "" {
		headless, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sHEADLESS: %w", EnvPrefix, err))
		} else {
			c.Browser.Headless = headless
		}
	}
	if v, ok := lookup(EnvPrefix + "CHROME_ARGS"); ok && v != "" {
		c.Browser.Args = splitCSV(v)
	}
	return errors.Join(errs...)
}

// Validate checks settings that would otherwise fail at export time.
func (c Config) Validate() error {
	var errs []error
	if c.Export.Scale <= 0 {
		errs = append(errs, errors.New("export.scale must be positive"))
	}
	if c.Export.Timeout <= 0 {
		errs = append(errs, errors.New("export.timeout must be positive"))
	}
	if c.Export.FirstSettle < 0 || c.Export.SlideSettle < 0 {
		errs = append(errs, errors.New("settle delays cannot be negative"))
	}
	switch c.Export.Encoding {
	case "jpeg", "png":
	default:
		errs = append(errs, fmt.Errorf("export.encoding %q must be jpeg or png", c.Export.Encoding))
	}
	if c.Export.JPEGQuality < 1 || c.Export.JPEGQuality > 100 {
		errs = append(errs, errors.New("export.jpeg_quality must be between 1 and 100"))
	}
	switch c.Export.Tracker {
	case "memory", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("export.tracker %q must be memory or sqlite", c.Export.Tracker))
	}
	ids := map[string]bool{}
	for _, p := range c.Presentations {
		if p.ID == "" {
			errs = append(errs, errors.New("presentation id is required"))
			continue
		}
		if ids[p.ID] {
			errs = append(errs, fmt.Errorf("presentation %q is defined twice", p.ID))
		}
		ids[p.ID] = true
	}
	return errors.Join(errs...)
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
