// Package config loads the service configuration once at startup.
//
// Values come from, in order of precedence: the process environment, a .env
// file in the working directory, an optional aquamark.yml in "." or
// /etc/aquamark, and the defaults below. Keys are the lower-case form of the
// environment variable names.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Ledger drivers.
const (
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverMemory   = "memory"
)

type Config struct {
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	APIToken       string
	MaxUploadBytes int64

	LogLevel  string
	LogFormat string

	QPDFPath       string
	DecryptTimeout time.Duration
	TempDir        string

	LedgerDriver   string
	DatabaseURL    string
	UsageTable     string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisKeyPrefix string
	LedgerTimeout  time.Duration

	SupabaseURL  string
	SupabaseKey  string
	LogoBucket   string
	AssetTimeout time.Duration
	AssetDir     string

	HologramURL       string
	QRBaseURL         string
	BadgeTemplatePath string

	LogoWidthFraction float64
	TileGap           float64
	TileOpacity       float64
	TileOrigin        float64
	QRSize            float64
	QROpacity         float64
	DPIScale          float64
	PerPageGeometry   bool

	BatchConcurrency int
}

var defaults = map[string]any{
	"port":                        10000,
	"read_timeout":                "30s",
	"write_timeout":               "2m",
	"idle_timeout":                "1m",
	"max_upload_bytes":            50 << 20,
	"log_level":                   "info",
	"log_format":                  "json",
	"qpdf_path":                   "qpdf",
	"decrypt_timeout":             "30s",
	"temp_dir":                    "",
	"ledger_driver":               DriverPostgres,
	"database_url":                "",
	"usage_table":                 "usage",
	"redis_addr":                  "localhost:6379",
	"redis_password":              "",
	"redis_db":                    0,
	"redis_key_prefix":            "aquamark:usage:",
	"ledger_timeout":              "5s",
	"supabase_url":                "",
	"supabase_key":                "",
	"logo_bucket":                 "logos",
	"asset_timeout":               "10s",
	"asset_dir":                   "",
	"hologram_url":                "",
	"qr_base_url":                 "",
	"badge_template_path":         "",
	"api_token":                   "",
	"logo_width_fraction":         0.35,
	"tile_gap":                    100.0,
	"tile_opacity":                0.15,
	"tile_origin":                 0.0,
	"qr_size":                     50.0,
	"qr_opacity":                  0.4,
	"overlay_dpi_scale":           2.0,
	"watermark_per_page_geometry": false,
	"batch_concurrency":           4,
}

// Load reads .env (if present) and builds a validated Config.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigName("aquamark")
	v.SetConfigType("yml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/aquamark")
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	cfg := &Config{
		Port:           v.GetInt("port"),
		ReadTimeout:    v.GetDuration("read_timeout"),
		WriteTimeout:   v.GetDuration("write_timeout"),
		IdleTimeout:    v.GetDuration("idle_timeout"),
		APIToken:       v.GetString("api_token"),
		MaxUploadBytes: v.GetInt64("max_upload_bytes"),

		LogLevel:  v.GetString("log_level"),
		LogFormat: v.GetString("log_format"),

		QPDFPath:       v.GetString("qpdf_path"),
		DecryptTimeout: v.GetDuration("decrypt_timeout"),
		TempDir:        v.GetString("temp_dir"),

		LedgerDriver:   strings.ToLower(strings.TrimSpace(v.GetString("ledger_driver"))),
		DatabaseURL:    v.GetString("database_url"),
		UsageTable:     v.GetString("usage_table"),
		RedisAddr:      v.GetString("redis_addr"),
		RedisPassword:  v.GetString("redis_password"),
		RedisDB:        v.GetInt("redis_db"),
		RedisKeyPrefix: v.GetString("redis_key_prefix"),
		LedgerTimeout:  v.GetDuration("ledger_timeout"),

		SupabaseURL:  strings.TrimRight(v.GetString("supabase_url"), "/"),
		SupabaseKey:  v.GetString("supabase_key"),
		LogoBucket:   v.GetString("logo_bucket"),
		AssetTimeout: v.GetDuration("asset_timeout"),
		AssetDir:     v.GetString("asset_dir"),

		HologramURL:       v.GetString("hologram_url"),
		QRBaseURL:         v.GetString("qr_base_url"),
		BadgeTemplatePath: v.GetString("badge_template_path"),

		LogoWidthFraction: v.GetFloat64("logo_width_fraction"),
		TileGap:           v.GetFloat64("tile_gap"),
		TileOpacity:       v.GetFloat64("tile_opacity"),
		TileOrigin:        v.GetFloat64("tile_origin"),
		QRSize:            v.GetFloat64("qr_size"),
		QROpacity:         v.GetFloat64("qr_opacity"),
		DPIScale:          v.GetFloat64("overlay_dpi_scale"),
		PerPageGeometry:   v.GetBool("watermark_per_page_geometry"),

		BatchConcurrency: v.GetInt("batch_concurrency"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Port <= 0 || c.Port > 65535 {
		add("PORT %d out of range", c.Port)
	}
	if c.MaxUploadBytes <= 0 {
		add("MAX_UPLOAD_BYTES must be positive")
	}
	for name, d := range map[string]time.Duration{
		"READ_TIMEOUT":    c.ReadTimeout,
		"WRITE_TIMEOUT":   c.WriteTimeout,
		"IDLE_TIMEOUT":    c.IdleTimeout,
		"DECRYPT_TIMEOUT": c.DecryptTimeout,
		"LEDGER_TIMEOUT":  c.LedgerTimeout,
		"ASSET_TIMEOUT":   c.AssetTimeout,
	} {
		if d <= 0 {
			add("%s must be positive", name)
		}
	}

	switch c.LedgerDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			add("DATABASE_URL is required for the postgres ledger")
		}
	case DriverRedis:
		if c.RedisAddr == "" {
			add("REDIS_ADDR is required for the redis ledger")
		}
	case DriverMemory:
	default:
		add("unknown LEDGER_DRIVER %q", c.LedgerDriver)
	}

	if c.AssetDir == "" && c.SupabaseURL == "" {
		add("one of ASSET_DIR or SUPABASE_URL is required")
	}

	if c.LogoWidthFraction <= 0 || c.LogoWidthFraction > 1 {
		add("LOGO_WIDTH_FRACTION must be in (0,1]")
	}
	for name, op := range map[string]float64{"TILE_OPACITY": c.TileOpacity, "QR_OPACITY": c.QROpacity} {
		if op < 0 || op > 1 {
			add("%s must be in [0,1]", name)
		}
	}
	if c.TileGap < 0 {
		add("TILE_GAP must not be negative")
	}
	if c.QRSize <= 0 {
		add("QR_SIZE must be positive")
	}
	if c.DPIScale <= 0 {
		add("OVERLAY_DPI_SCALE must be positive")
	}
	if c.BatchConcurrency < 1 {
		add("BATCH_CONCURRENCY must be at least 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
