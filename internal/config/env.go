package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level      string
	Pretty     bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
	Send          bool
	APIKey        string
	OrgID         string
	Dataset       string
	FlushInterval time.Duration
}

// ServerConfig controls the HTTP surface.
type ServerConfig struct {
	Port            string
	MaxUploadMB     int
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	// InputRoot is the only directory file:// references may read from.
	// Empty disables them.
	InputRoot string
}

// RenderConfig sets the rasterizer presets and its canvas limit.
type RenderConfig struct {
	MaxPixels      int
	ExportScale    float64
	ExportQuality  float64
	FlattenScale   float64
	FlattenQuality float64
}

// ScanConfig is the page size scanned images are fitted onto, in points.
type ScanConfig struct {
	PageWidth  float64
	PageHeight float64
}

// DeliveryConfig selects where finished artifacts go besides the HTTP
// response. Mode is "download" (response only), "filesystem" or "s3".
type DeliveryConfig struct {
	Mode            string
	Dir             string
	Bucket          string
	Prefix          string
	PresignTTL      time.Duration
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// JobsConfig defines background job tracking.
type JobsConfig struct {
	RedisURL      string
	StatusTTL     time.Duration
	MaxConcurrent int
	CleanupAge    time.Duration
}

// Config is the top-level configuration.
type Config struct {
	Logging  LoggingConfig
	Axiom    AxiomConfig
	Server   ServerConfig
	Render   RenderConfig
	Scan     ScanConfig
	Delivery DeliveryConfig
	Jobs     JobsConfig
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
	cfg := Config{}

	cfg.Logging = LoggingConfig{
		Level:      getEnv("LOG_LEVEL", "info"),
		Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
		File:       getEnv("LOG_FILE", "logs/docsuite.log"),
		MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
		MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
		MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
		Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
	}

	baseDataset := getEnv("AXIOM_DATASET", "dev")
	cfg.Axiom = AxiomConfig{
		Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
		APIKey:        getEnv("AXIOM_API_KEY", ""),
		OrgID:         getEnv("AXIOM_ORG_ID", ""),
		Dataset:       baseDataset + "_docsuite",
		FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
	}

	cfg.Server = ServerConfig{
		Port:            getEnv("PORT", "8080"),
		MaxUploadMB:     parseInt(getEnv("MAX_UPLOAD_MB", "100"), 100),
		RequestTimeout:  parseDuration(getEnv("REQUEST_TIMEOUT", "5m"), 5*time.Minute),
		ShutdownTimeout: parseDuration(getEnv("SHUTDOWN_TIMEOUT", "30s"), 30*time.Second),
		InputRoot:       getEnv("INPUT_ROOT", ""),
	}

	cfg.Render = RenderConfig{
		MaxPixels:      parseInt(getEnv("RENDER_MAX_PIXELS", "268435456"), 268435456),
		ExportScale:    parseFloat(getEnv("EXPORT_SCALE", "2.0"), 2.0),
		ExportQuality:  parseFloat(getEnv("EXPORT_JPEG_QUALITY", "0.9"), 0.9),
		FlattenScale:   parseFloat(getEnv("FLATTEN_SCALE", "1.0"), 1.0),
		FlattenQuality: parseFloat(getEnv("FLATTEN_JPEG_QUALITY", "0.5"), 0.5),
	}

	cfg.Scan = ScanConfig{
		PageWidth:  parseFloat(getEnv("SCAN_PAGE_WIDTH", "595.28"), 595.28),
		PageHeight: parseFloat(getEnv("SCAN_PAGE_HEIGHT", "841.89"), 841.89),
	}

	cfg.Delivery = DeliveryConfig{
		Mode:            strings.ToLower(getEnv("DELIVERY_MODE", "download")),
		Dir:             getEnv("DELIVERY_DIR", "output"),
		Bucket:          getEnv("S3_BUCKET", ""),
		Prefix:          getEnv("S3_PREFIX", "shared"),
		PresignTTL:      parseDuration(getEnv("S3_PRESIGN_TTL", "24h"), 24*time.Hour),
		Region:          getEnv("AWS_REGION", "us-east-1"),
		AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
		SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
	}

	cfg.Jobs = JobsConfig{
		RedisURL:      getEnv("REDIS_URL", ""),
		StatusTTL:     parseDuration(getEnv("JOB_STATUS_TTL", "24h"), 24*time.Hour),
		MaxConcurrent: parseInt(getEnv("MAX_CONCURRENT_JOBS", "4"), 4),
		CleanupAge:    parseDuration(getEnv("JOB_CLEANUP_AGE", "1h"), time.Hour),
	}
	if cfg.Jobs.MaxConcurrent <= 0 {
		cfg.Jobs.MaxConcurrent = 1
	}

	return cfg
}

// MaxUploadBytes is the request body limit derived from MaxUploadMB.
func (s ServerConfig) MaxUploadBytes() int64 {
	return int64(s.MaxUploadMB) << 20
}

// Helpers
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

func parseFloat(s string, def float64) float64 {
	if s == "" {
		return def
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return def
}

func parseBool(s string) bool {
	v := strings.ToLower(strings.TrimSpace(s))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}

func devDefaultPretty() string {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))
	if env == "dev" || env == "development" || env == "local" {
		return "true"
	}
	return "false"
}
