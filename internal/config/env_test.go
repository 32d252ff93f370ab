package config

import (
	"testing"
	"time"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, k := range []string{"PORT", "EXPORT_SCALE", "DELIVERY_MODE", "SCAN_PAGE_WIDTH", "MAX_CONCURRENT_JOBS", "AXIOM_DATASET", "INPUT_ROOT"} {
		t.Setenv(k, "")
	}
	cfg := FromEnv()
	if cfg.Server.Port != "8080" {
		t.Errorf("Port = %q", cfg.Server.Port)
	}
	if cfg.Render.ExportScale != 2.0 || cfg.Render.ExportQuality != 0.9 {
		t.Errorf("export preset = %v/%v", cfg.Render.ExportScale, cfg.Render.ExportQuality)
	}
	if cfg.Render.FlattenScale != 1.0 || cfg.Render.FlattenQuality != 0.5 {
		t.Errorf("flatten preset = %v/%v", cfg.Render.FlattenScale, cfg.Render.FlattenQuality)
	}
	if cfg.Scan.PageWidth != 595.28 || cfg.Scan.PageHeight != 841.89 {
		t.Errorf("scan page = %vx%v", cfg.Scan.PageWidth, cfg.Scan.PageHeight)
	}
	if cfg.Delivery.Mode != "download" || cfg.Delivery.PresignTTL != 24*time.Hour {
		t.Errorf("delivery = %+v", cfg.Delivery)
	}
	if cfg.Axiom.Dataset != "dev_docsuite" {
		t.Errorf("Dataset = %q", cfg.Axiom.Dataset)
	}
	if got := cfg.Server.MaxUploadBytes(); got != 100<<20 {
		t.Errorf("MaxUploadBytes = %d", got)
	}
	if cfg.Server.InputRoot != "" {
		t.Errorf("InputRoot = %q, want file references disabled", cfg.Server.InputRoot)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("DELIVERY_MODE", "S3")
	t.Setenv("EXPORT_SCALE", "3")
	t.Setenv("MAX_CONCURRENT_JOBS", "0")
	t.Setenv("JOB_STATUS_TTL", "not-a-duration")
	t.Setenv("LOG_PRETTY", "yes")
	t.Setenv("INPUT_ROOT", "/srv/inbox")

	cfg := FromEnv()
	if cfg.Delivery.Mode != "s3" {
		t.Errorf("Mode = %q", cfg.Delivery.Mode)
	}
	if cfg.Render.ExportScale != 3 {
		t.Errorf("ExportScale = %v", cfg.Render.ExportScale)
	}
	if cfg.Jobs.MaxConcurrent != 1 {
		t.Errorf("MaxConcurrent = %d, want clamp to 1", cfg.Jobs.MaxConcurrent)
	}
	if cfg.Jobs.StatusTTL != 24*time.Hour {
		t.Errorf("StatusTTL = %v, want default on parse error", cfg.Jobs.StatusTTL)
	}
	if !cfg.Logging.Pretty {
		t.Error("Pretty not set")
	}
	if cfg.Server.InputRoot != "/srv/inbox" {
		t.Errorf("InputRoot = %q", cfg.Server.InputRoot)
	}
}
