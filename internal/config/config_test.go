package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadReadsYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "tracking_uri: postgres://db/tracklab\nartifact_root: s3://bucket/artifacts\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("TRACKLAB_CONFIG", path)
	t.Setenv("TRACKLAB_TRACKING_URI", "")
	t.Setenv("TRACKLAB_ARTIFACT_ROOT", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.TrackingURI != "postgres://db/tracklab" {
		t.Fatalf("unexpected tracking uri: %s", cfg.TrackingURI)
	}
	if cfg.ArtifactRoot != "s3://bucket/artifacts" {
		t.Fatalf("unexpected artifact root: %s", cfg.ArtifactRoot)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("tracking_uri: mem://\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("TRACKLAB_CONFIG", path)
	t.Setenv("TRACKLAB_TRACKING_URI", "https://tracking.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.TrackingURI != "https://tracking.example.com" {
		t.Fatalf("env override lost: %s", cfg.TrackingURI)
	}
}

func TestMissingFileFallsBackToDefault(t *testing.T) {
	t.Setenv("TRACKLAB_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))
	t.Setenv("TRACKLAB_TRACKING_URI", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.TrackingURI != "mem://" {
		t.Fatalf("expected mem:// default, got %s", cfg.TrackingURI)
	}
}

func TestMalformedFileFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("tracking_uri: [oops\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("TRACKLAB_CONFIG", path)

	if _, err := Load(); err == nil {
		t.Fatalf("expected parse error")
	}
}
