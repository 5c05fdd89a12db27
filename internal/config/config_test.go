package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/NamanBalaji/wsdl/internal/config"
)

var envKeys = []string{
	"WEBSHARE_USERNAME", "WEBSHARE_PASSWORD", "DOWNLOAD_PATH", "MOVIES_PATH", "SERIES_PATH",
	"PLEX_URL", "PLEX_TOKEN", "PORT", "DEBUG", "LOG_FILE", "MAX_CONCURRENT_DOWNLOADS", "RATE_LIMIT", "HISTORY_DB",
}

// clearEnv blanks every variable GetConfig reads so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()

	if cfg.Server.Port != 5000 {
		t.Errorf("expected port 5000, got %d", cfg.Server.Port)
	}
	if cfg.Engine.MaxConcurrentDownloads != 3 {
		t.Errorf("expected MaxConcurrentDownloads 3, got %d", cfg.Engine.MaxConcurrentDownloads)
	}
	if cfg.Engine.GracePeriod != 30*time.Second {
		t.Errorf("expected grace period 30s, got %v", cfg.Engine.GracePeriod)
	}
	if cfg.Storage.ChunkSize != 8192 {
		t.Errorf("expected chunk size 8192, got %d", cfg.Storage.ChunkSize)
	}
	if cfg.Storage.MoviesDir != "/downloads/movies" || cfg.Storage.SeriesDir != "/downloads/series" {
		t.Errorf("unexpected destination dirs: %s, %s", cfg.Storage.MoviesDir, cfg.Storage.SeriesDir)
	}
	if cfg.PlexEnabled() {
		t.Error("expected plex to be disabled without a token")
	}
}

func TestGetConfig_Integration(t *testing.T) {
	t.Run("No Config File Returns Defaults", func(t *testing.T) {
		clearEnv(t)

		cfg, err := config.GetConfig([]string{"-config", filepath.Join(t.TempDir(), "missing.yaml")})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Engine.MaxConcurrentDownloads != 3 {
			t.Errorf("expected defaults when file missing, got %d", cfg.Engine.MaxConcurrentDownloads)
		}
		if cfg.Addr() != "0.0.0.0:5000" {
			t.Errorf("unexpected addr %s", cfg.Addr())
		}
	})

	t.Run("Empty Config File Returns Defaults", func(t *testing.T) {
		clearEnv(t)
		path := writeConfig(t, "")

		cfg, err := config.GetConfig([]string{"-config", path})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Storage.ChunkSize != 8192 {
			t.Errorf("expected defaults when file empty")
		}
	})

	t.Run("Valid Config File Overrides Defaults", func(t *testing.T) {
		clearEnv(t)
		path := writeConfig(t, `
server:
  port: 8081
storage:
  root: /data
  chunkSize: 4096
engine:
  maxConcurrentDownloads: 7
  failedRetention: 10m
plex:
  token: abc
`)

		cfg, err := config.GetConfig([]string{"-config", path})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Server.Port != 8081 {
			t.Errorf("expected port 8081, got %d", cfg.Server.Port)
		}
		if cfg.Storage.MoviesDir != "/data/movies" {
			t.Errorf("expected movies dir derived from root, got %s", cfg.Storage.MoviesDir)
		}
		if cfg.Storage.ChunkSize != 4096 {
			t.Errorf("expected chunk size 4096, got %d", cfg.Storage.ChunkSize)
		}
		if cfg.Engine.MaxConcurrentDownloads != 7 {
			t.Errorf("expected 7 concurrent downloads, got %d", cfg.Engine.MaxConcurrentDownloads)
		}
		if cfg.Engine.FailedRetention != 10*time.Minute {
			t.Errorf("expected failed retention 10m, got %v", cfg.Engine.FailedRetention)
		}
		if cfg.Engine.GracePeriod != 30*time.Second {
			t.Errorf("expected default grace period, got %v", cfg.Engine.GracePeriod)
		}
		if !cfg.PlexEnabled() {
			t.Error("expected plex enabled")
		}
	})

	t.Run("Environment Overrides File", func(t *testing.T) {
		clearEnv(t)
		path := writeConfig(t, "server:\n  port: 8081\n")
		t.Setenv("PORT", "9090")
		t.Setenv("WEBSHARE_USERNAME", "user")
		t.Setenv("WEBSHARE_PASSWORD", "secret")
		t.Setenv("DOWNLOAD_PATH", "/srv")
		t.Setenv("SERIES_PATH", "/tv")
		t.Setenv("PLEX_URL", "http://plex.local:32400/")
		t.Setenv("DEBUG", "True")

		cfg, err := config.GetConfig([]string{"-config", path})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Server.Port != 9090 {
			t.Errorf("expected env port 9090, got %d", cfg.Server.Port)
		}
		if cfg.Webshare.Username != "user" || cfg.Webshare.Password != "secret" {
			t.Errorf("credentials not applied")
		}
		if cfg.Storage.MoviesDir != "/srv/movies" || cfg.Storage.SeriesDir != "/tv" {
			t.Errorf("unexpected dirs %s %s", cfg.Storage.MoviesDir, cfg.Storage.SeriesDir)
		}
		if cfg.Plex.URL != "http://plex.local:32400" {
			t.Errorf("expected trailing slash trimmed, got %s", cfg.Plex.URL)
		}
		if !cfg.Server.Debug {
			t.Error("expected debug on")
		}
	})

	t.Run("Flags Override Environment", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("PORT", "9090")

		cfg, err := config.GetConfig([]string{
			"-config", filepath.Join(t.TempDir(), "none.yaml"),
			"-port", "7000", "-mcd", "1", "-dd", "/mnt",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Server.Port != 7000 {
			t.Errorf("expected flag port 7000, got %d", cfg.Server.Port)
		}
		if cfg.Engine.MaxConcurrentDownloads != 1 {
			t.Errorf("expected 1 concurrent download, got %d", cfg.Engine.MaxConcurrentDownloads)
		}
		if cfg.Storage.SeriesDir != "/mnt/series" {
			t.Errorf("expected /mnt/series, got %s", cfg.Storage.SeriesDir)
		}
	})

	t.Run("Malformed YAML", func(t *testing.T) {
		clearEnv(t)
		path := writeConfig(t, "server: [unclosed")

		if _, err := config.GetConfig([]string{"-config", path}); err == nil {
			t.Fatal("expected yaml error")
		}
	})

	t.Run("Invalid Values", func(t *testing.T) {
		clearEnv(t)
		path := writeConfig(t, "storage:\n  rateLimit: -5\n")

		_, err := config.GetConfig([]string{"-config", path})
		if !errors.Is(err, config.ErrInvalidConfig) {
			t.Fatalf("expected ErrInvalidConfig, got %v", err)
		}
	})

	t.Run("Unknown Flag", func(t *testing.T) {
		clearEnv(t)

		if _, err := config.GetConfig([]string{"-nope"}); err == nil {
			t.Fatal("expected flag parse error")
		}
	})
}
