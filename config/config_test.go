package config

import (
	"errors"
	"strings"
	"testing"
	"time"

	"auction-importer/storage"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("BACKEND_URL", "https://backend.example.com/")
	t.Setenv("BACKEND_API_KEY", "anon-key")
	t.Setenv("STORAGE_DRIVER", "")
	t.Setenv("INSERT_CHUNK_SIZE", "")
	t.Setenv("SCRAPER_TIMEOUT_MS", "")

	cfg := Load()

	if cfg.BackendURL != "https://backend.example.com" {
		t.Errorf("BackendURL: got %q, want trailing slash trimmed", cfg.BackendURL)
	}
	if cfg.Storage.Driver != "postgres" {
		t.Errorf("Storage.Driver: got %q, want postgres", cfg.Storage.Driver)
	}
	if cfg.Storage.ChunkSize != 1000 {
		t.Errorf("ChunkSize: got %d, want 1000", cfg.Storage.ChunkSize)
	}
	if cfg.Scraper.Timeout != 60*time.Second {
		t.Errorf("Scraper.Timeout: got %v, want 60s", cfg.Scraper.Timeout)
	}
	if cfg.Import.MaxRecords != 100000 {
		t.Errorf("MaxRecords: got %d, want 100000", cfg.Import.MaxRecords)
	}
	if cfg.Import.MaxBytes != 100*1024*1024 {
		t.Errorf("MaxBytes: got %d, want 100MB", cfg.Import.MaxBytes)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: unexpected error %v", err)
	}
}

func TestValidateMissingBackend(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		key     string
		missing []string
	}{
		{"both missing", "", "", []string{"BACKEND_URL", "BACKEND_API_KEY"}},
		{"key missing", "https://x", "", []string{"BACKEND_API_KEY"}},
		{"url missing", "", "k", []string{"BACKEND_URL"}},
	}

	for _, tt := range tests {
		cfg := &Config{BackendURL: tt.url, BackendAPIKey: tt.key, Storage: StorageConfig{ChunkSize: 1000}}
		err := cfg.Validate()
		if !errors.Is(err, ErrMissingBackend) {
			t.Errorf("%s: expected ErrMissingBackend, got %v", tt.name, err)
			continue
		}
		for _, m := range tt.missing {
			if !strings.Contains(err.Error(), m) {
				t.Errorf("%s: error %q should name %s", tt.name, err, m)
			}
		}
	}
}

func TestDSNPrefersDatabaseURL(t *testing.T) {
	cfg := &Config{Storage: StorageConfig{
		DatabaseURL:  "postgres://u:p@db:5432/x",
		PostgresHost: "ignored",
	}}
	if got := cfg.DSN(); got != "postgres://u:p@db:5432/x" {
		t.Errorf("DSN: got %q", got)
	}

	cfg.Storage.DatabaseURL = ""
	cfg.Storage.PostgresHost = "localhost"
	cfg.Storage.PostgresPort = "5432"
	if got := cfg.DSN(); !strings.Contains(got, "host=localhost port=5432") {
		t.Errorf("DSN: got %q", got)
	}
}

func TestEnvParsingFallbacks(t *testing.T) {
	t.Setenv("SCRAPER_RANDOM_UA", "nope")
	t.Setenv("REDIS_DB", "abc")
	t.Setenv("KAFKA_BROKERS", " a:1, ,b:2 ")

	cfg := Load()
	if !cfg.Scraper.RandomUserAgent {
		t.Error("invalid bool should fall back to true")
	}
	if cfg.Redis.DB != 0 {
		t.Errorf("invalid int should fall back to 0, got %d", cfg.Redis.DB)
	}
	if len(cfg.Events.KafkaBrokers) != 2 || cfg.Events.KafkaBrokers[1] != "b:2" {
		t.Errorf("KafkaBrokers: got %v", cfg.Events.KafkaBrokers)
	}
	if cfg.RedisAddr() != "" && cfg.Redis.Host == "" {
		t.Error("RedisAddr should be empty without REDIS_HOST")
	}
}

func TestValidateChunkSize(t *testing.T) {
	tests := []struct {
		size int
		ok   bool
	}{
		{0, false},
		{-1, false},
		{1, true},
		{1000, true},
		{storage.MaxChunkSize, true},
		{storage.MaxChunkSize + 1, false},
		{10000, false},
	}
	for _, tt := range tests {
		cfg := &Config{BackendURL: "https://x", BackendAPIKey: "k", Storage: StorageConfig{ChunkSize: tt.size}}
		err := cfg.Validate()
		if (err == nil) != tt.ok {
			t.Errorf("ChunkSize %d: got err %v, want ok=%v", tt.size, err, tt.ok)
		}
		if err := cfg.ValidateStorage(); (err == nil) != tt.ok {
			t.Errorf("ChunkSize %d: ValidateStorage got %v", tt.size, err)
		}
	}
}
