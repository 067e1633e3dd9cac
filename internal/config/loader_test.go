package config

import (
	"os"
	"path/filepath"
	"testing"
)

const databasesTOML = `
[[databases]]
database_id = "db-1"
name = "Notes"
batch_size = 10
rate_limit_delay = "250ms"
chunk_size = 1500
chunk_overlap = 150
`

const modelsTOML = `
[embedding]
provider = "openai"
model = "text-embedding-3-small"
dimensions = 1536

[chat]
provider = "openai"
model = "gpt-4o-mini"
temperature = 0.1
max_tokens = 1024

[tokenizer]
encoding = "cl100k_base"
`

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestLoad_MergesTOMLAndEnvSecrets(t *testing.T) {
	t.Setenv("NOTION_ACCESS_TOKEN", "secret-token")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("STORE_DSN", "postgres://localhost/ragdb")

	dbPath := writeTemp(t, "databases.toml", databasesTOML)
	modelsPath := writeTemp(t, "models.toml", modelsTOML)

	cfg, err := Load(dbPath, modelsPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if len(cfg.Databases) != 1 {
		t.Fatalf("expected 1 database, got %d", len(cfg.Databases))
	}
	d := cfg.Databases[0]
	if d.DatabaseID != "db-1" || d.BatchSize != 10 {
		t.Fatalf("unexpected database entry: %+v", d)
	}
	if d.RateLimitDelay.Duration.String() != "250ms" {
		t.Fatalf("expected rate_limit_delay=250ms, got %v", d.RateLimitDelay.Duration)
	}
	if d.MaxRetries != defaultMaxRetries {
		t.Fatalf("expected default max_retries=%d, got %d", defaultMaxRetries, d.MaxRetries)
	}

	if cfg.Models.Embedding.Dimensions != 1536 {
		t.Fatalf("expected embedding dimensions 1536, got %d", cfg.Models.Embedding.Dimensions)
	}
	if cfg.Secrets.NotionAccessToken != "secret-token" {
		t.Fatalf("expected Notion token from env, got %q", cfg.Secrets.NotionAccessToken)
	}
	if cfg.Store.DSN != "postgres://localhost/ragdb" {
		t.Fatalf("expected store DSN from env, got %q", cfg.Store.DSN)
	}
}

func TestLoad_MissingDatabasesRejected(t *testing.T) {
	t.Setenv("NOTION_ACCESS_TOKEN", "secret-token")

	dbPath := writeTemp(t, "databases.toml", "")
	modelsPath := writeTemp(t, "models.toml", modelsTOML)

	if _, err := Load(dbPath, modelsPath); err == nil {
		t.Fatalf("expected an error when no databases are configured")
	}
}

func TestLoad_MissingNotionTokenRejected(t *testing.T) {
	dbPath := writeTemp(t, "databases.toml", databasesTOML)
	modelsPath := writeTemp(t, "models.toml", modelsTOML)

	if _, err := Load(dbPath, modelsPath); err == nil {
		t.Fatalf("expected an error when NOTION_ACCESS_TOKEN is unset")
	}
}

func TestLoad_ZeroChunkSizeGetsDefault(t *testing.T) {
	t.Setenv("NOTION_ACCESS_TOKEN", "secret-token")

	dbPath := writeTemp(t, "databases.toml", `
[[databases]]
database_id = "db-2"
name = "Tasks"
`)
	modelsPath := writeTemp(t, "models.toml", modelsTOML)

	cfg, err := Load(dbPath, modelsPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	d := cfg.Databases[0]
	if d.ChunkSize != defaultChunkSize || d.ChunkOverlap != defaultChunkOverlap || d.BatchSize != defaultBatchSize {
		t.Fatalf("expected defaults applied, got %+v", d)
	}
}
