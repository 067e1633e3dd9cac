package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const (
	defaultBatchSize      = 5
	defaultMaxRetries     = 3
	defaultChunkSize      = 1000
	defaultChunkOverlap   = 200
	defaultServerPort     = 8080
	defaultTokenizerName  = "cl100k_base"
	defaultChatTemperature = 0.2
)

// Load reads the databases and models TOML files, merges in environment
// secrets (loading a .env file first if present, same as the teacher's
// root initialize.go), and applies defaults to the per-database sync knobs
// (batch_size, max_retries, chunk_size, chunk_overlap), the tokenizer
// encoding and the chat temperature when the files leave them at
// zero-value. Other fields keep whatever the files set.
func Load(databasesPath, modelsPath string) (Config, error) {
	_ = godotenv.Load()

	var dbCfg DatabasesConfig
	if _, err := toml.DecodeFile(databasesPath, &dbCfg); err != nil {
		return Config{}, fmt.Errorf("loading databases config %q: %w", databasesPath, err)
	}

	var modelsCfg ModelsConfig
	if _, err := toml.DecodeFile(modelsPath, &modelsCfg); err != nil {
		return Config{}, fmt.Errorf("loading models config %q: %w", modelsPath, err)
	}

	cfg := Config{
		Databases: dbCfg.Databases,
		Models:    modelsCfg,
		Server: ServerConfig{
			Host: envOr("RAGSERVER_HOST", "0.0.0.0"),
			Port: envIntOr("RAGSERVER_PORT", defaultServerPort),
		},
		Store: StoreConfig{
			Backend: envOr("STORE_BACKEND", "postgres"),
		},
		Redis: RedisConfig{
			Addr: os.Getenv("REDIS_ADDR"),
		},
		LogLevel: envOr("LOG_LEVEL", "info"),
		Secrets: Secrets{
			NotionAccessToken: os.Getenv("NOTION_ACCESS_TOKEN"),
			LLMAPIKey:         firstNonEmpty(os.Getenv("OPENAI_API_KEY"), os.Getenv("ANTHROPIC_API_KEY")),
			StoreDSN:          os.Getenv("STORE_DSN"),
		},
	}
	cfg.Store.DSN = cfg.Secrets.StoreDSN

	applyDefaults(&cfg)

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	for i := range cfg.Databases {
		d := &cfg.Databases[i]
		if d.BatchSize <= 0 {
			d.BatchSize = defaultBatchSize
		}
		if d.MaxRetries <= 0 {
			d.MaxRetries = defaultMaxRetries
		}
		if d.ChunkSize <= 0 {
			d.ChunkSize = defaultChunkSize
		}
		if d.ChunkOverlap <= 0 {
			d.ChunkOverlap = defaultChunkOverlap
		}
	}
	if cfg.Models.Tokenizer.Encoding == "" {
		cfg.Models.Tokenizer.Encoding = defaultTokenizerName
	}
	if cfg.Models.Chat.Temperature == 0 {
		cfg.Models.Chat.Temperature = defaultChatTemperature
	}
}

// validate rejects a config missing what every component needs to start:
// at least one database to sync, an embedding/chat model selection, and
// the Notion secret. Store DSN is intentionally not required here so unit
// tests can load a config without a live database.
func validate(cfg Config) error {
	if len(cfg.Databases) == 0 {
		return fmt.Errorf("config: at least one [[databases]] entry is required")
	}
	for _, d := range cfg.Databases {
		if d.DatabaseID == "" {
			return fmt.Errorf("config: database entry %q is missing database_id", d.Name)
		}
	}
	if cfg.Models.Embedding.Model == "" {
		return fmt.Errorf("config: models.embedding.model is required")
	}
	if cfg.Models.Chat.Model == "" {
		return fmt.Errorf("config: models.chat.model is required")
	}
	if cfg.Secrets.NotionAccessToken == "" {
		return fmt.Errorf("config: NOTION_ACCESS_TOKEN is required")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
