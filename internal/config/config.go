// Package config loads the two TOML files that drive a ragserver process:
// a databases file enumerating Notion databases to sync plus per-database
// sync settings, and a models file selecting embedding/chat model names and
// tokenizer encoding. Secrets never live in either file; they come from the
// environment (optionally via a .env file in development), mirroring the
// teacher's root `initialize.go`.
package config

import "time"

// DatabaseSync is one [[databases]] table entry: a Notion database to keep
// in sync plus the knobs that govern how its pages are ingested.
type DatabaseSync struct {
	DatabaseID      string            `toml:"database_id"`
	Name            string            `toml:"name"`
	BatchSize       int               `toml:"batch_size"`
	RateLimitDelay  duration          `toml:"rate_limit_delay"`
	MaxRetries      int               `toml:"max_retries"`
	ChunkSize       int               `toml:"chunk_size"`
	ChunkOverlap    int               `toml:"chunk_overlap"`
	Filters         map[string]string `toml:"filters"`
	FieldDefinitions []string         `toml:"field_definitions"`
}

// duration unmarshals a TOML string ("2s", "500ms") into a time.Duration.
type duration struct{ time.Duration }

func (d *duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// DatabasesConfig is the root of the databases TOML file.
type DatabasesConfig struct {
	Databases []DatabaseSync `toml:"databases"`
}

// EmbeddingModelConfig selects the embedding model and its vector width.
type EmbeddingModelConfig struct {
	Provider   string `toml:"provider"`
	Model      string `toml:"model"`
	Dimensions int    `toml:"dimensions"`
}

// ChatModelConfig selects the chat/completions model used for context,
// summary, title, and session-summary generation.
type ChatModelConfig struct {
	Provider    string  `toml:"provider"`
	Model       string  `toml:"model"`
	Temperature float64 `toml:"temperature"`
	MaxTokens   int     `toml:"max_tokens"`
}

// TokenizerConfig selects the BPE encoding used for token counting.
type TokenizerConfig struct {
	Encoding string `toml:"encoding"`
}

// ModelsConfig is the root of the models TOML file.
type ModelsConfig struct {
	Embedding EmbeddingModelConfig `toml:"embedding"`
	Chat      ChatModelConfig      `toml:"chat"`
	Tokenizer TokenizerConfig      `toml:"tokenizer"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	DSN     string `toml:"-"` // from STORE_DSN, never serialized
	Backend string `toml:"backend"`
}

// RedisConfig configures the distributed session lock. Addr empty means
// the session manager falls back to an in-process mutex.
type RedisConfig struct {
	Addr string `toml:"addr"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// Secrets are populated exclusively from the environment, never from TOML.
type Secrets struct {
	NotionAccessToken string
	LLMAPIKey         string
	StoreDSN          string
}

// Config is the fully assembled, immutable configuration tree a ragserver
// process runs with.
type Config struct {
	Server    ServerConfig
	Store     StoreConfig
	Redis     RedisConfig
	Databases []DatabaseSync
	Models    ModelsConfig
	LogLevel  string
	Secrets   Secrets
}
