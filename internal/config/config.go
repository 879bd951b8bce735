// Package config loads the engine's single per-repo YAML configuration
// file, following the teacher's config.Config/DefaultConfig pattern:
// every field has a sane default so a missing file still runs, and
// environment variables can override individual keys for CI/container use.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all engine configuration, keyed exactly as spec §6.
type Config struct {
	Indexer      IndexerConfig               `yaml:"indexer"`
	Embeddings   EmbeddingsConfig             `yaml:"embeddings"`
	Enrichment   EnrichmentConfig             `yaml:"enrichment"`
	Daemon       DaemonConfig                 `yaml:"daemon"`
	Docs         DocsConfig                   `yaml:"docs"`
	SemanticCache SemanticCacheConfig         `yaml:"semantic_cache"`
	Logging      LoggingConfig                `yaml:"logging"`
}

// IndexerConfig configures C3.
type IndexerConfig struct {
	IgnoreGlobs []string `yaml:"ignore_globs"`
	MaxFileSize int64    `yaml:"max_file_size"`
	Sidecar     bool     `yaml:"sidecar"`
}

// EmbeddingsConfig configures C6's profiles.
type EmbeddingsConfig struct {
	Profiles map[string]EmbeddingProfile `yaml:"profiles"`
}

// EmbeddingProfile is one named embedding provider instance.
type EmbeddingProfile struct {
	Provider string        `yaml:"provider"` // "ollama", "genai", "hashfallback"
	Model    string        `yaml:"model"`
	Dim      int           `yaml:"dim"`
	URL      string        `yaml:"url"`
	Timeout  time.Duration `yaml:"timeout"`
}

// EnrichmentConfig configures C7/C8.
type EnrichmentConfig struct {
	Chains map[string]Chain `yaml:"chains"`
	Router RouterConfig     `yaml:"router"`
}

// Chain is an ordered cascade of backend specs.
type Chain struct {
	Backends []BackendSpec `yaml:"backends"`
}

// BackendSpec names all material to instantiate an enrichment backend adapter.
type BackendSpec struct {
	Provider        string            `yaml:"provider"`
	Model           string            `yaml:"model"`
	URL             string            `yaml:"url"`
	TimeoutSeconds  int               `yaml:"timeout_seconds"`
	Options         map[string]string `yaml:"options"`
	ConnectTimeout  int               `yaml:"connect_timeout"`
	MaxFailures     int               `yaml:"max_failures"`
	CooldownSeconds int               `yaml:"cooldown_seconds"`
}

// RouterConfig configures C7's rule ordering.
type RouterConfig struct {
	Rules []RouterRule `yaml:"rules"`
}

// RouterRule is one routing priority rule.
type RouterRule struct {
	Priority int    `yaml:"priority"`
	Match    string `yaml:"match"` // "conceptual", "density", "complexity"
	ChainID  string `yaml:"chain_id"`
}

// DaemonConfig configures C10.
type DaemonConfig struct {
	Mode                string        `yaml:"mode"` // "event" | "poll"
	DebounceSeconds     int           `yaml:"debounce_seconds"`
	HousekeepingInterval time.Duration `yaml:"housekeeping_interval"`
	NiceLevel           int           `yaml:"nice_level"`
}

// DocsConfig configures MAASL's docgen coordinator.
type DocsConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Backend        string   `yaml:"backend"`
	OutputDir      string   `yaml:"output_dir"`
	RequireRAGFresh bool    `yaml:"require_rag_fresh"`
	SizeCap        int64    `yaml:"size_cap"`
	ScriptAllowlist []string `yaml:"script_allowlist"`
}

// SemanticCacheConfig configures the optional semantic query cache.
type SemanticCacheConfig struct {
	Enabled bool    `yaml:"enabled"`
	MinScore float64 `yaml:"min_score"`
}

// LoggingConfig is the ambient logging section.
type LoggingConfig struct {
	Debug    bool     `yaml:"debug"`
	JSON     bool     `yaml:"json"`
	Disabled []string `yaml:"disabled_categories"`
}

// DefaultConfig returns the engine's default configuration. Every field is
// populated so an engine can run against an empty/missing config file.
func DefaultConfig() *Config {
	return &Config{
		Indexer: IndexerConfig{
			IgnoreGlobs: []string{
				"node_modules/**", "vendor/**", ".venv/**", "venv/**",
				"__pycache__/**", "*.pyc", "dist/**", "build/**", ".git/**",
			},
			MaxFileSize: 2 << 20, // 2 MiB
			Sidecar:     false,
		},
		Embeddings: EmbeddingsConfig{
			Profiles: map[string]EmbeddingProfile{
				"code": {
					Provider: "ollama",
					Model:    "embeddinggemma",
					Dim:      768,
					URL:      "http://localhost:11434",
					Timeout:  30 * time.Second,
				},
				"docs": {
					Provider: "hashfallback",
					Model:    "hashfallback-v1",
					Dim:      256,
					Timeout:  5 * time.Second,
				},
			},
		},
		Enrichment: EnrichmentConfig{
			Chains: map[string]Chain{
				"default": {
					Backends: []BackendSpec{
						{
							Provider:        "ollama",
							Model:           "qwen2.5:7b",
							URL:             "http://localhost:11434",
							TimeoutSeconds:  20,
							ConnectTimeout:  5,
							MaxFailures:     3,
							CooldownSeconds: 300,
						},
					},
				},
			},
			Router: RouterConfig{
				Rules: []RouterRule{
					{Priority: 0, Match: "conceptual", ChainID: "skip"},
					{Priority: 10, Match: "density", ChainID: "default"},
					{Priority: 20, Match: "complexity", ChainID: "default"},
				},
			},
		},
		Daemon: DaemonConfig{
			Mode:                 "event",
			DebounceSeconds:      2,
			HousekeepingInterval: 5 * time.Minute,
			NiceLevel:            10,
		},
		Docs: DocsConfig{
			Enabled:         false,
			Backend:         "none",
			OutputDir:       "DOCS/REPODOCS",
			RequireRAGFresh: true,
			SizeCap:         10 << 20, // 10 MiB
			ScriptAllowlist: nil,
		},
		SemanticCache: SemanticCacheConfig{
			Enabled:  false,
			MinScore: 0.92,
		},
		Logging: LoggingConfig{
			Debug: false,
			JSON:  true,
		},
	}
}

// Load reads the config file at path, merging onto DefaultConfig. A
// missing file is not an error: defaults are returned as-is. After the file
// is parsed, the fixed set of LLMC_<SECTION>_<KEY> environment variables
// read by applyEnvOverrides override their fields.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides mirrors the teacher's env_override_test.go pattern:
// a small fixed set of high-value overrides rather than full reflection-
// based binding, since the config surface is enumerated in spec §6.
func applyEnvOverrides(cfg *Config) {
	if v, ok := os.LookupEnv("LLMC_DAEMON_MODE"); ok {
		cfg.Daemon.Mode = v
	}
	if v, ok := os.LookupEnv("LLMC_DAEMON_DEBOUNCE_SECONDS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Daemon.DebounceSeconds = n
		}
	}
	if v, ok := os.LookupEnv("LLMC_LOGGING_DEBUG"); ok {
		cfg.Logging.Debug = strings.EqualFold(v, "true") || v == "1"
	}
	if v, ok := os.LookupEnv("LLMC_INDEXER_MAX_FILE_SIZE"); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Indexer.MaxFileSize = n
		}
	}
}
