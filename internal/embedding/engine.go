// Package embedding implements C6: vector generation behind a common
// interface, with backends for a local Ollama server, Google's GenAI
// embedding API, and a deterministic offline fallback for profiles with no
// reachable backend.
package embedding

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/vmlinuzx/llmc-sub017/internal/logging"
)

// Engine generates vector embeddings for text under one profile.
type Engine interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Name() string
}

// HealthChecker is implemented by engines that can verify backend
// reachability before a batch run.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Config selects and configures one embedding profile's backend.
type Config struct {
	Provider string // "ollama", "genai", or "hash"

	OllamaEndpoint string
	OllamaModel    string
	OllamaDim      int

	GenAIAPIKey string
	GenAIModel  string
	GenAIDim    int
	TaskType    string

	HashDim int
}

// New constructs an Engine for the given profile config.
func New(cfg Config) (Engine, error) {
	log := logging.Get(logging.CategoryEmbedding)
	log.Debug("creating embedding engine", zap.String("provider", cfg.Provider))

	switch cfg.Provider {
	case "ollama":
		return NewOllamaEngine(cfg.OllamaEndpoint, cfg.OllamaModel, cfg.OllamaDim), nil
	case "genai":
		return NewGenAIEngine(cfg.GenAIAPIKey, cfg.GenAIModel, cfg.TaskType, cfg.GenAIDim)
	case "hash", "":
		return NewHashEngine(cfg.HashDim), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider %q", cfg.Provider)
	}
}
