package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/vmlinuzx/llmc-sub017/internal/engerr"
	"github.com/vmlinuzx/llmc-sub017/internal/logging"
)

// OllamaEngine generates embeddings against a local Ollama server.
type OllamaEngine struct {
	endpoint string
	model    string
	dim      int
	client   *http.Client
}

// NewOllamaEngine builds an Ollama-backed engine with sane defaults.
func NewOllamaEngine(endpoint, model string, dim int) *OllamaEngine {
	if endpoint == "" {
		endpoint = "http://localhost:11434"
	}
	if model == "" {
		model = "embeddinggemma"
	}
	if dim <= 0 {
		dim = 768
	}
	return &OllamaEngine{
		endpoint: endpoint,
		model:    model,
		dim:      dim,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed generates an embedding for a single text.
func (e *OllamaEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	log := logging.Get(logging.CategoryEmbedding)

	body, err := json.Marshal(ollamaEmbedRequest{Model: e.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("marshal ollama request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, engerr.Backend("Embed", engerr.BackendTimeout, err, map[string]any{"backend": e.Name()})
	}
	defer resp.Body.Close()
	log.Debug("ollama embed request", zap.Duration("latency", time.Since(start)), zap.Int("status", resp.StatusCode))

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, engerr.Backend("Embed", engerr.BackendHTTPError, fmt.Errorf("status %d: %s", resp.StatusCode, string(b)), map[string]any{"backend": e.Name()})
	}

	var out ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, engerr.Backend("Embed", engerr.BackendParseError, err, map[string]any{"backend": e.Name()})
	}
	return out.Embedding, nil
}

// EmbedBatch calls Embed sequentially; Ollama has no native batch endpoint.
func (e *OllamaEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("embed text %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// Dimensions returns the configured vector width.
func (e *OllamaEngine) Dimensions() int { return e.dim }

// Name identifies the engine for logging and enrichment attempt records.
func (e *OllamaEngine) Name() string { return fmt.Sprintf("ollama:%s", e.model) }

// HealthCheck pings Ollama's root endpoint.
func (e *OllamaEngine) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return engerr.Backend("HealthCheck", engerr.BackendTimeout, err, map[string]any{"backend": e.Name()})
	}
	defer resp.Body.Close()
	return nil
}
