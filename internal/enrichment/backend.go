package enrichment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vmlinuzx/llmc-sub017/internal/engerr"
	"github.com/vmlinuzx/llmc-sub017/internal/router"
)

// Caller invokes one backend spec with a prompt and returns its raw text
// response (expected to be, or contain, a JSON Payload) plus the backend's
// generation metadata. Pluggable so tests can substitute a fake without a
// network round trip.
type Caller interface {
	Call(ctx context.Context, spec router.BackendSpec, prompt string) (string, CallMeta, error)
}

// CallMeta carries backend-reported generation metadata, sufficient to
// compute tokens-per-second regardless of which provider answered.
type CallMeta struct {
	Model           string
	Host            string
	EvalCount       int
	EvalDuration    time.Duration
	PromptEvalCount int
	TotalDuration   time.Duration
}

// TokensPerSecond derives eval throughput from eval_count/eval_duration,
// the same ratio Ollama's own CLI reports. Zero if the backend didn't
// report eval timing.
func (m CallMeta) TokensPerSecond() float64 {
	if m.EvalDuration <= 0 {
		return 0
	}
	return float64(m.EvalCount) / m.EvalDuration.Seconds()
}

// HTTPCaller calls an Ollama-compatible /api/generate endpoint. Adapters
// for other providers are not language-bound and can be swapped in via
// Caller without changing the pipeline.
type HTTPCaller struct {
	client *http.Client
}

// NewHTTPCaller builds an HTTPCaller with a sane default timeout, used
// only when a backend spec omits its own.
func NewHTTPCaller() *HTTPCaller {
	return &HTTPCaller{client: &http.Client{Timeout: 60 * time.Second}}
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	EvalCount       int    `json:"eval_count"`
	EvalDuration    int64  `json:"eval_duration"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	TotalDuration   int64  `json:"total_duration"`
}

// Call POSTs prompt to spec.Host+"/api/generate" and returns the raw
// "response" field, which the caller is expected to parse as a Payload,
// alongside the generation metadata needed to compute tokens-per-second.
func (c *HTTPCaller) Call(ctx context.Context, spec router.BackendSpec, prompt string) (string, CallMeta, error) {
	timeout := time.Duration(spec.Timeout) * time.Second
	if timeout <= 0 {
		timeout = c.client.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(generateRequest{Model: spec.Model, Prompt: prompt, Stream: false})
	if err != nil {
		return "", CallMeta{}, fmt.Errorf("marshal backend request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, spec.Host+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", CallMeta{}, fmt.Errorf("build backend request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", CallMeta{}, engerr.Backend("Call", engerr.BackendTimeout, err, map[string]any{"backend": spec.Provider + ":" + spec.Model})
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		b, _ := io.ReadAll(resp.Body)
		return "", CallMeta{}, engerr.Backend("Call", engerr.BackendRateLimited, fmt.Errorf("status %d: %s", resp.StatusCode, string(b)), nil)
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return "", CallMeta{}, engerr.Backend("Call", engerr.BackendHTTPError, fmt.Errorf("status %d: %s", resp.StatusCode, string(b)), nil)
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", CallMeta{}, engerr.Backend("Call", engerr.BackendParseError, err, nil)
	}
	meta := CallMeta{
		Model:           out.Model,
		Host:            spec.Host,
		EvalCount:       out.EvalCount,
		EvalDuration:    time.Duration(out.EvalDuration),
		PromptEvalCount: out.PromptEvalCount,
		TotalDuration:   time.Duration(out.TotalDuration),
	}
	return out.Response, meta, nil
}
