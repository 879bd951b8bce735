package embedding

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"google.golang.org/genai"

	"github.com/vmlinuzx/llmc-sub017/internal/engerr"
	"github.com/vmlinuzx/llmc-sub017/internal/logging"
)

// maxBatchSize is the largest single EmbedContent request GenAI accepts;
// larger batches return a 400.
const maxBatchSize = 100

func int32Ptr(i int32) *int32 { return &i }

// GenAIEngine generates embeddings via Google's Gemini API.
type GenAIEngine struct {
	client   *genai.Client
	model    string
	taskType string
	dim      int
}

// NewGenAIEngine builds a GenAI-backed engine.
func NewGenAIEngine(apiKey, model, taskType string, dim int) (*GenAIEngine, error) {
	log := logging.Get(logging.CategoryEmbedding)

	if apiKey == "" {
		return nil, engerr.Config("NewGenAIEngine", fmt.Errorf("GenAI API key is required"))
	}
	if model == "" {
		model = "gemini-embedding-001"
	}
	if taskType == "" {
		taskType = "SEMANTIC_SIMILARITY"
	}
	if dim <= 0 {
		dim = 3072
	}

	start := time.Now()
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, engerr.Backend("NewGenAIEngine", engerr.BackendHTTPError, err, map[string]any{"backend": "genai:" + model})
	}
	log.Debug("genai client created", zap.Duration("latency", time.Since(start)), zap.String("model", model))

	return &GenAIEngine{client: client, model: model, taskType: taskType, dim: dim}, nil
}

// Embed generates an embedding for a single text.
func (e *GenAIEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := e.embedBatchChunk(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, engerr.Backend("Embed", engerr.BackendParseError, fmt.Errorf("no embeddings returned"), map[string]any{"backend": e.Name()})
	}
	return out[0], nil
}

// EmbedBatch generates embeddings for multiple texts, chunking at
// maxBatchSize since GenAI rejects larger single requests.
func (e *GenAIEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if len(texts) <= maxBatchSize {
		return e.embedBatchChunk(ctx, texts)
	}

	log := logging.Get(logging.CategoryEmbedding)
	numBatches := (len(texts) + maxBatchSize - 1) / maxBatchSize
	log.Debug("chunking genai batch", zap.Int("texts", len(texts)), zap.Int("batches", numBatches))

	all := make([][]float32, 0, len(texts))
	for i := 0; i < numBatches; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		start := i * maxBatchSize
		end := start + maxBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		chunk, err := e.embedBatchChunk(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("batch %d/%d: %w", i+1, numBatches, err)
		}
		all = append(all, chunk...)
	}
	return all, nil
}

func (e *GenAIEngine) embedBatchChunk(ctx context.Context, texts []string) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}

	start := time.Now()
	result, err := e.client.Models.EmbedContent(ctx, e.model, contents, &genai.EmbedContentConfig{
		OutputDimensionality: int32Ptr(int32(e.dim)),
	})
	latency := time.Since(start)
	if err != nil {
		return nil, engerr.Backend("EmbedContent", engerr.BackendHTTPError, err, map[string]any{"backend": e.Name(), "latency_ms": latency.Milliseconds()})
	}

	out := make([][]float32, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		out[i] = emb.Values
	}
	return out, nil
}

// Dimensions returns the configured output width.
func (e *GenAIEngine) Dimensions() int { return e.dim }

// Name identifies the engine for logging and enrichment attempt records.
func (e *GenAIEngine) Name() string { return fmt.Sprintf("genai:%s", e.model) }
