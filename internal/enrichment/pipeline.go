// Package enrichment implements C8: the orchestration layer that turns a
// pending span into a persisted Enrichment by walking a Router-selected
// backend cascade, validating the result, and tracking failures.
package enrichment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/vmlinuzx/llmc-sub017/internal/catalog"
	"github.com/vmlinuzx/llmc-sub017/internal/engerr"
	"github.com/vmlinuzx/llmc-sub017/internal/logging"
	"github.com/vmlinuzx/llmc-sub017/internal/model"
	"github.com/vmlinuzx/llmc-sub017/internal/router"
)

// Config tunes cascade retry policy.
type Config struct {
	// Cooldown gates re-attempting a (span, backend) pair that recently
	// failed, and also bounds how far back PendingEnrichments looks.
	Cooldown time.Duration
	// MaxFailures permanently skips a (span, backend) pair once its
	// total failure count reaches this ceiling (0 = unbounded).
	MaxFailures int
}

// DefaultConfig returns sane cascade retry defaults.
func DefaultConfig() Config {
	return Config{Cooldown: 10 * time.Minute, MaxFailures: 5}
}

// Pipeline runs the enrichment cascade for pending spans.
type Pipeline struct {
	store  *catalog.Store
	router *router.Router
	caller Caller
	cfg    Config
}

// New builds a Pipeline.
func New(store *catalog.Store, rt *router.Router, caller Caller, cfg Config) *Pipeline {
	return &Pipeline{store: store, router: rt, caller: caller, cfg: cfg}
}

// SpanResult records the outcome of processing one span.
type SpanResult struct {
	SpanHash string
	Outcome  string // "success", "failed", "skipped"
	Backend  string
	Quality  model.Quality
}

// BatchResult is the return value of ProcessBatch.
type BatchResult struct {
	TotalPending int
	Attempted    int
	Succeeded    int
	Failed       int
	Skipped      int
	Duration     time.Duration
	Results      []SpanResult
}

// ProcessBatch pulls up to limit pending spans and runs the enrichment
// cascade for each, persisting successes and recording failures.
func (p *Pipeline) ProcessBatch(ctx context.Context, limit int) (BatchResult, error) {
	log := logging.Get(logging.CategoryEnrichment)
	start := time.Now()

	pending, err := p.store.PendingEnrichments(limit, p.cfg.Cooldown)
	if err != nil {
		return BatchResult{}, fmt.Errorf("list pending enrichments: %w", err)
	}

	result := BatchResult{TotalPending: len(pending)}

	for _, ps := range pending {
		select {
		case <-ctx.Done():
			result.Duration = time.Since(start)
			return result, ctx.Err()
		default:
		}

		sr := p.processSpan(ctx, ps)
		result.Results = append(result.Results, sr)
		switch sr.Outcome {
		case "success":
			result.Attempted++
			result.Succeeded++
		case "failed":
			result.Attempted++
			result.Failed++
		default:
			result.Skipped++
		}
	}

	result.Duration = time.Since(start)
	log.Info("enrichment batch complete",
		zap.Int("total_pending", result.TotalPending),
		zap.Int("attempted", result.Attempted),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", result.Failed),
		zap.Int("skipped", result.Skipped),
		zap.Duration("duration", result.Duration))
	return result, nil
}

func (p *Pipeline) processSpan(ctx context.Context, ps catalog.PendingSpan) SpanResult {
	log := logging.Get(logging.CategoryEnrichment)
	sp := ps.Span

	view := router.EnrichmentSliceView{
		SpanHash:         sp.SpanHash,
		FilePath:         sp.FilePath,
		StartLine:        sp.StartLine,
		EndLine:          sp.EndLine,
		ContentType:      contentTypeOf(sp),
		ApproxTokenCount: approxTokenCount(sp.Text),
		PriorFailures:    sumFailures(ps.FailureCounts),
	}
	decision := p.router.Route(view)
	prompt := BuildPrompt(sp, nil)

	var attempts []model.AttemptRecord
	anyAttempted := false

	for _, spec := range decision.BackendSpecs {
		backendName := spec.Provider + ":" + spec.Model

		fs, err := p.store.FailureState(sp.SpanHash, backendName)
		if err != nil {
			log.Warn("failure state lookup failed", zap.Error(err))
		}
		if p.cfg.MaxFailures > 0 && fs.Count >= p.cfg.MaxFailures {
			continue
		}
		if !fs.LastFailedAt.IsZero() && time.Since(fs.LastFailedAt) < p.cfg.Cooldown {
			continue
		}

		anyAttempted = true
		attemptStart := time.Now()
		raw, meta, err := p.caller.Call(ctx, spec, prompt)
		durationMS := time.Since(attemptStart).Milliseconds()

		if err != nil {
			outcome := outcomeFor(err)
			attempts = append(attempts, model.AttemptRecord{
				Backend: backendName, Outcome: outcome, Message: err.Error(),
				Attempted: attemptStart, DurationMS: durationMS,
			})
			_ = p.store.RecordEnrichmentFailure(sp.SpanHash, backendName)
			waitWithBackoff(ctx)
			continue
		}

		payload, verr := ParseAndValidate(raw, sp)
		if verr != nil {
			attempts = append(attempts, model.AttemptRecord{
				Backend: backendName, Outcome: "parse_error", Message: verr.Error(),
				Attempted: attemptStart, DurationMS: durationMS,
			})
			_ = p.store.RecordEnrichmentFailure(sp.SpanHash, backendName)
			waitWithBackoff(ctx)
			continue
		}

		attempts = append(attempts, model.AttemptRecord{
			Backend: backendName, Outcome: "success", Attempted: attemptStart, DurationMS: durationMS,
		})
		quality := ClassifyQuality(payload.Summary)
		enr := model.Enrichment{
			SpanHash:        sp.SpanHash,
			Summary:         payload.Summary,
			KeyTopics:       payload.KeyTopics,
			Complexity:      model.Complexity(payload.Complexity),
			Model:           spec.Model,
			BackendHost:     spec.Host,
			TokensPerSecond: meta.TokensPerSecond(),
			AttemptsLog:     attempts,
			Quality:         quality,
			CreatedAt:       time.Now(),
		}
		if err := p.store.WriteEnrichment(sp.SpanHash, enr); err != nil {
			log.Error("write enrichment failed", zap.Error(err), zap.String("span_hash", sp.SpanHash))
			return SpanResult{SpanHash: sp.SpanHash, Outcome: "failed", Backend: backendName}
		}
		_ = p.store.ClearEnrichmentFailures(sp.SpanHash, backendName)
		return SpanResult{SpanHash: sp.SpanHash, Outcome: "success", Backend: backendName, Quality: quality}
	}

	if !anyAttempted {
		return SpanResult{SpanHash: sp.SpanHash, Outcome: "skipped"}
	}
	return SpanResult{SpanHash: sp.SpanHash, Outcome: "failed"}
}

// waitWithBackoff sleeps one exponential-backoff interval between cascade
// attempts, or returns early on context cancellation.
func waitWithBackoff(ctx context.Context) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	select {
	case <-ctx.Done():
	case <-time.After(b.NextBackOff()):
	}
}

func outcomeFor(err error) string {
	var e *engerr.Error
	if errors.As(err, &e) && e.Kind == engerr.KindBackend {
		return string(e.SubKind)
	}
	return "http_error"
}

func contentTypeOf(sp model.Span) router.ContentType {
	if sp.Kind == model.KindDocSection {
		return router.ContentDocs
	}
	return router.ContentCode
}

func approxTokenCount(text string) int {
	return len(text) / 4
}

func sumFailures(m map[string]int) int {
	total := 0
	for _, c := range m {
		total += c
	}
	return total
}
