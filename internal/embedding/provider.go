// Package embedding turns free text into fixed-length vectors for semantic
// comparison. The remote path gives quality embeddings; a deterministic
// local fallback keeps the pipeline working offline or while the remote
// provider is rate limited.
package embedding

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/terratile/support-service/internal/config"
	"github.com/terratile/support-service/internal/observability"
)

const maxInputChars = 1000

type remoteEmbedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Provider computes embeddings with caching and a rate-limit cooldown.
// Cache and cooldown state are owned by the instance, not package globals,
// so tests and concurrent handlers get isolated state.
type Provider struct {
	cfg     config.EmbeddingConfig
	cache   Cache
	remote  remoteEmbedder
	logger  *zap.Logger
	metrics *observability.Metrics

	mu            sync.Mutex
	cooldownUntil time.Time

	now func() time.Time
}

// NewProvider builds a Provider. With no API key configured every call
// takes the local path.
func NewProvider(cfg config.EmbeddingConfig, cache Cache, logger *zap.Logger, metrics *observability.Metrics) *Provider {
	p := &Provider{
		cfg:     cfg,
		cache:   cache,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
	if cfg.APIKey != "" {
		p.remote = newRemoteClient(cfg)
	}
	return p
}

// Embed returns a vector for text. It never fails: remote errors degrade
// to the deterministic local embedding instead of propagating.
func (p *Provider) Embed(ctx context.Context, text string) []float64 {
	normalized := Normalize(text)
	if vec, ok := p.cache.Get(ctx, normalized); ok {
		return vec
	}
	vec := p.compute(ctx, normalized)
	p.cache.Set(ctx, normalized, vec)
	return vec
}

func (p *Provider) compute(ctx context.Context, normalized string) []float64 {
	if p.remote == nil || p.coolingDown() {
		return localEmbed(normalized)
	}
	vec, err := p.remote.Embed(ctx, normalized)
	if err != nil {
		if isRateLimited(err) {
			p.startCooldown()
		}
		p.logger.Warn("remote embedding failed, using local fallback", zap.Error(err))
		p.metrics.Inc("embedding_local_fallback")
		return localEmbed(normalized)
	}
	return vec
}

func (p *Provider) coolingDown() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.now().Before(p.cooldownUntil)
}

func (p *Provider) startCooldown() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cooldownUntil = p.now().Add(p.cfg.Cooldown())
	p.metrics.Inc("embedding_cooldown_opened")
	p.logger.Warn("embedding provider rate limited, entering cooldown",
		zap.Time("until", p.cooldownUntil))
}

// Normalize lowercases, collapses whitespace, and truncates text. The
// normalized form is the cache key.
func Normalize(text string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(text)), " ")
	runes := []rune(normalized)
	if len(runes) > maxInputChars {
		return string(runes[:maxInputChars])
	}
	return normalized
}

// Cosine returns the cosine similarity of a and b over their shared-length
// prefix, in [-1, 1]. Empty or zero-norm input yields 0.
func Cosine(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func isRateLimited(err error) bool {
	var apiErr *apiError
	if errors.As(err, &apiErr) && apiErr.status == 429 {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "rate limit") || strings.Contains(msg, "quota")
}
