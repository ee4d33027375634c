package embedding

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/terratile/support-service/internal/config"
	"github.com/terratile/support-service/internal/observability"
)

type fakeRemote struct {
	calls int
	vec   []float64
	err   error
}

func (f *fakeRemote) Embed(_ context.Context, _ string) ([]float64, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.vec, nil
}

func testConfig() config.EmbeddingConfig {
	return config.EmbeddingConfig{
		CacheTTLMinutes: 15,
		CooldownMinutes: 10,
	}
}

func newTestProvider(cfg config.EmbeddingConfig, remote remoteEmbedder) *Provider {
	return &Provider{
		cfg:     cfg,
		cache:   NewMemoryCache(cfg.CacheTTL()),
		remote:  remote,
		logger:  zap.NewNop(),
		metrics: observability.NewMetrics(),
		now:     time.Now,
	}
}

func TestLocalEmbedDeterministic(t *testing.T) {
	text := Normalize("The tile I ordered arrived cracked")
	first := localEmbed(text)
	second := localEmbed(text)
	require.Equal(t, first, second)

	// determinism must hold across provider instances too, so stored
	// fallback vectors stay comparable
	a := newTestProvider(testConfig(), nil)
	b := newTestProvider(testConfig(), nil)
	require.Equal(t,
		a.Embed(context.Background(), "grout color does not match the sample"),
		b.Embed(context.Background(), "grout color does not match the sample"))
}

func TestLocalEmbedNormalized(t *testing.T) {
	vec := localEmbed(Normalize("cracked tiles everywhere"))
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	assert.InDelta(t, 1.0, norm, 1e-9)
	assert.Len(t, vec, localDim)
}

func TestCosine(t *testing.T) {
	a := []float64{1, 0, 0}
	b := []float64{0, 1, 0}
	assert.InDelta(t, 0, Cosine(a, b), 1e-9)
	assert.InDelta(t, 1, Cosine(a, a), 1e-9)
	assert.InDelta(t, -1, Cosine(a, []float64{-1, 0, 0}), 1e-9)

	// zero-norm input never divides by zero
	assert.Equal(t, 0.0, Cosine(a, []float64{0, 0, 0}))
	assert.Equal(t, 0.0, Cosine(nil, a))

	// shared-prefix comparison for mixed-length vectors
	assert.InDelta(t, 1, Cosine([]float64{1, 0}, []float64{1, 0, 0.5, 0.5}), 1e-9)
}

func TestCosineBounded(t *testing.T) {
	texts := []string{
		"cracked tile delivery",
		"wrong grout shade shipped",
		"missing boxes from my order",
		"refund request for broken marble",
	}
	for _, first := range texts {
		for _, second := range texts {
			sim := Cosine(localEmbed(first), localEmbed(second))
			assert.GreaterOrEqual(t, sim, -1.0)
			assert.LessOrEqual(t, sim, 1.0)
		}
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "my tiles are cracked", Normalize("  My   Tiles\n are  CRACKED  "))

	long := make([]byte, 3000)
	for i := range long {
		long[i] = 'a'
	}
	assert.Len(t, Normalize(string(long)), maxInputChars)
}

func TestEmbedCacheHit(t *testing.T) {
	remote := &fakeRemote{vec: []float64{0.1, 0.2, 0.3}}
	p := newTestProvider(testConfig(), remote)

	first := p.Embed(context.Background(), "Chipped corner on porcelain tile")
	second := p.Embed(context.Background(), "chipped corner   on porcelain tile")
	require.Equal(t, first, second)
	assert.Equal(t, 1, remote.calls, "normalized duplicates must share one cache entry")
}

func TestEmbedRemoteFailureFallsBack(t *testing.T) {
	remote := &fakeRemote{err: &apiError{status: 500, body: "boom"}}
	p := newTestProvider(testConfig(), remote)

	vec := p.Embed(context.Background(), "slab arrived shattered")
	require.Len(t, vec, localDim)
	assert.Equal(t, localEmbed(Normalize("slab arrived shattered")), vec)
	// a plain server error does not open the cooldown
	assert.False(t, p.coolingDown())
}

func TestEmbedRateLimitOpensCooldown(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	remote := &fakeRemote{err: &apiError{status: 429, body: "rate limit"}}
	p := newTestProvider(testConfig(), remote)
	p.now = func() time.Time { return now }

	vec := p.Embed(context.Background(), "order never arrived")
	require.Len(t, vec, localDim)
	require.Equal(t, 1, remote.calls)

	// remote recovers, but cooldown keeps everything local
	remote.err = nil
	remote.vec = []float64{1, 2, 3}
	now = now.Add(5 * time.Minute)
	local := p.Embed(context.Background(), "totally different complaint")
	assert.Equal(t, 1, remote.calls)
	assert.Len(t, local, localDim)

	// after the cooldown window the remote path is used again
	now = now.Add(6 * time.Minute)
	fresh := p.Embed(context.Background(), "yet another complaint")
	assert.Equal(t, 2, remote.calls)
	assert.Equal(t, []float64{1, 2, 3}, fresh)
}

func TestMemoryCacheTTL(t *testing.T) {
	cache := NewMemoryCache(15 * time.Minute).(*memoryCache)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	cache.Set(context.Background(), "key", []float64{1})
	_, ok := cache.Get(context.Background(), "key")
	require.True(t, ok)

	now = now.Add(16 * time.Minute)
	_, ok = cache.Get(context.Background(), "key")
	assert.False(t, ok, "entries older than the TTL must not be served")
}
