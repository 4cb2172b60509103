package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/poiesic/normdoc/ai"
	"github.com/poiesic/normdoc/core"
	"github.com/poiesic/normdoc/retry"
)

const (
	DefaultBatchSize   = 32
	DefaultTimeout     = 30 * time.Second
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = 500 * time.Millisecond
)

// Generator produces normalized embeddings for chunk and query text.
// It is safe for concurrent use.
type Generator struct {
	embedder    ai.Embedder
	batchSize   int
	timeout     time.Duration
	maxAttempts int
	retryDelay  time.Duration
	limiter     *rate.Limiter
	dimensions  atomic.Int64
	logger      *slog.Logger
}

// Option configures a Generator.
type Option func(*Generator) error

// WithBatchSize sets how many texts are sent per provider call.
func WithBatchSize(size int) Option {
	return func(g *Generator) error {
		if size < 1 {
			return fmt.Errorf("batch size must be positive, got %d", size)
		}
		g.batchSize = size
		return nil
	}
}

// WithTimeout bounds each provider call.
func WithTimeout(timeout time.Duration) Option {
	return func(g *Generator) error {
		if timeout <= 0 {
			return fmt.Errorf("timeout must be positive, got %s", timeout)
		}
		g.timeout = timeout
		return nil
	}
}

// WithRetry sets the attempts per item and the base backoff delay.
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(g *Generator) error {
		if maxAttempts < 1 {
			return retry.ErrInvalidMaxAttempts
		}
		g.maxAttempts = maxAttempts
		g.retryDelay = baseDelay
		return nil
	}
}

// WithRateLimit caps provider calls per second. Zero disables limiting.
func WithRateLimit(perSecond float64) Option {
	return func(g *Generator) error {
		if perSecond <= 0 {
			g.limiter = nil
			return nil
		}
		burst := int(perSecond)
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		return nil
	}
}

// WithDimensions fixes the expected vector size. Without it the size of the
// first vector returned becomes the expectation.
func WithDimensions(dim int) Option {
	return func(g *Generator) error {
		if dim < 0 {
			return fmt.Errorf("dimensions cannot be negative, got %d", dim)
		}
		g.dimensions.Store(int64(dim))
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(g *Generator) error {
		if logger == nil {
			logger = slog.Default()
		}
		g.logger = logger
		return nil
	}
}

// NewGenerator creates a Generator around embedder.
func NewGenerator(embedder ai.Embedder, opts ...Option) (*Generator, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	g := &Generator{
		embedder:    embedder,
		batchSize:   DefaultBatchSize,
		timeout:     DefaultTimeout,
		maxAttempts: DefaultMaxAttempts,
		retryDelay:  DefaultRetryDelay,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(g); err != nil {
			return nil, err
		}
	}
	g.logger = g.logger.With("component", "embedding")
	return g, nil
}

// Dimensions returns the expected vector size, or 0 if not yet known.
func (g *Generator) Dimensions() int {
	return int(g.dimensions.Load())
}

// EmbedQuery embeds a single search query.
func (g *Generator) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, core.ErrEmptyContent
	}
	var vector []float32
	err := retry.Do(ctx, func(ctx context.Context) error {
		v, err := g.call(ctx, 1, func(ctx context.Context) ([][]float32, error) {
			v, err := g.embedder.EmbedText(ctx, text)
			return [][]float32{v}, err
		})
		if err != nil {
			return err
		}
		vector = v[0]
		return nil
	}, g.maxAttempts, g.retryDelay)
	if err != nil {
		return nil, g.classify(ctx, err)
	}
	return vector, nil
}

// Embed returns one normalized vector per text, in input order. Texts are
// sent in batches; when a batch fails its items are retried one at a time so
// that only the failing texts are requested again.
func (g *Generator) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	for i, text := range texts {
		if text == "" {
			return nil, fmt.Errorf("%w: text %d", core.ErrEmptyContent, i)
		}
	}

	vectors := make([][]float32, len(texts))
	for start := 0; start < len(texts); start += g.batchSize {
		end := min(start+g.batchSize, len(texts))
		batch := texts[start:end]

		if len(batch) > 1 {
			out, err := g.call(ctx, len(batch), func(ctx context.Context) ([][]float32, error) {
				return g.embedder.EmbedTexts(ctx, batch)
			})
			if err == nil {
				copy(vectors[start:end], out)
				continue
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			g.logger.Warn("batch embedding failed, isolating items", "size", len(batch), "err", err)
		}

		for i, text := range batch {
			v, err := g.embedOne(ctx, text)
			if err != nil {
				return nil, fmt.Errorf("text %d: %w", start+i, err)
			}
			vectors[start+i] = v
		}
	}
	return vectors, nil
}

func (g *Generator) embedOne(ctx context.Context, text string) ([]float32, error) {
	var vector []float32
	err := retry.Do(ctx, func(ctx context.Context) error {
		out, err := g.call(ctx, 1, func(ctx context.Context) ([][]float32, error) {
			return g.embedder.EmbedTexts(ctx, []string{text})
		})
		if err != nil {
			return err
		}
		vector = out[0]
		return nil
	}, g.maxAttempts, g.retryDelay)
	if err != nil {
		return nil, g.classify(ctx, err)
	}
	return vector, nil
}

// call waits for the rate limiter, invokes fn under the per-call timeout and
// validates and normalizes what comes back.
func (g *Generator) call(ctx context.Context, want int, fn func(ctx context.Context) ([][]float32, error)) ([][]float32, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	raw, err := fn(callCtx)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: %w", core.ErrEmbeddingTimeout, err)
		}
		return nil, err
	}
	if len(raw) != want {
		return nil, fmt.Errorf("%w: expected %d, received %d", ErrResultMismatch, want, len(raw))
	}

	out := make([][]float32, len(raw))
	for i, v := range raw {
		if err := g.checkDimensions(len(v)); err != nil {
			return nil, retry.Permanent(err)
		}
		if isZero(v) {
			return nil, retry.Permanent(ErrZeroVector)
		}
		out[i] = NormalizeVector(v)
	}
	return out, nil
}

func (g *Generator) checkDimensions(n int) error {
	if n == 0 {
		return fmt.Errorf("%w: empty vector", ErrDimensionMismatch)
	}
	if g.dimensions.CompareAndSwap(0, int64(n)) {
		g.logger.Debug("embedding dimensions detected", "dimensions", n)
		return nil
	}
	if want := g.dimensions.Load(); int64(n) != want {
		return fmt.Errorf("%w: expected %d, received %d", ErrDimensionMismatch, want, n)
	}
	return nil
}

// classify maps an exhausted retry loop onto the core taxonomy.
func (g *Generator) classify(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, core.ErrEmbeddingTimeout) {
		return err
	}
	return fmt.Errorf("%w: %w", core.ErrEmbeddingProviderUnavailable, err)
}
