package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const DefaultDimensions = 768

// Provider produces a raw embedding for a text.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Vector is an embedding result. Degraded vectors are all-zero stand-ins
// produced when the provider could not be reached.
type Vector struct {
	Values   []float32
	Degraded bool
}

type Embedder struct {
	provider   Provider
	dimensions int
	timeout    time.Duration
	workers    int
	limiter    *rate.Limiter
	logger     *slog.Logger
}

type Options struct {
	Dimensions int
	Timeout    time.Duration
	// RequestsPerSecond of zero disables rate limiting.
	RequestsPerSecond float64
	Burst             int
	Workers           int
}

func New(p Provider, opts Options, logger *slog.Logger) *Embedder {
	if opts.Dimensions <= 0 {
		opts.Dimensions = DefaultDimensions
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	return &Embedder{
		provider:   p,
		dimensions: opts.Dimensions,
		timeout:    opts.Timeout,
		workers:    opts.Workers,
		limiter:    rate.NewLimiter(limit, opts.Burst),
		logger:     logger,
	}
}

func (e *Embedder) Dimensions() int { return e.dimensions }

// Embed never fails: any provider error, timeout or dimension mismatch
// yields a degraded zero vector.
func (e *Embedder) Embed(ctx context.Context, text string) Vector {
	values, err := e.embed(ctx, text)
	if err != nil {
		e.logger.Warn("embedding failed, using zero vector",
			"error", err,
			"text_len", len(text),
		)
		return Vector{Values: make([]float32, e.dimensions), Degraded: true}
	}
	return Vector{Values: values}
}

func (e *Embedder) embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	values, err := e.provider.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(values) != e.dimensions {
		return nil, fmt.Errorf("dimension mismatch: got %d, want %d", len(values), e.dimensions)
	}
	return values, nil
}

// EmbedAll embeds texts concurrently and returns vectors in input order.
func (e *Embedder) EmbedAll(ctx context.Context, texts []string) []Vector {
	out := make([]Vector, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, text := range texts {
		g.Go(func() error {
			out[i] = e.Embed(gctx, text)
			return nil
		})
	}
	_ = g.Wait()
	return out
}
