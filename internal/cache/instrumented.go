package cache

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	metricsOnce    sync.Once
	cacheOps       metric.Int64Counter
	cacheOpSeconds metric.Float64Histogram
)

func initMetrics() {
	metricsOnce.Do(func() {
		meter := otel.Meter("github.com/demoray/azure-identity-helpers/internal/cache")

		var err error
		cacheOps, err = meter.Int64Counter(
			"token_cache.operations",
			metric.WithDescription("Total token cache operations"),
		)
		if err != nil {
			otel.Handle(err)
		}

		cacheOpSeconds, err = meter.Float64Histogram(
			"token_cache.operation.duration",
			metric.WithDescription("Token cache operation duration"),
			metric.WithUnit("s"),
		)
		if err != nil {
			otel.Handle(err)
		}
	})
}

// Instrumented decorates a TokenCache with operation counters, duration
// histograms and span attributes.
type Instrumented[T any] struct {
	wrapped   TokenCache[T]
	cacheType string
}

// NewInstrumented wraps cache with metrics instrumentation. cacheType
// labels the backing implementation in emitted metrics.
func NewInstrumented[T any](cache TokenCache[T], cacheType string) *Instrumented[T] {
	initMetrics()
	return &Instrumented[T]{
		wrapped:   cache,
		cacheType: cacheType,
	}
}

func (i *Instrumented[T]) Get(ctx context.Context, key string) (T, bool, error) {
	start := time.Now()
	value, found, err := i.wrapped.Get(ctx, key)

	status := "miss"
	if err != nil {
		status = "error"
	} else if found {
		status = "hit"
	}
	i.observe(ctx, "get", status, time.Since(start))

	return value, found, err
}

func (i *Instrumented[T]) Set(ctx context.Context, key string, value T) error {
	start := time.Now()
	err := i.wrapped.Set(ctx, key, value)
	i.observe(ctx, "set", errStatus(err), time.Since(start))
	return err
}

func (i *Instrumented[T]) Invalidate(ctx context.Context, key string) error {
	start := time.Now()
	err := i.wrapped.Invalidate(ctx, key)
	i.observe(ctx, "invalidate", errStatus(err), time.Since(start))
	return err
}

func (i *Instrumented[T]) Close() error {
	return i.wrapped.Close()
}

// observe records the operation across the counter, the histogram and the
// current span.
func (i *Instrumented[T]) observe(ctx context.Context, operation, status string, duration time.Duration) {
	if cacheOps != nil {
		cacheOps.Add(ctx, 1,
			metric.WithAttributes(
				attribute.String("cache.type", i.cacheType),
				attribute.String("cache.operation", operation),
				attribute.String("cache.status", status),
			),
		)
	}

	if cacheOpSeconds != nil {
		cacheOpSeconds.Record(ctx, duration.Seconds(),
			metric.WithAttributes(
				attribute.String("cache.type", i.cacheType),
				attribute.String("cache.operation", operation),
			),
		)
	}

	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.String("cache.type", i.cacheType),
		attribute.String("cache."+operation+".status", status),
		attribute.Float64("cache."+operation+".duration", duration.Seconds()),
	)
}

func errStatus(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
