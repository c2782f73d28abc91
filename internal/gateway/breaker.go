package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cassiomorais/paybridge/internal/config"
	domainErrors "github.com/cassiomorais/paybridge/internal/domain/errors"
	"github.com/cassiomorais/paybridge/internal/observability"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Guarded wraps a Provider with a circuit breaker, metrics and a span. A 4xx
// answer wraps ErrUpstreamFailure and leaves the breaker alone; every other
// failure wraps ErrUpstreamUnavailable. It makes exactly one attempt per call.
type Guarded struct {
	provider Provider
	breaker  *gobreaker.CircuitBreaker[*LinkResult]
	metrics  *observability.Metrics
}

// BreakerSettings tunes the circuit breaker.
type BreakerSettings struct {
	// ConsecutiveFailures opens the breaker; 0 uses 5.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open before a trial request.
	OpenTimeout time.Duration
}

// NewGuarded wraps p. metrics may be nil.
func NewGuarded(p Provider, s BreakerSettings, metrics *observability.Metrics) *Guarded {
	threshold := s.ConsecutiveFailures
	if threshold == 0 {
		threshold = 5
	}
	g := &Guarded{provider: p, metrics: metrics}
	g.breaker = gobreaker.NewCircuitBreaker[*LinkResult](gobreaker.Settings{
		Name:        p.Name(),
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// a caller hanging up says nothing about the gateway
		IsExcluded: func(err error) bool {
			return errors.Is(err, context.Canceled)
		},
		// a refusal proves the gateway is up
		IsSuccessful: func(err error) bool {
			return err == nil || IsRejection(err)
		},
		OnStateChange: func(name string, _, to gobreaker.State) {
			if metrics != nil {
				metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			}
		},
	})
	if metrics != nil {
		metrics.CircuitBreakerState.WithLabelValues(p.Name()).Set(float64(gobreaker.StateClosed))
	}
	return g
}

func (g *Guarded) Name() string { return g.provider.Name() }

// State reports the breaker state.
func (g *Guarded) State() gobreaker.State { return g.breaker.State() }

func (g *Guarded) CreatePaymentLink(ctx context.Context, req LinkRequest) (*LinkResult, error) {
	ctx, span := otel.Tracer("paybridge/gateway").Start(ctx, "gateway.CreatePaymentLink")
	defer span.End()
	span.SetAttributes(
		attribute.String("gateway.provider", g.provider.Name()),
		attribute.Int64("product.id", req.ProductID),
	)

	start := time.Now()
	res, err := g.breaker.Execute(func() (*LinkResult, error) {
		return g.provider.CreatePaymentLink(ctx, req)
	})

	result := "success"
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		result = "rejected"
	case IsRejection(err):
		result = "declined"
	case err != nil:
		result = "error"
	case !res.Success:
		result = "declined"
	}
	if g.metrics != nil {
		g.metrics.GatewayRequestDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())
		g.metrics.CircuitBreakerRequests.WithLabelValues(g.provider.Name(), result).Inc()
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, result)
		if result == "declined" {
			return nil, fmt.Errorf("%w: %s: %w", domainErrors.ErrUpstreamFailure, g.provider.Name(), err)
		}
		return nil, fmt.Errorf("%w: %s: %w", domainErrors.ErrUpstreamUnavailable, g.provider.Name(), err)
	}
	span.SetAttributes(attribute.Bool("gateway.success", res.Success))
	return res, nil
}

// NewFromConfig builds the configured provider behind a breaker.
func NewFromConfig(cfg *config.GatewayConfig, metrics *observability.Metrics) (*Guarded, error) {
	var p Provider
	switch cfg.Provider {
	case "", "hyperpay":
		p = NewHyperPay(cfg.APIBase, cfg.APIKey, cfg.Timeout, WithRegionCode(cfg.RegionCode))
	case "mock":
		p = NewMockProvider()
	default:
		return nil, fmt.Errorf("unknown gateway provider %q", cfg.Provider)
	}
	return NewGuarded(p, BreakerSettings{
		ConsecutiveFailures: cfg.CircuitBreakerThreshold,
		OpenTimeout:         cfg.CircuitBreakerTimeout,
	}, metrics), nil
}
