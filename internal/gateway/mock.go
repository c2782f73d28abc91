package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
)

var errSimulatedTimeout = errors.New("simulated gateway timeout")

// MockProvider issues fake links without leaving the process. It is used
// for local runs with gateway.provider=mock.
type MockProvider struct {
	failureRate float64 // 0.0 to 1.0
	latency     time.Duration
	timeoutRate float64 // 0.0 to 1.0
	baseURL     string
}

type MockProviderOption func(*MockProvider)

func WithFailureRate(rate float64) MockProviderOption {
	return func(p *MockProvider) { p.failureRate = rate }
}

func WithLatency(d time.Duration) MockProviderOption {
	return func(p *MockProvider) { p.latency = d }
}

func WithTimeoutRate(rate float64) MockProviderOption {
	return func(p *MockProvider) { p.timeoutRate = rate }
}

func NewMockProvider(opts ...MockProviderOption) *MockProvider {
	p := &MockProvider{
		latency: 100 * time.Millisecond,
		baseURL: "https://pay.mock.local/link/",
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *MockProvider) Name() string { return "mock" }

func (p *MockProvider) CreatePaymentLink(ctx context.Context, req LinkRequest) (*LinkResult, error) {
	select {
	case <-time.After(p.latency):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if rand.Float64() < p.timeoutRate {
		return nil, errSimulatedTimeout
	}

	if rand.Float64() < p.failureRate {
		raw, _ := json.Marshal(map[string]any{
			"success": false,
			"message": fmt.Sprintf("simulated failure for order %s", req.OrderID),
		})
		return &LinkResult{Success: false, Raw: raw}, nil
	}

	linkID := "MOCK-" + uuid.New().String()[:8]
	guid := uuid.New().String()
	url := p.baseURL + linkID

	raw, err := json.Marshal(map[string]any{
		"success": true,
		"data": map[string]string{
			"paymentLinkID": linkID,
			"paymentUrl":    url,
			"paymentGuid":   guid,
		},
	})
	if err != nil {
		return nil, err
	}

	return &LinkResult{Success: true, LinkID: linkID, URL: url, GUID: guid, Raw: raw}, nil
}
