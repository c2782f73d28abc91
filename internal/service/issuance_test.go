package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/cassiomorais/paybridge/internal/config"
	domainErrors "github.com/cassiomorais/paybridge/internal/domain/errors"
	"github.com/cassiomorais/paybridge/internal/domain/payment"
	"github.com/cassiomorais/paybridge/internal/gateway"
	"github.com/cassiomorais/paybridge/internal/observability"
	"github.com/cassiomorais/paybridge/internal/repository/sqlstore"
	"github.com/cassiomorais/paybridge/internal/testutil"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Test Helpers ---

type issuanceFixture struct {
	svc      *IssuanceService
	uow      *testutil.MockUnitOfWork
	products *testutil.MockProductStore
	payments *testutil.MockPaymentStore
	gw       *testutil.MockGateway
	metrics  *observability.Metrics
}

func setupIssuance(t *testing.T) *issuanceFixture {
	t.Helper()
	f := &issuanceFixture{
		uow:      testutil.NewMockUnitOfWork(),
		products: testutil.NewMockProductStore(),
		payments: testutil.NewMockPaymentStore(),
		gw:       &testutil.MockGateway{},
		metrics:  observability.NewMetrics("test", prometheus.NewRegistry()),
	}
	f.products.AddProduct(testutil.NewTestProduct(5, "Gold Pack", "9.99", "500"))
	app := config.AppConfig{Name: "PayBridge", URL: "https://bridge.example.com/"}
	f.svc = NewIssuanceService(f.uow, f.products, f.payments, f.gw, app, f.metrics, zerolog.Nop())
	return f
}

func (f *issuanceFixture) issued(outcome string) float64 {
	return promtest.ToFloat64(f.metrics.IssuanceTotal.WithLabelValues(outcome))
}

func requirePublic(t *testing.T, err error, want string) {
	t.Helper()
	require.Error(t, err)
	msg, ok := domainErrors.PublicMessage(err)
	assert.True(t, ok, "expected a business outcome, got %v", err)
	assert.Equal(t, want, msg)
}

// --- Issue Tests ---

func TestIssue_Success(t *testing.T) {
	f := setupIssuance(t)

	res, err := f.svc.Issue(context.Background(), IssueRequest{AccountID: "ABC123", ProductID: 5})
	require.NoError(t, err)
	require.NotNil(t, res.Payment)

	p := res.Payment
	assert.NotZero(t, p.ID)
	assert.Equal(t, "LNK-1", p.LinkID)
	assert.Equal(t, "ABC123", p.AccountID)
	assert.Equal(t, int64(5), p.ProductID)
	assert.Equal(t, "9.99", p.Amount.StringFixed(2))
	assert.Equal(t, payment.StatusPending, p.Status)
	assert.Empty(t, p.UserID)
	assert.JSONEq(t, string(testutil.SuccessfulLink("LNK-1").Raw), string(res.Raw))

	stored := f.payments.GetByLinkID("LNK-1")
	require.NotNil(t, stored, "payment should be committed")
	assert.Equal(t, payment.StatusPending, stored.Status)

	require.Len(t, f.gw.Requests, 1)
	req := f.gw.Requests[0]
	assert.Equal(t, "ABC123", req.OrderID)
	assert.Equal(t, "https://bridge.example.com/api/notify", req.NotifyURL)
	assert.Equal(t, "PayBridge - Gold Pack", req.ProductName)
	assert.Equal(t, "9.99", req.TotalAmount.StringFixed(2))
	assert.Equal(t, int64(5), req.ProductID)

	begins, commits, rollbacks, releases := f.uow.Counts()
	assert.Equal(t, 1, begins)
	assert.Equal(t, 1, commits)
	assert.Equal(t, 0, rollbacks)
	assert.Equal(t, 1, releases)
	assert.Equal(t, float64(1), f.issued("success"))
}

func TestIssue_KeepsUserID(t *testing.T) {
	f := setupIssuance(t)

	res, err := f.svc.Issue(context.Background(), IssueRequest{AccountID: "ABC123", UserID: "u42", ProductID: 5})
	require.NoError(t, err)
	assert.Equal(t, "u42", res.Payment.UserID)
}

func TestIssue_AmountIsPriceSnapshot(t *testing.T) {
	f := setupIssuance(t)

	res, err := f.svc.Issue(context.Background(), IssueRequest{AccountID: "ABC123", ProductID: 5})
	require.NoError(t, err)

	f.products.AddProduct(testutil.NewTestProduct(5, "Gold Pack", "19.99", "500"))
	stored := f.payments.GetByLinkID(res.Payment.LinkID)
	require.NotNil(t, stored)
	assert.Equal(t, "9.99", stored.Amount.StringFixed(2))
}

func TestIssue_InvalidInput_NeverBegins(t *testing.T) {
	tests := []struct {
		name string
		req  IssueRequest
		want string
	}{
		{"missing account", IssueRequest{ProductID: 5}, "Account id is required."},
		{"account with dash", IssueRequest{AccountID: "abc-123", ProductID: 5}, "Account ID must be alphanumeric (a-z, A-Z, 0-9)."},
		{"account with space", IssueRequest{AccountID: "abc 123", ProductID: 5}, "Account ID must be alphanumeric (a-z, A-Z, 0-9)."},
		{"user with symbol", IssueRequest{AccountID: "ABC123", UserID: "u_1", ProductID: 5}, "User ID must be alphanumeric (a-z, A-Z, 0-9)."},
		{"zero product", IssueRequest{AccountID: "ABC123"}, "product_id is required and must be a positive integer."},
		{"negative product", IssueRequest{AccountID: "ABC123", ProductID: -1}, "product_id is required and must be a positive integer."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupIssuance(t)

			_, err := f.svc.Issue(context.Background(), tt.req)
			requirePublic(t, err, tt.want)
			assert.ErrorIs(t, err, domainErrors.ErrValidationFailed)

			begins, _, _, _ := f.uow.Counts()
			assert.Equal(t, 0, begins)
			assert.Equal(t, 0, f.gw.Calls)
			assert.Equal(t, float64(1), f.issued("invalid"))
		})
	}
}

func TestIssue_UnknownProduct(t *testing.T) {
	f := setupIssuance(t)

	_, err := f.svc.Issue(context.Background(), IssueRequest{AccountID: "ABC123", ProductID: 999})
	requirePublic(t, err, "Product not found.")

	assert.Equal(t, 0, f.gw.Calls)
	assert.Equal(t, 0, f.payments.Count())
	_, commits, rollbacks, releases := f.uow.Counts()
	assert.Equal(t, 0, commits)
	assert.Equal(t, 1, rollbacks)
	assert.Equal(t, 1, releases)
	assert.Equal(t, float64(1), f.issued("not_found"))
}

func TestIssue_GatewayUnavailable(t *testing.T) {
	f := setupIssuance(t)
	f.gw.CreatePaymentLinkFunc = func(ctx context.Context, req gateway.LinkRequest) (*gateway.LinkResult, error) {
		return nil, errors.Join(domainErrors.ErrUpstreamUnavailable, errors.New("connection refused"))
	}

	_, err := f.svc.Issue(context.Background(), IssueRequest{AccountID: "ABC123", ProductID: 5})
	requirePublic(t, err, "Failed to connect HyperPay API.")
	assert.ErrorIs(t, err, domainErrors.ErrUpstreamUnavailable)

	assert.Equal(t, 1, f.gw.Calls)
	assert.Equal(t, 0, f.payments.Count())
	assert.Equal(t, 0, f.payments.Writes)
	_, commits, rollbacks, _ := f.uow.Counts()
	assert.Equal(t, 0, commits)
	assert.Equal(t, 1, rollbacks)
	assert.Equal(t, float64(1), f.issued("unavailable"))
}

func TestIssue_GatewayRejectedRequest(t *testing.T) {
	f := setupIssuance(t)
	f.gw.CreatePaymentLinkFunc = func(ctx context.Context, req gateway.LinkRequest) (*gateway.LinkResult, error) {
		return nil, fmt.Errorf("%w: hyperpay: %w", domainErrors.ErrUpstreamFailure, &gateway.StatusError{Code: 400})
	}

	_, err := f.svc.Issue(context.Background(), IssueRequest{AccountID: "ABC123", ProductID: 5})
	requirePublic(t, err, "Failed to connect HyperPay API.")
	assert.ErrorIs(t, err, domainErrors.ErrUpstreamFailure)
	assert.NotErrorIs(t, err, domainErrors.ErrUpstreamUnavailable)

	var de *domainErrors.DomainError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "upstream_failure", de.Code)
	assert.Equal(t, 0, f.payments.Count())
	assert.Equal(t, float64(1), f.issued("declined"))
}

func TestIssue_GatewayDeclined(t *testing.T) {
	f := setupIssuance(t)
	f.gw.CreatePaymentLinkFunc = func(ctx context.Context, req gateway.LinkRequest) (*gateway.LinkResult, error) {
		return testutil.DeclinedLink(), nil
	}

	_, err := f.svc.Issue(context.Background(), IssueRequest{AccountID: "ABC123", ProductID: 5})
	requirePublic(t, err, "Payment failed.")
	assert.ErrorIs(t, err, domainErrors.ErrUpstreamFailure)

	assert.Equal(t, 0, f.payments.Count())
	assert.Equal(t, float64(1), f.issued("declined"))
}

func TestIssue_SuccessWithoutLinkID(t *testing.T) {
	f := setupIssuance(t)
	f.gw.CreatePaymentLinkFunc = func(ctx context.Context, req gateway.LinkRequest) (*gateway.LinkResult, error) {
		return &gateway.LinkResult{Success: true}, nil
	}

	_, err := f.svc.Issue(context.Background(), IssueRequest{AccountID: "ABC123", ProductID: 5})
	requirePublic(t, err, "Payment failed.")
	assert.Equal(t, 0, f.payments.Count())
}

func TestIssue_InsertWithoutIdentity(t *testing.T) {
	f := setupIssuance(t)
	f.payments.CreateFunc = func(ctx context.Context, tx sqlstore.Tx, p *payment.Payment) (*payment.Payment, error) {
		return nil, nil
	}

	_, err := f.svc.Issue(context.Background(), IssueRequest{AccountID: "ABC123", ProductID: 5})
	require.Error(t, err)
	msg, ok := domainErrors.PublicMessage(err)
	assert.False(t, ok)
	assert.Equal(t, "Internal Error", msg)
	assert.ErrorIs(t, err, domainErrors.ErrPersistence)

	_, commits, rollbacks, _ := f.uow.Counts()
	assert.Equal(t, 0, commits)
	assert.Equal(t, 1, rollbacks)
	assert.Equal(t, float64(1), f.issued("persistence"))
}

func TestIssue_StorageFailure(t *testing.T) {
	f := setupIssuance(t)
	dbErr := errors.New("deadlock found")
	f.payments.CreateFunc = func(ctx context.Context, tx sqlstore.Tx, p *payment.Payment) (*payment.Payment, error) {
		return nil, dbErr
	}

	_, err := f.svc.Issue(context.Background(), IssueRequest{AccountID: "ABC123", ProductID: 5})
	require.ErrorIs(t, err, dbErr)
	_, ok := domainErrors.PublicMessage(err)
	assert.False(t, ok)
	assert.Equal(t, float64(1), f.issued("error"))
}

func TestIssue_BeginFailure(t *testing.T) {
	f := setupIssuance(t)
	f.uow.BeginFunc = func(ctx context.Context) (sqlstore.Tx, error) {
		return nil, errors.New("pool exhausted")
	}

	_, err := f.svc.Issue(context.Background(), IssueRequest{AccountID: "ABC123", ProductID: 5})
	require.Error(t, err)
	assert.Equal(t, 0, f.gw.Calls)
}

func TestIssue_CommitFailure(t *testing.T) {
	f := setupIssuance(t)
	f.uow.CommitErr = errors.New("connection reset")

	_, err := f.svc.Issue(context.Background(), IssueRequest{AccountID: "ABC123", ProductID: 5})
	require.Error(t, err)
	assert.Equal(t, 0, f.payments.Count())
	assert.Equal(t, 1, f.gw.Calls)
}

func TestIssue_NilMetrics(t *testing.T) {
	products := testutil.NewMockProductStore()
	products.AddProduct(testutil.NewTestProduct(5, "Gold Pack", "9.99", "500"))
	svc := NewIssuanceService(testutil.NewMockUnitOfWork(), products, testutil.NewMockPaymentStore(),
		&testutil.MockGateway{}, config.AppConfig{URL: "http://localhost:3000"}, nil, zerolog.Nop())

	_, err := svc.Issue(context.Background(), IssueRequest{AccountID: "ABC123", ProductID: 5})
	require.NoError(t, err)
}
