package service

import (
	"context"
	"errors"
	"testing"

	domainErrors "github.com/cassiomorais/paybridge/internal/domain/errors"
	"github.com/cassiomorais/paybridge/internal/domain/payment"
	"github.com/cassiomorais/paybridge/internal/domain/queue"
	"github.com/cassiomorais/paybridge/internal/observability"
	"github.com/cassiomorais/paybridge/internal/repository/sqlstore"
	"github.com/cassiomorais/paybridge/internal/testutil"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

const testAPIKey = "s3cr3t"

// --- Test Helpers ---

type settlementFixture struct {
	svc      *SettlementService
	uow      *testutil.MockUnitOfWork
	products *testutil.MockProductStore
	payments *testutil.MockPaymentStore
	queue    *testutil.MockQueueStore
	metrics  *observability.Metrics
}

func setupSettlement(t *testing.T, apiKey string) *settlementFixture {
	t.Helper()
	f := &settlementFixture{
		uow:      testutil.NewMockUnitOfWork(),
		products: testutil.NewMockProductStore(),
		payments: testutil.NewMockPaymentStore(),
		queue:    testutil.NewMockQueueStore(),
		metrics:  observability.NewMetrics("test", prometheus.NewRegistry()),
	}
	f.products.AddProduct(testutil.NewTestProduct(5, "Gold Pack", "9.99", "500"))
	pending := testutil.NewPendingPayment("LNK-1", "ABC123", 5, "9.99")
	pending.UserID = "u42"
	f.payments.AddPayment(pending)
	f.svc = NewSettlementService(f.uow, f.products, f.payments, f.queue, apiKey, f.metrics, zerolog.Nop())
	return f
}

func (f *settlementFixture) settled(outcome string) float64 {
	return promtest.ToFloat64(f.metrics.SettlementTotal.WithLabelValues(outcome))
}

func notify(productID, linkID string) SettleRequest {
	return SettleRequest{ProductID: productID, PaymentLinkID: linkID}
}

// --- Settle Tests ---

func TestSettle_Success(t *testing.T) {
	f := setupSettlement(t, testAPIKey)

	req := notify("5", "LNK-1")
	req.Extra = map[string]any{"status": "paid"}
	err := f.svc.Settle(context.Background(), testAPIKey, req)
	require.NoError(t, err)

	p := f.payments.GetByLinkID("LNK-1")
	require.NotNil(t, p)
	assert.Equal(t, payment.StatusNotified, p.Status)
	assert.False(t, p.UpdatedAt.IsZero())

	entries := f.queue.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, queue.Entry{
		ID:          1,
		PaymentID:   p.ID,
		AccountID:   "ABC123",
		UserID:      "u42",
		GameValue:   "500",
		IsProcessed: false,
		CreatedAt:   entries[0].CreatedAt,
	}, entries[0])

	begins, commits, rollbacks, releases := f.uow.Counts()
	assert.Equal(t, 1, begins)
	assert.Equal(t, 1, commits)
	assert.Equal(t, 0, rollbacks)
	assert.Equal(t, 1, releases)
	assert.Equal(t, float64(1), f.settled("success"))
}

func TestSettle_SecondCallbackIsDuplicate(t *testing.T) {
	f := setupSettlement(t, testAPIKey)
	ctx := context.Background()

	require.NoError(t, f.svc.Settle(ctx, testAPIKey, notify("5", "LNK-1")))
	paymentWrites, queueWrites := f.payments.Writes, f.queue.Writes

	err := f.svc.Settle(ctx, testAPIKey, notify("5", "LNK-1"))
	requirePublic(t, err, "Notification already received Payment Link - LNK-1")
	assert.ErrorIs(t, err, domainErrors.ErrDuplicateSettlement)

	assert.Equal(t, paymentWrites, f.payments.Writes, "duplicate must not touch payments")
	assert.Equal(t, queueWrites, f.queue.Writes, "duplicate must not enqueue")

	assert.Len(t, f.queue.Entries(), 1)
	assert.Equal(t, payment.StatusNotified, f.payments.GetByLinkID("LNK-1").Status)
	assert.Equal(t, float64(1), f.settled("duplicate"))
}

func TestSettle_ConcurrentCallbacksSettleOnce(t *testing.T) {
	f := setupSettlement(t, testAPIKey)
	const callers = 10

	results := make([]error, callers)
	var g errgroup.Group
	for i := range callers {
		g.Go(func() error {
			results[i] = f.svc.Settle(context.Background(), testAPIKey, notify("5", "LNK-1"))
			return nil
		})
	}
	require.NoError(t, g.Wait())

	var ok, dup int
	for _, err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domainErrors.ErrDuplicateSettlement):
			dup++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, callers-1, dup)
	assert.Len(t, f.queue.Entries(), 1)
	assert.Equal(t, payment.StatusNotified, f.payments.GetByLinkID("LNK-1").Status)
}

func TestSettle_BadAPIKey_NeverBegins(t *testing.T) {
	tests := []struct {
		name       string
		configured string
		presented  string
	}{
		{"wrong key", testAPIKey, "nope"},
		{"missing key", testAPIKey, ""},
		{"prefix of key", testAPIKey, testAPIKey[:3]},
		{"nothing configured", "", ""},
		{"nothing configured, key sent", "", "anything"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupSettlement(t, tt.configured)

			err := f.svc.Settle(context.Background(), tt.presented, notify("5", "LNK-1"))
			requirePublic(t, err, "Invalid ApiKey")
			assert.ErrorIs(t, err, domainErrors.ErrUnauthorized)

			begins, _, _, _ := f.uow.Counts()
			assert.Equal(t, 0, begins)
			assert.Equal(t, 0, f.products.Finds)
			assert.Equal(t, float64(1), f.settled("unauthorized"))
		})
	}
}

func TestSettle_InvalidInput_NeverBegins(t *testing.T) {
	tests := []struct {
		name string
		req  SettleRequest
		want string
	}{
		{"missing product", notify("", "LNK-1"), "ProductID is required."},
		{"missing link", notify("5", ""), "PaymentLinkID is required."},
		{"missing both", notify("", ""), "ProductID is required."},
		{"non-numeric product", notify("abc", "LNK-1"), "Invalid ProductID - abc"},
		{"zero product", notify("0", "LNK-1"), "Invalid ProductID - 0"},
		{"decimal product", notify("5.5", "LNK-1"), "Invalid ProductID - 5.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupSettlement(t, testAPIKey)

			err := f.svc.Settle(context.Background(), testAPIKey, tt.req)
			requirePublic(t, err, tt.want)

			begins, _, _, _ := f.uow.Counts()
			assert.Equal(t, 0, begins)
			assert.Equal(t, payment.StatusPending, f.payments.GetByLinkID("LNK-1").Status)
		})
	}
}

func TestSettle_UnknownProduct(t *testing.T) {
	f := setupSettlement(t, testAPIKey)

	err := f.svc.Settle(context.Background(), testAPIKey, notify("999", "LNK-1"))
	requirePublic(t, err, "Invalid ProductID - 999")

	assert.Equal(t, payment.StatusPending, f.payments.GetByLinkID("LNK-1").Status)
	assert.Empty(t, f.queue.Entries())
	_, commits, rollbacks, _ := f.uow.Counts()
	assert.Equal(t, 0, commits)
	assert.Equal(t, 1, rollbacks)
	assert.Equal(t, float64(1), f.settled("not_found"))
}

func TestSettle_UnknownLink(t *testing.T) {
	f := setupSettlement(t, testAPIKey)

	err := f.svc.Settle(context.Background(), testAPIKey, notify("5", "LNK-404"))
	requirePublic(t, err, "Invalid Payment Link - LNK-404")
	assert.ErrorIs(t, err, domainErrors.ErrNotFound)
	assert.Empty(t, f.queue.Entries())
}

func TestSettle_LostStatusRace(t *testing.T) {
	f := setupSettlement(t, testAPIKey)
	f.payments.MarkNotifiedFunc = func(ctx context.Context, tx sqlstore.Tx, p *payment.Payment) error {
		return domainErrors.ErrDuplicateSettlement
	}

	err := f.svc.Settle(context.Background(), testAPIKey, notify("5", "LNK-1"))
	requirePublic(t, err, "Notification already received Payment Link - LNK-1")

	assert.Empty(t, f.queue.Entries(), "queued job must roll back with the status write")
	_, commits, rollbacks, _ := f.uow.Counts()
	assert.Equal(t, 0, commits)
	assert.Equal(t, 1, rollbacks)
}

func TestSettle_EnqueueFailure(t *testing.T) {
	f := setupSettlement(t, testAPIKey)
	dbErr := errors.New("lock wait timeout exceeded")
	f.queue.EnqueueFunc = func(ctx context.Context, tx sqlstore.Tx, e *queue.Entry) (*queue.Entry, error) {
		return nil, dbErr
	}

	err := f.svc.Settle(context.Background(), testAPIKey, notify("5", "LNK-1"))
	require.ErrorIs(t, err, dbErr)
	_, ok := domainErrors.PublicMessage(err)
	assert.False(t, ok)
	assert.Equal(t, payment.StatusPending, f.payments.GetByLinkID("LNK-1").Status)
	assert.Equal(t, float64(1), f.settled("error"))
}

func TestSettle_CommitFailureLeavesPending(t *testing.T) {
	f := setupSettlement(t, testAPIKey)
	f.uow.CommitErr = errors.New("connection reset")

	err := f.svc.Settle(context.Background(), testAPIKey, notify("5", "LNK-1"))
	require.Error(t, err)
	assert.Equal(t, payment.StatusPending, f.payments.GetByLinkID("LNK-1").Status)
	assert.Empty(t, f.queue.Entries())

	// the failed attempt must not block a retry
	f.uow.CommitErr = nil
	require.NoError(t, f.svc.Settle(context.Background(), testAPIKey, notify("5", "LNK-1")))
	assert.Len(t, f.queue.Entries(), 1)
}
