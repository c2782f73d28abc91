package payment_test

import (
	"testing"

	"github.com/cassiomorais/paybridge/internal/domain/errors"
	"github.com/cassiomorais/paybridge/internal/domain/payment"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPending(t *testing.T) *payment.Payment {
	t.Helper()
	p, err := payment.NewPayment("LNK-1", "https://pay.example/LNK-1", "guid-1", 5, "ABC123", "", decimal.RequireFromString("9.99"))
	require.NoError(t, err)
	return p
}

func TestNewPayment_Valid(t *testing.T) {
	p := newPending(t)

	assert.Equal(t, payment.StatusPending, p.Status)
	assert.Equal(t, "LNK-1", p.LinkID)
	assert.Equal(t, int64(5), p.ProductID)
	assert.Equal(t, "9.99", p.Amount.StringFixed(2))
	assert.False(t, p.IsSettled())
}

func TestNewPayment_EmptyLinkID(t *testing.T) {
	_, err := payment.NewPayment("", "", "", 5, "ABC123", "", decimal.NewFromInt(1))
	assert.ErrorIs(t, err, errors.ErrValidationFailed)
}

func TestNewPayment_EmptyAccountID(t *testing.T) {
	_, err := payment.NewPayment("LNK-1", "", "", 5, "", "", decimal.NewFromInt(1))
	assert.ErrorIs(t, err, errors.ErrValidationFailed)
}

func TestNewPayment_NegativeAmount(t *testing.T) {
	_, err := payment.NewPayment("LNK-1", "", "", 5, "ABC123", "", decimal.NewFromInt(-1))
	assert.Error(t, err)
}

func TestMarkNotified_FromPending(t *testing.T) {
	p := newPending(t)

	require.NoError(t, p.MarkNotified())
	assert.Equal(t, payment.StatusNotified, p.Status)
	assert.True(t, p.IsSettled())
	assert.False(t, p.UpdatedAt.IsZero())
}

func TestMarkNotified_Twice(t *testing.T) {
	p := newPending(t)
	require.NoError(t, p.MarkNotified())

	err := p.MarkNotified()
	assert.ErrorIs(t, err, errors.ErrInvalidStateTransition)
	assert.Equal(t, payment.StatusNotified, p.Status)
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "pending", payment.StatusPending.String())
	assert.Equal(t, "notified", payment.StatusNotified.String())
	assert.Equal(t, "status(7)", payment.Status(7).String())
}
