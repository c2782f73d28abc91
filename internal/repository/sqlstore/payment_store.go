package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	domainErrors "github.com/cassiomorais/paybridge/internal/domain/errors"
	"github.com/cassiomorais/paybridge/internal/domain/payment"
)

// PaymentSchema maps payment.Payment onto pb_payments.
var PaymentSchema = Schema[payment.Payment]{
	Table:      "pb_payments",
	PrimaryKey: "payment_id",
	Columns: []string{
		"payment_id", "payment_link_id", "payment_link", "payment_guid", "product_id",
		"account_id", "user_id", "amount", "status", "created_at", "updated_at",
	},
	Writable: []string{
		"payment_link_id", "payment_link", "payment_guid", "product_id",
		"account_id", "user_id", "amount", "status", "updated_at",
	},
	Scan: scanPayment,
}

func scanPayment(s Scanner) (*payment.Payment, error) {
	var (
		p         payment.Payment
		userID    sql.NullString
		status    int
		updatedAt sql.NullTime
	)
	err := s.Scan(
		&p.ID, &p.LinkID, &p.Link, &p.GUID, &p.ProductID,
		&p.AccountID, &userID, &p.Amount, &status, &p.CreatedAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.UserID = userID.String
	p.Status = payment.Status(status)
	p.UpdatedAt = updatedAt.Time
	return &p, nil
}

// PaymentStore persists payment links and their settlement state.
type PaymentStore struct {
	repo *Repository[payment.Payment]
}

// NewPaymentStore creates a new PaymentStore.
func NewPaymentStore() *PaymentStore {
	return &PaymentStore{repo: NewRepository(PaymentSchema)}
}

// Create inserts a pending payment and returns the stored row. A nil result
// with a nil error means the backend produced no identity.
func (s *PaymentStore) Create(ctx context.Context, tx Tx, p *payment.Payment) (*payment.Payment, error) {
	return s.repo.Insert(ctx, tx, Fields{
		"payment_link_id": p.LinkID,
		"payment_link":    p.Link,
		"payment_guid":    p.GUID,
		"product_id":      p.ProductID,
		"account_id":      p.AccountID,
		"user_id":         nullString(p.UserID),
		"amount":          p.Amount,
		"status":          int(p.Status),
	})
}

// FindByLinkID looks a payment up by the gateway's link id.
func (s *PaymentStore) FindByLinkID(ctx context.Context, tx Tx, linkID string) (*payment.Payment, error) {
	return s.repo.FirstMatching(ctx, tx, "payment_link_id", linkID)
}

// LockByLinkID is FindByLinkID with a row lock held for the rest of tx.
// Concurrent settlements of the same link serialize here.
func (s *PaymentStore) LockByLinkID(ctx context.Context, tx Tx, linkID string) (*payment.Payment, error) {
	return s.repo.FirstMatchingForUpdate(ctx, tx, "payment_link_id", linkID)
}

// MarkNotified moves the payment from pending to notified. It returns
// ErrDuplicateSettlement when the row was no longer pending.
func (s *PaymentStore) MarkNotified(ctx context.Context, tx Tx, p *payment.Payment) error {
	if err := p.MarkNotified(); err != nil {
		return domainErrors.ErrDuplicateSettlement
	}
	n, err := s.repo.UpdateWhere(ctx, tx, p.ID, Fields{
		"status":     int(payment.StatusNotified),
		"updated_at": p.UpdatedAt.UTC().Truncate(time.Second),
	}, "status", int(payment.StatusPending))
	if err != nil {
		return fmt.Errorf("mark payment %d notified: %w", p.ID, err)
	}
	if n != 1 {
		return domainErrors.ErrDuplicateSettlement
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
