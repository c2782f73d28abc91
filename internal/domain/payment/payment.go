package payment

import (
	"fmt"
	"time"

	"github.com/cassiomorais/paybridge/internal/domain/errors"
	"github.com/shopspring/decimal"
)

// Status represents the payment status in the state machine
type Status int

const (
	StatusPending  Status = 0
	StatusNotified Status = 1
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusNotified:
		return "notified"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Payment is an issued payment link and its settlement state.
type Payment struct {
	ID        int64
	LinkID    string // opaque id issued by the gateway, unique
	Link      string
	GUID      string
	ProductID int64
	AccountID string
	UserID    string // optional
	Amount    decimal.Decimal
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewPayment creates a pending payment. The amount is a snapshot of the
// product price at issuance and is never re-read from the product.
func NewPayment(linkID, link, guid string, productID int64, accountID, userID string, amount decimal.Decimal) (*Payment, error) {
	if linkID == "" {
		return nil, errors.NewValidationError("payment_link_id", "must not be empty")
	}
	if accountID == "" {
		return nil, errors.NewValidationError("account_id", "must not be empty")
	}
	if amount.IsNegative() {
		return nil, errors.NewValidationError("amount", "must not be negative")
	}

	return &Payment{
		LinkID:    linkID,
		Link:      link,
		GUID:      guid,
		ProductID: productID,
		AccountID: accountID,
		UserID:    userID,
		Amount:    amount,
		Status:    StatusPending,
	}, nil
}

// CanTransitionTo checks if the payment can transition to the given status
func (p *Payment) CanTransitionTo(newStatus Status) bool {
	return p.Status == StatusPending && newStatus == StatusNotified
}

// MarkNotified moves a pending payment to notified. It fails for any other
// starting state, so a payment is notified at most once.
func (p *Payment) MarkNotified() error {
	if !p.CanTransitionTo(StatusNotified) {
		return errors.NewDomainError(
			"invalid_transition",
			"cannot transition from "+p.Status.String()+" to "+StatusNotified.String(),
			errors.ErrInvalidStateTransition,
		)
	}
	p.Status = StatusNotified
	p.UpdatedAt = time.Now()
	return nil
}

// IsSettled reports whether the settlement callback was already applied.
func (p *Payment) IsSettled() bool {
	return p.Status != StatusPending
}
