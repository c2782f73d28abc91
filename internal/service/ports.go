package service

import (
	"context"

	"github.com/cassiomorais/paybridge/internal/domain/payment"
	"github.com/cassiomorais/paybridge/internal/domain/product"
	"github.com/cassiomorais/paybridge/internal/domain/queue"
	"github.com/cassiomorais/paybridge/internal/repository/sqlstore"
)

// ProductReader resolves catalog entries. A missing product is (nil, nil).
type ProductReader interface {
	Find(ctx context.Context, tx sqlstore.Tx, id int64) (*product.Product, error)
}

// PaymentStore persists payment links and settles them.
type PaymentStore interface {
	Create(ctx context.Context, tx sqlstore.Tx, p *payment.Payment) (*payment.Payment, error)
	LockByLinkID(ctx context.Context, tx sqlstore.Tx, linkID string) (*payment.Payment, error)
	// MarkNotified returns ErrDuplicateSettlement when the payment is no
	// longer pending.
	MarkNotified(ctx context.Context, tx sqlstore.Tx, p *payment.Payment) error
}

// QueueWriter enqueues downstream jobs. A second job for one payment returns
// ErrDuplicateSettlement.
type QueueWriter interface {
	Enqueue(ctx context.Context, tx sqlstore.Tx, e *queue.Entry) (*queue.Entry, error)
}
