package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	domainErrors "github.com/cassiomorais/paybridge/internal/domain/errors"
	"github.com/cassiomorais/paybridge/internal/domain/queue"
)

// QueueSchema maps queue.Entry onto pb_process_queue.
var QueueSchema = Schema[queue.Entry]{
	Table:      "pb_process_queue",
	PrimaryKey: "process_queue_id",
	Columns:    []string{"process_queue_id", "payment_id", "account_id", "user_id", "game_value", "is_processed", "created_at"},
	Writable:   []string{"payment_id", "account_id", "user_id", "game_value", "is_processed"},
	Scan:       scanEntry,
}

func scanEntry(s Scanner) (*queue.Entry, error) {
	var (
		e      queue.Entry
		userID sql.NullString
	)
	if err := s.Scan(&e.ID, &e.PaymentID, &e.AccountID, &userID, &e.GameValue, &e.IsProcessed, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.UserID = userID.String
	return &e, nil
}

// QueueStore writes downstream processing jobs.
type QueueStore struct {
	repo *Repository[queue.Entry]
}

// NewQueueStore creates a new QueueStore.
func NewQueueStore() *QueueStore {
	return &QueueStore{repo: NewRepository(QueueSchema)}
}

// Enqueue inserts an unprocessed job. A second job for the same payment
// violates the unique key on payment_id and returns ErrDuplicateSettlement.
func (s *QueueStore) Enqueue(ctx context.Context, tx Tx, e *queue.Entry) (*queue.Entry, error) {
	stored, err := s.repo.Insert(ctx, tx, Fields{
		"payment_id":   e.PaymentID,
		"account_id":   e.AccountID,
		"user_id":      nullString(e.UserID),
		"game_value":   e.GameValue,
		"is_processed": e.IsProcessed,
	})
	if err != nil {
		if tx.Dialect().IsUniqueViolation(err) {
			return nil, domainErrors.ErrDuplicateSettlement
		}
		return nil, fmt.Errorf("enqueue payment %d: %w", e.PaymentID, err)
	}
	if stored == nil {
		return nil, domainErrors.NewDomainError("persistence", "Internal Server Error", domainErrors.ErrPersistence)
	}
	return stored, nil
}

// ExistsForPayment reports whether a job was already queued for the payment.
func (s *QueueStore) ExistsForPayment(ctx context.Context, tx Tx, paymentID int64) (bool, error) {
	return s.repo.ExistsWhere(ctx, tx, "payment_id", paymentID)
}
