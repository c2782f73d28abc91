package queue

import "time"

// Entry is a downstream job created by a successful settlement.
// The out-of-process consumer flips IsProcessed.
type Entry struct {
	ID          int64
	PaymentID   int64
	AccountID   string
	UserID      string
	GameValue   string
	IsProcessed bool
	CreatedAt   time.Time
}

// NewEntry creates an unprocessed entry for a settled payment.
func NewEntry(paymentID int64, accountID, userID, gameValue string) *Entry {
	return &Entry{
		PaymentID: paymentID,
		AccountID: accountID,
		UserID:    userID,
		GameValue: gameValue,
	}
}
