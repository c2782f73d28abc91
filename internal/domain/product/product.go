package product

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a catalog item a payment link can be issued for.
type Product struct {
	ID        int64
	Name      string
	Image     string
	Price     decimal.Decimal
	GameValue string // opaque, interpreted only by the queue consumer
	CreatedAt time.Time
}
