package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// LinkRequest is what the gateway needs to issue a hosted payment link.
type LinkRequest struct {
	OrderID      string
	NotifyURL    string
	ProductID    int64
	ProductName  string
	TotalAmount  decimal.Decimal
	ProductImage string
}

// LinkResult is the gateway's answer. Raw is the response body exactly as
// received and is what the issuance endpoint returns to the storefront.
type LinkResult struct {
	Success bool
	LinkID  string
	URL     string
	GUID    string
	Raw     json.RawMessage
}

// StatusError is a non-2xx answer from the gateway. A 4xx means the gateway
// was reached and refused the request; anything else is an outage.
type StatusError struct {
	Code int
	Body json.RawMessage
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gateway returned HTTP %d", e.Code)
}

// Rejected reports whether the gateway refused the request itself.
func (e *StatusError) Rejected() bool {
	return e.Code >= 400 && e.Code < 500
}

// IsRejection reports whether err carries a 4xx StatusError.
func IsRejection(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Rejected()
}

// Provider issues payment links. Implementations return an error when the
// gateway could not be reached, answered with a non-2xx status (as a
// *StatusError) or sent a body that could not be read. A 2xx decline comes
// back as a result with Success false.
type Provider interface {
	Name() string
	CreatePaymentLink(ctx context.Context, req LinkRequest) (*LinkResult, error)
}
