package testutil

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cassiomorais/paybridge/internal/domain/payment"
	"github.com/cassiomorais/paybridge/internal/domain/product"
	"github.com/cassiomorais/paybridge/internal/gateway"
	"github.com/shopspring/decimal"
)

func NewTestProduct(id int64, name, price, gameValue string) *product.Product {
	return &product.Product{
		ID:        id,
		Name:      name,
		Image:     fmt.Sprintf("https://cdn.example.com/products/%d.png", id),
		Price:     decimal.RequireFromString(price),
		GameValue: gameValue,
		CreatedAt: time.Now(),
	}
}

func NewPendingPayment(linkID, accountID string, productID int64, amount string) *payment.Payment {
	now := time.Now()
	return &payment.Payment{
		LinkID:    linkID,
		Link:      "https://pay.example/" + linkID,
		GUID:      "guid-" + linkID,
		ProductID: productID,
		AccountID: accountID,
		Amount:    decimal.RequireFromString(amount),
		Status:    payment.StatusPending,
		CreatedAt: now,
	}
}

// SuccessfulLink is a gateway answer carrying linkID, with the raw body the
// gateway would have sent.
func SuccessfulLink(linkID string) *gateway.LinkResult {
	url := "https://pay.example/" + linkID
	guid := "guid-" + linkID
	raw, _ := json.Marshal(map[string]any{
		"success": true,
		"data": map[string]string{
			"paymentLinkID": linkID,
			"paymentUrl":    url,
			"paymentGuid":   guid,
		},
	})
	return &gateway.LinkResult{Success: true, LinkID: linkID, URL: url, GUID: guid, Raw: raw}
}

// DeclinedLink is a reachable gateway refusing the request.
func DeclinedLink() *gateway.LinkResult {
	return &gateway.LinkResult{Success: false, Raw: json.RawMessage(`{"success":false}`)}
}
