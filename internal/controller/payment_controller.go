package controller

import (
	"encoding/json"
	"net/http"
	"strconv"

	domainErrors "github.com/cassiomorais/paybridge/internal/domain/errors"
	"github.com/cassiomorais/paybridge/internal/service"
	"github.com/rs/zerolog"
)

// PaymentController serves the storefront and gateway endpoints.
type PaymentController struct {
	issuance   *service.IssuanceService
	settlement *service.SettlementService
	log        zerolog.Logger
}

// NewPaymentController creates a new PaymentController.
func NewPaymentController(
	issuance *service.IssuanceService,
	settlement *service.SettlementService,
	log zerolog.Logger,
) *PaymentController {
	return &PaymentController{
		issuance:   issuance,
		settlement: settlement,
		log:        log.With().Str("component", "http").Logger(),
	}
}

// Pay handles GET|POST /api/pay
func (h *PaymentController) Pay(w http.ResponseWriter, r *http.Request) {
	params, err := readParams(w, r)
	if err != nil {
		writeError(w, r, h.log, writeJSON, err)
		return
	}

	write := writeJSON
	if cb := field(params, "callback"); cb != "" {
		if !callbackName.MatchString(cb) {
			writeError(w, r, h.log, writeJSON,
				domainErrors.NewValidationError("callback", "Invalid callback name."))
			return
		}
		write = jsonp(cb)
	}

	res, err := h.issuance.Issue(r.Context(), service.IssueRequest{
		AccountID: field(params, "account_id"),
		UserID:    field(params, "user_id"),
		ProductID: parseProductID(field(params, "product_id")),
	})
	if err != nil {
		writeError(w, r, h.log, write, err)
		return
	}

	if len(res.Raw) > 0 {
		write(w, http.StatusOK, res.Raw)
		return
	}
	write(w, http.StatusOK, linkPayload(res))
}

// Notify handles POST /api/notify
func (h *PaymentController) Notify(w http.ResponseWriter, r *http.Request) {
	params, err := readParams(w, r)
	if err != nil {
		writeError(w, r, h.log, writeJSON, err)
		return
	}

	req := service.SettleRequest{
		ProductID:     field(params, "ProductID"),
		PaymentLinkID: field(params, "PaymentLinkID"),
		Extra:         make(map[string]any, len(params)),
	}
	for k, v := range params {
		if k != "ProductID" && k != "PaymentLinkID" {
			req.Extra[k] = v
		}
	}

	if err := h.settlement.Settle(r.Context(), r.Header.Get("ApiKey"), req); err != nil {
		writeError(w, r, h.log, writeJSON, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true})
}

// parseProductID returns 0 for anything that is not a base-10 integer, which
// validation then rejects.
func parseProductID(s string) int64 {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// linkPayload rebuilds the gateway's success shape for providers that do not
// hand back a body.
func linkPayload(res *service.IssueResult) json.RawMessage {
	body, _ := json.Marshal(map[string]any{
		"success": true,
		"data": map[string]string{
			"paymentLinkID": res.Payment.LinkID,
			"paymentUrl":    res.Payment.Link,
			"paymentGuid":   res.Payment.GUID,
		},
	})
	return body
}
