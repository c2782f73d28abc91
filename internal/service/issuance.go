package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cassiomorais/paybridge/internal/config"
	domainErrors "github.com/cassiomorais/paybridge/internal/domain/errors"
	"github.com/cassiomorais/paybridge/internal/domain/payment"
	"github.com/cassiomorais/paybridge/internal/gateway"
	"github.com/cassiomorais/paybridge/internal/observability"
	"github.com/cassiomorais/paybridge/internal/repository/sqlstore"
	"github.com/rs/zerolog"
)

var issueMessages = map[string]string{
	"AccountID.required": "Account id is required.",
	"AccountID.alphanum": "Account ID must be alphanumeric (a-z, A-Z, 0-9).",
	"UserID.alphanum":    "User ID must be alphanumeric (a-z, A-Z, 0-9).",
	"ProductID":          "product_id is required and must be a positive integer.",
}

// IssueRequest is a storefront request for a payment link.
type IssueRequest struct {
	AccountID string `validate:"required,alphanum"`
	UserID    string `validate:"omitempty,alphanum"`
	ProductID int64  `validate:"gt=0"`
}

// IssueResult carries the stored payment and the gateway's response body.
type IssueResult struct {
	Payment *payment.Payment
	Raw     json.RawMessage
}

// IssuanceService creates payment links through the gateway and records them.
type IssuanceService struct {
	uow      sqlstore.UnitOfWork
	products ProductReader
	payments PaymentStore
	gateway  gateway.Provider
	app      config.AppConfig
	metrics  *observability.Metrics
	log      zerolog.Logger
}

// NewIssuanceService creates a new IssuanceService. metrics may be nil.
func NewIssuanceService(
	uow sqlstore.UnitOfWork,
	products ProductReader,
	payments PaymentStore,
	gw gateway.Provider,
	app config.AppConfig,
	metrics *observability.Metrics,
	log zerolog.Logger,
) *IssuanceService {
	return &IssuanceService{
		uow:      uow,
		products: products,
		payments: payments,
		gateway:  gw,
		app:      app,
		metrics:  metrics,
		log:      observability.WithComponent(log, "issuance"),
	}
}

// Issue validates the request, asks the gateway for a link for the product
// and records a pending payment, all inside one transaction. The gateway is
// called at most once. Any failure after Begin rolls the transaction back,
// so a failed issuance leaves no payment row.
func (s *IssuanceService) Issue(ctx context.Context, req IssueRequest) (_ *IssueResult, err error) {
	start := time.Now()
	defer func() { observe(s.metrics, "issuance", start, err) }()

	if err := validate.Struct(req); err != nil {
		return nil, validationMessage(err, issueMessages)
	}

	tx, err := s.uow.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin issuance: %w", err)
	}
	defer tx.Release()

	log := s.log.With().Str("account_id", req.AccountID).Int64("product_id", req.ProductID).Logger()
	fail := func(err error) (*IssueResult, error) {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Error().Err(rbErr).Msg("rollback failed")
		}
		return nil, err
	}

	product, err := s.products.Find(ctx, tx, req.ProductID)
	if err != nil {
		return fail(fmt.Errorf("lookup product %d: %w", req.ProductID, err))
	}
	if product == nil {
		log.Info().Msg("product not found")
		return fail(domainErrors.NewNotFoundError("product", fmt.Sprint(req.ProductID), "Product not found."))
	}

	link, err := s.gateway.CreatePaymentLink(ctx, gateway.LinkRequest{
		OrderID:      req.AccountID,
		NotifyURL:    s.app.NotifyURL(),
		ProductID:    product.ID,
		ProductName:  s.app.Name + " - " + product.Name,
		TotalAmount:  product.Price,
		ProductImage: product.Image,
	})
	if err != nil {
		code := "upstream_unavailable"
		if errors.Is(err, domainErrors.ErrUpstreamFailure) {
			code = "upstream_failure"
		}
		log.Error().Err(err).Str("code", code).Msg("gateway call failed")
		return fail(domainErrors.NewDomainError(code, "Failed to connect HyperPay API.", err))
	}
	if !link.Success {
		log.Warn().RawJSON("gateway_response", link.Raw).Msg("gateway declined payment link")
		return fail(domainErrors.NewDomainError("upstream_failure", "Payment failed.", domainErrors.ErrUpstreamFailure))
	}

	p, err := payment.NewPayment(link.LinkID, link.URL, link.GUID, product.ID, req.AccountID, req.UserID, product.Price)
	if err != nil {
		log.Error().Err(err).RawJSON("gateway_response", link.Raw).Msg("gateway reported success without a usable link")
		return fail(domainErrors.NewDomainError("upstream_failure", "Payment failed.", domainErrors.ErrUpstreamFailure))
	}

	stored, err := s.payments.Create(ctx, tx, p)
	if err != nil {
		return fail(fmt.Errorf("persist payment %s: %w", p.LinkID, err))
	}
	if stored == nil {
		log.Error().Str("payment_link_id", p.LinkID).Msg("payment insert produced no identity")
		return fail(domainErrors.NewDomainError("persistence", "Internal Error", domainErrors.ErrPersistence))
	}

	if err := tx.Commit(); err != nil {
		// the gateway already issued this link; keep enough to reconcile
		log.Error().Err(err).Str("payment_link_id", p.LinkID).Msg("issued link was not recorded")
		return nil, fmt.Errorf("commit issuance: %w", err)
	}

	log.Info().Str("payment_link_id", stored.LinkID).Int64("payment_id", stored.ID).Msg("payment link issued")
	return &IssueResult{Payment: stored, Raw: link.Raw}, nil
}
