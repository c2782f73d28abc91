package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strconv"
	"time"

	domainErrors "github.com/cassiomorais/paybridge/internal/domain/errors"
	"github.com/cassiomorais/paybridge/internal/domain/queue"
	"github.com/cassiomorais/paybridge/internal/observability"
	"github.com/cassiomorais/paybridge/internal/repository/sqlstore"
	"github.com/rs/zerolog"
)

var settleMessages = map[string]string{
	"ProductID":     "ProductID is required.",
	"PaymentLinkID": "PaymentLinkID is required.",
}

// SettleRequest is the gateway's notification that a link was paid.
// Fields other than the two references are kept for logging only.
type SettleRequest struct {
	ProductID     string `validate:"required"`
	PaymentLinkID string `validate:"required"`
	Extra         map[string]any
}

// SettlementService finalizes paid links and queues the downstream job.
type SettlementService struct {
	uow      sqlstore.UnitOfWork
	products ProductReader
	payments PaymentStore
	queue    QueueWriter
	apiKey   []byte
	metrics  *observability.Metrics
	log      zerolog.Logger
}

// NewSettlementService creates a new SettlementService. apiKey is the
// pre-shared key the gateway sends; an empty key rejects every callback.
func NewSettlementService(
	uow sqlstore.UnitOfWork,
	products ProductReader,
	payments PaymentStore,
	queue QueueWriter,
	apiKey string,
	metrics *observability.Metrics,
	log zerolog.Logger,
) *SettlementService {
	return &SettlementService{
		uow:      uow,
		products: products,
		payments: payments,
		queue:    queue,
		apiKey:   []byte(apiKey),
		metrics:  metrics,
		log:      observability.WithComponent(log, "settlement"),
	}
}

// Settle moves the referenced payment from pending to notified and enqueues
// exactly one processing job for it, in one transaction. The payment row is
// locked on read and the status write is conditional on it still being
// pending, so concurrent or repeated callbacks settle a payment once; every
// later attempt reports the duplicate and writes nothing.
func (s *SettlementService) Settle(ctx context.Context, apiKey string, req SettleRequest) (err error) {
	start := time.Now()
	defer func() { observe(s.metrics, "settlement", start, err) }()

	if !s.authenticate(apiKey) {
		s.log.Warn().Str("payment_link_id", req.PaymentLinkID).Msg("callback rejected: bad api key")
		return domainErrors.NewDomainError("unauthorized", "Invalid ApiKey", domainErrors.ErrUnauthorized)
	}

	if err := validate.Struct(req); err != nil {
		return validationMessage(err, settleMessages)
	}

	productID, err := strconv.ParseInt(req.ProductID, 10, 64)
	if err != nil || productID <= 0 {
		return invalidProduct(req.ProductID)
	}

	log := s.log.With().Str("payment_link_id", req.PaymentLinkID).Int64("product_id", productID).Logger()

	tx, err := s.uow.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin settlement: %w", err)
	}
	defer tx.Release()

	fail := func(err error) error {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Error().Err(rbErr).Msg("rollback failed")
		}
		return err
	}

	product, err := s.products.Find(ctx, tx, productID)
	if err != nil {
		return fail(fmt.Errorf("lookup product %d: %w", productID, err))
	}
	if product == nil {
		log.Warn().Msg("callback for unknown product")
		return fail(invalidProduct(req.ProductID))
	}

	p, err := s.payments.LockByLinkID(ctx, tx, req.PaymentLinkID)
	if err != nil {
		return fail(fmt.Errorf("lookup payment %s: %w", req.PaymentLinkID, err))
	}
	if p == nil {
		log.Warn().Msg("callback for unknown payment link")
		return fail(domainErrors.NewNotFoundError("payment", req.PaymentLinkID,
			"Invalid Payment Link - "+req.PaymentLinkID))
	}

	if p.IsSettled() {
		log.Info().Int64("payment_id", p.ID).Msg("duplicate callback")
		return fail(alreadySettled(req.PaymentLinkID))
	}

	entry := queue.NewEntry(p.ID, p.AccountID, p.UserID, product.GameValue)
	if _, err := s.queue.Enqueue(ctx, tx, entry); err != nil {
		if errors.Is(err, domainErrors.ErrDuplicateSettlement) {
			log.Info().Int64("payment_id", p.ID).Msg("duplicate callback: job already queued")
			return fail(alreadySettled(req.PaymentLinkID))
		}
		return fail(fmt.Errorf("enqueue payment %d: %w", p.ID, err))
	}

	if err := s.payments.MarkNotified(ctx, tx, p); err != nil {
		if errors.Is(err, domainErrors.ErrDuplicateSettlement) {
			log.Info().Int64("payment_id", p.ID).Msg("duplicate callback: status already moved")
			return fail(alreadySettled(req.PaymentLinkID))
		}
		return fail(fmt.Errorf("mark payment %d notified: %w", p.ID, err))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit settlement: %w", err)
	}

	log.Info().Int64("payment_id", p.ID).Str("account_id", p.AccountID).Interface("provider_fields", req.Extra).Msg("payment settled")
	return nil
}

func (s *SettlementService) authenticate(apiKey string) bool {
	if len(s.apiKey) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(apiKey), s.apiKey) == 1
}

func invalidProduct(ref string) error {
	return domainErrors.NewNotFoundError("product", ref, "Invalid ProductID - "+ref)
}

func alreadySettled(linkID string) error {
	return domainErrors.NewDomainError("duplicate_settlement",
		"Notification already received Payment Link - "+linkID, domainErrors.ErrDuplicateSettlement)
}
