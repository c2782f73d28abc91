package service

import (
	"errors"
	"time"

	domainErrors "github.com/cassiomorais/paybridge/internal/domain/errors"
	"github.com/cassiomorais/paybridge/internal/observability"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// outcome labels a workflow result for metrics and logs.
func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domainErrors.ErrValidationFailed):
		return "invalid"
	case errors.Is(err, domainErrors.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, domainErrors.ErrNotFound):
		return "not_found"
	case errors.Is(err, domainErrors.ErrDuplicateSettlement):
		return "duplicate"
	case errors.Is(err, domainErrors.ErrUpstreamFailure):
		return "declined"
	case errors.Is(err, domainErrors.ErrUpstreamUnavailable):
		return "unavailable"
	case errors.Is(err, domainErrors.ErrPersistence):
		return "persistence"
	default:
		return "error"
	}
}

func observe(m *observability.Metrics, workflow string, start time.Time, err error) {
	if m == nil {
		return
	}
	switch workflow {
	case "issuance":
		m.IssuanceTotal.WithLabelValues(outcome(err)).Inc()
	case "settlement":
		m.SettlementTotal.WithLabelValues(outcome(err)).Inc()
	}
	m.WorkflowDuration.WithLabelValues(workflow).Observe(time.Since(start).Seconds())
}

// validationMessage turns the first validator failure into the caller-facing
// message registered for that field and tag.
func validationMessage(err error, messages map[string]string) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return domainErrors.NewValidationError("request", err.Error())
	}
	fe := verrs[0]
	msg, ok := messages[fe.Field()+"."+fe.Tag()]
	if !ok {
		msg, ok = messages[fe.Field()]
	}
	if !ok {
		msg = fe.Field() + " is invalid."
	}
	return domainErrors.NewValidationError(fe.Field(), msg)
}
