package api

import (
	"errors"

	"TradeReview/internal/domain/models"
	"TradeReview/internal/services/engine"
	xhttp "TradeReview/pkg/http"
)

// toAppError maps domain errors to their HTTP form. Unknown errors become a bare 500.
func toAppError(err error) *xhttp.AppError {
	var (
		credit *models.CreditExhaustedError
		state  *models.InvalidStateError
	)
	switch {
	case errors.As(err, &credit):
		return xhttp.PaymentRequiredError("not enough credits for a review").
			WithCode("ERR_CREDIT_EXHAUSTED").
			WithParam("bucket", credit.Bucket).
			WithParam("reason", credit.Reason).
			WithParam("suggest_ad", credit.SuggestAd)
	case errors.As(err, &state):
		return xhttp.ConflictError(state.Error()).
			WithCode("ERR_INVALID_STATE").
			WithParam("review_status", state.Current)
	case errors.Is(err, models.ErrNotFound):
		return xhttp.NotFoundError("trade log not found")
	case errors.Is(err, models.ErrDispatchBusy):
		return xhttp.ServiceUnavailableError("review capacity reached, try again shortly").WithCode("ERR_DISPATCH_BUSY")
	case errors.Is(err, models.ErrUnknownInstrument):
		return xhttp.BadRequestError(err.Error()).WithCode("ERR_UNKNOWN_INSTRUMENT")
	case errors.Is(err, models.ErrInvalidParams):
		return xhttp.BadRequestError(err.Error()).WithCode("ERR_INVALID_PARAMS")
	case errors.Is(err, engine.ErrMalformedVerdict):
		return xhttp.BadRequestError(err.Error()).WithCode("ERR_MALFORMED_VERDICT")
	}
	return xhttp.InternalError("internal error").WithError(err)
}
