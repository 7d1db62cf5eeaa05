package api

import (
	"TradeReview/internal/usecase"
	xhttp "TradeReview/pkg/http"
	xlogger "TradeReview/pkg/logger"

	"github.com/labstack/echo/v4"
)

// CreditHandler shows balances and grants the rewarded-ad bonus.
type CreditHandler struct {
	logger *xlogger.Logger
	ledger *usecase.CreditLedger
}

func NewCreditHandler(logger *xlogger.Logger, ledger *usecase.CreditLedger) *CreditHandler {
	return &CreditHandler{logger: logger, ledger: ledger}
}

func (h *CreditHandler) register(g *echo.Group, limit echo.MiddlewareFunc) {
	g.GET("/credits", h.Balance)
	g.POST("/credits/rewarded-ad", h.RewardedAd, limit)
}

func (h *CreditHandler) Balance(c echo.Context) error {
	b, err := h.ledger.Balance(c.Request().Context(), accountID(c))
	if err != nil {
		h.logger.Error("credit balance failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.SuccessResponse(c, b)
}

// RewardedAd grants the bonus for one watched ad. Ad verification happens upstream.
func (h *CreditHandler) RewardedAd(c echo.Context) error {
	b, err := h.ledger.GrantRewardedAd(c.Request().Context(), accountID(c))
	if err != nil {
		h.logger.Error("rewarded ad grant failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.SuccessResponse(c, b)
}
