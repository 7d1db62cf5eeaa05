package api

import (
	"time"

	"TradeReview/internal/domain/models"
	"TradeReview/internal/usecase"
	xhttp "TradeReview/pkg/http"
	xlogger "TradeReview/pkg/logger"

	"github.com/labstack/echo/v4"
)

// AdminHandler exposes operator actions: provisioning credits and forcing a sweep.
type AdminHandler struct {
	logger   *xlogger.Logger
	ledger   *usecase.CreditLedger
	sweeper  *usecase.ReviewSweeper
	bonusTTL time.Duration
}

func NewAdminHandler(logger *xlogger.Logger, ledger *usecase.CreditLedger, sweeper *usecase.ReviewSweeper, bonusTTL time.Duration) *AdminHandler {
	return &AdminHandler{logger: logger, ledger: ledger, sweeper: sweeper, bonusTTL: bonusTTL}
}

func (h *AdminHandler) register(g *echo.Group) {
	g.POST("/credits", h.GrantCredits)
	g.GET("/credits/:account", h.ShowCredits)
	g.POST("/reviews/sweep", h.Sweep)
}

func (h *AdminHandler) GrantCredits(c echo.Context) error {
	req := &models.GrantCreditsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if req.Regular == 0 && req.Bonus == 0 {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("regular or bonus must be positive"))
	}
	ctx := c.Request().Context()
	var (
		bal *models.CreditBalance
		err error
	)
	if req.Regular > 0 {
		if bal, err = h.ledger.GrantRegular(ctx, req.AccountID, req.Regular); err != nil {
			return h.fail(c, err)
		}
	}
	if req.Bonus > 0 {
		if bal, err = h.ledger.GrantBonus(ctx, req.AccountID, req.Bonus, time.Now().Add(h.bonusTTL)); err != nil {
			return h.fail(c, err)
		}
	}
	h.logger.Info("credits granted",
		xlogger.String("account_id", req.AccountID),
		xlogger.Int64("regular", req.Regular),
		xlogger.Int64("bonus", req.Bonus))
	return xhttp.SuccessResponse(c, bal)
}

func (h *AdminHandler) ShowCredits(c echo.Context) error {
	b, err := h.ledger.Balance(c.Request().Context(), c.Param("account"))
	if err != nil {
		return h.fail(c, err)
	}
	return xhttp.SuccessResponse(c, b)
}

func (h *AdminHandler) Sweep(c echo.Context) error {
	rep, err := h.sweeper.Sweep(c.Request().Context())
	if err != nil {
		return h.fail(c, err)
	}
	return xhttp.SuccessResponse(c, rep)
}

func (h *AdminHandler) fail(c echo.Context, err error) error {
	h.logger.Error("admin action failed", xlogger.Error(err))
	return xhttp.AppErrorResponse(c, toAppError(err))
}
