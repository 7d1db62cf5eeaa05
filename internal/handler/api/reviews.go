package api

import (
	"TradeReview/internal/domain/models"
	"TradeReview/internal/usecase"
	xhttp "TradeReview/pkg/http"
	xlogger "TradeReview/pkg/logger"

	"github.com/labstack/echo/v4"
)

// ReviewHandler accepts review requests and serves the polled status.
type ReviewHandler struct {
	logger     *xlogger.Logger
	dispatcher *usecase.ReviewDispatcher
	projector  *usecase.ReviewProjector
}

func NewReviewHandler(logger *xlogger.Logger, d *usecase.ReviewDispatcher, p *usecase.ReviewProjector) *ReviewHandler {
	return &ReviewHandler{logger: logger, dispatcher: d, projector: p}
}

func (h *ReviewHandler) register(g *echo.Group, limit echo.MiddlewareFunc) {
	g.POST("/trade-logs/:id/review", h.Request, limit)
	g.POST("/trade-logs/:id/review/retry", h.Retry, limit)
	g.GET("/trade-logs/:id/review", h.Status)
}

// Request answers 202 once the credit is held; the outcome is only visible by polling.
func (h *ReviewHandler) Request(c echo.Context) error {
	return h.start(c, false)
}

func (h *ReviewHandler) Retry(c echo.Context) error {
	return h.start(c, true)
}

func (h *ReviewHandler) start(c echo.Context, retry bool) error {
	req := &models.ReviewRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	cmd := models.ReviewCommand{
		TradeLogID:       req.ID,
		AccountID:        accountID(c),
		IsFromRewardedAd: req.IsFromRewardedAd,
	}
	var (
		ack *models.ReviewAck
		err error
	)
	if retry {
		ack, err = h.dispatcher.RetryReview(c.Request().Context(), cmd)
	} else {
		ack, err = h.dispatcher.RequestReview(c.Request().Context(), cmd)
	}
	if err != nil {
		appErr := toAppError(err)
		if appErr.Status >= 500 && appErr.Status != 503 {
			h.logger.Error("review request failed", xlogger.String("trade_log_id", req.ID), xlogger.Error(err))
		}
		return xhttp.AppErrorResponse(c, appErr)
	}
	return xhttp.AcceptedResponse(c, ack)
}

func (h *ReviewHandler) Status(c echo.Context) error {
	req := &models.TradeLogIDRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	v, err := h.projector.Status(c.Request().Context(), req.ID, accountID(c))
	if err != nil {
		appErr := toAppError(err)
		if appErr.Status >= 500 {
			h.logger.Error("review status failed", xlogger.Error(err))
		}
		return xhttp.AppErrorResponse(c, appErr)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return xhttp.SuccessResponse(c, v)
}
