package api

import (
	"TradeReview/internal/domain/models"
	"TradeReview/internal/usecase"
	xhttp "TradeReview/pkg/http"
	xlogger "TradeReview/pkg/logger"

	"github.com/labstack/echo/v4"
)

// TradeLogHandler serves trade log entries.
type TradeLogHandler struct {
	logger *xlogger.Logger
	svc    *usecase.TradeLogService
}

func NewTradeLogHandler(logger *xlogger.Logger, svc *usecase.TradeLogService) *TradeLogHandler {
	return &TradeLogHandler{logger: logger, svc: svc}
}

func (h *TradeLogHandler) register(g *echo.Group) {
	g.POST("/trade-logs", h.Create)
	g.GET("/trade-logs", h.List)
	g.GET("/trade-logs/:id", h.Get)
	g.PUT("/trade-logs/:id", h.Update)
}

func (h *TradeLogHandler) Create(c echo.Context) error {
	req := &models.CreateTradeLogRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	e, err := h.svc.Create(c.Request().Context(), accountID(c), req)
	if err != nil {
		return h.fail(c, "create trade log", err)
	}
	return xhttp.CreatedResponse(c, e)
}

func (h *TradeLogHandler) List(c echo.Context) error {
	req := &models.ListTradeLogsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	rows, total, err := h.svc.List(c.Request().Context(), accountID(c), req.Limit, req.Offset)
	if err != nil {
		return h.fail(c, "list trade logs", err)
	}
	return xhttp.ListResponse(c, rows, total)
}

func (h *TradeLogHandler) Get(c echo.Context) error {
	req := &models.TradeLogIDRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	e, err := h.svc.Get(c.Request().Context(), req.ID, accountID(c))
	if err != nil {
		return h.fail(c, "get trade log", err)
	}
	return xhttp.SuccessResponse(c, e)
}

func (h *TradeLogHandler) Update(c echo.Context) error {
	req := &models.UpdateTradeLogRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	e, err := h.svc.Update(c.Request().Context(), req.ID, accountID(c), &req.CreateTradeLogRequest)
	if err != nil {
		return h.fail(c, "update trade log", err)
	}
	return xhttp.SuccessResponse(c, e)
}

func (h *TradeLogHandler) fail(c echo.Context, op string, err error) error {
	appErr := toAppError(err)
	if appErr.Status >= 500 {
		h.logger.Error(op+" failed", xlogger.Error(err))
	}
	return xhttp.AppErrorResponse(c, appErr)
}
