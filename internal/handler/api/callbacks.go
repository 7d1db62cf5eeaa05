package api

import (
	"TradeReview/internal/domain/models"
	domsvc "TradeReview/internal/domain/service"
	"TradeReview/internal/services/engine"
	"TradeReview/internal/usecase"
	xhttp "TradeReview/pkg/http"
	xlogger "TradeReview/pkg/logger"

	"github.com/labstack/echo/v4"
)

// CallbackHandler receives verdicts posted by the analysis engine. The bearer token
// binds the call to one attempt; a duplicate or late call is acknowledged without effect.
type CallbackHandler struct {
	logger     *xlogger.Logger
	signer     domsvc.CallbackSigner
	dispatcher *usecase.ReviewDispatcher
}

func NewCallbackHandler(logger *xlogger.Logger, signer domsvc.CallbackSigner, d *usecase.ReviewDispatcher) *CallbackHandler {
	return &CallbackHandler{logger: logger, signer: signer, dispatcher: d}
}

func (h *CallbackHandler) register(g *echo.Group) {
	g.POST("/engine/callbacks", h.Complete)
}

func (h *CallbackHandler) Complete(c echo.Context) error {
	req := &models.EngineCallbackRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	token, ok := bearer(c)
	if !ok || h.signer == nil {
		return xhttp.AppErrorResponse(c, xhttp.UnauthorizedError("callback token required"))
	}
	if err := h.signer.Verify(token, req.TradeLogID, req.AttemptID); err != nil {
		h.logger.Warn("callback token rejected", xlogger.String("attempt_id", req.AttemptID), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.UnauthorizedError("invalid callback token"))
	}

	v, err := engine.DecodeVerdict(req.Verdict)
	if err != nil {
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	res, err := h.dispatcher.Complete(c.Request().Context(), models.Completion{
		TradeLogID: req.TradeLogID,
		AttemptID:  req.AttemptID,
		Verdict:    v,
	})
	if err != nil {
		h.logger.Error("callback completion failed", xlogger.String("attempt_id", req.AttemptID), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.SuccessResponse(c, res)
}
