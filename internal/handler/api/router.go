package api

import (
	"TradeReview/internal/service/ratelimit"
	"TradeReview/internal/services/auth"

	"github.com/labstack/echo/v4"
)

// Router mounts every API handler under /api.
type Router struct {
	TradeLogs  *TradeLogHandler
	Reviews    *ReviewHandler
	Credits    *CreditHandler
	Callbacks  *CallbackHandler
	Admin      *AdminHandler
	Accounts   *auth.AccountTokens
	Limiter    *ratelimit.Limiter
	AdminToken string
}

func (r *Router) RegisterRoutes(e *echo.Echo) {
	api := e.Group("/api")

	// engine and operators authenticate differently from account holders
	r.Callbacks.register(api)
	r.Admin.register(api.Group("/admin", AdminOnly(r.AdminToken)))

	acct := api.Group("", AccountIdentity(r.Accounts))
	limit := RateLimit(r.Limiter)
	r.TradeLogs.register(acct)
	r.Reviews.register(acct, limit)
	r.Credits.register(acct, limit)
}
