package api

import (
	"crypto/subtle"
	"strings"

	"TradeReview/internal/service/ratelimit"
	"TradeReview/internal/services/auth"
	xhttp "TradeReview/pkg/http"
	"TradeReview/pkg/http/middleware"

	"github.com/labstack/echo/v4"
)

const (
	accountKey     = "account_id"
	headerAccount  = middleware.HeaderAccountID
	headerAdmin    = middleware.HeaderAdminToken
	maxAccountSize = 128
)

// AccountIdentity resolves the calling account. With tokens set the account is the subject
// of a bearer JWT; otherwise a trusted gateway passes it in X-Account-ID.
func AccountIdentity(tokens *auth.AccountTokens) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			var account string
			if tokens != nil {
				raw, ok := bearer(c)
				if !ok {
					return xhttp.AppErrorResponse(c, xhttp.UnauthorizedError("missing bearer token"))
				}
				id, err := tokens.AccountID(raw)
				if err != nil {
					return xhttp.AppErrorResponse(c, xhttp.UnauthorizedError("invalid bearer token"))
				}
				account = id
			} else {
				account = strings.TrimSpace(c.Request().Header.Get(headerAccount))
			}
			if account == "" || len(account) > maxAccountSize {
				return xhttp.AppErrorResponse(c, xhttp.UnauthorizedError("account identity required"))
			}
			c.Set(accountKey, account)
			return next(c)
		}
	}
}

// RateLimit allows a burst of review mutations per account.
func RateLimit(l *ratelimit.Limiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if l != nil && !l.Allow(accountID(c)) {
				return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("too many review requests, slow down"))
			}
			return next(c)
		}
	}
}

// AdminOnly guards operator endpoints. An empty token disables them.
func AdminOnly(token string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			got := c.Request().Header.Get(headerAdmin)
			if token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				return xhttp.AppErrorResponse(c, xhttp.ForbiddenError("admin token required"))
			}
			return next(c)
		}
	}
}

func accountID(c echo.Context) string {
	s, _ := c.Get(accountKey).(string)
	return s
}

func bearer(c echo.Context) (string, bool) {
	h := c.Request().Header.Get(echo.HeaderAuthorization)
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(h[len(prefix):]), true
}
