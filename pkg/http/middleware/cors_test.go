package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func preflight(e *echo.Echo, origin string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodOptions, "/api/trade-logs/1/review", nil)
	req.Header.Set(echo.HeaderOrigin, origin)
	req.Header.Set(echo.HeaderAccessControlRequestMethod, http.MethodPost)
	req.Header.Set(echo.HeaderAccessControlRequestHeaders, "X-Account-ID, X-Admin-Token, Authorization")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestCORSAllowsIdentityHeaders(t *testing.T) {
	e := echo.New()
	e.Use(CORS([]string{"https://app.example.com"}))
	e.POST("/api/trade-logs/:id/review", func(c echo.Context) error { return c.NoContent(http.StatusAccepted) })

	rec := preflight(e, "https://app.example.com")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
	allowed := rec.Header().Get(echo.HeaderAccessControlAllowHeaders)
	for _, h := range []string{HeaderAccountID, HeaderAdminToken, echo.HeaderAuthorization} {
		assert.Contains(t, allowed, h)
	}
}

func TestCORSRejectsUnlistedOrigin(t *testing.T) {
	e := echo.New()
	e.Use(CORS([]string{"https://app.example.com"}))
	e.POST("/api/trade-logs/:id/review", func(c echo.Context) error { return c.NoContent(http.StatusAccepted) })

	rec := preflight(e, "https://evil.example.com")
	assert.Empty(t, rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
}

func TestCORSDefaultsToAnyOrigin(t *testing.T) {
	e := echo.New()
	e.Use(CORS(nil))
	e.POST("/api/trade-logs/:id/review", func(c echo.Context) error { return c.NoContent(http.StatusAccepted) })

	rec := preflight(e, "https://anywhere.example.com")
	assert.Equal(t, "*", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
}
