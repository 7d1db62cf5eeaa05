package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

// Request headers that carry caller identity. Browsers must be allowed to send them on
// cross-origin calls.
const (
	HeaderAccountID  = "X-Account-ID"
	HeaderAdminToken = "X-Admin-Token"
)

// CORS lets browser clients on origins call the API. An empty list allows any origin.
func CORS(origins []string) echo.MiddlewareFunc {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderContentType,
			echo.HeaderAccept,
			echo.HeaderAuthorization,
			HeaderAccountID,
			HeaderAdminToken,
		},
		MaxAge: 600,
	})
}
