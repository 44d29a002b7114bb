package middlewares

import (
	"crypto/subtle"
	"fmt"

	"github.com/labstack/echo/v4"

	"github.com/onurcolak/event-automation-service/pkg/logger"
	"github.com/onurcolak/event-automation-service/pkg/response"
)

const (
	APIKeyHeader = "x-api-key"
)

func secureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// APIKeyAuth guards one route group with its own key. The trigger webhook and
// the admin API are configured with different keys.
func APIKeyAuth(group, apiKey string) echo.MiddlewareFunc {
	// An empty key is a server-side misconfiguration, never an open endpoint.
	if apiKey == "" {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error {
				logger.Errorf("API key for %s endpoints is not configured", group)
				return response.InternalServerError(
					c,
					fmt.Errorf("API key is not configured for %s endpoints", group),
				)
			}
		}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := c.Request().Header.Get(APIKeyHeader)
			if token == "" || !secureCompare(token, apiKey) {
				logger.WithFields(logger.Fields{
					"group":  group,
					"path":   c.Path(),
					"remote": c.RealIP(),
				}).Warn("Rejected request with invalid API key")
				return response.Unauthorized(c)
			}

			return next(c)
		}
	}
}
