package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/jmehdipour/subscribers/internal/model"
	echo "github.com/labstack/echo/v4"
)

const ctxOperatorID = "operator_id"

// OperatorLookup resolves an API key; repository.OperatorsRepository satisfies it.
type OperatorLookup interface {
	GetByAPIKey(ctx context.Context, apiKey string) (*model.Operator, error)
}

// OperatorIDFromCtx extracts the operator id set by OperatorAuth.
func OperatorIDFromCtx(c echo.Context) (int64, bool) {
	id, ok := c.Get(ctxOperatorID).(int64)
	return id, ok
}

// OperatorAuth authenticates admin requests using the X-API-Key header.
// Unknown keys and suspended operators are rejected with 401.
func OperatorAuth(ops OperatorLookup) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := strings.TrimSpace(c.Request().Header.Get("X-API-Key"))
			if key == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing api key"})
			}
			op, err := ops.GetByAPIKey(c.Request().Context(), key)
			if err != nil {
				c.Logger().Errorf("operator lookup failed: %v", err)
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": "auth error"})
			}
			if op == nil || !op.Active() {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid api key"})
			}
			c.Set(ctxOperatorID, op.ID)
			return next(c)
		}
	}
}
