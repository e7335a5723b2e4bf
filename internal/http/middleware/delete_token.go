package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	echo "github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// DeleteTokenHeader carries the single-use token on DELETE requests.
const DeleteTokenHeader = "X-Delete-Token"

type DeleteTokenConfig struct {
	Redis     *redis.Client
	KeyPrefix string        // e.g. "deltok:"
	TTL       time.Duration // token lifetime
	Param     string        // route param holding the subscriber id, e.g. "id"
}

// DeleteTokens issues and consumes single-use delete tokens. A token is bound
// to one operator and one subscriber and is gone after its first use.
type DeleteTokens struct {
	cfg DeleteTokenConfig
}

func NewDeleteTokens(cfg DeleteTokenConfig) *DeleteTokens {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "deltok:"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Minute
	}
	if cfg.Param == "" {
		cfg.Param = "id"
	}
	return &DeleteTokens{cfg: cfg}
}

func binding(operatorID, subscriberID int64) string {
	return strconv.FormatInt(operatorID, 10) + ":" + strconv.FormatInt(subscriberID, 10)
}

// Issue stores a fresh token for (operatorID, subscriberID) and returns it.
func (d *DeleteTokens) Issue(ctx context.Context, operatorID, subscriberID int64) (string, time.Time, error) {
	tok := uuid.NewString()
	if err := d.cfg.Redis.Set(ctx, d.cfg.KeyPrefix+tok, binding(operatorID, subscriberID), d.cfg.TTL).Err(); err != nil {
		return "", time.Time{}, err
	}
	return tok, time.Now().Add(d.cfg.TTL), nil
}

// consume atomically removes the token and reports whether it was bound to
// (operatorID, subscriberID).
func (d *DeleteTokens) consume(ctx context.Context, tok string, operatorID, subscriberID int64) (bool, error) {
	v, err := d.cfg.Redis.GetDel(ctx, d.cfg.KeyPrefix+tok).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return v == binding(operatorID, subscriberID), nil
}

// Require rejects the request with 403 unless it carries a valid, unused
// token for the subscriber in the route. It expects OperatorAuth to run first.
func (d *DeleteTokens) Require() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			opID, ok := OperatorIDFromCtx(c)
			if !ok || opID <= 0 {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			}
			subID, err := strconv.ParseInt(c.Param(d.cfg.Param), 10, 64)
			if err != nil || subID <= 0 {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid id"})
			}
			tok := strings.TrimSpace(c.Request().Header.Get(DeleteTokenHeader))
			if tok == "" {
				return c.JSON(http.StatusForbidden, map[string]string{"error": "missing delete token"})
			}

			valid, err := d.consume(c.Request().Context(), tok, opID, subID)
			if err != nil {
				c.Logger().Errorf("delete token check failed: %v", err)
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": "token store error"})
			}
			if !valid {
				return c.JSON(http.StatusForbidden, map[string]string{"error": "invalid or used delete token"})
			}
			return next(c)
		}
	}
}
