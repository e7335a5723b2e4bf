package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/jmehdipour/subscribers/internal/repository"
	"github.com/labstack/echo/v4"
)

func signupsReportHandler(chRepo repository.SignupsRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		days := 30
		if v := c.QueryParam("days"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 365 {
				days = n
			}
		}
		since := time.Now().UTC().Truncate(24*time.Hour).AddDate(0, 0, -(days - 1))

		rows, err := chRepo.DailyCounts(c.Request().Context(), since)
		if err != nil {
			c.Logger().Errorf("clickhouse report failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}

		return c.JSON(http.StatusOK, map[string]any{
			"days":    days,
			"since":   since.Format(time.DateOnly),
			"count":   len(rows),
			"results": rows,
		})
	}
}
