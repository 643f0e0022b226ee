package http

import (
	"net/http"
	"strconv"
	"strings"

	echo "github.com/labstack/echo/v4"

	"github.com/sendstuff/campaign-gateway/internal/http/middleware"
	"github.com/sendstuff/campaign-gateway/internal/model"
	"github.com/sendstuff/campaign-gateway/internal/repository"
)

func pagination(c echo.Context) (limit, offset int) {
	limit = 50
	offset = 0
	if v := c.QueryParam("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}
	if v := c.QueryParam("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}

// listDeliveriesHandler serves the delivery-log report from the ClickHouse
// replica; the MySQL table stays out of the read path.
func listDeliveriesHandler(chRepo repository.CHDeliveryLogsRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok := middleware.UserIDFromCtx(c)
		if !ok || userID <= 0 {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		limit, offset := pagination(c)

		var event model.LogEvent
		if raw := strings.TrimSpace(c.QueryParam("event")); raw != "" {
			tmp, ok := model.ParseLogEvent(raw)
			if ok {
				event = tmp
			}
		}

		campaignID := strings.TrimSpace(c.QueryParam("campaign_id"))

		rows, err := chRepo.ListByUser(
			c.Request().Context(),
			userID,
			campaignID,
			event,
			limit,
			offset,
		)
		if err != nil {
			c.Logger().Errorf("clickhouse list failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}

		return c.JSON(http.StatusOK, map[string]any{
			"limit":   limit,
			"offset":  offset,
			"count":   len(rows),
			"results": rows,
		})
	}
}
