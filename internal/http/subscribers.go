package http

import (
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v4"

	"github.com/sendstuff/campaign-gateway/internal/http/middleware"
	"github.com/sendstuff/campaign-gateway/internal/model"
	"github.com/sendstuff/campaign-gateway/internal/repository"
	"github.com/sendstuff/campaign-gateway/internal/util"
)

type subscriberReq struct {
	Email    string           `json:"email"`
	Name     string           `json:"name"`
	Status   string           `json:"status"`
	Tags     model.Tags       `json:"tags"`
	Metadata model.Attributes `json:"metadata"`
}

func createSubscriberHandler(subscribers repository.SubscribersRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok := middleware.UserIDFromCtx(c)
		if !ok || userID <= 0 {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		var req subscriberReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		email := util.NormalizeEmail(req.Email)
		if !util.ValidEmail(email) {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid email"})
		}

		sub := model.Subscriber{
			ID:       util.NewID(),
			UserID:   userID,
			Email:    email,
			Name:     strings.TrimSpace(req.Name),
			Status:   model.SubscriberActive,
			Tags:     req.Tags,
			Metadata: req.Metadata,
		}

		if err := subscribers.Insert(c.Request().Context(), &sub); err != nil {
			c.Logger().Errorf("subscriber insert failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		return c.JSON(http.StatusCreated, sub)
	}
}

func listSubscribersHandler(subscribers repository.SubscribersRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok := middleware.UserIDFromCtx(c)
		if !ok || userID <= 0 {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		limit, offset := pagination(c)

		var st model.SubscriberStatus
		if raw := strings.TrimSpace(c.QueryParam("status")); raw != "" {
			tmp := model.SubscriberStatus(raw)
			if tmp.Valid() {
				st = tmp
			}
		}

		items, total, err := subscribers.List(c.Request().Context(), userID, st, limit, offset)
		if err != nil {
			c.Logger().Errorf("subscriber list failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		return c.JSON(http.StatusOK, map[string]any{
			"limit":   limit,
			"offset":  offset,
			"total":   total,
			"results": items,
		})
	}
}

func getSubscriberHandler(subscribers repository.SubscribersRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok := middleware.UserIDFromCtx(c)
		if !ok || userID <= 0 {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		sub, err := subscribers.GetForUser(c.Request().Context(), c.Param("id"), userID)
		if err != nil {
			c.Logger().Errorf("subscriber get failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		if sub == nil {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "subscriber not found"})
		}
		return c.JSON(http.StatusOK, sub)
	}
}

func updateSubscriberHandler(subscribers repository.SubscribersRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok := middleware.UserIDFromCtx(c)
		if !ok || userID <= 0 {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		var req subscriberReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		email := util.NormalizeEmail(req.Email)
		if !util.ValidEmail(email) {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid email"})
		}
		status := model.SubscriberStatus(strings.TrimSpace(req.Status))
		if req.Status == "" {
			status = model.SubscriberActive
		}
		if !status.Valid() {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid status"})
		}

		sub := model.Subscriber{
			ID:       c.Param("id"),
			UserID:   userID,
			Email:    email,
			Name:     strings.TrimSpace(req.Name),
			Status:   status,
			Tags:     req.Tags,
			Metadata: req.Metadata,
		}

		updated, err := subscribers.Update(c.Request().Context(), &sub)
		if err != nil {
			c.Logger().Errorf("subscriber update failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		if !updated {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "subscriber not found"})
		}
		return c.JSON(http.StatusOK, map[string]any{"updated": true, "id": sub.ID})
	}
}

func deleteSubscriberHandler(subscribers repository.SubscribersRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok := middleware.UserIDFromCtx(c)
		if !ok || userID <= 0 {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		deleted, err := subscribers.Delete(c.Request().Context(), c.Param("id"), userID)
		if err != nil {
			c.Logger().Errorf("subscriber delete failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		if !deleted {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "subscriber not found"})
		}
		return c.NoContent(http.StatusNoContent)
	}
}
