package http

import (
	"net/http"
	"strings"
	"time"

	echo "github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/sendstuff/campaign-gateway/internal/http/middleware"
	"github.com/sendstuff/campaign-gateway/internal/model"
	"github.com/sendstuff/campaign-gateway/internal/queue"
	"github.com/sendstuff/campaign-gateway/internal/repository"
	"github.com/sendstuff/campaign-gateway/internal/util"
)

type campaignReq struct {
	Title       string     `json:"title"`
	Subject     string     `json:"subject"`
	Content     string     `json:"content"`
	HTMLContent *string    `json:"html_content"`
	ScheduledAt *time.Time `json:"scheduled_at"`
}

func (r *campaignReq) normalize() {
	r.Title = strings.TrimSpace(r.Title)
	r.Subject = strings.TrimSpace(r.Subject)
	r.Content = strings.TrimSpace(r.Content)
}

func (r *campaignReq) valid() bool {
	return r.Title != "" && r.Subject != "" && r.Content != ""
}

func createCampaignHandler(campaigns repository.CampaignsRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok := middleware.UserIDFromCtx(c)
		if !ok || userID <= 0 {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		var req campaignReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}
		req.normalize()
		if !req.valid() {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "title, subject and content are required"})
		}

		status := model.CampaignDraft
		if req.ScheduledAt != nil && req.ScheduledAt.After(time.Now()) {
			status = model.CampaignScheduled
		}

		campaign := model.Campaign{
			ID:          util.NewID(),
			UserID:      userID,
			Title:       req.Title,
			Subject:     req.Subject,
			Content:     req.Content,
			HTMLContent: req.HTMLContent,
			Status:      status,
			ScheduledAt: req.ScheduledAt,
		}

		if err := campaigns.Create(c.Request().Context(), &campaign); err != nil {
			c.Logger().Errorf("campaign create failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		return c.JSON(http.StatusCreated, campaign)
	}
}

func listCampaignsHandler(campaigns repository.CampaignsRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok := middleware.UserIDFromCtx(c)
		if !ok || userID <= 0 {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		limit, offset := pagination(c)

		var st model.CampaignStatus
		if raw := strings.TrimSpace(c.QueryParam("status")); raw != "" {
			tmp := model.CampaignStatus(raw)
			if tmp.Valid() {
				st = tmp
			}
		}

		items, total, err := campaigns.List(c.Request().Context(), userID, st, limit, offset)
		if err != nil {
			c.Logger().Errorf("campaign list failed: %v", err)
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

func getCampaignHandler(campaigns repository.CampaignsRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok := middleware.UserIDFromCtx(c)
		if !ok || userID <= 0 {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		campaign, err := campaigns.GetForUser(c.Request().Context(), c.Param("id"), userID)
		if err != nil {
			c.Logger().Errorf("campaign get failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		if campaign == nil {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "campaign not found"})
		}

		stats, err := campaigns.StatsByCampaign(c.Request().Context(), campaign.ID)
		if err != nil {
			c.Logger().Errorf("campaign stats failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		return c.JSON(http.StatusOK, map[string]any{
			"campaign": campaign,
			"stats":    stats,
		})
	}
}

func updateCampaignHandler(campaigns repository.CampaignsRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok := middleware.UserIDFromCtx(c)
		if !ok || userID <= 0 {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		var req campaignReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}
		req.normalize()
		if !req.valid() {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "title, subject and content are required"})
		}

		campaign := model.Campaign{
			ID:          c.Param("id"),
			UserID:      userID,
			Title:       req.Title,
			Subject:     req.Subject,
			Content:     req.Content,
			HTMLContent: req.HTMLContent,
			ScheduledAt: req.ScheduledAt,
		}

		updated, err := campaigns.UpdateDraft(c.Request().Context(), &campaign)
		if err != nil {
			c.Logger().Errorf("campaign update failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		if !updated {
			// missing, foreign, or no longer a draft
			return c.JSON(http.StatusConflict, map[string]string{"error": "campaign is not an editable draft"})
		}
		return c.JSON(http.StatusOK, map[string]any{"updated": true, "id": campaign.ID})
	}
}

func deleteCampaignHandler(campaigns repository.CampaignsRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok := middleware.UserIDFromCtx(c)
		if !ok || userID <= 0 {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		deleted, err := campaigns.DeleteDraft(c.Request().Context(), c.Param("id"), userID)
		if err != nil {
			c.Logger().Errorf("campaign delete failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		if !deleted {
			return c.JSON(http.StatusConflict, map[string]string{"error": "campaign is not an editable draft"})
		}
		return c.NoContent(http.StatusNoContent)
	}
}

// sendCampaignHandler enqueues the dispatch job. Scheduled campaigns land
// in the delayed set and are promoted at their scheduled time; the worker
// performs the actual claim, so racing send requests are harmless.
func sendCampaignHandler(campaigns repository.CampaignsRepository, q *queue.Queue) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok := middleware.UserIDFromCtx(c)
		if !ok || userID <= 0 {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		campaign, err := campaigns.GetForUser(c.Request().Context(), c.Param("id"), userID)
		if err != nil {
			c.Logger().Errorf("campaign get failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		if campaign == nil {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "campaign not found"})
		}
		if campaign.Status != model.CampaignDraft && campaign.Status != model.CampaignScheduled {
			return c.JSON(http.StatusConflict, map[string]string{
				"error": "campaign is " + campaign.Status.String() + ", only draft or scheduled campaigns can be sent",
			})
		}

		job := model.SendJob{CampaignID: campaign.ID}
		if campaign.ScheduledAt != nil && campaign.ScheduledAt.After(time.Now()) {
			err = q.EnqueueAt(c.Request().Context(), job, *campaign.ScheduledAt)
		} else {
			err = q.Enqueue(c.Request().Context(), job)
		}
		if err != nil {
			log.Errorf("enqueue failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "queue error"})
		}

		return c.JSON(http.StatusAccepted, map[string]any{
			"enqueued":     true,
			"id":           campaign.ID,
			"scheduled_at": campaign.ScheduledAt,
		})
	}
}

func cancelCampaignHandler(campaigns repository.CampaignsRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok := middleware.UserIDFromCtx(c)
		if !ok || userID <= 0 {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		campaign, err := campaigns.GetForUser(c.Request().Context(), c.Param("id"), userID)
		if err != nil {
			c.Logger().Errorf("campaign get failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		if campaign == nil {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "campaign not found"})
		}

		cancelled, err := campaigns.Transition(c.Request().Context(), campaign.ID,
			[]model.CampaignStatus{model.CampaignDraft, model.CampaignScheduled},
			model.CampaignCancelled,
		)
		if err != nil {
			c.Logger().Errorf("campaign cancel failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		if !cancelled {
			return c.JSON(http.StatusConflict, map[string]string{
				"error": "campaign is " + campaign.Status.String() + " and cannot be cancelled",
			})
		}
		return c.JSON(http.StatusOK, map[string]any{"cancelled": true, "id": campaign.ID})
	}
}
