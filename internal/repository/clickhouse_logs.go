package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/sendstuff/campaign-gateway/internal/model"
)

// DeliveryReportRow is the flattened shape served by the reports endpoint.
type DeliveryReportRow struct {
	ID           string `db:"id" json:"id"`
	CampaignID   string `db:"campaign_id" json:"campaign_id"`
	SubscriberID string `db:"subscriber_id" json:"subscriber_id"`
	Email        string `db:"email" json:"email"`
	Event        string `db:"event" json:"event"`
	MessageID    string `db:"message_id" json:"message_id,omitempty"`
	Error        string `db:"error" json:"error,omitempty"`
	CreatedAt    string `db:"created_at" json:"created_at"`
}

// CHDeliveryLogsRepository lists delivery logs from the ClickHouse replica.
type CHDeliveryLogsRepository interface {
	ListByUser(ctx context.Context, userID int64, campaignID string, event model.LogEvent, limit, offset int) ([]DeliveryReportRow, error)
}

type chDeliveryLogsRepository struct {
	ch *sqlx.DB // ClickHouse connection
}

func NewCHDeliveryLogsRepository(ch *sqlx.DB) CHDeliveryLogsRepository {
	return &chDeliveryLogsRepository{ch: ch}
}

func (r *chDeliveryLogsRepository) ListByUser(ctx context.Context, userID int64, campaignID string, event model.LogEvent, limit, offset int) ([]DeliveryReportRow, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	q := `
		SELECT id, campaign_id, subscriber_id, email, event, message_id, error, created_at
		FROM sendstuff.delivery_logs_latest
		WHERE user_id = ?
	`
	args := []any{userID}

	if campaignID != "" {
		q += " AND campaign_id = ?"
		args = append(args, campaignID)
	}
	if event != "" {
		q += " AND event = ?"
		args = append(args, event.String())
	}

	q += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	var rows []DeliveryReportRow
	if err := r.ch.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	return rows, nil
}
