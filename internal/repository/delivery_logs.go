package repository

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/sendstuff/campaign-gateway/internal/model"
	"github.com/sendstuff/campaign-gateway/internal/util"
)

// DeliveryLogsRepository defines persistence for the append-only
// delivery_logs table. Rows are inserted once and never touched again.
type DeliveryLogsRepository interface {
	// Insert writes one send-attempt or engagement row. If tx is nil, it
	// opens and commits an internal transaction; otherwise it uses the
	// given tx.
	Insert(ctx context.Context, tx *sqlx.Tx, campaignID, subscriberID string, event model.LogEvent, metadata model.Attributes) error

	// InsertBatch writes many rows in a single statement, used by the
	// delivery-event batch writer.
	InsertBatch(ctx context.Context, tx *sqlx.Tx, rows []model.DeliveryLog) error
}

type DeliveryLogsRepositoryImpl struct {
	db *sqlx.DB
}

func NewDeliveryLogsRepository(db *sqlx.DB) *DeliveryLogsRepositoryImpl {
	return &DeliveryLogsRepositoryImpl{db: db}
}

var _ DeliveryLogsRepository = (*DeliveryLogsRepositoryImpl)(nil)

// withTx runs fn in the provided tx, or starts a new transaction when tx is nil.
func (r *DeliveryLogsRepositoryImpl) withTx(ctx context.Context, tx *sqlx.Tx, fn func(*sqlx.Tx) error) error {
	if tx != nil {
		return fn(tx)
	}

	t, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() { _ = t.Rollback() }()
	if err := fn(t); err != nil {
		return err
	}

	return t.Commit()
}

func (r *DeliveryLogsRepositoryImpl) Insert(ctx context.Context, tx *sqlx.Tx, campaignID, subscriberID string, event model.LogEvent, metadata model.Attributes) error {
	const q = `
		INSERT INTO delivery_logs (id, campaign_id, subscriber_id, event, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, NOW())
	`
	return r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, q,
			util.NewID(), campaignID, subscriberID, event.String(), metadata,
		)
		return err
	})
}

func (r *DeliveryLogsRepositoryImpl) InsertBatch(ctx context.Context, tx *sqlx.Tx, rows []model.DeliveryLog) error {
	if len(rows) == 0 {
		return nil
	}

	var sb strings.Builder
	args := make([]any, 0, len(rows)*5)

	sb.WriteString(`INSERT INTO delivery_logs (id, campaign_id, subscriber_id, event, metadata, created_at) VALUES `)
	for i, row := range rows {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("(?, ?, ?, ?, ?, NOW())")
		id := row.ID
		if id == "" {
			id = util.NewID()
		}
		args = append(args, id, row.CampaignID, row.SubscriberID, row.Event.String(), row.Metadata)
	}

	return r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, sb.String(), args...)
		return err
	})
}
