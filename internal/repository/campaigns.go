package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sendstuff/campaign-gateway/internal/model"
)

// CampaignsRepository defines persistence for the campaigns table and the
// dispatch-time read of a campaign together with its eligible recipients.
type CampaignsRepository interface {
	Create(ctx context.Context, c *model.Campaign) error
	GetForUser(ctx context.Context, id string, userID int64) (*model.Campaign, error)
	List(ctx context.Context, userID int64, status model.CampaignStatus, limit, offset int) ([]model.Campaign, int, error)
	UpdateDraft(ctx context.Context, c *model.Campaign) (bool, error)
	DeleteDraft(ctx context.Context, id string, userID int64) (bool, error)

	// GetWithActiveSubscribers loads the campaign and a snapshot of its
	// owner's active subscribers in insertion order. Returns (nil, nil, nil)
	// when the campaign does not exist.
	GetWithActiveSubscribers(ctx context.Context, id string) (*model.Campaign, []model.Subscriber, error)

	// SetStatus unconditionally updates campaign status; sentAt is written
	// only when non-nil.
	SetStatus(ctx context.Context, id string, status model.CampaignStatus, sentAt *time.Time) error

	// Transition performs an atomic conditional status change and reports
	// whether a row was actually moved. Two concurrent claims of the same
	// campaign cannot both succeed.
	Transition(ctx context.Context, id string, from []model.CampaignStatus, to model.CampaignStatus) (bool, error)

	StatsByCampaign(ctx context.Context, id string) (map[string]int, error)
}

type CampaignsRepositoryImpl struct {
	db *sqlx.DB
}

func NewCampaignsRepository(db *sqlx.DB) *CampaignsRepositoryImpl {
	return &CampaignsRepositoryImpl{db: db}
}

var _ CampaignsRepository = (*CampaignsRepositoryImpl)(nil)

func (r *CampaignsRepositoryImpl) Create(ctx context.Context, c *model.Campaign) error {
	const q = `
		INSERT INTO campaigns
		    (id, user_id, title, subject, content, html_content, status, scheduled_at, created_at, updated_at)
		VALUES
		    (?,  ?,       ?,     ?,       ?,       ?,            'draft', ?,           NOW(),      NOW())
	`
	_, err := r.db.ExecContext(ctx, q,
		c.ID, c.UserID, c.Title, c.Subject, c.Content, c.HTMLContent, c.ScheduledAt,
	)
	return err
}

func (r *CampaignsRepositoryImpl) GetForUser(ctx context.Context, id string, userID int64) (*model.Campaign, error) {
	var c model.Campaign
	err := r.db.GetContext(ctx, &c, `
		SELECT id, user_id, title, subject, content, html_content, status, scheduled_at, sent_at, created_at, updated_at
		  FROM campaigns
		 WHERE id = ? AND user_id = ? LIMIT 1
	`, id, userID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CampaignsRepositoryImpl) List(ctx context.Context, userID int64, status model.CampaignStatus, limit, offset int) ([]model.Campaign, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	q := `
		SELECT id, user_id, title, subject, content, html_content, status, scheduled_at, sent_at, created_at, updated_at
		FROM campaigns
		WHERE user_id = ?
	`
	countQ := `SELECT COUNT(*) FROM campaigns WHERE user_id = ?`
	args := []any{userID}

	if status != "" {
		q += " AND status = ?"
		countQ += " AND status = ?"
		args = append(args, status.String())
	}

	var total int
	if err := r.db.GetContext(ctx, &total, countQ, args...); err != nil {
		return nil, 0, err
	}

	q += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	var rows []model.Campaign
	if err := r.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// UpdateDraft writes editable fields; the WHERE clause keeps sent or
// in-flight campaigns immutable.
func (r *CampaignsRepositoryImpl) UpdateDraft(ctx context.Context, c *model.Campaign) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns
		   SET title = ?, subject = ?, content = ?, html_content = ?, scheduled_at = ?, updated_at = NOW()
		 WHERE id = ? AND user_id = ? AND status = 'draft'
	`, c.Title, c.Subject, c.Content, c.HTMLContent, c.ScheduledAt, c.ID, c.UserID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *CampaignsRepositoryImpl) DeleteDraft(ctx context.Context, id string, userID int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM campaigns WHERE id = ? AND user_id = ? AND status = 'draft'
	`, id, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *CampaignsRepositoryImpl) GetWithActiveSubscribers(ctx context.Context, id string) (*model.Campaign, []model.Subscriber, error) {
	var c model.Campaign
	err := r.db.GetContext(ctx, &c, `
		SELECT id, user_id, title, subject, content, html_content, status, scheduled_at, sent_at, created_at, updated_at
		  FROM campaigns
		 WHERE id = ? LIMIT 1
	`, id)
	if err == sql.ErrNoRows {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}

	var subs []model.Subscriber
	err = r.db.SelectContext(ctx, &subs, `
		SELECT id, user_id, email, name, status, tags, metadata, created_at, updated_at
		  FROM subscribers
		 WHERE user_id = ? AND status = 'active'
		 ORDER BY created_at, id
	`, c.UserID)
	if err != nil {
		return nil, nil, err
	}
	return &c, subs, nil
}

func (r *CampaignsRepositoryImpl) SetStatus(ctx context.Context, id string, status model.CampaignStatus, sentAt *time.Time) error {
	if sentAt != nil {
		_, err := r.db.ExecContext(ctx, `
			UPDATE campaigns SET status = ?, sent_at = ?, updated_at = NOW() WHERE id = ?
		`, status.String(), *sentAt, id)
		return err
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE campaigns SET status = ?, updated_at = NOW() WHERE id = ?
	`, status.String(), id)
	return err
}

func (r *CampaignsRepositoryImpl) Transition(ctx context.Context, id string, from []model.CampaignStatus, to model.CampaignStatus) (bool, error) {
	if len(from) == 0 {
		return false, nil
	}
	states := make([]string, 0, len(from))
	for _, s := range from {
		states = append(states, s.String())
	}

	query, args, err := sqlx.In(`
		UPDATE campaigns SET status = ?, updated_at = NOW() WHERE id = ? AND status IN (?)
	`, to.String(), id, states)
	if err != nil {
		return false, err
	}
	query = r.db.Rebind(query)

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// StatsByCampaign aggregates delivery-log rows per event for the campaign
// detail endpoint.
func (r *CampaignsRepositoryImpl) StatsByCampaign(ctx context.Context, id string) (map[string]int, error) {
	rows, err := r.db.QueryxContext(ctx, `
		SELECT event, COUNT(*) AS n
		  FROM delivery_logs
		 WHERE campaign_id = ?
		 GROUP BY event
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := map[string]int{"total": 0}
	for rows.Next() {
		var event string
		var n int
		if err := rows.Scan(&event, &n); err != nil {
			return nil, err
		}
		stats[event] = n
		stats["total"] += n
	}
	return stats, rows.Err()
}
