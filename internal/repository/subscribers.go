package repository

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/sendstuff/campaign-gateway/internal/model"
)

type SubscribersRepository interface {
	Insert(ctx context.Context, s *model.Subscriber) error
	GetForUser(ctx context.Context, id string, userID int64) (*model.Subscriber, error)
	List(ctx context.Context, userID int64, status model.SubscriberStatus, limit, offset int) ([]model.Subscriber, int, error)
	Update(ctx context.Context, s *model.Subscriber) (bool, error)
	Delete(ctx context.Context, id string, userID int64) (bool, error)

	// SetStatus flips deliverability status from provider feedback
	// (bounce, complaint, unsubscribe).
	SetStatus(ctx context.Context, id string, status model.SubscriberStatus) error
}

type SubscribersRepositoryImpl struct {
	db *sqlx.DB
}

func NewSubscribersRepository(db *sqlx.DB) *SubscribersRepositoryImpl {
	return &SubscribersRepositoryImpl{db: db}
}

var _ SubscribersRepository = (*SubscribersRepositoryImpl)(nil)

func (r *SubscribersRepositoryImpl) Insert(ctx context.Context, s *model.Subscriber) error {
	const q = `
		INSERT INTO subscribers
		    (id, user_id, email, name, status, tags, metadata, created_at, updated_at)
		VALUES
		    (?,  ?,       ?,     ?,    'active', ?,  ?,        NOW(),      NOW())
	`
	_, err := r.db.ExecContext(ctx, q,
		s.ID, s.UserID, s.Email, s.Name, s.Tags, s.Metadata,
	)
	return err
}

func (r *SubscribersRepositoryImpl) GetForUser(ctx context.Context, id string, userID int64) (*model.Subscriber, error) {
	var s model.Subscriber
	err := r.db.GetContext(ctx, &s, `
		SELECT id, user_id, email, name, status, tags, metadata, created_at, updated_at
		  FROM subscribers
		 WHERE id = ? AND user_id = ? LIMIT 1
	`, id, userID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SubscribersRepositoryImpl) List(ctx context.Context, userID int64, status model.SubscriberStatus, limit, offset int) ([]model.Subscriber, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	q := `
		SELECT id, user_id, email, name, status, tags, metadata, created_at, updated_at
		FROM subscribers
		WHERE user_id = ?
	`
	countQ := `SELECT COUNT(*) FROM subscribers WHERE user_id = ?`
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

	q += " ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	var rows []model.Subscriber
	if err := r.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func (r *SubscribersRepositoryImpl) Update(ctx context.Context, s *model.Subscriber) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE subscribers
		   SET name = ?, status = ?, tags = ?, metadata = ?, updated_at = NOW()
		 WHERE id = ? AND user_id = ?
	`, s.Name, s.Status.String(), s.Tags, s.Metadata, s.ID, s.UserID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *SubscribersRepositoryImpl) Delete(ctx context.Context, id string, userID int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM subscribers WHERE id = ? AND user_id = ?
	`, id, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *SubscribersRepositoryImpl) SetStatus(ctx context.Context, id string, status model.SubscriberStatus) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE subscribers SET status = ?, updated_at = NOW() WHERE id = ?
	`, status.String(), id)
	return err
}
