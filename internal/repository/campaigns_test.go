package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/sendstuff/campaign-gateway/internal/model"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "mysql"), mock
}

func TestTransition_Claims(t *testing.T) {
	dbx, mock := newMockDB(t)
	repo := NewCampaignsRepository(dbx)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE campaigns SET status = ?, updated_at = NOW() WHERE id = ? AND status IN (?, ?)")).
		WithArgs("sending", "c1", "draft", "scheduled").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.Transition(context.Background(), "c1",
		[]model.CampaignStatus{model.CampaignDraft, model.CampaignScheduled},
		model.CampaignSending,
	)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransition_LosesRace(t *testing.T) {
	dbx, mock := newMockDB(t)
	repo := NewCampaignsRepository(dbx)

	// another worker already moved the row out of draft
	mock.ExpectExec(regexp.QuoteMeta("UPDATE campaigns SET status = ?, updated_at = NOW() WHERE id = ? AND status IN (?)")).
		WithArgs("sending", "c1", "draft").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.Transition(context.Background(), "c1",
		[]model.CampaignStatus{model.CampaignDraft},
		model.CampaignSending,
	)
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransition_EmptyFrom(t *testing.T) {
	dbx, _ := newMockDB(t)
	repo := NewCampaignsRepository(dbx)

	ok, err := repo.Transition(context.Background(), "c1", nil, model.CampaignSending)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGetWithActiveSubscribers(t *testing.T) {
	dbx, mock := newMockDB(t)
	repo := NewCampaignsRepository(dbx)

	now := time.Now()
	mock.ExpectQuery("SELECT id, user_id, title, subject, content, html_content, status, scheduled_at, sent_at, created_at, updated_at").
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "title", "subject", "content", "html_content",
			"status", "scheduled_at", "sent_at", "created_at", "updated_at",
		}).AddRow("c1", int64(7), "t", "s", "body", nil, "sending", nil, nil, now, now))

	mock.ExpectQuery("SELECT id, user_id, email, name, status, tags, metadata, created_at, updated_at").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "email", "name", "status", "tags", "metadata", "created_at", "updated_at",
		}).
			AddRow("s1", int64(7), "a@example.com", "A", "active", []byte(`["x"]`), []byte(`{"plan":"pro"}`), now, now).
			AddRow("s2", int64(7), "b@example.com", "B", "active", []byte(`[]`), []byte(`{}`), now, now))

	c, subs, err := repo.GetWithActiveSubscribers(context.Background(), "c1")
	require.NoError(t, err)
	require.Equal(t, "c1", c.ID)
	require.Len(t, subs, 2)
	require.Equal(t, model.Tags{"x"}, subs[0].Tags)
	require.Equal(t, "pro", subs[0].Metadata["plan"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetWithActiveSubscribers_Missing(t *testing.T) {
	dbx, mock := newMockDB(t)
	repo := NewCampaignsRepository(dbx)

	mock.ExpectQuery("SELECT id, user_id, title").
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	c, subs, err := repo.GetWithActiveSubscribers(context.Background(), "nope")
	require.NoError(t, err)
	require.Nil(t, c)
	require.Nil(t, subs)
}

func TestStatsByCampaign(t *testing.T) {
	dbx, mock := newMockDB(t)
	repo := NewCampaignsRepository(dbx)

	mock.ExpectQuery("SELECT event, COUNT").
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"event", "n"}).
			AddRow("sent", 90).
			AddRow("bounced", 10))

	stats, err := repo.StatsByCampaign(context.Background(), "c1")
	require.NoError(t, err)
	require.Equal(t, 90, stats["sent"])
	require.Equal(t, 10, stats["bounced"])
	require.Equal(t, 100, stats["total"])
}
