package worker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/sendstuff/campaign-gateway/internal/dispatcher"
	"github.com/sendstuff/campaign-gateway/internal/model"
	"github.com/sendstuff/campaign-gateway/internal/queue"
	"github.com/sendstuff/campaign-gateway/internal/repository"
)

// claimOnlyCampaigns fakes the one repository call the sender makes. Any
// other method panics via the embedded nil interface.
type claimOnlyCampaigns struct {
	repository.CampaignsRepository

	claimed  bool
	claimErr error
	claims   int
}

func (f *claimOnlyCampaigns) Transition(ctx context.Context, id string, from []model.CampaignStatus, to model.CampaignStatus) (bool, error) {
	f.claims++
	return f.claimed, f.claimErr
}

type fakeDispatcher struct {
	calls int
	errs  []error // errs[i] for call i, nil means success
}

func (d *fakeDispatcher) Dispatch(ctx context.Context, campaignID string) (dispatcher.Summary, error) {
	i := d.calls
	d.calls++
	if i < len(d.errs) && d.errs[i] != nil {
		return dispatcher.Summary{}, d.errs[i]
	}
	return dispatcher.Summary{
		CampaignID:       campaignID,
		TotalSubscribers: 1,
		TotalSent:        1,
	}, nil
}

func newTestQueue(t *testing.T) *queue.Queue {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return queue.New(rdb, "test-send")
}

func newTestSender(t *testing.T, campaigns *claimOnlyCampaigns, d *fakeDispatcher) *Sender {
	t.Helper()
	s := NewSender(newTestQueue(t), campaigns, d)
	s.MaxAttempts = 2
	s.RetryDelay = time.Minute
	return s
}

func TestSenderClaimsAndDispatches(t *testing.T) {
	campaigns := &claimOnlyCampaigns{claimed: true}
	d := &fakeDispatcher{}
	s := newTestSender(t, campaigns, d)

	s.processOne(context.Background(), 0, model.SendJob{CampaignID: "c1"})

	require.Equal(t, 1, campaigns.claims)
	require.Equal(t, 1, d.calls)

	ready, delayed, err := s.Queue.Depth(context.Background())
	require.NoError(t, err)
	require.Zero(t, ready)
	require.Zero(t, delayed)
}

func TestSenderDropsUnclaimableJob(t *testing.T) {
	campaigns := &claimOnlyCampaigns{claimed: false}
	d := &fakeDispatcher{}
	s := newTestSender(t, campaigns, d)

	s.processOne(context.Background(), 0, model.SendJob{CampaignID: "c1"})

	require.Equal(t, 1, campaigns.claims)
	require.Zero(t, d.calls, "lost claim must not dispatch")

	_, delayed, err := s.Queue.Depth(context.Background())
	require.NoError(t, err)
	require.Zero(t, delayed, "lost claim must not re-enqueue")
}

func TestSenderDropsJobWithoutCampaignID(t *testing.T) {
	campaigns := &claimOnlyCampaigns{claimed: true}
	d := &fakeDispatcher{}
	s := newTestSender(t, campaigns, d)

	s.processOne(context.Background(), 0, model.SendJob{})

	require.Zero(t, campaigns.claims)
	require.Zero(t, d.calls)
}

func TestSenderDoesNotRetryUnretryableErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"not found", fmt.Errorf("load: %w", dispatcher.ErrNotFound)},
		{"invalid state", fmt.Errorf("campaign sent: %w", dispatcher.ErrInvalidState)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			campaigns := &claimOnlyCampaigns{claimed: true}
			d := &fakeDispatcher{errs: []error{tt.err}}
			s := newTestSender(t, campaigns, d)

			s.processOne(context.Background(), 0, model.SendJob{CampaignID: "c1"})

			require.Equal(t, 1, d.calls)
			_, delayed, err := s.Queue.Depth(context.Background())
			require.NoError(t, err)
			require.Zero(t, delayed)
		})
	}
}

func TestSenderRetriesThenGivesUp(t *testing.T) {
	ctx := context.Background()
	campaigns := &claimOnlyCampaigns{claimed: true}
	d := &fakeDispatcher{errs: []error{errors.New("smtp down"), errors.New("smtp down")}}
	s := newTestSender(t, campaigns, d) // MaxAttempts = 2

	// First attempt fails and lands in the delayed set.
	s.processOne(ctx, 0, model.SendJob{CampaignID: "c1"})

	_, delayed, err := s.Queue.Depth(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, delayed)

	// Promote past the retry delay and pick the job back up.
	n, err := s.Queue.PromoteDue(ctx, time.Now().Add(2*s.RetryDelay))
	require.NoError(t, err)
	require.Equal(t, 1, n)

	job, err := s.Queue.Dequeue(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, "c1", job.CampaignID)
	require.Equal(t, 1, job.Attempt)

	// Second attempt fails too and hits the cap: nothing re-enqueued.
	s.processOne(ctx, 0, job)

	require.Equal(t, 2, d.calls)
	ready, delayed, err := s.Queue.Depth(ctx)
	require.NoError(t, err)
	require.Zero(t, ready)
	require.Zero(t, delayed)
}

func TestSenderRetriesClaimError(t *testing.T) {
	campaigns := &claimOnlyCampaigns{claimErr: errors.New("db gone")}
	d := &fakeDispatcher{}
	s := newTestSender(t, campaigns, d)

	s.processOne(context.Background(), 0, model.SendJob{CampaignID: "c1"})

	require.Zero(t, d.calls)
	_, delayed, err := s.Queue.Depth(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, delayed)
}
