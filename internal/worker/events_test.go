package worker

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/sendstuff/campaign-gateway/internal/kafka"
	"github.com/sendstuff/campaign-gateway/internal/model"
	"github.com/sendstuff/campaign-gateway/internal/repository"
)

// scriptedSource serves a fixed list of fetch results, then blocks until
// the context is cancelled, like a quiet Kafka partition.
type scriptedSource struct {
	mu      sync.Mutex
	items   []sourceItem
	commits int
}

type sourceItem struct {
	ev  model.DeliveryEvent
	err error
}

func (s *scriptedSource) FetchEvent(ctx context.Context) (model.DeliveryEvent, kafka.Message, error) {
	s.mu.Lock()
	if len(s.items) == 0 {
		s.mu.Unlock()
		<-ctx.Done()
		return model.DeliveryEvent{}, kafka.Message{}, ctx.Err()
	}
	it := s.items[0]
	s.items = s.items[1:]
	s.mu.Unlock()
	return it.ev, kafka.Message{}, it.err
}

func (s *scriptedSource) Commit(ctx context.Context, m kafka.Message) error {
	s.mu.Lock()
	s.commits++
	s.mu.Unlock()
	return nil
}

func (s *scriptedSource) committed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits
}

type captureLogs struct {
	mu   sync.Mutex
	rows []model.DeliveryLog
}

func (l *captureLogs) Insert(ctx context.Context, tx *sqlx.Tx, campaignID, subscriberID string, event model.LogEvent, metadata model.Attributes) error {
	return nil
}

func (l *captureLogs) InsertBatch(ctx context.Context, tx *sqlx.Tx, rows []model.DeliveryLog) error {
	l.mu.Lock()
	l.rows = append(l.rows, rows...)
	l.mu.Unlock()
	return nil
}

func (l *captureLogs) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.rows)
}

type captureSubscribers struct {
	repository.SubscribersRepository

	mu       sync.Mutex
	statuses map[string]model.SubscriberStatus
}

func (s *captureSubscribers) SetStatus(ctx context.Context, id string, status model.SubscriberStatus) error {
	s.mu.Lock()
	if s.statuses == nil {
		s.statuses = map[string]model.SubscriberStatus{}
	}
	s.statuses[id] = status
	s.mu.Unlock()
	return nil
}

func (s *captureSubscribers) statusOf(id string) model.SubscriberStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statuses[id]
}

func TestEventsShutdownDrainsAndFlushes(t *testing.T) {
	// Batch thresholds are set so no flush can happen while running; every
	// row must come out of the final flush after the processors drain.
	var items []sourceItem
	for i := 0; i < 20; i++ {
		items = append(items, sourceItem{ev: model.DeliveryEvent{
			CampaignID:   "c1",
			SubscriberID: fmt.Sprintf("s%d", i),
			Event:        "opened",
		}})
	}
	items = append(items,
		sourceItem{ev: model.DeliveryEvent{CampaignID: "c1", SubscriberID: "sb1", Event: "bounced", Reason: "mailbox full"}},
		sourceItem{ev: model.DeliveryEvent{CampaignID: "c1", SubscriberID: "su1", Event: "unsubscribed"}},
		sourceItem{ev: model.DeliveryEvent{CampaignID: "c1", SubscriberID: "s0", Event: "sent"}},
		sourceItem{err: fmt.Errorf("%w: not json", kafka.ErrBadEvent)},
	)

	source := &scriptedSource{items: items}
	logs := &captureLogs{}
	subs := &captureSubscribers{}

	w := NewEvents(source, logs, subs)
	w.Workers = 4
	w.BatchSize = 1000
	w.BatchWait = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Every record, including the ignored and malformed ones, gets
	// committed; nothing may have been flushed yet.
	require.Eventually(t, func() bool {
		return source.committed() == len(items)
	}, 2*time.Second, 10*time.Millisecond)
	require.Zero(t, logs.count())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not shut down")
	}

	// 20 opened + bounced + unsubscribed; `sent` and the bad record are
	// skipped.
	require.Equal(t, 22, logs.count())
	require.Equal(t, model.SubscriberBounced, subs.statusOf("sb1"))
	require.Equal(t, model.SubscriberUnsubscribed, subs.statusOf("su1"))

	var bounce *model.DeliveryLog
	logs.mu.Lock()
	for i := range logs.rows {
		if logs.rows[i].SubscriberID == "sb1" {
			bounce = &logs.rows[i]
		}
	}
	logs.mu.Unlock()
	require.NotNil(t, bounce)
	require.Equal(t, model.EventBounced, bounce.Event)
	require.Equal(t, "mailbox full", bounce.Metadata["reason"])
}
