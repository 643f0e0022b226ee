package worker

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/sendstuff/campaign-gateway/internal/kafka"
	"github.com/sendstuff/campaign-gateway/internal/metrics"
	"github.com/sendstuff/campaign-gateway/internal/model"
	"github.com/sendstuff/campaign-gateway/internal/repository"
)

// EventSource yields decoded provider feedback events. Satisfied by
// kafka.EventsConsumer.
type EventSource interface {
	FetchEvent(ctx context.Context) (model.DeliveryEvent, kafka.Message, error)
	Commit(ctx context.Context, m kafka.Message) error
}

type inboundEvent struct {
	ev  model.DeliveryEvent
	msg kafka.Message
}

// Events:
// - fetches provider delivery feedback,
// - batches delivery-log inserts with size/time flush,
// - flips subscriber status on bounces, complaints and unsubscribes.
type Events struct {
	// Dependencies
	Source      EventSource
	Logs        repository.DeliveryLogsRepository
	Subscribers repository.SubscribersRepository

	// Behavior
	Workers   int           // goroutines handling events
	BatchSize int           // max buffered log rows per flush
	BatchWait time.Duration // max time to wait before flush
}

// NewEvents builds a consumer with sane defaults.
func NewEvents(
	source EventSource,
	logs repository.DeliveryLogsRepository,
	subscribers repository.SubscribersRepository,
) *Events {
	return &Events{
		Source:      source,
		Logs:        logs,
		Subscribers: subscribers,
		Workers:     8,
		BatchSize:   200,
		BatchWait:   300 * time.Millisecond,
	}
}

// Run starts the consumer and blocks until ctx is cancelled. On shutdown
// the processors are drained before the row channel closes, and the batch
// writer performs one final flush.
func (w *Events) Run(ctx context.Context) error {
	if w.Workers <= 0 {
		w.Workers = 8
	}
	if w.BatchSize <= 0 {
		w.BatchSize = 200
	}
	if w.BatchWait <= 0 {
		w.BatchWait = 300 * time.Millisecond
	}

	rows := make(chan model.DeliveryLog, w.BatchSize*2)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		w.runBatchWriter(ctx, rows)
	}()

	evCh := make(chan inboundEvent, w.Workers*2)

	// Fetcher goroutine: poison records are committed and skipped here so
	// they never occupy a processor.
	go func() {
		defer close(evCh)
		for {
			ev, m, err := w.Source.FetchEvent(ctx)
			if errors.Is(err, kafka.ErrBadEvent) {
				_ = w.Source.Commit(ctx, m)
				log.Printf("[events] %v", err)
				continue
			}
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Printf("[events] fetch err: %v", err)
				time.Sleep(200 * time.Millisecond)
				continue
			}
			select {
			case evCh <- inboundEvent{ev: ev, msg: m}:
			case <-ctx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < w.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.runProcessor(ctx, evCh, rows)
		}()
	}

	<-ctx.Done()
	wg.Wait()
	close(rows)
	<-writerDone
	return nil
}

func (w *Events) runProcessor(ctx context.Context, in <-chan inboundEvent, out chan<- model.DeliveryLog) {
	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-in:
			if !ok {
				return
			}
			w.processOne(ctx, item, out)
		}
	}
}

func (w *Events) processOne(ctx context.Context, item inboundEvent, out chan<- model.DeliveryLog) {
	ev := item.ev

	event, ok := model.ParseLogEvent(ev.Event)
	if !ok || event == model.EventSent {
		// `sent` rows are written by the dispatcher, not the feedback stream.
		_ = w.Source.Commit(ctx, item.msg)
		log.Printf("[events] ignoring event %q", ev.Event)
		return
	}

	metrics.ProviderEventsTotal.WithLabelValues(event.String()).Inc()

	meta := model.Attributes{}
	for k, v := range ev.Extra {
		meta[k] = v
	}
	if ev.MessageID != "" {
		meta["message_id"] = ev.MessageID
	}
	if ev.Reason != "" {
		meta["reason"] = ev.Reason
	}

	select {
	case out <- model.DeliveryLog{
		CampaignID:   ev.CampaignID,
		SubscriberID: ev.SubscriberID,
		Event:        event,
		Metadata:     meta,
	}:
	case <-ctx.Done():
		return
	}

	// Suppression is applied immediately; the log row can wait for a flush.
	switch event {
	case model.EventBounced:
		w.setStatus(ctx, ev.SubscriberID, model.SubscriberBounced)
	case model.EventComplained, model.EventUnsubscribed:
		w.setStatus(ctx, ev.SubscriberID, model.SubscriberUnsubscribed)
	}

	// Always commit (at-least-once; logs are append-only so dups are benign)
	if err := w.Source.Commit(ctx, item.msg); err != nil {
		log.Printf("[events] commit err: %v", err)
	}
}

func (w *Events) setStatus(ctx context.Context, subscriberID string, status model.SubscriberStatus) {
	if err := w.Subscribers.SetStatus(ctx, subscriberID, status); err != nil {
		log.Printf("[events] subscriber status err id=%s status=%s: %v", subscriberID, status, err)
	}
}

// runBatchWriter does size/time-based flush of delivery-log rows. It exits
// after the final flush when the row channel closes. Flushes run on a
// detached context so the shutdown flush is not lost to cancellation.
func (w *Events) runBatchWriter(ctx context.Context, in <-chan model.DeliveryLog) {
	tick := time.NewTicker(w.BatchWait)
	defer tick.Stop()

	buf := make([]model.DeliveryLog, 0, w.BatchSize)

	flush := func() {
		if len(buf) == 0 {
			return
		}
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		err := w.Logs.InsertBatch(fctx, nil, buf)
		cancel()
		if err != nil {
			log.Printf("[events] batch insert err (%d rows): %v", len(buf), err)
			return
		}
		log.Printf("[events] flushed %d log rows", len(buf))
		buf = buf[:0]
	}

	for {
		select {
		case row, ok := <-in:
			if !ok {
				flush()
				return
			}
			buf = append(buf, row)
			if len(buf) >= w.BatchSize {
				flush()
			}

		case <-tick.C:
			flush()
		}
	}
}
