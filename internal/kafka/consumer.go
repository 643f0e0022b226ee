// Package kafka consumes provider delivery feedback from the events topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/sendstuff/campaign-gateway/internal/model"
)

// ErrBadEvent marks a record whose payload is not a usable delivery
// event. The record can still be committed, so callers skip it without
// stalling the partition.
var ErrBadEvent = errors.New("malformed delivery event")

type ConsumerConfig struct {
	Brokers        []string
	Topic          string
	GroupID        string
	MinBytes       int           // default 1KB
	MaxBytes       int           // default 10MB
	CommitInterval time.Duration // default 1s (0 = sync each msg)
	MaxWait        time.Duration
}

// EventsConsumer reads the provider feedback stream and decodes each
// record into a DeliveryEvent before handing it to the worker.
type EventsConsumer struct {
	r *kafka.Reader
}

func NewEventsConsumer(c ConsumerConfig) *EventsConsumer {
	min := c.MinBytes
	if min <= 0 {
		min = 1 << 10 // 1KB
	}
	max := c.MaxBytes
	if max <= 0 {
		max = 10 << 20 // 10MB
	}
	ci := c.CommitInterval
	if ci <= 0 {
		ci = time.Second
	}

	mw := c.MaxWait
	if mw <= 0 {
		mw = 50 * time.Millisecond
	}

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        c.Brokers,
		GroupID:        c.GroupID,
		Topic:          c.Topic,
		MinBytes:       min,
		MaxBytes:       max,
		CommitInterval: ci,
		MaxWait:        mw,
	})

	return &EventsConsumer{r: r}
}

type Message = kafka.Message

// decodeEvent parses one record. Events without both ids are useless:
// a log row could not be attributed to a campaign/subscriber pair.
func decodeEvent(value []byte) (model.DeliveryEvent, error) {
	var ev model.DeliveryEvent
	if err := json.Unmarshal(value, &ev); err != nil {
		return model.DeliveryEvent{}, fmt.Errorf("%w: %v", ErrBadEvent, err)
	}
	if ev.CampaignID == "" || ev.SubscriberID == "" {
		return model.DeliveryEvent{}, fmt.Errorf("%w: missing campaign or subscriber id", ErrBadEvent)
	}
	return ev, nil
}

// FetchEvent blocks for the next record and decodes it. When the error is
// ErrBadEvent the returned Message is still valid for committing.
func (c *EventsConsumer) FetchEvent(ctx context.Context) (model.DeliveryEvent, Message, error) {
	m, err := c.r.FetchMessage(ctx)
	if err != nil {
		return model.DeliveryEvent{}, Message{}, err
	}

	ev, err := decodeEvent(m.Value)
	if err != nil {
		return model.DeliveryEvent{}, m, err
	}
	return ev, m, nil
}

func (c *EventsConsumer) Commit(ctx context.Context, m Message) error {
	return c.r.CommitMessages(ctx, m)
}

func (c *EventsConsumer) Close() error { return c.r.Close() }
