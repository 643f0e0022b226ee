package model

import (
	"strings"
	"time"
)

type LogEvent string

const (
	EventSent         LogEvent = "sent"
	EventDelivered    LogEvent = "delivered"
	EventOpened       LogEvent = "opened"
	EventClicked      LogEvent = "clicked"
	EventBounced      LogEvent = "bounced"
	EventComplained   LogEvent = "complained"
	EventUnsubscribed LogEvent = "unsubscribed"
)

func (e LogEvent) String() string {
	return string(e)
}

func (e LogEvent) Valid() bool {
	switch e {
	case EventSent, EventDelivered, EventOpened, EventClicked,
		EventBounced, EventComplained, EventUnsubscribed:
		return true
	}
	return false
}

// ParseLogEvent normalizes input. Returns (value, true) if valid.
func ParseLogEvent(s string) (LogEvent, bool) {
	e := LogEvent(strings.ToLower(strings.TrimSpace(s)))
	return e, e.Valid()
}

// DeliveryLog is one append-only send/engagement record for a
// campaign/subscriber pair. Rows are never updated or deleted.
type DeliveryLog struct {
	ID           string     `db:"id"`
	CampaignID   string     `db:"campaign_id"`
	SubscriberID string     `db:"subscriber_id"`
	Event        LogEvent   `db:"event"`
	Metadata     Attributes `db:"metadata"`
	CreatedAt    time.Time  `db:"created_at"`
}
