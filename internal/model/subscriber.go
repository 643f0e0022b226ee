package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

type SubscriberStatus string

const (
	SubscriberActive       SubscriberStatus = "active"
	SubscriberUnsubscribed SubscriberStatus = "unsubscribed"
	SubscriberBounced      SubscriberStatus = "bounced"
)

func (s SubscriberStatus) String() string {
	return string(s)
}

func (s SubscriberStatus) Valid() bool {
	return s == SubscriberActive || s == SubscriberUnsubscribed || s == SubscriberBounced
}

// Tags is a free-form tag set stored as a JSON array column.
type Tags []string

func (t Tags) Value() (driver.Value, error) {
	if t == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(t)
}

func (t *Tags) Scan(src any) error {
	return scanJSON(src, t)
}

// Attributes is a free-form metadata map stored as a JSON object column.
type Attributes map[string]string

func (a Attributes) Value() (driver.Value, error) {
	if a == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(a)
}

func (a *Attributes) Scan(src any) error {
	return scanJSON(src, a)
}

func scanJSON(src, dst any) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		if len(v) == 0 {
			return nil
		}
		return json.Unmarshal(v, dst)
	case string:
		if v == "" {
			return nil
		}
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("unsupported JSON column type %T", src)
	}
}

// Subscriber is a recipient record scoped to an owning user.
// Only active subscribers are eligible recipients at dispatch time.
type Subscriber struct {
	ID        string           `db:"id" json:"id"`
	UserID    int64            `db:"user_id" json:"user_id"`
	Email     string           `db:"email" json:"email"`
	Name      string           `db:"name" json:"name"`
	Status    SubscriberStatus `db:"status" json:"status"`
	Tags      Tags             `db:"tags" json:"tags"`
	Metadata  Attributes       `db:"metadata" json:"metadata"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt time.Time        `db:"updated_at" json:"updated_at"`
}
