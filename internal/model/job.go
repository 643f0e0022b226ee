package model

// SendJob is the payload pushed onto the campaign send queue.
type SendJob struct {
	CampaignID string `json:"campaign_id"`
	Attempt    int    `json:"attempt,omitempty"`
}

// DeliveryEvent is the payload consumed from the provider events topic.
// The provider's webhook bridge publishes one record per engagement event.
type DeliveryEvent struct {
	CampaignID   string            `json:"campaign_id"`
	SubscriberID string            `json:"subscriber_id"`
	Event        string            `json:"event"`
	MessageID    string            `json:"message_id,omitempty"`
	Reason       string            `json:"reason,omitempty"`
	Extra        map[string]string `json:"extra,omitempty"`
}
