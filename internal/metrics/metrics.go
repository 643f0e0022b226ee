package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	CampaignsDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sendstuff_campaigns_dispatched_total",
			Help: "Campaign dispatch jobs by outcome",
		},
		[]string{"outcome"}, // sent|failed|invalid
	)

	DeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sendstuff_deliveries_total",
			Help: "Per-subscriber delivery attempts by recorded event",
		},
		[]string{"event"}, // sent|bounced
	)

	ProviderEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sendstuff_provider_events_total",
			Help: "Delivery feedback events consumed from the provider stream",
		},
		[]string{"event"}, // delivered|opened|clicked|bounced|complained|unsubscribed
	)
)

func MustRegister(r prometheus.Registerer) {
	r.MustRegister(
		CampaignsDispatched,
		DeliveriesTotal,
		ProviderEventsTotal,
	)
}
