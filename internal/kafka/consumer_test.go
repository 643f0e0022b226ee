package kafka

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeEvent(t *testing.T) {
	ev, err := decodeEvent([]byte(`{"campaign_id":"c1","subscriber_id":"s1","event":"bounced","reason":"mailbox full"}`))
	require.NoError(t, err)
	require.Equal(t, "c1", ev.CampaignID)
	require.Equal(t, "s1", ev.SubscriberID)
	require.Equal(t, "bounced", ev.Event)
	require.Equal(t, "mailbox full", ev.Reason)
}

func TestDecodeEvent_Bad(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"not json", "nope"},
		{"missing campaign id", `{"subscriber_id":"s1","event":"opened"}`},
		{"missing subscriber id", `{"campaign_id":"c1","event":"opened"}`},
		{"empty object", `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeEvent([]byte(tt.value))
			require.ErrorIs(t, err, ErrBadEvent)
		})
	}
}
