package dispatcher

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sendstuff/campaign-gateway/internal/metrics"
	"github.com/sendstuff/campaign-gateway/internal/model"
	"github.com/sendstuff/campaign-gateway/internal/render"
	"github.com/sendstuff/campaign-gateway/internal/repository"
	"github.com/sendstuff/campaign-gateway/internal/transport"
)

var (
	// ErrNotFound : the referenced campaign does not exist. Fatal to the job.
	ErrNotFound = fmt.Errorf("campaign not found")
	// ErrInvalidState : the campaign is not in sending status. Fatal to the job.
	ErrInvalidState = fmt.Errorf("campaign not in sending state")
)

// Summary is the dispatch result returned to the job entry point.
// TotalSent + TotalErrors always equals TotalSubscribers.
type Summary struct {
	CampaignID       string `json:"campaign_id"`
	TotalSubscribers int    `json:"total_subscribers"`
	TotalSent        int    `json:"total_sent"`
	TotalErrors      int    `json:"total_errors"`
}

// ProgressFunc receives the completed percentage (0-100) once per batch.
// Observability hook only; errors in the hook are the hook's problem.
type ProgressFunc func(percent int)

// BatchDispatcher drives one campaign send:
// - snapshots the owner's active subscribers once,
// - partitions them into fixed-size ordered batches,
// - fans out one send per subscriber within a batch and settles all of them,
// - pauses between batches to respect provider rate limits,
// - records exactly one delivery-log row per subscriber,
// - finishes sending->sent, or reverts to draft when the pipeline fails.
type BatchDispatcher struct {
	Campaigns repository.CampaignsRepository
	Logs      repository.DeliveryLogsRepository
	Mailer    transport.Mailer
	Renderer  *render.Renderer

	// Behavior
	BatchSize  int           // subscribers per batch
	BatchDelay time.Duration // fixed pause between batches, not adaptive
	FromName   string
	FromEmail  string
	OnProgress ProgressFunc // optional
}

// New builds a dispatcher with sane defaults.
func New(
	campaigns repository.CampaignsRepository,
	logs repository.DeliveryLogsRepository,
	mailer transport.Mailer,
	renderer *render.Renderer,
) *BatchDispatcher {
	return &BatchDispatcher{
		Campaigns:  campaigns,
		Logs:       logs,
		Mailer:     mailer,
		Renderer:   renderer,
		BatchSize:  100,
		BatchDelay: time.Second,
	}
}

// Dispatch sends the campaign to every eligible subscriber. The campaign
// must already be in sending status; the caller owns the draft->sending
// claim. Per-subscriber failures are absorbed into bounced log rows; only
// campaign-level load or status-persist failures propagate, and those
// revert the campaign to draft first so it stays resendable.
func (d *BatchDispatcher) Dispatch(ctx context.Context, campaignID string) (Summary, error) {
	batchSize := d.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	delay := d.BatchDelay
	if delay <= 0 {
		delay = time.Second
	}

	campaign, subs, err := d.Campaigns.GetWithActiveSubscribers(ctx, campaignID)
	if err != nil {
		d.revert(ctx, campaignID)
		return Summary{}, fmt.Errorf("load campaign %s: %w", campaignID, err)
	}
	if campaign == nil {
		return Summary{}, fmt.Errorf("%w: %s", ErrNotFound, campaignID)
	}
	if campaign.Status != model.CampaignSending {
		return Summary{}, fmt.Errorf("%w: %s is %s", ErrInvalidState, campaignID, campaign.Status)
	}

	summary := Summary{CampaignID: campaignID, TotalSubscribers: len(subs)}

	// Empty snapshot is a successful no-op send, not an error.
	if len(subs) == 0 {
		if err := d.finish(ctx, campaignID); err != nil {
			return Summary{}, err
		}
		return summary, nil
	}

	numBatches := (len(subs) + batchSize - 1) / batchSize

	var sent, failed atomic.Int64

	for i := 0; i < numBatches; i++ {
		lo := i * batchSize
		hi := lo + batchSize
		if hi > len(subs) {
			hi = len(subs)
		}
		batch := subs[lo:hi]

		if d.OnProgress != nil {
			d.OnProgress(int(math.Round(float64(i+1) / float64(numBatches) * 100)))
		}
		log.Printf("[dispatch] campaign=%s batch=%d/%d size=%d", campaignID, i+1, numBatches, len(batch))

		// Settle-all fan-out: every send in the batch completes before the
		// next batch starts, and no failure aborts its siblings.
		var wg sync.WaitGroup
		for _, sub := range batch {
			wg.Add(1)
			go func(sub model.Subscriber) {
				defer wg.Done()
				if d.sendOne(ctx, campaign, sub) {
					sent.Add(1)
				} else {
					failed.Add(1)
				}
			}(sub)
		}
		wg.Wait()

		if i < numBatches-1 {
			select {
			case <-ctx.Done():
				d.revert(ctx, campaignID)
				return Summary{}, ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	summary.TotalSent = int(sent.Load())
	summary.TotalErrors = int(failed.Load())

	if err := d.finish(ctx, campaignID); err != nil {
		return Summary{}, err
	}

	log.Printf("[dispatch] campaign=%s done sent=%d errors=%d", campaignID, summary.TotalSent, summary.TotalErrors)
	return summary, nil
}

// sendOne renders, sends, and records exactly one delivery-log row for the
// subscriber. It never propagates: any failure along the way yields a
// bounced row (or, at worst, a counted error when even the insert fails).
func (d *BatchDispatcher) sendOne(ctx context.Context, c *model.Campaign, sub model.Subscriber) bool {
	meta := model.Attributes{}

	html, err := d.Renderer.HTML(c, sub)
	if err != nil {
		meta["error"] = err.Error()
		metrics.DeliveriesTotal.WithLabelValues("bounced").Inc()
		if lerr := d.Logs.Insert(ctx, nil, c.ID, sub.ID, model.EventBounced, meta); lerr != nil {
			log.Printf("[dispatch] log insert failed campaign=%s subscriber=%s: %v", c.ID, sub.ID, lerr)
		}
		return false
	}

	text, err := d.Renderer.Text(c, sub)
	if err != nil {
		// plain-text alternative is best effort; HTML already rendered
		text = c.Content
	}

	res := d.Mailer.Send(ctx, transport.Message{
		From:    fmt.Sprintf("%s <%s>", d.FromName, d.FromEmail),
		To:      []string{sub.Email},
		Subject: c.Subject,
		HTML:    html,
		Text:    text,
	})

	event := model.EventSent
	if !res.Success {
		event = model.EventBounced
	}
	if res.MessageID != "" {
		meta["message_id"] = res.MessageID
	}
	if res.Error != "" {
		meta["error"] = res.Error
	}

	metrics.DeliveriesTotal.WithLabelValues(event.String()).Inc()

	if err := d.Logs.Insert(ctx, nil, c.ID, sub.ID, event, meta); err != nil {
		log.Printf("[dispatch] log insert failed campaign=%s subscriber=%s: %v", c.ID, sub.ID, err)
		return false
	}
	return res.Success
}

// finish marks the campaign sent. A persist failure here reverts to draft
// and propagates, so the campaign never sticks in sending.
func (d *BatchDispatcher) finish(ctx context.Context, campaignID string) error {
	now := time.Now()
	if err := d.Campaigns.SetStatus(ctx, campaignID, model.CampaignSent, &now); err != nil {
		d.revert(ctx, campaignID)
		return fmt.Errorf("mark campaign %s sent: %w", campaignID, err)
	}
	return nil
}

// revert is the best-effort compensating transition back to draft. It
// runs detached from the caller's cancellation so a dead job context
// cannot leave the campaign stuck in sending.
func (d *BatchDispatcher) revert(ctx context.Context, campaignID string) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := d.Campaigns.SetStatus(rctx, campaignID, model.CampaignDraft, nil); err != nil {
		log.Printf("[dispatch] revert to draft failed campaign=%s: %v", campaignID, err)
	}
}
