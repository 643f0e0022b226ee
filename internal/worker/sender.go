package worker

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/sendstuff/campaign-gateway/internal/dispatcher"
	"github.com/sendstuff/campaign-gateway/internal/metrics"
	"github.com/sendstuff/campaign-gateway/internal/model"
	"github.com/sendstuff/campaign-gateway/internal/queue"
	"github.com/sendstuff/campaign-gateway/internal/repository"
)

// Dispatcher runs the full send pipeline for one claimed campaign.
// Satisfied by dispatcher.BatchDispatcher.
type Dispatcher interface {
	Dispatch(ctx context.Context, campaignID string) (dispatcher.Summary, error)
}

// Sender:
// - pulls send jobs off the Redis queue,
// - claims the campaign (draft|scheduled -> sending) so concurrent workers
//   cannot double-send,
// - hands the claimed campaign to the batch dispatcher,
// - re-enqueues failed jobs with a delay, up to MaxAttempts.
type Sender struct {
	// Dependencies
	Queue     *queue.Queue
	Campaigns repository.CampaignsRepository
	Dispatch  Dispatcher

	// Behavior
	Workers         int           // concurrent campaign sends per process
	PollWait        time.Duration // BRPOP block window
	MaxAttempts     int           // total tries per job, then dropped
	RetryDelay      time.Duration // delay before a failed job runs again
	PromoteInterval time.Duration // delayed-zset promotion cadence
}

// NewSender builds a worker with sane defaults.
func NewSender(
	q *queue.Queue,
	campaigns repository.CampaignsRepository,
	dispatch Dispatcher,
) *Sender {
	return &Sender{
		Queue:           q,
		Campaigns:       campaigns,
		Dispatch:        dispatch,
		Workers:         5,
		PollWait:        2 * time.Second,
		MaxAttempts:     3,
		RetryDelay:      30 * time.Second,
		PromoteInterval: 5 * time.Second,
	}
}

// Run starts the worker and blocks until ctx is cancelled.
func (w *Sender) Run(ctx context.Context) error {
	if w.Workers <= 0 {
		w.Workers = 5
	}
	if w.PollWait <= 0 {
		w.PollWait = 2 * time.Second
	}
	if w.MaxAttempts <= 0 {
		w.MaxAttempts = 3
	}
	if w.RetryDelay <= 0 {
		w.RetryDelay = 30 * time.Second
	}
	if w.PromoteInterval <= 0 {
		w.PromoteInterval = 5 * time.Second
	}

	go w.runPromoter(ctx)

	for i := 0; i < w.Workers; i++ {
		go w.runConsumer(ctx, i)
	}

	<-ctx.Done()
	return nil
}

// runPromoter moves due delayed jobs (scheduled sends, retries) onto the
// ready list.
func (w *Sender) runPromoter(ctx context.Context) {
	tick := time.NewTicker(w.PromoteInterval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			n, err := w.Queue.PromoteDue(ctx, time.Now())
			if err != nil {
				if ctx.Err() == nil {
					log.Printf("[sender] promote err: %v", err)
				}
				continue
			}
			if n > 0 {
				log.Printf("[sender] promoted %d delayed jobs", n)
			}
		}
	}
}

func (w *Sender) runConsumer(ctx context.Context, id int) {
	for {
		if ctx.Err() != nil {
			return
		}

		job, err := w.Queue.Dequeue(ctx, w.PollWait)
		if errors.Is(err, queue.ErrEmpty) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("[sender:%d] dequeue err: %v", id, err)
			time.Sleep(200 * time.Millisecond)
			continue
		}

		w.processOne(ctx, id, job)
	}
}

// processOne claims and dispatches a single campaign.
func (w *Sender) processOne(ctx context.Context, id int, job model.SendJob) {
	if job.CampaignID == "" {
		log.Printf("[sender:%d] job missing campaign id", id) // poison, drop
		return
	}

	claimed, err := w.Campaigns.Transition(ctx, job.CampaignID,
		[]model.CampaignStatus{model.CampaignDraft, model.CampaignScheduled},
		model.CampaignSending,
	)
	if err != nil {
		log.Printf("[sender:%d] claim err campaign=%s: %v", id, job.CampaignID, err)
		w.retry(ctx, job)
		return
	}
	if !claimed {
		// Another worker owns it, or it is already sent/cancelled.
		log.Printf("[sender:%d] campaign=%s not claimable, dropping job", id, job.CampaignID)
		metrics.CampaignsDispatched.WithLabelValues("invalid").Inc()
		return
	}

	summary, err := w.Dispatch.Dispatch(ctx, job.CampaignID)
	if err != nil {
		if errors.Is(err, dispatcher.ErrNotFound) || errors.Is(err, dispatcher.ErrInvalidState) {
			log.Printf("[sender:%d] campaign=%s unretryable: %v", id, job.CampaignID, err)
			metrics.CampaignsDispatched.WithLabelValues("invalid").Inc()
			return
		}
		log.Printf("[sender:%d] dispatch err campaign=%s attempt=%d: %v", id, job.CampaignID, job.Attempt+1, err)
		metrics.CampaignsDispatched.WithLabelValues("failed").Inc()
		w.retry(ctx, job)
		return
	}

	metrics.CampaignsDispatched.WithLabelValues("sent").Inc()
	log.Printf("[sender:%d] campaign=%s sent=%d errors=%d of %d",
		id, summary.CampaignID, summary.TotalSent, summary.TotalErrors, summary.TotalSubscribers)
}

// retry re-enqueues the job with a delay unless attempts are exhausted.
// The dispatcher already reverted the campaign to draft, so the next
// attempt can claim it again.
func (w *Sender) retry(ctx context.Context, job model.SendJob) {
	job.Attempt++
	if job.Attempt >= w.MaxAttempts {
		log.Printf("[sender] campaign=%s gave up after %d attempts", job.CampaignID, job.Attempt)
		return
	}
	if err := w.Queue.EnqueueAt(ctx, job, time.Now().Add(w.RetryDelay)); err != nil {
		log.Printf("[sender] re-enqueue err campaign=%s: %v", job.CampaignID, err)
	}
}
