// Package queue is a small Redis-backed job queue: a ready list consumed
// with BRPOP plus a delayed zset promoted onto the list when jobs come due.
// At-least-once; the consumer re-enqueues on handler failure up to an
// attempt cap.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sendstuff/campaign-gateway/internal/model"
)

// ErrEmpty : no job became available within the poll window.
var ErrEmpty = errors.New("queue empty")

// promoteScript atomically moves due members from the delayed zset onto
// the ready list.
var promoteScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', ARGV[1], 'LIMIT', 0, 100)
for i, job in ipairs(due) do
  redis.call('LPUSH', KEYS[1], job)
  redis.call('ZREM', KEYS[2], job)
end
return #due
`)

type Queue struct {
	rdb  *redis.Client
	name string
}

func New(rdb *redis.Client, name string) *Queue {
	return &Queue{rdb: rdb, name: name}
}

func (q *Queue) readyKey() string   { return "queue:{" + q.name + "}:ready" }
func (q *Queue) delayedKey() string { return "queue:{" + q.name + "}:delayed" }

// Enqueue pushes the job onto the ready list.
func (q *Queue) Enqueue(ctx context.Context, job model.SendJob) error {
	b, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	return q.rdb.LPush(ctx, q.readyKey(), b).Err()
}

// EnqueueAt parks the job in the delayed zset until `at`; PromoteDue moves
// it onto the ready list once due.
func (q *Queue) EnqueueAt(ctx context.Context, job model.SendJob, at time.Time) error {
	b, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	return q.rdb.ZAdd(ctx, q.delayedKey(), redis.Z{
		Score:  float64(at.UnixMilli()),
		Member: b,
	}).Err()
}

// Dequeue blocks up to `wait` for the next ready job. Returns ErrEmpty
// when the window elapses with nothing to do.
func (q *Queue) Dequeue(ctx context.Context, wait time.Duration) (model.SendJob, error) {
	var job model.SendJob

	res, err := q.rdb.BRPop(ctx, wait, q.readyKey()).Result()
	if errors.Is(err, redis.Nil) {
		return job, ErrEmpty
	}
	if err != nil {
		return job, err
	}
	// BRPOP returns [key, value]
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return job, fmt.Errorf("unmarshal job: %w", err)
	}
	return job, nil
}

// PromoteDue moves jobs whose due time has passed from the delayed zset to
// the ready list. Returns the number promoted.
func (q *Queue) PromoteDue(ctx context.Context, now time.Time) (int, error) {
	n, err := promoteScript.Run(ctx, q.rdb,
		[]string{q.readyKey(), q.delayedKey()},
		now.UnixMilli(),
	).Int()
	if err != nil {
		return 0, fmt.Errorf("promote due: %w", err)
	}
	return n, nil
}

// Depth reports ready and delayed counts, for health checks and logs.
func (q *Queue) Depth(ctx context.Context) (ready, delayed int64, err error) {
	ready, err = q.rdb.LLen(ctx, q.readyKey()).Result()
	if err != nil {
		return 0, 0, err
	}
	delayed, err = q.rdb.ZCard(ctx, q.delayedKey()).Result()
	if err != nil {
		return 0, 0, err
	}
	return ready, delayed, nil
}
