// SPDX-FileCopyrightText: 2026 Framelift contributors.
//
// SPDX-License-Identifier: Apache-2.0

// Package queue implements the redis-backed job queue and the worker pool
// that drains it. Jobs are deduplicated by id, retried with exponential
// backoff, and their terminal queue records are trimmed by age and count.
package queue

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-logr/logr"
	"github.com/redis/go-redis/v9"
)

// Queue job states.
const (
	StatePending   = "pending"
	StateActive    = "active"
	StateDelayed   = "delayed"
	StateCompleted = "completed"
	StateFailed    = "failed"
)

// DefaultPrefix namespaces all queue keys.
const DefaultPrefix = "framelift:queue"

// Options configures the queue.
type Options struct {
	// Prefix namespaces the redis keys. Defaults to DefaultPrefix.
	Prefix string
	// Attempts is the maximum number of delivery attempts per job.
	Attempts int
	// BackoffBase is the base delay of the exponential retry backoff.
	BackoffBase time.Duration
	// LeaseTimeout is how long a dequeued job may stay active before the
	// janitor treats its worker as lost and re-delivers the job. It must
	// exceed the job timeout.
	LeaseTimeout time.Duration

	// Retention caps for terminal queue records.
	CompletedAge   time.Duration
	FailedAge      time.Duration
	CompletedCount int64
	FailedCount    int64
}

// ApplyDefaults fills unset options.
func (o *Options) ApplyDefaults() {
	if o.Prefix == "" {
		o.Prefix = DefaultPrefix
	}
	if o.Attempts == 0 {
		o.Attempts = 3
	}
	if o.BackoffBase == 0 {
		o.BackoffBase = 5 * time.Second
	}
	if o.LeaseTimeout == 0 {
		o.LeaseTimeout = 15 * time.Minute
	}
	if o.CompletedAge == 0 {
		o.CompletedAge = 24 * time.Hour
	}
	if o.FailedAge == 0 {
		o.FailedAge = 7 * 24 * time.Hour
	}
	if o.CompletedCount == 0 {
		o.CompletedCount = 100
	}
	if o.FailedCount == 0 {
		o.FailedCount = 1000
	}
}

// Task is one dequeued queue job.
type Task struct {
	JobID    string
	Attempts int
	StackID  string
}

// Queue is the redis-backed job queue.
type Queue struct {
	rdb  redis.UniversalClient
	opts Options
	log  logr.Logger

	clock func() time.Time
}

// New creates a queue on the given redis client.
func New(rdb redis.UniversalClient, opts Options, log logr.Logger) *Queue {
	opts.ApplyDefaults()
	return &Queue{rdb: rdb, opts: opts, log: log, clock: time.Now}
}

func (q *Queue) key(parts ...string) string {
	key := q.opts.Prefix
	for _, p := range parts {
		key += ":" + p
	}
	return key
}

func (q *Queue) pendingKey() string         { return q.key("pending") }
func (q *Queue) activeKey() string          { return q.key("active") }
func (q *Queue) delayedKey() string         { return q.key("delayed") }
func (q *Queue) idsKey() string             { return q.key("ids") }
func (q *Queue) jobKey(id string) string    { return q.key("jobs", id) }
func (q *Queue) doneKey(state string) string { return q.key(state) }

// Enqueue adds a job to the queue. Enqueueing an id that is already queued,
// running, or terminal is a no-op.
func (q *Queue) Enqueue(ctx context.Context, jobID, stackID string) error {
	added, err := q.rdb.SAdd(ctx, q.idsKey(), jobID).Result()
	if err != nil {
		return fmt.Errorf("unable to enqueue job %s: %w", jobID, err)
	}
	if added == 0 {
		q.log.V(5).Info("job already queued, skipping", "job-id", jobID)
		return nil
	}

	fields := map[string]interface{}{
		"state":       StatePending,
		"attempts":    0,
		"percentage":  0,
		"enqueued-at": q.clock().Unix(),
	}
	if stackID != "" {
		fields["stack-id"] = stackID
	}
	pipe := q.rdb.TxPipeline()
	pipe.HSet(ctx, q.jobKey(jobID), fields)
	pipe.LPush(ctx, q.pendingKey(), jobID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("unable to enqueue job %s: %w", jobID, err)
	}
	return nil
}

// Dequeue blocks up to timeout for the next pending job and moves it to the
// active list. It returns nil when the timeout elapses without work.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*Task, error) {
	jobID, err := q.rdb.BLMove(ctx, q.pendingKey(), q.activeKey(), "RIGHT", "LEFT", timeout).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unable to dequeue: %w", err)
	}

	pipe := q.rdb.TxPipeline()
	pipe.HSet(ctx, q.jobKey(jobID), "state", StateActive, "lease-until", q.clock().Add(q.opts.LeaseTimeout).Unix())
	attempts := pipe.HIncrBy(ctx, q.jobKey(jobID), "attempts", 1)
	stackID := pipe.HGet(ctx, q.jobKey(jobID), "stack-id")
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("unable to activate job %s: %w", jobID, err)
	}

	return &Task{
		JobID:    jobID,
		Attempts: int(attempts.Val()),
		StackID:  stackID.Val(),
	}, nil
}

// Complete marks a queue job completed and applies the retention caps.
func (q *Queue) Complete(ctx context.Context, jobID string) error {
	return q.finish(ctx, jobID, StateCompleted)
}

// Retry schedules another delivery of a failed job with exponential backoff,
// or marks it failed once the attempts are exhausted. It reports whether a
// retry was scheduled.
func (q *Queue) Retry(ctx context.Context, task *Task, reason string) (bool, error) {
	if task.Attempts >= q.opts.Attempts {
		if err := q.finish(ctx, task.JobID, StateFailed); err != nil {
			return false, err
		}
		return false, nil
	}

	delay := q.opts.BackoffBase * (1 << (task.Attempts - 1))
	readyAt := q.clock().Add(delay)

	pipe := q.rdb.TxPipeline()
	pipe.LRem(ctx, q.activeKey(), 1, task.JobID)
	pipe.HSet(ctx, q.jobKey(task.JobID), "state", StateDelayed, "error", reason)
	pipe.ZAdd(ctx, q.delayedKey(), redis.Z{Score: float64(readyAt.Unix()), Member: task.JobID})
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("unable to delay job %s: %w", task.JobID, err)
	}
	q.log.V(5).Info("job scheduled for retry", "job-id", task.JobID, "attempt", task.Attempts, "delay", delay.String())
	return true, nil
}

// Fail marks a queue job failed without further retries.
func (q *Queue) Fail(ctx context.Context, jobID string) error {
	return q.finish(ctx, jobID, StateFailed)
}

func (q *Queue) finish(ctx context.Context, jobID, state string) error {
	now := q.clock()
	pipe := q.rdb.TxPipeline()
	pipe.LRem(ctx, q.activeKey(), 1, jobID)
	pipe.HSet(ctx, q.jobKey(jobID), "state", state, "finished-at", now.Unix())
	pipe.ZAdd(ctx, q.doneKey(state), redis.Z{Score: float64(now.Unix()), Member: jobID})
	pipe.SRem(ctx, q.idsKey(), jobID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("unable to finish job %s: %w", jobID, err)
	}
	return q.trim(ctx, state)
}

// trim applies the age and count retention caps of one terminal state.
func (q *Queue) trim(ctx context.Context, state string) error {
	age := q.opts.CompletedAge
	count := q.opts.CompletedCount
	if state == StateFailed {
		age = q.opts.FailedAge
		count = q.opts.FailedCount
	}
	key := q.doneKey(state)

	cutoff := strconv.FormatInt(q.clock().Add(-age).Unix(), 10)
	expired, err := q.rdb.ZRangeByScore(ctx, key, &redis.ZRangeBy{Min: "-inf", Max: cutoff}).Result()
	if err != nil {
		return fmt.Errorf("unable to trim %s jobs: %w", state, err)
	}

	total, err := q.rdb.ZCard(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("unable to trim %s jobs: %w", state, err)
	}
	if over := total - int64(len(expired)) - count; over > 0 {
		overflow, err := q.rdb.ZRange(ctx, key, int64(len(expired)), int64(len(expired))+over-1).Result()
		if err != nil {
			return fmt.Errorf("unable to trim %s jobs: %w", state, err)
		}
		expired = append(expired, overflow...)
	}
	if len(expired) == 0 {
		return nil
	}

	members := make([]interface{}, len(expired))
	pipe := q.rdb.TxPipeline()
	for i, id := range expired {
		members[i] = id
		pipe.Del(ctx, q.jobKey(id))
	}
	pipe.ZRem(ctx, key, members...)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("unable to trim %s jobs: %w", state, err)
	}
	return nil
}

// PromoteDelayed moves delayed jobs whose backoff has elapsed back into the
// pending list. It returns the number of promoted jobs.
func (q *Queue) PromoteDelayed(ctx context.Context) (int, error) {
	now := strconv.FormatInt(q.clock().Unix(), 10)
	ready, err := q.rdb.ZRangeByScore(ctx, q.delayedKey(), &redis.ZRangeBy{Min: "-inf", Max: now}).Result()
	if err != nil {
		return 0, fmt.Errorf("unable to promote delayed jobs: %w", err)
	}
	for _, jobID := range ready {
		pipe := q.rdb.TxPipeline()
		pipe.ZRem(ctx, q.delayedKey(), jobID)
		pipe.HSet(ctx, q.jobKey(jobID), "state", StatePending)
		pipe.LPush(ctx, q.pendingKey(), jobID)
		if _, err := pipe.Exec(ctx); err != nil {
			return 0, fmt.Errorf("unable to promote job %s: %w", jobID, err)
		}
	}
	return len(ready), nil
}

// RecoverStale re-delivers active jobs whose lease has expired, which
// happens when a worker dies between dequeue and completion. Expired jobs
// go back through the regular retry path so the attempts cap still holds.
// It returns the number of jobs taken off the active list.
func (q *Queue) RecoverStale(ctx context.Context) (int, error) {
	ids, err := q.rdb.LRange(ctx, q.activeKey(), 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("unable to scan active jobs: %w", err)
	}

	now := q.clock().Unix()
	recovered := 0
	for _, jobID := range ids {
		lease, err := q.rdb.HGet(ctx, q.jobKey(jobID), "lease-until").Result()
		if err != nil && err != redis.Nil {
			return recovered, fmt.Errorf("unable to read lease of job %s: %w", jobID, err)
		}
		// A missing or unreadable lease counts as expired.
		if until, parseErr := strconv.ParseInt(lease, 10, 64); parseErr == nil && until > now {
			continue
		}

		attempts, err := q.rdb.HGet(ctx, q.jobKey(jobID), "attempts").Int()
		if err != nil && err != redis.Nil {
			return recovered, fmt.Errorf("unable to read attempts of job %s: %w", jobID, err)
		}
		if attempts < 1 {
			attempts = 1
		}

		q.log.Info("recovering stale active job", "job-id", jobID, "attempt", attempts)
		if _, err := q.Retry(ctx, &Task{JobID: jobID, Attempts: attempts}, "worker lost"); err != nil {
			return recovered, err
		}
		recovered++
	}
	return recovered, nil
}

// SetPercentage records the job's progress percentage on its queue record.
func (q *Queue) SetPercentage(ctx context.Context, jobID string, percentage int) error {
	if err := q.rdb.HSet(ctx, q.jobKey(jobID), "percentage", percentage).Err(); err != nil {
		return fmt.Errorf("unable to update percentage of job %s: %w", jobID, err)
	}
	return nil
}

// Percentage reads the job's recorded progress percentage.
func (q *Queue) Percentage(ctx context.Context, jobID string) (int, error) {
	raw, err := q.rdb.HGet(ctx, q.jobKey(jobID), "percentage").Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("unable to read percentage of job %s: %w", jobID, err)
	}
	return strconv.Atoi(raw)
}

// Depths returns the current pending, active, and delayed queue depths.
func (q *Queue) Depths(ctx context.Context) (pending, active, delayed int64, err error) {
	if pending, err = q.rdb.LLen(ctx, q.pendingKey()).Result(); err != nil {
		return 0, 0, 0, fmt.Errorf("unable to read queue depth: %w", err)
	}
	if active, err = q.rdb.LLen(ctx, q.activeKey()).Result(); err != nil {
		return 0, 0, 0, fmt.Errorf("unable to read queue depth: %w", err)
	}
	if delayed, err = q.rdb.ZCard(ctx, q.delayedKey()).Result(); err != nil {
		return 0, 0, 0, fmt.Errorf("unable to read queue depth: %w", err)
	}
	return pending, active, delayed, nil
}

// Ping verifies the redis connection.
func (q *Queue) Ping(ctx context.Context) error {
	return q.rdb.Ping(ctx).Err()
}
