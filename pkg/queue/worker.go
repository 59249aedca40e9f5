// SPDX-FileCopyrightText: 2026 Framelift contributors.
//
// SPDX-License-Identifier: Apache-2.0

package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/framelift/framelift/pkg/callback"
	"github.com/framelift/framelift/pkg/jobs"
	"github.com/framelift/framelift/pkg/pipeline"
	"github.com/framelift/framelift/pkg/pipeline/process"
)

const (
	// DefaultConcurrency is the default worker-pool size.
	DefaultConcurrency = 2
	// DefaultJobTimeout bounds one pipeline run.
	DefaultJobTimeout = 10 * time.Minute

	dequeueTimeout = 2 * time.Second
	janitorPeriod  = time.Second
)

// Pool drains the queue with a fixed number of workers. Cancelling the run
// context stops the pull loops; jobs already in flight drain to completion.
type Pool struct {
	Queue      *Queue
	Store      jobs.Store
	Service    *pipeline.Service
	Dispatcher *callback.Dispatcher

	Concurrency int
	JobTimeout  time.Duration

	Metrics *Metrics
	Log     logr.Logger
}

// Run starts the janitor and the workers and blocks until the context is
// cancelled and all in-flight jobs have drained.
func (p *Pool) Run(ctx context.Context) {
	concurrency := p.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.janitor(ctx)
	}()

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			log := p.Log.WithValues("worker", worker)
			for {
				if ctx.Err() != nil {
					return
				}
				task, err := p.Queue.Dequeue(ctx, dequeueTimeout)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					log.Error(err, "dequeue failed")
					continue
				}
				if task == nil {
					continue
				}
				p.process(task, log)
			}
		}(i)
	}

	wg.Wait()
}

// janitor promotes delayed jobs whose backoff elapsed, re-delivers active
// jobs abandoned by a dead worker, and refreshes the queue-depth gauges.
func (p *Pool) janitor(ctx context.Context) {
	ticker := time.NewTicker(janitorPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.Queue.PromoteDelayed(ctx); err != nil && ctx.Err() == nil {
				p.Log.Error(err, "unable to promote delayed jobs")
			}
			if _, err := p.Queue.RecoverStale(ctx); err != nil && ctx.Err() == nil {
				p.Log.Error(err, "unable to recover stale jobs")
			}
			if p.Metrics != nil {
				if pending, active, delayed, err := p.Queue.Depths(ctx); err == nil {
					p.Metrics.PendingDepth.Set(float64(pending))
					p.Metrics.ActiveDepth.Set(float64(active))
					p.Metrics.DelayedDepth.Set(float64(delayed))
				}
			}
		}
	}
}

// process runs one dequeued task end to end. It deliberately uses a fresh
// context so that shutdown drains in-flight jobs instead of aborting them.
func (p *Pool) process(task *Task, log logr.Logger) {
	log = log.WithValues("job-id", task.JobID, "attempt", task.Attempts)
	if p.Metrics != nil {
		p.Metrics.JobsStarted.Inc()
	}

	timeout := p.JobTimeout
	if timeout <= 0 {
		timeout = DefaultJobTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	job, err := p.Store.Get(ctx, task.JobID)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			log.Info("job row missing, dropping queue job")
			p.finishFailed(ctx, task.JobID, log)
			return
		}
		retried, retryErr := p.Queue.Retry(ctx, task, err.Error())
		if retryErr != nil {
			log.Error(retryErr, "unable to schedule retry")
			return
		}
		if retried {
			if p.Metrics != nil {
				p.Metrics.JobsRetried.Inc()
			}
			return
		}
		p.finishFailed(ctx, task.JobID, log)
		return
	}

	if job.Status.IsTerminal() {
		log.V(5).Info("job already terminal, skipping", "status", job.Status)
		if err := p.Queue.Complete(ctx, task.JobID); err != nil {
			log.Error(err, "unable to complete queue job")
		}
		return
	}

	if err := p.Store.MarkStarted(ctx, task.JobID); err != nil {
		log.Error(err, "unable to mark job started")
	}

	start := time.Now()
	result, err := p.Service.RunPipeline(ctx, job, pipeline.RunOptions{
		StackID:    task.StackID,
		OnProgress: p.progressFunc(ctx, task.JobID, log),
	})
	if p.Metrics != nil {
		p.Metrics.JobDuration.Observe(time.Since(start).Seconds())
	}

	// Bookkeeping after the run uses a fresh context so an expired job
	// timeout cannot block the terminal queue and row updates.
	doneCtx, doneCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer doneCancel()

	if err != nil {
		// The service has already recorded the failure; a timeout is
		// normalised into a stable error string.
		if ctx.Err() == context.DeadlineExceeded {
			if storeErr := p.Store.MarkFailed(doneCtx, task.JobID, "timeout"); storeErr != nil {
				log.Error(storeErr, "unable to record job timeout")
			}
		}
		log.Error(err, "pipeline run failed")
		p.finishFailed(doneCtx, task.JobID, log)
		return
	}

	if err := p.Queue.Complete(doneCtx, task.JobID); err != nil {
		log.Error(err, "unable to complete queue job")
	}
	if p.Metrics != nil {
		p.Metrics.JobsCompleted.Inc()
	}
	log.Info("job completed", "duration", time.Since(start).String())

	if job.CallbackURL != "" && p.Dispatcher != nil {
		// The dispatcher owns its per-attempt timeouts and overall retry
		// budget, so it is not bound to the bookkeeping context.
		p.Dispatcher.Dispatch(context.Background(), job.CallbackURL, task.JobID, jobs.StatusCompleted, result)
	}
}

func (p *Pool) finishFailed(ctx context.Context, jobID string, log logr.Logger) {
	if err := p.Queue.Fail(ctx, jobID); err != nil {
		log.Error(err, "unable to fail queue job")
	}
	if p.Metrics != nil {
		p.Metrics.JobsFailed.Inc()
	}
}

// progressFunc mirrors processor progress into the queue record and the job
// row snapshot.
func (p *Pool) progressFunc(ctx context.Context, jobID string, log logr.Logger) process.ProgressFunc {
	return func(update process.ProgressUpdate) {
		if err := p.Queue.SetPercentage(ctx, jobID, update.Percentage); err != nil {
			log.V(5).Info("unable to update queue percentage", "error", err.Error())
		}
		progress := jobs.Progress{
			Status:     update.Status,
			Percentage: update.Percentage,
			Message:    update.Message,
			Step:       update.Step,
			TotalSteps: update.TotalSteps,
		}
		if err := p.Store.UpdateProgress(ctx, jobID, progress); err != nil {
			log.V(5).Info("unable to update job progress", "error", err.Error())
		}
	}
}
