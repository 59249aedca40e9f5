// SPDX-FileCopyrightText: 2026 Framelift contributors.
//
// SPDX-License-Identifier: Apache-2.0

// Package callback delivers the final job result to the caller-supplied
// callback URL: best-effort, at most once per (job, final status), with
// per-attempt timeouts and capped exponential backoff.
package callback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/framelift/framelift/pkg/jobs"
)

const (
	// DefaultTimeout bounds one delivery attempt.
	DefaultTimeout = 30 * time.Second
	// DefaultMaxRetries is the number of delivery attempts.
	DefaultMaxRetries = 3
	// DefaultBackoffBase is the base delay between attempts.
	DefaultBackoffBase = time.Second
)

// Payload is the JSON body POSTed to the callback URL.
type Payload struct {
	JobID  string       `json:"jobId"`
	Status jobs.Status  `json:"status"`
	Result *jobs.Result `json:"result,omitempty"`
}

// Dispatcher delivers callbacks. Delivery failures are logged and never
// propagate into the job outcome.
type Dispatcher struct {
	Client      *http.Client
	Timeout     time.Duration
	MaxRetries  int
	BackoffBase time.Duration
	Log         logr.Logger

	mu        sync.Mutex
	delivered map[string]struct{}
}

// NewDispatcher creates a dispatcher with the given per-attempt timeout and
// retry budget. Zero values fall back to the defaults.
func NewDispatcher(timeout time.Duration, maxRetries int, log logr.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Dispatcher{
		Client:      http.DefaultClient,
		Timeout:     timeout,
		MaxRetries:  maxRetries,
		BackoffBase: DefaultBackoffBase,
		Log:         log,
		delivered:   map[string]struct{}{},
	}
}

// Dispatch POSTs {jobId, status, result} to the URL. Each (job, status)
// pair is delivered at most once per dispatcher lifetime; redeliveries are
// silently dropped.
func (d *Dispatcher) Dispatch(ctx context.Context, url, jobID string, status jobs.Status, result *jobs.Result) {
	key := jobID + "/" + string(status)
	d.mu.Lock()
	if _, done := d.delivered[key]; done {
		d.mu.Unlock()
		return
	}
	d.delivered[key] = struct{}{}
	d.mu.Unlock()

	log := d.Log.WithValues("job-id", jobID, "status", status)

	body, err := json.Marshal(Payload{JobID: jobID, Status: status, Result: result})
	if err != nil {
		log.Error(err, "unable to marshal callback payload")
		return
	}

	backoff := d.BackoffBase
	if backoff <= 0 {
		backoff = DefaultBackoffBase
	}

	for attempt := 1; attempt <= d.MaxRetries; attempt++ {
		err := d.post(ctx, url, body)
		if err == nil {
			log.V(5).Info("callback delivered", "attempt", attempt)
			return
		}
		log.Info("callback attempt failed", "attempt", attempt, "error", err.Error())

		if attempt == d.MaxRetries {
			break
		}
		delay := backoff * (1 << (attempt - 1))
		select {
		case <-ctx.Done():
			log.Info("callback delivery abandoned", "error", ctx.Err().Error())
			return
		case <-time.After(delay):
		}
	}
	log.Info("callback delivery failed, giving up", "attempts", d.MaxRetries)
}

func (d *Dispatcher) post(ctx context.Context, url string, body []byte) error {
	attemptCtx, cancel := context.WithTimeout(ctx, d.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("callback returned status %d", resp.StatusCode)
	}
	return nil
}
