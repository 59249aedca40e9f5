// SPDX-FileCopyrightText: 2026 Framelift contributors.
//
// SPDX-License-Identifier: Apache-2.0

// Package provider contains the shared HTTP client used by processors that
// call external AI services. It retries transient failures with exponential
// backoff and trips a per-host circuit breaker on persistent ones.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-logr/logr"
	"github.com/sony/gobreaker"
)

// RetryPolicy configures the transient-failure retry of provider calls.
type RetryPolicy struct {
	// Attempts is the total number of tries per call.
	Attempts int
	// BaseDelay is the initial backoff interval.
	BaseDelay time.Duration
}

// DefaultRetryPolicy is used when the job config does not override it.
var DefaultRetryPolicy = RetryPolicy{Attempts: 3, BaseDelay: time.Second}

// Client is a retrying HTTP client with per-host circuit breakers. It is
// safe for concurrent use and shared across jobs.
type Client struct {
	http *http.Client
	log  logr.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewClient creates a provider client with the given per-request timeout.
func NewClient(timeout time.Duration, log logr.Logger) *Client {
	return &Client{
		http:     &http.Client{Timeout: timeout},
		log:      log,
		breakers: map[string]*gobreaker.CircuitBreaker{},
	}
}

// transientError marks a failure worth retrying.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// PostJSON sends a JSON request and decodes a JSON response, retrying
// transient failures per the policy. A nil out discards the response body.
func (c *Client) PostJSON(ctx context.Context, rawURL string, in, out interface{}, policy RetryPolicy) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("unable to marshal provider request: %w", err)
	}

	body, err := c.do(ctx, http.MethodPost, rawURL, payload, "application/json", policy)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("unable to decode provider response: %w", err)
	}
	return nil
}

// PostBinary sends a binary request body and returns the raw response.
func (c *Client) PostBinary(ctx context.Context, rawURL string, data []byte, contentType string, policy RetryPolicy) ([]byte, error) {
	return c.do(ctx, http.MethodPost, rawURL, data, contentType, policy)
}

func (c *Client) do(ctx context.Context, method, rawURL string, payload []byte, contentType string, policy RetryPolicy) ([]byte, error) {
	if policy.Attempts < 1 {
		policy = DefaultRetryPolicy
	}

	breaker, err := c.breakerFor(rawURL)
	if err != nil {
		return nil, err
	}

	var body []byte
	operation := func() error {
		result, err := breaker.Execute(func() (interface{}, error) {
			return c.roundTrip(ctx, method, rawURL, payload, contentType)
		})
		if err != nil {
			if _, transient := err.(*transientError); transient {
				return err
			}
			return backoff.Permanent(err)
		}
		body = result.([]byte)
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = policy.BaseDelay
	b.MaxElapsedTime = 0
	retries := uint64(policy.Attempts - 1)

	if err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(b, retries), ctx)); err != nil {
		return nil, fmt.Errorf("provider call to %s failed: %w", rawURL, err)
	}
	return body, nil
}

func (c *Client) roundTrip(ctx context.Context, method, rawURL string, payload []byte, contentType string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &transientError{err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &transientError{err: err}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, &transientError{err: fmt.Errorf("provider returned status %d", resp.StatusCode)}
	default:
		return nil, fmt.Errorf("provider returned status %d", resp.StatusCode)
	}
}

func (c *Client) breakerFor(rawURL string) (*gobreaker.CircuitBreaker, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid provider url %q: %w", rawURL, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	breaker, ok := c.breakers[u.Host]
	if !ok {
		host := u.Host
		breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name: host,
			OnStateChange: func(name string, from, to gobreaker.State) {
				c.log.Info("provider circuit breaker state changed", "host", name, "from", from.String(), "to", to.String())
			},
		})
		c.breakers[u.Host] = breaker
	}
	return breaker, nil
}
