// SPDX-FileCopyrightText: 2026 Framelift contributors.
//
// SPDX-License-Identifier: Apache-2.0

// Package parallel provides the concurrency-bounded, order-preserving fan-out
// primitive used by frame-level processors and the upload step. Per-item
// failures are reified into the result slice instead of aborting the batch.
package parallel

import (
	"context"
	"fmt"
	"math"
	"sync"
)

// MaxConcurrency is the system-wide cap on intra-step fan-out.
const MaxConcurrency = 50

// Kind identifies the work type a concurrency default applies to.
type Kind string

const (
	KindDownload Kind = "download"
	KindScore    Kind = "score"
	KindClassify Kind = "classify"
	KindBGRemove Kind = "bg-remove"
	KindGenerate Kind = "generate"
	KindUpload   Kind = "upload"
)

var kindDefaults = map[Kind]int{
	KindDownload: 4,
	KindScore:    8,
	KindClassify: 8,
	KindBGRemove: 5,
	KindGenerate: 3,
	KindUpload:   10,
}

const fallbackConcurrency = 5

// Concurrency resolves the effective fan-out width for a work kind. The
// per-kind default applies on missing, non-numeric, or non-positive option
// values; fractional values floor; the result is clamped to
// [1, MaxConcurrency].
func Concurrency(kind Kind, opts map[string]interface{}) int {
	def, ok := kindDefaults[kind]
	if !ok {
		def = fallbackConcurrency
	}

	c := def
	if opts != nil {
		if raw, ok := opts["concurrency"]; ok {
			if v, ok := toFloat(raw); ok && v >= 1 {
				c = int(math.Floor(v))
			}
		}
	}

	if c < 1 {
		c = 1
	}
	if c > MaxConcurrency {
		c = MaxConcurrency
	}
	return c
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// Error tags a failed item of a parallel batch with its input index.
type Error struct {
	Index int
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("item %d: %s", e.Index, e.Err.Error())
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Outcome is the per-item result of a parallel batch, at the item's input
// index.
type Outcome[R any] struct {
	Index int
	Value R
	Err   *Error
}

// Failed reports whether the item's invocation returned an error.
func (o Outcome[R]) Failed() bool {
	return o.Err != nil
}

// Map invokes fn for every item with at most concurrency in-flight
// invocations. Results preserve input order by index; an error returned by
// fn becomes a tagged Error at its slot rather than aborting the batch.
// Items not started before ctx is cancelled fail with the context error.
func Map[T any, R any](ctx context.Context, items []T, concurrency int, fn func(ctx context.Context, item T) (R, error)) []Outcome[R] {
	if concurrency < 1 {
		concurrency = 1
	}
	if concurrency > MaxConcurrency {
		concurrency = MaxConcurrency
	}

	outcomes := make([]Outcome[R], len(items))
	sem := make(chan struct{}, concurrency)
	wg := sync.WaitGroup{}

	for i := range items {
		i := i

		if err := ctx.Err(); err != nil {
			outcomes[i] = Outcome[R]{Index: i, Err: &Error{Index: i, Err: err}}
			continue
		}

		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			value, err := fn(ctx, items[i])
			if err != nil {
				outcomes[i] = Outcome[R]{Index: i, Err: &Error{Index: i, Err: err}}
				return
			}
			outcomes[i] = Outcome[R]{Index: i, Value: value}
		}()
	}

	wg.Wait()
	return outcomes
}

// Failures extracts all tagged errors of a batch.
func Failures[R any](outcomes []Outcome[R]) []*Error {
	errs := []*Error{}
	for _, o := range outcomes {
		if o.Failed() {
			errs = append(errs, o.Err)
		}
	}
	return errs
}
