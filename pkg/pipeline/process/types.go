// SPDX-FileCopyrightText: 2026 Framelift contributors.
//
// SPDX-License-Identifier: Apache-2.0

// Package process defines the processor contract of the pipeline core: the
// closed IO tag vocabulary, the data envelope, the per-job context, and the
// process-wide processor registry.
package process

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/mandelsoft/vfs/pkg/vfs"

	"github.com/framelift/framelift/pkg/jobs"
	"github.com/framelift/framelift/pkg/pipeline/timing"
	"github.com/framelift/framelift/pkg/pipeline/usage"
)

// Options is the free-form option bag of one stack step.
type Options map[string]interface{}

// String returns a string option value.
func (o Options) String(key string) (string, bool) {
	v, ok := o[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Float returns a numeric option value.
func (o Options) Float(key string) (float64, bool) {
	switch v := o[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// Bool returns a boolean option value.
func (o Options) Bool(key string) (bool, bool) {
	v, ok := o[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// Result is the outcome of one processor execution. On success, Data carries
// the additions and replacements to merge into the envelope. On failure,
// Error carries the message that fails the stack.
type Result struct {
	Success bool
	Data    *Data
	Error   string
}

// Succeed builds a successful result with the given envelope delta.
func Succeed(delta *Data) Result {
	return Result{Success: true, Data: delta}
}

// Fail builds a failed result.
func Fail(format string, args ...interface{}) Result {
	return Result{Success: false, Error: fmt.Sprintf(format, args...)}
}

// ProgressUpdate is one progress report emitted by a processor.
type ProgressUpdate struct {
	Status     jobs.Status `json:"status"`
	Percentage int         `json:"percentage"`
	Message    string      `json:"message,omitempty"`
	Step       int         `json:"step,omitempty"`
	TotalSteps int         `json:"totalSteps,omitempty"`
}

// ProgressFunc receives progress updates during a pipeline run.
type ProgressFunc func(ProgressUpdate)

// WorkDirs is the ephemeral per-job directory tree. It is owned by the
// pipeline service and removed on all exit paths unless debug mode is set.
type WorkDirs struct {
	Root       string
	Video      string
	Frames     string
	Candidates string
	Extracted  string
	Final      string
	Commercial string
}

// All returns the six subdirectories.
func (w *WorkDirs) All() []string {
	return []string{w.Video, w.Frames, w.Candidates, w.Extracted, w.Final, w.Commercial}
}

// Context is the per-job processor context. It is constructed once by the
// pipeline service and shared by reference with every processor of the run.
type Context struct {
	Job    *jobs.Job
	JobID  string
	Config *jobs.Config

	WorkDirs *WorkDirs
	FS       vfs.FileSystem

	Timer *timing.Timer
	Usage *usage.Tracker
	Log   logr.Logger

	// OnProgress receives progress updates; may be nil.
	OnProgress ProgressFunc
	// OnStatus advances the job row status when a processor begins; may be
	// nil (e.g. in tests without a job row).
	OnStatus func(ctx context.Context, status jobs.Status)
}

// ReportProgress emits a progress update if a callback is attached.
func (c *Context) ReportProgress(update ProgressUpdate) {
	if c.OnProgress != nil {
		c.OnProgress(update)
	}
}

// AdvanceStatus advances the job row status if a writer is attached.
// Terminal statuses are never advanced here; they are written by the
// completion and failure paths together with the result or error.
func (c *Context) AdvanceStatus(ctx context.Context, status jobs.Status) {
	if c.OnStatus != nil && !status.IsTerminal() {
		c.OnStatus(ctx, status)
	}
}

// Processor is the unit of pipeline work. Implementations must be stateless
// across invocations; all per-job state lives in the context and envelope.
type Processor interface {
	// ID is the stable processor identifier used by stacks, swaps, and
	// inserts.
	ID() string
	// DisplayName is the human readable processor name.
	DisplayName() string
	// StatusKey is the job status advanced into the job row when the
	// processor begins.
	StatusKey() jobs.Status
	// IO declares the required and produced capability tags.
	IO() IODeclaration
	// Process executes the processor against the envelope and returns the
	// delta to merge, or a failure that aborts the stack.
	Process(ctx context.Context, pctx *Context, data *Data, opts Options) Result
}
