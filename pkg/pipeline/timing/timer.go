// SPDX-FileCopyrightText: 2026 Framelift contributors.
//
// SPDX-License-Identifier: Apache-2.0

// Package timing provides the hierarchical per-job pipeline timer: one
// active named step at a time, plus any number of concurrent labelled
// operations inside it.
package timing

import (
	"sort"
	"sync"
	"time"

	"github.com/go-logr/logr"
)

// DefaultSlowThreshold is the duration above which finished operations are
// logged at debug level.
const DefaultSlowThreshold = 3 * time.Second

// apiCallTypes are the operation types that are always logged when they
// finish, regardless of duration.
var apiCallTypes = map[string]struct{}{
	"api-call":       {},
	"provider-call":  {},
	"storage-upload": {},
}

type stepRecord struct {
	name     string
	start    time.Time
	duration time.Duration
}

type operationRecord struct {
	opType   string
	label    string
	step     string
	duration time.Duration
	metadata map[string]interface{}
}

// Timer records named steps and concurrent operations of one pipeline run.
// One timer exists per job; it is safe for concurrent use by fan-out work
// inside a step.
type Timer struct {
	mu            sync.Mutex
	log           logr.Logger
	jobID         string
	slowThreshold time.Duration

	current    *stepRecord
	steps      []*stepRecord
	operations []*operationRecord
}

// New creates a timer for one job.
func New(log logr.Logger, jobID string) *Timer {
	return &Timer{
		log:           log,
		jobID:         jobID,
		slowThreshold: DefaultSlowThreshold,
	}
}

// WithSlowThreshold overrides the slow-operation logging threshold.
func (t *Timer) WithSlowThreshold(d time.Duration) *Timer {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.slowThreshold = d
	return t
}

// StartStep opens a named pipeline step, closing the previous one if still
// active. At most one step is active at a time.
func (t *Timer) StartStep(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.endStepLocked()
	t.current = &stepRecord{name: name, start: time.Now()}
}

// EndStep closes the active step, if any.
func (t *Timer) EndStep() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.endStepLocked()
}

func (t *Timer) endStepLocked() {
	if t.current == nil {
		return
	}
	t.current.duration = time.Since(t.current.start)
	t.steps = append(t.steps, t.current)
	t.current = nil
}

// StartOperation opens a labelled operation of the given type and returns
// its done function. Metadata passed to done is attached to the record.
func (t *Timer) StartOperation(opType, label string) func(metadata map[string]interface{}) {
	start := time.Now()
	t.mu.Lock()
	step := ""
	if t.current != nil {
		step = t.current.name
	}
	t.mu.Unlock()

	return func(metadata map[string]interface{}) {
		rec := &operationRecord{
			opType:   opType,
			label:    label,
			step:     step,
			duration: time.Since(start),
			metadata: metadata,
		}
		t.mu.Lock()
		t.operations = append(t.operations, rec)
		slow := rec.duration >= t.slowThreshold
		t.mu.Unlock()

		if _, isAPICall := apiCallTypes[opType]; isAPICall {
			t.log.Info("operation finished", "job-id", t.jobID, "operation", opType, "label", label, "duration", rec.duration.String())
		} else if slow {
			t.log.V(5).Info("slow operation", "job-id", t.jobID, "operation", opType, "label", label, "duration", rec.duration.String())
		}
	}
}

// OperationStats aggregates all operations of one type.
type OperationStats struct {
	Type  string
	Count int
	Total time.Duration
	Avg   time.Duration
	Min   time.Duration
	Max   time.Duration
}

// StepStats is the total duration of one named step.
type StepStats struct {
	Name  string
	Total time.Duration
}

// Summary is an aggregated snapshot of the timer.
type Summary struct {
	Operations []OperationStats
	Steps      []StepStats
}

// Summary aggregates per-operation-type stats sorted by total time
// descending, plus per-step totals in execution order.
func (t *Timer) Summary() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()

	byType := map[string]*OperationStats{}
	typeOrder := []string{}
	for _, op := range t.operations {
		stats, ok := byType[op.opType]
		if !ok {
			stats = &OperationStats{Type: op.opType, Min: op.duration, Max: op.duration}
			byType[op.opType] = stats
			typeOrder = append(typeOrder, op.opType)
		}
		stats.Count++
		stats.Total += op.duration
		if op.duration < stats.Min {
			stats.Min = op.duration
		}
		if op.duration > stats.Max {
			stats.Max = op.duration
		}
	}

	summary := Summary{}
	for _, opType := range typeOrder {
		stats := byType[opType]
		stats.Avg = stats.Total / time.Duration(stats.Count)
		summary.Operations = append(summary.Operations, *stats)
	}
	sort.SliceStable(summary.Operations, func(i, j int) bool {
		return summary.Operations[i].Total > summary.Operations[j].Total
	})

	for _, s := range t.steps {
		summary.Steps = append(summary.Steps, StepStats{Name: s.name, Total: s.duration})
	}
	if t.current != nil {
		summary.Steps = append(summary.Steps, StepStats{Name: t.current.name, Total: time.Since(t.current.start)})
	}
	return summary
}

// LogSummary writes the aggregated summary to the timer's logger.
func (t *Timer) LogSummary() {
	summary := t.Summary()
	for _, s := range summary.Steps {
		t.log.V(2).Info("pipeline step finished", "job-id", t.jobID, "step", s.Name, "duration", s.Total.String())
	}
	for _, op := range summary.Operations {
		t.log.V(2).Info("operation summary", "job-id", t.jobID,
			"operation", op.Type, "count", op.Count,
			"total", op.Total.String(), "avg", op.Avg.String(),
			"min", op.Min.String(), "max", op.Max.String())
	}
}
