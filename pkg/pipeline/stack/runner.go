// SPDX-FileCopyrightText: 2026 Framelift contributors.
//
// SPDX-License-Identifier: Apache-2.0

package stack

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/framelift/framelift/pkg/jobs"
	"github.com/framelift/framelift/pkg/pipeline/process"
)

// ValidationResult is the outcome of validating a stack against an initial
// capability set.
type ValidationResult struct {
	Valid bool
	Error string
	// AvailableOutputs is the capability set after the last step, or after
	// the failing step's predecessors when invalid.
	AvailableOutputs process.IOSet
}

// StepError is the failure of one processor execution. Its message is the
// processor's error string, which is what gets recorded on the job row.
type StepError struct {
	ProcessorID string
	Index       int
	Message     string
}

func (e *StepError) Error() string {
	return e.Message
}

// Runner validates, configures, and executes stacks against a processor
// registry.
type Runner struct {
	registry *process.Registry
	log      logr.Logger
}

// NewRunner creates a stack runner.
func NewRunner(registry *process.Registry, log logr.Logger) *Runner {
	return &Runner{registry: registry, log: log}
}

// Validate walks the stack and maintains the capability set, failing on the
// first step whose required tags are not all present.
func (r *Runner) Validate(s *Stack, initial process.IOSet) ValidationResult {
	available := initial.Clone()
	for i, step := range s.Steps {
		p, err := r.registry.GetOrError(step.ProcessorID)
		if err != nil {
			return ValidationResult{
				Error:            fmt.Sprintf("step %d: %s", i, err.Error()),
				AvailableOutputs: available,
			}
		}
		for _, required := range p.IO().Requires {
			if !available.Has(required) {
				return ValidationResult{
					Error:            fmt.Sprintf("step %d (%s) requires '%s' which is not available", i, p.ID(), required),
					AvailableOutputs: available,
				}
			}
		}
		available.Add(p.IO().Produces...)
	}
	return ValidationResult{Valid: true, AvailableOutputs: available}
}

// RequiredInputs returns the minimal initial capability set the stack needs:
// the union of required tags not produced by earlier steps.
func (r *Runner) RequiredInputs(s *Stack) ([]process.IOType, error) {
	produced := process.IOSet{}
	required := process.IOSet{}
	for i, step := range s.Steps {
		p, err := r.registry.GetOrError(step.ProcessorID)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		for _, tag := range p.IO().Requires {
			if !produced.Has(tag) {
				required.Add(tag)
			}
		}
		produced.Add(p.IO().Produces...)
	}
	return required.List(), nil
}

// AvailableIO returns the capability set after executing the first
// upToIndex+1 steps, starting from the stack's required inputs.
func (r *Runner) AvailableIO(s *Stack, upToIndex int) (process.IOSet, error) {
	inputs, err := r.RequiredInputs(s)
	if err != nil {
		return nil, err
	}
	available := process.NewIOSet(inputs...)
	for i, step := range s.Steps {
		if i > upToIndex {
			break
		}
		p, err := r.registry.GetOrError(step.ProcessorID)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		available.Add(p.IO().Produces...)
	}
	return available, nil
}

// ValidateSwaps checks that every swap maps between registered processors
// with identical IO signatures.
func (r *Runner) ValidateSwaps(swaps map[string]string) error {
	for from, to := range swaps {
		if !r.registry.Has(from) {
			return fmt.Errorf("swap source %q is not registered", from)
		}
		if !r.registry.Has(to) {
			return fmt.Errorf("swap target %q is not registered", to)
		}
		if !r.registry.AreSwappable(from, to) {
			return fmt.Errorf("processors %q and %q are not swappable: their io signatures differ", from, to)
		}
	}
	return nil
}

// ApplyConfig returns a new step list with swaps applied first, then
// inserts, then per-step option overlays.
func (r *Runner) ApplyConfig(s *Stack, overlay *jobs.StackOverlay) (*Stack, error) {
	configured := s.Clone()
	if overlay == nil {
		return configured, nil
	}

	if err := r.ValidateSwaps(overlay.ProcessorSwaps); err != nil {
		return nil, err
	}
	for i, step := range configured.Steps {
		if to, ok := overlay.ProcessorSwaps[step.ProcessorID]; ok {
			configured.Steps[i].ProcessorID = to
		}
	}

	// Inserts are resolved by anchor id; multiple inserts after the same
	// anchor keep their insertion order.
	insertedAfter := map[string]int{}
	for _, insert := range overlay.InsertProcessors {
		if !r.registry.Has(insert.Processor) {
			return nil, fmt.Errorf("insert processor %q is not registered", insert.Processor)
		}
		anchor := insert.After
		before := false
		if anchor == "" {
			anchor = insert.Before
			before = true
		}
		if anchor == "" {
			return nil, fmt.Errorf("insert of processor %q names no anchor", insert.Processor)
		}

		anchorIndex := -1
		for i, step := range configured.Steps {
			if step.ProcessorID == anchor {
				anchorIndex = i
				break
			}
		}
		if anchorIndex < 0 {
			return nil, fmt.Errorf("insert anchor %q is not part of stack %q", anchor, s.ID)
		}

		position := anchorIndex
		if !before {
			position = anchorIndex + 1 + insertedAfter[anchor]
			insertedAfter[anchor]++
		}

		step := Step{ProcessorID: insert.Processor, Options: insert.Options}
		configured.Steps = append(configured.Steps[:position], append([]Step{step}, configured.Steps[position:]...)...)
	}

	for i, step := range configured.Steps {
		if opts, ok := overlay.ProcessorOptions[step.ProcessorID]; ok {
			configured.Steps[i].Options = mergeOptions(step.Options, opts)
		}
	}

	return configured, nil
}

func mergeOptions(base process.Options, overlay map[string]interface{}) process.Options {
	merged := cloneOptions(base)
	if merged == nil {
		merged = process.Options{}
	}
	for k, v := range overlay {
		overlayMap, overlayIsMap := v.(map[string]interface{})
		baseMap, baseIsMap := merged[k].(map[string]interface{})
		if overlayIsMap && baseIsMap {
			merged[k] = mergeNested(baseMap, overlayMap)
			continue
		}
		merged[k] = v
	}
	return merged
}

func mergeNested(base, overlay map[string]interface{}) map[string]interface{} {
	merged := cloneMap(base)
	for k, v := range overlay {
		overlayMap, overlayIsMap := v.(map[string]interface{})
		baseMap, baseIsMap := merged[k].(map[string]interface{})
		if overlayIsMap && baseIsMap {
			merged[k] = mergeNested(baseMap, overlayMap)
			continue
		}
		merged[k] = v
	}
	return merged
}

// Execute runs the stack against the context and initial envelope. The
// executed order is frozen on entry: configuration is applied first, then
// the configured stack is validated against the capability set inferred from
// the initial data, then the steps run strictly in order. The first failing
// step aborts the run.
func (r *Runner) Execute(ctx context.Context, s *Stack, pctx *process.Context, overlay *jobs.StackOverlay, initial *process.Data) (*process.Data, error) {
	configured, err := r.ApplyConfig(s, overlay)
	if err != nil {
		return nil, err
	}

	data := initial
	if data == nil {
		data = process.NewData()
	}
	if data.Metadata == nil {
		data.Metadata = map[string]interface{}{}
	}

	validation := r.Validate(configured, data.AvailableIO())
	if !validation.Valid {
		return data, fmt.Errorf("invalid stack %q: %s", configured.ID, validation.Error)
	}

	log := r.log.WithValues("stack-id", configured.ID, "job-id", pctx.JobID)
	totalSteps := len(configured.Steps)

	for i, step := range configured.Steps {
		p, err := r.registry.GetOrError(step.ProcessorID)
		if err != nil {
			return data, err
		}

		stepLog := log.WithValues("processor-id", p.ID(), "step", i)
		pctx.Timer.StartStep(p.ID())
		pctx.AdvanceStatus(ctx, p.StatusKey())

		stepLog.V(7).Info("starting processor")
		result := p.Process(ctx, pctx, data, step.Options)
		if !result.Success {
			pctx.Timer.EndStep()
			stepLog.Error(errors.New(result.Error), "processor failed")
			return data, &StepError{ProcessorID: p.ID(), Index: i, Message: result.Error}
		}
		stepLog.V(7).Info("processor finished successfully")

		data.Merge(result.Data)

		if band, ok := process.BandFor(p.ID()); ok {
			pctx.ReportProgress(process.ProgressUpdate{
				Status:     p.StatusKey(),
				Percentage: band.End,
				Step:       i + 1,
				TotalSteps: totalSteps,
			})
		}
	}

	pctx.Timer.EndStep()
	return data, nil
}
