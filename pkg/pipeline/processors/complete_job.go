// SPDX-FileCopyrightText: 2026 Framelift contributors.
//
// SPDX-License-Identifier: Apache-2.0

package processors

import (
	"context"
	"errors"

	"github.com/framelift/framelift/pkg/jobs"
	"github.com/framelift/framelift/pkg/pipeline/process"
)

// CompleteJob is the terminal processor: it derives the job result from the
// envelope, writes it into the metadata, and marks the job row completed.
// A missing job row is tolerated so ad-hoc runs without persistence work.
type CompleteJob struct {
	base
	store jobs.Store
}

// NewCompleteJob creates the complete-job processor.
func NewCompleteJob(store jobs.Store) *CompleteJob {
	return &CompleteJob{
		base: base{
			id:          "complete-job",
			displayName: "Complete Job",
			statusKey:   jobs.StatusCompleted,
			io:          process.IODeclaration{},
		},
		store: store,
	}
}

func (p *CompleteJob) Process(ctx context.Context, pctx *process.Context, data *process.Data, opts process.Options) process.Result {
	result := BuildResult(data)

	if p.store != nil {
		if err := p.store.MarkCompleted(ctx, pctx.JobID, result); err != nil {
			// the pipeline work itself succeeded; never fail the run over
			// bookkeeping
			if errors.Is(err, jobs.ErrNotFound) {
				pctx.Log.V(5).Info("no job row to complete", "job-id", pctx.JobID)
			} else {
				pctx.Log.Error(err, "unable to mark job completed", "job-id", pctx.JobID)
			}
		}
	}

	pctx.ReportProgress(process.ProgressUpdate{
		Status:     jobs.StatusCompleted,
		Percentage: 100,
	})

	return process.Succeed(&process.Data{
		Metadata: map[string]interface{}{process.MetadataResult: result},
	})
}

// BuildResult derives the final job result from the envelope.
func BuildResult(data *process.Data) *jobs.Result {
	if data == nil {
		data = process.NewData()
	}
	result := &jobs.Result{
		FramesAnalyzed:   len(data.Frames),
		FinalFrames:      []string{},
		CommercialImages: map[string]map[string]string{},
	}

	variants := 0
	for _, f := range data.Frames {
		if f.BestPerSecond {
			variants++
		}
	}
	result.VariantsDiscovered = variants

	for _, f := range data.FinalFrames() {
		ref := f.RemoteURL
		if ref == "" {
			ref = f.ID
		}
		result.FinalFrames = append(result.FinalFrames, ref)
	}

	for _, ci := range data.CommercialImages {
		if result.CommercialImages[ci.FrameID] == nil {
			result.CommercialImages[ci.FrameID] = map[string]string{}
		}
		result.CommercialImages[ci.FrameID][ci.Version] = ci.RemoteURL
	}

	return result
}
