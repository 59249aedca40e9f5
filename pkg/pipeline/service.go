// SPDX-FileCopyrightText: 2026 Framelift contributors.
//
// SPDX-License-Identifier: Apache-2.0

// Package pipeline contains the per-job pipeline service: it owns the work
// directory lifecycle, builds the processor context, executes the configured
// stack, and records the terminal outcome on the job row.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/go-logr/logr"
	"github.com/mandelsoft/vfs/pkg/vfs"

	"github.com/framelift/framelift/pkg/jobs"
	"github.com/framelift/framelift/pkg/pipeline/parallel"
	"github.com/framelift/framelift/pkg/pipeline/process"
	"github.com/framelift/framelift/pkg/pipeline/processors"
	"github.com/framelift/framelift/pkg/pipeline/stack"
	"github.com/framelift/framelift/pkg/pipeline/timing"
	"github.com/framelift/framelift/pkg/pipeline/usage"
	"github.com/framelift/framelift/pkg/storage"
)

// DefaultTempDirName is the namespace under the temp root holding the
// per-job work directories.
const DefaultTempDirName = "framelift"

// Service executes the processing pipeline of a single job.
type Service struct {
	Store     jobs.Store
	Blobs     storage.BlobStore
	Bucket    string
	Registry  *process.Registry
	Templates *stack.TemplateSet
	FS        vfs.FileSystem

	// TempRoot is the temp directory root, e.g. os.TempDir().
	TempRoot string
	// TempDirName namespaces the work directories under TempRoot.
	TempDirName string
	// Debug keeps the work directory on exit.
	Debug bool

	Log logr.Logger
}

// RunOptions configures a single pipeline run.
type RunOptions struct {
	// StackID pins the stack, overriding the job configuration and the
	// strategy default.
	StackID string
	// Overlay is an additional stack overlay applied on top of the job
	// configuration's overlay.
	Overlay *jobs.StackOverlay
	// OnProgress receives progress updates; may be nil.
	OnProgress process.ProgressFunc
	// InitialData seeds the envelope, e.g. with pre-resolved frames. The
	// job's video url is only injected when the seed lacks a source url.
	InitialData *process.Data
}

// RunPipeline executes the job's stack end to end and returns the final
// result. Failures are recorded on the job row before the error is
// returned.
func (s *Service) RunPipeline(ctx context.Context, job *jobs.Job, opts RunOptions) (*jobs.Result, error) {
	if job == nil {
		return nil, fmt.Errorf("no job given")
	}
	log := s.Log.WithValues("job-id", job.ID)

	cfg := job.Config
	if cfg == nil {
		cfg = &jobs.Config{}
		cfg.ApplyDefaults()
	}

	tmpl, err := s.resolveStack(opts.StackID, cfg)
	if err != nil {
		return nil, s.fail(ctx, job.ID, log, err)
	}
	overlay := jobs.MergeOverlays(cfg.Stack, opts.Overlay)

	dirs, err := s.createWorkDirs(ctx, job.ID)
	if err != nil {
		return nil, s.fail(ctx, job.ID, log, err)
	}
	defer s.cleanupWorkDirs(cfg, dirs, log)

	timer := timing.New(log, job.ID)
	tracker := usage.NewTracker()

	pctx := &process.Context{
		Job:        job,
		JobID:      job.ID,
		Config:     cfg,
		WorkDirs:   dirs,
		FS:         s.FS,
		Timer:      timer,
		Usage:      tracker,
		Log:        log,
		OnProgress: opts.OnProgress,
		OnStatus: func(ctx context.Context, status jobs.Status) {
			if err := s.Store.UpdateStatus(ctx, job.ID, status); err != nil {
				log.Error(err, "unable to advance job status", "status", status)
			}
		},
	}

	initial := opts.InitialData
	if initial == nil {
		initial = process.NewData()
	}
	if initial.Video == nil {
		initial.Video = &process.Video{}
	}
	if initial.Video.SourceURL == "" {
		initial.Video.SourceURL = job.VideoURL
	}

	runner := stack.NewRunner(s.Registry, log)
	data, err := runner.Execute(ctx, tmpl, pctx, overlay, initial)

	timer.LogSummary()
	if summary := tracker.Summary(); summary.Totals.TotalTokens > 0 {
		log.V(5).Info("token usage",
			"prompt-tokens", summary.Totals.PromptTokens,
			"candidates-tokens", summary.Totals.CandidatesTokens,
			"total-tokens", summary.Totals.TotalTokens)
	}

	if err != nil {
		return nil, s.fail(ctx, job.ID, log, err)
	}

	result := resultFrom(data)
	s.cleanupSourceBlob(ctx, job, log)

	return result, nil
}

// resolveStack picks the stack template: an explicit id wins, then the id
// pinned in the job configuration, then the strategy default.
func (s *Service) resolveStack(explicit string, cfg *jobs.Config) (*stack.Stack, error) {
	id := explicit
	if id == "" {
		id = cfg.StackID()
	}
	if id == "" {
		id = stack.DefaultStackFor(cfg.PipelineStrategy)
	}
	tmpl, ok := s.Templates.Get(id)
	if !ok {
		return nil, fmt.Errorf("unknown stack %q", id)
	}
	return tmpl, nil
}

// createWorkDirs builds the per-job directory tree.
func (s *Service) createWorkDirs(ctx context.Context, jobID string) (*process.WorkDirs, error) {
	namespace := s.TempDirName
	if namespace == "" {
		namespace = DefaultTempDirName
	}
	root := filepath.Join(s.TempRoot, namespace, jobID)

	dirs := &process.WorkDirs{
		Root:       root,
		Video:      filepath.Join(root, "video"),
		Frames:     filepath.Join(root, "frames"),
		Candidates: filepath.Join(root, "candidates"),
		Extracted:  filepath.Join(root, "extracted"),
		Final:      filepath.Join(root, "final"),
		Commercial: filepath.Join(root, "commercial"),
	}

	outcomes := parallel.Map(ctx, dirs.All(), len(dirs.All()), func(ctx context.Context, dir string) (struct{}, error) {
		return struct{}{}, s.FS.MkdirAll(dir, 0o755)
	})
	for _, o := range outcomes {
		if o.Failed() {
			return nil, fmt.Errorf("unable to create work directories: %w", o.Err)
		}
	}
	return dirs, nil
}

// cleanupWorkDirs removes the work directory tree unless debug mode keeps
// it for inspection.
func (s *Service) cleanupWorkDirs(cfg *jobs.Config, dirs *process.WorkDirs, log logr.Logger) {
	if cfg.Debug || s.Debug {
		log.Info("debug mode, keeping work directory", "dir", dirs.Root)
		return
	}
	if err := s.FS.RemoveAll(dirs.Root); err != nil {
		log.Error(err, "unable to remove work directory", "dir", dirs.Root)
	}
}

// cleanupSourceBlob deletes the source video object if it lives under the
// managed uploads prefix. Cleanup errors never fail the job.
func (s *Service) cleanupSourceBlob(ctx context.Context, job *jobs.Job, log logr.Logger) {
	if s.Blobs == nil {
		return
	}
	key, ok := storage.IsManagedUpload(job.VideoURL, s.Bucket)
	if !ok {
		return
	}
	if err := s.Blobs.Delete(ctx, key); err != nil {
		log.Info("unable to delete source video", "key", key, "error", err.Error())
	}
}

// fail records the failure on the job row and passes the error through.
func (s *Service) fail(ctx context.Context, jobID string, log logr.Logger, err error) error {
	if storeErr := s.Store.MarkFailed(ctx, jobID, err.Error()); storeErr != nil {
		log.Error(storeErr, "unable to mark job failed")
	}
	return err
}

// resultFrom extracts the result the terminal processor placed into the
// envelope metadata, deriving it from the envelope when absent.
func resultFrom(data *process.Data) *jobs.Result {
	if data != nil {
		if r, ok := data.Metadata[process.MetadataResult].(*jobs.Result); ok {
			return r
		}
	}
	return processors.BuildResult(data)
}
