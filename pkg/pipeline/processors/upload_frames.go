// SPDX-FileCopyrightText: 2026 Framelift contributors.
//
// SPDX-License-Identifier: Apache-2.0

package processors

import (
	"bytes"
	"context"
	"sync/atomic"

	"github.com/mandelsoft/vfs/pkg/vfs"

	"github.com/framelift/framelift/pkg/jobs"
	"github.com/framelift/framelift/pkg/pipeline/parallel"
	"github.com/framelift/framelift/pkg/pipeline/process"
	"github.com/framelift/framelift/pkg/storage"
)

// UploadFrames uploads the final frames to blob storage with bounded
// parallelism, persists each frame's remote URL on its row, and reports
// progress per completed upload.
type UploadFrames struct {
	base
	blobs storage.BlobStore
	store jobs.Store
}

// NewUploadFrames creates the upload-frames processor. The store may be nil
// when no job rows exist (e.g. ad-hoc runs).
func NewUploadFrames(blobs storage.BlobStore, store jobs.Store) *UploadFrames {
	return &UploadFrames{
		base: base{
			id:          "upload-frames",
			displayName: "Upload Frames",
			statusKey:   jobs.StatusGenerating,
			io: process.IODeclaration{
				Requires: []process.IOType{process.IOImages, process.IOFrames},
				Produces: []process.IOType{process.IOFrames},
			},
		},
		blobs: blobs,
		store: store,
	}
}

func (p *UploadFrames) Process(ctx context.Context, pctx *process.Context, data *process.Data, opts process.Options) process.Result {
	frames := data.FinalFrames()
	if len(frames) == 0 {
		return process.Succeed(nil)
	}

	concurrency := parallel.Concurrency(parallel.KindUpload, opts)

	var completed int32
	outcomes := parallel.Map(ctx, frames, concurrency, func(ctx context.Context, f *process.Frame) (string, error) {
		raw, err := vfs.ReadFile(pctx.FS, f.LocalPath)
		if err != nil {
			return "", err
		}
		done := pctx.Timer.StartOperation("storage-upload", "frame "+f.ID)
		url, err := p.blobs.Upload(ctx, storage.FrameKey(pctx.JobID, f.ID+".jpg"), bytes.NewReader(raw), "image/jpeg")
		done(nil)
		if err != nil {
			return "", err
		}

		n := atomic.AddInt32(&completed, 1)
		reportBandProgress(pctx, p.id, p.statusKey, int(n)-1, len(frames))
		return url, nil
	})

	succeeded := 0
	for i, o := range outcomes {
		if o.Failed() {
			pctx.Log.Info("frame upload failed", "job-id", pctx.JobID, "frame", frames[i].ID, "error", o.Err.Error())
			continue
		}
		frames[i].RemoteURL = o.Value
		succeeded++
		if p.store != nil {
			if err := p.store.UpsertFrameURL(ctx, pctx.JobID, frames[i].ID, o.Value); err != nil {
				pctx.Log.Error(err, "unable to persist frame url", "job-id", pctx.JobID, "frame", frames[i].ID)
			}
		}
	}
	if succeeded == 0 {
		return process.Fail("upload failed for all %d frames", len(outcomes))
	}

	pctx.Log.V(5).Info("uploaded frames", "job-id", pctx.JobID, "uploaded", succeeded, "total", len(outcomes))
	return process.Succeed(&process.Data{Frames: data.Frames})
}
