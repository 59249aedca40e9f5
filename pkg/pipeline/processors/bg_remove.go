// SPDX-FileCopyrightText: 2026 Framelift contributors.
//
// SPDX-License-Identifier: Apache-2.0

package processors

import (
	"context"
	"os"
	"path/filepath"

	"github.com/mandelsoft/vfs/pkg/vfs"

	"github.com/framelift/framelift/pkg/jobs"
	"github.com/framelift/framelift/pkg/pipeline/parallel"
	"github.com/framelift/framelift/pkg/pipeline/process"
	"github.com/framelift/framelift/pkg/provider"
)

// BGRemove strips the background from the final frames through a
// background-removal provider. Background removal is cosmetic: frames whose
// removal fails keep their original image and the processor still succeeds,
// so the two provider variants stay freely swappable in any stack.
type BGRemove struct {
	base
	client   *provider.Client
	endpoint string
}

// NewPhotoroomBGRemove creates the Photoroom-backed background remover.
func NewPhotoroomBGRemove(client *provider.Client, endpoint string) *BGRemove {
	return newBGRemove("photoroom-bg-remove", "Photoroom Background Removal", client, endpoint)
}

// NewClaidBGRemove creates the Claid-backed background remover. It declares
// the same IO signature as the Photoroom variant so the two can be swapped.
func NewClaidBGRemove(client *provider.Client, endpoint string) *BGRemove {
	return newBGRemove("claid-bg-remove", "Claid Background Removal", client, endpoint)
}

func newBGRemove(id, displayName string, client *provider.Client, endpoint string) *BGRemove {
	return &BGRemove{
		base: base{
			id:          id,
			displayName: displayName,
			statusKey:   jobs.StatusGenerating,
			io: process.IODeclaration{
				Requires: []process.IOType{process.IOImages},
				Produces: []process.IOType{process.IOImages},
			},
		},
		client:   client,
		endpoint: endpoint,
	}
}

func (p *BGRemove) Process(ctx context.Context, pctx *process.Context, data *process.Data, opts process.Options) process.Result {
	if p.endpoint == "" || p.client == nil {
		pctx.Log.V(5).Info("no background-removal endpoint configured, keeping originals", "job-id", pctx.JobID)
		return process.Succeed(nil)
	}

	frames := data.FinalFrames()
	if len(frames) == 0 {
		frames = data.Frames
	}
	if len(frames) == 0 {
		return process.Succeed(nil)
	}

	policy := retryPolicy(pctx)
	concurrency := parallel.Concurrency(parallel.KindBGRemove, opts)

	outcomes := parallel.Map(ctx, frames, concurrency, func(ctx context.Context, f *process.Frame) (string, error) {
		raw, err := vfs.ReadFile(pctx.FS, f.LocalPath)
		if err != nil {
			return "", err
		}
		done := pctx.Timer.StartOperation("provider-call", p.id+" "+f.ID)
		stripped, err := p.client.PostBinary(ctx, p.endpoint, raw, "image/jpeg", policy)
		done(nil)
		if err != nil {
			return "", err
		}
		target := filepath.Join(pctx.WorkDirs.Candidates, f.ID+"-nobg.png")
		if err := vfs.WriteFile(pctx.FS, target, stripped, os.ModePerm); err != nil {
			return "", err
		}
		return target, nil
	})

	replaced := 0
	for i, o := range outcomes {
		if o.Failed() {
			pctx.Log.Info("background removal failed, keeping original frame", "job-id", pctx.JobID, "frame", frames[i].ID, "error", o.Err.Error())
			continue
		}
		frames[i].LocalPath = o.Value
		replaced++
	}

	pctx.Log.V(5).Info("background removal done", "job-id", pctx.JobID, "replaced", replaced, "total", len(outcomes))
	return process.Succeed(&process.Data{Frames: data.Frames})
}
