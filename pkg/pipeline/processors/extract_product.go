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

// ExtractProduct crops the product out of the final frames through the
// product-extraction provider. Frames whose extraction fails keep their
// original image.
type ExtractProduct struct {
	base
	client   *provider.Client
	endpoint string
}

// NewExtractProduct creates the extract-product processor.
func NewExtractProduct(client *provider.Client, endpoint string) *ExtractProduct {
	return &ExtractProduct{
		base: base{
			id:          "extract-product",
			displayName: "Extract Product",
			statusKey:   jobs.StatusExtractingProduct,
			io: process.IODeclaration{
				Requires: []process.IOType{process.IOImages, process.IOFrames},
				Produces: []process.IOType{process.IOFrameProduct},
			},
		},
		client:   client,
		endpoint: endpoint,
	}
}

func (p *ExtractProduct) Process(ctx context.Context, pctx *process.Context, data *process.Data, opts process.Options) process.Result {
	if p.endpoint == "" || p.client == nil {
		pctx.Log.V(5).Info("no product-extraction endpoint configured, skipping", "job-id", pctx.JobID)
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
	concurrency := parallel.Concurrency(parallel.Kind(p.id), opts)

	outcomes := parallel.Map(ctx, frames, concurrency, func(ctx context.Context, f *process.Frame) (string, error) {
		raw, err := vfs.ReadFile(pctx.FS, f.LocalPath)
		if err != nil {
			return "", err
		}
		done := pctx.Timer.StartOperation("provider-call", "extract-product "+f.ID)
		cropped, err := p.client.PostBinary(ctx, p.endpoint, raw, "image/jpeg", policy)
		done(nil)
		if err != nil {
			return "", err
		}
		target := filepath.Join(pctx.WorkDirs.Extracted, f.ID+"-product.jpg")
		if err := vfs.WriteFile(pctx.FS, target, cropped, os.ModePerm); err != nil {
			return "", err
		}
		return target, nil
	})

	succeeded := 0
	for i, o := range outcomes {
		if o.Failed() {
			pctx.Log.Info("product extraction failed, keeping original frame", "job-id", pctx.JobID, "frame", frames[i].ID, "error", o.Err.Error())
			continue
		}
		frames[i].LocalPath = o.Value
		succeeded++
		reportBandProgress(pctx, p.id, p.statusKey, i, len(outcomes))
	}
	if succeeded == 0 {
		return process.Fail("product extraction failed for all %d frames", len(outcomes))
	}

	return process.Succeed(&process.Data{Frames: data.Frames})
}
