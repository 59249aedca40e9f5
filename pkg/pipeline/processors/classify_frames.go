// SPDX-FileCopyrightText: 2026 Framelift contributors.
//
// SPDX-License-Identifier: Apache-2.0

package processors

import (
	"context"
	"encoding/base64"

	"github.com/mandelsoft/vfs/pkg/vfs"

	"github.com/framelift/framelift/pkg/jobs"
	"github.com/framelift/framelift/pkg/pipeline/parallel"
	"github.com/framelift/framelift/pkg/pipeline/process"
	"github.com/framelift/framelift/pkg/provider"
)

type classifyRequest struct {
	FrameID string `json:"frameId"`
	Image   string `json:"image"`
}

type classifyResponse struct {
	Labels map[string]interface{} `json:"labels"`
	Model  string                 `json:"model,omitempty"`
	Usage  *usagePayload          `json:"usage,omitempty"`
}

// ClassifyFrames attaches classification attributes to every frame through
// the classification provider.
type ClassifyFrames struct {
	base
	client   *provider.Client
	endpoint string
}

// NewClassifyFrames creates the classify-frames processor.
func NewClassifyFrames(client *provider.Client, endpoint string) *ClassifyFrames {
	return &ClassifyFrames{
		base: base{
			id:          "classify-frames",
			displayName: "Classify Frames",
			statusKey:   jobs.StatusClassifying,
			io: process.IODeclaration{
				Requires: []process.IOType{process.IOImages, process.IOFrames},
				Produces: []process.IOType{process.IOFrameClassifications},
			},
		},
		client:   client,
		endpoint: endpoint,
	}
}

func (p *ClassifyFrames) Process(ctx context.Context, pctx *process.Context, data *process.Data, opts process.Options) process.Result {
	if p.endpoint == "" || p.client == nil {
		pctx.Log.V(5).Info("no classification endpoint configured, skipping", "job-id", pctx.JobID)
		return process.Succeed(nil)
	}
	if len(data.Frames) == 0 {
		return process.Succeed(nil)
	}

	policy := retryPolicy(pctx)
	concurrency := parallel.Concurrency(parallel.KindClassify, opts)

	outcomes := parallel.Map(ctx, data.Frames, concurrency, func(ctx context.Context, f *process.Frame) (*classifyResponse, error) {
		raw, err := vfs.ReadFile(pctx.FS, f.LocalPath)
		if err != nil {
			return nil, err
		}
		req := classifyRequest{FrameID: f.ID, Image: base64.StdEncoding.EncodeToString(raw)}
		resp := &classifyResponse{}
		done := pctx.Timer.StartOperation("provider-call", "classify "+f.ID)
		err = p.client.PostJSON(ctx, p.endpoint, req, resp, policy)
		done(nil)
		if err != nil {
			return nil, err
		}
		return resp, nil
	})

	succeeded := 0
	for i, o := range outcomes {
		if o.Failed() {
			pctx.Log.Info("frame classification failed", "job-id", pctx.JobID, "frame", data.Frames[i].ID, "error", o.Err.Error())
			continue
		}
		data.Frames[i].Classification = o.Value.Labels
		if o.Value.Usage != nil {
			pctx.Usage.Record(o.Value.Model, p.id, o.Value.Usage.PromptTokens, o.Value.Usage.CandidatesTokens)
		}
		succeeded++
		reportBandProgress(pctx, p.id, p.statusKey, i, len(outcomes))
	}
	if succeeded == 0 {
		return process.Fail("classification failed for all %d frames", len(outcomes))
	}

	return process.Succeed(&process.Data{Frames: data.Frames})
}
