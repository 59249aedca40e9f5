// SPDX-FileCopyrightText: 2026 Framelift contributors.
//
// SPDX-License-Identifier: Apache-2.0

package processors

import (
	"context"
	"encoding/base64"
	"math"

	"github.com/mandelsoft/vfs/pkg/vfs"

	"github.com/framelift/framelift/pkg/jobs"
	"github.com/framelift/framelift/pkg/pipeline/parallel"
	"github.com/framelift/framelift/pkg/pipeline/process"
	"github.com/framelift/framelift/pkg/provider"
)

type scoreRequest struct {
	FrameID string `json:"frameId"`
	Image   string `json:"image"`
}

type scoreResponse struct {
	Score float64       `json:"score"`
	Model string        `json:"model,omitempty"`
	Usage *usagePayload `json:"usage,omitempty"`
}

type usagePayload struct {
	PromptTokens     int `json:"promptTokens"`
	CandidatesTokens int `json:"candidatesTokens"`
}

// ScoreFrames scores every frame through the scoring provider. Without a
// configured endpoint the processor is a no-op and frames keep no score.
type ScoreFrames struct {
	base
	client   *provider.Client
	endpoint string
}

// NewScoreFrames creates the score-frames processor.
func NewScoreFrames(client *provider.Client, endpoint string) *ScoreFrames {
	return &ScoreFrames{
		base: base{
			id:          "score-frames",
			displayName: "Score Frames",
			statusKey:   jobs.StatusScoring,
			io: process.IODeclaration{
				Requires: []process.IOType{process.IOImages, process.IOFrames},
				Produces: []process.IOType{process.IOFrameScores},
			},
		},
		client:   client,
		endpoint: endpoint,
	}
}

func (p *ScoreFrames) Process(ctx context.Context, pctx *process.Context, data *process.Data, opts process.Options) process.Result {
	if p.endpoint == "" || p.client == nil {
		pctx.Log.V(5).Info("no scoring endpoint configured, skipping", "job-id", pctx.JobID)
		return process.Succeed(nil)
	}
	if len(data.Frames) == 0 {
		return process.Succeed(nil)
	}

	policy := retryPolicy(pctx)
	concurrency := parallel.Concurrency(parallel.KindScore, opts)

	outcomes := parallel.Map(ctx, data.Frames, concurrency, func(ctx context.Context, f *process.Frame) (*scoreResponse, error) {
		raw, err := vfs.ReadFile(pctx.FS, f.LocalPath)
		if err != nil {
			return nil, err
		}
		req := scoreRequest{FrameID: f.ID, Image: base64.StdEncoding.EncodeToString(raw)}
		resp := &scoreResponse{}
		done := pctx.Timer.StartOperation("provider-call", "score "+f.ID)
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
			pctx.Log.Info("frame scoring failed", "job-id", pctx.JobID, "frame", data.Frames[i].ID, "error", o.Err.Error())
			continue
		}
		score := o.Value.Score
		data.Frames[i].Score = &score
		if o.Value.Usage != nil {
			pctx.Usage.Record(o.Value.Model, p.id, o.Value.Usage.PromptTokens, o.Value.Usage.CandidatesTokens)
		}
		succeeded++
		reportBandProgress(pctx, p.id, p.statusKey, i, len(outcomes))
	}
	if succeeded == 0 {
		return process.Fail("scoring failed for all %d frames", len(outcomes))
	}

	markBestPerSecond(data.Frames)

	pctx.Log.V(5).Info("scored frames", "job-id", pctx.JobID, "scored", succeeded, "total", len(outcomes))
	return process.Succeed(&process.Data{Frames: data.Frames})
}

// markBestPerSecond flags, within each whole second of the video, the frame
// with the highest score.
func markBestPerSecond(frames []*process.Frame) {
	best := map[int]*process.Frame{}
	for _, f := range frames {
		f.BestPerSecond = false
		sec := int(math.Floor(f.Timestamp))
		if cur, ok := best[sec]; !ok || f.ScoreValue() > cur.ScoreValue() {
			best[sec] = f
		}
	}
	for _, f := range best {
		f.BestPerSecond = true
	}
}
