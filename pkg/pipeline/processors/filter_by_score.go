// SPDX-FileCopyrightText: 2026 Framelift contributors.
//
// SPDX-License-Identifier: Apache-2.0

package processors

import (
	"context"
	"math"
	"sort"

	"github.com/framelift/framelift/pkg/jobs"
	"github.com/framelift/framelift/pkg/pipeline/process"
)

// FilterByScore marks the top-k frames by score as the final selection. The
// selection size is ceil(N x topKPercent) clamped into [minFrames,
// maxFrames] and never exceeds N; ties keep their original order.
type FilterByScore struct {
	base
}

// NewFilterByScore creates the filter-by-score processor.
func NewFilterByScore() *FilterByScore {
	return &FilterByScore{
		base: base{
			id:          "filter-by-score",
			displayName: "Filter By Score",
			statusKey:   jobs.StatusScoring,
			io: process.IODeclaration{
				Requires: []process.IOType{process.IOFrames, process.IOFrameScores},
				Produces: []process.IOType{process.IOFrames},
			},
		},
	}
}

func (p *FilterByScore) Process(ctx context.Context, pctx *process.Context, data *process.Data, opts process.Options) process.Result {
	n := len(data.Frames)
	if n == 0 {
		return process.Succeed(nil)
	}

	topK := pctx.Config.TopKPercent
	if v, ok := opts.Float("topKPercent"); ok && v > 0 && v <= 1 {
		topK = v
	}
	min := pctx.Config.MinFrames
	if v, ok := opts.Float("minFrames"); ok && v >= 1 {
		min = int(v)
	}
	max := pctx.Config.MaxFrames
	if v, ok := opts.Float("maxFrames"); ok && v >= 1 {
		max = int(v)
	}

	k := int(math.Ceil(float64(n) * topK))
	if k < min {
		k = min
	}
	if k > max {
		k = max
	}
	if k > n {
		k = n
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return data.Frames[order[a]].ScoreValue() > data.Frames[order[b]].ScoreValue()
	})

	for _, f := range data.Frames {
		f.IsFinalSelection = false
	}
	for _, idx := range order[:k] {
		data.Frames[idx].IsFinalSelection = true
	}

	pctx.Log.V(5).Info("selected final frames", "job-id", pctx.JobID, "selected", k, "total", n)
	return process.Succeed(&process.Data{Frames: data.Frames})
}
