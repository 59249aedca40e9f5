// SPDX-FileCopyrightText: 2026 Framelift contributors.
//
// SPDX-License-Identifier: Apache-2.0
package processors_test

import (
	"context"
	"fmt"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/framelift/framelift/pkg/pipeline/process"
	"github.com/framelift/framelift/pkg/pipeline/processors"
)

var _ = Describe("filter-by-score processor", func() {

	var (
		pctx *process.Context
	)

	score := func(v float64) *float64 { return &v }

	// frames builds n frames scored ascending, so the highest scores sit at
	// the end of the slice.
	frames := func(n int) []*process.Frame {
		out := make([]*process.Frame, n)
		for i := 0; i < n; i++ {
			out[i] = &process.Frame{
				ID:        fmt.Sprintf("frame-%02d", i),
				Timestamp: float64(i),
				Score:     score(float64(i) / 10),
			}
		}
		return out
	}

	selected := func(fs []*process.Frame) []string {
		ids := []string{}
		for _, f := range fs {
			if f.IsFinalSelection {
				ids = append(ids, f.ID)
			}
		}
		return ids
	}

	run := func(fs []*process.Frame, opts process.Options) process.Result {
		data := process.NewData()
		data.Frames = fs
		return processors.NewFilterByScore().Process(context.Background(), pctx, data, opts)
	}

	BeforeEach(func() {
		pctx, _ = newTestContext()
	})

	It("should select ceil(n x topK) frames clamped by the minimum", func() {
		pctx.Config.TopKPercent = 0.1
		pctx.Config.MinFrames = 3
		pctx.Config.MaxFrames = 10

		fs := frames(10)
		result := run(fs, nil)
		Expect(result.Success).To(BeTrue())
		// ceil(10*0.1)=1 is lifted to minFrames=3.
		Expect(selected(fs)).To(ConsistOf("frame-09", "frame-08", "frame-07"))
	})

	It("should clamp the selection to the maximum", func() {
		pctx.Config.TopKPercent = 0.9
		pctx.Config.MinFrames = 1
		pctx.Config.MaxFrames = 2

		fs := frames(10)
		result := run(fs, nil)
		Expect(result.Success).To(BeTrue())
		Expect(selected(fs)).To(ConsistOf("frame-09", "frame-08"))
	})

	It("should never select more frames than exist", func() {
		pctx.Config.TopKPercent = 0.5
		pctx.Config.MinFrames = 8
		pctx.Config.MaxFrames = 20

		fs := frames(4)
		result := run(fs, nil)
		Expect(result.Success).To(BeTrue())
		Expect(selected(fs)).To(HaveLen(4))
	})

	It("should keep the original order on score ties", func() {
		pctx.Config.TopKPercent = 0.5
		pctx.Config.MinFrames = 1
		pctx.Config.MaxFrames = 10

		fs := []*process.Frame{
			{ID: "a", Score: score(0.5)},
			{ID: "b", Score: score(0.5)},
			{ID: "c", Score: score(0.5)},
			{ID: "d", Score: score(0.5)},
		}
		result := run(fs, nil)
		Expect(result.Success).To(BeTrue())
		Expect(selected(fs)).To(Equal([]string{"a", "b"}))
	})

	It("should honor option overrides", func() {
		pctx.Config.TopKPercent = 0.2
		pctx.Config.MinFrames = 1
		pctx.Config.MaxFrames = 10

		fs := frames(10)
		result := run(fs, process.Options{"topKPercent": 0.5})
		Expect(result.Success).To(BeTrue())
		Expect(selected(fs)).To(HaveLen(5))
	})

	It("should replace a previous selection", func() {
		pctx.Config.TopKPercent = 0.1
		pctx.Config.MinFrames = 1
		pctx.Config.MaxFrames = 10

		fs := frames(10)
		fs[0].IsFinalSelection = true
		result := run(fs, nil)
		Expect(result.Success).To(BeTrue())
		Expect(selected(fs)).To(Equal([]string{"frame-09"}))
	})

	It("should succeed on an empty envelope", func() {
		result := run(nil, nil)
		Expect(result.Success).To(BeTrue())
	})

	It("should treat unscored frames as zero", func() {
		pctx.Config.TopKPercent = 0.5
		pctx.Config.MinFrames = 1
		pctx.Config.MaxFrames = 1

		fs := []*process.Frame{
			{ID: "unscored"},
			{ID: "scored", Score: score(0.1)},
		}
		result := run(fs, nil)
		Expect(result.Success).To(BeTrue())
		Expect(selected(fs)).To(Equal([]string{"scored"}))
	})
})
