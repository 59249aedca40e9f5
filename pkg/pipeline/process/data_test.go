// SPDX-FileCopyrightText: 2026 Framelift contributors.
//
// SPDX-License-Identifier: Apache-2.0
package process_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/framelift/framelift/pkg/pipeline/process"
)

func ptr(v float64) *float64 { return &v }

var _ = Describe("data envelope", func() {

	Context("available io", func() {

		It("should be empty for an empty envelope", func() {
			Expect(process.NewData().AvailableIO().List()).To(BeEmpty())
		})

		It("should infer video from a source url", func() {
			d := process.NewData()
			d.Video = &process.Video{SourceURL: "https://example.com/v.mp4"}
			Expect(d.AvailableIO().Has(process.IOVideo)).To(BeTrue())
		})

		It("should infer frames, images, and scores from scored frames", func() {
			d := process.NewData()
			d.Frames = []*process.Frame{{ID: "frame-00001", Score: ptr(0.5)}}
			io := d.AvailableIO()
			Expect(io.Has(process.IOFrames)).To(BeTrue())
			Expect(io.Has(process.IOImages)).To(BeTrue())
			Expect(io.Has(process.IOFrameScores)).To(BeTrue())
			Expect(io.Has(process.IOFrameClassifications)).To(BeFalse())
		})
	})

	Context("merging", func() {

		It("should replace top-level fields and keep untouched ones", func() {
			d := process.NewData()
			d.Video = &process.Video{SourceURL: "a"}
			d.Frames = []*process.Frame{{ID: "frame-00001"}}

			d.Merge(&process.Data{Frames: []*process.Frame{{ID: "frame-00002"}}})

			Expect(d.Video.SourceURL).To(Equal("a"))
			Expect(d.Frames).To(HaveLen(1))
			Expect(d.Frames[0].ID).To(Equal("frame-00002"))
		})

		It("should merge metadata deeply", func() {
			d := process.NewData()
			d.Metadata["extensions"] = map[string]interface{}{"a": 1}

			d.Merge(&process.Data{Metadata: map[string]interface{}{
				"extensions": map[string]interface{}{"b": 2},
			}})

			ext := d.Metadata["extensions"].(map[string]interface{})
			Expect(ext).To(HaveKeyWithValue("a", 1))
			Expect(ext).To(HaveKeyWithValue("b", 2))
		})

		It("should tolerate a nil delta", func() {
			d := process.NewData()
			d.Merge(nil)
			Expect(d.Frames).To(BeEmpty())
		})
	})

	Context("scores and selection", func() {

		It("should treat a missing score as zero", func() {
			f := &process.Frame{}
			Expect(f.ScoreValue()).To(Equal(0.0))
			f.Score = ptr(0.7)
			Expect(f.ScoreValue()).To(Equal(0.7))
		})

		It("should return only final frames", func() {
			d := process.NewData()
			d.Frames = []*process.Frame{
				{ID: "frame-00001", IsFinalSelection: true},
				{ID: "frame-00002"},
				{ID: "frame-00003", IsFinalSelection: true},
			}
			final := d.FinalFrames()
			Expect(final).To(HaveLen(2))
			Expect(final[0].ID).To(Equal("frame-00001"))
			Expect(final[1].ID).To(Equal("frame-00003"))
		})
	})

	Context("progress bands", func() {

		It("should stay inside the band and reach its end", func() {
			band, ok := process.BandFor("extract-frames")
			Expect(ok).To(BeTrue())

			last := band.Start
			for i := 0; i < 10; i++ {
				p := band.Percent(i, 10)
				Expect(p).To(BeNumerically(">=", last))
				Expect(p).To(BeNumerically("<=", band.End))
				last = p
			}
			Expect(band.Percent(9, 10)).To(Equal(band.End))
		})

		It("should not know bands for unbanded processors", func() {
			_, ok := process.BandFor("filter-by-score")
			Expect(ok).To(BeFalse())
		})
	})
})
