// SPDX-FileCopyrightText: 2026 Framelift contributors.
//
// SPDX-License-Identifier: Apache-2.0
package processors_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"

	"github.com/mandelsoft/vfs/pkg/vfs"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/framelift/framelift/pkg/pipeline/process"
	"github.com/framelift/framelift/pkg/pipeline/processors"
)

var _ = Describe("rotate-image processor", func() {

	var (
		pctx *process.Context
		fs   vfs.FileSystem
	)

	// writeJPEG writes a w x h image with a red top-left pixel.
	writeJPEG := func(path string, w, h int) {
		img := image.NewRGBA(image.Rect(0, 0, w, h))
		img.Set(0, 0, color.RGBA{R: 255, A: 255})
		buf := &bytes.Buffer{}
		Expect(jpeg.Encode(buf, img, &jpeg.Options{Quality: 90})).To(Succeed())
		file, err := fs.Create(path)
		Expect(err).ToNot(HaveOccurred())
		defer file.Close()
		_, err = file.Write(buf.Bytes())
		Expect(err).ToNot(HaveOccurred())
	}

	decode := func(path string) image.Image {
		raw, err := vfs.ReadFile(fs, path)
		Expect(err).ToNot(HaveOccurred())
		img, _, err := image.Decode(bytes.NewReader(raw))
		Expect(err).ToNot(HaveOccurred())
		return img
	}

	BeforeEach(func() {
		pctx, fs = newTestContext()
	})

	It("should rotate frames by 90 degrees", func() {
		writeJPEG("/work/job-1/frames/frame-1.jpg", 8, 4)

		data := process.NewData()
		data.Frames = []*process.Frame{{ID: "frame-1", LocalPath: "/work/job-1/frames/frame-1.jpg"}}

		result := processors.NewRotateImage().Process(context.Background(), pctx, data, nil)
		Expect(result.Success).To(BeTrue(), result.Error)

		rotated := decode(data.Frames[0].LocalPath)
		b := rotated.Bounds()
		Expect(b.Dx()).To(Equal(4))
		Expect(b.Dy()).To(Equal(8))
	})

	It("should keep the dimensions on a 180 degree rotation", func() {
		writeJPEG("/work/job-1/frames/frame-1.jpg", 8, 4)

		data := process.NewData()
		data.Frames = []*process.Frame{{ID: "frame-1", LocalPath: "/work/job-1/frames/frame-1.jpg"}}

		result := processors.NewRotateImage().Process(context.Background(), pctx, data, process.Options{"degrees": 180.0})
		Expect(result.Success).To(BeTrue())

		rotated := decode(data.Frames[0].LocalPath)
		Expect(rotated.Bounds().Dx()).To(Equal(8))
		Expect(rotated.Bounds().Dy()).To(Equal(4))
	})

	It("should reject rotations that are no quarter turns", func() {
		data := process.NewData()
		data.Frames = []*process.Frame{{ID: "frame-1", LocalPath: "/work/job-1/frames/frame-1.jpg"}}

		result := processors.NewRotateImage().Process(context.Background(), pctx, data, process.Options{"degrees": 45.0})
		Expect(result.Success).To(BeFalse())
	})
})
