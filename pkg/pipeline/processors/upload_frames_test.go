// SPDX-FileCopyrightText: 2026 Framelift contributors.
//
// SPDX-License-Identifier: Apache-2.0
package processors_test

import (
	"context"
	"os"

	"github.com/mandelsoft/vfs/pkg/vfs"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/framelift/framelift/pkg/pipeline/process"
	"github.com/framelift/framelift/pkg/pipeline/processors"
	"github.com/framelift/framelift/pkg/storage"
)

var _ = Describe("upload-frames processor", func() {

	var (
		pctx  *process.Context
		fs    vfs.FileSystem
		blobs storage.BlobStore
		store *recordingStore
	)

	addFrame := func(data *process.Data, id string, final bool) *process.Frame {
		path := "/work/job-1/final/" + id + ".jpg"
		Expect(vfs.WriteFile(fs, path, []byte("jpeg-"+id), os.ModePerm)).To(Succeed())
		f := &process.Frame{ID: id, LocalPath: path, IsFinalSelection: final}
		data.Frames = append(data.Frames, f)
		return f
	}

	BeforeEach(func() {
		pctx, fs = newTestContext()
		blobs = storage.NewVFSStore(fs, "/blobs", "https://cdn.example.com")
		store = newRecordingStore()
	})

	It("should upload the final frames and persist their urls", func() {
		data := process.NewData()
		addFrame(data, "frame-1", true)
		addFrame(data, "frame-2", false)
		addFrame(data, "frame-3", true)

		result := processors.NewUploadFrames(blobs, store).Process(context.Background(), pctx, data, nil)
		Expect(result.Success).To(BeTrue(), result.Error)

		Expect(data.Frames[0].RemoteURL).To(Equal("https://cdn.example.com/" + storage.FrameKey("job-1", "frame-1.jpg")))
		Expect(data.Frames[1].RemoteURL).To(BeEmpty())
		Expect(data.Frames[2].RemoteURL).ToNot(BeEmpty())

		Expect(store.frameURLs).To(HaveKey("frame-1"))
		Expect(store.frameURLs).To(HaveKey("frame-3"))
		Expect(store.frameURLs).ToNot(HaveKey("frame-2"))

		raw, err := vfs.ReadFile(fs, "/blobs/"+storage.FrameKey("job-1", "frame-1.jpg"))
		Expect(err).ToNot(HaveOccurred())
		Expect(string(raw)).To(Equal("jpeg-frame-1"))
	})

	It("should keep going when single uploads fail", func() {
		data := process.NewData()
		addFrame(data, "frame-1", true)
		missing := &process.Frame{ID: "frame-2", LocalPath: "/work/job-1/final/missing.jpg", IsFinalSelection: true}
		data.Frames = append(data.Frames, missing)

		result := processors.NewUploadFrames(blobs, store).Process(context.Background(), pctx, data, nil)
		Expect(result.Success).To(BeTrue())
		Expect(data.Frames[0].RemoteURL).ToNot(BeEmpty())
		Expect(missing.RemoteURL).To(BeEmpty())
	})

	It("should fail when every upload fails", func() {
		data := process.NewData()
		data.Frames = []*process.Frame{
			{ID: "frame-1", LocalPath: "/nowhere/a.jpg", IsFinalSelection: true},
		}

		result := processors.NewUploadFrames(blobs, store).Process(context.Background(), pctx, data, nil)
		Expect(result.Success).To(BeFalse())
		Expect(result.Error).To(ContainSubstring("all 1 frames"))
	})

	It("should succeed without a final selection", func() {
		data := process.NewData()
		addFrame(data, "frame-1", false)

		result := processors.NewUploadFrames(blobs, store).Process(context.Background(), pctx, data, nil)
		Expect(result.Success).To(BeTrue())
	})

	It("should work without a store", func() {
		data := process.NewData()
		addFrame(data, "frame-1", true)

		result := processors.NewUploadFrames(blobs, nil).Process(context.Background(), pctx, data, nil)
		Expect(result.Success).To(BeTrue())
	})
})
