// SPDX-FileCopyrightText: 2026 Framelift contributors.
//
// SPDX-License-Identifier: Apache-2.0
package storage_test

import (
	"bytes"
	"context"
	"strings"
	"time"

	"github.com/mandelsoft/vfs/pkg/memoryfs"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/framelift/framelift/pkg/storage"
)

var _ = Describe("vfs blob store", func() {

	var (
		ctx   context.Context
		blobs storage.BlobStore
	)

	BeforeEach(func() {
		ctx = context.Background()
		blobs = storage.NewVFSStore(memoryfs.New(), "/blobs", "https://cdn.example.com")
	})

	It("should round-trip a blob", func() {
		url, err := blobs.Upload(ctx, "jobs/job-1/frames/a.jpg", strings.NewReader("payload"), "image/jpeg")
		Expect(err).ToNot(HaveOccurred())
		Expect(url).To(Equal("https://cdn.example.com/jobs/job-1/frames/a.jpg"))

		buf := &bytes.Buffer{}
		Expect(blobs.Download(ctx, "jobs/job-1/frames/a.jpg", buf)).To(Succeed())
		Expect(buf.String()).To(Equal("payload"))
	})

	It("should overwrite on repeated upload", func() {
		_, err := blobs.Upload(ctx, "k", strings.NewReader("one"), "text/plain")
		Expect(err).ToNot(HaveOccurred())
		_, err = blobs.Upload(ctx, "k", strings.NewReader("two"), "text/plain")
		Expect(err).ToNot(HaveOccurred())

		buf := &bytes.Buffer{}
		Expect(blobs.Download(ctx, "k", buf)).To(Succeed())
		Expect(buf.String()).To(Equal("two"))
	})

	It("should report missing blobs", func() {
		buf := &bytes.Buffer{}
		err := blobs.Download(ctx, "ghost", buf)
		Expect(err).To(MatchError(storage.ErrNotFound))
	})

	It("should delete blobs", func() {
		_, err := blobs.Upload(ctx, "k", strings.NewReader("one"), "text/plain")
		Expect(err).ToNot(HaveOccurred())
		Expect(blobs.Delete(ctx, "k")).To(Succeed())

		Expect(blobs.Delete(ctx, "k")).To(MatchError(storage.ErrNotFound))
	})

	It("should presign with a clamped expiry", func() {
		url, err := blobs.PresignGet(ctx, "k", time.Second)
		Expect(err).ToNot(HaveOccurred())
		Expect(url).To(HavePrefix("https://cdn.example.com/k?expires="))
	})
})
