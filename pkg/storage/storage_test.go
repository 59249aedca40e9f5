// SPDX-FileCopyrightText: 2026 Framelift contributors.
//
// SPDX-License-Identifier: Apache-2.0
package storage_test

import (
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/ginkgo/extensions/table"
	. "github.com/onsi/gomega"

	"github.com/framelift/framelift/pkg/storage"
)

var _ = Describe("storage keys and urls", func() {

	Context("blob keys", func() {

		It("should build frame keys below the job prefix", func() {
			Expect(storage.FrameKey("job-1", "frame-00001.jpg")).To(Equal("jobs/job-1/frames/frame-00001.jpg"))
		})

		It("should build commercial keys below the job prefix", func() {
			Expect(storage.CommercialKey("job-1", "frame-1-square.png")).To(Equal("jobs/job-1/commercial/frame-1-square.png"))
		})
	})

	DescribeTable("ParseSourceKey",
		func(raw, bucket, expectedKey string, expectedManaged bool) {
			key, managed := storage.ParseSourceKey(raw, bucket)
			Expect(managed).To(Equal(expectedManaged))
			Expect(key).To(Equal(expectedKey))
		},
		Entry("s3 scheme", "s3://media/uploads/v.mp4", "media", "uploads/v.mp4", true),
		Entry("s3 scheme, foreign bucket", "s3://other/uploads/v.mp4", "media", "", false),
		Entry("path-style https", "https://s3.eu-west-1.amazonaws.com/media/uploads/v.mp4", "media", "uploads/v.mp4", true),
		Entry("virtual-hosted https", "https://media.s3.eu-west-1.amazonaws.com/uploads/v.mp4", "media", "uploads/v.mp4", true),
		Entry("foreign https url", "https://example.com/video.mp4", "media", "", false),
		Entry("unsupported scheme", "ftp://media/uploads/v.mp4", "media", "", false),
		Entry("garbage", "::not-a-url", "media", "", false),
	)

	DescribeTable("IsManagedUpload",
		func(raw, bucket, expectedKey string, expectedManaged bool) {
			key, managed := storage.IsManagedUpload(raw, bucket)
			Expect(managed).To(Equal(expectedManaged))
			Expect(key).To(Equal(expectedKey))
		},
		Entry("managed upload", "s3://media/uploads/v.mp4", "media", "uploads/v.mp4", true),
		Entry("managed but outside uploads", "s3://media/jobs/job-1/frames/a.jpg", "media", "", false),
		Entry("foreign url", "https://example.com/video.mp4", "media", "", false),
	)

	Context("presign expiry clamping", func() {

		DescribeTable("ClampUploadExpiry",
			func(in, expected time.Duration) {
				Expect(storage.ClampUploadExpiry(in)).To(Equal(expected))
			},
			Entry("below minimum", time.Second, storage.MinPresignExpiry),
			Entry("zero", time.Duration(0), storage.MinPresignExpiry),
			Entry("in range", time.Hour, time.Hour),
			Entry("at maximum", storage.MaxUploadPresignExpiry, storage.MaxUploadPresignExpiry),
			Entry("above maximum", 48*time.Hour, storage.MaxUploadPresignExpiry),
		)

		DescribeTable("ClampAPIExpiry",
			func(in, expected time.Duration) {
				Expect(storage.ClampAPIExpiry(in)).To(Equal(expected))
			},
			Entry("below minimum", time.Second, storage.MinPresignExpiry),
			Entry("in range", 10*time.Minute, 10*time.Minute),
			Entry("above maximum", 2*time.Hour, storage.MaxAPIPresignExpiry),
		)
	})
})
