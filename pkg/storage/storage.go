// SPDX-FileCopyrightText: 2026 Framelift contributors.
//
// SPDX-License-Identifier: Apache-2.0

// Package storage contains the narrow object-storage surface the pipeline
// core touches: uploading and deleting blobs and producing presigned URLs.
package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"
)

// Blob key prefixes of the managed bucket.
const (
	// UploadsPrefix holds user-uploaded source videos; objects below it are
	// cleanup candidates after a successful run.
	UploadsPrefix = "uploads/"
	jobsPrefix    = "jobs/"
)

// Presign expiry bounds.
const (
	MinPresignExpiry       = 60 * time.Second
	MaxUploadPresignExpiry = 86400 * time.Second
	MaxAPIPresignExpiry    = 3600 * time.Second
)

// BlobStore is the object storage surface of the core.
type BlobStore interface {
	// Upload stores the blob under key and returns its remote URL.
	Upload(ctx context.Context, key string, r io.Reader, contentType string) (string, error)
	// Download streams the blob at key into w.
	Download(ctx context.Context, key string, w io.Writer) error
	// Delete removes the blob at key.
	Delete(ctx context.Context, key string) error
	// PresignGet returns a time-limited GET URL for the blob at key. The
	// expiry is clamped by the caller via ClampUploadExpiry or
	// ClampAPIExpiry.
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// FrameKey returns the storage key of an uploaded frame.
func FrameKey(jobID, name string) string {
	return path.Join(jobsPrefix+jobID, "frames", name)
}

// CommercialKey returns the storage key of a generated commercial image.
func CommercialKey(jobID, name string) string {
	return path.Join(jobsPrefix+jobID, "commercial", name)
}

// ClampUploadExpiry clamps a presign expiry for user uploads into
// [60s, 86400s].
func ClampUploadExpiry(d time.Duration) time.Duration {
	return clamp(d, MinPresignExpiry, MaxUploadPresignExpiry)
}

// ClampAPIExpiry clamps a presign expiry for API-consumed presigns into
// [60s, 3600s].
func ClampAPIExpiry(d time.Duration) time.Duration {
	return clamp(d, MinPresignExpiry, MaxAPIPresignExpiry)
}

func clamp(d, min, max time.Duration) time.Duration {
	if d < min {
		return min
	}
	if d > max {
		return max
	}
	return d
}

// ParseSourceKey extracts the blob key from a source video URL and reports
// whether the URL points into the managed storage. Supported forms are
// s3://<bucket>/<key> and https URLs whose path is <bucket>/<key> or <key>.
func ParseSourceKey(raw, bucket string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	switch u.Scheme {
	case "s3":
		if u.Host != bucket {
			return "", false
		}
		return strings.TrimPrefix(u.Path, "/"), true
	case "http", "https":
		p := strings.TrimPrefix(u.Path, "/")
		if strings.HasPrefix(p, bucket+"/") {
			return strings.TrimPrefix(p, bucket+"/"), true
		}
		if strings.HasPrefix(u.Host, bucket+".") {
			return p, true
		}
		return "", false
	default:
		return "", false
	}
}

// IsManagedUpload reports whether the source URL points at an object below
// the managed uploads/ prefix. Only such objects may be cleaned up after a
// successful run.
func IsManagedUpload(raw, bucket string) (string, bool) {
	key, managed := ParseSourceKey(raw, bucket)
	if !managed || !strings.HasPrefix(key, UploadsPrefix) {
		return "", false
	}
	return key, true
}

// ErrNotFound is returned when a blob does not exist.
var ErrNotFound = fmt.Errorf("blob not found")
