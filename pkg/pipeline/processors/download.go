// SPDX-FileCopyrightText: 2026 Framelift contributors.
//
// SPDX-License-Identifier: Apache-2.0

package processors

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"

	"github.com/framelift/framelift/pkg/jobs"
	"github.com/framelift/framelift/pkg/pipeline/process"
	"github.com/framelift/framelift/pkg/storage"
)

const sourceVideoName = "source.mp4"

// Download fetches the job's source video into the work directory. Blobs in
// the managed bucket are read through the blob store; everything else is
// fetched over plain HTTP.
type Download struct {
	base
	blobs  storage.BlobStore
	bucket string
	client *http.Client
}

// NewDownload creates the download processor.
func NewDownload(blobs storage.BlobStore, bucket string) *Download {
	return &Download{
		base: base{
			id:          "download",
			displayName: "Download Video",
			statusKey:   jobs.StatusProcessing,
			io: process.IODeclaration{
				Requires: []process.IOType{process.IOVideo},
				Produces: []process.IOType{process.IOVideo},
			},
		},
		blobs:  blobs,
		bucket: bucket,
		client: http.DefaultClient,
	}
}

func (p *Download) Process(ctx context.Context, pctx *process.Context, data *process.Data, opts process.Options) process.Result {
	if data.Video == nil || data.Video.SourceURL == "" {
		return process.Fail("no source video url present")
	}

	target := filepath.Join(pctx.WorkDirs.Video, sourceVideoName)
	done := pctx.Timer.StartOperation("download", "source-video")

	file, err := pctx.FS.Create(target)
	if err != nil {
		done(nil)
		return process.Fail("unable to create video file: %s", err.Error())
	}
	defer file.Close()

	written, err := p.fetch(ctx, data.Video.SourceURL, file)
	done(map[string]interface{}{"bytes": written})
	if err != nil {
		return process.Fail("unable to download video: %s", err.Error())
	}

	reportBandProgress(pctx, p.id, p.statusKey, 0, 1)

	return process.Succeed(&process.Data{
		Video: &process.Video{
			SourceURL: data.Video.SourceURL,
			LocalPath: target,
			Metadata:  data.Video.Metadata,
		},
	})
}

func (p *Download) fetch(ctx context.Context, sourceURL string, w io.Writer) (int64, error) {
	if key, managed := storage.ParseSourceKey(sourceURL, p.bucket); managed && p.blobs != nil {
		if err := p.blobs.Download(ctx, key, w); err != nil {
			return 0, err
		}
		return -1, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return 0, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("source returned status %d", resp.StatusCode)
	}
	return io.Copy(w, resp.Body)
}
