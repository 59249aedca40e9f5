// SPDX-FileCopyrightText: 2026 Framelift contributors.
//
// SPDX-License-Identifier: Apache-2.0

package processors

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mandelsoft/vfs/pkg/vfs"

	"github.com/framelift/framelift/pkg/jobs"
	"github.com/framelift/framelift/pkg/pipeline/parallel"
	"github.com/framelift/framelift/pkg/pipeline/process"
	"github.com/framelift/framelift/pkg/provider"
	"github.com/framelift/framelift/pkg/storage"
)

type generateRequest struct {
	FrameID string `json:"frameId"`
	Version string `json:"version"`
	Image   string `json:"image"`
}

type generateResponse struct {
	Image string        `json:"image"`
	Model string        `json:"model,omitempty"`
	Usage *usagePayload `json:"usage,omitempty"`
}

type generateTask struct {
	frame   *process.Frame
	version string
}

// GenerateCommercial renders a commercial-ready image per final frame and
// configured version through the generation provider, uploads each one to
// blob storage, and records the URL map in the envelope metadata.
type GenerateCommercial struct {
	base
	client   *provider.Client
	endpoint string
	blobs    storage.BlobStore
}

// NewGenerateCommercial creates the generate-commercial processor.
func NewGenerateCommercial(client *provider.Client, endpoint string, blobs storage.BlobStore) *GenerateCommercial {
	return &GenerateCommercial{
		base: base{
			id:          "generate-commercial",
			displayName: "Generate Commercial Images",
			statusKey:   jobs.StatusGenerating,
			io: process.IODeclaration{
				Requires: []process.IOType{process.IOImages, process.IOFrameProduct},
				Produces: []process.IOType{process.IOCommercialImages},
			},
		},
		client:   client,
		endpoint: endpoint,
		blobs:    blobs,
	}
}

func (p *GenerateCommercial) Process(ctx context.Context, pctx *process.Context, data *process.Data, opts process.Options) process.Result {
	if p.endpoint == "" || p.client == nil {
		pctx.Log.V(5).Info("no generation endpoint configured, skipping", "job-id", pctx.JobID)
		return process.Succeed(nil)
	}

	versions := pctx.Config.CommercialVersions
	tasks := []generateTask{}
	for _, f := range data.FinalFrames() {
		for _, v := range versions {
			tasks = append(tasks, generateTask{frame: f, version: v})
		}
	}
	if len(tasks) == 0 {
		return process.Succeed(nil)
	}

	policy := retryPolicy(pctx)
	concurrency := parallel.Concurrency(parallel.KindGenerate, opts)

	outcomes := parallel.Map(ctx, tasks, concurrency, func(ctx context.Context, t generateTask) (*process.CommercialImage, error) {
		raw, err := vfs.ReadFile(pctx.FS, t.frame.LocalPath)
		if err != nil {
			return nil, err
		}
		req := generateRequest{
			FrameID: t.frame.ID,
			Version: t.version,
			Image:   base64.StdEncoding.EncodeToString(raw),
		}
		resp := &generateResponse{}
		done := pctx.Timer.StartOperation("provider-call", fmt.Sprintf("generate %s %s", t.frame.ID, t.version))
		err = p.client.PostJSON(ctx, p.endpoint, req, resp, policy)
		done(nil)
		if err != nil {
			return nil, err
		}
		if resp.Usage != nil {
			pctx.Usage.Record(resp.Model, p.id, resp.Usage.PromptTokens, resp.Usage.CandidatesTokens)
		}

		rendered, err := base64.StdEncoding.DecodeString(resp.Image)
		if err != nil {
			return nil, fmt.Errorf("unable to decode generated image: %w", err)
		}

		name := fmt.Sprintf("%s-%s.png", t.frame.ID, t.version)
		local := filepath.Join(pctx.WorkDirs.Commercial, name)
		if err := vfs.WriteFile(pctx.FS, local, rendered, os.ModePerm); err != nil {
			return nil, err
		}

		uploadDone := pctx.Timer.StartOperation("storage-upload", "commercial "+name)
		url, err := p.blobs.Upload(ctx, storage.CommercialKey(pctx.JobID, name), bytes.NewReader(rendered), "image/png")
		uploadDone(nil)
		if err != nil {
			return nil, err
		}

		return &process.CommercialImage{
			FrameID:   t.frame.ID,
			Version:   t.version,
			LocalPath: local,
			RemoteURL: url,
		}, nil
	})

	images := []*process.CommercialImage{}
	urls := map[string]interface{}{}
	for i, o := range outcomes {
		if o.Failed() {
			pctx.Log.Info("commercial generation failed", "job-id", pctx.JobID,
				"frame", tasks[i].frame.ID, "version", tasks[i].version, "error", o.Err.Error())
			continue
		}
		images = append(images, o.Value)
		byVersion, _ := urls[o.Value.FrameID].(map[string]interface{})
		if byVersion == nil {
			byVersion = map[string]interface{}{}
		}
		byVersion[o.Value.Version] = o.Value.RemoteURL
		urls[o.Value.FrameID] = byVersion
		reportBandProgress(pctx, p.id, p.statusKey, i, len(outcomes))
	}
	if len(images) == 0 {
		return process.Fail("commercial generation failed for all %d images", len(outcomes))
	}

	return process.Succeed(&process.Data{
		CommercialImages: images,
		Metadata:         map[string]interface{}{process.MetadataCommercialURLs: urls},
	})
}
