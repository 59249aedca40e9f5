// SPDX-FileCopyrightText: 2026 Framelift contributors.
//
// SPDX-License-Identifier: Apache-2.0

package processors

import (
	"github.com/go-logr/logr"
	"github.com/mandelsoft/vfs/pkg/vfs"

	"github.com/framelift/framelift/pkg/jobs"
	"github.com/framelift/framelift/pkg/pipeline/process"
	"github.com/framelift/framelift/pkg/provider"
	"github.com/framelift/framelift/pkg/storage"
)

// Endpoints are the external provider endpoints. An empty endpoint turns
// the corresponding processor into a no-op that keeps prior values usable.
type Endpoints struct {
	Score          string
	Classify       string
	ExtractProduct string
	Photoroom      string
	Claid          string
	Generate       string
}

// Dependencies carries everything the built-in processors need.
type Dependencies struct {
	Blobs     storage.BlobStore
	Bucket    string
	Store     jobs.Store
	Client    *provider.Client
	Extractor FrameExtractor
	Endpoints Endpoints
	FS        vfs.FileSystem
}

// NewDefaultRegistry builds a registry populated with all built-in
// processors.
func NewDefaultRegistry(log logr.Logger, deps Dependencies) *process.Registry {
	extractor := deps.Extractor
	if extractor == nil {
		extractor = NewFFmpegExtractor("", deps.FS)
	}

	registry := process.NewRegistry(log)
	registry.RegisterAll(
		NewDownload(deps.Blobs, deps.Bucket),
		NewExtractFrames(extractor),
		NewScoreFrames(deps.Client, deps.Endpoints.Score),
		NewClassifyFrames(deps.Client, deps.Endpoints.Classify),
		NewFilterByScore(),
		NewExtractProduct(deps.Client, deps.Endpoints.ExtractProduct),
		NewPhotoroomBGRemove(deps.Client, deps.Endpoints.Photoroom),
		NewClaidBGRemove(deps.Client, deps.Endpoints.Claid),
		NewRotateImage(),
		NewGenerateCommercial(deps.Client, deps.Endpoints.Generate, deps.Blobs),
		NewUploadFrames(deps.Blobs, deps.Store),
		NewCompleteJob(deps.Store),
	)
	return registry
}
