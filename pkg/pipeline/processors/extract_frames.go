// SPDX-FileCopyrightText: 2026 Framelift contributors.
//
// SPDX-License-Identifier: Apache-2.0

package processors

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mandelsoft/vfs/pkg/vfs"

	"github.com/framelift/framelift/pkg/jobs"
	"github.com/framelift/framelift/pkg/pipeline/process"
)

// ExtractedFrame is one frame produced by a frame extractor.
type ExtractedFrame struct {
	Path      string
	Timestamp float64
}

// FrameExtractor turns a video file into a sequence of frame images.
type FrameExtractor interface {
	Extract(ctx context.Context, videoPath, outDir string, fps float64) ([]ExtractedFrame, error)
}

// FFmpegExtractor extracts frames by shelling out to ffmpeg.
type FFmpegExtractor struct {
	Bin string
	FS  vfs.FileSystem
}

// NewFFmpegExtractor creates an extractor using the given ffmpeg binary.
func NewFFmpegExtractor(bin string, fs vfs.FileSystem) *FFmpegExtractor {
	if bin == "" {
		bin = "ffmpeg"
	}
	return &FFmpegExtractor{Bin: bin, FS: fs}
}

func (e *FFmpegExtractor) Extract(ctx context.Context, videoPath, outDir string, fps float64) ([]ExtractedFrame, error) {
	pattern := filepath.Join(outDir, "frame-%05d.jpg")
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-i", videoPath,
		"-vf", fmt.Sprintf("fps=%g", fps),
		"-q:v", "2",
		pattern,
	}

	cmd := exec.CommandContext(ctx, e.Bin, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg failed: %s: %s", err.Error(), strings.TrimSpace(string(out)))
	}

	infos, err := vfs.ReadDir(e.FS, outDir)
	if err != nil {
		return nil, fmt.Errorf("unable to read frames directory: %w", err)
	}

	names := []string{}
	for _, info := range infos {
		if !info.IsDir() && strings.HasPrefix(info.Name(), "frame-") {
			names = append(names, info.Name())
		}
	}
	sort.Strings(names)

	frames := make([]ExtractedFrame, len(names))
	for i, name := range names {
		frames[i] = ExtractedFrame{
			Path:      filepath.Join(outDir, name),
			Timestamp: float64(i) / fps,
		}
	}
	return frames, nil
}

// ExtractFrames runs the frame extractor against the downloaded video and
// loads the resulting frames into the envelope.
type ExtractFrames struct {
	base
	extractor FrameExtractor
}

// NewExtractFrames creates the extract-frames processor.
func NewExtractFrames(extractor FrameExtractor) *ExtractFrames {
	return &ExtractFrames{
		base: base{
			id:          "extract-frames",
			displayName: "Extract Frames",
			statusKey:   jobs.StatusExtractingFrames,
			io: process.IODeclaration{
				Requires: []process.IOType{process.IOVideo},
				Produces: []process.IOType{process.IOFrames, process.IOImages},
			},
		},
		extractor: extractor,
	}
}

func (p *ExtractFrames) Process(ctx context.Context, pctx *process.Context, data *process.Data, opts process.Options) process.Result {
	if data.Video == nil || data.Video.LocalPath == "" {
		return process.Fail("no local video present")
	}

	fps := pctx.Config.FramesPerSecond
	if v, ok := opts.Float("fps"); ok && v > 0 {
		fps = v
	}

	done := pctx.Timer.StartOperation("extract-frames", "ffmpeg")
	extracted, err := p.extractor.Extract(ctx, data.Video.LocalPath, pctx.WorkDirs.Frames, fps)
	done(map[string]interface{}{"frames": len(extracted)})
	if err != nil {
		return process.Fail("unable to extract frames: %s", err.Error())
	}

	frames := make([]*process.Frame, len(extracted))
	for i, ef := range extracted {
		frames[i] = &process.Frame{
			ID:        strings.TrimSuffix(filepath.Base(ef.Path), filepath.Ext(ef.Path)),
			LocalPath: ef.Path,
			Timestamp: ef.Timestamp,
		}
	}

	pctx.Log.V(5).Info("extracted frames", "job-id", pctx.JobID, "count", len(frames), "fps", fps)
	reportBandProgress(pctx, p.id, p.statusKey, 0, 1)

	return process.Succeed(&process.Data{Frames: frames})
}
