// SPDX-FileCopyrightText: 2026 Framelift contributors.
//
// SPDX-License-Identifier: Apache-2.0

package processors

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"os"

	"github.com/mandelsoft/vfs/pkg/vfs"

	"github.com/framelift/framelift/pkg/jobs"
	"github.com/framelift/framelift/pkg/pipeline/process"
)

// RotateImage rotates every frame image in place by a multiple of 90
// degrees. It is a purely local transform, typically inserted into a stack
// for sources recorded in the wrong orientation.
type RotateImage struct {
	base
}

// NewRotateImage creates the rotate-image processor.
func NewRotateImage() *RotateImage {
	return &RotateImage{
		base: base{
			id:          "rotate-image",
			displayName: "Rotate Image",
			statusKey:   jobs.StatusProcessing,
			io: process.IODeclaration{
				Requires: []process.IOType{process.IOImages},
				Produces: []process.IOType{process.IOImages},
			},
		},
	}
}

func (p *RotateImage) Process(ctx context.Context, pctx *process.Context, data *process.Data, opts process.Options) process.Result {
	degrees := 90.0
	if v, ok := opts.Float("degrees"); ok {
		degrees = v
	}
	if float64(int(degrees)) != degrees || int(degrees)%90 != 0 {
		return process.Fail("rotation must be a multiple of 90 degrees, got %g", degrees)
	}
	turns := int(degrees/90) % 4
	if turns < 0 {
		turns += 4
	}
	if turns == 0 || len(data.Frames) == 0 {
		return process.Succeed(nil)
	}

	for _, f := range data.Frames {
		raw, err := vfs.ReadFile(pctx.FS, f.LocalPath)
		if err != nil {
			return process.Fail("unable to read frame %s: %s", f.ID, err.Error())
		}
		rotated, err := rotateImage(raw, turns)
		if err != nil {
			return process.Fail("unable to rotate frame %s: %s", f.ID, err.Error())
		}
		if err := vfs.WriteFile(pctx.FS, f.LocalPath, rotated, os.ModePerm); err != nil {
			return process.Fail("unable to write frame %s: %s", f.ID, err.Error())
		}
	}

	pctx.Log.V(5).Info("rotated frames", "job-id", pctx.JobID, "count", len(data.Frames), "degrees", degrees)
	return process.Succeed(&process.Data{Frames: data.Frames})
}

// rotateImage rotates an encoded image clockwise by turns quarter turns and
// re-encodes it as JPEG.
func rotateImage(raw []byte, turns int) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("unable to decode image: %w", err)
	}

	for i := 0; i < turns; i++ {
		src = rotateQuarter(src)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: 92}); err != nil {
		return nil, fmt.Errorf("unable to encode image: %w", err)
	}
	return buf.Bytes(), nil
}

func rotateQuarter(src image.Image) image.Image {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dy(), b.Dx()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			dst.Set(b.Max.Y-1-y, x-b.Min.X, src.At(x, y))
		}
	}
	return dst
}
