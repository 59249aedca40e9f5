// SPDX-FileCopyrightText: 2026 Framelift contributors.
//
// SPDX-License-Identifier: Apache-2.0

package process

import "math"

// Band is the fixed progress-percentage range assigned to a pipeline phase.
type Band struct {
	Start int
	End   int
}

// Percent maps item i of n onto the band.
func (b Band) Percent(i, n int) int {
	if n <= 0 {
		return b.End
	}
	return b.Start + int(math.Round(float64(i+1)/float64(n)*float64(b.End-b.Start)))
}

// ProgressBands are the fixed per-phase progress ranges, keyed by processor
// id. Processors reporting fine-grained progress stay inside their band so
// that the overall percentage is monotonic across the run.
var ProgressBands = map[string]Band{
	"download":            {Start: 5, End: 10},
	"extract-frames":      {Start: 10, End: 30},
	"score-frames":        {Start: 30, End: 45},
	"classify-frames":     {Start: 50, End: 65},
	"extract-product":     {Start: 65, End: 70},
	"upload-frames":       {Start: 70, End: 75},
	"generate-commercial": {Start: 75, End: 95},
	"complete-job":        {Start: 100, End: 100},
}

// BandFor returns the progress band of a processor id. Processors without a
// dedicated band report only their band end, which keeps progress monotonic.
func BandFor(id string) (Band, bool) {
	b, ok := ProgressBands[id]
	return b, ok
}
