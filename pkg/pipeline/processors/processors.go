// SPDX-FileCopyrightText: 2026 Framelift contributors.
//
// SPDX-License-Identifier: Apache-2.0

// Package processors contains the built-in processor implementations of the
// pipeline: the flow-shape processors that move frames through the working
// directories and storage, the terminal processor that records the job
// result, and thin adapters for the external AI providers.
package processors

import (
	"time"

	"github.com/framelift/framelift/pkg/jobs"
	"github.com/framelift/framelift/pkg/pipeline/process"
	"github.com/framelift/framelift/pkg/provider"
)

// base carries the static identity of a processor.
type base struct {
	id          string
	displayName string
	statusKey   jobs.Status
	io          process.IODeclaration
}

func (b base) ID() string             { return b.id }
func (b base) DisplayName() string    { return b.displayName }
func (b base) StatusKey() jobs.Status { return b.statusKey }
func (b base) IO() process.IODeclaration {
	return b.io
}

// retryPolicy derives the provider retry policy from the job configuration.
func retryPolicy(pctx *process.Context) provider.RetryPolicy {
	policy := provider.DefaultRetryPolicy
	if pctx.Config != nil {
		if pctx.Config.APIRetryAttempts > 0 {
			policy.Attempts = pctx.Config.APIRetryAttempts
		}
		if pctx.Config.APIRetryDelayMs > 0 {
			policy.BaseDelay = time.Duration(pctx.Config.APIRetryDelayMs) * time.Millisecond
		}
	}
	return policy
}

// reportBandProgress emits a progress update inside the processor's band.
func reportBandProgress(pctx *process.Context, id string, status jobs.Status, i, n int) {
	band, ok := process.BandFor(id)
	if !ok {
		return
	}
	pctx.ReportProgress(process.ProgressUpdate{
		Status:     status,
		Percentage: band.Percent(i, n),
	})
}
