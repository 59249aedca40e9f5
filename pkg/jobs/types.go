// SPDX-FileCopyrightText: 2026 Framelift contributors.
//
// SPDX-License-Identifier: Apache-2.0

// Package jobs contains the persistent job model of the pipeline backend and
// the narrow store surface the pipeline core needs to read and update it.
package jobs

import (
	"time"
)

// Status is the persisted lifecycle state of a job.
type Status string

const (
	StatusPending           Status = "pending"
	StatusProcessing        Status = "processing"
	StatusExtractingFrames  Status = "extracting-frames"
	StatusScoring           Status = "scoring"
	StatusClassifying       Status = "classifying"
	StatusExtractingProduct Status = "extracting-product"
	StatusGenerating        Status = "generating"
	StatusCompleted         Status = "completed"
	StatusFailed            Status = "failed"
	StatusCancelled         Status = "cancelled"
)

// statusRank encodes the monotonic ordering along the processing path.
// Terminal states rank highest so a terminal job can never move back.
var statusRank = map[Status]int{
	StatusPending:           0,
	StatusProcessing:        1,
	StatusExtractingFrames:  2,
	StatusScoring:           3,
	StatusClassifying:       4,
	StatusExtractingProduct: 5,
	StatusGenerating:        6,
	StatusCompleted:         7,
	StatusFailed:            7,
	StatusCancelled:         7,
}

// IsTerminal reports whether s is one of the terminal states.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// CanTransition reports whether moving from s to next keeps the status
// monotonic along the processing path.
func (s Status) CanTransition(next Status) bool {
	if s.IsTerminal() {
		return false
	}
	return statusRank[next] >= statusRank[s]
}

// Result is the final outcome of a completed job.
type Result struct {
	VariantsDiscovered int                          `json:"variantsDiscovered"`
	FramesAnalyzed     int                          `json:"framesAnalyzed"`
	FinalFrames        []string                     `json:"finalFrames"`
	CommercialImages   map[string]map[string]string `json:"commercialImages"`
}

// Progress is the persisted progress snapshot of a running job.
type Progress struct {
	Status     Status `json:"status"`
	Percentage int    `json:"percentage"`
	Message    string `json:"message,omitempty"`
	Step       int    `json:"step,omitempty"`
	TotalSteps int    `json:"totalSteps,omitempty"`
}

// Job is the persistent job record. Only the columns the pipeline core
// touches are modelled here.
type Job struct {
	ID          string     `db:"id" json:"id"`
	Status      Status     `db:"status" json:"status"`
	VideoURL    string     `db:"video_url" json:"videoUrl"`
	Config      *Config    `db:"-" json:"config,omitempty"`
	Progress    *Progress  `db:"-" json:"progress,omitempty"`
	Result      *Result    `db:"-" json:"result,omitempty"`
	Error       string     `db:"error" json:"error,omitempty"`
	CallbackURL string     `db:"callback_url" json:"callbackUrl,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updatedAt"`
	StartedAt   *time.Time `db:"started_at" json:"startedAt,omitempty"`
	CompletedAt *time.Time `db:"completed_at" json:"completedAt,omitempty"`
}
