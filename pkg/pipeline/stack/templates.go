// SPDX-FileCopyrightText: 2026 Framelift contributors.
//
// SPDX-License-Identifier: Apache-2.0

package stack

import (
	"github.com/framelift/framelift/pkg/jobs"
)

// Built-in stack ids.
const (
	DefaultStackID    = "default"
	ClassicStackID    = "classic"
	CommercialStackID = "commercial"
)

// NewBuiltinTemplates creates the template set with the built-in stacks.
func NewBuiltinTemplates() *TemplateSet {
	set := NewTemplateSet()

	set.Register(New(DefaultStackID, "Default", []Step{
		{ProcessorID: "download"},
		{ProcessorID: "extract-frames"},
		{ProcessorID: "score-frames"},
		{ProcessorID: "filter-by-score"},
		{ProcessorID: "upload-frames"},
		{ProcessorID: "complete-job"},
	}))

	set.Register(New(ClassicStackID, "Classic", []Step{
		{ProcessorID: "download"},
		{ProcessorID: "extract-frames"},
		{ProcessorID: "score-frames"},
		{ProcessorID: "classify-frames"},
		{ProcessorID: "filter-by-score"},
		{ProcessorID: "photoroom-bg-remove"},
		{ProcessorID: "upload-frames"},
		{ProcessorID: "complete-job"},
	}))

	set.Register(New(CommercialStackID, "Commercial", []Step{
		{ProcessorID: "download"},
		{ProcessorID: "extract-frames"},
		{ProcessorID: "score-frames"},
		{ProcessorID: "classify-frames"},
		{ProcessorID: "filter-by-score"},
		{ProcessorID: "extract-product"},
		{ProcessorID: "photoroom-bg-remove"},
		{ProcessorID: "upload-frames"},
		{ProcessorID: "generate-commercial"},
		{ProcessorID: "complete-job"},
	}))

	return set
}

// DefaultStackFor maps a pipeline strategy onto its default stack id.
func DefaultStackFor(strategy string) string {
	switch strategy {
	case jobs.StrategyClassic:
		return ClassicStackID
	case jobs.StrategyCommercial:
		return CommercialStackID
	default:
		return DefaultStackID
	}
}
