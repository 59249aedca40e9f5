// SPDX-FileCopyrightText: 2026 Framelift contributors.
//
// SPDX-License-Identifier: Apache-2.0

package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Pipeline strategies select the default stack when the job does not pin one.
const (
	StrategyDefault    = "default"
	StrategyClassic    = "classic"
	StrategyCommercial = "commercial"
)

// InsertProcessor describes a processor inserted before or after an anchor
// processor of a stack. Exactly one of After and Before must be set.
type InsertProcessor struct {
	After     string                 `json:"after,omitempty"`
	Before    string                 `json:"before,omitempty"`
	Processor string                 `json:"processor" validate:"required"`
	Options   map[string]interface{} `json:"options,omitempty"`
}

// StackOverlay is the per-job stack configuration supplied at submission or
// at the runPipeline call site.
type StackOverlay struct {
	StackID          string                            `json:"stackId,omitempty"`
	ProcessorSwaps   map[string]string                 `json:"processorSwaps,omitempty"`
	ProcessorOptions map[string]map[string]interface{} `json:"processorOptions,omitempty"`
	InsertProcessors []InsertProcessor                 `json:"insertProcessors,omitempty" validate:"dive"`
}

// Config is the job configuration blob. It is validated against this schema
// and defaulted before the pipeline runs.
type Config struct {
	PipelineStrategy   string        `json:"pipelineStrategy,omitempty" validate:"omitempty,oneof=default classic commercial"`
	CommercialVersions []string      `json:"commercialVersions,omitempty" validate:"omitempty,dive,oneof=square portrait landscape"`
	Stack              *StackOverlay `json:"stack,omitempty"`

	TopKPercent float64 `json:"topKPercent,omitempty" validate:"omitempty,gt=0,lte=1"`
	MinFrames   int     `json:"minFrames,omitempty" validate:"omitempty,min=1"`
	MaxFrames   int     `json:"maxFrames,omitempty" validate:"omitempty,min=1"`

	FramesPerSecond float64 `json:"framesPerSecond,omitempty" validate:"omitempty,gt=0,lte=30"`

	APIRetryAttempts int  `json:"apiRetryAttempts,omitempty" validate:"omitempty,min=1,max=10"`
	APIRetryDelayMs  int  `json:"apiRetryDelayMs,omitempty" validate:"omitempty,min=0"`
	Debug            bool `json:"debug,omitempty"`
}

var configValidator = validator.New()

// ParseConfig unmarshals, validates, and defaults a job configuration blob.
// A nil or empty blob yields the default configuration.
func ParseConfig(raw json.RawMessage) (*Config, error) {
	cfg := &Config{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("unable to parse job config: %w", err)
		}
	}
	if err := configValidator.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid job config: %w", err)
	}
	cfg.ApplyDefaults()
	if cfg.MinFrames > cfg.MaxFrames {
		return nil, fmt.Errorf("invalid job config: minFrames %d exceeds maxFrames %d", cfg.MinFrames, cfg.MaxFrames)
	}
	return cfg, nil
}

// ApplyDefaults fills all unset fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.PipelineStrategy == "" {
		c.PipelineStrategy = StrategyDefault
	}
	if len(c.CommercialVersions) == 0 {
		c.CommercialVersions = []string{"square"}
	}
	if c.TopKPercent == 0 {
		c.TopKPercent = 0.2
	}
	if c.MinFrames == 0 {
		c.MinFrames = 3
	}
	if c.MaxFrames == 0 {
		c.MaxFrames = 10
	}
	if c.FramesPerSecond == 0 {
		c.FramesPerSecond = 2
	}
	if c.APIRetryAttempts == 0 {
		c.APIRetryAttempts = 3
	}
	if c.APIRetryDelayMs == 0 {
		c.APIRetryDelayMs = 1000
	}
}

// StackID returns the stack pinned by the config, if any.
func (c *Config) StackID() string {
	if c == nil || c.Stack == nil {
		return ""
	}
	return c.Stack.StackID
}

// MergeOverlays merges two stack overlays. The overlay wins on leaves; the
// swap and option maps are merged key-wise.
func MergeOverlays(base, overlay *StackOverlay) *StackOverlay {
	if base == nil && overlay == nil {
		return nil
	}
	merged := &StackOverlay{}
	for _, o := range []*StackOverlay{base, overlay} {
		if o == nil {
			continue
		}
		if o.StackID != "" {
			merged.StackID = o.StackID
		}
		for from, to := range o.ProcessorSwaps {
			if merged.ProcessorSwaps == nil {
				merged.ProcessorSwaps = map[string]string{}
			}
			merged.ProcessorSwaps[from] = to
		}
		for id, opts := range o.ProcessorOptions {
			if merged.ProcessorOptions == nil {
				merged.ProcessorOptions = map[string]map[string]interface{}{}
			}
			if merged.ProcessorOptions[id] == nil {
				merged.ProcessorOptions[id] = map[string]interface{}{}
			}
			for k, v := range opts {
				merged.ProcessorOptions[id][k] = v
			}
		}
		merged.InsertProcessors = append(merged.InsertProcessors, o.InsertProcessors...)
	}
	return merged
}
