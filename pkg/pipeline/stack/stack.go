// SPDX-FileCopyrightText: 2026 Framelift contributors.
//
// SPDX-License-Identifier: Apache-2.0

// Package stack contains the stack templates and the stack runner that
// validates, configures, and executes ordered processor chains.
package stack

import (
	"fmt"
	"sort"

	"github.com/drone/envsubst"
	"github.com/mandelsoft/vfs/pkg/vfs"
	"sigs.k8s.io/yaml"

	"github.com/framelift/framelift/pkg/pipeline/process"
)

// Step is one processor invocation of a stack with its option bag.
type Step struct {
	ProcessorID string          `json:"processor"`
	Options     process.Options `json:"options,omitempty"`
}

// Stack is an ordered list of processor invocations.
type Stack struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Steps []Step `json:"steps"`
}

// New creates a stack from its steps.
func New(id, name string, steps []Step) *Stack {
	return &Stack{ID: id, Name: name, Steps: steps}
}

// Clone returns a deep copy of the stack so that per-job configuration never
// mutates a shared template.
func (s *Stack) Clone() *Stack {
	steps := make([]Step, len(s.Steps))
	for i, step := range s.Steps {
		steps[i] = Step{ProcessorID: step.ProcessorID, Options: cloneOptions(step.Options)}
	}
	return &Stack{ID: s.ID, Name: s.Name, Steps: steps}
}

func cloneOptions(opts process.Options) process.Options {
	if opts == nil {
		return nil
	}
	out := make(process.Options, len(opts))
	for k, v := range opts {
		if m, ok := v.(map[string]interface{}); ok {
			out[k] = cloneMap(m)
			continue
		}
		out[k] = v
	}
	return out
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		if nested, ok := v.(map[string]interface{}); ok {
			out[k] = cloneMap(nested)
			continue
		}
		out[k] = v
	}
	return out
}

// TemplateSet is the process-wide set of stack templates, populated at
// startup.
type TemplateSet struct {
	order  []string
	stacks map[string]*Stack
}

// NewTemplateSet creates an empty template set.
func NewTemplateSet() *TemplateSet {
	return &TemplateSet{stacks: map[string]*Stack{}}
}

// Register adds a template, replacing any template with the same id.
func (t *TemplateSet) Register(s *Stack) {
	if _, ok := t.stacks[s.ID]; !ok {
		t.order = append(t.order, s.ID)
	}
	t.stacks[s.ID] = s
}

// Get returns the template with the given id.
func (t *TemplateSet) Get(id string) (*Stack, bool) {
	s, ok := t.stacks[id]
	return s, ok
}

// IDs returns all template ids in registration order.
func (t *TemplateSet) IDs() []string {
	return append([]string{}, t.order...)
}

// parsedStackFile is the YAML surface of a stack template file.
type parsedStackFile struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Steps []struct {
		Processor string                 `json:"processor"`
		Options   map[string]interface{} `json:"options,omitempty"`
	} `json:"steps"`
}

// ParseStackFile reads a stack template from a YAML file. Values support
// envsubst syntax resolved against the process environment.
func ParseStackFile(fs vfs.FileSystem, path string) (*Stack, error) {
	data, err := vfs.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("unable to read stack file %s: %w", path, err)
	}
	substituted, err := envsubst.EvalEnv(string(data))
	if err != nil {
		return nil, fmt.Errorf("unable to substitute variables in stack file %s: %w", path, err)
	}

	var parsed parsedStackFile
	if err := yaml.Unmarshal([]byte(substituted), &parsed); err != nil {
		return nil, fmt.Errorf("unable to parse stack file %s: %w", path, err)
	}
	if parsed.ID == "" {
		return nil, fmt.Errorf("stack file %s does not define an id", path)
	}
	if len(parsed.Steps) == 0 {
		return nil, fmt.Errorf("stack file %s does not define any steps", path)
	}

	steps := make([]Step, len(parsed.Steps))
	for i, s := range parsed.Steps {
		if s.Processor == "" {
			return nil, fmt.Errorf("step %d of stack file %s does not name a processor", i, path)
		}
		steps[i] = Step{ProcessorID: s.Processor, Options: s.Options}
	}
	return New(parsed.ID, parsed.Name, steps), nil
}

// LoadDir parses all stack template files of a directory into the set.
func (t *TemplateSet) LoadDir(fs vfs.FileSystem, dir string) error {
	infos, err := vfs.ReadDir(fs, dir)
	if err != nil {
		return fmt.Errorf("unable to read stack directory %s: %w", dir, err)
	}
	names := []string{}
	for _, info := range infos {
		if info.IsDir() {
			continue
		}
		names = append(names, info.Name())
	}
	sort.Strings(names)
	for _, name := range names {
		s, err := ParseStackFile(fs, dir+"/"+name)
		if err != nil {
			return err
		}
		t.Register(s)
	}
	return nil
}
