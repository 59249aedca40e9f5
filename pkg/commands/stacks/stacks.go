// SPDX-FileCopyrightText: 2026 Framelift contributors.
//
// SPDX-License-Identifier: Apache-2.0

// Package stacks contains the command inspecting and validating stack
// templates.
package stacks

import (
	"context"
	"fmt"
	"os"

	"github.com/go-logr/logr"
	"github.com/mandelsoft/vfs/pkg/osfs"
	"github.com/mandelsoft/vfs/pkg/vfs"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/framelift/framelift/pkg/logger"
	"github.com/framelift/framelift/pkg/pipeline/process"
	"github.com/framelift/framelift/pkg/pipeline/processors"
	"github.com/framelift/framelift/pkg/pipeline/stack"
)

// Options holds the stacks command options.
type Options struct {
	// StackDir is an optional directory of additional stack files.
	StackDir string
}

// NewStacksCommand creates a new stacks command.
func NewStacksCommand(ctx context.Context) *cobra.Command {
	opts := &Options{}
	cmd := &cobra.Command{
		Use:   "stacks",
		Short: "lists and validates the known stack templates",
		Run: func(cmd *cobra.Command, args []string) {
			if err := opts.Run(ctx, logger.Log, osfs.New()); err != nil {
				fmt.Println(err.Error())
				os.Exit(1)
			}
		},
	}
	opts.AddFlags(cmd.Flags())
	return cmd
}

func (o *Options) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.StackDir, "stack-dir", "", "directory with additional stack files")
}

func (o *Options) Run(ctx context.Context, log logr.Logger, fs vfs.FileSystem) error {
	templates := stack.NewBuiltinTemplates()
	if o.StackDir != "" {
		if err := templates.LoadDir(fs, o.StackDir); err != nil {
			return fmt.Errorf("unable to load stack directory: %w", err)
		}
	}

	// Validation only needs the processors' IO declarations, so the
	// registry is built without any live dependencies.
	registry := processors.NewDefaultRegistry(log, processors.Dependencies{})
	runner := stack.NewRunner(registry, log)

	failed := false
	for _, id := range templates.IDs() {
		tmpl, _ := templates.Get(id)
		inputs, err := runner.RequiredInputs(tmpl)
		if err != nil {
			fmt.Printf("%s: INVALID: %s\n", id, err.Error())
			failed = true
			continue
		}
		validation := runner.Validate(tmpl, process.NewIOSet(inputs...))
		if !validation.Valid {
			fmt.Printf("%s: INVALID: %s\n", id, validation.Error)
			failed = true
			continue
		}
		fmt.Printf("%s: ok, %d steps, requires %v\n", id, len(tmpl.Steps), inputs)
	}
	if failed {
		return fmt.Errorf("one or more stacks are invalid")
	}
	return nil
}
