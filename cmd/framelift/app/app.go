// SPDX-FileCopyrightText: 2026 Framelift contributors.
//
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/framelift/framelift/pkg/commands/enqueue"
	"github.com/framelift/framelift/pkg/commands/stacks"
	"github.com/framelift/framelift/pkg/commands/worker"
	"github.com/framelift/framelift/pkg/logger"
	"github.com/framelift/framelift/pkg/version"
)

// NewFrameliftCommand creates the framelift root command.
func NewFrameliftCommand(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "framelift",
		Short: "framelift video processing worker",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			log, err := logger.New(nil)
			if err != nil {
				fmt.Println("unable to setup logger")
				fmt.Println(err.Error())
				os.Exit(1)
			}
			logger.SetLogger(log)
		},
	}

	logger.InitFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewVersionCommand())
	cmd.AddCommand(worker.NewWorkerCommand(ctx))
	cmd.AddCommand(enqueue.NewEnqueueCommand(ctx))
	cmd.AddCommand(stacks.NewStacksCommand(ctx))

	return cmd
}

// NewVersionCommand creates the version command.
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "version",
		Aliases: []string{"v"},
		Short:   "displays the version",
		Run: func(cmd *cobra.Command, args []string) {
			v := version.Get()
			fmt.Printf("%#v", v)
		},
	}
}
