// SPDX-FileCopyrightText: 2026 Framelift contributors.
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/framelift/framelift/cmd/framelift/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := app.NewFrameliftCommand(ctx)
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
