// SPDX-FileCopyrightText: 2026 Framelift contributors.
//
// SPDX-License-Identifier: Apache-2.0

// Package enqueue contains the command submitting a job: it creates the job
// row and places it on the queue the way the public API would.
package enqueue

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-logr/logr"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/mandelsoft/vfs/pkg/osfs"
	"github.com/mandelsoft/vfs/pkg/vfs"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/framelift/framelift/pkg/callback"
	"github.com/framelift/framelift/pkg/config"
	"github.com/framelift/framelift/pkg/jobs"
	"github.com/framelift/framelift/pkg/logger"
	"github.com/framelift/framelift/pkg/queue"
)

// Options holds the enqueue command options.
type Options struct {
	// VideoURL is the source video to process.
	VideoURL string
	// CallbackURL receives the final result; validated at submission.
	CallbackURL string
	// StackID pins the stack instead of the strategy default.
	StackID string
	// ConfigFile is an optional job configuration file.
	ConfigFile string

	cfg *config.Config
}

// NewEnqueueCommand creates a new enqueue command.
func NewEnqueueCommand(ctx context.Context) *cobra.Command {
	opts := &Options{}
	cmd := &cobra.Command{
		Use:   "enqueue [video-url]",
		Args:  cobra.ExactArgs(1),
		Short: "creates a job for the given video and places it on the queue",
		Run: func(cmd *cobra.Command, args []string) {
			if err := opts.Complete(args); err != nil {
				fmt.Println(err.Error())
				os.Exit(1)
			}

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
	fs.StringVar(&o.CallbackURL, "callback-url", "", "url receiving the final result")
	fs.StringVar(&o.StackID, "stack", "", "stack id overriding the strategy default")
	fs.StringVar(&o.ConfigFile, "config", "", "path to a job configuration file")
}

func (o *Options) Complete(args []string) error {
	o.VideoURL = args[0]
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	o.cfg = cfg
	return nil
}

func (o *Options) Run(ctx context.Context, log logr.Logger, fs vfs.FileSystem) error {
	cfg := o.cfg

	if o.CallbackURL != "" {
		guard := callback.GuardOptions{
			Development:    cfg.IsDevelopment(),
			AllowedDomains: cfg.AllowedCallbackDomains(),
		}
		if err := callback.ValidateCallbackURL(o.CallbackURL, guard); err != nil {
			return err
		}
	}

	job := &jobs.Job{
		VideoURL:    o.VideoURL,
		CallbackURL: o.CallbackURL,
	}
	if o.ConfigFile != "" {
		raw, err := vfs.ReadFile(fs, o.ConfigFile)
		if err != nil {
			return fmt.Errorf("unable to read job config file: %w", err)
		}
		jobCfg, err := jobs.ParseConfig(raw)
		if err != nil {
			return err
		}
		job.Config = jobCfg
	}

	db, err := sqlx.Connect("postgres", cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("unable to connect to database: %w", err)
	}
	defer db.Close()
	if err := jobs.Migrate(db); err != nil {
		return err
	}
	store := jobs.NewStore(db)

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("unable to parse redis url: %w", err)
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()

	if err := store.Create(ctx, job); err != nil {
		return err
	}

	q := queue.New(rdb, queue.Options{
		Attempts:    cfg.QueueJobAttempts,
		BackoffBase: time.Duration(cfg.QueueBackoffDelayMs) * time.Millisecond,
	}, log)
	if err := q.Enqueue(ctx, job.ID, o.StackID); err != nil {
		return err
	}

	log.V(5).Info("job enqueued", "job-id", job.ID, "stack", o.StackID)
	fmt.Println(job.ID)
	return nil
}
