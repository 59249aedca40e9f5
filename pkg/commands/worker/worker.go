// SPDX-FileCopyrightText: 2026 Framelift contributors.
//
// SPDX-License-Identifier: Apache-2.0

// Package worker contains the command running the queue-backed worker pool.
package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-logr/logr"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/mandelsoft/vfs/pkg/osfs"
	"github.com/mandelsoft/vfs/pkg/vfs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/framelift/framelift/pkg/callback"
	"github.com/framelift/framelift/pkg/config"
	"github.com/framelift/framelift/pkg/jobs"
	"github.com/framelift/framelift/pkg/logger"
	"github.com/framelift/framelift/pkg/pipeline"
	"github.com/framelift/framelift/pkg/pipeline/processors"
	"github.com/framelift/framelift/pkg/pipeline/stack"
	"github.com/framelift/framelift/pkg/provider"
	"github.com/framelift/framelift/pkg/queue"
	"github.com/framelift/framelift/pkg/storage"
)

// Options holds the worker command options.
type Options struct {
	// HealthAddr is the listen address of the health and metrics endpoint.
	HealthAddr string
	// StackDir is an optional directory of additional stack files.
	StackDir string
	// Concurrency overrides the configured worker-pool size when positive.
	Concurrency int
	// Debug keeps work directories on exit.
	Debug bool

	cfg *config.Config
}

// NewWorkerCommand creates a new worker command.
func NewWorkerCommand(ctx context.Context) *cobra.Command {
	opts := &Options{}
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "runs the processing worker pool until interrupted",
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
	fs.StringVar(&o.HealthAddr, "health-addr", ":8081", "listen address of the health and metrics endpoint")
	fs.StringVar(&o.StackDir, "stack-dir", "", "directory with additional stack files")
	fs.IntVar(&o.Concurrency, "concurrency", 0, "number of concurrent jobs, overrides WORKER_CONCURRENCY")
	fs.BoolVar(&o.Debug, "debug", false, "keep work directories for inspection")
}

func (o *Options) Complete(args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if o.Concurrency <= 0 {
		o.Concurrency = cfg.WorkerConcurrency
	}
	o.cfg = cfg
	return nil
}

func (o *Options) Run(ctx context.Context, log logr.Logger, fs vfs.FileSystem) error {
	cfg := o.cfg

	db, err := sqlx.Connect("postgres", cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := jobs.Migrate(db); err != nil {
		db.Close()
		return err
	}
	store := jobs.NewStore(db)

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		db.Close()
		return fmt.Errorf("unable to parse redis url: %w", err)
	}
	rdb := redis.NewClient(redisOpts)

	blobs, err := o.buildBlobStore(ctx, fs, log)
	if err != nil {
		db.Close()
		rdb.Close()
		return err
	}

	templates := stack.NewBuiltinTemplates()
	if o.StackDir != "" {
		if err := templates.LoadDir(fs, o.StackDir); err != nil {
			db.Close()
			rdb.Close()
			return fmt.Errorf("unable to load stack directory: %w", err)
		}
	}

	client := provider.NewClient(60*time.Second, log)
	registry := processors.NewDefaultRegistry(log, processors.Dependencies{
		Blobs:     blobs,
		Bucket:    cfg.S3Bucket,
		Store:     store,
		Client:    client,
		Extractor: processors.NewFFmpegExtractor(cfg.FFmpegBin, fs),
		Endpoints: processors.Endpoints{
			Score:          cfg.ScoreEndpoint,
			Classify:       cfg.ClassifyEndpoint,
			ExtractProduct: cfg.ExtractProductEndpoint,
			Photoroom:      cfg.PhotoroomEndpoint,
			Claid:          cfg.ClaidEndpoint,
			Generate:       cfg.GenerateEndpoint,
		},
		FS: fs,
	})
	log.V(5).Info("registered processors", "summary", registry.Summary())

	service := &pipeline.Service{
		Store:       store,
		Blobs:       blobs,
		Bucket:      cfg.S3Bucket,
		Registry:    registry,
		Templates:   templates,
		FS:          fs,
		TempRoot:    os.TempDir(),
		TempDirName: cfg.TempDirName,
		Debug:       o.Debug || cfg.Debug,
		Log:         log,
	}

	metrics := queue.NewMetrics(prometheus.DefaultRegisterer)
	q := queue.New(rdb, queue.Options{
		Attempts:       cfg.QueueJobAttempts,
		BackoffBase:    time.Duration(cfg.QueueBackoffDelayMs) * time.Millisecond,
		LeaseTimeout:   cfg.JobTimeout() + time.Minute,
		CompletedAge:   time.Duration(cfg.QueueCompletedAgeSeconds) * time.Second,
		FailedAge:      time.Duration(cfg.QueueFailedAgeSeconds) * time.Second,
		CompletedCount: cfg.QueueCompletedCount,
		FailedCount:    cfg.QueueFailedCount,
	}, log)

	dispatcher := callback.NewDispatcher(cfg.CallbackTimeout(), cfg.CallbackMaxRetries, log)
	dispatcher.BackoffBase = time.Duration(cfg.APIRetryDelayMs) * time.Millisecond

	pool := &queue.Pool{
		Queue:       q,
		Store:       store,
		Service:     service,
		Dispatcher:  dispatcher,
		Concurrency: o.Concurrency,
		JobTimeout:  cfg.JobTimeout(),
		Metrics:     metrics,
		Log:         log,
	}

	healthSrv := o.startHealthServer(db, q, log)

	log.Info("worker started", "concurrency", o.Concurrency, "health-addr", o.HealthAddr)
	pool.Run(ctx)
	log.Info("worker drained, shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := healthSrv.Shutdown(shutdownCtx); err != nil {
		log.Error(err, "unable to stop health endpoint")
	}
	if err := db.Close(); err != nil {
		log.Error(err, "unable to close database")
	}
	if err := rdb.Close(); err != nil {
		log.Error(err, "unable to close redis")
	}
	return nil
}

// buildBlobStore creates the S3 store, falling back to a filesystem store
// when no bucket is configured (development only).
func (o *Options) buildBlobStore(ctx context.Context, fs vfs.FileSystem, log logr.Logger) (storage.BlobStore, error) {
	cfg := o.cfg
	if cfg.S3Bucket != "" {
		return storage.NewS3Store(ctx, storage.S3Options{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
		})
	}
	if !cfg.IsDevelopment() {
		return nil, errors.New("a storage bucket must be configured outside development")
	}
	root := filepath.Join(os.TempDir(), cfg.TempDirName, "blobs")
	log.Info("no bucket configured, using filesystem blob store", "root", root)
	return storage.NewVFSStore(fs, root, "file://"+root), nil
}

// startHealthServer serves /healthz and /metrics.
func (o *Options) startHealthServer(db *sqlx.DB, q *queue.Queue, log logr.Logger) *http.Server {
	router := chi.NewRouter()
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		if err := q.Ping(r.Context()); err != nil {
			http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: o.HealthAddr, Handler: router}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(err, "health endpoint failed")
		}
	}()
	return srv
}
