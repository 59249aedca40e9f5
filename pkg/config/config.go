// SPDX-FileCopyrightText: 2026 Framelift contributors.
//
// SPDX-License-Identifier: Apache-2.0

// Package config loads the process-wide worker configuration from the
// environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config is the process-wide configuration of the worker.
type Config struct {
	Environment string `mapstructure:"ENVIRONMENT" validate:"oneof=development staging production"`
	Debug       bool   `mapstructure:"DEBUG"`

	DatabaseURL string `mapstructure:"DATABASE_URL" validate:"required"`
	RedisURL    string `mapstructure:"REDIS_URL" validate:"required"`

	S3Bucket    string `mapstructure:"S3_BUCKET"`
	S3Region    string `mapstructure:"S3_REGION"`
	S3Endpoint  string `mapstructure:"S3_ENDPOINT"`
	S3AccessKey string `mapstructure:"S3_ACCESS_KEY"`
	S3SecretKey string `mapstructure:"S3_SECRET_KEY"`

	FFmpegBin   string `mapstructure:"FFMPEG_BIN"`
	TempDirName string `mapstructure:"TEMP_DIR_NAME"`

	WorkerConcurrency int `mapstructure:"WORKER_CONCURRENCY" validate:"min=1"`
	JobTimeoutMs      int `mapstructure:"JOB_TIMEOUT_MS" validate:"min=1000"`

	CallbackTimeoutMs      int    `mapstructure:"CALLBACK_TIMEOUT_MS" validate:"min=1000"`
	CallbackMaxRetries     int    `mapstructure:"CALLBACK_MAX_RETRIES" validate:"min=1,max=10"`
	CallbackAllowedDomains string `mapstructure:"CALLBACK_ALLOWED_DOMAINS"`

	APIRetryDelayMs int `mapstructure:"API_RETRY_DELAY_MS" validate:"min=0"`

	QueueJobAttempts          int   `mapstructure:"QUEUE_JOB_ATTEMPTS" validate:"min=1"`
	QueueBackoffDelayMs       int   `mapstructure:"QUEUE_BACKOFF_DELAY_MS" validate:"min=0"`
	QueueCompletedAgeSeconds  int   `mapstructure:"QUEUE_COMPLETED_AGE_SECONDS" validate:"min=1"`
	QueueFailedAgeSeconds     int   `mapstructure:"QUEUE_FAILED_AGE_SECONDS" validate:"min=1"`
	QueueCompletedCount       int64 `mapstructure:"QUEUE_COMPLETED_COUNT" validate:"min=1"`
	QueueFailedCount          int64 `mapstructure:"QUEUE_FAILED_COUNT" validate:"min=1"`

	ScoreEndpoint          string `mapstructure:"SCORE_ENDPOINT"`
	ClassifyEndpoint       string `mapstructure:"CLASSIFY_ENDPOINT"`
	ExtractProductEndpoint string `mapstructure:"EXTRACT_PRODUCT_ENDPOINT"`
	PhotoroomEndpoint      string `mapstructure:"PHOTOROOM_ENDPOINT"`
	ClaidEndpoint          string `mapstructure:"CLAID_ENDPOINT"`
	GenerateEndpoint       string `mapstructure:"GENERATE_ENDPOINT"`
}

var configValidator = validator.New()

// Load reads the configuration from the environment and validates it.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("DEBUG", false)
	v.SetDefault("FFMPEG_BIN", "ffmpeg")
	v.SetDefault("TEMP_DIR_NAME", "framelift")
	v.SetDefault("WORKER_CONCURRENCY", 2)
	v.SetDefault("JOB_TIMEOUT_MS", 10*60*1000)
	v.SetDefault("CALLBACK_TIMEOUT_MS", 30*1000)
	v.SetDefault("CALLBACK_MAX_RETRIES", 3)
	v.SetDefault("API_RETRY_DELAY_MS", 1000)
	v.SetDefault("QUEUE_JOB_ATTEMPTS", 3)
	v.SetDefault("QUEUE_BACKOFF_DELAY_MS", 5000)
	v.SetDefault("QUEUE_COMPLETED_AGE_SECONDS", 24*60*60)
	v.SetDefault("QUEUE_FAILED_AGE_SECONDS", 7*24*60*60)
	v.SetDefault("QUEUE_COMPLETED_COUNT", 100)
	v.SetDefault("QUEUE_FAILED_COUNT", 1000)

	v.AutomaticEnv()
	for _, key := range []string{
		"ENVIRONMENT", "DEBUG", "DATABASE_URL", "REDIS_URL",
		"S3_BUCKET", "S3_REGION", "S3_ENDPOINT", "S3_ACCESS_KEY", "S3_SECRET_KEY",
		"FFMPEG_BIN", "TEMP_DIR_NAME",
		"WORKER_CONCURRENCY", "JOB_TIMEOUT_MS",
		"CALLBACK_TIMEOUT_MS", "CALLBACK_MAX_RETRIES", "CALLBACK_ALLOWED_DOMAINS",
		"API_RETRY_DELAY_MS",
		"QUEUE_JOB_ATTEMPTS", "QUEUE_BACKOFF_DELAY_MS",
		"QUEUE_COMPLETED_AGE_SECONDS", "QUEUE_FAILED_AGE_SECONDS",
		"QUEUE_COMPLETED_COUNT", "QUEUE_FAILED_COUNT",
		"SCORE_ENDPOINT", "CLASSIFY_ENDPOINT", "EXTRACT_PRODUCT_ENDPOINT",
		"PHOTOROOM_ENDPOINT", "CLAID_ENDPOINT", "GENERATE_ENDPOINT",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("unable to bind %s: %w", key, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to load configuration: %w", err)
	}
	if err := configValidator.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// IsDevelopment reports whether the process runs in a development
// environment.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// JobTimeout returns the job timeout as a duration.
func (c *Config) JobTimeout() time.Duration {
	return time.Duration(c.JobTimeoutMs) * time.Millisecond
}

// CallbackTimeout returns the per-attempt callback timeout as a duration.
func (c *Config) CallbackTimeout() time.Duration {
	return time.Duration(c.CallbackTimeoutMs) * time.Millisecond
}

// AllowedCallbackDomains splits the comma-separated allow-list.
func (c *Config) AllowedCallbackDomains() []string {
	if strings.TrimSpace(c.CallbackAllowedDomains) == "" {
		return nil
	}
	parts := strings.Split(c.CallbackAllowedDomains, ",")
	domains := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			domains = append(domains, p)
		}
	}
	return domains
}
