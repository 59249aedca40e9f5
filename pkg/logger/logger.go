// SPDX-FileCopyrightText: 2026 Framelift contributors.
//
// SPDX-License-Identifier: Apache-2.0

package logger

import (
	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log is the process-wide logger. It is replaced by SetLogger during command
// setup and defaults to a silent logger so that library code can always log.
var Log logr.Logger = logr.Discard()

var configFromFlags = Config{}

// Config contains the configurable options of the logger.
type Config struct {
	// Development configures the zap development mode (human readable output,
	// stacktraces on warnings).
	Development bool
	// Cli configures a console encoding optimized for terminal output.
	Cli bool
	// Verbosity is the maximum enabled log level (higher means chattier).
	Verbosity int
	DisableStacktrace bool
	DisableCaller     bool
	DisableTimestamp  bool
}

// InitFlags registers the logger flags on the given flag set.
func InitFlags(flagset *pflag.FlagSet) {
	if flagset == nil {
		flagset = pflag.CommandLine
	}
	flagset.IntVarP(&configFromFlags.Verbosity, "verbosity", "v", 1, "number for the log level verbosity")
	flagset.BoolVar(&configFromFlags.DisableStacktrace, "disable-stacktrace", true, "disable the stacktrace of error logs")
	flagset.BoolVar(&configFromFlags.DisableCaller, "disable-caller", true, "disable the caller of logs")
	flagset.BoolVar(&configFromFlags.DisableTimestamp, "disable-timestamp", true, "disable timestamp output")
	flagset.BoolVar(&configFromFlags.Development, "dev", false, "enable development logging which result in console encoding, enabled stacktrace and enabled caller")
}

// New creates a new logger for the given config.
// If config is nil, the configuration parsed from the flags is used.
func New(config *Config) (logr.Logger, error) {
	if config == nil {
		config = &configFromFlags
	}
	zapCfg := determineZapConfig(config)

	zapLog, err := zapCfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return logr.Logger{}, err
	}
	return zapr.NewLogger(zapLog), nil
}

// NewCliLogger creates a new logger for cli usage.
// CLI usage means that by default:
// - the default dev config
// - encoding is console
// - timestamps are disabled (can be still enabled by the flag)
// - level are color encoded
func NewCliLogger() (logr.Logger, error) {
	config := configFromFlags
	config.Cli = true
	return New(&config)
}

// SetLogger replaces the process-wide logger.
func SetLogger(log logr.Logger) {
	Log = log
}

func determineZapConfig(loggerConfig *Config) zap.Config {
	var zapCfg zap.Config
	if loggerConfig.Development || loggerConfig.Cli {
		zapCfg = zap.NewDevelopmentConfig()
		if loggerConfig.Cli {
			zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
			zapCfg.DisableStacktrace = true
		}
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	if loggerConfig.DisableStacktrace {
		zapCfg.DisableStacktrace = true
	}
	if loggerConfig.DisableCaller {
		zapCfg.DisableCaller = true
	}
	if loggerConfig.DisableTimestamp {
		zapCfg.EncoderConfig.TimeKey = ""
	}

	level := int8(loggerConfig.Verbosity) * -1
	zapCfg.Level = zap.NewAtomicLevelAt(zapcore.Level(level))

	return zapCfg
}
