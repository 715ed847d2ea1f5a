/*
Copyright 2025 The llm-d Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package logging builds the logr.Logger used across the engine.
//
// Loggers are zap-backed and handed to stages through the request context:
//
//	logger, _ := logging.NewLogger(logging.Options{Level: "debug"})
//	ctx = logr.NewContext(ctx, logger)
//	logr.FromContextOrDiscard(ctx).V(logging.DEBUG).Info("aggregated", "periods", n)
package logging

import (
	"fmt"
	"strings"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Verbosity levels passed to logger.V().
const (
	INFO  = 0
	DEBUG = 1
	TRACE = 2
)

// Options configures NewLogger.
type Options struct {
	// Level is one of "info", "debug" or "trace".
	Level string
	// Development switches to the human readable console encoder.
	Development bool
}

// NewLogger creates a zap-backed logr.Logger.
func NewLogger(opts Options) (logr.Logger, error) {
	level, err := zapLevel(opts.Level)
	if err != nil {
		return logr.Discard(), err
	}

	var cfg zap.Config
	if opts.Development {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)

	zl, err := cfg.Build()
	if err != nil {
		return logr.Discard(), fmt.Errorf("building zap logger: %w", err)
	}
	return zapr.NewLogger(zl), nil
}

// NewTestLogger returns a development logger at trace verbosity for test suites.
func NewTestLogger() logr.Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.Level(-TRACE))
	zl, err := cfg.Build()
	if err != nil {
		return logr.Discard()
	}
	return zapr.NewLogger(zl)
}

// zapLevel maps a verbosity name onto zap's negative levels, where V(n) logs at -n.
func zapLevel(name string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "info":
		return zapcore.Level(-INFO), nil
	case "debug":
		return zapcore.Level(-DEBUG), nil
	case "trace":
		return zapcore.Level(-TRACE), nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", name)
	}
}
