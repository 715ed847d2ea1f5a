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

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/workforce-planning/capacity-intelligence/internal/collector"
	"github.com/workforce-planning/capacity-intelligence/internal/collector/fixture"
	"github.com/workforce-planning/capacity-intelligence/internal/collector/sqlsource"
	"github.com/workforce-planning/capacity-intelligence/internal/config"
	"github.com/workforce-planning/capacity-intelligence/internal/intelligence"
	"github.com/workforce-planning/capacity-intelligence/internal/logging"
	"github.com/workforce-planning/capacity-intelligence/internal/metrics"
)

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	configPath string

	fixturePath string
	driver      string
	dsn         string

	output      string
	asOf        string
	logLevel    string
	development bool

	metricsAddr string
	linger      time.Duration

	department string
	skill      string
}

func (o *globalOptions) filters() intelligence.Filters {
	return intelligence.Filters{DepartmentID: o.department, SkillID: o.skill}
}

func newRootCommand(stdout io.Writer) *cobra.Command {
	opts := &globalOptions{}
	cmd := &cobra.Command{
		Use:   "capacity-intel",
		Short: "Workforce capacity intelligence",
		Long: `Aggregates allocations and capacity snapshots into utilization profiles and
reports trends, bottlenecks, forecasts, scenario outcomes and recommendations.

Examples:
  capacity-intel intelligence --fixture workforce.yaml
  capacity-intel bottlenecks --fixture workforce.yaml --severity high
  capacity-intel predict --driver postgres --dsn "$DSN" --horizon 6m -o yaml
  capacity-intel scenario --fixture workforce.yaml --file scenarios.yaml --risk`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if opts.output != "json" && opts.output != "yaml" {
				return fmt.Errorf("unknown output format %q: want json or yaml", opts.output)
			}
			return nil
		},
	}
	cmd.SetOut(stdout)

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "Engine configuration YAML file")
	flags.StringVar(&opts.fixturePath, "fixture", "", "Read records from a YAML fixture file")
	flags.StringVar(&opts.driver, "driver", "", "Read records from a database: sqlite3 or postgres")
	flags.StringVar(&opts.dsn, "dsn", "", "Database connection string for --driver")
	flags.StringVarP(&opts.output, "output", "o", "json", "Output format: json or yaml")
	flags.StringVar(&opts.asOf, "as-of", "", "Evaluate as of this date (YYYY-MM-DD or RFC3339) instead of now")
	flags.StringVar(&opts.logLevel, "log-level", "info", "Log level: info, debug or trace")
	flags.BoolVar(&opts.development, "log-development", false, "Human readable console logs")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
	flags.DurationVar(&opts.linger, "metrics-linger", 0, "Keep serving metrics this long after the command finishes")
	flags.StringVar(&opts.department, "department", "", "Restrict the analysis to one department")
	flags.StringVar(&opts.skill, "skill", "", "Restrict the analysis to holders of one skill")
	flags.String("lookback", "", "Analysed timeframe ending with the current period, e.g. 6m")
	flags.String("granularity", "", "Period granularity: daily, weekly or monthly")
	cmd.MarkFlagsMutuallyExclusive("fixture", "driver")

	cmd.AddCommand(
		newIntelligenceCommand(opts),
		newPredictCommand(opts),
		newBottlenecksCommand(opts),
		newScenarioCommand(opts),
		newPatternsCommand(opts),
		newSkillsCommand(opts),
	)
	return cmd
}

// action is the body of a subcommand once the engine is built.
type action func(ctx context.Context, engine *intelligence.Engine) (any, error)

// run builds the engine for cmd, runs fn and writes its result.
func run(cmd *cobra.Command, opts *globalOptions, fn action) error {
	ctx := cmd.Context()

	logger, err := logging.NewLogger(logging.Options{Level: opts.logLevel, Development: opts.development})
	if err != nil {
		return err
	}
	ctx = logr.NewContext(ctx, logger)

	cfg, err := config.Load(opts.configPath, cmd.Flags())
	if err != nil {
		return err
	}

	source, closeSource, err := openSource(ctx, opts)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeSource(); err != nil {
			logger.Error(err, "Closing data source")
		}
	}()

	engineOpts := []intelligence.Option{intelligence.WithLogger(logger)}
	if opts.asOf != "" {
		at, err := parseDate(opts.asOf)
		if err != nil {
			return err
		}
		engineOpts = append(engineOpts, intelligence.WithClock(func() time.Time { return at }))
	}
	if opts.metricsAddr != "" {
		reg := prometheus.NewRegistry()
		engineOpts = append(engineOpts, intelligence.WithRecorder(metrics.NewRecorder(reg)))
		stopMetrics, err := serveMetrics(logger, opts.metricsAddr, reg)
		if err != nil {
			return err
		}
		defer stopMetrics(opts.linger)
	}

	engine, err := intelligence.NewEngine(source, cfg, engineOpts...)
	if err != nil {
		return err
	}
	result, err := fn(ctx, engine)
	if err != nil {
		return err
	}
	return write(cmd.OutOrStdout(), opts.output, result)
}

// openSource returns the data source selected by the flags and its closer.
func openSource(ctx context.Context, opts *globalOptions) (collector.DataSource, func() error, error) {
	switch {
	case opts.fixturePath != "":
		src, err := fixture.Load(opts.fixturePath)
		if err != nil {
			return nil, nil, err
		}
		return src, func() error { return nil }, nil
	case opts.driver != "":
		src, err := sqlsource.Open(ctx, opts.driver, opts.dsn)
		if err != nil {
			return nil, nil, err
		}
		return src, src.Close, nil
	default:
		return nil, nil, errors.New("one of --fixture or --driver is required")
	}
}

// serveMetrics exposes reg on addr until the returned func is called.
func serveMetrics(logger logr.Logger, addr string, reg *prometheus.Registry) (func(linger time.Duration), error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(err, "Metrics server stopped")
		}
	}()
	logger.Info("Serving metrics", "address", listener.Addr().String())

	return func(linger time.Duration) {
		if linger > 0 {
			logger.Info("Lingering for metrics scrape", "duration", linger)
			time.Sleep(linger)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Error(err, "Shutting down metrics server")
		}
	}, nil
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD or RFC3339", s)
	}
	return t, nil
}
