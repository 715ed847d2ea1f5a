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
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/workforce-planning/capacity-intelligence/api/v1alpha1"
	"github.com/workforce-planning/capacity-intelligence/internal/intelligence"
)

func newIntelligenceCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "intelligence",
		Short: "Composite report: utilization, trends, bottlenecks, predictions and recommendations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, opts, func(ctx context.Context, e *intelligence.Engine) (any, error) {
				return e.GetCapacityIntelligence(ctx, opts.filters())
			})
		},
	}
}

func newPredictCommand(opts *globalOptions) *cobra.Command {
	var scenarios []string
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Forecast capacity and demand",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req := intelligence.PredictionOptions{Filters: opts.filters()}
			for _, s := range scenarios {
				req.Scenarios = append(req.Scenarios, v1alpha1.ForecastScenario(s))
			}
			return run(cmd, opts, func(ctx context.Context, e *intelligence.Engine) (any, error) {
				return e.GetCapacityPredictions(ctx, req)
			})
		},
	}
	addHorizonFlag(cmd)
	cmd.Flags().Float64("confidence", 0, "Confidence threshold that marks predictions (default from config)")
	cmd.Flags().StringSliceVar(&scenarios, "scenario", nil, "Scenarios to return: optimistic, realistic, pessimistic")
	return cmd
}

func newBottlenecksCommand(opts *globalOptions) *cobra.Command {
	var severity string
	cmd := &cobra.Command{
		Use:   "bottlenecks",
		Short: "Current, predicted and historical bottlenecks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req := intelligence.BottleneckOptions{Filters: opts.filters()}
			if severity != "" {
				sev, err := v1alpha1.ParseSeverity(severity)
				if err != nil {
					return err
				}
				req.MinSeverity = sev
			}
			return run(cmd, opts, func(ctx context.Context, e *intelligence.Engine) (any, error) {
				return e.IdentifyBottlenecks(ctx, req)
			})
		},
	}
	addHorizonFlag(cmd)
	cmd.Flags().StringVar(&severity, "severity", "", "Minimum severity: low, medium, high or critical")
	return cmd
}

// scenarioFile is the layout of a --file argument.
type scenarioFile struct {
	Options   v1alpha1.AnalysisOptions `yaml:"options"`
	Scenarios []v1alpha1.Scenario      `yaml:"scenarios"`
}

func loadScenarios(path string) (*scenarioFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenarios %s: %w", path, err)
	}
	var f scenarioFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decoding scenarios %s: %w", path, err)
	}
	if len(f.Scenarios) == 0 {
		return nil, fmt.Errorf("%s defines no scenarios", path)
	}
	return &f, nil
}

func newScenarioCommand(opts *globalOptions) *cobra.Command {
	var (
		path                 string
		risk, optimize, cost bool
	)
	cmd := &cobra.Command{
		Use:   "scenario",
		Short: "Simulate what-if scenarios against the current baseline",
		Long: `Simulates the scenarios in --file against the current baseline. A file with
more than one scenario compares them in parallel.

  options:
    includeRiskAnalysis: true
  scenarios:
    - name: new project
      changes:
        - kind: add_project
          projectId: p9
          departmentId: eng
          hoursPerPeriod: 100`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := loadScenarios(path)
			if err != nil {
				return err
			}
			analysis := f.Options
			analysis.IncludeRiskAnalysis = analysis.IncludeRiskAnalysis || risk
			analysis.IncludeOptimizations = analysis.IncludeOptimizations || optimize
			analysis.IncludeCostImpact = analysis.IncludeCostImpact || cost
			if h, _ := cmd.Flags().GetString("horizon"); h != "" {
				analysis.Horizon = h
			}

			return run(cmd, opts, func(ctx context.Context, e *intelligence.Engine) (any, error) {
				if len(f.Scenarios) == 1 {
					return e.RunScenarioAnalysis(ctx, opts.filters(), f.Scenarios[0], analysis)
				}
				return e.CompareScenarios(ctx, opts.filters(), f.Scenarios, analysis)
			})
		},
	}
	cmd.Flags().StringVarP(&path, "file", "f", "", "Scenario YAML file")
	_ = cmd.MarkFlagRequired("file")
	cmd.Flags().String("horizon", "", "Forecast horizon for both profiles, e.g. 3m")
	cmd.Flags().BoolVar(&risk, "risk", false, "Include risk analysis")
	cmd.Flags().BoolVar(&optimize, "optimize", false, "Include recommendations for new bottlenecks")
	cmd.Flags().BoolVar(&cost, "cost", false, "Include cost impact")
	return cmd
}

func newPatternsCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "patterns",
		Short: "Peak and low periods, seasonality, trend and anomalies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, opts, func(ctx context.Context, e *intelligence.Engine) (any, error) {
				return e.AnalyzeUtilizationPatterns(ctx, opts.filters())
			})
		},
	}
}

func newSkillsCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "skills",
		Short: "Forecast supply and demand per skill",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, opts, func(ctx context.Context, e *intelligence.Engine) (any, error) {
				return e.ForecastSkillDemand(ctx, opts.filters(), "")
			})
		},
	}
	addHorizonFlag(cmd)
	return cmd
}

// addHorizonFlag adds --horizon, bound to the configured default horizon.
func addHorizonFlag(cmd *cobra.Command) {
	cmd.Flags().String("horizon", "", "Forecast horizon, e.g. 3m (default from config)")
}
