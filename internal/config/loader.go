package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. CAPINTEL_FORECAST_DECAYFACTOR.
const EnvPrefix = "CAPINTEL"

// FlagBindings maps config keys to command line flag names bound by Load.
var FlagBindings = map[string]string{
	"forecast.defaultHorizon":      "horizon",
	"forecast.confidenceThreshold": "confidence",
	"timeframe.lookback":           "lookback",
	"timeframe.granularity":        "granularity",
}

// Load builds the engine configuration from defaults, an optional YAML file,
// CAPINTEL_* environment variables and bound flags, in increasing precedence.
// Flags absent from the set are ignored.
func Load(path string, flags *pflag.FlagSet) (*EngineConfig, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	if flags != nil {
		for key, name := range FlagBindings {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("binding flag %s: %w", name, err)
				}
			}
		}
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// setDefaults registers every scalar key so environment overrides reach Unmarshal.
func setDefaults(v *viper.Viper, d *EngineConfig) {
	v.SetDefault("aggregator.minSkillProficiency", d.Aggregator.MinSkillProficiency)

	v.SetDefault("trend.stableThreshold", d.Trend.StableThreshold)
	v.SetDefault("trend.fullConfidencePeriods", d.Trend.FullConfidencePeriods)
	v.SetDefault("trend.varianceSensitivity", d.Trend.VarianceSensitivity)
	v.SetDefault("trend.seasonalityThreshold", d.Trend.SeasonalityThreshold)
	v.SetDefault("trend.anomalyStdDevs", d.Trend.AnomalyStdDevs)

	v.SetDefault("bottleneck.breakpoints.medium", d.Bottleneck.Breakpoints.Medium)
	v.SetDefault("bottleneck.breakpoints.high", d.Bottleneck.Breakpoints.High)
	v.SetDefault("bottleneck.breakpoints.critical", d.Bottleneck.Breakpoints.Critical)
	v.SetDefault("bottleneck.projectWeight", d.Bottleneck.ProjectWeight)
	v.SetDefault("bottleneck.persistencePeriods", d.Bottleneck.PersistencePeriods)

	v.SetDefault("forecast.defaultHorizon", d.Forecast.DefaultHorizon)
	v.SetDefault("forecast.confidenceThreshold", d.Forecast.ConfidenceThreshold)
	v.SetDefault("forecast.decayFactor", d.Forecast.DecayFactor)
	v.SetDefault("forecast.minHistoryPeriods", d.Forecast.MinHistoryPeriods)
	v.SetDefault("forecast.insufficientHistoryConfidence", d.Forecast.InsufficientHistoryConfidence)
	v.SetDefault("forecast.optimistic.capacity", d.Forecast.Optimistic.Capacity)
	v.SetDefault("forecast.optimistic.demand", d.Forecast.Optimistic.Demand)
	v.SetDefault("forecast.pessimistic.capacity", d.Forecast.Pessimistic.Capacity)
	v.SetDefault("forecast.pessimistic.demand", d.Forecast.Pessimistic.Demand)

	v.SetDefault("scenario.volatilityThreshold", d.Scenario.VolatilityThreshold)
	v.SetDefault("scenario.hourlyRate", d.Scenario.HourlyRate)

	v.SetDefault("recommendation.hourlyValue", d.Recommendation.HourlyValue)
	v.SetDefault("recommendation.impactHorizonPeriods", d.Recommendation.ImpactHorizonPeriods)
	v.SetDefault("recommendation.sustainedPeriods", d.Recommendation.SustainedPeriods)
	v.SetDefault("recommendation.overUtilization", d.Recommendation.OverUtilization)
	v.SetDefault("recommendation.underUtilization", d.Recommendation.UnderUtilization)
	for action, rate := range d.Recommendation.Actions {
		prefix := "recommendation.actions." + string(action)
		v.SetDefault(prefix+".cost", rate.Cost)
		v.SetDefault(prefix+".days", rate.Days)
		v.SetDefault(prefix+".resolutionFactor", rate.ResolutionFactor)
	}

	v.SetDefault("timeframe.lookback", d.Timeframe.Lookback)
	v.SetDefault("timeframe.granularity", string(d.Timeframe.Granularity))

	v.SetDefault("cache.enabled", d.Cache.Enabled)
	v.SetDefault("cache.ttl", d.Cache.TTL)
	v.SetDefault("cache.maxEntries", d.Cache.MaxEntries)
}
