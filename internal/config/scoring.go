package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// ScoringOptions are the tunable knobs of the scoring pipeline. Values load
// from sieve.yml when present and fall back to the documented defaults.
type ScoringOptions struct {
	HoldThreshold   float64 `mapstructure:"holdThreshold"`
	ReviewThreshold float64 `mapstructure:"reviewThreshold"`

	CandidateCap int `mapstructure:"candidateCap"`

	SamePOTotalTol   float64 `mapstructure:"samePoTotalTol"`
	SamePOWindowDays int     `mapstructure:"samePoWindowDays"`

	BankChangeLookbackMonths int `mapstructure:"bankChangeLookbackMonths"`
	ColdStartInvoices        int `mapstructure:"coldStartInvoices"`

	LineCostAlpha float64 `mapstructure:"lineCostAlpha"`
	LineCostBeta  float64 `mapstructure:"lineCostBeta"`
	LineCostGamma float64 `mapstructure:"lineCostGamma"`

	FeatureConcurrency int `mapstructure:"featureConcurrency"`
	CaseSLAHours       int `mapstructure:"caseSlaHours"`
}

func DefaultScoringOptions() ScoringOptions {
	return ScoringOptions{
		HoldThreshold:   80,
		ReviewThreshold: 50,

		CandidateCap: 200,

		SamePOTotalTol:   0.005,
		SamePOWindowDays: 30,

		BankChangeLookbackMonths: 12,
		ColdStartInvoices:        50,

		LineCostAlpha: 0.7,
		LineCostBeta:  0.2,
		LineCostGamma: 0.1,

		FeatureConcurrency: 8,
		CaseSLAHours:       48,
	}
}

// ScoringOptionsHolder hands out the current options and swaps them on file
// change without restarting the process.
type ScoringOptionsHolder struct {
	current atomic.Value // holds ScoringOptions
}

func NewScoringOptionsHolder() (*ScoringOptionsHolder, error) {
	v := viper.New()

	v.SetConfigName("sieve")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/sieve")
	v.AddConfigPath(".")

	v.SetEnvPrefix("SIEVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultScoringOptions()
	v.SetDefault("scoring", defaults)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	opts := defaults
	if err := v.UnmarshalKey("scoring", &opts); err != nil {
		return nil, err
	}
	if err := validateScoringOptions(opts); err != nil {
		return nil, err
	}

	holder := &ScoringOptionsHolder{}
	holder.current.Store(opts)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated := DefaultScoringOptions()
		if err := v.UnmarshalKey("scoring", &updated); err != nil {
			log.Printf("[scoring-config] reload failed: %v", err)
			return
		}
		if err := validateScoringOptions(updated); err != nil {
			log.Printf("[scoring-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
	})

	return holder, nil
}

func (h *ScoringOptionsHolder) Current() ScoringOptions {
	if h == nil {
		return DefaultScoringOptions()
	}
	if opts, ok := h.current.Load().(ScoringOptions); ok {
		return opts
	}
	return DefaultScoringOptions()
}

func validateScoringOptions(opts ScoringOptions) error {
	if opts.HoldThreshold < 0 || opts.HoldThreshold > 100 ||
		opts.ReviewThreshold < 0 || opts.ReviewThreshold > 100 {
		return errors.New("thresholds must be between 0 and 100")
	}
	if opts.HoldThreshold < opts.ReviewThreshold {
		return errors.New("holdThreshold must be >= reviewThreshold")
	}
	if opts.CandidateCap <= 0 {
		return errors.New("candidateCap must be positive")
	}
	if opts.FeatureConcurrency <= 0 {
		return errors.New("featureConcurrency must be positive")
	}
	return nil
}
