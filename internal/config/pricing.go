package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// PricingPolicy is the operator-tunable part of quote calculation.
// Monetary fields are integer cents, rates are basis points.
type PricingPolicy struct {
	CommissionRateBps int64   `mapstructure:"commissionRateBps"`
	AllowedDurations  []int64 `mapstructure:"allowedDurations"`
	MinAmount         int64   `mapstructure:"minAmount"`
	MaxAmount         int64   `mapstructure:"maxAmount"`
}

func DefaultPricingPolicy() PricingPolicy {
	return PricingPolicy{
		CommissionRateBps: 1200,
		AllowedDurations:  []int64{30, 60, 90, 120, 180, 240},
		MinAmount:         50,
		MaxAmount:         1_000_000_00,
	}
}

type PricingPolicyHolder struct {
	current atomic.Value // holds PricingPolicy
}

func NewPricingPolicyHolder() (*PricingPolicyHolder, error) {
	v := viper.New()

	v.SetConfigName("pricing")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/harbor/config")
	v.AddConfigPath("/etc/harbor")
	v.AddConfigPath(".")

	v.SetEnvPrefix("HARBOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultPricingPolicy()
		v.SetDefault("pricing.commissionRateBps", defaults.CommissionRateBps)
		v.SetDefault("pricing.allowedDurations", defaults.AllowedDurations)
		v.SetDefault("pricing.minAmount", defaults.MinAmount)
		v.SetDefault("pricing.maxAmount", defaults.MaxAmount)
	}

	var policy PricingPolicy
	if err := v.UnmarshalKey("pricing", &policy); err != nil {
		return nil, err
	}
	if err := validatePricingPolicy(policy); err != nil {
		return nil, err
	}

	holder := &PricingPolicyHolder{}
	holder.current.Store(policy)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated PricingPolicy
		if err := v.UnmarshalKey("pricing", &updated); err != nil {
			log.Printf("[pricing-config] reload failed: %v", err)
			return
		}
		if err := validatePricingPolicy(updated); err != nil {
			log.Printf("[pricing-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[pricing-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *PricingPolicyHolder) Get() PricingPolicy {
	return h.current.Load().(PricingPolicy)
}

// NewStaticPricingPolicyHolder returns a holder pinned to the given policy.
// Used by tests and tools that must not touch the filesystem.
func NewStaticPricingPolicyHolder(policy PricingPolicy) *PricingPolicyHolder {
	holder := &PricingPolicyHolder{}
	holder.current.Store(policy)
	return holder
}

func validatePricingPolicy(policy PricingPolicy) error {
	if policy.CommissionRateBps < 0 || policy.CommissionRateBps > 10_000 {
		return errors.New("pricing.commissionRateBps out of range")
	}
	if len(policy.AllowedDurations) == 0 {
		return errors.New("pricing.allowedDurations cannot be empty")
	}
	for _, d := range policy.AllowedDurations {
		if d <= 0 {
			return errors.New("pricing.allowedDurations must be positive")
		}
	}
	if policy.MinAmount < 0 {
		return errors.New("pricing.minAmount cannot be negative")
	}
	if policy.MaxAmount > 0 && policy.MaxAmount < policy.MinAmount {
		return errors.New("pricing.maxAmount below pricing.minAmount")
	}
	return nil
}
