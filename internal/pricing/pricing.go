// Package pricing turns a service's price terms into the amounts a
// booking will charge. All arithmetic is integer cents.
package pricing

import (
	"errors"

	"github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/config"
)

// Model identifies how a service is priced.
type Model string

const (
	ModelFixed    Model = "fixed"
	ModelHourly   Model = "hourly"
	ModelQuote    Model = "quote"
	ModelDonation Model = "donation"
)

var (
	ErrUnsupportedModel = errors.New("unsupported_pricing_model")
	ErrInvalidDuration  = errors.New("invalid_duration")
	ErrInvalidAmount    = errors.New("invalid_amount")
)

// Quote is the amount breakdown for a booking. Upfront and Completion
// always sum to Total. Commission is informational and never deducted
// from either installment.
type Quote struct {
	Total      int64 `json:"total"`
	Upfront    int64 `json:"upfront"`
	Completion int64 `json:"completion"`
	Commission int64 `json:"commission"`

	// RequiresManualAmount is set when the model defers the amount to
	// a negotiated quote or a donor-chosen value.
	RequiresManualAmount bool `json:"requires_manual_amount"`
}

// Input carries the price terms snapshotted from the service catalog.
type Input struct {
	Model           Model
	FixedPrice      int64
	HourlyRate      int64
	DurationMinutes int64
}

type Calculator struct {
	policy *config.PricingPolicyHolder
}

func NewCalculator(policy *config.PricingPolicyHolder) *Calculator {
	return &Calculator{policy: policy}
}

// Calculate prices a booking from catalog terms. Quote and donation
// models return a sentinel quote with RequiresManualAmount set; the
// caller supplies the amount later via CalculateManual.
func (c *Calculator) Calculate(in Input) (Quote, error) {
	policy := c.policy.Get()

	switch in.Model {
	case ModelFixed:
		return c.split(in.FixedPrice, policy)
	case ModelHourly:
		if !durationAllowed(in.DurationMinutes, policy.AllowedDurations) {
			return Quote{}, ErrInvalidDuration
		}
		// rate is per 60 minutes; duration grid keeps this exact or
		// divisible before rounding
		total := roundHalfUpDiv(in.HourlyRate*in.DurationMinutes, 60)
		return c.split(total, policy)
	case ModelQuote, ModelDonation:
		return Quote{RequiresManualAmount: true}, nil
	default:
		return Quote{}, ErrUnsupportedModel
	}
}

// CalculateManual prices a quote- or donation-model booking from a
// caller-supplied amount.
func (c *Calculator) CalculateManual(amount int64) (Quote, error) {
	policy := c.policy.Get()
	if amount <= 0 {
		return Quote{}, ErrInvalidAmount
	}
	if amount < policy.MinAmount {
		return Quote{}, ErrInvalidAmount
	}
	if policy.MaxAmount > 0 && amount > policy.MaxAmount {
		return Quote{}, ErrInvalidAmount
	}
	return c.split(amount, policy)
}

// split divides total into the two installments. Odd totals round the
// extra cent into the upfront half, so completion never exceeds upfront.
func (c *Calculator) split(total int64, policy config.PricingPolicy) (Quote, error) {
	if total <= 0 {
		return Quote{}, ErrInvalidAmount
	}
	upfront := roundHalfUpDiv(total, 2)
	return Quote{
		Total:      total,
		Upfront:    upfront,
		Completion: total - upfront,
		Commission: roundHalfUpDiv(total*policy.CommissionRateBps, 10_000),
	}, nil
}

func durationAllowed(minutes int64, allowed []int64) bool {
	for _, d := range allowed {
		if minutes == d {
			return true
		}
	}
	return false
}

// roundHalfUpDiv computes round-half-up(numerator/denominator) for
// non-negative numerators.
func roundHalfUpDiv(numerator, denominator int64) int64 {
	return (numerator + denominator/2) / denominator
}
