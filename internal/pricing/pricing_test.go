package pricing

import (
	"testing"

	"github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/config"
	"github.com/stretchr/testify/assert"
)

func newTestCalculator() *Calculator {
	return NewCalculator(config.NewStaticPricingPolicyHolder(config.DefaultPricingPolicy()))
}

func TestCalculate_FixedPrice(t *testing.T) {
	calc := newTestCalculator()

	quote, err := calc.Calculate(Input{Model: ModelFixed, FixedPrice: 10000})
	assert.NoError(t, err)
	assert.Equal(t, int64(10000), quote.Total)
	assert.Equal(t, int64(5000), quote.Upfront)
	assert.Equal(t, int64(5000), quote.Completion)
	assert.Equal(t, int64(1200), quote.Commission)
	assert.False(t, quote.RequiresManualAmount)
}

func TestCalculate_Hourly(t *testing.T) {
	calc := newTestCalculator()

	quote, err := calc.Calculate(Input{Model: ModelHourly, HourlyRate: 4000, DurationMinutes: 90})
	assert.NoError(t, err)
	assert.Equal(t, int64(6000), quote.Total)
	assert.Equal(t, int64(3000), quote.Upfront)
	assert.Equal(t, int64(3000), quote.Completion)
}

func TestCalculate_HourlyRejectsOffGridDuration(t *testing.T) {
	calc := newTestCalculator()

	for _, minutes := range []int64{0, 15, 45, 75, 300, -60} {
		_, err := calc.Calculate(Input{Model: ModelHourly, HourlyRate: 4000, DurationMinutes: minutes})
		assert.ErrorIs(t, err, ErrInvalidDuration, "duration %d", minutes)
	}
}

func TestCalculate_QuoteAndDonationDeferAmount(t *testing.T) {
	calc := newTestCalculator()

	for _, model := range []Model{ModelQuote, ModelDonation} {
		quote, err := calc.Calculate(Input{Model: model})
		assert.NoError(t, err)
		assert.True(t, quote.RequiresManualAmount)
		assert.Zero(t, quote.Total)
	}
}

func TestCalculate_UnknownModel(t *testing.T) {
	calc := newTestCalculator()

	_, err := calc.Calculate(Input{Model: Model("barter")})
	assert.ErrorIs(t, err, ErrUnsupportedModel)
}

func TestCalculateManual_SplitsLikeFixed(t *testing.T) {
	calc := newTestCalculator()

	quote, err := calc.CalculateManual(7500)
	assert.NoError(t, err)
	assert.Equal(t, int64(7500), quote.Total)
	assert.Equal(t, int64(3750), quote.Upfront)
	assert.Equal(t, int64(3750), quote.Completion)
	assert.Equal(t, int64(900), quote.Commission)
}

func TestCalculateManual_RejectsNonPositive(t *testing.T) {
	calc := newTestCalculator()

	for _, amount := range []int64{0, -1, -10000} {
		_, err := calc.CalculateManual(amount)
		assert.ErrorIs(t, err, ErrInvalidAmount, "amount %d", amount)
	}
}

func TestSplit_InvariantHoldsForOddTotals(t *testing.T) {
	calc := newTestCalculator()

	for _, total := range []int64{101, 999, 12345, 55_555, 1_000_001} {
		quote, err := calc.CalculateManual(total)
		assert.NoError(t, err)
		assert.Equal(t, total, quote.Upfront+quote.Completion, "total %d", total)

		diff := quote.Upfront - quote.Completion
		assert.GreaterOrEqual(t, diff, int64(0), "completion must never exceed upfront")
		assert.LessOrEqual(t, diff, int64(1), "halves differ by at most one cent")
	}
}

func TestCommission_RoundsHalfUp(t *testing.T) {
	holder := config.NewStaticPricingPolicyHolder(config.PricingPolicy{
		CommissionRateBps: 1200,
		AllowedDurations:  []int64{60},
		MinAmount:         1,
	})
	calc := NewCalculator(holder)

	// 1250 * 12% = 150 exactly; 1254 * 12% = 150.48 -> 150; 1255 * 12% = 150.6 -> 151
	cases := map[int64]int64{1250: 150, 1254: 150, 1255: 151}
	for total, want := range cases {
		quote, err := calc.CalculateManual(total)
		assert.NoError(t, err)
		assert.Equal(t, want, quote.Commission, "total %d", total)
	}
}
