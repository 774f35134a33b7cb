package pricing

import (
	"github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("pricing",
	fx.Provide(config.NewPricingPolicyHolder),
	fx.Provide(NewCalculator),
)
