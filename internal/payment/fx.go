package payment

import (
	"github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/payment/gateway/stripe"
	"github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/payment/repository"
	paymentservice "github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/payment/service"
	"go.uber.org/fx"

	paymentdomain "github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/payment/domain"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(func(c *stripe.Client) paymentdomain.Gateway { return c }),
	fx.Provide(func(a *stripe.Adapter) paymentdomain.WebhookAdapter { return a }),
	fx.Provide(stripe.NewClient),
	fx.Provide(stripe.NewAdapter),
	fx.Provide(stripe.NewRefunder),
	fx.Provide(paymentservice.NewService),
)
