package booking

import (
	"github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/booking/repository"
	"github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/booking/service"
	"go.uber.org/fx"
)

var Module = fx.Module("booking.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
