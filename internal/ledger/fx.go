package ledger

import (
	"github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/ledger/repository"
	"github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/ledger/service"
	"go.uber.org/fx"
)

var Module = fx.Module("ledger.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
