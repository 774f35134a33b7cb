package catalog

import (
	"github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/catalog/service"
	"go.uber.org/fx"
)

var Module = fx.Module("catalog.service",
	fx.Provide(service.NewCatalog),
)
