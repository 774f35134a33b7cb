package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/clock"
	"github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/config"
	"github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/migration"
	"github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/observability"
	"github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/server"
	"github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/sweeper"
	"github.com/Millersg1/faith-harbor-nexus-platform-sub003/pkg/db"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		server.Module,
		sweeper.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
