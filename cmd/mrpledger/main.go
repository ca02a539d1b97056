package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/mrpledger/internal/alert"
	"github.com/smallbiznis/mrpledger/internal/audit"
	"github.com/smallbiznis/mrpledger/internal/cache"
	"github.com/smallbiznis/mrpledger/internal/catalog"
	"github.com/smallbiznis/mrpledger/internal/clock"
	"github.com/smallbiznis/mrpledger/internal/config"
	"github.com/smallbiznis/mrpledger/internal/inventory"
	"github.com/smallbiznis/mrpledger/internal/migration"
	"github.com/smallbiznis/mrpledger/internal/monitor"
	"github.com/smallbiznis/mrpledger/internal/observability"
	"github.com/smallbiznis/mrpledger/internal/providers"
	"github.com/smallbiznis/mrpledger/internal/ratelimit"
	"github.com/smallbiznis/mrpledger/internal/requirement"
	"github.com/smallbiznis/mrpledger/internal/schedule"
	"github.com/smallbiznis/mrpledger/internal/scheduler"
	"github.com/smallbiznis/mrpledger/internal/server"
	"github.com/smallbiznis/mrpledger/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		ratelimit.Module,
		cache.Module,
		providers.Module,

		// Functional Domains
		audit.Module,
		catalog.Module,
		schedule.Module,
		alert.Module,
		requirement.Module,
		inventory.Module,
		monitor.Module,

		// Surfaces
		scheduler.Module,
		server.Module,
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
