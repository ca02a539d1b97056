package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/mrpledger/internal/alert"
	"github.com/smallbiznis/mrpledger/internal/cache"
	"github.com/smallbiznis/mrpledger/internal/catalog"
	"github.com/smallbiznis/mrpledger/internal/clock"
	"github.com/smallbiznis/mrpledger/internal/config"
	"github.com/smallbiznis/mrpledger/internal/monitor"
	"github.com/smallbiznis/mrpledger/internal/observability"
	"github.com/smallbiznis/mrpledger/internal/providers"
	"github.com/smallbiznis/mrpledger/internal/ratelimit"
	"github.com/smallbiznis/mrpledger/internal/requirement"
	"github.com/smallbiznis/mrpledger/internal/schedule"
	"github.com/smallbiznis/mrpledger/internal/scheduler"
	"github.com/smallbiznis/mrpledger/pkg/db"
	"go.uber.org/fx"
)

// Standalone planning worker. Run several replicas with REDIS_ADDR set and
// only one of them executes each tick.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		ratelimit.Module,
		cache.Module,
		providers.Module,

		// Domain services required by scheduler
		catalog.Module,
		schedule.Module,
		alert.Module,
		requirement.Module,
		monitor.Module,

		// No server module!
		scheduler.Module,
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
