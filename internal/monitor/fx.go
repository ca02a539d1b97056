package monitor

import (
	"github.com/smallbiznis/mrpledger/internal/monitor/service"
	"go.uber.org/fx"
)

var Module = fx.Module("monitor.service",
	fx.Provide(service.New),
)
