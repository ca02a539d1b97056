package alert

import (
	"github.com/smallbiznis/mrpledger/internal/alert/repository"
	"github.com/smallbiznis/mrpledger/internal/alert/service"
	"go.uber.org/fx"
)

var Module = fx.Module("alert.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewNotifier),
	fx.Provide(service.New),
)
