package requirement

import (
	"github.com/smallbiznis/mrpledger/internal/requirement/repository"
	"github.com/smallbiznis/mrpledger/internal/requirement/service"
	"go.uber.org/fx"
)

var Module = fx.Module("requirement.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
