package providers

import (
	"github.com/smallbiznis/mrpledger/internal/providers/email"
	"github.com/smallbiznis/mrpledger/internal/providers/slack"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	email.Module,
	slack.Module,
)
