package slack

import (
	"github.com/smallbiznis/mrpledger/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("providers.slack",
	fx.Provide(NewFromConfig),
)

func NewFromConfig(cfg config.Config) Provider {
	if cfg.Notifications.SlackWebhookURL == "" {
		return &NoOpProvider{}
	}
	return NewWebhook(cfg.Notifications.SlackWebhookURL, nil)
}
