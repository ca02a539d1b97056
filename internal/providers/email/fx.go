package email

import (
	"github.com/smallbiznis/mrpledger/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("providers.email",
	fx.Provide(NewFromConfig),
)

// NewFromConfig returns a no-op provider when SMTP is not configured.
func NewFromConfig(cfg config.Config) Provider {
	if cfg.Notifications.SMTPHost == "" {
		return NoOpProvider{}
	}
	return NewSMTP(Config{
		Host:     cfg.Notifications.SMTPHost,
		Port:     cfg.Notifications.SMTPPort,
		Username: cfg.Notifications.SMTPUsername,
		Password: cfg.Notifications.SMTPPassword,
		From:     cfg.Notifications.SMTPFrom,
	})
}
