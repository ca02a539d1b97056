package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/smallbiznis/mrpledger/internal/alert/domain"
	"github.com/smallbiznis/mrpledger/internal/config"
	obsmetrics "github.com/smallbiznis/mrpledger/internal/observability/metrics"
	"github.com/smallbiznis/mrpledger/internal/providers/email"
	"github.com/smallbiznis/mrpledger/internal/providers/slack"
	"go.uber.org/fx"
)

type NotifierParams struct {
	fx.In

	Config     config.Config
	Email      email.Provider      `optional:"true"`
	Slack      slack.Provider      `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type notifier struct {
	recipients []string
	channel    string
	email      email.Provider
	slack      slack.Provider
	obsMetrics *obsmetrics.Metrics
}

// NewNotifier fans critical alerts out to email and Slack. A channel without a
// provider or recipients is skipped.
func NewNotifier(p NotifierParams) domain.Notifier {
	return &notifier{
		recipients: p.Config.Notifications.EmailRecipients,
		channel:    p.Config.Notifications.SlackChannel,
		email:      p.Email,
		slack:      p.Slack,
		obsMetrics: p.ObsMetrics,
	}
}

func (n *notifier) Notify(ctx context.Context, alert domain.Alert) error {
	var errs []error

	if n.email != nil && len(n.recipients) > 0 {
		err := n.sendEmail(ctx, alert)
		n.obsMetrics.RecordNotification(ctx, "email", err)
		if err != nil {
			errs = append(errs, fmt.Errorf("email: %w", err))
		}
	}

	if n.slack != nil {
		err := n.slack.PostMessage(ctx, n.channel, slackMessage(alert))
		n.obsMetrics.RecordNotification(ctx, "slack", err)
		if err != nil {
			errs = append(errs, fmt.Errorf("slack: %w", err))
		}
	}

	return errors.Join(errs...)
}

func (n *notifier) sendEmail(ctx context.Context, alert domain.Alert) error {
	view := email.AlertView{
		Title:       alert.Title,
		Description: alert.Description,
		Type:        string(alert.AlertType),
		Severity:    string(alert.Severity),
		RaisedAt:    alert.CreatedAt,
	}
	if alert.Reference != nil {
		view.Reference = *alert.Reference
	}
	msg, err := email.RenderAlert(n.recipients, view)
	if err != nil {
		return err
	}
	return n.email.Send(ctx, msg)
}

func slackMessage(alert domain.Alert) string {
	msg := fmt.Sprintf(":rotating_light: *%s*\n%s", alert.Title, alert.Description)
	if alert.Reference != nil {
		msg += fmt.Sprintf("\nReference: `%s`", *alert.Reference)
	}
	return msg
}
