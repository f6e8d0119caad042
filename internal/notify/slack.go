package notify

import (
	"fmt"

	"github.com/slack-go/slack"
)

// SlackChannel mirrors operational alerts to a Slack incoming webhook.
// It is optional; when no webhook URL is configured every send is a no-op.
type SlackChannel struct {
	webhookURL string
}

// NewSlackChannel creates a Slack alert channel
func NewSlackChannel(webhookURL string) *SlackChannel {
	return &SlackChannel{webhookURL: webhookURL}
}

// IsConfigured returns true if a webhook URL is set
func (s *SlackChannel) IsConfigured() bool {
	return s.webhookURL != ""
}

// Send posts one alert message to the configured webhook
func (s *SlackChannel) Send(subject, body string) error {
	if !s.IsConfigured() {
		return nil
	}
	msg := &slack.WebhookMessage{
		Text: fmt.Sprintf("*%s*\n%s", subject, body),
	}
	if err := slack.PostWebhook(s.webhookURL, msg); err != nil {
		return fmt.Errorf("failed to post Slack alert: %w", err)
	}
	return nil
}
