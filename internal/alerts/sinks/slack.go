// internal/alerts/sinks/slack.go
// Slack sink posts a JSON payload to a Slack Incoming Webhook URL whenever a
// control-plane alert fires (e.g. authz_rejections_total above threshold).
// Intentionally minimal and synchronous.
package sinks

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/Voskan/flarego/internal/logging"
	"go.uber.org/zap"
)

// SlackSink implements alerts.Sink for Slack. The message field supports
// Slack's mrkdwn.
type SlackSink struct {
	WebhookURL string
	Username   string
	IconEmoji  string
	Timeout    time.Duration
	httpClient *http.Client
}

// NewSlackSink constructs a sink with a default 10s HTTP client timeout.
func NewSlackSink(webhookURL string) *SlackSink {
	return &SlackSink{WebhookURL: webhookURL, Timeout: 10 * time.Second}
}

// Notify sends msg to Slack with basic retry (3 attempts, linear backoff).
func (s *SlackSink) Notify(ruleName, msg string) {
	if s.WebhookURL == "" {
		logging.Sugar().Warn("slack sink configured without webhook URL")
		return
	}

	payload := map[string]any{
		"text":       "*control-plane alert* — " + msg,
		"username":   s.Username,
		"icon_emoji": s.IconEmoji,
	}
	body, _ := json.Marshal(payload)

	cli := s.httpClient
	if cli == nil {
		cli = &http.Client{Timeout: s.Timeout}
	}

	for attempt := 1; attempt <= 3; attempt++ {
		resp, err := cli.Post(s.WebhookURL, "application/json", bytes.NewReader(body))
		if err == nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
			_ = resp.Body.Close()
			return
		}
		if err == nil {
			_ = resp.Body.Close()
		}
		logging.Logger().Warn("slack notify failed", zap.String("rule", ruleName), zap.Int("attempt", attempt), zap.Error(err))
		time.Sleep(time.Duration(attempt) * time.Second)
	}
}
