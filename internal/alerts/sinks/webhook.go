// internal/alerts/sinks/webhook.go
// Generic webhook sink: POSTs a small JSON payload every time a
// control-plane alert fires. Used to integrate with PagerDuty, Opsgenie, or
// custom automation. Retries with the teacher's jittered backoff
// (internal/util), off-loaded to a goroutine so Notify never blocks the
// alert engine's evaluation loop.
package sinks

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/Voskan/flarego/internal/logging"
	"github.com/Voskan/flarego/internal/util"
	"go.uber.org/zap"
)

// WebhookSink posts {rule, msg, ts} JSON to URL.
type WebhookSink struct {
	URL        string
	Timeout    time.Duration
	MaxRetries int
}

// NewWebhookSink returns a sink with defaults (5s timeout, 5 attempts).
func NewWebhookSink(url string) *WebhookSink {
	return &WebhookSink{URL: url, Timeout: 5 * time.Second, MaxRetries: 5}
}

// Notify implements alerts.Sink; it spawns a goroutine so the caller
// returns immediately.
func (s *WebhookSink) Notify(ruleName, msg string) {
	if s.URL == "" {
		logging.Sugar().Warn("webhook sink configured without URL")
		return
	}
	go s.doPost(ruleName, msg)
}

func (s *WebhookSink) doPost(rule, msg string) {
	payload := map[string]any{"rule": rule, "msg": msg, "ts": time.Now().Unix()}
	body, _ := json.Marshal(payload)

	client := &http.Client{Timeout: s.Timeout}
	backoff := util.NewBackoff()

	for attempt := 1; attempt <= s.MaxRetries; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), s.Timeout)
		req, _ := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		cancel()
		if err == nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
			_ = resp.Body.Close()
			return
		}
		if err == nil {
			_ = resp.Body.Close()
		}
		logging.Logger().Warn("webhook notify failed", zap.String("rule", rule), zap.Int("attempt", attempt), zap.Error(err))
		if attempt == s.MaxRetries {
			break
		}
		time.Sleep(backoff.Next())
	}
}
