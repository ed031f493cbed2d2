// internal/alerts/sinks/log.go
// Log sink prints alert firings through the control plane's structured
// logger. Handy in development or small deployments where Slack/Jira is
// overkill. Non-blocking, effectively zero overhead.
package sinks

import (
	"github.com/Voskan/flarego/internal/logging"
	"go.uber.org/zap"
)

// LogSink satisfies alerts.Sink. No configuration needed; the global
// zap.Logger is used.
type LogSink struct{}

// NewLogSink returns a new LogSink; it holds no state.
func NewLogSink() *LogSink { return &LogSink{} }

// Notify logs the alert name and message at WARN level.
func (s *LogSink) Notify(ruleName, msg string) {
	logging.Logger().Warn("alert fired", zap.String("rule", ruleName), zap.String("msg", msg))
}
