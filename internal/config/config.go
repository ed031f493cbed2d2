// internal/config/config.go
// Centralised loader for the control plane's configuration, following
// internal/gateway/config.go's precedence: defaults struct -> env vars
// prefixed FLAREGO_CP -> optional config file -> cmd/controlplane flags
// (applied by the caller after Load returns).
package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config holds every tunable the control plane binary needs at startup.
type Config struct {
	ListenAddr string `mapstructure:"listen_addr"`

	JWTSecret string `mapstructure:"jwt_secret"`
	JWTIssuer string `mapstructure:"jwt_issuer"`

	// PendingDeadline bounds how long a Client Channel waits for a Gateway's
	// reply to request_connection/authorize_flow before surfacing offline.
	PendingDeadline time.Duration `mapstructure:"pending_deadline"`
	// SweepInterval governs how often a channel checks pending refs against
	// PendingDeadline.
	SweepInterval time.Duration `mapstructure:"sweep_interval"`

	// RelayCount is N in the closest-N relay selection (§4.7).
	RelayCount int `mapstructure:"relay_count"`
	// RelayDebounceWindow suppresses a transient relay disconnect/reconnect
	// (same stamp_secret) from appearing in relays_presence.
	RelayDebounceWindow time.Duration `mapstructure:"relay_debounce_window"`

	// PruneCacheInterval governs the Gateway Channel's periodic
	// :prune_cache tick (§4.5).
	PruneCacheInterval time.Duration `mapstructure:"prune_cache_interval"`

	DatabaseDSN string `mapstructure:"database_dsn"`

	MetricsEnabled bool   `mapstructure:"metrics_enabled"`
	MetricsAddr    string `mapstructure:"metrics_addr"`

	// AlertEvalInterval governs how often internal/alerts.Engine evaluates
	// its rule set against the current metrics snapshot.
	AlertEvalInterval time.Duration `mapstructure:"alert_eval_interval"`
	// The Alert*/Jira* fields below are optional notification sinks; a blank
	// URL/BaseURL disables the corresponding sink entirely (cmd/controlplane
	// only wires internal/alerts/sinks.LogSink unconditionally).
	AlertWebhookURL      string `mapstructure:"alert_webhook_url"`
	AlertSlackWebhookURL string `mapstructure:"alert_slack_webhook_url"`
	AlertJiraBaseURL     string `mapstructure:"alert_jira_base_url"`
	AlertJiraProject     string `mapstructure:"alert_jira_project"`
	AlertJiraEmail       string `mapstructure:"alert_jira_email"`
	AlertJiraToken       string `mapstructure:"alert_jira_token"`

	// ReplayRetention bounds how much recent wire traffic /debug/replay (and
	// `fzctl record`) can recall.
	ReplayRetention time.Duration `mapstructure:"replay_retention"`
	// RedisAddr, if set, backs the replay tap with internal/replaytap's
	// Redis implementation instead of the default in-process ring buffer.
	RedisAddr string `mapstructure:"redis_addr"`
}

// Default returns production-ready defaults suitable for local dev.
func Default() Config {
	return Config{
		ListenAddr:          ":8443",
		JWTIssuer:           "flarego-controlplane",
		PendingDeadline:     30 * time.Second,
		SweepInterval:       5 * time.Second,
		RelayCount:          2,
		RelayDebounceWindow: 10 * time.Second,
		PruneCacheInterval:  time.Minute,
		MetricsEnabled:      true,
		MetricsAddr:         ":9090",
		AlertEvalInterval:   30 * time.Second,
		ReplayRetention:     2 * time.Minute,
	}
}

// envPrefix is fixed per SPEC_FULL §B; unlike the teacher's gateway loader
// (which takes envPrefix as a parameter for reuse across binaries) there is
// exactly one binary consuming this config.
const envPrefix = "FLAREGO_CP"

// Load merges file and environment into a copy of Default(), returning the
// first error encountered reading an explicitly-provided file (a missing
// optional file is not an error).
func Load(filePath string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	bindDefaults(v, cfg)

	if filePath != "" {
		v.SetConfigFile(filePath)
		if err := v.ReadInConfig(); err != nil {
			return cfg, err
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func bindDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("listen_addr", cfg.ListenAddr)
	v.SetDefault("jwt_secret", cfg.JWTSecret)
	v.SetDefault("jwt_issuer", cfg.JWTIssuer)
	v.SetDefault("database_dsn", cfg.DatabaseDSN)
	v.SetDefault("alert_webhook_url", cfg.AlertWebhookURL)
	v.SetDefault("alert_slack_webhook_url", cfg.AlertSlackWebhookURL)
	v.SetDefault("alert_jira_base_url", cfg.AlertJiraBaseURL)
	v.SetDefault("alert_jira_project", cfg.AlertJiraProject)
	v.SetDefault("alert_jira_email", cfg.AlertJiraEmail)
	v.SetDefault("alert_jira_token", cfg.AlertJiraToken)
	v.SetDefault("redis_addr", cfg.RedisAddr)
	v.SetDefault("pending_deadline", cfg.PendingDeadline)
	v.SetDefault("sweep_interval", cfg.SweepInterval)
	v.SetDefault("relay_count", cfg.RelayCount)
	v.SetDefault("relay_debounce_window", cfg.RelayDebounceWindow)
	v.SetDefault("prune_cache_interval", cfg.PruneCacheInterval)
	v.SetDefault("metrics_enabled", cfg.MetricsEnabled)
	v.SetDefault("metrics_addr", cfg.MetricsAddr)
	v.SetDefault("alert_eval_interval", cfg.AlertEvalInterval)
	v.SetDefault("replay_retention", cfg.ReplayRetention)
}
