// cmd/controlplane/server.go
// Server owns every process-wide collaborator the control plane's actors
// share: the PubSub bus, the two cross-channel Directories, the three
// Presence namespaces, the Authorization Resolver, the Authenticator, the
// Relay Selector, the replay tap, and the alerting Engine. Grounded on
// cmd/flarego-gateway's server wiring (one struct built once in main,
// handlers closing over it), generalised from a single gRPC service to
// three websocket upgrade handlers plus HTTP debug/metrics endpoints.
package main

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/Voskan/flarego/internal/alerts"
	"github.com/Voskan/flarego/internal/alerts/sinks"
	"github.com/Voskan/flarego/internal/authz"
	"github.com/Voskan/flarego/internal/changestream"
	"github.com/Voskan/flarego/internal/config"
	"github.com/Voskan/flarego/internal/directory"
	"github.com/Voskan/flarego/internal/logging"
	"github.com/Voskan/flarego/internal/metrics"
	"github.com/Voskan/flarego/internal/presence"
	"github.com/Voskan/flarego/internal/pubsub"
	"github.com/Voskan/flarego/internal/relay"
	"github.com/Voskan/flarego/internal/replaytap"
	"github.com/Voskan/flarego/internal/store"
	"github.com/Voskan/flarego/internal/tracing"
	"github.com/Voskan/flarego/internal/transport"
	"github.com/Voskan/flarego/internal/util"
	"github.com/Voskan/flarego/pkg/auth"
)

const (
	clientPresenceTopicPrefix  = "client_presence:"
	gatewayPresenceTopicPrefix = "gateway_presence:"
	relayPresenceTopicPrefix   = "relay_presence:"
)

// Server bundles every shared collaborator a Gateway/Client/Relay upgrade
// handler needs. The zero value is not usable; construct with NewServer.
type Server struct {
	cfg config.Config

	bus   *pubsub.Bus
	store *store.Memory

	clientsDir  *directory.Directory // keyed by client id; clientchannel.Deps.Replies target
	gatewaysDir *directory.Directory // keyed by gateway id; clientchannel.Deps.Gateways / gatewaychannel cmdIn source

	clientsOnline  *presence.Namespace[struct{}]
	gatewaysOnline *presence.Namespace[presence.GatewayMeta]
	relaysOnline   *presence.RelayNamespace

	selector *relay.Selector

	resolver      *authz.Resolver
	authenticator *transport.Authenticator

	tracer *tracing.HandshakeTracer
	tap    replaytap.Tap

	dispatcher *changestream.Dispatcher
	alertsEng  *alerts.Engine

	httpSrv    *http.Server
	metricsSrv *http.Server
}

// NewServer constructs every collaborator and wires the ones that need each
// other (e.g. the Resolver needs the store; the Authenticator needs the
// Verifier and the store). It does not start listening; call Run for that.
func NewServer(cfg config.Config) (*Server, error) {
	bus := pubsub.New()
	mem := store.NewMemory()

	verifier := auth.NewVerifier([]byte(cfg.JWTSecret), cfg.JWTIssuer)

	s := &Server{
		cfg:   cfg,
		bus:   bus,
		store: mem,

		clientsDir:  directory.New(),
		gatewaysDir: directory.New(),

		clientsOnline:  presence.NewNamespace[struct{}](bus, clientPresenceTopicPrefix),
		gatewaysOnline: presence.NewNamespace[presence.GatewayMeta](bus, gatewayPresenceTopicPrefix),
		relaysOnline:   presence.NewRelayNamespace(bus, relayPresenceTopicPrefix),

		selector: relay.NewSelector(nil),

		resolver: authz.New(mem, mem, mem, util.MustNew, time.Now),
		authenticator: &transport.Authenticator{
			Verifier: verifier,
			Tokens:   mem,
			Accounts: mem,
		},

		tracer: tracing.New(otel.Tracer("flarego-controlplane")),

		dispatcher: changestream.New(bus),
	}

	if cfg.RedisAddr != "" {
		cli := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		s.tap = replaytap.NewRedis(cli, cfg.ReplayRetention, 10)
	} else {
		s.tap = replaytap.NewInMem(cfg.ReplayRetention)
	}

	changestream.RegisterDefaultHooks(s.dispatcher)

	metrics.Register()
	s.alertsEng = alerts.NewEngine(metrics.Snapshot, s.buildAlertSinks()...)
	for _, r := range alerts.DefaultRules() {
		s.alertsEng.AddRule(r)
	}

	return s, nil
}

// buildAlertSinks always includes the log sink and adds the optional
// webhook/Slack/Jira sinks when their configuration is present, so a
// default install still alerts to its own logs without any extra config.
func (s *Server) buildAlertSinks() []alerts.Sink {
	out := []alerts.Sink{sinks.NewLogSink()}
	if s.cfg.AlertWebhookURL != "" {
		out = append(out, sinks.NewWebhookSink(s.cfg.AlertWebhookURL))
	}
	if s.cfg.AlertSlackWebhookURL != "" {
		out = append(out, sinks.NewSlackSink(s.cfg.AlertSlackWebhookURL))
	}
	if s.cfg.AlertJiraBaseURL != "" {
		out = append(out, sinks.NewJiraSink(s.cfg.AlertJiraBaseURL, s.cfg.AlertJiraProject, s.cfg.AlertJiraEmail, s.cfg.AlertJiraToken))
	}
	return out
}

// Run starts the websocket/HTTP listener, the metrics listener, the alert
// engine's evaluation loop, and the presence-gauge refresher, blocking until
// ctx is cancelled or a listener fails.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	s.registerRoutes(mux)
	s.httpSrv = &http.Server{Addr: s.cfg.ListenAddr, Handler: mux}

	errCh := make(chan error, 2)

	go func() {
		logging.Logger().Info("controlplane: listening", zap.String("addr", s.cfg.ListenAddr))
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	if s.cfg.MetricsEnabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		s.metricsSrv = &http.Server{Addr: s.cfg.MetricsAddr, Handler: metricsMux}
		go func() {
			logging.Logger().Info("controlplane: metrics listening", zap.String("addr", s.cfg.MetricsAddr))
			if err := s.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()
	}

	done := make(chan struct{})
	go s.alertsEng.Run(s.cfg.AlertEvalInterval, done)
	go s.refreshPresenceGauges(ctx)

	select {
	case <-ctx.Done():
		close(done)
		return s.shutdown()
	case err := <-errCh:
		close(done)
		_ = s.shutdown()
		return err
	}
}

func (s *Server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if s.metricsSrv != nil {
		_ = s.metricsSrv.Shutdown(ctx)
	}
	return s.httpSrv.Shutdown(ctx)
}

// refreshPresenceGauges periodically sets the three *_online Prometheus
// gauges from the Presence Registry's own counts, since those are live
// structures metrics.Observe* callbacks cannot reach into at event time.
func (s *Server) refreshPresenceGauges(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for account, n := range s.clientsOnline.CountByAccount() {
				metrics.ClientsOnline.WithLabelValues(account).Set(float64(n))
			}
			for account, n := range s.gatewaysOnline.CountByAccount() {
				metrics.GatewaysOnline.WithLabelValues(account).Set(float64(n))
			}
			for account, n := range s.relaysOnline.CountByAccount() {
				metrics.RelaysOnline.WithLabelValues(account).Set(float64(n))
			}
		}
	}
}
