// internal/metrics/prom.go
// Package metrics centralises Prometheus metric registration for
// cmd/controlplane. Every package that moves a control-plane number
// (presence, relay selection, authz, cache pruning) updates its own
// gauge/counter here without importing cmd/controlplane, the same
// "package-level vars + idempotent Register()" shape the teacher used for
// its runtime metrics.
//
// Alongside each prometheus.Collector this package keeps a plain atomic
// counterpart (go.uber.org/atomic, already a dependency via logging) so
// internal/alerts can read "current value" cheaply: the Prometheus client
// library does not expose an ergonomic Counter.Value(), only Collect/Write
// into a wire-format proto, which is the wrong tool for a tight alert-eval
// loop.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
)

var once sync.Once

var (
	// Gauge metrics -----------------------------------------------------

	ClientsOnline = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "flarego",
		Subsystem: "presence",
		Name:      "clients_online",
		Help:      "Current number of online Client Channels, per account.",
	}, []string{"account_id"})

	GatewaysOnline = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "flarego",
		Subsystem: "presence",
		Name:      "gateways_online",
		Help:      "Current number of online Gateway Channels, per account.",
	}, []string{"account_id"})

	RelaysOnline = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "flarego",
		Subsystem: "presence",
		Name:      "relays_online",
		Help:      "Current number of online relays, per account.",
	}, []string{"account_id"})

	GatewayCacheSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "flarego",
		Subsystem: "gatewaychannel",
		Name:      "cache_entries",
		Help:      "Sum of (client,resource) authorization cache entries across live Gateway Channels.",
	})

	// Counter metrics -----------------------------------------------------

	AuthzRejectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flarego",
		Subsystem: "authz",
		Name:      "rejections_total",
		Help:      "Total Resolve/CanAccess calls that ended in a rejection, by reason.",
	}, []string{"reason"})

	AuthzResolutionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "flarego",
		Subsystem: "authz",
		Name:      "resolutions_total",
		Help:      "Total successful PolicyAuthorization resolutions.",
	})

	RelaySelectionChurnTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flarego",
		Subsystem: "relay",
		Name:      "selection_churn_total",
		Help:      "Relay connect/disconnect events emitted by the debounced Pusher, by direction.",
	}, []string{"direction"}) // "connected" | "disconnected"

	GatewayChannelCrashesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "flarego",
		Subsystem: "gatewaychannel",
		Name:      "crashes_total",
		Help:      "Total Gateway Channel actor goroutines that exited via a recovered panic.",
	})

	ResourceAdapterDropsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flarego",
		Subsystem: "resourceadapter",
		Name:      "drops_total",
		Help:      "Total resource views withheld from a peer by a version-gated Strategy, by resource type.",
	}, []string{"resource_type"})

	CachePruneEvictionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "flarego",
		Subsystem: "gatewaychannel",
		Name:      "cache_prune_evictions_total",
		Help:      "Total (client,resource) cache entries removed by the periodic prune tick (§4.5).",
	})
)

// Raw side-counters the alerting engine reads; kept in lockstep with the
// Prometheus collectors above by the Observe* helpers below.
var (
	rawAuthzRejections     atomic.Int64
	rawGatewayCrashes      atomic.Int64
	rawCachePruneEvictions atomic.Int64
	rawResourceDrops       atomic.Int64
)

// Register exports all metrics on the default registerer; safe to call more
// than once (e.g. from both cmd/controlplane and a test harness).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			ClientsOnline,
			GatewaysOnline,
			RelaysOnline,
			GatewayCacheSize,
			AuthzRejectionsTotal,
			AuthzResolutionsTotal,
			RelaySelectionChurnTotal,
			GatewayChannelCrashesTotal,
			ResourceAdapterDropsTotal,
			CachePruneEvictionsTotal,
		)
	})
}

// ObserveAuthzRejection records one rejected Resolve/CanAccess call.
func ObserveAuthzRejection(reason string) {
	AuthzRejectionsTotal.WithLabelValues(reason).Inc()
	rawAuthzRejections.Inc()
}

// ObserveGatewayChannelCrash records one recovered Gateway Channel panic.
func ObserveGatewayChannelCrash() {
	GatewayChannelCrashesTotal.Inc()
	rawGatewayCrashes.Inc()
}

// ObserveCachePruneEvictions records n cache entries reaped by one prune
// tick (§4.5).
func ObserveCachePruneEvictions(n int) {
	if n <= 0 {
		return
	}
	CachePruneEvictionsTotal.Add(float64(n))
	rawCachePruneEvictions.Add(int64(n))
}

// ObserveResourceAdapterDrop records one peer push withheld by a
// version-gated Strategy (§4.8).
func ObserveResourceAdapterDrop(resourceType string) {
	ResourceAdapterDropsTotal.WithLabelValues(resourceType).Inc()
	rawResourceDrops.Inc()
}

// ObserveRelayChurn records one relay connect/disconnect emitted by a
// debounced Pusher.Fire (§4.7).
func ObserveRelayChurn(connected, disconnected int) {
	if connected > 0 {
		RelaySelectionChurnTotal.WithLabelValues("connected").Add(float64(connected))
	}
	if disconnected > 0 {
		RelaySelectionChurnTotal.WithLabelValues("disconnected").Add(float64(disconnected))
	}
}

// Snapshot returns the subset of counters internal/alertsengine rules can
// reference, keyed by the metric names used in rule expressions (e.g.
// "authz_rejections_total > 100").
func Snapshot() map[string]float64 {
	return map[string]float64{
		"authz_rejections_total":       float64(rawAuthzRejections.Load()),
		"gateway_channel_crashes_total": float64(rawGatewayCrashes.Load()),
		"cache_prune_evictions_total":  float64(rawCachePruneEvictions.Load()),
		"resource_adapter_drops_total": float64(rawResourceDrops.Load()),
	}
}
