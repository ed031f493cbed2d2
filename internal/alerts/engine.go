// internal/alerts/engine.go
// Package alerts wires internal/alertsengine's expression compiler to the
// internal/alerts/sinks notification backends, repointed at control-plane
// metrics (internal/metrics.Snapshot) instead of the teacher's agent/gateway
// runtime numbers. A Rule is a named predicate plus edge-triggered firing so
// a sustained breach notifies once, not once per evaluation tick.
package alerts

import (
	"sync"
	"time"

	"github.com/Voskan/flarego/internal/alertsengine"
	"github.com/Voskan/flarego/internal/logging"
	"go.uber.org/zap"
)

// Sink delivers a fired alert somewhere; internal/alerts/sinks provides
// Log/Webhook/Slack/Jira implementations.
type Sink interface {
	Notify(ruleName, msg string)
}

// Rule binds a human name to a compiled predicate over metrics.Snapshot's
// keys, e.g. "authz_rejections_total > 100" or
// "gateway_channel_crashes_total > 0" (SPEC_FULL §D.4).
type Rule struct {
	Name string
	Expr string

	pred alertsengine.Predicate
	// wasFiring remembers the previous evaluation so Engine.Evaluate only
	// notifies on the 0->1 edge, not on every tick a breach persists.
	wasFiring bool
}

// NewRule compiles expr and returns a Rule ready for Engine.AddRule, or an
// error if expr is malformed.
func NewRule(name, expr string) (*Rule, error) {
	pred, err := alertsengine.Compile(expr)
	if err != nil {
		return nil, err
	}
	return &Rule{Name: name, Expr: expr, pred: pred}, nil
}

// Engine periodically evaluates a set of Rules against a metrics snapshot
// function and notifies every configured Sink on each rule's firing edge.
type Engine struct {
	snapshot func() map[string]float64
	sinks    []Sink

	mu    sync.Mutex
	rules []*Rule
}

// NewEngine returns an Engine reading metrics via snapshot (typically
// metrics.Snapshot) and notifying sinks on firing edges.
func NewEngine(snapshot func() map[string]float64, sinks ...Sink) *Engine {
	return &Engine{snapshot: snapshot, sinks: sinks}
}

// AddRule registers a compiled Rule. The rule list is guarded by e.mu, so
// AddRule may be called while Run is evaluating.
func (e *Engine) AddRule(r *Rule) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = append(e.rules, r)
}

// Evaluate runs every rule once against the current snapshot, notifying
// sinks for rules transitioning from not-firing to firing. It is exported
// separately from Run so a caller can trigger a single pass without a
// ticker.
func (e *Engine) Evaluate() {
	m := e.snapshot()

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, r := range e.rules {
		firing := r.pred(m)
		if firing && !r.wasFiring {
			msg := r.Name + ": " + r.Expr
			for _, s := range e.sinks {
				s.Notify(r.Name, msg)
			}
			logging.Logger().Warn("alerts: rule fired", zap.String("rule", r.Name), zap.String("expr", r.Expr))
		}
		r.wasFiring = firing
	}
}

// Run evaluates every rule every interval until done closes. Intended to
// run in its own goroutine from cmd/controlplane, mirroring the teacher's
// ticker-driven background loops.
func (e *Engine) Run(interval time.Duration, done <-chan struct{}) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			e.Evaluate()
		}
	}
}

// DefaultRules returns the operational-alerting rule set SPEC_FULL §D.4
// calls out as the control-plane's starting alert configuration. Callers may
// add more via AddRule.
func DefaultRules() []*Rule {
	defs := []struct{ name, expr string }{
		{"authz_rejection_spike", "authz_rejections_total > 100"},
		{"gateway_channel_crash", "gateway_channel_crashes_total > 0"},
		{"resource_adapter_drop_spike", "resource_adapter_drops_total > 500"},
	}
	rules := make([]*Rule, 0, len(defs))
	for _, d := range defs {
		r, err := NewRule(d.name, d.expr)
		if err != nil {
			// A hand-written default rule failing to compile is a
			// programming error, not an operational condition.
			panic("alerts: default rule " + d.name + " does not compile: " + err.Error())
		}
		rules = append(rules, r)
	}
	return rules
}
