// Package tracepeek is a worked example of a third-party resource_adapter
// Strategy (internal/resourceadapter), the kind of plugin an operator could
// ship as a separate .so loaded via plugins.LoadShared without touching the
// control-plane binary. It registers under the name "tracepeek" alongside
// the built-in "current"/"legacy" strategies but is never selected by
// resourceadapter.Adapt on its own — internal/resourceadapter only resolves
// "current" or "legacy" by version gate. fzctl's `plugin list` command is
// what actually exercises this package: it enumerates every registered
// resource_adapter Strategy, including this one, to let an operator confirm
// a plugin loaded successfully.
package tracepeek

import (
	"github.com/Voskan/flarego/internal/domain"
	"github.com/Voskan/flarego/internal/logging"
	"github.com/Voskan/flarego/internal/plugins"
	"github.com/Voskan/flarego/internal/resourceadapter"
)

const kind plugins.Kind = "resource_adapter"

// Strategy logs every Resource it is asked to adapt before delegating to the
// "current" behavior (pass-through with expanded filters), useful as a
// development-only audit trail of what the Resource Adapter is being asked
// to render.
type Strategy struct{}

func (Strategy) Kind() plugins.Kind { return kind }
func (Strategy) Name() string       { return "tracepeek" }
func (Strategy) Init() (any, error) { return nil, nil }

// Adapt logs and returns whatever the registered "current" strategy returns
// (resourceadapter's behavior for a version >= 1.2.0 peer).
func (Strategy) Adapt(r domain.Resource) (resourceadapter.ResourceView, resourceadapter.Verdict) {
	logging.Sugar().Debugw("tracepeek: adapting resource", "resource_id", r.ID, "type", r.Type)
	if p, ok := plugins.Lookup(kind, "current"); ok {
		if cur, ok := p.(resourceadapter.Strategy); ok {
			return cur.Adapt(r)
		}
	}
	view := resourceadapter.ResourceView{ID: r.ID, Type: string(r.Type), Name: r.Name, Address: r.Address}
	return view, resourceadapter.Cont
}

func init() {
	plugins.Register(Strategy{})
}
