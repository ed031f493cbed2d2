// internal/plugins/registry.go
// Runtime plugin registry. Allows dynamic discovery and execution of plugin
// callbacks at runtime without hard-coding them in the core binaries. Go's
// native plugin support (plugin.Open) only works on Linux/macOS and requires
// plugins to be built with the exact same Go version and compiler flags; this
// registry abstracts those details and offers a fallback "static import" mode
// for platforms where .so loading is unavailable.
//
// Plugin authors implement the Plugin interface and call Register() in their
// plugin's init() function. The control plane uses this to table-drive the
// Resource Adapter's per-peer-version behavior (internal/resourceadapter):
// each version bucket is a Strategy plugin under Kind "resource_adapter",
// looked up by name instead of an inline version switch.
package plugins

import (
	"plugin"
	"sync"
)

// Kind classifies plugin purpose so callers can filter quickly.
// Examples: "resource_adapter".
// Custom kinds are allowed; collisions are prevented by separate maps.
type Kind string

// Plugin is the minimal contract a plugin registered here must satisfy.
type Plugin interface {
	Kind() Kind   // category
	Name() string // unique within its Kind
	// Init is invoked once at registration. The plugin can perform setup and
	// return an opaque handle for future use. Returning an error aborts
	// registration.
	Init() (any, error)
}

// registry is a global map: kind -> name -> plugin instance.
var (
	regMu    sync.RWMutex
	registry = make(map[Kind]map[string]Plugin)
)

// Register adds p to the global registry. Called from a plugin's init().
// Duplicate (kind,name) pairs panic to surface the programming error at
// startup rather than silently shadowing a strategy.
func Register(p Plugin) {
	regMu.Lock()
	defer regMu.Unlock()
	kindMap, ok := registry[p.Kind()]
	if !ok {
		kindMap = make(map[string]Plugin)
		registry[p.Kind()] = kindMap
	}
	if _, exists := kindMap[p.Name()]; exists {
		panic("plugins: duplicate plugin " + string(p.Kind()) + "/" + p.Name())
	}
	if _, err := p.Init(); err != nil {
		panic("plugins: init failed for " + p.Name() + ": " + err.Error())
	}
	kindMap[p.Name()] = p
}

// Lookup returns the plugin registered under (kind, name), if any.
func Lookup(k Kind, name string) (Plugin, bool) {
	regMu.RLock()
	defer regMu.RUnlock()
	p, ok := registry[k][name]
	return p, ok
}

// ByKind returns every plugin registered under kind, in no particular order.
func ByKind(k Kind) []Plugin {
	regMu.RLock()
	defer regMu.RUnlock()
	m := registry[k]
	out := make([]Plugin, 0, len(m))
	for _, p := range m {
		out = append(out, p)
	}
	return out
}

// LoadShared dynamically loads a Go plugin (.so) file and expects it to call
// Register in its init() function. On unsupported platforms, or if opening
// the plugin fails, an error is returned.
func LoadShared(path string) error {
	_, err := plugin.Open(path)
	return err
}
