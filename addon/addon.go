package addon

import (
	"fmt"

	"github.com/GoCodeAlone/keel/router"
	"github.com/GoCodeAlone/keel/topsort"
)

// Addon is the compiled-in half of an addon, matched to a discovered
// descriptor by name. Everything beyond Name is optional.
type Addon interface {
	Name() string
}

// NamespaceProvider exposes the values an addon contributes, keyed by
// folder-style module path, e.g. "actions/posts/show" or "services/mailer".
type NamespaceProvider interface {
	Namespace() map[string]any
}

// RouteMapper declares routes. It is called once at boot in load order.
type RouteMapper interface {
	MapRoutes(m router.Map) error
}

// MiddlewareProvider contributes request middleware, registered in load
// order.
type MiddlewareProvider interface {
	Middleware() []router.Middleware
}

// Orderer gives ordering hints to addons that have no manifest on disk.
type Orderer interface {
	Before() []string
	After() []string
}

// Loaded pairs a descriptor with its compiled-in implementation. Either
// side may be missing: an addon directory may only carry config files, and
// a compiled-in addon need not have a manifest.
type Loaded struct {
	Descriptor
	Addon Addon
}

// Plan merges discovered descriptors with compiled-in addons and returns
// them in load order. Compiled-in addons without a descriptor are ordered
// by their Orderer hints and otherwise follow the discovered ones.
func Plan(discovered []Descriptor, addons []Addon) ([]Loaded, error) {
	byName := make(map[string]Addon, len(addons))
	for _, a := range addons {
		if _, dup := byName[a.Name()]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateAddon, a.Name())
		}
		byName[a.Name()] = a
	}

	vertices := make([]topsort.Vertex[Loaded], 0, len(discovered)+len(addons))
	seen := make(map[string]bool, len(discovered))
	for _, d := range discovered {
		seen[d.Name] = true
		vertices = append(vertices, topsort.Vertex[Loaded]{
			Name:   d.Name,
			Before: d.Before,
			After:  d.After,
			Value:  Loaded{Descriptor: d, Addon: byName[d.Name]},
		})
	}
	for _, a := range addons {
		if seen[a.Name()] {
			continue
		}
		desc := Descriptor{Name: a.Name()}
		if o, ok := a.(Orderer); ok {
			desc.Before = o.Before()
			desc.After = o.After()
		}
		vertices = append(vertices, topsort.Vertex[Loaded]{
			Name:   desc.Name,
			Before: desc.Before,
			After:  desc.After,
			Value:  Loaded{Descriptor: desc, Addon: a},
		})
	}
	return topsort.Sort(vertices)
}
