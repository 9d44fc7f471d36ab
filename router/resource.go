package router

import (
	"fmt"
	"net/http"
	"slices"
	"strings"
)

// Resource route names, usable in ResourceOptions.Only and Except.
const (
	ResourceList           = "list"
	ResourceCreate         = "create"
	ResourceShow           = "show"
	ResourceUpdate         = "update"
	ResourceDestroy        = "destroy"
	ResourceRelated        = "related"
	ResourceFetchRelated   = "fetch-related"
	ResourceReplaceRelated = "replace-related"
	ResourceAddRelated     = "add-related"
	ResourceRemoveRelated  = "remove-related"
)

// ResourceOptions restrict the routes Resource generates.
type ResourceOptions struct {
	// Only, when set, is the complete list of routes to generate.
	Only []string
	// Except removes routes from the generated set.
	Except []string
	// SkipRelated drops the related resource and relationship routes.
	SkipRelated bool
}

type resourceRoute struct {
	name    string
	method  string
	suffix  string
	related bool
}

var resourceRoutes = []resourceRoute{
	{name: ResourceList, method: http.MethodGet, suffix: ""},
	{name: ResourceCreate, method: http.MethodPost, suffix: ""},
	{name: ResourceShow, method: http.MethodGet, suffix: "/:id"},
	{name: ResourceUpdate, method: http.MethodPatch, suffix: "/:id"},
	{name: ResourceDestroy, method: http.MethodDelete, suffix: "/:id"},
	{name: ResourceRelated, method: http.MethodGet, suffix: "/:id/:relation", related: true},
	{name: ResourceFetchRelated, method: http.MethodGet, suffix: "/:id/relationships/:relation", related: true},
	{name: ResourceReplaceRelated, method: http.MethodPatch, suffix: "/:id/relationships/:relation", related: true},
	{name: ResourceAddRelated, method: http.MethodPost, suffix: "/:id/relationships/:relation", related: true},
	{name: ResourceRemoveRelated, method: http.MethodDelete, suffix: "/:id/relationships/:relation", related: true},
}

// Resource registers the conventional routes for name. With name "posts",
// GET /posts maps to action:posts/list, GET /posts/:id to action:posts/show,
// and so on.
func (r *Router) Resource(name string, opts ResourceOptions) error {
	return resource(r, name, opts)
}

func resource(m Map, name string, opts ResourceOptions) error {
	name = strings.Trim(name, "/")
	if name == "" {
		return fmt.Errorf("%w: empty resource name", ErrInvalidPattern)
	}
	for _, rr := range resourceRoutes {
		if !opts.includes(rr) {
			continue
		}
		if err := m.Route(rr.method, "/"+name+rr.suffix, "action:"+name+"/"+rr.name, nil); err != nil {
			return fmt.Errorf("resource %s: %w", name, err)
		}
	}
	return nil
}

func (o ResourceOptions) includes(rr resourceRoute) bool {
	if rr.related && o.SkipRelated {
		return false
	}
	if len(o.Only) > 0 && !slices.Contains(o.Only, rr.name) {
		return false
	}
	return !slices.Contains(o.Except, rr.name)
}
