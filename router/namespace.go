package router

import "net/http"

// Namespace registers routes under a path prefix. It has the same
// registration surface as the Router, so resources and nested namespaces
// declared through it are prefixed too.
type Namespace struct {
	router *Router
	prefix string
}

// Prefixed returns a namespace for prefix.
func (r *Router) Prefixed(prefix string) *Namespace {
	return &Namespace{router: r, prefix: normalizePattern(prefix)}
}

// Namespace calls fn with a namespace for prefix.
func (r *Router) Namespace(prefix string, fn func(Map) error) error {
	return fn(r.Prefixed(prefix))
}

func (n *Namespace) join(p string) string {
	p = normalizePattern(p)
	if n.prefix == "/" {
		return p
	}
	if p == "/" {
		return n.prefix
	}
	return n.prefix + p
}

// Prefix returns the namespace's normalized prefix.
func (n *Namespace) Prefix() string { return n.prefix }

func (n *Namespace) Route(method, pat, spec string, params map[string]any) error {
	return n.router.Route(method, n.join(pat), spec, params)
}

func (n *Namespace) Get(pat, spec string, params ...map[string]any) error {
	return n.Route(http.MethodGet, pat, spec, mergeParams(params))
}

func (n *Namespace) Post(pat, spec string, params ...map[string]any) error {
	return n.Route(http.MethodPost, pat, spec, mergeParams(params))
}

func (n *Namespace) Put(pat, spec string, params ...map[string]any) error {
	return n.Route(http.MethodPut, pat, spec, mergeParams(params))
}

func (n *Namespace) Patch(pat, spec string, params ...map[string]any) error {
	return n.Route(http.MethodPatch, pat, spec, mergeParams(params))
}

func (n *Namespace) Delete(pat, spec string, params ...map[string]any) error {
	return n.Route(http.MethodDelete, pat, spec, mergeParams(params))
}

func (n *Namespace) Head(pat, spec string, params ...map[string]any) error {
	return n.Route(http.MethodHead, pat, spec, mergeParams(params))
}

func (n *Namespace) Options(pat, spec string, params ...map[string]any) error {
	return n.Route(http.MethodOptions, pat, spec, mergeParams(params))
}

func (n *Namespace) Resource(name string, opts ResourceOptions) error {
	return resource(n, name, opts)
}

func (n *Namespace) Namespace(prefix string, fn func(Map) error) error {
	return fn(&Namespace{router: n.router, prefix: n.join(prefix)})
}

var _ Map = (*Router)(nil)
var _ Map = (*Namespace)(nil)
