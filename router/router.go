// Package router matches requests to actions and drives them through the
// action lifecycle, handing every failure to the error action.
package router

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/GoCodeAlone/keel/action"
	"github.com/GoCodeAlone/keel/container"
	"github.com/GoCodeAlone/keel/logging"
)

// Middleware runs before routing. It must call next exactly once to let
// the request proceed, or next with an error to abort to the error action.
// A middleware that never calls next has handled the request itself.
type Middleware func(req *action.Request, w http.ResponseWriter, next func(error))

// ErrorHook is told about every error routed to the error action.
type ErrorHook func(ctx context.Context, req *action.Request, err error)

// RequestObserver is told about every handled request.
type RequestObserver interface {
	ObserveRequest(method, action string, status int, elapsed time.Duration)
}

// Route binds a method and pattern to an action specifier.
type Route struct {
	Method  string
	Pattern string
	Action  container.Specifier
	Params  map[string]any

	matcher    *pattern
	actionType reflect.Type
}

// Map is the route registration surface shared by the router and its
// namespaces.
type Map interface {
	Route(method, pattern, actionSpec string, params map[string]any) error
	Get(pattern, actionSpec string, params ...map[string]any) error
	Post(pattern, actionSpec string, params ...map[string]any) error
	Put(pattern, actionSpec string, params ...map[string]any) error
	Patch(pattern, actionSpec string, params ...map[string]any) error
	Delete(pattern, actionSpec string, params ...map[string]any) error
	Head(pattern, actionSpec string, params ...map[string]any) error
	Options(pattern, actionSpec string, params ...map[string]any) error
	Resource(name string, opts ResourceOptions) error
	Namespace(prefix string, fn func(Map) error) error
}

// Router holds routes per method in registration order.
type Router struct {
	container *container.Container
	runner    *action.Runner
	logger    logging.Logger
	errorHook ErrorHook
	observer  RequestObserver

	mu         sync.RWMutex
	routes     map[string][]*Route
	all        []*Route
	middleware []Middleware
	httpChain  []func(http.Handler) http.Handler
	handler    http.Handler
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the logger for route registration and request failures.
func WithLogger(l logging.Logger) Option {
	return func(r *Router) { r.logger = logging.OrNop(l) }
}

// WithErrorHook calls h for every request that ends in an error.
func WithErrorHook(h ErrorHook) Option {
	return func(r *Router) { r.errorHook = h }
}

// WithObserver reports every completed request to o.
func WithObserver(o RequestObserver) Option {
	return func(r *Router) { r.observer = o }
}

// New returns a router resolving actions from c.
func New(c *container.Container, opts ...Option) *Router {
	r := &Router{
		container: c,
		logger:    logging.Nop(),
		routes:    make(map[string][]*Route),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.runner = action.NewRunner(c, r.logger)
	return r
}

// Route registers a route. The action is resolved immediately so that a
// route to a missing action fails at boot rather than per request.
func (r *Router) Route(method, pat, actionSpec string, params map[string]any) error {
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		return fmt.Errorf("%w: empty method for %q", ErrInvalidMethod, pat)
	}
	spec, err := actionSpecifier(actionSpec)
	if err != nil {
		return err
	}
	matcher, err := compilePattern(pat)
	if err != nil {
		return err
	}
	v, err := r.instantiate(spec.String())
	if errors.Is(err, ErrNotAnAction) {
		return err
	}
	if err != nil {
		return fmt.Errorf("%w: %s %s -> %s: %w", ErrActionNotFound, method, matcher.source, spec, err)
	}

	route := &Route{
		Method:     method,
		Pattern:    matcher.source,
		Action:     spec,
		Params:     params,
		matcher:    matcher,
		actionType: reflect.TypeOf(v),
	}
	r.mu.Lock()
	r.routes[method] = append(r.routes[method], route)
	r.all = append(r.all, route)
	r.mu.Unlock()

	r.logger.Debug("Route registered", "method", method, "pattern", route.Pattern, "action", spec.String())
	return nil
}

// Get registers a GET route. The other verb helpers mirror it.
func (r *Router) Get(pat, spec string, params ...map[string]any) error {
	return r.Route(http.MethodGet, pat, spec, mergeParams(params))
}

func (r *Router) Post(pat, spec string, params ...map[string]any) error {
	return r.Route(http.MethodPost, pat, spec, mergeParams(params))
}

func (r *Router) Put(pat, spec string, params ...map[string]any) error {
	return r.Route(http.MethodPut, pat, spec, mergeParams(params))
}

func (r *Router) Patch(pat, spec string, params ...map[string]any) error {
	return r.Route(http.MethodPatch, pat, spec, mergeParams(params))
}

func (r *Router) Delete(pat, spec string, params ...map[string]any) error {
	return r.Route(http.MethodDelete, pat, spec, mergeParams(params))
}

func (r *Router) Head(pat, spec string, params ...map[string]any) error {
	return r.Route(http.MethodHead, pat, spec, mergeParams(params))
}

func (r *Router) Options(pat, spec string, params ...map[string]any) error {
	return r.Route(http.MethodOptions, pat, spec, mergeParams(params))
}

// Use appends request middleware. Middleware runs in registration order.
func (r *Router) Use(mw ...Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middleware = append(r.middleware, mw...)
}

// UseHTTP wraps the router's http.Handler with standard net/http
// middleware, outermost first.
func (r *Router) UseHTTP(mw ...func(http.Handler) http.Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.httpChain = append(r.httpChain, mw...)
	r.handler = nil
}

// Routes returns every route in registration order.
func (r *Router) Routes() []Route {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Route, len(r.all))
	for i, route := range r.all {
		out[i] = *route
	}
	return out
}

// Match returns the first route registered for method whose pattern
// matches the escaped path, along with its decoded params.
func (r *Router) Match(method, path string) (*Route, map[string]string, bool) {
	r.mu.RLock()
	routes := r.routes[strings.ToUpper(method)]
	r.mu.RUnlock()
	for _, route := range routes {
		if params, ok := route.matcher.match(path); ok {
			return route, params, true
		}
	}
	return nil, nil, false
}

// Handle routes req and writes its response to w. It never panics and
// never returns an error: every failure is rendered by the error action.
func (r *Router) Handle(ctx context.Context, req *action.Request, w http.ResponseWriter) {
	start := time.Now()
	ww, ok := w.(middleware.WrapResponseWriter)
	if !ok {
		ww = middleware.NewWrapResponseWriter(w, 1)
	}

	if err := r.dispatch(ctx, req, ww); err != nil {
		r.handleError(ctx, req, ww, err)
	}

	if r.observer != nil {
		name := ""
		if req.Route != nil {
			name = req.Route.Action
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		r.observer.ObserveRequest(req.Method, name, status, time.Since(start))
	}
}

func (r *Router) dispatch(ctx context.Context, req *action.Request, w http.ResponseWriter) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, p)
		}
	}()

	r.mu.RLock()
	mws := r.middleware
	r.mu.RUnlock()
	for _, mw := range mws {
		proceed := false
		var mwErr error
		mw(req, w, func(e error) {
			proceed = true
			mwErr = e
		})
		if mwErr != nil {
			return mwErr
		}
		if !proceed {
			return nil
		}
	}

	route, params, ok := r.Match(req.Method, req.Path)
	if !ok {
		return action.NotFound(fmt.Sprintf("no route for %s %s", req.Method, req.Path))
	}
	req.Route = &action.RouteInfo{
		Method:   route.Method,
		Pattern:  route.Pattern,
		Action:   route.Action.String(),
		Defaults: route.Params,
	}
	req.Params = params

	a, err := r.instantiate(route.Action.String())
	if err != nil {
		return err
	}
	return r.runner.Run(ctx, a, req, w)
}

// instantiate builds a fresh action for spec. Actions carry per-request
// state, so they must be registered as constructors.
func (r *Router) instantiate(spec string) (action.Action, error) {
	v, err := r.container.Instantiate(spec)
	if errors.Is(err, container.ErrSharedValue) {
		return nil, fmt.Errorf("%w: %w", ErrNotAnAction, err)
	}
	if err != nil {
		return nil, err
	}
	a, ok := v.(action.Action)
	if !ok {
		return nil, fmt.Errorf("%w: %s is %T", ErrNotAnAction, spec, v)
	}
	return a, nil
}

// handleError renders err with the error action. If that fails as well,
// and nothing has been written yet, a minimal 500 response is sent.
func (r *Router) handleError(ctx context.Context, req *action.Request, w middleware.WrapResponseWriter, err error) {
	status := action.StatusOf(err)
	if status >= http.StatusInternalServerError {
		r.logger.Error("Request failed", "requestID", req.ID, "method", req.Method, "path", req.Path, "error", err)
	} else {
		r.logger.Debug("Request rejected", "requestID", req.ID, "method", req.Method, "path", req.Path, "status", status, "error", err)
	}
	if r.errorHook != nil {
		r.errorHook(ctx, req, err)
	}
	if w.Status() != 0 {
		r.logger.Warn("Response already started, error not rendered", "requestID", req.ID, "error", err)
		return
	}

	req.Err = err
	if ferr := r.renderError(context.WithoutCancel(ctx), req, w); ferr != nil {
		r.logger.Error("Error action failed", "requestID", req.ID, "error", ferr, "original", err)
		if w.Status() == 0 {
			writeGenericError(w)
		}
	}
}

func (r *Router) renderError(ctx context.Context, req *action.Request, w http.ResponseWriter) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, p)
		}
	}()
	a, err := r.instantiate(action.ErrorActionSpecifier)
	if err != nil {
		return err
	}
	return r.runner.Run(ctx, a, req, w)
}

func writeGenericError(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusInternalServerError)
	_, _ = w.Write([]byte(`{"errors":[{"status":"500","title":"Internal Server Error"}]}`))
}

// URLFor returns the path of the first route for target, filling dynamic
// segments from data. target is an action specifier (with or without the
// "action:" prefix), a container.Specifier, or an action instance. It
// reports false when no route can be reversed.
func (r *Router) URLFor(target any, data map[string]any) (string, bool) {
	var match func(*Route) bool
	switch t := target.(type) {
	case string:
		spec, err := actionSpecifier(t)
		if err != nil {
			return "", false
		}
		match = func(route *Route) bool { return route.Action == spec }
	case container.Specifier:
		match = func(route *Route) bool { return route.Action == t }
	case action.Action:
		typ := reflect.TypeOf(t)
		match = func(route *Route) bool { return route.actionType == typ }
	default:
		return "", false
	}

	r.mu.RLock()
	routes := r.all
	r.mu.RUnlock()
	for _, route := range routes {
		if !match(route) {
			continue
		}
		if path, ok := route.matcher.reverse(data); ok {
			return path, true
		}
	}
	return "", false
}

// actionSpecifier accepts "posts/show" or "action:posts/show".
func actionSpecifier(s string) (container.Specifier, error) {
	if strings.Contains(s, ":") {
		spec, err := container.ParseSpecifier(s)
		if err != nil {
			return container.Specifier{}, err
		}
		if spec.Type != container.TypeAction {
			return container.Specifier{}, fmt.Errorf("%w: %s is not an action specifier", container.ErrInvalidSpecifier, s)
		}
		return spec, nil
	}
	return container.NewSpecifier(container.TypeAction, s)
}

func mergeParams(params []map[string]any) map[string]any {
	if len(params) == 0 {
		return nil
	}
	out := make(map[string]any)
	for _, p := range params {
		for k, v := range p {
			out[k] = v
		}
	}
	return out
}
