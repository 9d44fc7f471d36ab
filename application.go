// Package keel is an extensible application runtime. An Application
// discovers addons, layers their namespaces into a container, maps their
// routes and dispatches requests to actions resolved from that container.
package keel

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/GoCodeAlone/keel/action"
	"github.com/GoCodeAlone/keel/addon"
	"github.com/GoCodeAlone/keel/config"
	"github.com/GoCodeAlone/keel/container"
	"github.com/GoCodeAlone/keel/logging"
	"github.com/GoCodeAlone/keel/metrics"
	"github.com/GoCodeAlone/keel/parser"
	"github.com/GoCodeAlone/keel/router"
	"github.com/GoCodeAlone/keel/serializer"
)

// AppName is the name of the project's own resolver. It is always last in
// load order.
const AppName = "app"

// Application ties discovery, the container and the router together.
type Application struct {
	cfg         *config.Config
	logger      logging.Logger
	rootDir     string
	environment string
	preseeded   []string
	addons      []addon.Addon
	namespace   map[string]any
	routes      func(router.Map) error
	middleware  []router.Middleware
	metrics     *metrics.Collector

	mu        sync.Mutex
	booting   bool
	booted    bool
	loaded    []addon.Loaded
	container *container.Container
	router    *router.Router
	server    *http.Server

	observers     []*observerRegistration
	observerMutex sync.RWMutex
}

// New creates an unbooted application.
func New(opts ...ApplicationOption) (*Application, error) {
	app := &Application{
		logger:  logging.Nop(),
		rootDir: ".",
	}
	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, err
		}
	}
	if app.cfg == nil {
		app.cfg = &config.Config{}
		if err := config.ApplyDefaults(app.cfg); err != nil {
			return nil, err
		}
	}
	if app.environment == "" {
		app.environment = app.cfg.Environment
	}
	if app.metrics == nil && app.cfg.Metrics.Enabled {
		app.metrics = metrics.NewCollector("keel")
	}
	return app, nil
}

// Boot discovers addons, composes the container, maps routes and runs
// initializers. It can only succeed once.
func (app *Application) Boot(ctx context.Context) error {
	app.mu.Lock()
	if app.booted || app.booting {
		app.mu.Unlock()
		return ErrAlreadyBooted
	}
	app.booting = true
	app.mu.Unlock()

	err := app.boot(ctx)

	app.mu.Lock()
	app.booting = false
	app.booted = err == nil
	app.mu.Unlock()

	if err != nil {
		app.emitEvent(ctx, EventTypeApplicationFailed, map[string]any{"error": err.Error()}, map[string]any{"phase": "boot"})
		return err
	}
	app.logger.Info("Application booted", "addons", len(app.loaded), "routes", len(app.router.Routes()))
	app.emitEvent(ctx, EventTypeApplicationBooted, map[string]any{
		"addons": app.addonNames(),
		"routes": len(app.router.Routes()),
	}, nil)
	return nil
}

func (app *Application) boot(ctx context.Context) error {
	discoverer := addon.NewDiscoverer(
		addon.WithMarker(app.cfg.Addons.Marker),
		addon.WithAddonsDir(app.cfg.Addons.Dir),
		addon.WithLogger(app.logger),
	)
	discovered, err := discoverer.Discover(ctx, app.rootDir, addon.Options{
		Preseeded:   append(append([]string(nil), app.cfg.Addons.Preseeded...), app.preseeded...),
		Environment: app.environment,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDiscoveryFailed, err)
	}
	loaded, err := addon.Plan(discovered, app.addons)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDiscoveryFailed, err)
	}

	opts := []container.Option{container.WithLogger(app.logger)}
	if app.metrics != nil {
		opts = append(opts, container.WithLookupObserver(app.metrics))
	}
	c := container.New(opts...)
	if err := c.AddResolver(app.builtins()); err != nil {
		return err
	}
	for _, l := range loaded {
		var ns map[string]any
		if p, ok := l.Addon.(addon.NamespaceProvider); ok {
			ns = p.Namespace()
		}
		if err := c.AddResolver(container.NewNamespaceResolver(l.Name, l.Dir, ns, container.WithResolverLogger(app.logger))); err != nil {
			return err
		}
		app.logger.Debug("Addon loaded", "addon", l.Name, "dir", l.Dir)
		app.emitEvent(ctx, EventTypeAddonLoaded, map[string]any{"name": l.Name, "dir": l.Dir}, nil)
	}
	if err := c.AddResolver(container.NewNamespaceResolver(AppName, app.rootDir, app.namespace, container.WithResolverLogger(app.logger))); err != nil {
		return err
	}
	c.SetDefaultORMAdapter(app.cfg.ORM.DefaultAdapter)

	ropts := []router.Option{router.WithLogger(app.logger), router.WithErrorHook(app.requestFailed)}
	if app.metrics != nil {
		ropts = append(ropts, router.WithObserver(app.metrics))
	}
	r := router.New(c, ropts...)

	app.mu.Lock()
	app.loaded = loaded
	app.container = c
	app.router = r
	app.mu.Unlock()

	for _, l := range loaded {
		if err := mount(r, l.Name, l.Addon); err != nil {
			return err
		}
	}
	r.Use(app.middleware...)
	if app.routes != nil {
		if err := app.routes(r); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrRouteMapping, AppName, err)
		}
	}

	return app.runInitializers(ctx)
}

// builtins is the lowest-precedence resolver holding the default parser,
// serializers and error action.
func (app *Application) builtins() container.Resolver {
	r := container.NewNamespaceResolver("keel", "", nil)
	r.Register(container.MustParse(action.DefaultParser), parser.New())
	r.Register(container.MustParse(action.DefaultSerializer), &serializer.JSON{})
	r.Register(container.MustParse(action.ErrorSerializer), serializer.Error{})
	r.Register(container.MustParse("serializer:raw"), serializer.Raw{})
	r.Register(container.MustParse(action.ErrorActionSpecifier), action.NewErrorAction(app.cfg.Debug))
	return r
}

func mount(r *router.Router, name string, a addon.Addon) error {
	if p, ok := a.(addon.MiddlewareProvider); ok {
		r.Use(p.Middleware()...)
	}
	if m, ok := a.(addon.RouteMapper); ok {
		if err := m.MapRoutes(r); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrRouteMapping, name, err)
		}
	}
	return nil
}

func (app *Application) requestFailed(ctx context.Context, req *action.Request, err error) {
	data := map[string]any{
		"requestId": req.ID,
		"method":    req.Method,
		"path":      req.Path,
		"status":    action.StatusOf(err),
		"error":     err.Error(),
	}
	app.emitEvent(context.WithoutCancel(ctx), EventTypeRequestFailed, data, nil)
}

// Handler returns the routed application wrapped with the HTTP middleware
// the server runs it under, plus the metrics endpoint when enabled.
func (app *Application) Handler() (http.Handler, error) {
	r, err := app.Router()
	if err != nil {
		return nil, err
	}
	mux := chi.NewRouter()
	mux.Use(middleware.RealIP, middleware.Recoverer)
	if app.metrics != nil && app.cfg.Metrics.Enabled {
		mux.Handle(app.cfg.Metrics.Path, app.metrics.Handler())
	}
	mux.Handle("/*", r)
	return mux, nil
}

// Run boots the application if needed and serves HTTP on the configured
// address until ctx is done.
func (app *Application) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", app.cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", app.cfg.Server.Addr, err)
	}
	return app.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (app *Application) Serve(ctx context.Context, ln net.Listener) error {
	if !app.Booted() {
		if err := app.Boot(ctx); err != nil {
			_ = ln.Close()
			return err
		}
	}
	h, err := app.Handler()
	if err != nil {
		_ = ln.Close()
		return err
	}

	srv := &http.Server{
		Handler:      h,
		ReadTimeout:  app.cfg.Server.ReadTimeout,
		WriteTimeout: app.cfg.Server.WriteTimeout,
	}
	app.mu.Lock()
	app.server = srv
	app.mu.Unlock()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	app.logger.Info("Listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%w: %w", ErrServerStopped, err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), app.shutdownTimeout())
	defer cancel()
	return app.Shutdown(shutdownCtx)
}

func (app *Application) shutdownTimeout() time.Duration {
	if d := app.cfg.Server.ShutdownTimeout; d > 0 {
		return d
	}
	return 10 * time.Second
}

// Shutdown stops the server, if one is running, and tears down the
// container's singletons.
func (app *Application) Shutdown(ctx context.Context) error {
	app.mu.Lock()
	srv := app.server
	app.server = nil
	c := app.container
	app.mu.Unlock()

	var errs []error
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutting down server: %w", err))
		}
	}
	if c != nil {
		if err := c.Teardown(); err != nil {
			errs = append(errs, err)
		}
	}
	app.logger.Info("Application stopped")
	app.emitEvent(ctx, EventTypeApplicationStopped, nil, nil)
	return errors.Join(errs...)
}

// Reload drops cached container results so config files and namespaces
// are read again. Singletons dropped from the cache are torn down.
func (app *Application) Reload(ctx context.Context, changed string) error {
	c, err := app.Container()
	if err != nil {
		return err
	}
	err = c.ClearCache()
	if err != nil {
		app.logger.Warn("Singleton teardown failed during reload", "changed", changed, "error", err)
	}
	app.logger.Info("Container cache cleared", "changed", changed)
	app.emitEvent(ctx, EventTypeConfigChanged, map[string]any{"path": changed}, nil)
	return err
}

// Booted reports whether Boot has succeeded.
func (app *Application) Booted() bool {
	app.mu.Lock()
	defer app.mu.Unlock()
	return app.booted
}

// Container returns the composed container. Initializers may use it while
// the application is still booting.
func (app *Application) Container() (*container.Container, error) {
	app.mu.Lock()
	defer app.mu.Unlock()
	if app.container == nil {
		return nil, ErrNotBooted
	}
	return app.container, nil
}

// Router returns the application's router once routes are mapped.
func (app *Application) Router() (*router.Router, error) {
	app.mu.Lock()
	defer app.mu.Unlock()
	if app.router == nil {
		return nil, ErrNotBooted
	}
	return app.router, nil
}

// Addons returns the loaded addons in load order.
func (app *Application) Addons() []addon.Loaded {
	app.mu.Lock()
	defer app.mu.Unlock()
	return append([]addon.Loaded(nil), app.loaded...)
}

// WatchDirs lists the directories whose config files feed the container.
func (app *Application) WatchDirs() []string {
	dirs := []string{app.rootDir}
	for _, l := range app.Addons() {
		if l.Dir != "" {
			dirs = append(dirs, l.Dir)
		}
	}
	return dirs
}

func (app *Application) Config() *config.Config      { return app.cfg }
func (app *Application) Logger() logging.Logger      { return app.logger }
func (app *Application) RootDir() string             { return app.rootDir }
func (app *Application) Metrics() *metrics.Collector { return app.metrics }

func (app *Application) addonNames() []string {
	names := make([]string, 0, len(app.loaded))
	for _, l := range app.loaded {
		names = append(names, l.Name)
	}
	return names
}
