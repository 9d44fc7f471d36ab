package keel

import (
	"fmt"

	"github.com/GoCodeAlone/keel/addon"
	"github.com/GoCodeAlone/keel/config"
	"github.com/GoCodeAlone/keel/logging"
	"github.com/GoCodeAlone/keel/metrics"
	"github.com/GoCodeAlone/keel/router"
)

// ApplicationOption configures an Application before it boots.
type ApplicationOption func(*Application) error

// WithConfig replaces the default configuration.
func WithConfig(cfg *config.Config) ApplicationOption {
	return func(app *Application) error {
		if cfg == nil {
			return ErrNilConfig
		}
		app.cfg = cfg
		return nil
	}
}

// WithLogger sets the logger shared by every component.
func WithLogger(l logging.Logger) ApplicationOption {
	return func(app *Application) error {
		app.logger = logging.OrNop(l)
		return nil
	}
}

// WithRootDir sets the project directory addons are discovered from.
func WithRootDir(dir string) ApplicationOption {
	return func(app *Application) error {
		app.rootDir = dir
		return nil
	}
}

// WithAddons adds compiled-in addons. They are matched to discovered
// addon directories by name.
func WithAddons(addons ...addon.Addon) ApplicationOption {
	return func(app *Application) error {
		for _, a := range addons {
			if a == nil {
				return ErrNilAddon
			}
		}
		app.addons = append(app.addons, addons...)
		return nil
	}
}

// WithNamespace sets the project's own namespace. It is consulted before
// every addon.
func WithNamespace(ns map[string]any) ApplicationOption {
	return func(app *Application) error {
		app.namespace = ns
		return nil
	}
}

// WithRoutes maps the project's own routes after every addon's.
func WithRoutes(fn func(router.Map) error) ApplicationOption {
	return func(app *Application) error {
		app.routes = fn
		return nil
	}
}

// WithMiddleware appends project middleware after every addon's.
func WithMiddleware(mw ...router.Middleware) ApplicationOption {
	return func(app *Application) error {
		app.middleware = append(app.middleware, mw...)
		return nil
	}
}

// WithPreseeded adds addon directories discovered ahead of dependencies.
func WithPreseeded(dirs ...string) ApplicationOption {
	return func(app *Application) error {
		app.preseeded = append(app.preseeded, dirs...)
		return nil
	}
}

// WithEnvironment overrides the configured environment.
func WithEnvironment(env string) ApplicationOption {
	return func(app *Application) error {
		app.environment = env
		return nil
	}
}

// WithObserver registers an observer before boot so it sees boot events.
func WithObserver(o Observer, eventTypes ...string) ApplicationOption {
	return func(app *Application) error {
		if err := app.RegisterObserver(o, eventTypes...); err != nil {
			return fmt.Errorf("registering observer: %w", err)
		}
		return nil
	}
}

// WithMetrics uses c for request and lookup metrics. Without it a collector
// is created when metrics are enabled in the config.
func WithMetrics(c *metrics.Collector) ApplicationOption {
	return func(app *Application) error {
		app.metrics = c
		return nil
	}
}
