package keel

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/GoCodeAlone/keel/addon"
	"github.com/GoCodeAlone/keel/container"
	"github.com/GoCodeAlone/keel/topsort"
)

// Initializer runs once at boot, after every addon's routes are mapped.
// Initializers are found under the initializer type in the container and
// may order themselves against each other by name with Before and After
// (the addon.Orderer methods).
type Initializer interface {
	Name() string
	Initialize(ctx context.Context, app *Application) error
}

type initializerFunc struct {
	name string
	fn   func(ctx context.Context, app *Application) error
}

// InitializerFunc adapts fn to an unordered Initializer.
func InitializerFunc(name string, fn func(ctx context.Context, app *Application) error) Initializer {
	return &initializerFunc{name: name, fn: fn}
}

func (f *initializerFunc) Name() string { return f.name }

func (f *initializerFunc) Initialize(ctx context.Context, app *Application) error {
	return f.fn(ctx, app)
}

// initializers resolves and orders every available initializer.
func (app *Application) initializers() ([]Initializer, error) {
	found, err := app.container.LookupAll(container.TypeInitializer)
	if err != nil {
		return nil, err
	}

	paths := slices.Sorted(maps.Keys(found))
	vertices := make([]topsort.Vertex[Initializer], 0, len(paths))
	for _, path := range paths {
		init, ok := found[path].(Initializer)
		if !ok {
			return nil, fmt.Errorf("%w: initializer:%s is %T", ErrNotAnInitializer, path, found[path])
		}
		name := init.Name()
		if name == "" {
			name = path
		}
		v := topsort.Vertex[Initializer]{Name: name, Value: init}
		if o, ok := init.(addon.Orderer); ok {
			v.Before = o.Before()
			v.After = o.After()
		}
		vertices = append(vertices, v)
	}

	ordered, err := topsort.Sort(vertices)
	if err != nil {
		return nil, fmt.Errorf("ordering initializers: %w", err)
	}
	return ordered, nil
}

func (app *Application) runInitializers(ctx context.Context) error {
	ordered, err := app.initializers()
	if err != nil {
		return err
	}
	for _, init := range ordered {
		if err := ctx.Err(); err != nil {
			return err
		}
		app.logger.Debug("Running initializer", "name", init.Name())
		if err := init.Initialize(ctx, app); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInitializerFail, init.Name(), err)
		}
		app.emitEvent(ctx, EventTypeInitializerRan, map[string]any{"name": init.Name()}, nil)
	}
	return nil
}
