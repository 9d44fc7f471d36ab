// Package container implements the specifier-addressed dependency container
// that addons populate and actions resolve their collaborators from.
//
// A lookup consults, in order, the container's own registrations, every
// resolver from the most recently added to the first, and then the type's
// fallback chain. Singleton types are instantiated once per source specifier;
// every other value is cached as registered and instantiated on demand.
package container

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/GoCodeAlone/keel/logging"
)

// Constructor builds a value with access to the container that resolved it.
type Constructor func(c *Container) (any, error)

// ContainerAware values receive the owning container before first use.
type ContainerAware interface {
	SetContainer(c *Container)
}

// Teardowner is implemented by singletons holding resources to release.
type Teardowner interface {
	Teardown() error
}

// FallbackFunc returns the next specifier to try after spec was not found.
type FallbackFunc func(spec Specifier) (Specifier, bool)

// FallbackTo falls back to path within the same type.
func FallbackTo(path string) FallbackFunc {
	return func(spec Specifier) (Specifier, bool) {
		if spec.Path == path {
			return Specifier{}, false
		}
		return Specifier{Type: spec.Type, Path: path}, true
	}
}

// TypeOptions control how values of one type are resolved.
type TypeOptions struct {
	Singleton bool
	Fallback  FallbackFunc
}

// LookupOutcome classifies a lookup for observers.
type LookupOutcome string

const (
	OutcomeCached   LookupOutcome = "cached"
	OutcomeResolved LookupOutcome = "resolved"
	OutcomeFallback LookupOutcome = "fallback"
	OutcomeMissing  LookupOutcome = "missing"
)

// LookupObserver is notified of every lookup.
type LookupObserver interface {
	ObserveLookup(t Type, outcome LookupOutcome)
}

type cacheEntry struct {
	value  any
	source Specifier
}

// instance is a materialized singleton. built marks values produced by a
// constructor; registered values outlive invalidation and are reused.
type instance struct {
	value any
	built bool
}

// Container holds registrations, resolvers and the resolution cache. The
// zero value is not usable; construct with New.
type Container struct {
	mu        sync.RWMutex
	registry  map[string]any
	resolvers []Resolver
	cache     map[string]cacheEntry
	instances map[string]instance
	options   map[Type]TypeOptions
	// generation is bumped by every invalidation so that lookups racing
	// with a Register do not cache stale results.
	generation uint64

	logger   logging.Logger
	observer LookupObserver
}

// Option configures a Container.
type Option func(*Container)

// WithLogger sets the logger used for resolution and teardown messages.
func WithLogger(l logging.Logger) Option {
	return func(c *Container) { c.logger = logging.OrNop(l) }
}

// WithResolvers adds resolvers in precedence order, lowest first.
func WithResolvers(rs ...Resolver) Option {
	return func(c *Container) { c.resolvers = append(c.resolvers, rs...) }
}

// WithTypeOptions replaces the options for t.
func WithTypeOptions(t Type, o TypeOptions) Option {
	return func(c *Container) { c.options[t] = o }
}

// WithLookupObserver reports every lookup outcome to o.
func WithLookupObserver(o LookupObserver) Option {
	return func(c *Container) { c.observer = o }
}

// DefaultTypeOptions returns the built-in per-type behavior: services,
// serializers, parsers, ORM adapters and initializers are singletons, and
// serializers and parsers fall back to their "application" entry.
func DefaultTypeOptions() map[Type]TypeOptions {
	return map[Type]TypeOptions{
		TypeService:     {Singleton: true},
		TypeSerializer:  {Singleton: true, Fallback: FallbackTo("application")},
		TypeParser:      {Singleton: true, Fallback: FallbackTo("application")},
		TypeORMAdapter:  {Singleton: true},
		TypeInitializer: {Singleton: true},
	}
}

// New returns an empty container with the default type options.
func New(opts ...Option) *Container {
	c := &Container{
		registry:  make(map[string]any),
		cache:     make(map[string]cacheEntry),
		instances: make(map[string]instance),
		options:   DefaultTypeOptions(),
		logger:    logging.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AddResolver appends r. Resolvers added later take precedence.
func (c *Container) AddResolver(r Resolver) error {
	if r == nil {
		return ErrNilResolver
	}
	c.mu.Lock()
	c.resolvers = append(c.resolvers, r)
	dropped := c.invalidateAllLocked()
	c.mu.Unlock()
	c.releaseLogged(dropped)
	return nil
}

// Resolvers returns the resolvers in the order they were added.
func (c *Container) Resolvers() []Resolver {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.resolvers)
}

// SetTypeOptions replaces the options for t.
func (c *Container) SetTypeOptions(t Type, o TypeOptions) {
	c.mu.Lock()
	c.options[t] = o
	dropped := c.invalidateAllLocked()
	c.mu.Unlock()
	c.releaseLogged(dropped)
}

// SetDefaultORMAdapter makes every unresolved orm-adapter specifier fall
// back to orm-adapter:name.
func (c *Container) SetDefaultORMAdapter(name string) {
	o := c.typeOptions(TypeORMAdapter)
	o.Fallback = FallbackTo(name)
	c.SetTypeOptions(TypeORMAdapter, o)
}

// Register binds value to spec, replacing any earlier binding. Cached
// results resolved from or for spec are dropped; others are kept.
func (c *Container) Register(spec string, value any) error {
	s, err := ParseSpecifier(spec)
	if err != nil {
		return err
	}
	c.RegisterSpecifier(s, value)
	return nil
}

// RegisterSpecifier is Register for an already parsed specifier.
func (c *Container) RegisterSpecifier(spec Specifier, value any) {
	c.mu.Lock()
	c.registry[spec.String()] = value
	dropped := c.invalidateLocked(spec)
	c.mu.Unlock()
	c.releaseLogged(dropped)
}

// Lookup resolves spec or returns a *NotFoundError.
func (c *Container) Lookup(spec string) (any, error) {
	s, err := ParseSpecifier(spec)
	if err != nil {
		return nil, err
	}
	return c.LookupSpecifier(s)
}

// MustLookup is Lookup for values that must exist; it panics otherwise.
func (c *Container) MustLookup(spec string) any {
	v, err := c.Lookup(spec)
	if err != nil {
		panic(err)
	}
	return v
}

// LookupSpecifier is Lookup for an already parsed specifier.
func (c *Container) LookupSpecifier(spec Specifier) (any, error) {
	key := spec.String()

	c.mu.RLock()
	entry, ok := c.cache[key]
	gen := c.generation
	c.mu.RUnlock()
	if ok {
		c.observe(spec.Type, OutcomeCached)
		return entry.value, nil
	}

	value, source, tried, found := c.find(spec)
	if !found {
		c.observe(spec.Type, OutcomeMissing)
		return nil, &NotFoundError{Specifier: spec, Tried: tried}
	}
	if source != spec {
		c.logger.Debug("Resolved through fallback", "specifier", key, "source", source.String())
		c.observe(spec.Type, OutcomeFallback)
	} else {
		c.observe(spec.Type, OutcomeResolved)
	}

	result, err := c.materialize(source, value, gen)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.cache[key]; ok {
		return existing.value, nil
	}
	if c.generation == gen {
		c.cache[key] = cacheEntry{value: result, source: source}
	}
	return result, nil
}

// Resolve looks spec up and asserts the result to T.
func Resolve[T any](c *Container, spec string) (T, error) {
	var zero T
	v, err := c.Lookup(spec)
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s is %T", ErrWrongType, spec, v)
	}
	return t, nil
}

// Instantiate returns a fresh instance for spec. Constructors of
// non-singleton types run on every call and singletons are returned as
// Lookup would return them. A non-singleton registered as a plain value
// cannot be instantiated and yields ErrSharedValue.
func (c *Container) Instantiate(spec string) (any, error) {
	s, err := ParseSpecifier(spec)
	if err != nil {
		return nil, err
	}
	v, err := c.LookupSpecifier(s)
	if err != nil {
		return nil, err
	}
	if c.typeOptions(s.Type).Singleton {
		return v, nil
	}
	ctor, ok := asConstructor(v)
	if !ok {
		return nil, fmt.Errorf("%w: %s is %T", ErrSharedValue, s, v)
	}
	inst, err := ctor(c)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConstructorFailed, s, err)
	}
	c.containerize(inst)
	return inst, nil
}

// Available lists every specifier of type t known to the registry or any
// resolver, sorted by path.
func (c *Container) Available(t Type) []Specifier {
	c.mu.RLock()
	seen := make(map[string]bool)
	var out []Specifier
	for key := range c.registry {
		if s, err := ParseSpecifier(key); err == nil && s.Type == t && !seen[s.Path] {
			seen[s.Path] = true
			out = append(out, s)
		}
	}
	resolvers := slices.Clone(c.resolvers)
	c.mu.RUnlock()

	for _, r := range resolvers {
		for _, s := range r.AvailableForType(t) {
			if !seen[s.Path] {
				seen[s.Path] = true
				out = append(out, s)
			}
		}
	}
	slices.SortFunc(out, func(a, b Specifier) int { return strings.Compare(a.Path, b.Path) })
	return out
}

// LookupAll resolves every available specifier of type t, keyed by path.
func (c *Container) LookupAll(t Type) (map[string]any, error) {
	specs := c.Available(t)
	out := make(map[string]any, len(specs))
	for _, s := range specs {
		v, err := c.LookupSpecifier(s)
		if err != nil {
			return nil, err
		}
		out[s.Path] = v
	}
	return out, nil
}

// ClearCache drops cached results for the given specifiers, or everything
// when called without arguments. Registrations are kept. Singletons built by
// a constructor are torn down and their errors returned joined.
func (c *Container) ClearCache(specs ...string) error {
	c.mu.Lock()
	var dropped map[string]instance
	if len(specs) == 0 {
		dropped = c.invalidateAllLocked()
	} else {
		dropped = make(map[string]instance)
		for _, spec := range specs {
			if s, err := ParseSpecifier(spec); err == nil {
				maps.Copy(dropped, c.invalidateLocked(s))
			}
		}
	}
	c.mu.Unlock()
	return release(dropped, true)
}

// Teardown releases every cached singleton, calling Teardown on those that
// implement Teardowner, and then empties the container.
func (c *Container) Teardown() error {
	c.mu.Lock()
	instances := c.invalidateAllLocked()
	c.registry = make(map[string]any)
	c.mu.Unlock()
	return release(instances, false)
}

// release tears down instances in key order. With builtOnly set, values
// that were registered rather than constructed are left alone.
func release(instances map[string]instance, builtOnly bool) error {
	var errs []error
	for _, k := range slices.Sorted(maps.Keys(instances)) {
		inst := instances[k]
		if builtOnly && !inst.built {
			continue
		}
		if t, ok := inst.value.(Teardowner); ok {
			if err := t.Teardown(); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", k, err))
			}
		}
	}
	return errors.Join(errs...)
}

func (c *Container) releaseLogged(instances map[string]instance) {
	if err := release(instances, true); err != nil {
		c.logger.Warn("Singleton teardown failed", "error", err)
	}
}

// find walks registry, resolvers and fallbacks.
func (c *Container) find(spec Specifier) (any, Specifier, []Specifier, bool) {
	visited := make(map[Specifier]bool)
	var tried []Specifier
	cur := spec
	for {
		visited[cur] = true
		tried = append(tried, cur)
		if v, ok := c.retrieve(cur); ok {
			return v, cur, tried, true
		}
		fallback := c.typeOptions(cur.Type).Fallback
		if fallback == nil {
			return nil, Specifier{}, tried, false
		}
		next, ok := fallback(cur)
		if !ok || visited[next] {
			return nil, Specifier{}, tried, false
		}
		cur = next
	}
}

func (c *Container) retrieve(spec Specifier) (any, bool) {
	c.mu.RLock()
	v, ok := c.registry[spec.String()]
	resolvers := c.resolvers
	c.mu.RUnlock()
	if ok {
		return v, true
	}
	for i := len(resolvers) - 1; i >= 0; i-- {
		if v, ok := resolvers[i].Retrieve(spec); ok {
			return v, true
		}
	}
	return nil, false
}

// materialize turns a retrieved value into what the cache should hold for
// source: the shared instance for singletons, the value itself otherwise.
func (c *Container) materialize(source Specifier, value any, gen uint64) (any, error) {
	if !c.typeOptions(source.Type).Singleton {
		if _, isCtor := asConstructor(value); !isCtor {
			c.containerize(value)
		}
		return value, nil
	}

	key := source.String()
	c.mu.RLock()
	cached, ok := c.instances[key]
	c.mu.RUnlock()
	if ok {
		return cached.value, nil
	}

	inst := value
	ctor, built := asConstructor(value)
	if built {
		v, err := ctor(c)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrConstructorFailed, source, err)
		}
		inst = v
	}
	c.containerize(inst)

	c.mu.Lock()
	if existing, ok := c.instances[key]; ok {
		c.mu.Unlock()
		// Lost the race to another lookup; release our copy.
		if t, ok := inst.(Teardowner); ok && built {
			_ = t.Teardown()
		}
		return existing.value, nil
	}
	if c.generation == gen {
		c.instances[key] = instance{value: inst, built: built}
	}
	c.mu.Unlock()
	return inst, nil
}

// asConstructor accepts both Constructor values and plain func literals of
// the same signature.
func asConstructor(v any) (Constructor, bool) {
	switch fn := v.(type) {
	case Constructor:
		return fn, true
	case func(*Container) (any, error):
		return fn, true
	}
	return nil, false
}

func (c *Container) containerize(v any) {
	if aware, ok := v.(ContainerAware); ok {
		aware.SetContainer(c)
	}
}

func (c *Container) typeOptions(t Type) TypeOptions {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.options[t]
}

func (c *Container) observe(t Type, outcome LookupOutcome) {
	if c.observer != nil {
		c.observer.ObserveLookup(t, outcome)
	}
}

// invalidateLocked drops cache entries for or from spec and returns the
// singleton it detached, for release outside the lock.
func (c *Container) invalidateLocked(spec Specifier) map[string]instance {
	for key, entry := range c.cache {
		if key == spec.String() || entry.source == spec {
			delete(c.cache, key)
		}
	}
	dropped := make(map[string]instance, 1)
	if inst, ok := c.instances[spec.String()]; ok {
		dropped[spec.String()] = inst
		delete(c.instances, spec.String())
	}
	c.generation++
	return dropped
}

func (c *Container) invalidateAllLocked() map[string]instance {
	dropped := c.instances
	c.cache = make(map[string]cacheEntry)
	c.instances = make(map[string]instance)
	c.generation++
	return dropped
}
