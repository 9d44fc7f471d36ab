// Package addon discovers addons from package manifests and orders them
// for loading.
package addon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/GoCodeAlone/keel/logging"
	"github.com/GoCodeAlone/keel/topsort"
)

// Descriptor is a discovered addon.
type Descriptor struct {
	Name string
	Dir  string
	// Before and After combine the manifest hints with the implicit
	// "after my own addon dependencies" constraint.
	Before   []string
	After    []string
	Manifest *Manifest
}

// Options control a single discovery.
type Options struct {
	// Preseeded addon directories are discovered first and take
	// precedence over same-named addons found through dependencies.
	Preseeded []string
	// Environment "production" excludes the root's devDependencies.
	Environment string
}

// Discoverer walks manifests to find addons.
type Discoverer struct {
	reader    ManifestReader
	marker    string
	addonsDir string
	logger    logging.Logger
}

// DiscovererOption configures a Discoverer.
type DiscovererOption func(*Discoverer)

// WithManifestReader replaces the reader used for addon manifests.
func WithManifestReader(r ManifestReader) DiscovererOption {
	return func(d *Discoverer) { d.reader = r }
}

// WithMarker sets the keyword that marks a dependency as an addon.
func WithMarker(marker string) DiscovererOption {
	return func(d *Discoverer) { d.marker = marker }
}

// WithAddonsDir sets the folder name dependencies are installed under.
func WithAddonsDir(name string) DiscovererOption {
	return func(d *Discoverer) { d.addonsDir = name }
}

// WithLogger sets the logger for skipped and discovered addons.
func WithLogger(l logging.Logger) DiscovererOption {
	return func(d *Discoverer) { d.logger = logging.OrNop(l) }
}

// NewDiscoverer returns a Discoverer with the default marker and addons
// folder.
func NewDiscoverer(opts ...DiscovererOption) *Discoverer {
	d := &Discoverer{
		reader:    NewFileManifestReader(),
		marker:    DefaultMarker,
		addonsDir: "addons",
		logger:    logging.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

type discovery struct {
	ctx      context.Context
	vertices []topsort.Vertex[Descriptor]
	byName   map[string]int
	// visiting guards against re-entering a directory through a
	// dependency cycle before its vertex is complete.
	visiting map[string]bool
}

// Discover returns the addons reachable from rootDir's manifest in load
// order. The root project itself is not included. Discovery only reads the
// filesystem and may be repeated.
func (d *Discoverer) Discover(ctx context.Context, rootDir string, opts Options) ([]Descriptor, error) {
	rootDir, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, err
	}
	st := &discovery{
		ctx:      ctx,
		byName:   make(map[string]int),
		visiting: make(map[string]bool),
	}

	for _, dir := range opts.Preseeded {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, err
		}
		m, err := d.reader.Read(abs)
		if err != nil {
			return nil, fmt.Errorf("preseeded addon %s: %w", dir, err)
		}
		if _, err := d.visit(st, abs, m); err != nil {
			return nil, err
		}
	}

	root, err := d.reader.Read(rootDir)
	switch {
	case errors.Is(err, ErrNoManifest):
		d.logger.Debug("No root manifest, only preseeded addons are loaded", "dir", rootDir)
	case err != nil:
		return nil, err
	default:
		deps := root.Dependencies
		if opts.Environment != "production" && len(root.DevDependencies) > 0 {
			deps = mergeDeps(root.Dependencies, root.DevDependencies)
		}
		if _, err := d.visitDeps(st, rootDir, deps); err != nil {
			return nil, err
		}
	}

	sorted, err := topsort.Sort(st.vertices)
	if err != nil {
		return nil, fmt.Errorf("ordering addons: %w", err)
	}
	return sorted, nil
}

// visit records the addon in dir and then its addon dependencies.
func (d *Discoverer) visit(st *discovery, dir string, m *Manifest) (string, error) {
	if err := st.ctx.Err(); err != nil {
		return "", err
	}
	if _, seen := st.byName[m.Name]; seen {
		d.logger.Debug("Addon already discovered, skipping", "addon", m.Name, "dir", dir)
		return m.Name, nil
	}

	idx := len(st.vertices)
	st.byName[m.Name] = idx
	st.vertices = append(st.vertices, topsort.Vertex[Descriptor]{Name: m.Name})
	st.visiting[dir] = true
	defer delete(st.visiting, dir)

	deps, err := d.visitDeps(st, dir, m.Dependencies)
	if err != nil {
		return "", err
	}

	desc := Descriptor{
		Name:     m.Name,
		Dir:      dir,
		Before:   slices.Clone(m.Addon.Before),
		After:    appendMissing(slices.Clone(m.Addon.After), deps...),
		Manifest: m,
	}
	st.vertices[idx] = topsort.Vertex[Descriptor]{
		Name:   desc.Name,
		Before: desc.Before,
		After:  desc.After,
		Value:  desc,
	}
	d.logger.Debug("Addon discovered", "addon", desc.Name, "dir", dir)
	return m.Name, nil
}

// visitDeps visits the addon dependencies declared by the manifest in dir
// and returns their names.
func (d *Discoverer) visitDeps(st *discovery, dir string, deps map[string]string) ([]string, error) {
	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	slices.Sort(names)

	var addons []string
	for _, name := range names {
		if idx, seen := st.byName[name]; seen {
			addons = append(addons, st.vertices[idx].Name)
			continue
		}
		depDir, ok := d.locate(dir, name, deps[name])
		if !ok {
			d.logger.Warn("Dependency not installed, skipping", "dependency", name, "from", dir)
			continue
		}
		if st.visiting[depDir] {
			continue
		}
		m, err := d.reader.Read(depDir)
		if errors.Is(err, ErrNoManifest) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if !m.IsAddon(d.marker) {
			continue
		}
		addonName, err := d.visit(st, depDir, m)
		if err != nil {
			return nil, err
		}
		addons = append(addons, addonName)
	}
	return addons, nil
}

// locate finds the installed directory of dependency name declared in dir.
// "file:" versions are paths relative to dir; anything else is looked up
// in the addons folder of dir and each of its parents.
func (d *Discoverer) locate(dir, name, version string) (string, bool) {
	if rel, ok := strings.CutPrefix(version, "file:"); ok {
		p := rel
		if !filepath.IsAbs(p) {
			p = filepath.Join(dir, rel)
		}
		return p, isDir(p)
	}
	for cur := dir; ; {
		candidate := filepath.Join(cur, d.addonsDir, filepath.FromSlash(name))
		if isDir(candidate) {
			return candidate, true
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return "", false
		}
		cur = parent
	}
}

func isDir(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}

func mergeDeps(a, b map[string]string) map[string]string {
	out := make(map[string]string, len(a)+len(b))
	for k, v := range b {
		out[k] = v
	}
	for k, v := range a {
		out[k] = v
	}
	return out
}

func appendMissing(dst []string, names ...string) []string {
	for _, n := range names {
		if !slices.Contains(dst, n) {
			dst = append(dst, n)
		}
	}
	return dst
}
