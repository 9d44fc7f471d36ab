package container

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/jinzhu/inflection"
	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"

	"github.com/GoCodeAlone/keel/logging"
)

// Resolver maps specifiers to values from a single addon's namespace.
// Retrieve reports false when the addon has nothing for the specifier;
// deciding what to do next is the container's job.
type Resolver interface {
	Name() string
	Retrieve(spec Specifier) (any, bool)
	AvailableForType(t Type) []Specifier
	Register(spec Specifier, value any)
}

// configExtensions are tried in order for on-disk config files.
var configExtensions = []string{".yaml", ".yml", ".toml", ".json"}

// NamespaceResolver resolves specifiers against a folder-style namespace,
// the map of module paths an addon exposes (e.g. "actions/users/show").
//
// Most types live under a folder named after the pluralized type. The app,
// config and initializer types live in fixed folders instead, and config
// additionally falls back to data files under <root>/config.
type NamespaceResolver struct {
	name      string
	rootDir   string
	namespace map[string]any

	logger    logging.Logger

	mu     sync.RWMutex
	manual map[string]any
}

// ResolverOption configures a NamespaceResolver.
type ResolverOption func(*NamespaceResolver)

// WithResolverLogger sets the logger that reports unreadable config files.
func WithResolverLogger(l logging.Logger) ResolverOption {
	return func(r *NamespaceResolver) { r.logger = logging.OrNop(l) }
}

// NewNamespaceResolver returns a resolver for the addon called name. rootDir
// may be empty when the addon has no files on disk.
func NewNamespaceResolver(name, rootDir string, namespace map[string]any, opts ...ResolverOption) *NamespaceResolver {
	ns := make(map[string]any, len(namespace))
	for k, v := range namespace {
		ns[strings.Trim(k, "/")] = v
	}
	r := &NamespaceResolver{
		name:      name,
		rootDir:   rootDir,
		namespace: ns,
		logger:    logging.Nop(),
		manual:    make(map[string]any),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Name returns the addon name the resolver was created for.
func (r *NamespaceResolver) Name() string { return r.name }

// RootDir returns the addon directory the resolver reads config files from.
func (r *NamespaceResolver) RootDir() string { return r.rootDir }

// Register binds value to spec ahead of anything in the namespace.
func (r *NamespaceResolver) Register(spec Specifier, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.manual[spec.String()] = value
}

// Retrieve looks spec up in manual registrations, then the namespace, and
// for config specifiers finally in the addon's config directory.
func (r *NamespaceResolver) Retrieve(spec Specifier) (any, bool) {
	r.mu.RLock()
	v, ok := r.manual[spec.String()]
	r.mu.RUnlock()
	if ok {
		return v, true
	}

	if v, ok := r.namespace[modulePath(spec)]; ok {
		return v, true
	}
	if spec.Type == TypeConfig {
		return r.readConfigFile(spec.Path)
	}
	return nil, false
}

// AvailableForType lists every specifier of type t the resolver can
// retrieve, sorted by path.
func (r *NamespaceResolver) AvailableForType(t Type) []Specifier {
	seen := make(map[string]bool)
	var out []Specifier
	add := func(path string) {
		if path == "" || seen[path] {
			return
		}
		seen[path] = true
		out = append(out, Specifier{Type: t, Path: path})
	}

	r.mu.RLock()
	for key := range r.manual {
		if spec, err := ParseSpecifier(key); err == nil && spec.Type == t {
			add(spec.Path)
		}
	}
	r.mu.RUnlock()

	prefix := folderFor(t) + "/"
	for key := range r.namespace {
		rest, ok := strings.CutPrefix(key, prefix)
		if !ok {
			continue
		}
		// config:initializers/x would shadow the initializer folder.
		if t == TypeConfig && strings.HasPrefix(rest, "initializers/") {
			continue
		}
		add(rest)
	}
	if t == TypeConfig {
		for _, path := range r.configFiles() {
			add(path)
		}
	}

	slices.SortFunc(out, func(a, b Specifier) int { return strings.Compare(a.Path, b.Path) })
	return out
}

func (r *NamespaceResolver) readConfigFile(path string) (any, bool) {
	if r.rootDir == "" {
		return nil, false
	}
	base := filepath.Join(r.rootDir, "config", filepath.FromSlash(path))
	for _, ext := range configExtensions {
		file := base + ext
		data, err := os.ReadFile(file)
		if err != nil {
			continue
		}
		out, err := decodeConfig(ext, data)
		if err != nil {
			r.logger.Warn("Config file could not be decoded", "resolver", r.name, "path", file, "error", err)
			return nil, false
		}
		return out, true
	}
	return nil, false
}

func (r *NamespaceResolver) configFiles() []string {
	if r.rootDir == "" {
		return nil
	}
	dir := filepath.Join(r.rootDir, "config")
	var out []string
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if d.Name() == "initializers" {
				return fs.SkipDir
			}
			return nil
		}
		ext := filepath.Ext(p)
		if !slices.Contains(configExtensions, ext) {
			return nil
		}
		rel, err := filepath.Rel(dir, strings.TrimSuffix(p, ext))
		if err == nil {
			out = append(out, filepath.ToSlash(rel))
		}
		return nil
	})
	return out
}

func decodeConfig(ext string, data []byte) (map[string]any, error) {
	out := make(map[string]any)
	var err error
	switch ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &out)
	case ".toml":
		_, err = toml.NewDecoder(bytes.NewReader(data)).Decode(&out)
	case ".json":
		err = jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(data, &out)
	default:
		err = fmt.Errorf("unsupported config extension %q", ext)
	}
	return out, err
}

// modulePath is where spec lives inside a namespace.
func modulePath(spec Specifier) string {
	return folderFor(spec.Type) + "/" + strings.Trim(spec.Path, "/")
}

func folderFor(t Type) string {
	switch t {
	case TypeApp:
		return "app"
	case TypeConfig:
		return "config"
	case TypeInitializer:
		return "config/initializers"
	default:
		return inflection.Plural(string(t))
	}
}
