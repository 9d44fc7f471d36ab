package addon

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"
)

// DefaultMarker is the keyword that identifies a package as an addon.
const DefaultMarker = "keel-addon"

// ManifestFiles are the manifest names looked for in a directory, in
// order of preference.
var ManifestFiles = []string{"addon.yaml", "addon.yml", "addon.toml", "addon.json"}

// Manifest is the package description found at the root of the project and
// of every addon.
type Manifest struct {
	Name            string            `yaml:"name" toml:"name" json:"name" validate:"required"`
	Version         string            `yaml:"version" toml:"version" json:"version" validate:"omitempty,max=64"`
	Keywords        []string          `yaml:"keywords" toml:"keywords" json:"keywords"`
	Dependencies    map[string]string `yaml:"dependencies" toml:"dependencies" json:"dependencies" validate:"dive,keys,required,endkeys"`
	DevDependencies map[string]string `yaml:"devDependencies" toml:"devDependencies" json:"devDependencies" validate:"dive,keys,required,endkeys"`
	Addon           Ordering          `yaml:"addon" toml:"addon" json:"addon"`
}

// Ordering holds load-order hints relative to other addons.
type Ordering struct {
	Before []string `yaml:"before" toml:"before" json:"before" validate:"dive,required"`
	After  []string `yaml:"after" toml:"after" json:"after" validate:"dive,required"`
}

// IsAddon reports whether the manifest carries marker among its keywords.
func (m *Manifest) IsAddon(marker string) bool {
	return slices.Contains(m.Keywords, marker)
}

// ManifestReader reads the manifest of a directory. It returns an error
// wrapping ErrNoManifest when the directory has none.
type ManifestReader interface {
	Read(dir string) (*Manifest, error)
}

// FileManifestReader reads YAML, TOML or JSON manifests from disk.
type FileManifestReader struct {
	validate *validator.Validate
}

// NewFileManifestReader returns a reader that validates manifests after
// decoding them.
func NewFileManifestReader() *FileManifestReader {
	return &FileManifestReader{validate: validator.New()}
}

// Read decodes the first manifest file found in dir, trying ManifestFiles
// in order.
func (r *FileManifestReader) Read(dir string) (*Manifest, error) {
	for _, name := range ManifestFiles {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		m, err := decodeManifest(filepath.Ext(name), data)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidManifest, path, err)
		}
		if err := r.validate.Struct(m); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidManifest, path, err)
		}
		return m, nil
	}
	return nil, fmt.Errorf("%w in %s", ErrNoManifest, dir)
}

func decodeManifest(ext string, data []byte) (*Manifest, error) {
	m := &Manifest{}
	var err error
	switch ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, m)
	case ".toml":
		_, err = toml.NewDecoder(bytes.NewReader(data)).Decode(m)
	case ".json":
		err = jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(data, m)
	default:
		err = fmt.Errorf("unsupported manifest format %q", ext)
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}
