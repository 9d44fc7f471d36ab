package addon

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAddon struct {
	name          string
	before, after []string
}

func (s stubAddon) Name() string     { return s.name }
func (s stubAddon) Before() []string { return s.before }
func (s stubAddon) After() []string  { return s.after }

type bareAddon string

func (b bareAddon) Name() string { return string(b) }

func TestPlan_MergesDiscoveredAndCompiledAddons(t *testing.T) {
	discovered := []Descriptor{
		{Name: "base", Dir: "/addons/base"},
		{Name: "override", Dir: "/addons/override", After: []string{"base"}},
	}
	addons := []Addon{
		bareAddon("override"),
		stubAddon{name: "early", before: []string{"base"}},
		bareAddon("late"),
	}

	plan, err := Plan(discovered, addons)
	require.NoError(t, err)

	var got []string
	for _, l := range plan {
		got = append(got, l.Name)
	}
	assert.Equal(t, []string{"early", "base", "override", "late"}, got)
	assert.Nil(t, plan[1].Addon, "base has no compiled-in half")
	assert.Equal(t, bareAddon("override"), plan[2].Addon)
	assert.Equal(t, "/addons/override", plan[2].Dir)
}

func TestPlan_DuplicateCompiledAddon(t *testing.T) {
	_, err := Plan(nil, []Addon{bareAddon("x"), bareAddon("x")})
	assert.ErrorIs(t, err, ErrDuplicateAddon)
}

func TestFileManifestReader(t *testing.T) {
	dir := t.TempDir()
	r := NewFileManifestReader()

	_, err := r.Read(dir)
	assert.ErrorIs(t, err, ErrNoManifest)

	write(t, filepath.Join(dir, "addon.json"), `{"name":"fromjson"}`)
	write(t, filepath.Join(dir, "addon.yml"), "name: fromyml\nkeywords: [keel-addon]\naddon:\n  before: [x]\n")
	m, err := r.Read(dir)
	require.NoError(t, err)
	assert.Equal(t, "fromyml", m.Name, "yml is preferred over json")
	assert.True(t, m.IsAddon(DefaultMarker))
	assert.Equal(t, []string{"x"}, m.Addon.Before)

	bad := t.TempDir()
	write(t, filepath.Join(bad, "addon.yaml"), "name: [unterminated\n")
	_, err = r.Read(bad)
	assert.ErrorIs(t, err, ErrInvalidManifest)

	empty := t.TempDir()
	write(t, filepath.Join(empty, "addon.yaml"), "name: x\naddon:\n  after: ['']\n")
	_, err = r.Read(empty)
	assert.ErrorIs(t, err, ErrInvalidManifest)
}

func TestWatcher_ReportsConfigChanges(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "config"), 0o755))

	w, err := NewWatcher([]string{dir}, nil)
	require.NoError(t, err)
	defer w.Close()

	var mu sync.Mutex
	var changed []string
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = w.Run(ctx, func(path string) {
			mu.Lock()
			defer mu.Unlock()
			changed = append(changed, filepath.Base(path))
		})
	}()

	write(t, filepath.Join(dir, "notes.txt"), "ignored")
	write(t, filepath.Join(dir, "config", "database.yaml"), "host: db\n")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, c := range changed {
			if c == "database.yaml" {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.NotContains(t, changed, "notes.txt")
}
