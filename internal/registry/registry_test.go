package registry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcdickinson/doxylink/internal/config"
	"github.com/jcdickinson/doxylink/internal/db"
	"github.com/jcdickinson/doxylink/internal/symbols"
)

const polyvoxTag = `<?xml version="1.0"?>
<tagfile>
  <compound kind="namespace">
    <name>PolyVox</name>
    <filename>namespace_poly_vox.html</filename>
  </compound>
  <compound kind="class">
    <name>PolyVox::Volume</name>
    <filename>class_volume.html</filename>
    <member kind="function">
      <name>getWidth</name>
      <anchorfile>class_volume.html</anchorfile>
      <anchor>a3</anchor>
      <arglist>() const</arglist>
    </member>
    <member kind="variable">
      <name></name>
    </member>
  </compound>
</tagfile>`

const extraTag = `<?xml version="1.0"?>
<tagfile>
  <compound kind="class">
    <name>PolyVox::Volume</name>
    <filename>class_volume.html</filename>
  </compound>
  <compound kind="class">
    <name>PolyVox::Region</name>
    <filename>class_region.html</filename>
  </compound>
  <compound kind="class">
    <name>PolyVox::Vector</name>
    <filename>class_vector.html</filename>
  </compound>
</tagfile>`

// memStore is an in-memory Store.
type memStore struct {
	mu    sync.Mutex
	files map[string]db.TagFile
}

func newMemStore() *memStore {
	return &memStore{files: make(map[string]db.TagFile)}
}

func (m *memStore) UpsertTagFile(role, source, hash string, entries, skipped int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[role] = db.TagFile{Role: role, Source: source, ContentHash: hash, Entries: entries, Skipped: skipped, LoadedAt: time.Now()}
	return nil
}

func (m *memStore) GetTagFile(role string) (*db.TagFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tf, ok := m.files[role]
	if !ok {
		return nil, nil
	}
	return &tf, nil
}

func writeTag(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}

func testConfig(roles map[string]config.RoleConfig) *config.Config {
	return &config.Config{
		Roles: roles,
		Link:  config.LinkConfig{AddFunctionParentheses: true, SrcDir: "."},
		Index: config.IndexConfig{ContainerKinds: symbols.DefaultContainerKinds},
	}
}

func counterValue(t *testing.T, role, stage string) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, resolutionsTotal.WithLabelValues(role, stage).Write(&m))
	return m.GetCounter().GetValue()
}

func TestLoadAll_Local(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
	dir := t.TempDir()
	path := writeTag(t, dir, "PolyVox.tag", polyvoxTag)

	store := newMemStore()
	reg := New(testConfig(map[string]config.RoleConfig{
		"polyvox": {TagFile: path, RootDir: "https://example.org/polyvox"},
	}), store)

	require.NoError(t, reg.LoadAll(context.Background()))

	r, err := reg.Role("polyvox")
	require.NoError(t, err)
	snap := r.Snapshot()
	require.NotNil(t, snap)
	assert.Equal(t, 3, snap.Index.Len())
	assert.Len(t, snap.Report.Skipped, 1)
	assert.False(t, snap.FromCache)

	rec, err := store.GetTagFile("polyvox")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, snap.Hash, rec.ContentHash)
	assert.Equal(t, 3, rec.Entries)
	assert.Equal(t, 1, rec.Skipped)

	status := reg.Status()
	require.Len(t, status, 1)
	assert.True(t, status[0].Loaded)
	assert.Equal(t, 3, status[0].Entries)
}

func TestRole_ResolveCountsStages(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
	path := writeTag(t, t.TempDir(), "PolyVox.tag", polyvoxTag)

	reg := New(testConfig(map[string]config.RoleConfig{
		"metrics": {TagFile: path, RootDir: "html"},
	}), nil)
	require.NoError(t, reg.LoadAll(context.Background()))
	r, err := reg.Role("metrics")
	require.NoError(t, err)

	beforeExact := counterValue(t, "metrics", "exact")
	beforeNone := counterValue(t, "metrics", "none")

	m, ok := r.Resolve("PolyVox::Volume")
	require.True(t, ok)
	assert.Equal(t, symbols.StageExact, m.Stage)
	_, ok = r.Resolve("Nope")
	assert.False(t, ok)

	assert.Equal(t, beforeExact+1, counterValue(t, "metrics", "exact"))
	assert.Equal(t, beforeNone+1, counterValue(t, "metrics", "none"))
}

func TestRegistry_UnknownRole(t *testing.T) {
	reg := New(testConfig(nil), nil)

	_, err := reg.Role("nope")
	assert.ErrorIs(t, err, ErrUnknownRole)
	_, err = reg.Reload(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrUnknownRole)
}

func TestLoad_MissingFileWithoutCache(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())

	reg := New(testConfig(map[string]config.RoleConfig{
		"gone": {TagFile: filepath.Join(t.TempDir(), "missing.tag"), RootDir: "html"},
	}), newMemStore())

	err := reg.LoadAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `role "gone"`)

	r, err := reg.Role("gone")
	require.NoError(t, err)
	assert.Nil(t, r.Snapshot())

	ref := r.Linker().Link("Volume", "index.md")
	assert.False(t, ref.Resolved)
	assert.Contains(t, ref.Warning, "not loaded")

	_, err = r.Trace("Volume")
	assert.Error(t, err)
}

func TestLoad_RemoteFallsBackToCache(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())

	var failing atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failing.Load() {
			http.Error(w, "down", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(polyvoxTag))
	}))
	defer srv.Close()

	reg := New(testConfig(map[string]config.RoleConfig{
		"remote": {TagFile: srv.URL + "/PolyVox.tag", RootDir: srv.URL + "/html/"},
	}), newMemStore())
	ctx := context.Background()

	first, err := reg.Reload(ctx, "remote")
	require.NoError(t, err)
	assert.False(t, first.FromCache)

	failing.Store(true)
	second, err := reg.Reload(ctx, "remote")
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.Hash, second.Hash)
	assert.Equal(t, first.Index.Keys(), second.Index.Keys())
}

func TestLoad_LocalFallsBackToCache(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
	path := writeTag(t, t.TempDir(), "PolyVox.tag", polyvoxTag)

	reg := New(testConfig(map[string]config.RoleConfig{
		"polyvox": {TagFile: path, RootDir: "html"},
	}), newMemStore())
	ctx := context.Background()

	_, err := reg.Reload(ctx, "polyvox")
	require.NoError(t, err)
	require.NoError(t, os.Remove(path))

	snap, err := reg.Reload(ctx, "polyvox")
	require.NoError(t, err)
	assert.True(t, snap.FromCache)
	assert.Equal(t, 3, snap.Index.Len())
}

func TestLoad_InvalidXMLKeepsPreviousIndex(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
	path := writeTag(t, t.TempDir(), "PolyVox.tag", polyvoxTag)

	reg := New(testConfig(map[string]config.RoleConfig{
		"polyvox": {TagFile: path, RootDir: "html"},
	}), nil)
	ctx := context.Background()

	before, err := reg.Reload(ctx, "polyvox")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("<tagfile><compound"), 0644))
	_, err = reg.Reload(ctx, "polyvox")
	require.Error(t, err)

	r, _ := reg.Role("polyvox")
	assert.Same(t, before, r.Snapshot())
}

func TestReload_Concurrent(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
	path := writeTag(t, t.TempDir(), "PolyVox.tag", polyvoxTag)

	reg := New(testConfig(map[string]config.RoleConfig{
		"polyvox": {TagFile: path, RootDir: "html"},
	}), nil)
	r, _ := reg.Role("polyvox")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := reg.Reload(context.Background(), "polyvox")
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			// Readers see either no index or a complete one.
			if snap := r.Snapshot(); snap != nil {
				assert.Equal(t, 3, snap.Index.Len())
			}
		}()
	}
	wg.Wait()
	require.NotNil(t, r.Snapshot())
}

func TestRewrite(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
	path := writeTag(t, t.TempDir(), "PolyVox.tag", polyvoxTag)

	reg := New(testConfig(map[string]config.RoleConfig{
		"polyvox": {TagFile: path, RootDir: "https://example.org/pv"},
	}), nil)
	require.NoError(t, reg.LoadAll(context.Background()))

	src := "# Volumes\n\n" +
		"A [volume](polyvox:Volume) has a [](polyvox:getWidth).\n" +
		"See [Volume](polyvox:Volume) again and [nothing](polyvox:Nope).\n" +
		"Empty unresolved [](polyvox:Gone) and [web](https://example.org).\n"

	res := reg.Rewrite("docs/volumes.md", src, false)

	want := "# Volumes\n\n" +
		"A [volume](https://example.org/pv/class_volume.html) has a [getWidth()](https://example.org/pv/class_volume.html#a3).\n" +
		"See [Volume](https://example.org/pv/class_volume.html) again and nothing.\n" +
		"Empty unresolved Gone and [web](https://example.org).\n"
	assert.Equal(t, want, res.Markdown)

	require.Len(t, res.Links, 4)
	assert.Equal(t, "polyvox:Volume", res.Links[0].Destination)
	assert.Equal(t, 2, res.Links[0].Occurrences)
	assert.True(t, res.Links[0].Resolved)

	unresolved := res.Unresolved()
	require.Len(t, unresolved, 2)
	assert.Equal(t, "Nope", unresolved[0].Target)
	assert.Equal(t, "Gone", unresolved[1].Target)
	assert.Len(t, res.Warnings(), 2)
}

func TestRewrite_Manifest(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
	path := writeTag(t, t.TempDir(), "PolyVox.tag", polyvoxTag)

	reg := New(testConfig(map[string]config.RoleConfig{
		"polyvox": {TagFile: path, RootDir: "/srv/pv"},
	}), nil)
	require.NoError(t, reg.LoadAll(context.Background()))

	res := reg.Rewrite("index.md", "[v](polyvox:Volume)", true)
	assert.True(t, strings.HasPrefix(res.Markdown, "---\n\"polyvox:Volume\": \"/srv/pv/class_volume.html\"\n---\n\n"))
	assert.True(t, strings.HasSuffix(res.Markdown, "[v](/srv/pv/class_volume.html)"))
}

func TestRewrite_UnresolvedBracketText(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
	path := writeTag(t, t.TempDir(), "PolyVox.tag", polyvoxTag)

	reg := New(testConfig(map[string]config.RoleConfig{
		"polyvox": {TagFile: path, RootDir: "https://example.org/pv"},
	}), nil)
	require.NoError(t, reg.LoadAll(context.Background()))

	res := reg.Rewrite("a.md", "Use [](polyvox:Foo::operator[]) or [a[0]](polyvox:Nope).", false)
	assert.Equal(t, `Use Foo::operator\[\] or a[0].`, res.Markdown)
	assert.NotContains(t, res.Markdown, "polyvox:")
	assert.Len(t, res.Unresolved(), 2)
}

func TestRewrite_MixedCaseRole(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
	path := writeTag(t, t.TempDir(), "PolyVox.tag", polyvoxTag)

	reg := New(testConfig(map[string]config.RoleConfig{
		"PolyVox": {TagFile: path, RootDir: "https://example.org/pv"},
	}), nil)
	require.NoError(t, reg.LoadAll(context.Background()))
	assert.Equal(t, []string{"polyvox"}, reg.Names())

	r, err := reg.Role("POLYVOX")
	require.NoError(t, err)
	assert.Equal(t, "polyvox", r.Name)

	res := reg.Rewrite("a.md", "[v](PolyVox:Volume) [x](POLYVOX:Nope)", false)
	assert.Equal(t, "[v](https://example.org/pv/class_volume.html) x", res.Markdown)
	require.Len(t, res.Links, 2)
	assert.Equal(t, "polyvox", res.Links[1].Role)
	assert.False(t, res.Links[1].Resolved)
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
	dir := t.TempDir()
	path := writeTag(t, dir, "PolyVox.tag", polyvoxTag)

	reg := New(testConfig(map[string]config.RoleConfig{
		"polyvox": {TagFile: path, RootDir: "html"},
		"remote":  {TagFile: "https://example.invalid/x.tag", RootDir: "html"},
	}), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := reg.Reload(ctx, "polyvox")
	require.NoError(t, err)
	require.NoError(t, reg.Watch(ctx, 20*time.Millisecond))

	require.NoError(t, os.WriteFile(path, []byte(extraTag), 0644))

	r, _ := reg.Role("polyvox")
	require.Eventually(t, func() bool {
		_, ok := r.Snapshot().Index.Lookup("PolyVox::Region")
		return ok
	}, 5*time.Second, 20*time.Millisecond)
}

func TestWatch_NoLocalFiles(t *testing.T) {
	reg := New(testConfig(map[string]config.RoleConfig{
		"remote": {TagFile: "https://example.invalid/x.tag", RootDir: "html"},
	}), nil)
	assert.NoError(t, reg.Watch(context.Background(), time.Millisecond))
}
