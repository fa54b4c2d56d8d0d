package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/jcdickinson/doxylink/internal/cas"
	"github.com/jcdickinson/doxylink/internal/config"
	"github.com/jcdickinson/doxylink/internal/db"
	"github.com/jcdickinson/doxylink/internal/link"
	"github.com/jcdickinson/doxylink/internal/symbols"
	"github.com/jcdickinson/doxylink/internal/tagfile"
)

var ErrUnknownRole = errors.New("unknown role")

// Store records tag file loads. *db.DB implements it.
type Store interface {
	UpsertTagFile(role, source, contentHash string, entries, skipped int) error
	GetTagFile(role string) (*db.TagFile, error)
}

// Snapshot is one built index of a role. Snapshots are immutable; a reload
// replaces the role's snapshot wholesale.
type Snapshot struct {
	Index    *symbols.Index
	Report   *symbols.BuildReport
	Source   string
	Hash     string
	LoadedAt time.Time
	// FromCache is set when the source could not be read and the last
	// stored copy was used instead.
	FromCache bool
}

// Role is a configured tag file and its current index.
type Role struct {
	Name   string
	Config config.RoleConfig

	link config.LinkConfig
	snap atomic.Pointer[Snapshot]
}

// Snapshot returns the current index, or nil if the role never loaded.
func (r *Role) Snapshot() *Snapshot {
	return r.snap.Load()
}

// Resolve resolves a reference against the current index.
func (r *Role) Resolve(query string) (symbols.Match, bool) {
	snap := r.snap.Load()
	if snap == nil {
		resolutionsTotal.WithLabelValues(r.Name, symbols.StageNone.String()).Inc()
		return symbols.Match{}, false
	}
	m, ok := snap.Index.Resolve(query)
	resolutionsTotal.WithLabelValues(r.Name, m.Stage.String()).Inc()
	return m, ok
}

// Trace resolves a reference and reports every stage.
func (r *Role) Trace(query string) (symbols.Trace, error) {
	snap := r.snap.Load()
	if snap == nil {
		return symbols.Trace{}, fmt.Errorf("role %q: tag file not loaded", r.Name)
	}
	return snap.Index.Trace(query), nil
}

// Linker returns a linker for this role. A role that never loaded gets a
// linker without a resolver, which reports every reference as unresolved.
func (r *Role) Linker() *link.Linker {
	l := &link.Linker{
		Role:                   r.Name,
		RootDir:                r.Config.RootDir,
		SrcDir:                 r.link.SrcDir,
		AddFunctionParentheses: r.link.AddFunctionParentheses,
	}
	if r.snap.Load() != nil {
		l.Resolver = r
	}
	return l
}

type Registry struct {
	roles   map[string]*Role
	names   []string
	store   Store
	opts    symbols.BuildOptions
	reloads singleflight.Group
}

// New creates a registry for the configured roles. store may be nil, in
// which case loads are not recorded and there is no cached fallback.
func New(cfg *config.Config, store Store) *Registry {
	reg := &Registry{
		roles: make(map[string]*Role, len(cfg.Roles)),
		store: store,
		opts:  symbols.BuildOptions{ContainerKinds: cfg.Index.ContainerKinds},
	}
	for name, rc := range cfg.Roles {
		name = strings.ToLower(name)
		reg.roles[name] = &Role{Name: name, Config: rc, link: cfg.Link}
		reg.names = append(reg.names, name)
	}
	sort.Strings(reg.names)
	return reg
}

// Names returns the role names, sorted.
func (reg *Registry) Names() []string {
	return append([]string(nil), reg.names...)
}

// Role returns the named role. Names are case-insensitive.
func (reg *Registry) Role(name string) (*Role, error) {
	r, ok := reg.roles[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRole, name)
	}
	return r, nil
}

// Roles returns every role, sorted by name.
func (reg *Registry) Roles() []*Role {
	out := make([]*Role, 0, len(reg.names))
	for _, name := range reg.names {
		out = append(out, reg.roles[name])
	}
	return out
}

// LoadAll loads every role concurrently. Roles that fail keep whatever
// index they had; the errors are joined.
func (reg *Registry) LoadAll(ctx context.Context) error {
	errs := make([]error, len(reg.names))
	var g errgroup.Group
	g.SetLimit(4)
	for i, name := range reg.names {
		g.Go(func() error {
			if _, err := reg.Reload(ctx, name); err != nil {
				errs[i] = err
			}
			return nil
		})
	}
	g.Wait()
	return errors.Join(errs...)
}

// Reload rebuilds a role's index from its tag file. Concurrent reloads of
// the same role share one build.
func (reg *Registry) Reload(ctx context.Context, name string) (*Snapshot, error) {
	r, err := reg.Role(name)
	if err != nil {
		return nil, err
	}
	v, err, _ := reg.reloads.Do(r.Name, func() (interface{}, error) {
		return reg.load(ctx, r)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Snapshot), nil
}

func (reg *Registry) load(ctx context.Context, r *Role) (*Snapshot, error) {
	start := time.Now()

	data, fromCache, err := reg.read(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("role %q: %w", r.Name, err)
	}

	tf, err := tagfile.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("role %q: %w", r.Name, err)
	}
	idx, report := symbols.Build(tf.Compounds, reg.opts)

	hash := cas.Hash(data)
	if !fromCache {
		if _, err := cas.Write(data); err != nil {
			slog.Warn("storing tag file", "role", r.Name, "error", err)
		}
	}
	if reg.store != nil && !fromCache {
		if err := reg.store.UpsertTagFile(r.Name, r.Config.TagFile, hash, idx.Len(), len(report.Skipped)); err != nil {
			slog.Warn("recording tag file", "role", r.Name, "error", err)
		}
	}

	snap := &Snapshot{
		Index:     idx,
		Report:    report,
		Source:    r.Config.TagFile,
		Hash:      hash,
		LoadedAt:  time.Now(),
		FromCache: fromCache,
	}
	r.snap.Store(snap)

	elapsed := time.Since(start)
	indexEntries.WithLabelValues(r.Name).Set(float64(idx.Len()))
	indexSkipped.WithLabelValues(r.Name).Set(float64(len(report.Skipped)))
	indexBuildSeconds.WithLabelValues(r.Name).Observe(elapsed.Seconds())

	logSkipped(r.Name, report)
	slog.Info("loaded tag file", "role", r.Name, "source", r.Config.TagFile,
		"entries", idx.Len(), "skipped", len(report.Skipped), "cached", fromCache, "elapsed", elapsed)
	return snap, nil
}

// read returns the raw tag file, falling back to the last stored copy when
// the source cannot be read.
func (reg *Registry) read(ctx context.Context, r *Role) ([]byte, bool, error) {
	src := r.Config.TagFile

	var data []byte
	var err error
	if tagfile.IsRemote(src) {
		data, err = tagfile.Fetch(ctx, src)
	} else {
		data, err = tagfile.ReadFile(src)
	}
	if err == nil {
		return data, false, nil
	}

	cached, cerr := reg.cached(r.Name)
	if cerr != nil {
		return nil, false, fmt.Errorf("%w (no cached copy: %v)", err, cerr)
	}
	slog.Warn("tag file unavailable, using cached copy", "role", r.Name, "source", src, "error", err)
	return cached, true, nil
}

func (reg *Registry) cached(role string) ([]byte, error) {
	if reg.store == nil {
		return nil, errors.New("no store")
	}
	tf, err := reg.store.GetTagFile(role)
	if err != nil {
		return nil, err
	}
	if tf == nil {
		return nil, errors.New("never loaded")
	}
	return cas.Read(tf.ContentHash)
}

const maxLoggedSkips = 5

func logSkipped(role string, report *symbols.BuildReport) {
	for i, rec := range report.Skipped {
		if i == maxLoggedSkips {
			slog.Warn("more malformed records skipped", "role", role, "count", len(report.Skipped)-maxLoggedSkips)
			return
		}
		slog.Warn("skipped malformed record", "role", role, "record", rec.Error())
	}
}

// Status describes one role for status reporting.
type Status struct {
	Role      string    `json:"role"`
	Source    string    `json:"source"`
	RootDir   string    `json:"root_dir"`
	Loaded    bool      `json:"loaded"`
	Entries   int       `json:"entries"`
	Skipped   int       `json:"skipped"`
	Hash      string    `json:"hash,omitempty"`
	LoadedAt  time.Time `json:"loaded_at,omitempty"`
	FromCache bool      `json:"from_cache,omitempty"`
}

func (reg *Registry) Status() []Status {
	out := make([]Status, 0, len(reg.names))
	for _, r := range reg.Roles() {
		st := Status{Role: r.Name, Source: r.Config.TagFile, RootDir: r.Config.RootDir}
		if snap := r.Snapshot(); snap != nil {
			st.Loaded = true
			st.Entries = snap.Index.Len()
			st.Skipped = len(snap.Report.Skipped)
			st.Hash = snap.Hash
			st.LoadedAt = snap.LoadedAt
			st.FromCache = snap.FromCache
		}
		out = append(out, st)
	}
	return out
}
