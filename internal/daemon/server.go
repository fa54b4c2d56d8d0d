package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jcdickinson/doxylink/internal/config"
	"github.com/jcdickinson/doxylink/internal/db"
	"github.com/jcdickinson/doxylink/internal/registry"
	"github.com/jcdickinson/doxylink/internal/rpc"
)

type Server struct {
	db         *db.DB
	registry   *registry.Registry
	cfg        *config.Config
	socketPath string
	httpServer *http.Server
	listener   net.Listener

	mu         sync.Mutex
	expTimer   *time.Timer
	expiration time.Duration
	stopOnce   sync.Once
	stopErr    error
	cancel     context.CancelFunc
}

func NewServer(cfg *config.Config, database *db.DB, socketPath string) *Server {
	expSec := cfg.Daemon.ExpirationSeconds
	if expSec <= 0 {
		expSec = 600
	}

	var store registry.Store
	if database != nil {
		store = database
	}

	return &Server{
		db:         database,
		registry:   registry.New(cfg, store),
		cfg:        cfg,
		socketPath: socketPath,
		expiration: time.Duration(expSec) * time.Second,
	}
}

// Registry returns the roles served by this daemon.
func (s *Server) Registry() *registry.Registry {
	return s.registry
}

// Handler returns the daemon's HTTP API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /resolve", s.withExpReset(s.handleResolve))
	mux.HandleFunc("POST /rewrite", s.withExpReset(s.handleRewrite))
	mux.HandleFunc("GET /status", s.withExpReset(s.handleStatus))
	mux.HandleFunc("POST /reload", s.withExpReset(s.handleReload))
	mux.HandleFunc("POST /unresolved", s.withExpReset(s.handleUnresolved))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("POST /shutdown", s.handleShutdown)
	return mux
}

// Start loads every role, then serves until Stop is called or the daemon
// expires.
func (s *Server) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	if err := s.registry.LoadAll(ctx); err != nil {
		log.Printf("daemon: some tag files failed to load: %v", err)
	}
	if s.cfg.Daemon.Watch {
		if err := s.registry.Watch(ctx, registry.DefaultWatchDelay); err != nil {
			log.Printf("daemon: watching tag files: %v", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0755); err != nil {
		return fmt.Errorf("creating socket directory: %w", err)
	}
	os.Remove(s.socketPath)

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listening on socket: %w", err)
	}
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("setting socket permissions: %w", err)
	}
	s.listener = listener

	s.httpServer = &http.Server{Handler: s.Handler()}

	s.mu.Lock()
	s.expTimer = time.AfterFunc(s.expiration, s.expire)
	s.mu.Unlock()

	log.Printf("daemon: listening on %s (expires after %s of inactivity)", s.socketPath, s.expiration)

	if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("serving: %w", err)
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		s.stopErr = s.stop(ctx)
	})
	return s.stopErr
}

func (s *Server) stop(ctx context.Context) error {
	var errs []error
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Lock()
	if s.expTimer != nil {
		s.expTimer.Stop()
	}
	s.mu.Unlock()
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			log.Printf("daemon: shutdown error: %v", err)
			errs = append(errs, err)
		}
	}
	if s.listener != nil {
		if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			log.Printf("daemon: listener close error: %v", err)
			errs = append(errs, err)
		}
	}
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		log.Printf("daemon: socket remove error: %v", err)
		errs = append(errs, err)
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			log.Printf("daemon: db close error: %v", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Server) expire() {
	log.Printf("daemon: expiring due to inactivity")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Stop(ctx)
}

func (s *Server) resetExpiration() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.expTimer != nil {
		s.expTimer.Stop()
		s.expTimer.Reset(s.expiration)
	}
}

func (s *Server) withExpReset(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.resetExpiration()
		handler(w, r)
	}
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req rpc.ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Symbol == "" {
		writeError(w, http.StatusBadRequest, "missing symbol")
		return
	}

	role, err := s.registry.Role(req.Role)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	ref := role.Linker().Link(req.Symbol, req.Document)
	resp := rpc.ResolveResponse{
		Role:     req.Role,
		Symbol:   req.Symbol,
		Resolved: ref.Resolved,
		Title:    ref.Title,
		URL:      ref.URL,
		Kind:     ref.Kind,
		Key:      ref.Key,
		Warning:  ref.Warning,
	}
	if ref.Resolved {
		resp.Stage = ref.Stage.String()
	} else if req.Document != "" && s.db != nil {
		if err := s.db.RecordUnresolved(role.Name, req.Document, ref.Target, 1); err != nil {
			log.Printf("daemon: recording unresolved %q: %v", ref.Target, err)
		}
	}
	if req.Trace {
		if tr, err := role.Trace(ref.Target); err == nil {
			resp.Trace = &rpc.TraceInfo{
				Name:          tr.Query.Name,
				Arguments:     tr.Query.Arguments,
				Modifiers:     tr.Query.Modifiers,
				Piecewise:     tr.Piecewise,
				Classes:       tr.Classes,
				ClassReverted: tr.ClassReverted,
				NoTemplates:   tr.NoTemplates,
				Ambiguous:     tr.Ambiguous(),
			}
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRewrite(w http.ResponseWriter, r *http.Request) {
	var req rpc.RewriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res := s.registry.Rewrite(req.Document, req.Markdown, req.Manifest)

	resp := rpc.RewriteResponse{
		Markdown: res.Markdown,
		Links:    make([]rpc.LinkResult, 0, len(res.Links)),
		Warnings: res.Warnings(),
	}
	for _, l := range res.Links {
		resp.Links = append(resp.Links, rpc.LinkResult{
			Role:        l.Role,
			Destination: l.Destination,
			Target:      l.Target,
			Title:       l.Title,
			URL:         l.URL,
			Resolved:    l.Resolved,
			Occurrences: l.Occurrences,
			Warning:     l.Warning,
		})
	}

	if req.Document != "" && s.db != nil {
		var unresolved []db.Unresolved
		for _, l := range res.Unresolved() {
			unresolved = append(unresolved, db.Unresolved{Role: l.Role, Symbol: l.Target, Occurrences: l.Occurrences})
		}
		if err := s.db.ReplaceUnresolved(req.Document, unresolved); err != nil {
			log.Printf("daemon: recording unresolved references for %s: %v", req.Document, err)
		}
	}
	for _, warning := range resp.Warnings {
		log.Printf("daemon: %s: %s", req.Document, warning)
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	// Roles that failed to load still report the last copy the database knows.
	stored := make(map[string]db.TagFile)
	if s.db != nil {
		files, err := s.db.ListTagFiles()
		if err != nil {
			log.Printf("daemon: listing tag files: %v", err)
		}
		for _, f := range files {
			stored[f.Role] = f
		}
	}

	var roles []rpc.RoleStatus
	for _, st := range s.registry.Status() {
		if f, ok := stored[st.Role]; ok && !st.Loaded {
			st.Hash = f.ContentHash
			st.LoadedAt = f.LoadedAt
		}
		roles = append(roles, rpc.RoleStatus{
			Role:      st.Role,
			Source:    st.Source,
			RootDir:   st.RootDir,
			Loaded:    st.Loaded,
			Entries:   st.Entries,
			Skipped:   st.Skipped,
			Hash:      st.Hash,
			LoadedAt:  st.LoadedAt,
			FromCache: st.FromCache,
		})
	}
	writeJSON(w, http.StatusOK, rpc.StatusResponse{Roles: roles})
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	var req rpc.ReloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	names := req.Roles
	if len(names) == 0 {
		names = s.registry.Names()
	}

	results := make([]rpc.ReloadResult, 0, len(names))
	for _, name := range names {
		result := rpc.ReloadResult{Role: name}
		snap, err := s.registry.Reload(r.Context(), name)
		if err != nil {
			result.Error = err.Error()
		} else {
			result.Entries = snap.Index.Len()
			result.Skipped = len(snap.Report.Skipped)
			result.FromCache = snap.FromCache
		}
		results = append(results, result)
	}

	writeJSON(w, http.StatusOK, rpc.ReloadResponse{Results: results})
}

func (s *Server) handleUnresolved(w http.ResponseWriter, r *http.Request) {
	var req rpc.UnresolvedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if s.db == nil {
		writeError(w, http.StatusServiceUnavailable, "no database")
		return
	}

	var resp rpc.UnresolvedResponse
	if req.Clear {
		n, err := s.db.ClearUnresolved(req.Role, req.Document)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp.Cleared = n
		log.Printf("daemon: cleared %d unresolved references", n)
	}

	refs, err := s.db.ListUnresolved(req.Role)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp.Unresolved = make([]rpc.UnresolvedRef, 0, len(refs))
	for _, u := range refs {
		if req.Document != "" && u.Document != req.Document {
			continue
		}
		resp.Unresolved = append(resp.Unresolved, rpc.UnresolvedRef{
			Role:        u.Role,
			Document:    u.Document,
			Symbol:      u.Symbol,
			Occurrences: u.Occurrences,
			LastSeenAt:  u.LastSeenAt,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "shutting down"})
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.Stop(ctx)
	}()
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
