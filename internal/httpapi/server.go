// Package httpapi exposes an engine.Repository over HTTP and WebSocket, the
// adaptation of the teacher's internal/server to Akashica's commit/workspace
// model: REST routes replace gitcore tree/blob/diff browsing with
// commit/workspace file and directory access, and the WebSocket push channel
// follows branch-head changes instead of a reloaded git.Repository.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/yuin/goldmark"

	"github.com/rybkr/akashica/internal/engine"
)

const defaultCacheSize = 500

// Config controls Server construction.
type Config struct {
	Addr      string
	Logger    *slog.Logger
	CacheSize int
}

// Server exposes repo over HTTP/WebSocket. It holds no engine state of its
// own beyond a per-branch registry of BranchSessions, created lazily the
// first time a client subscribes to that branch's updates, and an LRU cache
// of commit-addressed file bytes (immutable; a scrub empties it, and
// otherwise eviction is the only invalidation).
type Server struct {
	addr        string
	repo        *engine.Repository
	rateLimiter *rateLimiter
	httpServer  *http.Server
	logger      *slog.Logger
	fileCache   *LRUCache[[]byte]

	branchesMu sync.RWMutex
	branches   map[string]*BranchSession

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer constructs a Server fronting repo.
func NewServer(repo *engine.Repository, cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = defaultCacheSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:        cfg.Addr,
		repo:        repo,
		rateLimiter: newRateLimiter(100, 200, time.Second),
		logger:      cfg.Logger,
		fileCache:   NewLRUCache[[]byte](cfg.CacheSize),
		branches:    make(map[string]*BranchSession),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// branchSession returns the BranchSession for name, creating and starting
// one on first use (double-checked locking, matching the teacher's
// getOrCreateSession).
func (s *Server) branchSession(name string) *BranchSession {
	s.branchesMu.RLock()
	bs, ok := s.branches[name]
	s.branchesMu.RUnlock()
	if ok {
		return bs
	}

	s.branchesMu.Lock()
	defer s.branchesMu.Unlock()
	if bs, ok = s.branches[name]; ok {
		return bs
	}
	bs = NewBranchSession(s.repo, name, s.logger)
	bs.Start()
	s.branches[name] = bs
	return bs
}

// sessionForChangeset resolves a commit or workspace id (as found in the
// URL) to an engine.Session. Workspace ids always contain "$" (§3); bare
// commit ids never do.
func (s *Server) sessionForChangeset(id string) (*engine.Session, error) {
	if strings.Contains(id, "$") {
		return s.repo.OpenWorkspace(id)
	}
	return s.repo.OpenCommit(id)
}

const apiWriteDeadline = 30 * time.Second

// Start builds the route table and serves until Shutdown is called or the
// listener fails. It blocks.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)

	wrap := func(h http.HandlerFunc) http.HandlerFunc {
		return writeDeadline(apiWriteDeadline, s.rateLimiter.middleware(h))
	}

	mux.HandleFunc("/api/branches", wrap(s.routeBranches))
	mux.HandleFunc("/api/branches/", wrap(s.routeBranchByName))
	mux.HandleFunc("/api/commits/", wrap(s.routeCommit))
	mux.HandleFunc("/api/workspaces", wrap(s.handleCreateWorkspace))
	mux.HandleFunc("/api/workspaces/", wrap(s.routeWorkspace))
	mux.HandleFunc("/api/scrub", wrap(s.routeScrub))
	mux.HandleFunc("/api/ws", s.handleWebSocketRoute)

	handler := corsMiddleware(requestLogger(s.logger, mux))

	s.httpServer = &http.Server{
		Addr:         s.addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // WebSocket connections are long-lived.
		IdleTimeout:  120 * time.Second,
	}

	s.logger.Info("akashica http server starting", "addr", "http://"+s.addr)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP listener and closes every branch
// session's WebSocket clients.
func (s *Server) Shutdown() {
	s.logger.Info("akashica http server shutting down")
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
	}
	s.cancel()
	s.rateLimiter.Close()

	s.branchesMu.Lock()
	for name, bs := range s.branches {
		bs.Close()
		delete(s.branches, name)
	}
	s.branchesMu.Unlock()
	s.wg.Wait()
}

func (s *Server) routeBranches(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.handleListBranches(w, r)
}

// routeBranchByName handles /api/branches/{name} and
// /api/branches/{name}/reset.
func (s *Server) routeBranchByName(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/branches/")
	name, remainder := splitFirst(rest)
	if name == "" {
		http.Error(w, "missing branch name", http.StatusBadRequest)
		return
	}
	switch {
	case remainder == "" && r.Method == http.MethodGet:
		s.handleBranchHead(w, r, name)
	case remainder == "reset" && r.Method == http.MethodPost:
		s.handleResetBranch(w, r, name)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

// routeCommit handles /api/commits/{id}[/history|/html|/file/{path}|/tree/{path}].
func (s *Server) routeCommit(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/commits/")
	id, remainder := splitFirst(rest)
	if id == "" {
		http.Error(w, "missing commit id", http.StatusBadRequest)
		return
	}
	switch {
	case remainder == "" && r.Method == http.MethodGet:
		s.handleCommitMetadata(w, r, id)
	case remainder == "history" && r.Method == http.MethodGet:
		s.handleHistory(w, r, id)
	case remainder == "html" && r.Method == http.MethodGet:
		s.handleCommitMessageHTML(w, r, id)
	case strings.HasPrefix(remainder, "file/") && r.Method == http.MethodGet:
		s.handleReadCommitFile(w, r, id, strings.TrimPrefix(remainder, "file/"))
	case strings.HasPrefix(remainder, "tree") && r.Method == http.MethodGet:
		s.dispatchChangesetRead(w, r, id, strings.TrimPrefix(remainder, "tree/"), s.handleListDirectory)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

// routeWorkspace handles /api/workspaces/{id}/... for every workspace-scoped
// operation (§4.6).
func (s *Server) routeWorkspace(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/workspaces/")
	id, remainder := splitFirst(rest)
	if id == "" {
		http.Error(w, "missing workspace id", http.StatusBadRequest)
		return
	}

	switch {
	case remainder == "" && r.Method == http.MethodDelete:
		s.handleDeleteWorkspace(w, r, id)
		return
	case remainder == "publish" && r.Method == http.MethodPost:
		s.handlePublish(w, r, id)
		return
	case remainder == "status" && r.Method == http.MethodGet:
		s.withWorkspaceSession(w, r, id, s.handleStatus)
		return
	case remainder == "diff" && r.Method == http.MethodGet:
		s.withWorkspaceSession(w, r, id, func(w http.ResponseWriter, r *http.Request, sess *engine.Session) {
			s.handleDiff(w, r, sess)
		})
		return
	case remainder == "move" && r.Method == http.MethodPost:
		s.withWorkspaceSession(w, r, id, s.handleMoveFile)
		return
	case strings.HasPrefix(remainder, "file/"):
		path := strings.TrimPrefix(remainder, "file/")
		s.withWorkspaceSession(w, r, id, func(w http.ResponseWriter, r *http.Request, sess *engine.Session) {
			switch r.Method {
			case http.MethodGet:
				s.handleReadFile(w, r, sess, path)
			case http.MethodPut:
				s.handleWriteFile(w, r, sess, path)
			case http.MethodDelete:
				s.handleDeleteFile(w, r, sess, path)
			default:
				http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			}
		})
		return
	case strings.HasPrefix(remainder, "tree"):
		path := strings.TrimPrefix(remainder, "tree/")
		s.dispatchChangesetRead(w, r, id, path, s.handleListDirectory)
		return
	}
	http.Error(w, "not found", http.StatusNotFound)
}

// dispatchChangesetRead resolves id (commit or workspace) to a session and
// invokes fn with the remaining path; used by the tree route, which
// commits and workspaces share.
func (s *Server) dispatchChangesetRead(w http.ResponseWriter, r *http.Request, id, path string, fn func(http.ResponseWriter, *http.Request, *engine.Session, string)) {
	sess, err := s.sessionForChangeset(id)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	fn(w, r, sess, path)
}

// handleReadCommitFile serves GET /api/commits/{id}/file/{path}, memoizing
// bytes in s.fileCache since a commit's content at a given path never
// changes once published (handleScrub empties the cache).
func (s *Server) handleReadCommitFile(w http.ResponseWriter, r *http.Request, commitID, path string) {
	path, err := sanitizePath(path)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	cacheKey := commitID + ":" + path
	if data, ok := s.fileCache.Get(cacheKey); ok {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(data)
		return
	}
	sess, err := s.repo.OpenCommit(commitID)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	data, err := sess.ReadFile(path)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	s.fileCache.Put(cacheKey, data)
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(data)
}

func (s *Server) withWorkspaceSession(w http.ResponseWriter, r *http.Request, id string, fn func(http.ResponseWriter, *http.Request, *engine.Session)) {
	sess, err := s.repo.OpenWorkspace(id)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	fn(w, r, sess)
}

// handleDiff serves GET /api/workspaces/{id}/diff?against={commit}, the
// SUPPLEMENTED FEATURES diff-against-arbitrary-commit wrapper over Status.
func (s *Server) handleDiff(w http.ResponseWriter, r *http.Request, sess *engine.Session) {
	against := r.URL.Query().Get("against")
	if against == "" {
		writeError(w, http.StatusBadRequest, errMissingAgainst)
		return
	}
	entries, err := sess.Diff(against)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	out := make([]StatusEntryJSON, len(entries))
	for i, e := range entries {
		out[i] = StatusEntryJSON{Path: e.Path, Change: e.Change}
	}
	writeJSON(w, out)
}

// handleCommitMessageHTML renders a commit's message as Markdown (DOMAIN
// STACK: goldmark), serving GET /api/commits/{id}/html for a front end's
// commit-detail view.
func (s *Server) handleCommitMessageHTML(w http.ResponseWriter, r *http.Request, commitID string) {
	c, err := s.repo.CommitMetadata(commitID)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	var buf strings.Builder
	if err := goldmark.Convert([]byte(c.Message), &buf); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(buf.String()))
}

func (s *Server) routeScrub(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleScrub(w, r)
	case http.MethodGet:
		s.handleListScrubbed(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleWebSocketRoute handles GET /api/ws?branch={name}, subscribing the
// caller to head-change notifications for that branch.
func (s *Server) handleWebSocketRoute(w http.ResponseWriter, r *http.Request) {
	branch := r.URL.Query().Get("branch")
	if branch == "" {
		http.Error(w, "missing branch query parameter", http.StatusBadRequest)
		return
	}
	bs := s.branchSession(branch)
	s.handleWebSocket(bs)(w, r)
}

var errMissingAgainst = &queryError{"missing 'against' query parameter"}

type queryError struct{ msg string }

func (e *queryError) Error() string { return e.msg }
