package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/rybkr/akashica/internal/engine"
)

func writeError(w http.ResponseWriter, status int, err error) {
	kind := ""
	var engErr *engine.EngineError
	if errors.As(err, &engErr) {
		kind = engErr.Kind.String()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: err.Error(), Kind: kind})
}

func statusForError(err error) int {
	var engErr *engine.EngineError
	if errors.As(err, &engErr) {
		switch engErr.Kind {
		case engine.KindFileNotFound, engine.KindCommitNotFound, engine.KindBranchNotFound, engine.KindWorkspaceNotFound:
			return http.StatusNotFound
		case engine.KindSessionReadOnly:
			return http.StatusMethodNotAllowed
		case engine.KindBranchConflict, engine.KindNonAncestorReset:
			return http.StatusConflict
		case engine.KindScrubbedContent:
			return http.StatusGone
		case engine.KindInvalidManifest:
			return http.StatusUnprocessableEntity
		}
	}
	return http.StatusInternalServerError
}

func entryToJSON(e engine.Entry) EntryJSON {
	kind := "file"
	if e.Kind == engine.KindDir {
		kind = "dir"
	}
	return EntryJSON{Name: e.Name, Hash: string(e.Hash), Size: e.Size, Kind: kind}
}

func commitToJSON(c engine.Commit) CommitJSON {
	return CommitJSON{
		ID:        c.ID,
		RootHash:  string(c.RootHash),
		Message:   c.Message,
		Author:    c.Author,
		Timestamp: c.Timestamp.Format("2006-01-02T15:04:05Z07:00"),
		Parent:    c.Parent,
	}
}

// handleListBranches serves GET /api/branches.
func (s *Server) handleListBranches(w http.ResponseWriter, r *http.Request) {
	names, err := s.repo.ListBranches()
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, names)
}

// handleBranchHead serves GET /api/branches/{name}.
func (s *Server) handleBranchHead(w http.ResponseWriter, r *http.Request, name string) {
	head, err := s.repo.CurrentCommit(name)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, map[string]string{"branch": name, "head": head})
}

// handleResetBranch serves POST /api/branches/{name}/reset.
func (s *Server) handleResetBranch(w http.ResponseWriter, r *http.Request, name string) {
	var body struct {
		Target string `json:"target"`
		Force  bool   `json:"force"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.repo.ResetBranch(name, body.Target, body.Force); err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, map[string]string{"branch": name, "head": body.Target})
}

// handleHistory serves GET /api/commits/{id}/history?limit=N.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request, commitID string) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	commits, err := s.repo.History(commitID, limit)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	out := make([]CommitJSON, len(commits))
	for i, c := range commits {
		out[i] = commitToJSON(c)
	}
	writeJSON(w, out)
}

// handleCommitMetadata serves GET /api/commits/{id}.
func (s *Server) handleCommitMetadata(w http.ResponseWriter, r *http.Request, commitID string) {
	c, err := s.repo.CommitMetadata(commitID)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, commitToJSON(c))
}

// handleReadFile serves GET /api/workspaces/{id}/file/{path}; commit file
// reads go through handleReadCommitFile.
func (s *Server) handleReadFile(w http.ResponseWriter, r *http.Request, sess *engine.Session, path string) {
	path, err := sanitizePath(path)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	data, err := sess.ReadFile(path)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(data)
}

// handleListDirectory serves GET /api/commits/{id}/tree/{path} and
// GET /api/workspaces/{id}/tree/{path}.
func (s *Server) handleListDirectory(w http.ResponseWriter, r *http.Request, sess *engine.Session, path string) {
	path, err := sanitizePath(path)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	entries, err := sess.ListDirectory(path)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	out := make([]EntryJSON, len(entries))
	for i, e := range entries {
		out[i] = entryToJSON(e)
	}
	writeJSON(w, out)
}

// handleCreateWorkspace serves POST /api/workspaces.
func (s *Server) handleCreateWorkspace(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Commit  string `json:"commit"`
		Branch  string `json:"branch"`
		Creator string `json:"creator"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var sess *engine.Session
	var err error
	if body.Branch != "" {
		sess, err = s.repo.CreateWorkspaceFromBranch(body.Branch, body.Creator)
	} else {
		sess, err = s.repo.CreateWorkspace(body.Commit, body.Creator)
	}
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, map[string]string{"workspace": sess.WorkspaceID()})
}

// handleWriteFile serves PUT /api/workspaces/{id}/file/{path}.
func (s *Server) handleWriteFile(w http.ResponseWriter, r *http.Request, sess *engine.Session, path string) {
	path, err := sanitizePath(path)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := sess.WriteFile(path, data); err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleDeleteFile serves DELETE /api/workspaces/{id}/file/{path}.
func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request, sess *engine.Session, path string) {
	path, err := sanitizePath(path)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := sess.DeleteFile(path); err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleMoveFile serves POST /api/workspaces/{id}/move.
func (s *Server) handleMoveFile(w http.ResponseWriter, r *http.Request, sess *engine.Session) {
	var body struct {
		From string `json:"from"`
		To   string `json:"to"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	from, err := sanitizePath(body.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	to, err := sanitizePath(body.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := sess.MoveFile(from, to); err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleStatus serves GET /api/workspaces/{id}/status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request, sess *engine.Session) {
	entries, err := sess.Status()
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

// handlePublish serves POST /api/workspaces/{id}/publish.
func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request, workspaceID string) {
	var body struct {
		Branch  string `json:"branch"`
		Message string `json:"message"`
		Author  string `json:"author"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	commitID, err := s.repo.Publish(workspaceID, body.Branch, body.Message, body.Author)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, map[string]string{"commit": commitID})
}

// handleDeleteWorkspace serves DELETE /api/workspaces/{id}.
func (s *Server) handleDeleteWorkspace(w http.ResponseWriter, r *http.Request, workspaceID string) {
	if err := s.repo.DeleteWorkspace(workspaceID); err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleScrub serves POST /api/scrub.
func (s *Server) handleScrub(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Hash      string `json:"hash"`
		Reason    string `json:"reason"`
		DeletedBy string `json:"deletedBy"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.repo.ScrubContent(body.Hash, body.Reason, body.DeletedBy); err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	// Cached commit-file bytes may include the scrubbed content; drop them
	// all so later reads go back to the engine and meet the tombstone.
	s.fileCache.mu.Lock()
	clear(s.fileCache.items)
	s.fileCache.order.Init()
	s.fileCache.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

// handleListScrubbed serves GET /api/scrub.
func (s *Server) handleListScrubbed(w http.ResponseWriter, r *http.Request) {
	tombs, total, err := s.repo.ListScrubbedContent()
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, map[string]any{"tombstones": tombs, "reclaimedBytes": total})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// splitFirst splits "a/b/c" into ("a", "b/c"); ("a", "") if there is no
// further slash.
func splitFirst(path string) (string, string) {
	if idx := strings.IndexByte(path, '/'); idx >= 0 {
		return path[:idx], path[idx+1:]
	}
	return path, ""
}
