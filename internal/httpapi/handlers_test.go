package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rybkr/akashica/internal/engine"
	"github.com/rybkr/akashica/internal/storage/memstore"
)

func newTestServer(t *testing.T) (*Server, *engine.Repository) {
	t.Helper()
	adapter := memstore.New()
	repo := engine.NewRepository(adapter, engine.Config{})
	if _, err := repo.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return NewServer(repo, Config{Addr: ":0"}), repo
}

func doJSON(t *testing.T, s *Server, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = strings.NewReader(string(b))
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	mux := s.testMux()
	mux.ServeHTTP(rec, req)
	return rec
}

// testMux builds the REST routes Start registers, without binding a
// listener and without the /api/ws route or the rate-limit and
// write-deadline wrappers, so handlers can be exercised directly in tests.
func (s *Server) testMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/branches", s.routeBranches)
	mux.HandleFunc("/api/branches/", s.routeBranchByName)
	mux.HandleFunc("/api/commits/", s.routeCommit)
	mux.HandleFunc("/api/workspaces", s.handleCreateWorkspace)
	mux.HandleFunc("/api/workspaces/", s.routeWorkspace)
	mux.HandleFunc("/api/scrub", s.routeScrub)
	return mux
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body HealthStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" {
		t.Fatalf("status = %q, want ok", body.Status)
	}
}

func TestWorkspaceWriteReadPublishLifecycle(t *testing.T) {
	s, repo := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/workspaces", map[string]string{
		"commit": "@0", "creator": "tester",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("create workspace status = %d body=%s", rec.Code, rec.Body.String())
	}
	var created map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	wsID := created["workspace"]
	if wsID == "" {
		t.Fatal("empty workspace id")
	}

	req := httptest.NewRequest(http.MethodPut, "/api/workspaces/"+wsID+"/file/a.txt", strings.NewReader("hello"))
	rec = httptest.NewRecorder()
	s.testMux().ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("write status = %d body=%s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/workspaces/"+wsID+"/file/a.txt", nil)
	rec = httptest.NewRecorder()
	s.testMux().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "hello" {
		t.Fatalf("read back = %d %q", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, s, http.MethodGet, "/api/workspaces/"+wsID+"/status", nil)
	var statusEntries []StatusEntryJSON
	if err := json.Unmarshal(rec.Body.Bytes(), &statusEntries); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if len(statusEntries) != 1 || statusEntries[0].Change != "added" {
		t.Fatalf("status entries = %+v", statusEntries)
	}

	rec = doJSON(t, s, http.MethodPost, "/api/workspaces/"+wsID+"/publish", map[string]string{
		"branch": "main", "message": "first commit", "author": "tester",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("publish status = %d body=%s", rec.Code, rec.Body.String())
	}
	var published map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &published); err != nil {
		t.Fatalf("decode publish: %v", err)
	}
	commitID := published["commit"]

	head, err := repo.CurrentCommit("main")
	if err != nil || head != commitID {
		t.Fatalf("branch head = %q, %v; want %q", head, err, commitID)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/commits/"+commitID+"/file/a.txt", nil)
	rec = httptest.NewRecorder()
	s.testMux().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "hello" {
		t.Fatalf("commit file read = %d %q", rec.Code, rec.Body.String())
	}
}

func TestResetBranchNonAncestorConflict(t *testing.T) {
	s, repo := newTestServer(t)

	sess, err := repo.CreateWorkspace("@0", "a")
	if err != nil {
		t.Fatalf("CreateWorkspace: %v", err)
	}
	if err := sess.WriteFile("x.txt", []byte("1")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	c1, err := repo.Publish(sess.WorkspaceID(), "main", "c1", "a")
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	unrelatedSess, err := repo.CreateWorkspace("@0", "b")
	if err != nil {
		t.Fatalf("CreateWorkspace: %v", err)
	}
	unrelated, err := repo.Publish(unrelatedSess.WorkspaceID(), "side", "side", "b")
	if err != nil {
		t.Fatalf("Publish side: %v", err)
	}

	rec := doJSON(t, s, http.MethodPost, "/api/branches/main/reset", map[string]any{
		"target": unrelated, "force": false,
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("reset status = %d body=%s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, s, http.MethodPost, "/api/branches/main/reset", map[string]any{
		"target": unrelated, "force": true,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("forced reset status = %d body=%s", rec.Code, rec.Body.String())
	}
	_ = c1
}

func TestScrubMakesContentUnreadable(t *testing.T) {
	s, repo := newTestServer(t)

	sess, err := repo.CreateWorkspace("@0", "a")
	if err != nil {
		t.Fatalf("CreateWorkspace: %v", err)
	}
	if err := sess.WriteFile("secret.txt", []byte("topsecret")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	commitID, err := repo.Publish(sess.WorkspaceID(), "main", "m", "a")
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	c, err := repo.CommitMetadata(commitID)
	if err != nil {
		t.Fatalf("CommitMetadata: %v", err)
	}
	_ = c

	req := httptest.NewRequest(http.MethodGet, "/api/commits/"+commitID+"/file/secret.txt", nil)
	rec := httptest.NewRecorder()
	s.testMux().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("pre-scrub read status = %d", rec.Code)
	}

	readSess, err := repo.OpenCommit(commitID)
	if err != nil {
		t.Fatalf("OpenCommit: %v", err)
	}
	data, err := readSess.ReadFile("secret.txt")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	hash := engine.HashBytes(data)

	rec = doJSON(t, s, http.MethodPost, "/api/scrub", map[string]string{
		"hash": string(hash), "reason": "leak", "deletedBy": "ops",
	})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("scrub status = %d body=%s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/commits/"+commitID+"/file/secret.txt", nil)
	rec = httptest.NewRecorder()
	s.testMux().ServeHTTP(rec, req)
	if rec.Code != http.StatusGone {
		t.Fatalf("post-scrub read status = %d, want 410", rec.Code)
	}

	rec = doJSON(t, s, http.MethodGet, "/api/scrub", nil)
	var listed map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode scrub list: %v", err)
	}
	tombs, _ := listed["tombstones"].([]any)
	if len(tombs) != 1 {
		t.Fatalf("tombstones = %+v, want 1", listed)
	}
}

func TestSanitizePathRejectsTraversal(t *testing.T) {
	if _, err := sanitizePath("../etc/passwd"); err == nil {
		t.Fatal("expected error for traversal path")
	}
	if _, err := sanitizePath("/etc/passwd"); err == nil {
		t.Fatal("expected error for absolute path")
	}
	clean, err := sanitizePath("a/b/c.txt")
	if err != nil || clean != "a/b/c.txt" {
		t.Fatalf("sanitizePath(a/b/c.txt) = %q, %v", clean, err)
	}
}
