package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/structured-notes/notes-go/internal/api"
	"github.com/structured-notes/notes-go/internal/config"
	"github.com/structured-notes/notes-go/internal/node"
)

// notesServer is a minimal in-memory notes API. Node routes require the
// access cookie set by a successful login.
type notesServer struct {
	*httptest.Server
	logouts atomic.Int32
	lists   atomic.Int32
}

func envelope(w http.ResponseWriter, code int, result any, message string) {
	status := "success"
	if code >= 400 {
		status = "error"
	}

	body := map[string]any{"status": status, "message": message}
	if result != nil {
		body["result"] = result
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func nodeRecord(id, parent, name, tags string) map[string]any {
	r := map[string]any{
		"id": id, "user_id": "11", "parent_id": nil, "name": name, "tags": tags,
		"role": 0, "access": 0, "display": 0, "order": 0,
		"created_timestamp": 1700000000000, "updated_timestamp": 1700000000000,
	}

	if parent != "" {
		r["parent_id"] = parent
	}

	return r
}

var cliUser = map[string]any{
	"id": "11", "username": "ann", "email": "ann@example.test",
	"firstname": "Ann", "lastname": "Lee", "role": 0,
	"created_timestamp": 1700000000000, "updated_timestamp": 1700000000000,
}

func newNotesServer(t *testing.T) *notesServer {
	t.Helper()

	s := &notesServer{}

	authed := func(r *http.Request) bool {
		ck, err := r.Cookie(api.AccessCookie)
		return err == nil && ck.Value == "access"
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)

		if body["username"] != "ann" || body["password"] != "secret" {
			envelope(w, http.StatusUnauthorized, nil, "Invalid credentials")
			return
		}

		http.SetCookie(w, &http.Cookie{Name: api.AccessCookie, Value: "access", Path: "/", MaxAge: 900})
		http.SetCookie(w, &http.Cookie{Name: api.RefreshCookie, Value: "refresh", Path: "/", MaxAge: 86400})
		envelope(w, http.StatusOK, cliUser, "")
	})
	mux.HandleFunc("POST /api/auth/logout", func(w http.ResponseWriter, _ *http.Request) {
		s.logouts.Add(1)
		envelope(w, http.StatusOK, nil, "Logged out")
	})
	mux.HandleFunc("POST /api/auth/refresh", func(w http.ResponseWriter, _ *http.Request) {
		envelope(w, http.StatusUnauthorized, nil, "no refresh token provided")
	})
	mux.HandleFunc("POST /api/users", func(w http.ResponseWriter, _ *http.Request) {
		envelope(w, http.StatusCreated, cliUser, "")
	})
	mux.HandleFunc("GET /api/users/@me", func(w http.ResponseWriter, r *http.Request) {
		if !authed(r) {
			envelope(w, http.StatusUnauthorized, nil, api.MsgMissingTokenCookies)
			return
		}

		envelope(w, http.StatusOK, cliUser, "")
	})
	mux.HandleFunc("GET /api/nodes/@me", func(w http.ResponseWriter, r *http.Request) {
		s.lists.Add(1)

		if !authed(r) {
			envelope(w, http.StatusUnauthorized, nil, api.MsgMissingTokenCookies)
			return
		}

		envelope(w, http.StatusOK, []any{
			nodeRecord("1", "", "Projects", "work"),
			nodeRecord("2", "1", "Roadmap", "work, plans"),
			nodeRecord("3", "", "Journal", ""),
		}, "")
	})
	mux.HandleFunc("GET /api/nodes/@me/{id}", func(w http.ResponseWriter, r *http.Request) {
		if !authed(r) {
			envelope(w, http.StatusUnauthorized, nil, api.MsgMissingTokenCookies)
			return
		}

		id := r.PathValue("id")
		if id == "404" {
			envelope(w, http.StatusNotFound, nil, "Node not found")
			return
		}

		envelope(w, http.StatusOK, map[string]any{
			"node": nodeRecord(id, "", "Node "+id, "x"),
			"permissions": []any{map[string]any{
				"id": "p" + id, "node_id": id, "user_id": "11", "permission": 4, "created_timestamp": 1700000000000,
			}},
		}, "")
	})
	mux.HandleFunc("GET /api/nodes/public/{id}", func(w http.ResponseWriter, r *http.Request) {
		rec := nodeRecord(r.PathValue("id"), "", "Published", "")
		rec["content"] = "Hello, world."
		envelope(w, http.StatusOK, rec, "")
	})
	mux.HandleFunc("POST /api/media", func(w http.ResponseWriter, r *http.Request) {
		if !authed(r) {
			envelope(w, http.StatusUnauthorized, nil, api.MsgMissingTokenCookies)
			return
		}

		_, hdr, err := r.FormFile("file")
		if err != nil {
			envelope(w, http.StatusBadRequest, nil, "No file")
			return
		}

		rec := nodeRecord("50", "", hdr.Filename, "")
		rec["role"] = int(node.RoleMedia)
		rec["size"] = hdr.Size
		envelope(w, http.StatusOK, rec, "")
	})

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)

	return s
}

// runCLI runs the root command in-process with an isolated state directory
// and no config file.
func runCLI(t *testing.T, srv *notesServer, stateDir, stdin string, args ...string) (string, error) {
	t.Helper()

	t.Setenv(config.EnvStateDir, stateDir)
	t.Setenv(config.EnvConfig, filepath.Join(stateDir, "absent.toml"))
	t.Setenv(config.EnvServer, "")

	cmd := newRootCmd()

	var out bytes.Buffer

	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--server", srv.URL + "/api", "--quiet"}, args...))

	err := cmd.ExecuteContext(context.Background())

	return out.String(), err
}

func loggedIn(t *testing.T, srv *notesServer) string {
	t.Helper()

	dir := t.TempDir()

	_, err := runCLI(t, srv, dir, "secret\n", "login", "ann")
	require.NoError(t, err)

	return dir
}

func TestCLI_LoginPersistsAcrossRuns(t *testing.T) {
	srv := newNotesServer(t)
	dir := loggedIn(t, srv)

	_, err := os.Stat(filepath.Join(dir, "state.db"))
	require.NoError(t, err)

	out, err := runCLI(t, srv, dir, "", "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "ann")
	assert.Contains(t, out, "Ann Lee")
}

func TestCLI_LoginPromptsForUsername(t *testing.T) {
	srv := newNotesServer(t)
	dir := t.TempDir()

	_, err := runCLI(t, srv, dir, "ann\nsecret\n", "login")
	require.NoError(t, err)

	out, err := runCLI(t, srv, dir, "", "status", "--format", "json")
	require.NoError(t, err)

	var st statusOutput
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.True(t, st.LoggedIn)
	require.NotNil(t, st.User)
	assert.Equal(t, "ann", st.User.Username)
}

func TestCLI_LoginRejected(t *testing.T) {
	srv := newNotesServer(t)
	dir := t.TempDir()

	_, err := runCLI(t, srv, dir, "wrong\n", "login", "ann")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid credentials")
	assert.ErrorIs(t, err, api.ErrUnauthorized)
}

func TestCLI_RequiresLogin(t *testing.T) {
	srv := newNotesServer(t)

	_, err := runCLI(t, srv, t.TempDir(), "", "ls")
	assert.ErrorIs(t, err, errNotLoggedIn)
}

func TestCLI_LsTree(t *testing.T) {
	srv := newNotesServer(t)
	dir := loggedIn(t, srv)

	out, err := runCLI(t, srv, dir, "", "ls")
	require.NoError(t, err)
	assert.Equal(t, "Projects [work]\n  Roadmap [work, plans]\nJournal\n", out)

	out, err = runCLI(t, srv, dir, "", "ls", "--tag", "plans", "--format", "json")
	require.NoError(t, err)

	var nodes []node.Node
	require.NoError(t, json.Unmarshal([]byte(out), &nodes))
	require.Len(t, nodes, 1)
	assert.Equal(t, "Roadmap", nodes[0].Name)
	assert.True(t, nodes[0].Partial)
}

func TestCLI_Tags(t *testing.T) {
	srv := newNotesServer(t)
	dir := loggedIn(t, srv)

	out, err := runCLI(t, srv, dir, "", "tags")
	require.NoError(t, err)
	assert.Equal(t, "plans\nwork\n", out)
}

func TestCLI_GetMany(t *testing.T) {
	srv := newNotesServer(t)
	dir := loggedIn(t, srv)

	out, err := runCLI(t, srv, dir, "", "get", "7", "8", "--format", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "name: Node 7")
	assert.Contains(t, out, "name: Node 8")
	assert.Contains(t, out, "partial: false")

	_, err = runCLI(t, srv, dir, "", "get", "404")
	require.Error(t, err)
	assert.ErrorIs(t, err, api.ErrNotFound)
}

func TestCLI_Upload(t *testing.T) {
	srv := newNotesServer(t)
	dir := loggedIn(t, srv)

	path := filepath.Join(t.TempDir(), "photo.jpg")
	require.NoError(t, os.WriteFile(path, []byte("jpeg bytes"), 0o600))

	out, err := runCLI(t, srv, dir, "", "upload", path, "--json")
	require.NoError(t, err)

	var nodes []node.Node
	require.NoError(t, json.Unmarshal([]byte(out), &nodes))
	require.Len(t, nodes, 1)
	assert.Equal(t, "photo.jpg", nodes[0].Name)
	assert.True(t, nodes[0].IsMedia())
}

func TestCLI_PublicNeedsNoLogin(t *testing.T) {
	srv := newNotesServer(t)

	out, err := runCLI(t, srv, t.TempDir(), "", "public", "77")
	require.NoError(t, err)
	assert.Contains(t, out, "Published")
	assert.Contains(t, out, "Hello, world.")
}

func TestCLI_LogoutClearsSession(t *testing.T) {
	srv := newNotesServer(t)
	dir := loggedIn(t, srv)

	_, err := runCLI(t, srv, dir, "", "logout")
	require.NoError(t, err)
	assert.Equal(t, int32(1), srv.logouts.Load())

	out, err := runCLI(t, srv, dir, "", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "not logged in")

	_, err = runCLI(t, srv, dir, "", "ls")
	assert.ErrorIs(t, err, errNotLoggedIn)
}

func TestCLI_Register(t *testing.T) {
	srv := newNotesServer(t)
	dir := t.TempDir()

	_, err := runCLI(t, srv, dir, "secret\n", "register", "ann", "--email", "ann@example.test")
	require.NoError(t, err)

	out, err := runCLI(t, srv, dir, "", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "not logged in", "registering does not sign in")
}

func TestCLI_InvalidServer(t *testing.T) {
	srv := newNotesServer(t)

	_, err := runCLI(t, srv, t.TempDir(), "", "--server", "notes.example.com", "status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base_url")
}
