package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/structured-notes/notes-go/internal/metrics"
)

// newTestClient creates a Client with a cookie jar pointing at the given
// httptest server under the /api prefix.
func newTestClient(t *testing.T, url string) *Client {
	t.Helper()

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	return NewClient(url+"/api", &http.Client{Jar: jar}, slog.Default(), "test-agent", nil)
}

// writeEnvelope writes a JSON envelope with the given HTTP status.
func writeEnvelope(t *testing.T, w http.ResponseWriter, code int, status Status, message string, result any) {
	t.Helper()

	env := map[string]any{"status": status, "message": message}
	if result != nil {
		env["result"] = result
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	require.NoError(t, json.NewEncoder(w).Encode(env))
}

func TestRequest_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/nodes/@me", r.URL.Path)
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		assert.NotEmpty(t, r.Header.Get("X-Request-Id"))
		assert.Empty(t, r.Header.Get("Content-Type"))
		assert.Empty(t, r.Header.Get("Authorization"))

		body, _ := io.ReadAll(r.Body)
		assert.Empty(t, body)

		writeEnvelope(t, w, http.StatusOK, StatusSuccess, "ok", []string{"a"})
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	res := client.Request(context.Background(), "nodes/@me", http.MethodGet, map[string]string{"ignored": "x"})

	require.True(t, res.OK())
	assert.NoError(t, res.Err())
	assert.Equal(t, "ok", res.Message)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	got, err := Decode[[]string](res)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, got)
}

func TestRequest_TrimsOneTrailingSlash(t *testing.T) {
	var path atomic.Value

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path.Store(r.URL.Path)
		writeEnvelope(t, w, http.StatusOK, StatusSuccess, "", nil)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)

	client.Request(context.Background(), "nodes/@me/", http.MethodGet, nil)
	assert.Equal(t, "/api/nodes/@me", path.Load())

	client.Request(context.Background(), "nodes//", http.MethodGet, nil)
	assert.Equal(t, "/api/nodes/", path.Load())
}

func TestNewClient_DropsBaseTrailingSlash(t *testing.T) {
	c := NewClient("http://example.test/api/", nil, nil, "", nil)

	assert.Equal(t, "http://example.test/api", c.BaseURL())
	assert.Equal(t, "http://example.test/api/auth", c.url("auth"))
	assert.Equal(t, DefaultUserAgent, c.userAgent)
}

func TestRequest_JSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json; charset=UTF-8", r.Header.Get("Content-Type"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.JSONEq(t, `{"username":"ann","password":"pw"}`, string(body))

		writeEnvelope(t, w, http.StatusOK, StatusSuccess, "", nil)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	res := client.Request(context.Background(), "auth", http.MethodPost,
		map[string]string{"username": "ann", "password": "pw"})

	assert.True(t, res.OK())
}

func TestRequest_DeleteSendsNoBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Empty(t, r.Header.Get("Content-Type"))

		body, _ := io.ReadAll(r.Body)
		assert.Empty(t, body)

		writeEnvelope(t, w, http.StatusOK, StatusSuccess, "", nil)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	res := client.Request(context.Background(), "media/1", http.MethodDelete, map[string]string{"a": "b"})
	assert.True(t, res.OK())
}

func TestRequest_FormBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ct := r.Header.Get("Content-Type")
		assert.True(t, strings.HasPrefix(ct, "multipart/form-data; boundary="), ct)
		assert.NotContains(t, ct, "application/json")

		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "hello", r.FormValue("caption"))

		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()

		data, _ := io.ReadAll(f)
		assert.Equal(t, "photo.png", hdr.Filename)
		assert.Equal(t, "image/png", hdr.Header.Get("Content-Type"))
		assert.Equal(t, []byte("\x89PNG-data"), data)

		writeEnvelope(t, w, http.StatusOK, StatusSuccess, "", nil)
	}))
	defer srv.Close()

	form := NewForm().
		AddField("caption", "hello").
		AddFile("file", "/tmp/photo.png", []byte("\x89PNG-data"))

	client := newTestClient(t, srv.URL)
	res := client.Request(context.Background(), "media", http.MethodPost, form)
	assert.True(t, res.OK())
}

func TestRequest_LogicalErrorVerbatim(t *testing.T) {
	tests := []struct {
		name     string
		code     int
		status   Status
		message  string
		sentinel error
	}{
		{"bad request", http.StatusBadRequest, StatusError, "Invalid node", ErrBadRequest},
		{"forbidden", http.StatusForbidden, StatusError, "Forbidden", ErrForbidden},
		{"not found", http.StatusNotFound, StatusError, "Node not found", ErrNotFound},
		{"other 401", http.StatusUnauthorized, StatusError, "Invalid user ID", ErrUnauthorized},
		{"server error", http.StatusInternalServerError, StatusSuccess, "weird", ErrServerError},
		{"2xx error envelope", http.StatusOK, StatusError, "nope", ErrLogical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var refreshes atomic.Int32

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path == "/api/auth/refresh" {
					refreshes.Add(1)
				}

				writeEnvelope(t, w, tt.code, tt.status, tt.message, nil)
			}))
			defer srv.Close()

			client := newTestClient(t, srv.URL)
			res := client.Request(context.Background(), "nodes/@me/1", http.MethodGet, nil)

			assert.False(t, res.OK())
			assert.False(t, res.IsTransport())
			assert.Equal(t, tt.message, res.Message)
			assert.Equal(t, tt.code, res.StatusCode)
			assert.Equal(t, int32(0), refreshes.Load())

			err := res.Err()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrLogical)
			assert.ErrorIs(t, err, tt.sentinel)

			var resErr *ResultError
			require.ErrorAs(t, err, &resErr)
			assert.Equal(t, tt.message, resErr.Result.Message)
		})
	}
}

func TestRequest_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {}))
	url := srv.URL
	srv.Close()

	client := newTestClient(t, url)
	res := client.Request(context.Background(), "nodes/@me", http.MethodGet, nil)

	assert.False(t, res.OK())
	assert.True(t, res.IsTransport())
	assert.Equal(t, StatusError, res.Status)
	assert.NotEmpty(t, res.Message)
	assert.Zero(t, res.StatusCode)
	assert.ErrorIs(t, res.Err(), ErrTransport)
}

func TestRequest_MalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html>bad gateway</html>"))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	res := client.Request(context.Background(), "nodes/@me", http.MethodGet, nil)

	assert.True(t, res.IsTransport())
	assert.Contains(t, res.Message, "decoding")
	assert.ErrorIs(t, res.Err(), ErrTransport)
}

func TestRequest_UnencodableBody(t *testing.T) {
	client := NewClient("http://127.0.0.1:0", nil, nil, "", nil)
	res := client.Request(context.Background(), "x", http.MethodPost, map[string]any{"ch": make(chan int)})

	assert.True(t, res.IsTransport())
	assert.Contains(t, res.Message, "encoding request body")
}

// authServer simulates cookie-based access tokens. Requests to any route
// other than the refresh endpoint fail with 401 + expiredMsg unless the
// Authorization cookie equals "fresh".
type authServer struct {
	t          *testing.T
	expiredMsg string
	refreshOK  bool
	alwaysDeny bool

	calls     atomic.Int32
	refreshes atomic.Int32
}

func (a *authServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/api/auth/refresh" {
		a.refreshes.Add(1)

		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(a.t, `{}`, string(body))

		if !a.refreshOK {
			writeEnvelope(a.t, w, http.StatusUnauthorized, StatusError, "Invalid refresh token", nil)
			return
		}

		http.SetCookie(w, &http.Cookie{Name: AccessCookie, Value: "fresh", Path: "/"})
		writeEnvelope(a.t, w, http.StatusOK, StatusSuccess, "Session refreshed", nil)

		return
	}

	a.calls.Add(1)

	ck, err := r.Cookie(AccessCookie)
	if a.alwaysDeny || err != nil || ck.Value != "fresh" {
		writeEnvelope(a.t, w, http.StatusUnauthorized, StatusError, a.expiredMsg, nil)
		return
	}

	writeEnvelope(a.t, w, http.StatusOK, StatusSuccess, "", []string{"ok"})
}

func TestRequest_RetryOnceAfterRefresh(t *testing.T) {
	for _, msg := range []string{MsgBadAccessToken, MsgMissingTokenCookies} {
		t.Run(msg, func(t *testing.T) {
			as := &authServer{t: t, expiredMsg: msg, refreshOK: true}
			srv := httptest.NewServer(as)
			defer srv.Close()

			client := newTestClient(t, srv.URL)
			res := client.Request(context.Background(), "nodes/@me", http.MethodGet, nil)

			require.True(t, res.OK(), res.Message)
			assert.Equal(t, int32(2), as.calls.Load())
			assert.Equal(t, int32(1), as.refreshes.Load())
		})
	}
}

func TestRequest_NoSecondRetry(t *testing.T) {
	as := &authServer{t: t, expiredMsg: MsgBadAccessToken, refreshOK: true, alwaysDeny: true}
	srv := httptest.NewServer(as)
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	res := client.Request(context.Background(), "nodes/@me", http.MethodGet, nil)

	assert.False(t, res.OK())
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, MsgBadAccessToken, res.Message)
	assert.Equal(t, int32(2), as.calls.Load())
	assert.Equal(t, int32(1), as.refreshes.Load())
}

func TestRequest_RefreshFailure(t *testing.T) {
	as := &authServer{t: t, expiredMsg: MsgMissingTokenCookies, refreshOK: false}
	srv := httptest.NewServer(as)
	defer srv.Close()

	client := newTestClient(t, srv.URL)

	var hookCalls atomic.Int32

	var navigated []string

	client.Session().OnLogout(func() { hookCalls.Add(1) })
	client.Session().SetNavigator(NavigatorFunc(func(p string) { navigated = append(navigated, p) }))

	res := client.Request(context.Background(), "nodes/@me", http.MethodPost, map[string]int{"a": 1})

	assert.False(t, res.OK())
	assert.Equal(t, MsgAuthFailed, res.Message)
	assert.Equal(t, StatusError, res.Status)
	assert.ErrorIs(t, res.Err(), ErrAuthFailed)
	assert.Equal(t, int32(1), as.calls.Load())
	assert.Equal(t, int32(1), as.refreshes.Load())
	assert.Equal(t, int32(1), hookCalls.Load())
	assert.Equal(t, []string{LoginPath}, navigated)
}

func TestRequest_RetryReencodesForm(t *testing.T) {
	var uploads atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/auth/refresh" {
			http.SetCookie(w, &http.Cookie{Name: AccessCookie, Value: "fresh", Path: "/"})
			writeEnvelope(t, w, http.StatusOK, StatusSuccess, "", nil)

			return
		}

		uploads.Add(1)
		require.NoError(t, r.ParseMultipartForm(1<<20))

		f, _, err := r.FormFile("file")
		require.NoError(t, err)

		data, _ := io.ReadAll(f)
		f.Close()
		assert.Equal(t, "content", string(data))

		if ck, err := r.Cookie(AccessCookie); err != nil || ck.Value != "fresh" {
			writeEnvelope(t, w, http.StatusUnauthorized, StatusError, MsgBadAccessToken, nil)
			return
		}

		writeEnvelope(t, w, http.StatusOK, StatusSuccess, "", nil)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	res := client.Request(context.Background(), "media", http.MethodPost,
		NewForm().AddFile("file", "a.txt", []byte("content")))

	assert.True(t, res.OK())
	assert.Equal(t, int32(2), uploads.Load())
}

func TestRequest_RecordsMetrics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeEnvelope(t, w, http.StatusOK, StatusSuccess, "", nil)
	}))
	defer srv.Close()

	m := metrics.New()
	client := NewClient(srv.URL, nil, slog.Default(), "", m)
	client.Request(context.Background(), "x", http.MethodGet, nil)

	families, err := m.Registry().Gather()
	require.NoError(t, err)

	found := false

	for _, f := range families {
		if f.GetName() == "notes_api_requests_total" {
			found = true

			require.Len(t, f.GetMetric(), 1)
			assert.InDelta(t, 1, f.GetMetric()[0].GetCounter().GetValue(), 0)
		}
	}

	assert.True(t, found)
}

func TestDecode(t *testing.T) {
	ok := Result{Status: StatusSuccess, StatusCode: http.StatusOK, Result: json.RawMessage(`{"n":1}`)}

	got, err := Decode[map[string]int](ok)
	require.NoError(t, err)
	assert.Equal(t, 1, got["n"])

	_, err = Decode[map[string]int](Result{Status: StatusSuccess, StatusCode: http.StatusOK})
	assert.ErrorIs(t, err, ErrMissingResult)

	_, err = Decode[map[string]int](Result{Status: StatusSuccess, StatusCode: http.StatusOK, Result: json.RawMessage(`[`)})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrLogical))

	_, err = Decode[map[string]int](Result{Status: StatusError, StatusCode: http.StatusNotFound, Message: "gone"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResultError_Message(t *testing.T) {
	withStatus := &ResultError{Result: Result{StatusCode: 404, Message: "Node not found"}}
	assert.Equal(t, "api: HTTP 404: Node not found", withStatus.Error())

	transport := &ResultError{Result: transportResult(errors.New("dial tcp: refused"))}
	assert.Equal(t, "api: dial tcp: refused", transport.Error())
}
