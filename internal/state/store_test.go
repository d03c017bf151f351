package state

import (
	"context"
	"net/http"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T, path string) *Store {
	t.Helper()

	s, err := Open(context.Background(), path, nil)
	require.NoError(t, err)

	t.Cleanup(func() { s.Close() })

	return s
}

func TestStore_KV(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, filepath.Join(t.TempDir(), "state.db"))

	_, err := s.Get(ctx, KeyLoggedIn)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Set(ctx, KeyLoggedIn, "true"))
	require.NoError(t, s.Set(ctx, KeyLoggedIn, "yes"))

	v, err := s.Get(ctx, KeyLoggedIn)
	require.NoError(t, err)
	assert.Equal(t, "yes", v)

	require.NoError(t, s.Delete(ctx, KeyLoggedIn))
	require.NoError(t, s.Delete(ctx, KeyLoggedIn))

	_, err = s.Get(ctx, KeyLoggedIn)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "state.db")

	s, err := Open(ctx, path, nil)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, KeyUser, `{"id":"1"}`))
	require.NoError(t, s.Close())

	reopened := openTestStore(t, path)

	v, err := reopened.Get(ctx, KeyUser)
	require.NoError(t, err)
	assert.Equal(t, `{"id":"1"}`, v)
}

func TestStore_SaveCookies(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, filepath.Join(t.TempDir(), "state.db"))

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.nowFunc = func() time.Time { return now }

	require.NoError(t, s.SaveCookies(ctx, "https://notes.test", []*http.Cookie{
		{Name: "Authorization", Value: "a1", HttpOnly: true},
		{Name: "RefreshToken", Value: "r1", Path: "/api", MaxAge: 3600, Secure: true},
		{Name: "Stale", Value: "x", Expires: now.Add(-time.Minute)},
	}))

	got, err := s.LoadCookies(ctx)
	require.NoError(t, err)
	require.Len(t, got["https://notes.test"], 2)

	byName := map[string]*http.Cookie{}
	for _, c := range got["https://notes.test"] {
		byName[c.Name] = c
	}

	assert.Equal(t, "a1", byName["Authorization"].Value)
	assert.Equal(t, "/", byName["Authorization"].Path)
	assert.True(t, byName["Authorization"].HttpOnly)
	assert.True(t, byName["Authorization"].Expires.IsZero())

	assert.Equal(t, "/api", byName["RefreshToken"].Path)
	assert.True(t, byName["RefreshToken"].Secure)
	assert.True(t, byName["RefreshToken"].Expires.Equal(now.Add(time.Hour)))

	// A negative Max-Age deletes.
	require.NoError(t, s.SaveCookies(ctx, "https://notes.test", []*http.Cookie{
		{Name: "Authorization", MaxAge: -1},
	}))

	got, err = s.LoadCookies(ctx)
	require.NoError(t, err)
	require.Len(t, got["https://notes.test"], 1)
	assert.Equal(t, "RefreshToken", got["https://notes.test"][0].Name)

	// Loading skips rows that expired since they were written.
	s.nowFunc = func() time.Time { return now.Add(2 * time.Hour) }

	got, err = s.LoadCookies(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestJar_PersistsAcrossRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")
	u, err := url.Parse("http://notes.test/api/auth")
	require.NoError(t, err)

	s1, err := Open(ctx, path, nil)
	require.NoError(t, err)

	jar1, err := NewJar(ctx, s1, nil)
	require.NoError(t, err)

	jar1.SetCookies(u, []*http.Cookie{
		{Name: "Authorization", Value: "tok", Path: "/"},
		{Name: "RefreshToken", Value: "ref", Path: "/", MaxAge: 600},
	})
	assert.Len(t, jar1.Cookies(u), 2)
	require.NoError(t, s1.Close())

	s2 := openTestStore(t, path)

	jar2, err := NewJar(ctx, s2, nil)
	require.NoError(t, err)

	values := map[string]string{}
	for _, c := range jar2.Cookies(u) {
		values[c.Name] = c.Value
	}

	assert.Equal(t, map[string]string{"Authorization": "tok", "RefreshToken": "ref"}, values)
}

func TestJar_Clear(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, filepath.Join(t.TempDir(), "state.db"))

	jar, err := NewJar(ctx, s, nil)
	require.NoError(t, err)

	u, err := url.Parse("http://notes.test/")
	require.NoError(t, err)

	jar.SetCookies(u, []*http.Cookie{{Name: "Authorization", Value: "tok", Path: "/"}})
	require.Len(t, jar.Cookies(u), 1)

	require.NoError(t, jar.Clear(ctx))
	assert.Empty(t, jar.Cookies(u))

	saved, err := s.LoadCookies(ctx)
	require.NoError(t, err)
	assert.Empty(t, saved)
}

func TestJar_ServerExpiryRemovesPersistedCookie(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, filepath.Join(t.TempDir(), "state.db"))

	jar, err := NewJar(ctx, s, nil)
	require.NoError(t, err)

	u, err := url.Parse("http://notes.test/")
	require.NoError(t, err)

	jar.SetCookies(u, []*http.Cookie{{Name: "Authorization", Value: "tok", Path: "/"}})
	jar.SetCookies(u, []*http.Cookie{{Name: "Authorization", Path: "/", MaxAge: -1}})

	assert.Empty(t, jar.Cookies(u))

	saved, err := s.LoadCookies(ctx)
	require.NoError(t, err)
	assert.Empty(t, saved)
}
