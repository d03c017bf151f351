package state

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

const (
	sqlLoadCookies = `SELECT origin, name, path, value, domain, expires_at, secure, http_only
		FROM cookies`

	sqlUpsertCookie = `INSERT INTO cookies
		(origin, name, path, value, domain, expires_at, secure, http_only, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(origin, name, path) DO UPDATE SET
		 value = excluded.value,
		 domain = excluded.domain,
		 expires_at = excluded.expires_at,
		 secure = excluded.secure,
		 http_only = excluded.http_only,
		 updated_at = excluded.updated_at`

	sqlDeleteCookie = `DELETE FROM cookies WHERE origin = ? AND name = ? AND path = ?`

	sqlClearCookies = `DELETE FROM cookies`
)

// SaveCookies records cookies received from origin (scheme://host). A cookie
// that is already expired or carries a negative Max-Age deletes its row.
func (s *Store) SaveCookies(ctx context.Context, origin string, cookies []*http.Cookie) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("state: beginning cookie transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	now := s.nowFunc()

	for _, c := range cookies {
		path := c.Path
		if path == "" {
			path = "/"
		}

		expires := cookieExpiry(c, now)
		if c.MaxAge < 0 || (!expires.IsZero() && !expires.After(now)) {
			if _, err := tx.ExecContext(ctx, sqlDeleteCookie, origin, c.Name, path); err != nil {
				return fmt.Errorf("state: deleting cookie %q: %w", c.Name, err)
			}

			continue
		}

		var expiresMs int64
		if !expires.IsZero() {
			expiresMs = expires.UnixMilli()
		}

		if _, err := tx.ExecContext(ctx, sqlUpsertCookie,
			origin, c.Name, path, c.Value, c.Domain, expiresMs,
			c.Secure, c.HttpOnly, now.UnixMilli(),
		); err != nil {
			return fmt.Errorf("state: saving cookie %q: %w", c.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("state: committing cookies: %w", err)
	}

	return nil
}

// LoadCookies returns every unexpired stored cookie grouped by origin.
func (s *Store) LoadCookies(ctx context.Context) (map[string][]*http.Cookie, error) {
	rows, err := s.db.QueryContext(ctx, sqlLoadCookies)
	if err != nil {
		return nil, fmt.Errorf("state: loading cookies: %w", err)
	}
	defer rows.Close()

	now := s.nowFunc()
	out := make(map[string][]*http.Cookie)

	for rows.Next() {
		var (
			origin    string
			c         http.Cookie
			expiresMs int64
		)

		if err := rows.Scan(&origin, &c.Name, &c.Path, &c.Value, &c.Domain,
			&expiresMs, &c.Secure, &c.HttpOnly); err != nil {
			return nil, fmt.Errorf("state: scanning cookie row: %w", err)
		}

		if expiresMs != 0 {
			c.Expires = time.UnixMilli(expiresMs)
			if !c.Expires.After(now) {
				continue
			}
		}

		out[origin] = append(out[origin], &c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("state: iterating cookie rows: %w", err)
	}

	return out, nil
}

// ClearCookies removes every stored cookie.
func (s *Store) ClearCookies(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqlClearCookies); err != nil {
		return fmt.Errorf("state: clearing cookies: %w", err)
	}

	return nil
}

// cookieExpiry resolves Max-Age (which wins) or Expires to an absolute time.
// The zero time means a session cookie.
func cookieExpiry(c *http.Cookie, now time.Time) time.Time {
	if c.MaxAge > 0 {
		return now.Add(time.Duration(c.MaxAge) * time.Second)
	}

	return c.Expires
}
