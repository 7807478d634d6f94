//go:build cgo

package store

import (
	"database/sql"
	"fmt"
	"net/url"

	_ "github.com/tursodatabase/go-libsql"
)

// OpenURL connects to a remote libSQL/Turso database ("libsql://...") and
// initializes the schema.
func OpenURL(dbURL, authToken string, opts ...Option) (*Store, error) {
	dsn, err := remoteDSN(dbURL, authToken)
	if err != nil {
		return nil, err
	}

	conn, err := sql.Open("libsql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open remote database: %w", err)
	}
	return openRemote(conn, dbURL, opts)
}

func remoteDSN(dbURL, authToken string) (string, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return "", fmt.Errorf("invalid database url %q: %w", dbURL, err)
	}
	if authToken != "" {
		q := u.Query()
		q.Set("authToken", authToken)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}
