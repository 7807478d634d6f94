//go:build !cgo

package store

import "fmt"

// OpenURL is unavailable without cgo; go-libsql links the native client.
func OpenURL(dbURL, authToken string, opts ...Option) (*Store, error) {
	return nil, fmt.Errorf("remote database %s requires a cgo build", dbURL)
}
