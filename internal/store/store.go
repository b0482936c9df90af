// Package store is the catalogue: titles, episode state, download history,
// blocklist, profiles, feeds, the seadex cache, and the persistent log. It
// owns every durable row; other components borrow a handle and never cache a
// mutable copy across operations.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Store provides access to the catalogue database. It is safe to share
// across goroutines; the storage layer serialises writes.
type Store struct {
	db *sql.DB
}

// New creates a store over an open database connection.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// marshalJSON encodes v, mapping nil slices to their empty JSON form.
func marshalJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}
	return string(data), nil
}

func unmarshalJSON[T any](data string) (T, error) {
	var v T
	if data == "" {
		return v, nil
	}
	if err := json.Unmarshal([]byte(data), &v); err != nil {
		return v, fmt.Errorf("unmarshal: %w", err)
	}
	return v, nil
}
