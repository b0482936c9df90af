package store

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// BlocklistEntry records a torrent hash that must never be grabbed again.
type BlocklistEntry struct {
	InfoHash  string    `json:"infoHash"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"createdAt"`
}

// AddToBlocklist records an info hash with the reason it was banned.
// Re-adding an existing hash updates the reason.
func (s *Store) AddToBlocklist(ctx context.Context, infoHash, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO blocklist (info_hash, reason, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT (info_hash) DO UPDATE SET reason = excluded.reason`,
		strings.ToLower(infoHash), reason, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("add to blocklist: %w", err)
	}
	return nil
}

// IsBlocked reports whether an info hash is on the blocklist
// (case-insensitive).
func (s *Store) IsBlocked(ctx context.Context, infoHash string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM blocklist WHERE info_hash = ?`,
		strings.ToLower(infoHash)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("is blocked: %w", err)
	}
	return n > 0, nil
}

// ListBlocklist returns all entries, newest first.
func (s *Store) ListBlocklist(ctx context.Context) ([]*BlocklistEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT info_hash, reason, created_at FROM blocklist ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list blocklist: %w", err)
	}
	defer rows.Close()

	var out []*BlocklistEntry
	for rows.Next() {
		var e BlocklistEntry
		if err := rows.Scan(&e.InfoHash, &e.Reason, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// RemoveFromBlocklist lifts the ban on a hash.
func (s *Store) RemoveFromBlocklist(ctx context.Context, infoHash string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM blocklist WHERE info_hash = ?`, strings.ToLower(infoHash))
	if err != nil {
		return fmt.Errorf("remove from blocklist: %w", err)
	}
	return nil
}
