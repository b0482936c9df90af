package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Feed is a per-title RSS subscription. LastItemHash is the dedupe cursor:
// the hash of the newest item seen on the previous poll.
type Feed struct {
	ID           int64      `json:"id"`
	AnimeID      int64      `json:"animeId"`
	URL          string     `json:"url"`
	Name         *string    `json:"name,omitempty"`
	Enabled      bool       `json:"enabled"`
	LastChecked  *time.Time `json:"lastChecked,omitempty"`
	LastItemHash *string    `json:"lastItemHash,omitempty"`
}

const feedColumns = `id, anime_id, url, name, enabled, last_checked, last_item_hash`

func scanFeed(row interface{ Scan(...any) error }) (*Feed, error) {
	var f Feed
	err := row.Scan(&f.ID, &f.AnimeID, &f.URL, &f.Name, &f.Enabled,
		&f.LastChecked, &f.LastItemHash)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// AddFeed registers a feed for a title and returns its ID.
func (s *Store) AddFeed(ctx context.Context, animeID int64, url string, name *string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO rss_feeds (anime_id, url, name, enabled) VALUES (?, ?, ?, 1)`,
		animeID, url, name)
	if err != nil {
		return 0, fmt.Errorf("add feed: %w", err)
	}
	return res.LastInsertId()
}

// GetFeed returns one feed by ID, or ErrNotFound.
func (s *Store) GetFeed(ctx context.Context, id int64) (*Feed, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+feedColumns+` FROM rss_feeds WHERE id = ?`, id)
	f, err := scanFeed(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get feed %d: %w", id, err)
	}
	return f, nil
}

// ListEnabledFeeds returns every enabled feed, ordered by ID so polling order
// is stable.
func (s *Store) ListEnabledFeeds(ctx context.Context) ([]*Feed, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+feedColumns+` FROM rss_feeds WHERE enabled = 1 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list enabled feeds: %w", err)
	}
	defer rows.Close()

	var out []*Feed
	for rows.Next() {
		f, err := scanFeed(rows)
		if err != nil {
			return nil, fmt.Errorf("scan feed: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// UpdateFeedCursor advances a feed's dedupe cursor and check timestamp in a
// single write, so a crash cannot separate the two.
func (s *Store) UpdateFeedCursor(ctx context.Context, id int64, lastItemHash string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE rss_feeds SET last_item_hash = ?, last_checked = ? WHERE id = ?`,
		lastItemHash, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update feed cursor %d: %w", id, err)
	}
	return nil
}

// SetFeedEnabled flips a feed's enabled flag.
func (s *Store) SetFeedEnabled(ctx context.Context, id int64, enabled bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE rss_feeds SET enabled = ? WHERE id = ?`, enabled, id)
	if err != nil {
		return fmt.Errorf("set feed enabled %d: %w", id, err)
	}
	return nil
}

// RemoveFeed deletes a feed subscription.
func (s *Store) RemoveFeed(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM rss_feeds WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("remove feed %d: %w", id, err)
	}
	return nil
}
