package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SeadexRelease is one curated release from the seadex index.
type SeadexRelease struct {
	URL       string `json:"url"`
	InfoHash  string `json:"infoHash,omitempty"`
	Group     string `json:"releaseGroup"`
	IsBest    bool   `json:"isBest"`
	Tracker   string `json:"tracker,omitempty"`
	DualAudio bool   `json:"dualAudio,omitempty"`
}

// SeadexEntry is the cached curation data for one title.
type SeadexEntry struct {
	AnimeID   int64           `json:"animeId"`
	Groups    []string        `json:"groups"`
	BestGroup *string         `json:"bestReleaseGroup,omitempty"`
	Releases  []SeadexRelease `json:"releases"`
	FetchedAt time.Time       `json:"fetchedAt"`
}

// Fresh reports whether the entry was fetched within maxAge.
func (e *SeadexEntry) Fresh(maxAge time.Duration) bool {
	return time.Since(e.FetchedAt) < maxAge
}

// UpsertSeadexEntry replaces the cached curation data for a title.
func (s *Store) UpsertSeadexEntry(ctx context.Context, e *SeadexEntry) error {
	groups, err := marshalJSON(e.Groups)
	if err != nil {
		return err
	}
	releases, err := marshalJSON(e.Releases)
	if err != nil {
		return err
	}
	if e.FetchedAt.IsZero() {
		e.FetchedAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO seadex_cache (anime_id, groups, best_release, releases, fetched_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (anime_id) DO UPDATE SET
			groups = excluded.groups,
			best_release = excluded.best_release,
			releases = excluded.releases,
			fetched_at = excluded.fetched_at`,
		e.AnimeID, groups, e.BestGroup, releases, e.FetchedAt)
	if err != nil {
		return fmt.Errorf("upsert seadex entry %d: %w", e.AnimeID, err)
	}
	return nil
}

// GetSeadexEntry returns the cached curation data for a title, or
// ErrNotFound.
func (s *Store) GetSeadexEntry(ctx context.Context, animeID int64) (*SeadexEntry, error) {
	var e SeadexEntry
	var groups, releases string
	err := s.db.QueryRowContext(ctx, `
		SELECT anime_id, groups, best_release, releases, fetched_at
		FROM seadex_cache WHERE anime_id = ?`, animeID).
		Scan(&e.AnimeID, &groups, &e.BestGroup, &releases, &e.FetchedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get seadex entry %d: %w", animeID, err)
	}
	if e.Groups, err = unmarshalJSON[[]string](groups); err != nil {
		return nil, err
	}
	if e.Releases, err = unmarshalJSON[[]SeadexRelease](releases); err != nil {
		return nil, err
	}
	return &e, nil
}
