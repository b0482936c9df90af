package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// EpisodeMetadata is descriptive episode data from the metadata providers.
type EpisodeMetadata struct {
	AnimeID       int64      `json:"animeId"`
	Episode       int        `json:"episodeNumber"`
	Title         *string    `json:"title,omitempty"`
	TitleJapanese *string    `json:"titleJapanese,omitempty"`
	Aired         *time.Time `json:"aired,omitempty"`
	Filler        bool       `json:"filler"`
	Recap         bool       `json:"recap"`
	FetchedAt     time.Time  `json:"fetchedAt"`
}

// UpsertEpisodeMetadata replaces an episode's descriptive data.
func (s *Store) UpsertEpisodeMetadata(ctx context.Context, m *EpisodeMetadata) error {
	if m.FetchedAt.IsZero() {
		m.FetchedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO episode_metadata (anime_id, episode_number, title,
			title_japanese, aired, filler, recap, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (anime_id, episode_number) DO UPDATE SET
			title = excluded.title,
			title_japanese = excluded.title_japanese,
			aired = excluded.aired,
			filler = excluded.filler,
			recap = excluded.recap,
			fetched_at = excluded.fetched_at`,
		m.AnimeID, m.Episode, m.Title, m.TitleJapanese, m.Aired,
		m.Filler, m.Recap, m.FetchedAt)
	if err != nil {
		return fmt.Errorf("upsert episode metadata %d/%d: %w", m.AnimeID, m.Episode, err)
	}
	return nil
}

// GetEpisodeMetadata returns all stored metadata for a title, ordered by
// episode number.
func (s *Store) GetEpisodeMetadata(ctx context.Context, animeID int64) ([]*EpisodeMetadata, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT anime_id, episode_number, title, title_japanese, aired, filler, recap, fetched_at
		FROM episode_metadata WHERE anime_id = ? ORDER BY episode_number`, animeID)
	if err != nil {
		return nil, fmt.Errorf("get episode metadata %d: %w", animeID, err)
	}
	defer rows.Close()

	var out []*EpisodeMetadata
	for rows.Next() {
		var m EpisodeMetadata
		if err := rows.Scan(&m.AnimeID, &m.Episode, &m.Title, &m.TitleJapanese,
			&m.Aired, &m.Filler, &m.Recap, &m.FetchedAt); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

// GetMetadataFetchedAt returns the freshest fetch time among a title's
// episode metadata rows, or zero when none exist.
func (s *Store) GetMetadataFetchedAt(ctx context.Context, animeID int64) (time.Time, error) {
	var fetched time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT fetched_at FROM episode_metadata WHERE anime_id = ? ORDER BY fetched_at DESC LIMIT 1`,
		animeID).Scan(&fetched)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("get metadata fetched at %d: %w", animeID, err)
	}
	return fetched, nil
}
