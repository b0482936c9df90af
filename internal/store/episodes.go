package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/kumoarr/kumoarr/internal/mediainfo"
)

// EpisodeStatus tracks the on-disk state of a single episode. Primary key is
// (anime_id, episode_number); writes are last-writer-wins upserts.
type EpisodeStatus struct {
	AnimeID      int64                `json:"animeId"`
	Episode      int                  `json:"episodeNumber"`
	Season       int                  `json:"season"`
	Monitored    bool                 `json:"monitored"`
	QualityID    *int                 `json:"qualityId,omitempty"`
	IsSeadex     bool                 `json:"isSeadex"`
	FilePath     *string              `json:"filePath,omitempty"`
	FileSize     *int64               `json:"fileSize,omitempty"`
	DownloadedAt *time.Time           `json:"downloadedAt,omitempty"`
	MediaInfo    *mediainfo.MediaInfo `json:"mediaInfo,omitempty"`
}

// EpisodeKey identifies an episode across batch lookups.
type EpisodeKey struct {
	AnimeID int64
	Episode int
}

const episodeStatusColumns = `anime_id, episode_number, season, monitored, quality_id,
	is_seadex, file_path, file_size, downloaded_at, media_info`

func scanEpisodeStatus(row interface{ Scan(...any) error }) (*EpisodeStatus, error) {
	var es EpisodeStatus
	var mediaJSON sql.NullString
	err := row.Scan(
		&es.AnimeID, &es.Episode, &es.Season, &es.Monitored, &es.QualityID,
		&es.IsSeadex, &es.FilePath, &es.FileSize, &es.DownloadedAt, &mediaJSON,
	)
	if err != nil {
		return nil, err
	}
	if mediaJSON.Valid && mediaJSON.String != "" {
		mi, err := unmarshalJSON[*mediainfo.MediaInfo](mediaJSON.String)
		if err != nil {
			return nil, err
		}
		es.MediaInfo = mi
	}
	return &es, nil
}

// UpsertEpisodeStatus writes all non-key fields for the episode; idempotent.
func (s *Store) UpsertEpisodeStatus(ctx context.Context, es *EpisodeStatus) error {
	var mediaJSON *string
	if es.MediaInfo != nil {
		data, err := marshalJSON(es.MediaInfo)
		if err != nil {
			return err
		}
		mediaJSON = &data
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO episode_status (anime_id, episode_number, season, monitored,
			quality_id, is_seadex, file_path, file_size, downloaded_at, media_info)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (anime_id, episode_number) DO UPDATE SET
			season = excluded.season,
			monitored = excluded.monitored,
			quality_id = excluded.quality_id,
			is_seadex = excluded.is_seadex,
			file_path = excluded.file_path,
			file_size = excluded.file_size,
			downloaded_at = excluded.downloaded_at,
			media_info = excluded.media_info`,
		es.AnimeID, es.Episode, es.Season, es.Monitored, es.QualityID,
		es.IsSeadex, es.FilePath, es.FileSize, es.DownloadedAt, mediaJSON,
	)
	if err != nil {
		return fmt.Errorf("upsert episode status %d/%d: %w", es.AnimeID, es.Episode, err)
	}
	return nil
}

// GetEpisodeStatus returns one episode's status, or ErrNotFound.
func (s *Store) GetEpisodeStatus(ctx context.Context, animeID int64, episode int) (*EpisodeStatus, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+episodeStatusColumns+` FROM episode_status WHERE anime_id = ? AND episode_number = ?`,
		animeID, episode)
	es, err := scanEpisodeStatus(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get episode status %d/%d: %w", animeID, episode, err)
	}
	return es, nil
}

// GetEpisodeStatuses returns all episode statuses for a title, ordered by
// episode number.
func (s *Store) GetEpisodeStatuses(ctx context.Context, animeID int64) ([]*EpisodeStatus, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+episodeStatusColumns+` FROM episode_status WHERE anime_id = ? ORDER BY episode_number`,
		animeID)
	if err != nil {
		return nil, fmt.Errorf("get episode statuses %d: %w", animeID, err)
	}
	defer rows.Close()

	var out []*EpisodeStatus
	for rows.Next() {
		es, err := scanEpisodeStatus(rows)
		if err != nil {
			return nil, fmt.Errorf("scan episode status: %w", err)
		}
		out = append(out, es)
	}
	return out, rows.Err()
}

// GetEpisodeStatusesBatch fetches statuses for arbitrary (anime, episode)
// pairs in one query per anime set, keyed by EpisodeKey.
func (s *Store) GetEpisodeStatusesBatch(ctx context.Context, keys []EpisodeKey) (map[EpisodeKey]*EpisodeStatus, error) {
	out := make(map[EpisodeKey]*EpisodeStatus, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	animeIDs := make([]int64, 0, len(keys))
	seen := make(map[int64]bool)
	wanted := make(map[EpisodeKey]bool, len(keys))
	for _, k := range keys {
		wanted[k] = true
		if !seen[k.AnimeID] {
			seen[k.AnimeID] = true
			animeIDs = append(animeIDs, k.AnimeID)
		}
	}

	query, args := inClause(`SELECT `+episodeStatusColumns+` FROM episode_status WHERE anime_id IN `, animeIDs)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get episode statuses batch: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		es, err := scanEpisodeStatus(rows)
		if err != nil {
			return nil, fmt.Errorf("scan episode status: %w", err)
		}
		key := EpisodeKey{AnimeID: es.AnimeID, Episode: es.Episode}
		if wanted[key] {
			out[key] = es
		}
	}
	return out, rows.Err()
}

// MarkEpisodeDownloaded records a finished import: file location, quality,
// and downloaded_at = now.
func (s *Store) MarkEpisodeDownloaded(ctx context.Context, animeID int64, episode, season, qualityID int, isSeadex bool, path string, size *int64, mi *mediainfo.MediaInfo) error {
	now := time.Now().UTC()
	return s.UpsertEpisodeStatus(ctx, &EpisodeStatus{
		AnimeID:      animeID,
		Episode:      episode,
		Season:       season,
		Monitored:    true,
		QualityID:    &qualityID,
		IsSeadex:     isSeadex,
		FilePath:     &path,
		FileSize:     size,
		DownloadedAt: &now,
		MediaInfo:    mi,
	})
}

// ClearEpisodeDownload nulls the download fields, leaving monitoring intact.
func (s *Store) ClearEpisodeDownload(ctx context.Context, animeID int64, episode int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE episode_status
		SET file_path = NULL, file_size = NULL, downloaded_at = NULL,
			quality_id = NULL, is_seadex = 0, media_info = NULL
		WHERE anime_id = ? AND episode_number = ?`,
		animeID, episode)
	if err != nil {
		return fmt.Errorf("clear episode download %d/%d: %w", animeID, episode, err)
	}
	return nil
}

// UpdateEpisodePath rewrites only the file path; used by renames.
func (s *Store) UpdateEpisodePath(ctx context.Context, animeID int64, episode int, newPath string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE episode_status SET file_path = ? WHERE anime_id = ? AND episode_number = ?`,
		newPath, animeID, episode)
	if err != nil {
		return fmt.Errorf("update episode path %d/%d: %w", animeID, episode, err)
	}
	return nil
}

// GetMissingEpisodes returns {1..total} minus the episodes that have a file
// or are explicitly unmonitored, sorted ascending. Episodes without a row
// count as monitored.
func (s *Store) GetMissingEpisodes(ctx context.Context, animeID int64, total int) ([]int, error) {
	if total <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT episode_number FROM episode_status
		WHERE anime_id = ? AND (file_path IS NOT NULL OR monitored = 0)`,
		animeID)
	if err != nil {
		return nil, fmt.Errorf("get missing episodes %d: %w", animeID, err)
	}
	defer rows.Close()

	excluded := make(map[int]bool)
	for rows.Next() {
		var ep int
		if err := rows.Scan(&ep); err != nil {
			return nil, err
		}
		excluded[ep] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	missing := make([]int, 0, total)
	for ep := 1; ep <= total; ep++ {
		if !excluded[ep] {
			missing = append(missing, ep)
		}
	}
	sort.Ints(missing)
	return missing, nil
}
