package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Anime is a tracked title. The ID is the upstream catalogue's integer ID,
// so external lookups never need a local translation table.
type Anime struct {
	ID                int64      `json:"id"`
	TitleRomaji       string     `json:"titleRomaji"`
	TitleEnglish      *string    `json:"titleEnglish,omitempty"`
	TitleNative       *string    `json:"titleNative,omitempty"`
	Format            string     `json:"format"`
	EpisodeCount      *int       `json:"episodeCount,omitempty"`
	Status            string     `json:"status"`
	QualityProfileID  *int64     `json:"qualityProfileId,omitempty"`
	ReleaseProfileIDs []int64    `json:"releaseProfileIds"`
	Monitored         bool       `json:"monitored"`
	Path              *string    `json:"path,omitempty"`
	CoverImage        *string    `json:"coverImage,omitempty"`
	BannerImage       *string    `json:"bannerImage,omitempty"`
	Description       *string    `json:"description,omitempty"`
	AddedAt           time.Time  `json:"addedAt"`
}

// Title statuses from the upstream catalogue.
const (
	StatusReleasing      = "RELEASING"
	StatusFinished       = "FINISHED"
	StatusNotYetReleased = "NOT_YET_RELEASED"
)

const animeColumns = `id, title_romaji, title_english, title_native, format, episode_count,
	status, quality_profile_id, release_profile_ids, monitored, path,
	cover_image, banner_image, description, added_at`

func scanAnime(row interface{ Scan(...any) error }) (*Anime, error) {
	var a Anime
	var releaseIDs string
	err := row.Scan(
		&a.ID, &a.TitleRomaji, &a.TitleEnglish, &a.TitleNative, &a.Format,
		&a.EpisodeCount, &a.Status, &a.QualityProfileID, &releaseIDs,
		&a.Monitored, &a.Path, &a.CoverImage, &a.BannerImage, &a.Description,
		&a.AddedAt,
	)
	if err != nil {
		return nil, err
	}
	a.ReleaseProfileIDs, err = unmarshalJSON[[]int64](releaseIDs)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// AddAnime inserts or replaces a title.
func (s *Store) AddAnime(ctx context.Context, a *Anime) error {
	releaseIDs, err := marshalJSON(a.ReleaseProfileIDs)
	if err != nil {
		return err
	}
	if a.AddedAt.IsZero() {
		a.AddedAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO anime (id, title_romaji, title_english, title_native, format,
			episode_count, status, quality_profile_id, release_profile_ids,
			monitored, path, cover_image, banner_image, description, added_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			title_romaji = excluded.title_romaji,
			title_english = excluded.title_english,
			title_native = excluded.title_native,
			format = excluded.format,
			episode_count = excluded.episode_count,
			status = excluded.status,
			quality_profile_id = excluded.quality_profile_id,
			release_profile_ids = excluded.release_profile_ids,
			monitored = excluded.monitored,
			path = excluded.path,
			cover_image = excluded.cover_image,
			banner_image = excluded.banner_image,
			description = excluded.description`,
		a.ID, a.TitleRomaji, a.TitleEnglish, a.TitleNative, a.Format,
		a.EpisodeCount, a.Status, a.QualityProfileID, releaseIDs,
		a.Monitored, a.Path, a.CoverImage, a.BannerImage, a.Description,
		a.AddedAt,
	)
	if err != nil {
		return fmt.Errorf("add anime %d: %w", a.ID, err)
	}
	return nil
}

// GetAnime returns a title by ID, or ErrNotFound.
func (s *Store) GetAnime(ctx context.Context, id int64) (*Anime, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+animeColumns+` FROM anime WHERE id = ?`, id)
	a, err := scanAnime(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get anime %d: %w", id, err)
	}
	return a, nil
}

// ListMonitored returns all monitored titles ordered by romaji title.
func (s *Store) ListMonitored(ctx context.Context) ([]*Anime, error) {
	return s.listAnime(ctx, `SELECT `+animeColumns+` FROM anime WHERE monitored = 1 ORDER BY title_romaji`)
}

// ListAll returns every tracked title.
func (s *Store) ListAll(ctx context.Context) ([]*Anime, error) {
	return s.listAnime(ctx, `SELECT `+animeColumns+` FROM anime ORDER BY title_romaji`)
}

func (s *Store) listAnime(ctx context.Context, query string, args ...any) ([]*Anime, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list anime: %w", err)
	}
	defer rows.Close()

	var out []*Anime
	for rows.Next() {
		a, err := scanAnime(rows)
		if err != nil {
			return nil, fmt.Errorf("scan anime: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetAnimeBatch returns titles by ID, keyed by ID. Missing IDs are absent
// from the map.
func (s *Store) GetAnimeBatch(ctx context.Context, ids []int64) (map[int64]*Anime, error) {
	out := make(map[int64]*Anime, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	query, args := inClause(`SELECT `+animeColumns+` FROM anime WHERE id IN `, ids)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get anime batch: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		a, err := scanAnime(rows)
		if err != nil {
			return nil, fmt.Errorf("scan anime: %w", err)
		}
		out[a.ID] = a
	}
	return out, rows.Err()
}

// RemoveAnime deletes a title. Episode status, history, feeds, seadex cache,
// and recycle entries cascade.
func (s *Store) RemoveAnime(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM anime WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("remove anime %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetMonitored flips a title's monitored flag.
func (s *Store) SetMonitored(ctx context.Context, id int64, monitored bool) error {
	_, err := s.db.ExecContext(ctx, `UPDATE anime SET monitored = ? WHERE id = ?`, monitored, id)
	if err != nil {
		return fmt.Errorf("set monitored %d: %w", id, err)
	}
	return nil
}

// inClause builds "prefix (?,?,...)" and the matching args slice.
func inClause[T any](prefix string, vals []T) (string, []any) {
	args := make([]any, len(vals))
	placeholders := make([]byte, 0, len(vals)*2+2)
	placeholders = append(placeholders, '(')
	for i, v := range vals {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
		args[i] = v
	}
	placeholders = append(placeholders, ')')
	return prefix + string(placeholders), args
}
