package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// RecycleEntry records a library file displaced by an upgrade or removal.
// RecycledPath is nil when the file was deleted outright.
type RecycleEntry struct {
	ID           int64     `json:"id"`
	OriginalPath string    `json:"originalPath"`
	RecycledPath *string   `json:"recycledPath,omitempty"`
	AnimeID      int64     `json:"animeId"`
	Episode      int       `json:"episodeNumber"`
	QualityID    *int      `json:"qualityId,omitempty"`
	FileSize     *int64    `json:"fileSize,omitempty"`
	DeletedAt    time.Time `json:"deletedAt"`
	Reason       string    `json:"reason"`
}

// AddRecycleEntry records a displaced file and returns its row ID.
func (s *Store) AddRecycleEntry(ctx context.Context, e *RecycleEntry) (int64, error) {
	if e.DeletedAt.IsZero() {
		e.DeletedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO recycle_bin (original_path, recycled_path, anime_id,
			episode_number, quality_id, file_size, deleted_at, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.OriginalPath, e.RecycledPath, e.AnimeID, e.Episode,
		e.QualityID, e.FileSize, e.DeletedAt, e.Reason)
	if err != nil {
		return 0, fmt.Errorf("add recycle entry: %w", err)
	}
	return res.LastInsertId()
}

// GetRecycleEntriesOlderThan returns entries whose deletion predates the
// cutoff, oldest first. The cleanup job uses this to expire the bin.
func (s *Store) GetRecycleEntriesOlderThan(ctx context.Context, cutoff time.Time) ([]*RecycleEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, original_path, recycled_path, anime_id, episode_number,
			quality_id, file_size, deleted_at, reason
		FROM recycle_bin WHERE deleted_at < ? ORDER BY deleted_at`,
		cutoff)
	if err != nil {
		return nil, fmt.Errorf("get recycle entries: %w", err)
	}
	defer rows.Close()

	var out []*RecycleEntry
	for rows.Next() {
		e, err := scanRecycleEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanRecycleEntry(row interface{ Scan(...any) error }) (*RecycleEntry, error) {
	var e RecycleEntry
	err := row.Scan(&e.ID, &e.OriginalPath, &e.RecycledPath, &e.AnimeID,
		&e.Episode, &e.QualityID, &e.FileSize, &e.DeletedAt, &e.Reason)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// GetRecycleEntry returns one entry by ID, or ErrNotFound.
func (s *Store) GetRecycleEntry(ctx context.Context, id int64) (*RecycleEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, original_path, recycled_path, anime_id, episode_number,
			quality_id, file_size, deleted_at, reason
		FROM recycle_bin WHERE id = ?`, id)
	e, err := scanRecycleEntry(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get recycle entry %d: %w", id, err)
	}
	return e, nil
}

// RemoveRecycleEntry drops a bin row after its file has been purged or
// restored.
func (s *Store) RemoveRecycleEntry(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM recycle_bin WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("remove recycle entry %d: %w", id, err)
	}
	return nil
}
