package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"
)

// BatchEpisodeNumber marks a history row that covers a whole FINISHED title
// rather than one episode.
const BatchEpisodeNumber = -1

// DownloadHistory is an append-mostly record of queued grabs. Filename is
// the dedupe key; Imported flips false→true exactly once.
type DownloadHistory struct {
	ID           int64     `json:"id"`
	AnimeID      int64     `json:"animeId"`
	Filename     string    `json:"filename"`
	Episode      float64   `json:"episodeNumber"`
	Group        *string   `json:"group,omitempty"`
	InfoHash     *string   `json:"infoHash,omitempty"`
	DownloadDate time.Time `json:"downloadDate"`
	Imported     bool      `json:"imported"`
}

// EpisodeTruncated collapses special-episode markers for status lookups.
func (h *DownloadHistory) EpisodeTruncated() int {
	return int(math.Floor(h.Episode))
}

// IsBatch reports whether the row is a whole-title batch marker.
func (h *DownloadHistory) IsBatch() bool {
	return h.Episode == BatchEpisodeNumber
}

const historyColumns = `id, anime_id, filename, episode_number, release_group, info_hash, download_date, imported`

func scanHistory(row interface{ Scan(...any) error }) (*DownloadHistory, error) {
	var h DownloadHistory
	err := row.Scan(&h.ID, &h.AnimeID, &h.Filename, &h.Episode, &h.Group,
		&h.InfoHash, &h.DownloadDate, &h.Imported)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// RecordDownload inserts a history row. A duplicate filename is silently
// accepted (the filename is the idempotence key).
func (s *Store) RecordDownload(ctx context.Context, animeID int64, filename string, episode float64, group, infoHash *string) error {
	var hash *string
	if infoHash != nil {
		lowered := strings.ToLower(*infoHash)
		hash = &lowered
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO download_history (anime_id, filename, episode_number, release_group, info_hash, download_date, imported)
		VALUES (?, ?, ?, ?, ?, ?, 0)
		ON CONFLICT (filename) DO NOTHING`,
		animeID, filename, episode, group, hash, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("record download %q: %w", filename, err)
	}
	return nil
}

// IsDownloaded reports whether a filename has already been queued.
func (s *Store) IsDownloaded(ctx context.Context, filename string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM download_history WHERE filename = ?`, filename).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("is downloaded %q: %w", filename, err)
	}
	return n > 0, nil
}

// SetImported flips the imported flag on a history row.
func (s *Store) SetImported(ctx context.Context, historyID int64, imported bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE download_history SET imported = ? WHERE id = ?`, imported, historyID)
	if err != nil {
		return fmt.Errorf("set imported %d: %w", historyID, err)
	}
	return nil
}

// GetDownloadByHash returns the history row for an info hash
// (case-insensitive), or ErrNotFound.
func (s *Store) GetDownloadByHash(ctx context.Context, infoHash string) (*DownloadHistory, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+historyColumns+` FROM download_history WHERE info_hash = ?`,
		strings.ToLower(infoHash))
	h, err := scanHistory(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get download by hash: %w", err)
	}
	return h, nil
}

// GetDownloadsByHashes batch-fetches history rows by hash, keyed by the
// lowercase hash.
func (s *Store) GetDownloadsByHashes(ctx context.Context, hashes []string) (map[string]*DownloadHistory, error) {
	out := make(map[string]*DownloadHistory, len(hashes))
	if len(hashes) == 0 {
		return out, nil
	}
	lowered := make([]string, len(hashes))
	for i, h := range hashes {
		lowered[i] = strings.ToLower(h)
	}
	query, args := inClause(`SELECT `+historyColumns+` FROM download_history WHERE info_hash IN `, lowered)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get downloads by hashes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		if h.InfoHash != nil {
			out[*h.InfoHash] = h
		}
	}
	return out, rows.Err()
}

// GetDownloadCountsForAnimeIDs returns download counts per title in one
// query, avoiding an N+1 fan-out.
func (s *Store) GetDownloadCountsForAnimeIDs(ctx context.Context, ids []int64) (map[int64]int, error) {
	out := make(map[int64]int, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	query, args := inClause(
		`SELECT anime_id, COUNT(1) FROM download_history WHERE anime_id IN `, ids)
	rows, err := s.db.QueryContext(ctx, query+` GROUP BY anime_id`, args...)
	if err != nil {
		return nil, fmt.Errorf("get download counts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		out[id] = n
	}
	return out, rows.Err()
}
