package monitor

import (
	"context"
	"os"
	"path/filepath"

	"github.com/kumoarr/kumoarr/internal/importer"
	"github.com/kumoarr/kumoarr/internal/parser"
	"github.com/kumoarr/kumoarr/internal/store"
)

// recover decides whether a torrent whose source path vanished was in fact
// already imported. It reports true when the history row can be marked
// imported without touching the filesystem.
func (m *Monitor) recover(ctx context.Context, anime *store.Anime, history *store.DownloadHistory, batch *batchContext) (bool, error) {
	parsed := parser.Parse(history.Filename)
	req := &importer.Request{
		Anime:         anime,
		SourceFile:    history.Filename,
		Parsed:        parsed,
		History:       history,
		EpisodeTitles: batch.episodeTitles[anime.ID],
		SeadexGroups:  batch.seadexGroups[anime.ID],
	}
	dst := m.importer.DestinationPath(req, nil)

	// Expected destination already present.
	if _, err := os.Stat(dst); err == nil {
		m.log.Info().Str("dst", dst).Msg("recovery: destination exists, treating as imported")
		return true, nil
	}

	// A sibling parsing to the same episode means the file was renamed
	// out-of-band after import.
	target := history.EpisodeTruncated()
	if entries, err := os.ReadDir(filepath.Dir(dst)); err == nil {
		for _, e := range entries {
			if e.IsDir() || !parser.IsVideoFile(e.Name()) {
				continue
			}
			sibling := parser.Parse(e.Name())
			if !sibling.HasEpisode || sibling.EpisodeTruncated() != target {
				continue
			}
			if parsed.Season > 0 && sibling.Season > 0 && sibling.Season != parsed.Season {
				continue
			}
			m.log.Info().Str("sibling", e.Name()).Int("episode", target).
				Msg("recovery: matching sibling found, treating as imported")
			return true, nil
		}
	}

	// The catalogue already records a download for this episode.
	key := store.EpisodeKey{AnimeID: history.AnimeID, Episode: target}
	if es, ok := batch.statuses[key]; ok && es.DownloadedAt != nil {
		return true, nil
	}
	es, err := m.store.GetEpisodeStatus(ctx, history.AnimeID, target)
	if err == nil && es.DownloadedAt != nil {
		return true, nil
	}
	if err != nil && err != store.ErrNotFound {
		return false, err
	}
	return false, nil
}
