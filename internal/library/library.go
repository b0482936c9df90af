// Package library reconciles the on-disk library tree with the catalogue:
// files that vanished are cleared, files that appeared are adopted.
package library

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"

	"github.com/kumoarr/kumoarr/internal/config"
	"github.com/kumoarr/kumoarr/internal/events"
	"github.com/kumoarr/kumoarr/internal/parser"
	"github.com/kumoarr/kumoarr/internal/store"
)

// Scanner walks title directories and reconciles episode state.
type Scanner struct {
	store *store.Store
	cfg   *config.Manager
	bus   *events.Bus
	log   zerolog.Logger
}

// NewScanner creates a scanner.
func NewScanner(st *store.Store, cfg *config.Manager, bus *events.Bus, log zerolog.Logger) *Scanner {
	return &Scanner{
		store: st,
		cfg:   cfg,
		bus:   bus,
		log:   log.With().Str("component", "library").Logger(),
	}
}

// ScanAll reconciles every monitored title.
func (s *Scanner) ScanAll(ctx context.Context) error {
	titles, err := s.store.ListMonitored(ctx)
	if err != nil {
		return err
	}
	s.bus.Publish(events.New(events.ScanStarted,
		fmt.Sprintf("library scan started for %d titles", len(titles)), nil))

	for i, anime := range titles {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.ScanTitle(ctx, anime); err != nil {
			s.log.Warn().Err(err).Int64("anime_id", anime.ID).Msg("title scan failed")
		}
		s.bus.Publish(events.New(events.LibraryScanProgress,
			fmt.Sprintf("scanned %d/%d", i+1, len(titles)),
			map[string]any{"anime_id": anime.ID}))
	}

	s.bus.Publish(events.New(events.ScanFinished, "library scan finished", nil))
	return nil
}

// ScanTitle reconciles one title's directory with its episode rows.
func (s *Scanner) ScanTitle(ctx context.Context, anime *store.Anime) error {
	dir := s.titlePath(anime)

	statuses, err := s.store.GetEpisodeStatuses(ctx, anime.ID)
	if err != nil {
		return err
	}

	// Clear rows whose file vanished from disk.
	for _, es := range statuses {
		if es.FilePath == nil {
			continue
		}
		if _, err := os.Stat(*es.FilePath); os.IsNotExist(err) {
			s.log.Info().Str("path", *es.FilePath).Int("episode", es.Episode).
				Msg("file vanished, clearing episode")
			if err := s.store.ClearEpisodeDownload(ctx, anime.ID, es.Episode); err != nil {
				return err
			}
		}
	}

	// Adopt files on disk the catalogue does not know about.
	known := make(map[string]bool, len(statuses))
	byEpisode := make(map[int]*store.EpisodeStatus, len(statuses))
	for _, es := range statuses {
		if es.FilePath != nil {
			known[*es.FilePath] = true
		}
		byEpisode[es.Episode] = es
	}

	files, err := videoFiles(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, f := range files {
		if known[f] {
			continue
		}
		parsed := parser.Parse(filepath.Base(f))
		if !parsed.HasEpisode {
			continue
		}
		ep := parsed.EpisodeTruncated()
		if existing, ok := byEpisode[ep]; ok && existing.FilePath != nil {
			continue
		}
		if err := s.adopt(ctx, anime, f, parsed); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scanner) adopt(ctx context.Context, anime *store.Anime, path string, parsed parser.Parsed) error {
	var size *int64
	if info, err := os.Stat(path); err == nil {
		n := info.Size()
		size = &n
	}
	q := parsed.Quality()
	season := parsed.Season
	if season == 0 {
		season = 1
	}
	s.log.Info().Str("path", path).Int("episode", parsed.EpisodeTruncated()).
		Msg("adopting untracked library file")
	return s.store.MarkEpisodeDownloaded(ctx, anime.ID, parsed.EpisodeTruncated(),
		season, q.ID, false, path, size, nil)
}

func (s *Scanner) titlePath(anime *store.Anime) string {
	if anime.Path != nil && *anime.Path != "" {
		return *anime.Path
	}
	return filepath.Join(s.cfg.Get().Library.Root, anime.TitleRomaji)
}

func videoFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && parser.IsVideoFile(d.Name()) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}
