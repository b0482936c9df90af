// Package autodl is the per-title acquisition orchestrator: it queues seadex
// batches for finished titles and fills missing episodes from search results.
package autodl

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/kumoarr/kumoarr/internal/config"
	"github.com/kumoarr/kumoarr/internal/decision"
	"github.com/kumoarr/kumoarr/internal/downloader"
	"github.com/kumoarr/kumoarr/internal/events"
	"github.com/kumoarr/kumoarr/internal/importer"
	"github.com/kumoarr/kumoarr/internal/indexer"
	"github.com/kumoarr/kumoarr/internal/search"
	"github.com/kumoarr/kumoarr/internal/store"
)

const (
	// At most this many candidates are considered per title per run.
	candidateLimit = 50

	// A finished title tries at most this many seadex batch releases.
	batchReleaseLimit = 3

	// Cached seadex data older than this is refetched before a batch attempt.
	seadexMaxAge = 24 * time.Hour
)

// Service drives downloads for monitored titles.
type Service struct {
	store    *store.Store
	search   *search.Service
	engine   downloader.Engine
	seadex   indexer.SeadexClient
	recycler *importer.Recycler
	cfg      *config.Manager
	bus      *events.Bus
	log      zerolog.Logger
}

// New creates the auto-downloader.
func New(st *store.Store, srch *search.Service, engine downloader.Engine, seadex indexer.SeadexClient, recycler *importer.Recycler, cfg *config.Manager, bus *events.Bus, log zerolog.Logger) *Service {
	return &Service{
		store:    st,
		search:   srch,
		engine:   engine,
		seadex:   seadex,
		recycler: recycler,
		cfg:      cfg,
		bus:      bus,
		log:      log.With().Str("component", "autodl").Logger(),
	}
}

// CheckAll runs a download check for every monitored title, pausing the
// configured delay between titles.
func (s *Service) CheckAll(ctx context.Context) error {
	titles, err := s.store.ListMonitored(ctx)
	if err != nil {
		return err
	}
	s.bus.Publish(events.New(events.SearchMissingStarted,
		fmt.Sprintf("checking %d titles", len(titles)), nil))

	delay := s.cfg.CheckDelay()
	for i, anime := range titles {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.CheckTitle(ctx, anime); err != nil {
			s.log.Warn().Err(err).Int64("anime_id", anime.ID).
				Str("title", anime.TitleRomaji).Msg("title check failed")
		}
		if i < len(titles)-1 && delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	s.bus.Publish(events.New(events.SearchMissingFinished, "release check finished", nil))
	return nil
}

// CheckTitle queues downloads for one title: a seadex batch for finished
// titles, otherwise the best candidate per missing episode plus quality
// upgrades for monitored episodes already on disk.
func (s *Service) CheckTitle(ctx context.Context, anime *store.Anime) error {
	if anime.Status == store.StatusFinished {
		queued, err := s.tryBatch(ctx, anime)
		if err != nil {
			s.log.Warn().Err(err).Int64("anime_id", anime.ID).Msg("batch attempt failed")
		}
		if queued {
			return nil
		}
	}

	total := 0
	if anime.EpisodeCount != nil {
		total = *anime.EpisodeCount
	}
	missing, err := s.store.GetMissingEpisodes(ctx, anime.ID, total)
	if err != nil {
		return err
	}
	missingSet := make(map[int]bool, len(missing))
	for _, ep := range missing {
		missingSet[ep] = true
	}

	candidates, err := s.search.Search(ctx, anime, nil)
	if err != nil {
		return err
	}

	covered := make(map[int]bool)
	processed := 0
	for _, c := range candidates {
		if processed >= candidateLimit {
			break
		}
		processed++

		if !c.Action.ShouldDownload() {
			s.log.Debug().Str("title", c.Item.Title).
				Str("reason", c.Action.RejectReason).Msg("candidate rejected")
			continue
		}
		ep := c.Episode()
		if covered[ep] {
			continue
		}
		if !missingSet[ep] && !s.upgradeable(ctx, anime.ID, ep, c.Action) {
			continue
		}
		downloaded, err := s.store.IsDownloaded(ctx, c.Item.Title)
		if err != nil {
			return err
		}
		if downloaded {
			continue
		}

		if c.Action.Type == decision.Upgrade {
			s.recycleCurrent(ctx, anime.ID, ep)
		}
		if err := s.queue(ctx, anime, c); err != nil {
			s.log.Warn().Err(err).Str("title", c.Item.Title).Msg("failed to queue candidate")
			continue
		}
		covered[ep] = true
	}
	return nil
}

// tryBatch queues a whole-title seadex release for a finished title. It
// reports whether a batch was queued.
func (s *Service) tryBatch(ctx context.Context, anime *store.Anime) (bool, error) {
	entry, err := s.freshSeadex(ctx, anime.ID)
	if err != nil {
		return false, err
	}
	if entry == nil || len(entry.Releases) == 0 {
		return false, nil
	}

	tried := 0
	for _, rel := range entry.Releases {
		if tried >= batchReleaseLimit {
			break
		}
		tried++

		if !indexer.ValidInfoHash(rel.InfoHash) {
			continue
		}
		if blocked, err := s.store.IsBlocked(ctx, rel.InfoHash); err != nil || blocked {
			if err != nil {
				return false, err
			}
			continue
		}
		if _, err := s.store.GetDownloadByHash(ctx, rel.InfoHash); err == nil {
			continue
		} else if err != store.ErrNotFound {
			return false, err
		}

		category := downloader.SanitizeCategory(anime.TitleRomaji)
		if err := s.engine.CreateCategory(ctx, category); err != nil {
			s.log.Debug().Err(err).Str("category", category).Msg("create category failed")
		}
		magnet := indexer.Magnet(rel.InfoHash, anime.TitleRomaji)
		if err := s.engine.AddMagnet(ctx, magnet, downloader.AddOptions{
			Category: category,
			SavePath: s.cfg.Get().Downloads.SavePath,
		}); err != nil {
			s.log.Warn().Err(err).Str("hash", rel.InfoHash).Msg("failed to queue batch")
			continue
		}

		filename := fmt.Sprintf("%s [batch %s]", anime.TitleRomaji, rel.InfoHash)
		group := rel.Group
		hash := rel.InfoHash
		if err := s.store.RecordDownload(ctx, anime.ID, filename, store.BatchEpisodeNumber, &group, &hash); err != nil {
			return false, err
		}

		s.bus.Publish(events.New(events.DownloadStarted,
			fmt.Sprintf("queued batch for %s [%s]", anime.TitleRomaji, rel.Group),
			map[string]any{"anime_id": anime.ID, "hash": rel.InfoHash, "batch": true}))
		return true, nil
	}
	return false, nil
}

// freshSeadex returns cached curation data, refetching when stale or absent.
func (s *Service) freshSeadex(ctx context.Context, animeID int64) (*store.SeadexEntry, error) {
	entry, err := s.store.GetSeadexEntry(ctx, animeID)
	if err == nil && entry.Fresh(seadexMaxAge) {
		return entry, nil
	}
	if err != nil && err != store.ErrNotFound {
		return nil, err
	}

	fetched, fetchErr := s.seadex.BestForAnime(ctx, animeID)
	if fetchErr != nil {
		// Fall back to stale data when the recommender is unreachable.
		if entry != nil {
			return entry, nil
		}
		return nil, fetchErr
	}
	if err := s.store.UpsertSeadexEntry(ctx, fetched); err != nil {
		return nil, err
	}
	return fetched, nil
}

func (s *Service) queue(ctx context.Context, anime *store.Anime, c search.Candidate) error {
	category := downloader.SanitizeCategory(anime.TitleRomaji)
	if err := s.engine.CreateCategory(ctx, category); err != nil {
		s.log.Debug().Err(err).Str("category", category).Msg("create category failed")
	}

	magnet := c.Item.TorrentURL
	if c.Item.InfoHash != "" {
		magnet = indexer.Magnet(c.Item.InfoHash, c.Item.Title)
	}
	if err := s.engine.AddMagnet(ctx, magnet, downloader.AddOptions{
		Category: category,
		SavePath: s.cfg.Get().Downloads.SavePath,
	}); err != nil {
		return err
	}

	var group, hash *string
	if c.Parsed.Group != "" {
		group = &c.Parsed.Group
	}
	if c.Item.InfoHash != "" {
		hash = &c.Item.InfoHash
	}
	if err := s.store.RecordDownload(ctx, anime.ID, c.Item.Title, c.Parsed.Episode, group, hash); err != nil {
		return err
	}

	s.bus.Publish(events.New(events.DownloadStarted,
		fmt.Sprintf("queued %s", c.Item.Title),
		map[string]any{
			"anime_id": anime.ID,
			"episode":  c.Episode(),
			"hash":     c.Item.InfoHash,
			"upgrade":  c.Action.Type == decision.Upgrade,
		}))
	return nil
}

// upgradeable reports whether an episode outside the missing set can still
// take the candidate: the decision is an upgrade and the episode holds a
// monitored file to displace.
func (s *Service) upgradeable(ctx context.Context, animeID int64, episode int, action decision.Action) bool {
	if action.Type != decision.Upgrade {
		return false
	}
	es, err := s.store.GetEpisodeStatus(ctx, animeID, episode)
	return err == nil && es.FilePath != nil && es.Monitored
}

// recycleCurrent moves the episode's current file into the recycle bin ahead
// of an upgrade download.
func (s *Service) recycleCurrent(ctx context.Context, animeID int64, episode int) {
	es, err := s.store.GetEpisodeStatus(ctx, animeID, episode)
	if err != nil || es.FilePath == nil {
		return
	}
	if err := s.recycler.Recycle(ctx, *es.FilePath, animeID, episode, es.QualityID, "upgrade"); err != nil {
		s.log.Warn().Err(err).Str("path", *es.FilePath).Msg("failed to recycle old file")
		return
	}
	if err := s.store.ClearEpisodeDownload(ctx, animeID, episode); err != nil {
		s.log.Warn().Err(err).Int64("anime_id", animeID).Int("episode", episode).
			Msg("failed to clear episode after recycle")
	}
}
