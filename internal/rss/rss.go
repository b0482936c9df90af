// Package rss polls per-title feed subscriptions and queues every new item.
// Feeds bypass the decision engine: subscribing to a feed with its group and
// resolution baked into the URL is the user's expressed intent.
package rss

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/kumoarr/kumoarr/internal/config"
	"github.com/kumoarr/kumoarr/internal/downloader"
	"github.com/kumoarr/kumoarr/internal/events"
	"github.com/kumoarr/kumoarr/internal/indexer"
	"github.com/kumoarr/kumoarr/internal/parser"
	"github.com/kumoarr/kumoarr/internal/store"
)

// SyncStatus holds the result of the last feed sweep.
type SyncStatus struct {
	Running   bool      `json:"running"`
	LastRun   time.Time `json:"lastRun,omitempty"`
	Feeds     int       `json:"feeds"`
	NewItems  int       `json:"newItems"`
	Grabbed   int       `json:"grabbed"`
	ElapsedMs int       `json:"elapsed"`
	Error     string    `json:"error,omitempty"`
}

// Service polls the enabled feeds.
type Service struct {
	store    *store.Store
	torrents indexer.TorrentIndexer
	engine   downloader.Engine
	cfg      *config.Manager
	bus      *events.Bus
	log      zerolog.Logger

	running atomic.Bool
	mu      sync.RWMutex
	status  SyncStatus
}

// New creates the RSS service.
func New(st *store.Store, torrents indexer.TorrentIndexer, engine downloader.Engine, cfg *config.Manager, bus *events.Bus, log zerolog.Logger) *Service {
	return &Service{
		store:    st,
		torrents: torrents,
		engine:   engine,
		cfg:      cfg,
		bus:      bus,
		log:      log.With().Str("component", "rss").Logger(),
	}
}

// IsRunning reports whether a sweep is in progress.
func (s *Service) IsRunning() bool {
	return s.running.Load()
}

// LastStatus returns the last sweep's result.
func (s *Service) LastStatus() SyncStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// CheckFeeds sweeps every enabled feed once. Overlapping invocations are
// rejected; the caller's next tick retries.
func (s *Service) CheckFeeds(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		s.log.Debug().Msg("feed sweep already running, skipping")
		return nil
	}
	defer s.running.Store(false)

	started := time.Now()
	s.bus.Publish(events.New(events.RssCheckStarted, "feed sweep started", nil))

	feeds, err := s.store.ListEnabledFeeds(ctx)
	if err != nil {
		s.finish(started, 0, 0, 0, err)
		return err
	}

	delay := s.cfg.RssDelay()
	newItems, grabbed := 0, 0
	for i, feed := range feeds {
		if ctx.Err() != nil {
			break
		}
		n, g, err := s.checkFeed(ctx, feed)
		if err != nil {
			s.log.Warn().Err(err).Int64("feed_id", feed.ID).Str("url", feed.URL).
				Msg("feed check failed")
		}
		newItems += n
		grabbed += g

		s.bus.Publish(events.New(events.RssCheckProgress,
			fmt.Sprintf("checked feed %d/%d", i+1, len(feeds)),
			map[string]any{"feed_id": feed.ID, "new_items": n}))

		if i < len(feeds)-1 && delay > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(delay):
			}
		}
	}

	s.finish(started, len(feeds), newItems, grabbed, nil)
	s.bus.Publish(events.New(events.RssCheckFinished,
		fmt.Sprintf("feed sweep finished: %d new, %d grabbed", newItems, grabbed),
		map[string]any{"feeds": len(feeds), "new_items": newItems, "grabbed": grabbed}))
	return nil
}

// checkFeed polls one feed, queues its new items, and advances the cursor.
func (s *Service) checkFeed(ctx context.Context, feed *store.Feed) (newItems, grabbed int, err error) {
	lastHash := ""
	if feed.LastItemHash != nil {
		lastHash = *feed.LastItemHash
	}

	items, nextHash, err := s.torrents.CheckFeed(ctx, feed.URL, lastHash)
	if err != nil {
		return 0, 0, err
	}

	for _, item := range items {
		queued, err := s.queueItem(ctx, feed, item)
		if err != nil {
			s.log.Warn().Err(err).Str("title", item.Title).Msg("failed to queue feed item")
			continue
		}
		if queued {
			grabbed++
		}
	}

	// Cursor and timestamp advance in one write even when nothing was new,
	// so last_checked stays honest.
	if err := s.store.UpdateFeedCursor(ctx, feed.ID, nextHash); err != nil {
		return len(items), grabbed, err
	}
	return len(items), grabbed, nil
}

func (s *Service) queueItem(ctx context.Context, feed *store.Feed, item indexer.TorrentItem) (bool, error) {
	downloaded, err := s.store.IsDownloaded(ctx, item.Title)
	if err != nil {
		return false, err
	}
	if downloaded {
		return false, nil
	}

	anime, err := s.store.GetAnime(ctx, feed.AnimeID)
	if err != nil {
		return false, err
	}

	category := downloader.SanitizeCategory(anime.TitleRomaji)
	if err := s.engine.CreateCategory(ctx, category); err != nil {
		s.log.Debug().Err(err).Str("category", category).Msg("create category failed")
	}

	magnet := item.TorrentURL
	if item.InfoHash != "" {
		magnet = indexer.Magnet(item.InfoHash, item.Title)
	}
	if err := s.engine.AddMagnet(ctx, magnet, downloader.AddOptions{
		Category: category,
		SavePath: s.cfg.Get().Downloads.SavePath,
	}); err != nil {
		return false, err
	}

	parsed := parser.Parse(item.Title)
	var group, hash *string
	if parsed.Group != "" {
		group = &parsed.Group
	}
	if item.InfoHash != "" {
		hash = &item.InfoHash
	}
	if err := s.store.RecordDownload(ctx, feed.AnimeID, item.Title, parsed.Episode, group, hash); err != nil {
		return false, err
	}

	s.bus.Publish(events.New(events.DownloadStarted,
		fmt.Sprintf("queued %s from feed", item.Title),
		map[string]any{"anime_id": feed.AnimeID, "feed_id": feed.ID, "hash": item.InfoHash}))
	return true, nil
}

func (s *Service) finish(started time.Time, feeds, newItems, grabbed int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = SyncStatus{
		LastRun:   started,
		Feeds:     feeds,
		NewItems:  newItems,
		Grabbed:   grabbed,
		ElapsedMs: int(time.Since(started).Milliseconds()),
	}
	if err != nil {
		s.status.Error = err.Error()
	}
}
