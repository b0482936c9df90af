// Package monitor reconciles the BT engine's state with the download
// history: it cancels stalled torrents, imports completed ones, and emits
// progress events for everything in flight.
package monitor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/kumoarr/kumoarr/internal/config"
	"github.com/kumoarr/kumoarr/internal/downloader"
	"github.com/kumoarr/kumoarr/internal/events"
	"github.com/kumoarr/kumoarr/internal/importer"
	"github.com/kumoarr/kumoarr/internal/parser"
	"github.com/kumoarr/kumoarr/internal/store"
)

const (
	importInterval   = 60 * time.Second
	progressInterval = 2 * time.Second
)

// Monitor watches the BT engine and drives the import pipeline.
type Monitor struct {
	store    *store.Store
	engine   downloader.Engine
	importer *importer.Importer
	cfg      *config.Manager
	bus      *events.Bus
	log      zerolog.Logger
}

// New creates a monitor.
func New(st *store.Store, engine downloader.Engine, imp *importer.Importer, cfg *config.Manager, bus *events.Bus, log zerolog.Logger) *Monitor {
	return &Monitor{
		store:    st,
		engine:   engine,
		importer: imp,
		cfg:      cfg,
		bus:      bus,
		log:      log.With().Str("component", "monitor").Logger(),
	}
}

// Run starts the import and progress loops and blocks until ctx is
// cancelled.
func (m *Monitor) Run(ctx context.Context) {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		m.loop(ctx, importInterval, func() {
			if err := m.CheckCompleted(ctx); err != nil {
				m.log.Error().Err(err).Msg("import tick failed")
			}
		})
		return nil
	})
	g.Go(func() error {
		m.loop(ctx, progressInterval, func() {
			m.emitProgress(ctx)
		})
		return nil
	})
	g.Wait()
}

func (m *Monitor) loop(ctx context.Context, interval time.Duration, tick func()) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			tick()
		}
	}
}

// CheckCompleted runs one import tick: stalled cleanup, then import of every
// completed torrent that has an unimported history row.
func (m *Monitor) CheckCompleted(ctx context.Context) error {
	torrents, err := m.engine.List(ctx, "")
	if err != nil {
		return fmt.Errorf("list torrents: %w", err)
	}

	now := time.Now()
	timeout := m.cfg.StalledTimeout()
	var completed []downloader.Torrent
	for _, t := range torrents {
		if t.Stalled(now, timeout) {
			m.cleanupStalled(ctx, t)
			continue
		}
		if t.Complete() {
			completed = append(completed, t)
		}
	}
	if len(completed) == 0 {
		return nil
	}

	batch, err := m.hydrate(ctx, completed)
	if err != nil {
		return err
	}

	for _, t := range completed {
		if err := m.importTorrent(ctx, t, batch); err != nil {
			m.log.Warn().Err(err).Str("hash", t.Hash).Str("name", t.Name).Msg("import failed")
		}
	}
	return nil
}

func (m *Monitor) cleanupStalled(ctx context.Context, t downloader.Torrent) {
	m.log.Warn().Str("hash", t.Hash).Str("name", t.Name).Str("state", t.State).
		Msg("cancelling stalled torrent")
	if err := m.engine.DeleteTorrent(ctx, t.Hash, true); err != nil {
		m.log.Error().Err(err).Str("hash", t.Hash).Msg("failed to delete stalled torrent")
		return
	}
	if err := m.store.AddToBlocklist(ctx, t.Hash, "stalled"); err != nil {
		m.log.Error().Err(err).Str("hash", t.Hash).Msg("failed to blocklist stalled torrent")
	}
	m.bus.Publish(events.New(events.Error,
		fmt.Sprintf("cancelled stalled torrent %s", t.Name),
		map[string]any{"hash": t.Hash}))
}

// batchContext is the pre-fetched state for one import tick.
type batchContext struct {
	histories     map[string]*store.DownloadHistory
	anime         map[int64]*store.Anime
	statuses      map[store.EpisodeKey]*store.EpisodeStatus
	episodeTitles map[int64]map[int]string
	seadexGroups  map[int64][]string
}

// hydrate batch-fetches everything the completed set needs so the per-torrent
// loop issues no further lookups.
func (m *Monitor) hydrate(ctx context.Context, completed []downloader.Torrent) (*batchContext, error) {
	hashes := make([]string, 0, len(completed))
	for _, t := range completed {
		hashes = append(hashes, t.Hash)
	}
	histories, err := m.store.GetDownloadsByHashes(ctx, hashes)
	if err != nil {
		return nil, err
	}

	animeIDs := make([]int64, 0, len(histories))
	seen := make(map[int64]bool)
	var keys []store.EpisodeKey
	for _, h := range histories {
		if !seen[h.AnimeID] {
			seen[h.AnimeID] = true
			animeIDs = append(animeIDs, h.AnimeID)
		}
		if !h.IsBatch() {
			keys = append(keys, store.EpisodeKey{AnimeID: h.AnimeID, Episode: h.EpisodeTruncated()})
		}
	}

	batch := &batchContext{
		histories:     histories,
		episodeTitles: make(map[int64]map[int]string, len(animeIDs)),
		seadexGroups:  make(map[int64][]string, len(animeIDs)),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		batch.anime, err = m.store.GetAnimeBatch(gctx, animeIDs)
		return err
	})
	g.Go(func() error {
		var err error
		batch.statuses, err = m.store.GetEpisodeStatusesBatch(gctx, keys)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, id := range animeIDs {
		titles := make(map[int]string)
		if metadata, err := m.store.GetEpisodeMetadata(ctx, id); err == nil {
			for _, md := range metadata {
				if md.Title != nil {
					titles[md.Episode] = *md.Title
				}
			}
		}
		batch.episodeTitles[id] = titles

		if entry, err := m.store.GetSeadexEntry(ctx, id); err == nil {
			batch.seadexGroups[id] = entry.Groups
		}
	}
	return batch, nil
}

func (m *Monitor) importTorrent(ctx context.Context, t downloader.Torrent, batch *batchContext) error {
	history, ok := batch.histories[t.Hash]
	if !ok {
		m.log.Debug().Str("hash", t.Hash).Str("name", t.Name).Msg("no history row, skipping")
		return nil
	}
	if history.Imported {
		m.log.Debug().Str("hash", t.Hash).Msg("already imported, skipping")
		return nil
	}
	anime, ok := batch.anime[history.AnimeID]
	if !ok {
		m.log.Debug().Int64("anime_id", history.AnimeID).Msg("title no longer tracked, skipping")
		return nil
	}

	source := m.mapPath(t.ContentPath)
	info, statErr := os.Stat(source)
	if statErr != nil {
		recovered, err := m.recover(ctx, anime, history, batch)
		if err != nil {
			return err
		}
		if recovered {
			return m.store.SetImported(ctx, history.ID, true)
		}
		m.log.Warn().Str("source", source).Str("hash", t.Hash).
			Msg("source missing and recovery failed, will retry")
		return nil
	}

	imported := 0
	if info.IsDir() {
		n, err := m.importDirectory(ctx, anime, source, history, batch)
		if err != nil {
			return err
		}
		imported = n
	} else {
		if err := m.importOne(ctx, anime, source, history, batch); err != nil {
			return err
		}
		imported = 1
	}

	if imported > 0 {
		return m.store.SetImported(ctx, history.ID, true)
	}
	return nil
}

func (m *Monitor) importOne(ctx context.Context, anime *store.Anime, source string, history *store.DownloadHistory, batch *batchContext) error {
	return m.importer.ImportFile(ctx, &importer.Request{
		Anime:         anime,
		SourceFile:    source,
		Parsed:        parser.Parse(filepath.Base(source)),
		History:       history,
		EpisodeTitles: batch.episodeTitles[anime.ID],
		SeadexGroups:  batch.seadexGroups[anime.ID],
	})
}

// importDirectory walks a payload directory and imports every video file.
// Probing and file operations fan out up to the configured concurrency; each
// file maps to a distinct episode so the imports are independent.
func (m *Monitor) importDirectory(ctx context.Context, anime *store.Anime, dir string, history *store.DownloadHistory, batch *batchContext) (int, error) {
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
		return 0, fmt.Errorf("walk %s: %w", dir, err)
	}
	sort.Strings(files)

	limit := m.cfg.Get().Library.ProbeConcurrency
	if limit < 1 {
		limit = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	var mu sync.Mutex
	imported := 0
	for _, f := range files {
		g.Go(func() error {
			if err := m.importOne(gctx, anime, f, history, batch); err != nil {
				m.log.Warn().Err(err).Str("file", f).Msg("failed to import file from batch")
				return nil
			}
			mu.Lock()
			imported++
			mu.Unlock()
			return nil
		})
	}
	g.Wait()
	return imported, nil
}

// mapPath applies the configured remote-to-local prefix mappings; the first
// matching prefix wins and is replaced once.
func (m *Monitor) mapPath(path string) string {
	for _, mapping := range m.cfg.Get().Library.PathMappings {
		if mapping.Remote != "" && strings.HasPrefix(path, mapping.Remote) {
			return strings.Replace(path, mapping.Remote, mapping.Local, 1)
		}
	}
	return path
}

func (m *Monitor) emitProgress(ctx context.Context) {
	torrents, err := m.engine.List(ctx, "")
	if err != nil {
		return
	}
	for _, t := range torrents {
		if t.Complete() {
			continue
		}
		m.bus.Publish(events.New(events.DownloadProgress, t.Name, map[string]any{
			"hash":     t.Hash,
			"progress": t.Progress,
			"dlspeed":  t.DlSpeed,
			"eta":      t.ETA,
			"state":    t.State,
		}))
	}
}
