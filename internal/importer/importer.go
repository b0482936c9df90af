// Package importer moves finished downloads into the canonically-named
// library tree and records ownership in the catalogue.
package importer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/kumoarr/kumoarr/internal/config"
	"github.com/kumoarr/kumoarr/internal/events"
	"github.com/kumoarr/kumoarr/internal/mediainfo"
	"github.com/kumoarr/kumoarr/internal/parser"
	"github.com/kumoarr/kumoarr/internal/store"
)

// Importer executes the library-import step for completed downloads.
type Importer struct {
	store  *store.Store
	prober mediainfo.Prober
	cfg    *config.Manager
	bus    *events.Bus
	log    zerolog.Logger
}

// New creates an importer.
func New(st *store.Store, prober mediainfo.Prober, cfg *config.Manager, bus *events.Bus, log zerolog.Logger) *Importer {
	return &Importer{
		store:  st,
		prober: prober,
		cfg:    cfg,
		bus:    bus,
		log:    log.With().Str("component", "importer").Logger(),
	}
}

// Request is one file to import, with the batch-fetched context the monitor
// already holds.
type Request struct {
	Anime         *store.Anime
	SourceFile    string
	Parsed        parser.Parsed
	History       *store.DownloadHistory
	EpisodeTitles map[int]string
	SeadexGroups  []string
}

func (r *Request) episode() int {
	if r.Parsed.HasEpisode {
		return r.Parsed.EpisodeTruncated()
	}
	return r.History.EpisodeTruncated()
}

func (r *Request) season() int {
	if r.Parsed.Season > 0 {
		return r.Parsed.Season
	}
	return 1
}

func (r *Request) episodeTitle() string {
	ep := r.episode()
	if title, ok := r.EpisodeTitles[ep]; ok && title != "" {
		return title
	}
	return fmt.Sprintf("Episode %d", ep)
}

// ImportFile places one source file into the library and commits the episode
// row. The destination path is deterministic, so re-running the import for
// the same inputs is a no-op at the filesystem level.
func (i *Importer) ImportFile(ctx context.Context, req *Request) error {
	episode := req.episode()
	season := req.season()

	i.bus.Publish(events.New(events.ImportStarted,
		fmt.Sprintf("importing %s", filepath.Base(req.SourceFile)),
		map[string]any{"anime_id": req.Anime.ID, "episode": episode}))

	mi, err := i.prober.Probe(ctx, req.SourceFile)
	if err != nil {
		i.log.Debug().Err(err).Str("file", req.SourceFile).Msg("probe failed, importing without media info")
		mi = nil
	}

	dst := i.DestinationPath(req, mi)
	if err := ensureDir(dst); err != nil {
		return fmt.Errorf("create destination dir: %w", err)
	}

	op := ParseFileOperation(i.cfg.Get().Library.FileOperation)
	if err := op.Execute(req.SourceFile, dst); err != nil {
		return fmt.Errorf("import %s: %w", req.SourceFile, err)
	}

	var size *int64
	if info, err := os.Stat(dst); err == nil {
		n := info.Size()
		size = &n
	}

	q := req.Parsed.Quality()
	isSeadex := isSeadexTitle(req.Parsed.Group, req.History.Filename, req.SeadexGroups)

	err = i.store.MarkEpisodeDownloaded(ctx, req.Anime.ID, episode, season, q.ID, isSeadex, dst, size, mi)
	if err != nil {
		// The file landed but the catalogue write failed. Roll the move back
		// so the next tick can retry from scratch.
		if op == OpMove {
			if rbErr := os.Rename(dst, req.SourceFile); rbErr != nil {
				i.log.Error().Err(rbErr).Str("dst", dst).
					Msg("CRITICAL: import rollback failed, library and catalogue disagree")
				i.bus.Publish(events.New(events.Error,
					fmt.Sprintf("import rollback failed for %s", dst), nil))
				return err
			}
		}
		return fmt.Errorf("commit import: %w", err)
	}

	i.bus.Publish(events.New(events.ImportFinished,
		fmt.Sprintf("imported %s - episode %d", req.Anime.TitleRomaji, episode),
		map[string]any{"anime_id": req.Anime.ID, "episode": episode, "path": dst}))
	return nil
}

// DestinationPath renders the naming template for a request. Recovery uses
// it to re-derive where a vanished source would have landed.
func (i *Importer) DestinationPath(req *Request, mi *mediainfo.MediaInfo) string {
	cfg := i.cfg.Get()
	tctx := TokenContext{
		SeriesTitle:      req.Anime.TitleRomaji,
		Season:           req.season(),
		Episode:          req.episode(),
		EpisodeTitle:     req.episodeTitle(),
		Quality:          req.Parsed.Quality().Name,
		Group:            req.Parsed.Group,
		OriginalFilename: strings.TrimSuffix(filepath.Base(req.History.Filename), filepath.Ext(req.History.Filename)),
	}
	if req.Parsed.Resolution > 0 {
		tctx.Resolution = fmt.Sprintf("%dp", req.Parsed.Resolution)
	}
	if mi != nil {
		if mi.Resolution != "" {
			tctx.Resolution = mi.Resolution
		}
		tctx.Codec = mi.Codec
		tctx.Audio = strings.Join(mi.AudioCodecs, "+")
		if mi.Duration > 0 {
			tctx.Duration = formatDuration(mi.Duration)
		}
	}

	rel := Render(cfg.Library.NamingTemplate, tctx)
	ext := filepath.Ext(req.SourceFile)
	if ext == "" {
		ext = filepath.Ext(req.History.Filename)
	}
	return filepath.Join(cfg.Library.Root, rel+ext)
}

func formatDuration(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second)).Round(time.Minute)
	return fmt.Sprintf("%dm", int(d.Minutes()))
}

// isSeadexTitle recomputes the seadex flag for the imported file from the
// cached group list; the group may match independently of the flag the
// candidate carried at download time.
func isSeadexTitle(group, filename string, seadexGroups []string) bool {
	for _, g := range seadexGroups {
		if g == "" {
			continue
		}
		if strings.EqualFold(group, g) {
			return true
		}
		if strings.Contains(strings.ToLower(filename), strings.ToLower(g)) {
			return true
		}
	}
	return false
}
