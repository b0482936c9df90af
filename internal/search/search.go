// Package search runs indexer queries and turns raw torrent items into
// per-episode download decisions.
package search

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hbollon/go-edlib"
	"github.com/rs/zerolog"

	"github.com/kumoarr/kumoarr/internal/config"
	"github.com/kumoarr/kumoarr/internal/decision"
	"github.com/kumoarr/kumoarr/internal/indexer"
	"github.com/kumoarr/kumoarr/internal/parser"
	"github.com/kumoarr/kumoarr/internal/quality"
	"github.com/kumoarr/kumoarr/internal/store"
)

// Candidate is one evaluated search result.
type Candidate struct {
	Item     indexer.TorrentItem
	Parsed   parser.Parsed
	IsSeadex bool
	Action   decision.Action
}

// Episode returns the candidate's integer episode key.
func (c *Candidate) Episode() int {
	return c.Parsed.EpisodeTruncated()
}

// titleContext is the per-title state gathered once per search.
type titleContext struct {
	profile      quality.Profile
	rules        []quality.Rule
	statuses     map[int]*store.EpisodeStatus
	seadexGroups []string
	season       int
}

// Service executes searches against the torrent indexer.
type Service struct {
	store    *store.Store
	torrents indexer.TorrentIndexer
	cfg      *config.Manager
	log      zerolog.Logger

	cacheMu sync.Mutex
	cache   map[string]cacheEntry
}

type cacheEntry struct {
	candidates []Candidate
	at         time.Time
}

// New creates a search service.
func New(st *store.Store, torrents indexer.TorrentIndexer, cfg *config.Manager, log zerolog.Logger) *Service {
	return &Service{
		store:    st,
		torrents: torrents,
		cfg:      cfg,
		log:      log.With().Str("component", "search").Logger(),
		cache:    make(map[string]cacheEntry),
	}
}

// Search finds and evaluates candidates for a title. A non-nil episode
// restricts results to that episode number.
func (s *Service) Search(ctx context.Context, anime *store.Anime, episode *float64) ([]Candidate, error) {
	cfg := s.cfg.Get()
	key := cacheKey(anime.TitleRomaji, episode)
	if cached, ok := s.cached(key, time.Duration(cfg.Indexer.CacheTTLSeconds)*time.Second); ok {
		return cached, nil
	}

	tctx, err := s.gatherContext(ctx, anime)
	if err != nil {
		return nil, err
	}

	filter := indexer.FilterNone
	if cfg.Indexer.SkipRemakes {
		filter = indexer.FilterNoRemakes
	}
	items, err := s.torrents.Search(ctx, anime.TitleRomaji, cfg.Indexer.Category, filter)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", anime.TitleRomaji, err)
	}

	kept := s.filterItems(anime, tctx, items, episode, cfg)
	sortBySeadexSeeders(kept)
	deduped, err := s.dedupePerEpisode(ctx, kept)
	if err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(deduped))
	for _, c := range deduped {
		c.Action = s.decide(tctx, c)
		candidates = append(candidates, c)
	}
	sortByDownloadable(candidates)

	s.storeCache(key, candidates)
	return candidates, nil
}

func (s *Service) gatherContext(ctx context.Context, anime *store.Anime) (*titleContext, error) {
	tctx := &titleContext{
		season: parser.InferSeason(anime.TitleRomaji),
	}

	if anime.QualityProfileID != nil {
		profile, err := s.store.GetQualityProfile(ctx, *anime.QualityProfileID)
		if err != nil && err != store.ErrNotFound {
			return nil, fmt.Errorf("load profile: %w", err)
		}
		if profile != nil {
			tctx.profile = *profile
		}
	}
	if tctx.profile.AllowedIDs == nil {
		tctx.profile = quality.DefaultProfile()
	}

	rules, err := s.store.GetReleaseRules(ctx, anime.ReleaseProfileIDs)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	tctx.rules = rules

	statuses, err := s.store.GetEpisodeStatuses(ctx, anime.ID)
	if err != nil {
		return nil, fmt.Errorf("load statuses: %w", err)
	}
	tctx.statuses = make(map[int]*store.EpisodeStatus, len(statuses))
	for _, es := range statuses {
		tctx.statuses[es.Episode] = es
	}

	seadex, err := s.store.GetSeadexEntry(ctx, anime.ID)
	if err != nil && err != store.ErrNotFound {
		return nil, fmt.Errorf("load seadex groups: %w", err)
	}
	if seadex != nil {
		tctx.seadexGroups = seadex.Groups
	}
	return tctx, nil
}

func (s *Service) filterItems(anime *store.Anime, tctx *titleContext, items []indexer.TorrentItem, episode *float64, cfg config.Config) []Candidate {
	var kept []Candidate
	for _, item := range items {
		if item.Seeders < cfg.Indexer.MinSeeders {
			continue
		}
		parsed := parser.Parse(item.Title)
		if !titleMatches(parsed.Title, anime, cfg.Indexer.MinTitleSimilarity) {
			continue
		}
		if tctx.season > 1 && parsed.Season > 0 && parsed.Season != tctx.season {
			continue
		}
		if episode != nil {
			if !parsed.HasEpisode || math.Abs(parsed.Episode-*episode) > 0.1 {
				continue
			}
		}
		kept = append(kept, Candidate{
			Item:     item,
			Parsed:   parsed,
			IsSeadex: isSeadexRelease(item.Title, tctx.seadexGroups),
		})
	}
	return kept
}

// dedupePerEpisode keeps the first (best-sorted) candidate per integer
// episode key, skipping blocklisted hashes.
func (s *Service) dedupePerEpisode(ctx context.Context, sorted []Candidate) ([]Candidate, error) {
	seen := make(map[int]bool)
	var out []Candidate
	for _, c := range sorted {
		ep := c.Episode()
		if seen[ep] {
			continue
		}
		if c.Item.InfoHash != "" {
			blocked, err := s.store.IsBlocked(ctx, c.Item.InfoHash)
			if err != nil {
				return nil, err
			}
			if blocked {
				continue
			}
		}
		seen[ep] = true
		out = append(out, c)
	}
	return out, nil
}

func (s *Service) decide(tctx *titleContext, c Candidate) decision.Action {
	var current *decision.CurrentFile
	if es, ok := tctx.statuses[c.Episode()]; ok && es.FilePath != nil {
		q := quality.Unknown
		if es.QualityID != nil {
			q = quality.ByID(*es.QualityID)
		}
		current = &decision.CurrentFile{Quality: q, IsSeadex: es.IsSeadex}
	}
	return decision.Decide(&tctx.profile, tctx.rules, current, c.Item.Title, c.Item.Size, c.IsSeadex)
}

// isSeadexRelease reports whether any seadex group name appears in the
// release title, case-insensitive.
func isSeadexRelease(title string, groups []string) bool {
	lower := strings.ToLower(title)
	for _, g := range groups {
		if g != "" && strings.Contains(lower, strings.ToLower(g)) {
			return true
		}
	}
	return false
}

// titleMatches drops off-title results with a loose similarity guard against
// the romaji and english titles.
func titleMatches(parsedTitle string, anime *store.Anime, minSimilarity float64) bool {
	if minSimilarity <= 0 {
		return true
	}
	best := similarity(parsedTitle, anime.TitleRomaji)
	if anime.TitleEnglish != nil {
		if sim := similarity(parsedTitle, *anime.TitleEnglish); sim > best {
			best = sim
		}
	}
	return best >= minSimilarity
}

func similarity(a, b string) float64 {
	a, b = strings.ToLower(a), strings.ToLower(b)
	if a == "" || b == "" {
		return 0
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return 1
	}
	sim, err := edlib.StringsSimilarity(a, b, edlib.JaroWinkler)
	if err != nil {
		return 0
	}
	return float64(sim)
}

func sortBySeadexSeeders(candidates []Candidate) {
	sortStable(candidates, func(a, b Candidate) bool {
		if a.IsSeadex != b.IsSeadex {
			return a.IsSeadex
		}
		return a.Item.Seeders > b.Item.Seeders
	})
}

func sortByDownloadable(candidates []Candidate) {
	sortStable(candidates, func(a, b Candidate) bool {
		ad, bd := a.Action.ShouldDownload(), b.Action.ShouldDownload()
		if ad != bd {
			return ad
		}
		return a.Item.Seeders > b.Item.Seeders
	})
}

func sortStable(candidates []Candidate, less func(a, b Candidate) bool) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return less(candidates[i], candidates[j])
	})
}

func (s *Service) cached(key string, ttl time.Duration) ([]Candidate, bool) {
	if ttl <= 0 {
		return nil, false
	}
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	entry, ok := s.cache[key]
	if !ok || time.Since(entry.at) > ttl {
		return nil, false
	}
	return entry.candidates, true
}

func (s *Service) storeCache(key string, candidates []Candidate) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.cache[key] = cacheEntry{candidates: candidates, at: time.Now()}
}

func cacheKey(query string, episode *float64) string {
	if episode == nil {
		return query
	}
	return fmt.Sprintf("%s|%g", query, *episode)
}
