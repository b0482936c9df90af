// Package metadata keeps per-episode descriptive data fresh by querying the
// provider chain for titles whose cached metadata has gone stale.
package metadata

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/kumoarr/kumoarr/internal/events"
	"github.com/kumoarr/kumoarr/internal/indexer"
	"github.com/kumoarr/kumoarr/internal/store"
)

// Cached metadata older than this is refreshed on the next tick.
const staleAfter = 24 * time.Hour

// Service refreshes episode metadata.
type Service struct {
	store *store.Store
	chain *indexer.ProviderChain
	log   zerolog.Logger
	bus   *events.Bus
}

// New creates the metadata service.
func New(st *store.Store, chain *indexer.ProviderChain, bus *events.Bus, log zerolog.Logger) *Service {
	return &Service{
		store: st,
		chain: chain,
		bus:   bus,
		log:   log.With().Str("component", "metadata").Logger(),
	}
}

// RefreshAll updates metadata for every monitored title with stale or
// missing episode data.
func (s *Service) RefreshAll(ctx context.Context) error {
	titles, err := s.store.ListMonitored(ctx)
	if err != nil {
		return err
	}

	refreshed := 0
	for _, anime := range titles {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		fetchedAt, err := s.store.GetMetadataFetchedAt(ctx, anime.ID)
		if err != nil {
			return err
		}
		if !fetchedAt.IsZero() && time.Since(fetchedAt) < staleAfter {
			continue
		}
		if err := s.RefreshTitle(ctx, anime.ID); err != nil {
			s.log.Warn().Err(err).Int64("anime_id", anime.ID).Msg("metadata refresh failed")
			continue
		}
		refreshed++
	}

	if refreshed > 0 {
		s.bus.Publish(events.New(events.Info,
			fmt.Sprintf("refreshed metadata for %d titles", refreshed), nil))
	}
	return nil
}

// RefreshTitle fetches and stores episode metadata for one title.
func (s *Service) RefreshTitle(ctx context.Context, animeID int64) error {
	episodes, provider, err := s.chain.Episodes(ctx, animeID)
	if err != nil {
		return err
	}
	if len(episodes) == 0 {
		return nil
	}

	now := time.Now().UTC()
	for _, ep := range episodes {
		err := s.store.UpsertEpisodeMetadata(ctx, &store.EpisodeMetadata{
			AnimeID:       animeID,
			Episode:       ep.Number,
			Title:         ep.Title,
			TitleJapanese: ep.TitleJapanese,
			Aired:         ep.Aired,
			Filler:        ep.Filler,
			Recap:         ep.Recap,
			FetchedAt:     now,
		})
		if err != nil {
			return err
		}
	}
	s.log.Debug().Int64("anime_id", animeID).Int("episodes", len(episodes)).
		Str("provider", provider).Msg("episode metadata refreshed")
	return nil
}
