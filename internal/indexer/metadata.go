package indexer

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// EpisodeInfo is one episode's descriptive data from a metadata provider.
type EpisodeInfo struct {
	Number        int        `json:"number"`
	Title         *string    `json:"title,omitempty"`
	TitleJapanese *string    `json:"titleJapanese,omitempty"`
	Aired         *time.Time `json:"aired,omitempty"`
	Filler        bool       `json:"filler"`
	Recap         bool       `json:"recap"`
}

// MetadataProvider serves episode metadata for a catalogue ID.
type MetadataProvider interface {
	// Name identifies the provider for provenance logging.
	Name() string

	// Episodes returns the episode list for a title, or an empty slice when
	// the provider has nothing.
	Episodes(ctx context.Context, animeID int64) ([]EpisodeInfo, error)
}

// ProviderChain tries providers in order and returns the first non-empty
// result, recording which provider served it.
type ProviderChain struct {
	providers []MetadataProvider
	log       zerolog.Logger
}

// NewProviderChain builds a chain; order is priority order.
func NewProviderChain(log zerolog.Logger, providers ...MetadataProvider) *ProviderChain {
	return &ProviderChain{
		providers: providers,
		log:       log.With().Str("component", "metadata").Logger(),
	}
}

// Episodes queries each provider in turn. Provider errors are logged and the
// next provider is tried; the chain only fails when every provider fails.
func (c *ProviderChain) Episodes(ctx context.Context, animeID int64) ([]EpisodeInfo, string, error) {
	var lastErr error
	for _, p := range c.providers {
		episodes, err := p.Episodes(ctx, animeID)
		if err != nil {
			c.log.Warn().Err(err).Str("provider", p.Name()).Int64("anime_id", animeID).
				Msg("metadata provider failed")
			lastErr = err
			continue
		}
		if len(episodes) > 0 {
			return episodes, p.Name(), nil
		}
	}
	return nil, "", lastErr
}
