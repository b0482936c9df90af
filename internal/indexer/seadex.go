package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog"

	"github.com/kumoarr/kumoarr/internal/store"
)

const defaultSeadexBaseURL = "https://releases.moe"

// SeadexClient fetches curated release recommendations for a title.
type SeadexClient interface {
	BestForAnime(ctx context.Context, animeID int64) (*store.SeadexEntry, error)
}

// Seadex talks to the seadex recommender API.
type Seadex struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// NewSeadex creates a client. An empty baseURL uses the public instance.
func NewSeadex(baseURL string, log zerolog.Logger) *Seadex {
	if baseURL == "" {
		baseURL = defaultSeadexBaseURL
	}
	return &Seadex{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
		log:     log.With().Str("component", "seadex").Logger(),
	}
}

type seadexResponse struct {
	Items []seadexEntry `json:"items"`
}

type seadexEntry struct {
	Expand struct {
		Torrents []seadexTorrent `json:"trs"`
	} `json:"expand"`
}

type seadexTorrent struct {
	URL          string `json:"url"`
	InfoHash     string `json:"infoHash"`
	ReleaseGroup string `json:"releaseGroup"`
	IsBest       bool   `json:"isBest"`
	Tracker      string `json:"tracker"`
	DualAudio    bool   `json:"dualAudio"`
}

// BestForAnime returns the curated releases for a title, best-first.
func (s *Seadex) BestForAnime(ctx context.Context, animeID int64) (*store.SeadexEntry, error) {
	params := url.Values{}
	params.Set("filter", fmt.Sprintf("alID=%d", animeID))
	params.Set("expand", "trs")
	endpoint := s.baseURL + "/api/collections/entries/records?" + params.Encode()

	var body []byte
	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			resp, err := s.client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("seadex returned %d", resp.StatusCode)
			}
			body, err = io.ReadAll(io.LimitReader(resp.Body, 4<<20))
			return err
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("seadex fetch %d: %w", animeID, err)
	}

	var parsed seadexResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("seadex parse: %w", err)
	}

	entry := &store.SeadexEntry{
		AnimeID:   animeID,
		Groups:    []string{},
		FetchedAt: time.Now().UTC(),
	}
	seenGroup := make(map[string]bool)
	for _, item := range parsed.Items {
		for _, tr := range item.Expand.Torrents {
			rel := store.SeadexRelease{
				URL:       tr.URL,
				InfoHash:  strings.ToLower(tr.InfoHash),
				Group:     tr.ReleaseGroup,
				IsBest:    tr.IsBest,
				Tracker:   tr.Tracker,
				DualAudio: tr.DualAudio,
			}
			entry.Releases = append(entry.Releases, rel)
			if tr.ReleaseGroup != "" && !seenGroup[strings.ToLower(tr.ReleaseGroup)] {
				seenGroup[strings.ToLower(tr.ReleaseGroup)] = true
				entry.Groups = append(entry.Groups, tr.ReleaseGroup)
			}
			if tr.IsBest && entry.BestGroup == nil {
				group := tr.ReleaseGroup
				entry.BestGroup = &group
			}
		}
	}

	// Best releases first so batch selection can stop at the first usable one.
	sortReleasesBestFirst(entry.Releases)
	return entry, nil
}

func sortReleasesBestFirst(releases []store.SeadexRelease) {
	best := make([]store.SeadexRelease, 0, len(releases))
	rest := make([]store.SeadexRelease, 0, len(releases))
	for _, r := range releases {
		if r.IsBest {
			best = append(best, r)
		} else {
			rest = append(rest, r)
		}
	}
	copy(releases, append(best, rest...))
}
