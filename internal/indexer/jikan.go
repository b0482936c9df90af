package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
)

const defaultJikanBaseURL = "https://api.jikan.moe/v4"

// Jikan is the MyAnimeList mirror metadata provider. It is the last fallback
// in the provider chain and needs no API key.
type Jikan struct {
	baseURL string
	client  *http.Client
}

// NewJikan creates a client. An empty baseURL uses the public instance.
func NewJikan(baseURL string) *Jikan {
	if baseURL == "" {
		baseURL = defaultJikanBaseURL
	}
	return &Jikan{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (j *Jikan) Name() string { return "jikan" }

type jikanEpisodesResponse struct {
	Data []struct {
		MalID         int     `json:"mal_id"`
		Title         *string `json:"title"`
		TitleJapanese *string `json:"title_japanese"`
		Aired         *string `json:"aired"`
		Filler        bool    `json:"filler"`
		Recap         bool    `json:"recap"`
	} `json:"data"`
	Pagination struct {
		HasNextPage bool `json:"has_next_page"`
	} `json:"pagination"`
}

// Episodes pages through the episode list for a MAL ID.
func (j *Jikan) Episodes(ctx context.Context, animeID int64) ([]EpisodeInfo, error) {
	var out []EpisodeInfo
	for page := 1; ; page++ {
		resp, err := j.fetchPage(ctx, animeID, page)
		if err != nil {
			return nil, err
		}
		for _, ep := range resp.Data {
			info := EpisodeInfo{
				Number:        ep.MalID,
				Title:         ep.Title,
				TitleJapanese: ep.TitleJapanese,
				Filler:        ep.Filler,
				Recap:         ep.Recap,
			}
			if ep.Aired != nil {
				if t, err := time.Parse(time.RFC3339, *ep.Aired); err == nil {
					info.Aired = &t
				}
			}
			out = append(out, info)
		}
		if !resp.Pagination.HasNextPage {
			break
		}
	}
	return out, nil
}

func (j *Jikan) fetchPage(ctx context.Context, animeID int64, page int) (*jikanEpisodesResponse, error) {
	endpoint := fmt.Sprintf("%s/anime/%d/episodes?page=%d", j.baseURL, animeID, page)

	var body []byte
	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			resp, err := j.client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			// Jikan rate-limits aggressively; back off and retry.
			if resp.StatusCode == http.StatusTooManyRequests {
				return fmt.Errorf("jikan rate limited")
			}
			if resp.StatusCode != http.StatusOK {
				return retry.Unrecoverable(fmt.Errorf("jikan returned %d", resp.StatusCode))
			}
			body, err = io.ReadAll(io.LimitReader(resp.Body, 4<<20))
			return err
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(2*time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("jikan episodes %d page %d: %w", animeID, page, err)
	}

	var parsed jikanEpisodesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("jikan parse: %w", err)
	}
	return &parsed, nil
}
