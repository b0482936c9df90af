package indexer

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
)

const defaultNyaaBaseURL = "https://nyaa.si"

// Nyaa is a torrent indexer client speaking nyaa's RSS dialect.
type Nyaa struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// NewNyaa creates a client. An empty baseURL uses the public instance.
func NewNyaa(baseURL string, log zerolog.Logger) *Nyaa {
	if baseURL == "" {
		baseURL = defaultNyaaBaseURL
	}
	return &Nyaa{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
		log:     log.With().Str("component", "nyaa").Logger(),
	}
}

// nyaa extends RSS items with its own namespace.
type nyaaFeed struct {
	XMLName xml.Name    `xml:"rss"`
	Channel nyaaChannel `xml:"channel"`
}

type nyaaChannel struct {
	Items []nyaaItem `xml:"item"`
}

type nyaaItem struct {
	Title     string `xml:"title"`
	Link      string `xml:"link"`
	GUID      string `xml:"guid"`
	PubDate   string `xml:"pubDate"`
	Seeders   int    `xml:"seeders"`
	Leechers  int    `xml:"leechers"`
	Downloads int    `xml:"downloads"`
	InfoHash  string `xml:"infoHash"`
	Category  string `xml:"categoryId"`
	Size      string `xml:"size"`
	Trusted   string `xml:"trusted"`
	Remake    string `xml:"remake"`
}

// Search queries the indexer's RSS search endpoint.
func (n *Nyaa) Search(ctx context.Context, query, category string, filter Filter) ([]TorrentItem, error) {
	params := url.Values{}
	params.Set("page", "rss")
	params.Set("q", query)
	if category != "" {
		params.Set("c", category)
	}
	switch filter {
	case FilterNoRemakes:
		params.Set("f", "1")
	case FilterTrustedOnly:
		params.Set("f", "2")
	}
	return n.fetch(ctx, n.baseURL+"/?"+params.Encode())
}

// CheckFeed fetches a feed and cuts it at the stored cursor. The cursor is a
// hash of the newest item from the previous poll; items before it in the
// feed are new.
func (n *Nyaa) CheckFeed(ctx context.Context, feedURL, lastHash string) ([]TorrentItem, string, error) {
	items, err := n.fetch(ctx, feedURL)
	if err != nil {
		return nil, lastHash, err
	}
	if len(items) == 0 {
		return nil, lastHash, nil
	}

	newHash := itemHash(items[0])
	if lastHash == "" {
		return items, newHash, nil
	}
	for i, item := range items {
		if itemHash(item) == lastHash {
			return items[:i], newHash, nil
		}
	}
	// Cursor not found; the whole feed rolled over since the last poll.
	return items, newHash, nil
}

func (n *Nyaa) fetch(ctx context.Context, rawURL string) ([]TorrentItem, error) {
	var body []byte
	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			resp, err := n.client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("indexer returned %d", resp.StatusCode)
			}
			body, err = io.ReadAll(io.LimitReader(resp.Body, 10<<20))
			return err
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}

	var feed nyaaFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	items := make([]TorrentItem, 0, len(feed.Channel.Items))
	for _, raw := range feed.Channel.Items {
		size, err := humanize.ParseBytes(raw.Size)
		if err != nil {
			size = 0
		}
		items = append(items, TorrentItem{
			Title:      raw.Title,
			Size:       int64(size),
			SizeHuman:  raw.Size,
			Seeders:    raw.Seeders,
			Leechers:   raw.Leechers,
			Downloads:  raw.Downloads,
			PubDate:    parseDate(raw.PubDate),
			InfoHash:   strings.ToLower(raw.InfoHash),
			Category:   raw.Category,
			Trusted:    raw.Trusted == "Yes",
			Remake:     raw.Remake == "Yes",
			GUID:       raw.GUID,
			ViewURL:    raw.GUID,
			TorrentURL: raw.Link,
		})
	}
	return items, nil
}

// itemHash is the feed cursor: guid when present, otherwise the title.
func itemHash(item TorrentItem) string {
	key := item.GUID
	if key == "" {
		key = item.Title
	}
	sum := sha1.Sum([]byte(key))
	return hex.EncodeToString(sum[:])
}

func parseDate(s string) time.Time {
	for _, layout := range []string{
		time.RFC1123Z,
		time.RFC1123,
		time.RFC3339,
		"Mon, 02 Jan 2006 15:04:05 -0700",
		"2006-01-02 15:04:05",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
