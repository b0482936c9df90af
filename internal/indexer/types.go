// Package indexer holds the external discovery clients: the torrent indexer,
// the seadex release recommender, and the episode metadata providers.
package indexer

import (
	"context"
	"time"
)

// Filter narrows a torrent search server-side.
type Filter int

const (
	FilterNone Filter = iota
	FilterNoRemakes
	FilterTrustedOnly
)

// TorrentItem is one release returned by the torrent indexer.
type TorrentItem struct {
	Title      string    `json:"title"`
	Size       int64     `json:"size"`
	SizeHuman  string    `json:"sizeHuman"`
	Seeders    int       `json:"seeders"`
	Leechers   int       `json:"leechers"`
	Downloads  int       `json:"downloads"`
	PubDate    time.Time `json:"pubDate"`
	InfoHash   string    `json:"infoHash"`
	Category   string    `json:"category"`
	Trusted    bool      `json:"trusted"`
	Remake     bool      `json:"remake"`
	GUID       string    `json:"guid"`
	ViewURL    string    `json:"viewUrl"`
	TorrentURL string    `json:"torrentUrl"`
}

// TorrentIndexer searches a public indexer and polls its RSS feeds.
type TorrentIndexer interface {
	// Search queries the indexer. Category and filter may be zero values.
	Search(ctx context.Context, query, category string, filter Filter) ([]TorrentItem, error)

	// CheckFeed fetches a feed URL and returns the items newer than the
	// lastHash cursor, newest first, along with the next cursor value. An
	// empty lastHash returns every item.
	CheckFeed(ctx context.Context, url, lastHash string) ([]TorrentItem, string, error)
}

// Release is a title returned by the upstream catalogue search.
type Release struct {
	ID           int64   `json:"id"`
	TitleRomaji  string  `json:"titleRomaji"`
	TitleEnglish *string `json:"titleEnglish,omitempty"`
	TitleNative  *string `json:"titleNative,omitempty"`
	Format       string  `json:"format"`
	EpisodeCount *int    `json:"episodeCount,omitempty"`
	Status       string  `json:"status"`
	CoverImage   *string `json:"coverImage,omitempty"`
	BannerImage  *string `json:"bannerImage,omitempty"`
}

// TitleSearcher looks titles up in the upstream catalogue.
type TitleSearcher interface {
	SearchTitles(ctx context.Context, query string) ([]Release, error)
}
