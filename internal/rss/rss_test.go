package rss

import (
	"context"
	"testing"

	"github.com/kumoarr/kumoarr/internal/config"
	"github.com/kumoarr/kumoarr/internal/downloader"
	"github.com/kumoarr/kumoarr/internal/events"
	"github.com/kumoarr/kumoarr/internal/indexer"
	"github.com/kumoarr/kumoarr/internal/store"
	"github.com/kumoarr/kumoarr/internal/testutil"
)

type fakeIndexer struct {
	items    []indexer.TorrentItem
	nextHash string
	calls    int
}

func (f *fakeIndexer) Search(ctx context.Context, query, category string, filter indexer.Filter) ([]indexer.TorrentItem, error) {
	return nil, nil
}

func (f *fakeIndexer) CheckFeed(ctx context.Context, feedURL, lastHash string) ([]indexer.TorrentItem, string, error) {
	f.calls++
	if lastHash == f.nextHash && f.nextHash != "" {
		return nil, lastHash, nil
	}
	return f.items, f.nextHash, nil
}

type fakeEngine struct {
	added      []string
	categories []string
}

func (f *fakeEngine) List(ctx context.Context, category string) ([]downloader.Torrent, error) {
	return nil, nil
}

func (f *fakeEngine) AddMagnet(ctx context.Context, magnet string, opts downloader.AddOptions) error {
	f.added = append(f.added, magnet)
	return nil
}

func (f *fakeEngine) DeleteTorrent(ctx context.Context, hash string, deleteFiles bool) error {
	return nil
}

func (f *fakeEngine) CreateCategory(ctx context.Context, name string) error {
	f.categories = append(f.categories, name)
	return nil
}

func newService(t *testing.T) (*Service, *store.Store, *fakeIndexer, *fakeEngine) {
	t.Helper()
	st := store.New(testutil.NewTestDB(t).Conn)
	idx := &fakeIndexer{}
	engine := &fakeEngine{}
	mgr := config.NewManager(&config.Config{})
	bus := events.NewBus(32)
	t.Cleanup(bus.Close)
	svc := New(st, idx, engine, mgr, bus, testutil.NewTestLogger(t))
	return svc, st, idx, engine
}

func addAnimeWithFeed(t *testing.T, st *store.Store) int64 {
	t.Helper()
	ctx := context.Background()
	episodes := 12
	err := st.AddAnime(ctx, &store.Anime{
		ID:           1,
		TitleRomaji:  "Sousou no Frieren",
		Format:       "TV",
		EpisodeCount: &episodes,
		Status:       store.StatusReleasing,
		Monitored:    true,
	})
	if err != nil {
		t.Fatal(err)
	}
	feedID, err := st.AddFeed(ctx, 1, "https://nyaa.si/?page=rss&u=subsplease&q=frieren", nil)
	if err != nil {
		t.Fatal(err)
	}
	return feedID
}

func TestCheckFeedsQueuesNewItems(t *testing.T) {
	svc, st, idx, engine := newService(t)
	feedID := addAnimeWithFeed(t, st)
	ctx := context.Background()

	idx.items = []indexer.TorrentItem{
		{
			Title:    "[SubsPlease] Sousou no Frieren - 05 (1080p).mkv",
			InfoHash: "abcdef0123456789abcdef0123456789abcdef01",
			Seeders:  120,
		},
		{
			Title:      "[SubsPlease] Sousou no Frieren - 04 (1080p).mkv",
			TorrentURL: "https://nyaa.si/download/4.torrent",
			Seeders:    200,
		},
	}
	idx.nextHash = "cursor-1"

	if err := svc.CheckFeeds(ctx); err != nil {
		t.Fatal(err)
	}

	if len(engine.added) != 2 {
		t.Fatalf("queued %d torrents, want 2", len(engine.added))
	}
	// Items with a hash become magnets; without one, the torrent URL is used.
	if got := engine.added[0]; got[:20] != "magnet:?xt=urn:btih:" {
		t.Errorf("first add = %q, want a magnet link", got)
	}
	if engine.added[1] != "https://nyaa.si/download/4.torrent" {
		t.Errorf("second add = %q, want the torrent URL", engine.added[1])
	}
	if len(engine.categories) == 0 || engine.categories[0] != "Sousou no Frieren" {
		t.Errorf("categories = %v, want the sanitised title", engine.categories)
	}

	// History carries the parsed episode and the hash.
	h, err := st.GetDownloadByHash(ctx, "abcdef0123456789abcdef0123456789abcdef01")
	if err != nil {
		t.Fatal(err)
	}
	if h.Episode != 5 {
		t.Errorf("Episode = %g, want 5", h.Episode)
	}
	if h.Group == nil || *h.Group != "SubsPlease" {
		t.Errorf("Group = %v, want SubsPlease", h.Group)
	}

	feed, err := st.GetFeed(ctx, feedID)
	if err != nil {
		t.Fatal(err)
	}
	if feed.LastItemHash == nil || *feed.LastItemHash != "cursor-1" {
		t.Errorf("cursor = %v, want cursor-1", feed.LastItemHash)
	}

	status := svc.LastStatus()
	if status.Feeds != 1 || status.NewItems != 2 || status.Grabbed != 2 {
		t.Errorf("status = %+v, want 1 feed / 2 new / 2 grabbed", status)
	}
}

func TestCheckFeedsSkipsKnownFilenames(t *testing.T) {
	svc, st, idx, engine := newService(t)
	addAnimeWithFeed(t, st)
	ctx := context.Background()

	title := "[SubsPlease] Sousou no Frieren - 05 (1080p).mkv"
	if err := st.RecordDownload(ctx, 1, title, 5, nil, nil); err != nil {
		t.Fatal(err)
	}

	idx.items = []indexer.TorrentItem{{Title: title, Seeders: 50}}
	idx.nextHash = "cursor-1"

	if err := svc.CheckFeeds(ctx); err != nil {
		t.Fatal(err)
	}
	if len(engine.added) != 0 {
		t.Errorf("queued %d torrents, want 0 (already in history)", len(engine.added))
	}
	if status := svc.LastStatus(); status.Grabbed != 0 {
		t.Errorf("Grabbed = %d, want 0", status.Grabbed)
	}
}

func TestCheckFeedsSecondSweepFindsNothing(t *testing.T) {
	svc, st, idx, engine := newService(t)
	addAnimeWithFeed(t, st)
	ctx := context.Background()

	idx.items = []indexer.TorrentItem{{
		Title:   "[SubsPlease] Sousou no Frieren - 06 (1080p).mkv",
		Seeders: 50,
	}}
	idx.nextHash = "cursor-1"

	if err := svc.CheckFeeds(ctx); err != nil {
		t.Fatal(err)
	}
	if err := svc.CheckFeeds(ctx); err != nil {
		t.Fatal(err)
	}

	if idx.calls != 2 {
		t.Errorf("feed polls = %d, want 2", idx.calls)
	}
	if len(engine.added) != 1 {
		t.Errorf("queued %d torrents across both sweeps, want 1", len(engine.added))
	}
}

func TestCheckFeedsIgnoresDisabled(t *testing.T) {
	svc, st, idx, _ := newService(t)
	feedID := addAnimeWithFeed(t, st)
	ctx := context.Background()

	if err := st.SetFeedEnabled(ctx, feedID, false); err != nil {
		t.Fatal(err)
	}
	if err := svc.CheckFeeds(ctx); err != nil {
		t.Fatal(err)
	}
	if idx.calls != 0 {
		t.Errorf("feed polls = %d, want 0", idx.calls)
	}
	if status := svc.LastStatus(); status.Feeds != 0 {
		t.Errorf("Feeds = %d, want 0", status.Feeds)
	}
}
