package monitor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kumoarr/kumoarr/internal/config"
	"github.com/kumoarr/kumoarr/internal/downloader"
	"github.com/kumoarr/kumoarr/internal/events"
	"github.com/kumoarr/kumoarr/internal/importer"
	"github.com/kumoarr/kumoarr/internal/mediainfo"
	"github.com/kumoarr/kumoarr/internal/store"
	"github.com/kumoarr/kumoarr/internal/testutil"
)

type fakeEngine struct {
	torrents []downloader.Torrent
	deleted  []string
}

func (f *fakeEngine) List(ctx context.Context, category string) ([]downloader.Torrent, error) {
	return f.torrents, nil
}

func (f *fakeEngine) AddMagnet(ctx context.Context, magnet string, opts downloader.AddOptions) error {
	return nil
}

func (f *fakeEngine) DeleteTorrent(ctx context.Context, hash string, deleteFiles bool) error {
	f.deleted = append(f.deleted, hash)
	return nil
}

func (f *fakeEngine) CreateCategory(ctx context.Context, name string) error {
	return nil
}

type stubProber struct{}

func (stubProber) Probe(ctx context.Context, path string) (*mediainfo.MediaInfo, error) {
	return nil, nil
}

type fixture struct {
	store   *store.Store
	engine  *fakeEngine
	monitor *Monitor
	bus     *events.Bus
	libRoot string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := store.New(testutil.NewTestDB(t).Conn)
	libRoot := t.TempDir()
	mgr := config.NewManager(&config.Config{
		Library: config.LibraryConfig{
			Root:           libRoot,
			NamingTemplate: "{Series Title}/Season {Season:02}/{Series Title} - S{Season:02}E{Episode:02} - {Title} [{Quality}]",
			FileOperation:  "move",
		},
		Downloads: config.DownloadsConfig{StalledTimeoutSeconds: 900},
	})
	bus := events.NewBus(32)
	t.Cleanup(bus.Close)
	log := testutil.NewTestLogger(t)
	imp := importer.New(st, stubProber{}, mgr, bus, log)
	engine := &fakeEngine{}
	return &fixture{
		store:   st,
		engine:  engine,
		monitor: New(st, engine, imp, mgr, bus, log),
		bus:     bus,
		libRoot: libRoot,
	}
}

func (f *fixture) addAnime(t *testing.T) {
	t.Helper()
	episodes := 12
	err := f.store.AddAnime(context.Background(), &store.Anime{
		ID:           1,
		TitleRomaji:  "Show",
		Format:       "TV",
		EpisodeCount: &episodes,
		Status:       store.StatusReleasing,
		Monitored:    true,
	})
	if err != nil {
		t.Fatal(err)
	}
}

const testHash = "abcdef0123456789abcdef0123456789abcdef01"

func TestCheckCompletedImports(t *testing.T) {
	f := newFixture(t)
	f.addAnime(t)
	ctx := context.Background()

	filename := "[Grp] Show - 01 (BD 1080p).mkv"
	downloads := t.TempDir()
	src := filepath.Join(downloads, filename)
	if err := os.WriteFile(src, []byte("video"), 0644); err != nil {
		t.Fatal(err)
	}

	hash := testHash
	if err := f.store.RecordDownload(ctx, 1, filename, 1, nil, &hash); err != nil {
		t.Fatal(err)
	}

	f.engine.torrents = []downloader.Torrent{{
		Hash:        testHash,
		Name:        filename,
		State:       downloader.StateUploading,
		Progress:    1.0,
		AddedOn:     time.Now(),
		ContentPath: src,
	}}

	if err := f.monitor.CheckCompleted(ctx); err != nil {
		t.Fatal(err)
	}

	dst := filepath.Join(f.libRoot, "Show/Season 01/Show - S01E01 - Episode 1 [BluRay-1080p].mkv")
	if _, err := os.Stat(dst); err != nil {
		t.Fatalf("imported file missing: %v", err)
	}

	history, err := f.store.GetDownloadByHash(ctx, testHash)
	if err != nil {
		t.Fatal(err)
	}
	if !history.Imported {
		t.Error("history row should be flagged imported")
	}

	es, err := f.store.GetEpisodeStatus(ctx, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	if es.DownloadedAt == nil {
		t.Error("episode status should record the download")
	}

	// Second tick: the source is gone (moved), but the imported flag short-
	// circuits before any filesystem access.
	if err := f.monitor.CheckCompleted(ctx); err != nil {
		t.Fatal(err)
	}
}

func TestCheckCompletedCancelsStalled(t *testing.T) {
	f := newFixture(t)
	f.addAnime(t)
	ctx := context.Background()
	sub := f.bus.Subscribe()

	f.engine.torrents = []downloader.Torrent{{
		Hash:     testHash,
		Name:     "[Grp] Show - 02 (BD 1080p).mkv",
		State:    downloader.StateStalledDL,
		Progress: 0.2,
		NumSeeds: 0,
		AddedOn:  time.Now().Add(-2 * time.Hour),
	}}

	if err := f.monitor.CheckCompleted(ctx); err != nil {
		t.Fatal(err)
	}

	if len(f.engine.deleted) != 1 || f.engine.deleted[0] != testHash {
		t.Fatalf("deleted = %v, want [%s]", f.engine.deleted, testHash)
	}
	blocked, err := f.store.IsBlocked(ctx, testHash)
	if err != nil {
		t.Fatal(err)
	}
	if !blocked {
		t.Error("stalled hash should land on the blocklist")
	}

	e := <-sub.C()
	if e.Type != events.Error {
		t.Errorf("event type = %q, want %q", e.Type, events.Error)
	}
}

func TestCheckCompletedSkipsUntracked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Completed torrent with no history row: someone else's download.
	f.engine.torrents = []downloader.Torrent{{
		Hash:     testHash,
		Name:     "unrelated.mkv",
		State:    downloader.StateUploading,
		Progress: 1.0,
		AddedOn:  time.Now(),
	}}
	if err := f.monitor.CheckCompleted(ctx); err != nil {
		t.Fatal(err)
	}
	if len(f.engine.deleted) != 0 {
		t.Error("untracked torrents must be left alone")
	}
}

func TestRecoverFromExistingDestination(t *testing.T) {
	f := newFixture(t)
	f.addAnime(t)
	ctx := context.Background()

	filename := "[Grp] Show - 03 (BD 1080p).mkv"
	hash := testHash
	if err := f.store.RecordDownload(ctx, 1, filename, 3, nil, &hash); err != nil {
		t.Fatal(err)
	}

	// The destination already holds the file; the engine-side source is gone.
	dst := filepath.Join(f.libRoot, "Show/Season 01/Show - S01E03 - Episode 3 [BluRay-1080p].mkv")
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dst, []byte("video"), 0644); err != nil {
		t.Fatal(err)
	}

	f.engine.torrents = []downloader.Torrent{{
		Hash:        testHash,
		Name:        filename,
		State:       downloader.StateUploading,
		Progress:    1.0,
		AddedOn:     time.Now(),
		ContentPath: "/vanished/" + filename,
	}}

	if err := f.monitor.CheckCompleted(ctx); err != nil {
		t.Fatal(err)
	}

	history, err := f.store.GetDownloadByHash(ctx, testHash)
	if err != nil {
		t.Fatal(err)
	}
	if !history.Imported {
		t.Error("recovery should flag the history row imported")
	}
}

func TestRecoverFromRenamedSibling(t *testing.T) {
	f := newFixture(t)
	f.addAnime(t)
	ctx := context.Background()

	filename := "[Grp] Show - 04 (BD 1080p).mkv"
	hash := testHash
	if err := f.store.RecordDownload(ctx, 1, filename, 4, nil, &hash); err != nil {
		t.Fatal(err)
	}

	// The season directory holds episode 4 under a hand-renamed name; the
	// expected destination itself does not exist.
	dir := filepath.Join(f.libRoot, "Show/Season 01")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	sibling := filepath.Join(dir, "[Grp] Show - 04v2 (BD 1080p).mkv")
	if err := os.WriteFile(sibling, []byte("video"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	f.engine.torrents = []downloader.Torrent{{
		Hash:        testHash,
		Name:        filename,
		State:       downloader.StateUploading,
		Progress:    1.0,
		AddedOn:     time.Now(),
		ContentPath: "/vanished/" + filename,
	}}

	if err := f.monitor.CheckCompleted(ctx); err != nil {
		t.Fatal(err)
	}

	history, err := f.store.GetDownloadByHash(ctx, testHash)
	if err != nil {
		t.Fatal(err)
	}
	if !history.Imported {
		t.Error("a renamed sibling for the same episode should count as imported")
	}
}

func TestImportDirectoryPayload(t *testing.T) {
	f := newFixture(t)
	f.addAnime(t)
	ctx := context.Background()

	downloads := t.TempDir()
	payload := filepath.Join(downloads, "Show Batch")
	if err := os.MkdirAll(payload, 0755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{
		"[Grp] Show - 01 (BD 1080p).mkv",
		"[Grp] Show - 02 (BD 1080p).mkv",
		"readme.txt",
	} {
		if err := os.WriteFile(filepath.Join(payload, name), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	hash := testHash
	if err := f.store.RecordDownload(ctx, 1, "Show [batch]", store.BatchEpisodeNumber, nil, &hash); err != nil {
		t.Fatal(err)
	}

	f.engine.torrents = []downloader.Torrent{{
		Hash:        testHash,
		Name:        "Show Batch",
		State:       downloader.StateUploading,
		Progress:    1.0,
		AddedOn:     time.Now(),
		ContentPath: payload,
	}}

	if err := f.monitor.CheckCompleted(ctx); err != nil {
		t.Fatal(err)
	}

	for _, ep := range []int{1, 2} {
		es, err := f.store.GetEpisodeStatus(ctx, 1, ep)
		if err != nil {
			t.Fatalf("episode %d: %v", ep, err)
		}
		if es.DownloadedAt == nil {
			t.Errorf("episode %d should be recorded", ep)
		}
	}
}

func TestImportDirectoryFansOut(t *testing.T) {
	f := newFixture(t)
	f.addAnime(t)
	f.monitor.cfg.Update(func(c *config.Config) {
		c.Library.ProbeConcurrency = 2
	})
	ctx := context.Background()

	downloads := t.TempDir()
	payload := filepath.Join(downloads, "Show Batch")
	if err := os.MkdirAll(payload, 0755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{
		"[Grp] Show - 01 (BD 1080p).mkv",
		"[Grp] Show - 02 (BD 1080p).mkv",
		"[Grp] Show - 03 (BD 1080p).mkv",
		"[Grp] Show - 04 (BD 1080p).mkv",
	} {
		if err := os.WriteFile(filepath.Join(payload, name), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	hash := testHash
	if err := f.store.RecordDownload(ctx, 1, "Show [batch]", store.BatchEpisodeNumber, nil, &hash); err != nil {
		t.Fatal(err)
	}

	f.engine.torrents = []downloader.Torrent{{
		Hash:        testHash,
		Name:        "Show Batch",
		State:       downloader.StateUploading,
		Progress:    1.0,
		AddedOn:     time.Now(),
		ContentPath: payload,
	}}

	if err := f.monitor.CheckCompleted(ctx); err != nil {
		t.Fatal(err)
	}

	for ep := 1; ep <= 4; ep++ {
		es, err := f.store.GetEpisodeStatus(ctx, 1, ep)
		if err != nil {
			t.Fatalf("episode %d: %v", ep, err)
		}
		if es.DownloadedAt == nil {
			t.Errorf("episode %d should be recorded", ep)
		}
	}

	history, err := f.store.GetDownloadByHash(ctx, testHash)
	if err != nil {
		t.Fatal(err)
	}
	if !history.Imported {
		t.Error("history row should be flagged imported")
	}
}

func TestMapPath(t *testing.T) {
	f := newFixture(t)
	f.monitor.cfg.Update(func(c *config.Config) {
		c.Library.PathMappings = []config.PathMapping{
			{Remote: "/remote/downloads", Local: "/local/downloads"},
		}
	})

	got := f.monitor.mapPath("/remote/downloads/file.mkv")
	if got != "/local/downloads/file.mkv" {
		t.Errorf("mapPath = %q, want /local/downloads/file.mkv", got)
	}
	if got := f.monitor.mapPath("/other/file.mkv"); got != "/other/file.mkv" {
		t.Errorf("unmapped path changed: %q", got)
	}
}
