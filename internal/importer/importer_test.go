package importer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/kumoarr/kumoarr/internal/config"
	"github.com/kumoarr/kumoarr/internal/events"
	"github.com/kumoarr/kumoarr/internal/mediainfo"
	"github.com/kumoarr/kumoarr/internal/parser"
	"github.com/kumoarr/kumoarr/internal/store"
	"github.com/kumoarr/kumoarr/internal/testutil"
)

type fakeProber struct {
	mi  *mediainfo.MediaInfo
	err error
}

func (p *fakeProber) Probe(ctx context.Context, path string) (*mediainfo.MediaInfo, error) {
	return p.mi, p.err
}

func testManager(root, op string) *config.Manager {
	return config.NewManager(&config.Config{
		Library: config.LibraryConfig{
			Root:           root,
			NamingTemplate: "{Series Title}/Season {Season:02}/{Series Title} - S{Season:02}E{Episode:02} - {Title} [{Quality}]",
			FileOperation:  op,
		},
	})
}

func testAnime(t *testing.T, st *store.Store) *store.Anime {
	t.Helper()
	episodes := 12
	a := &store.Anime{
		ID:           1,
		TitleRomaji:  "Show",
		Format:       "TV",
		EpisodeCount: &episodes,
		Status:       store.StatusReleasing,
		Monitored:    true,
	}
	if err := st.AddAnime(context.Background(), a); err != nil {
		t.Fatal(err)
	}
	return a
}

func TestImportFile(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	st := store.New(tdb.Conn)
	bus := events.NewBus(8)
	defer bus.Close()
	sub := bus.Subscribe()

	libRoot := t.TempDir()
	downloads := t.TempDir()
	anime := testAnime(t, st)

	filename := "[SubsPlease] Show - 01 (BD 1080p).mkv"
	src := filepath.Join(downloads, filename)
	if err := os.WriteFile(src, []byte("video"), 0644); err != nil {
		t.Fatal(err)
	}

	imp := New(st, &fakeProber{mi: &mediainfo.MediaInfo{Resolution: "1080p", Codec: "HEVC"}},
		testManager(libRoot, "move"), bus, testutil.NewTestLogger(t))

	req := &Request{
		Anime:         anime,
		SourceFile:    src,
		Parsed:        parser.Parse(filename),
		History:       &store.DownloadHistory{AnimeID: 1, Filename: filename, Episode: 1},
		EpisodeTitles: map[int]string{1: "First Light"},
		SeadexGroups:  []string{"SubsPlease"},
	}
	if err := imp.ImportFile(context.Background(), req); err != nil {
		t.Fatal(err)
	}

	want := filepath.Join(libRoot, "Show/Season 01/Show - S01E01 - First Light [BluRay-1080p].mkv")
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("destination missing: %v", err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Error("source should be gone after a move import")
	}

	es, err := st.GetEpisodeStatus(context.Background(), 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	if es.FilePath == nil || *es.FilePath != want {
		t.Errorf("FilePath = %v, want %q", es.FilePath, want)
	}
	if es.QualityID == nil || *es.QualityID != 6 {
		t.Errorf("QualityID = %v, want 6", es.QualityID)
	}
	if !es.IsSeadex {
		t.Error("release group is in the seadex list, IsSeadex should be set")
	}
	if es.FileSize == nil || *es.FileSize != int64(len("video")) {
		t.Errorf("FileSize = %v, want %d", es.FileSize, len("video"))
	}

	first := <-sub.C()
	if first.Type != events.ImportStarted {
		t.Errorf("first event = %q, want %q", first.Type, events.ImportStarted)
	}
	second := <-sub.C()
	if second.Type != events.ImportFinished {
		t.Errorf("second event = %q, want %q", second.Type, events.ImportFinished)
	}
}

func TestImportFileWithoutMediaInfo(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	st := store.New(tdb.Conn)
	bus := events.NewBus(8)
	defer bus.Close()

	libRoot := t.TempDir()
	downloads := t.TempDir()
	anime := testAnime(t, st)

	filename := "[Grp] Show - 02 (BD 1080p).mkv"
	src := filepath.Join(downloads, filename)
	if err := os.WriteFile(src, []byte("video"), 0644); err != nil {
		t.Fatal(err)
	}

	// Probe failures degrade to an import without media info.
	imp := New(st, &fakeProber{err: errors.New("ffprobe not found")},
		testManager(libRoot, "copy"), bus, testutil.NewTestLogger(t))

	req := &Request{
		Anime:      anime,
		SourceFile: src,
		Parsed:     parser.Parse(filename),
		History:    &store.DownloadHistory{AnimeID: 1, Filename: filename, Episode: 2},
	}
	if err := imp.ImportFile(context.Background(), req); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(src); err != nil {
		t.Error("source should survive a copy import")
	}
	if _, err := st.GetEpisodeStatus(context.Background(), 1, 2); err != nil {
		t.Fatalf("episode status missing: %v", err)
	}
}

func TestDestinationPath(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	st := store.New(tdb.Conn)
	bus := events.NewBus(8)
	defer bus.Close()

	libRoot := t.TempDir()
	anime := testAnime(t, st)
	imp := New(st, &fakeProber{}, testManager(libRoot, "hardlink"), bus, testutil.NewTestLogger(t))

	filename := "[Grp] Show - 03 (BD 1080p).mkv"
	req := &Request{
		Anime:      anime,
		SourceFile: "/downloads/" + filename,
		Parsed:     parser.Parse(filename),
		History:    &store.DownloadHistory{AnimeID: 1, Filename: filename, Episode: 3},
	}

	first := imp.DestinationPath(req, nil)
	want := filepath.Join(libRoot, "Show/Season 01/Show - S01E03 - Episode 3 [BluRay-1080p].mkv")
	if first != want {
		t.Errorf("DestinationPath = %q, want %q", first, want)
	}
	if second := imp.DestinationPath(req, nil); second != first {
		t.Error("DestinationPath should be deterministic")
	}

	// A source without an extension falls back to the history filename's.
	req.SourceFile = "/downloads/noext"
	if got := imp.DestinationPath(req, nil); filepath.Ext(got) != ".mkv" {
		t.Errorf("ext = %q, want .mkv", filepath.Ext(got))
	}
}
