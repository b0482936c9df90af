package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kumoarr/kumoarr/internal/quality"
)

func TestRecordDownloadIsIdempotent(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	addAnime(t, s, 1, "Show", 12)

	group := "SubsPlease"
	require.NoError(t, s.RecordDownload(ctx, 1, "[SubsPlease] Show - 01.mkv", 1, &group, nil))
	// Same filename again: silently accepted, still one row.
	require.NoError(t, s.RecordDownload(ctx, 1, "[SubsPlease] Show - 01.mkv", 1, &group, nil))

	counts, err := s.GetDownloadCountsForAnimeIDs(ctx, []int64{1})
	require.NoError(t, err)
	assert.Equal(t, 1, counts[1])

	downloaded, err := s.IsDownloaded(ctx, "[SubsPlease] Show - 01.mkv")
	require.NoError(t, err)
	assert.True(t, downloaded)

	downloaded, err = s.IsDownloaded(ctx, "[SubsPlease] Show - 02.mkv")
	require.NoError(t, err)
	assert.False(t, downloaded)
}

func TestDownloadHashIsCaseInsensitive(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	addAnime(t, s, 1, "Show", 12)

	upper := "ABCDEF0123456789ABCDEF0123456789ABCDEF01"
	require.NoError(t, s.RecordDownload(ctx, 1, "file.mkv", 1, nil, &upper))

	h, err := s.GetDownloadByHash(ctx, "abcdef0123456789abcdef0123456789abcdef01")
	require.NoError(t, err)
	assert.Equal(t, "file.mkv", h.Filename)

	h, err = s.GetDownloadByHash(ctx, upper)
	require.NoError(t, err)
	require.NotNil(t, h.InfoHash)
	assert.Equal(t, "abcdef0123456789abcdef0123456789abcdef01", *h.InfoHash,
		"hashes are stored lowercase")

	_, err = s.GetDownloadByHash(ctx, "0000000000000000000000000000000000000000")
	assert.ErrorIs(t, err, ErrNotFound)

	batch, err := s.GetDownloadsByHashes(ctx, []string{upper, "0000000000000000000000000000000000000000"})
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Contains(t, batch, "abcdef0123456789abcdef0123456789abcdef01")
}

func TestSetImported(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	addAnime(t, s, 1, "Show", 12)

	hash := "abcdef0123456789abcdef0123456789abcdef01"
	require.NoError(t, s.RecordDownload(ctx, 1, "file.mkv", 1, nil, &hash))

	h, err := s.GetDownloadByHash(ctx, hash)
	require.NoError(t, err)
	assert.False(t, h.Imported)

	require.NoError(t, s.SetImported(ctx, h.ID, true))
	h, err = s.GetDownloadByHash(ctx, hash)
	require.NoError(t, err)
	assert.True(t, h.Imported)
}

func TestBatchSentinel(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	addAnime(t, s, 1, "Show", 12)

	hash := "abcdef0123456789abcdef0123456789abcdef01"
	require.NoError(t, s.RecordDownload(ctx, 1, "Show [batch abc]", BatchEpisodeNumber, nil, &hash))

	h, err := s.GetDownloadByHash(ctx, hash)
	require.NoError(t, err)
	assert.True(t, h.IsBatch())
	assert.Equal(t, -1, h.EpisodeTruncated())

	// Special episode 6.5 truncates to 6 and is not a batch.
	require.NoError(t, s.RecordDownload(ctx, 1, "Show - 06.5.mkv", 6.5, nil, nil))
	downloaded, err := s.IsDownloaded(ctx, "Show - 06.5.mkv")
	require.NoError(t, err)
	require.True(t, downloaded)
	half := DownloadHistory{Episode: 6.5}
	assert.False(t, half.IsBatch())
	assert.Equal(t, 6, half.EpisodeTruncated())
}

func TestBlocklist(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	hash := "ABCDEF0123456789ABCDEF0123456789ABCDEF01"
	require.NoError(t, s.AddToBlocklist(ctx, hash, "stalled"))

	blocked, err := s.IsBlocked(ctx, "abcdef0123456789abcdef0123456789abcdef01")
	require.NoError(t, err)
	assert.True(t, blocked, "blocklist lookups are case-insensitive")

	// Re-adding updates the reason instead of failing.
	require.NoError(t, s.AddToBlocklist(ctx, hash, "manual"))
	entries, err := s.ListBlocklist(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "manual", entries[0].Reason)

	require.NoError(t, s.RemoveFromBlocklist(ctx, hash))
	blocked, err = s.IsBlocked(ctx, hash)
	require.NoError(t, err)
	assert.False(t, blocked)
}

func TestFeedCursor(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	addAnime(t, s, 1, "Show", 12)

	name := "SubsPlease 1080p"
	id, err := s.AddFeed(ctx, 1, "https://example.test/feed", &name)
	require.NoError(t, err)

	feed, err := s.GetFeed(ctx, id)
	require.NoError(t, err)
	assert.True(t, feed.Enabled)
	assert.Nil(t, feed.LastItemHash)
	assert.Nil(t, feed.LastChecked)

	require.NoError(t, s.UpdateFeedCursor(ctx, id, "deadbeef"))
	feed, err = s.GetFeed(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, feed.LastItemHash)
	assert.Equal(t, "deadbeef", *feed.LastItemHash)
	require.NotNil(t, feed.LastChecked, "cursor and last_checked advance together")
	assert.WithinDuration(t, time.Now().UTC(), *feed.LastChecked, time.Minute)

	require.NoError(t, s.SetFeedEnabled(ctx, id, false))
	feeds, err := s.ListEnabledFeeds(ctx)
	require.NoError(t, err)
	assert.Empty(t, feeds)

	require.NoError(t, s.RemoveFeed(ctx, id))
	_, err = s.GetFeed(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestQualityProfileRoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	p := &quality.Profile{
		Name:            "HD",
		CutoffID:        6,
		UpgradeAllowed:  true,
		SeadexPreferred: true,
		AllowedIDs:      map[int]bool{5: true, 6: true, 7: true},
	}
	require.NoError(t, s.SaveQualityProfile(ctx, p))
	require.NotZero(t, p.ID, "insert fills the ID in")

	got, err := s.GetQualityProfile(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "HD", got.Name)
	assert.Equal(t, 6, got.CutoffID)
	assert.True(t, got.SeadexPreferred)
	assert.Equal(t, map[int]bool{5: true, 6: true, 7: true}, got.AllowedIDs)

	// Update replaces the allowed set.
	p.AllowedIDs = map[int]bool{6: true}
	p.Name = "BluRay only"
	require.NoError(t, s.SaveQualityProfile(ctx, p))
	got, err = s.GetQualityProfile(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "BluRay only", got.Name)
	assert.Equal(t, map[int]bool{6: true}, got.AllowedIDs)

	list, err := s.ListQualityProfiles(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, s.DeleteQualityProfile(ctx, p.ID))
	_, err = s.GetQualityProfile(ctx, p.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReleaseRules(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	_, err := s.SaveReleaseRule(ctx, &quality.Rule{
		ProfileID: 1, Term: "dual audio", Score: 10, Type: quality.RulePreferred,
	})
	require.NoError(t, err)
	_, err = s.SaveReleaseRule(ctx, &quality.Rule{
		ProfileID: 2, Term: "cam", Type: quality.RuleMustNotContain,
	})
	require.NoError(t, err)

	rules, err := s.GetReleaseRules(ctx, []int64{1})
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "dual audio", rules[0].Term)
	assert.Equal(t, quality.RulePreferred, rules[0].Type)

	rules, err = s.GetReleaseRules(ctx, []int64{1, 2})
	require.NoError(t, err)
	assert.Len(t, rules, 2)

	rules, err = s.GetReleaseRules(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, rules)
}

func TestRecycleBin(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	addAnime(t, s, 1, "Show", 12)

	recycled := "/recycle/1_3_old.mkv"
	old := time.Now().UTC().Add(-10 * 24 * time.Hour)
	id, err := s.AddRecycleEntry(ctx, &RecycleEntry{
		OriginalPath: "/library/Show/old.mkv",
		RecycledPath: &recycled,
		AnimeID:      1,
		Episode:      3,
		DeletedAt:    old,
		Reason:       "upgrade",
	})
	require.NoError(t, err)

	fresh, err := s.AddRecycleEntry(ctx, &RecycleEntry{
		OriginalPath: "/library/Show/new.mkv",
		AnimeID:      1,
		Episode:      4,
		Reason:       "upgrade",
	})
	require.NoError(t, err)

	expired, err := s.GetRecycleEntriesOlderThan(ctx, time.Now().UTC().Add(-7*24*time.Hour))
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, id, expired[0].ID)

	require.NoError(t, s.RemoveRecycleEntry(ctx, id))
	_, err = s.GetRecycleEntry(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)

	entry, err := s.GetRecycleEntry(ctx, fresh)
	require.NoError(t, err)
	assert.Nil(t, entry.RecycledPath)
	assert.False(t, entry.DeletedAt.IsZero())
}
