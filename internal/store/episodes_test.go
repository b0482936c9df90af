package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMissingEpisodesRespectMonitoring(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	addAnime(t, s, 1, "Show", 4)

	// Episode 1 has a file; episode 2 is explicitly unmonitored with no file.
	require.NoError(t, s.MarkEpisodeDownloaded(ctx, 1, 1, 1, 6, false, "/lib/e1.mkv", nil, nil))
	require.NoError(t, s.UpsertEpisodeStatus(ctx, &EpisodeStatus{
		AnimeID:   1,
		Episode:   2,
		Season:    1,
		Monitored: false,
	}))

	missing, err := s.GetMissingEpisodes(ctx, 1, 4)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4}, missing,
		"episodes without a row count as monitored; unmonitored ones never count as missing")

	missing, err = s.GetMissingEpisodes(ctx, 1, 0)
	require.NoError(t, err)
	assert.Empty(t, missing, "unknown episode count yields no missing set")
}
