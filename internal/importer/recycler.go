package importer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/kumoarr/kumoarr/internal/store"
)

// Recycler moves displaced library files into the recycle bin instead of
// deleting them, and garbage-collects the bin on a retention window.
type Recycler struct {
	store   *store.Store
	binPath string
	log     zerolog.Logger
}

// NewRecycler creates a recycler rooted at binPath.
func NewRecycler(st *store.Store, binPath string, log zerolog.Logger) *Recycler {
	return &Recycler{
		store:   st,
		binPath: binPath,
		log:     log.With().Str("component", "recycler").Logger(),
	}
}

// Recycle moves a library file into the bin and records the displacement.
// A missing source file still gets a bin row so the displacement is visible.
func (r *Recycler) Recycle(ctx context.Context, path string, animeID int64, episode int, qualityID *int, reason string) error {
	entry := &store.RecycleEntry{
		OriginalPath: path,
		AnimeID:      animeID,
		Episode:      episode,
		QualityID:    qualityID,
		Reason:       reason,
	}

	if info, err := os.Stat(path); err == nil {
		size := info.Size()
		entry.FileSize = &size

		if err := os.MkdirAll(r.binPath, 0755); err != nil {
			return fmt.Errorf("create recycle bin: %w", err)
		}
		recycled := filepath.Join(r.binPath,
			fmt.Sprintf("%d_%d_%s", animeID, episode, filepath.Base(path)))
		if err := os.Rename(path, recycled); err != nil {
			return fmt.Errorf("recycle %s: %w", path, err)
		}
		entry.RecycledPath = &recycled
	}

	if _, err := r.store.AddRecycleEntry(ctx, entry); err != nil {
		return err
	}
	r.log.Info().Str("path", path).Str("reason", reason).Msg("recycled file")
	return nil
}

// GC purges bin entries older than retention, deleting the recycled file
// and its row.
func (r *Recycler) GC(ctx context.Context, retention time.Duration) error {
	cutoff := time.Now().UTC().Add(-retention)
	entries, err := r.store.GetRecycleEntriesOlderThan(ctx, cutoff)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.RecycledPath != nil {
			if err := os.Remove(*e.RecycledPath); err != nil && !os.IsNotExist(err) {
				r.log.Warn().Err(err).Str("path", *e.RecycledPath).Msg("failed to purge recycled file")
				continue
			}
		}
		if err := r.store.RemoveRecycleEntry(ctx, e.ID); err != nil {
			return err
		}
	}
	if len(entries) > 0 {
		r.log.Info().Int("purged", len(entries)).Msg("recycle bin GC finished")
	}
	return nil
}
