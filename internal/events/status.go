package events

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/kumoarr/kumoarr/internal/store"
)

const statusInterval = 30 * time.Second

// StatusBroadcaster pushes periodic system snapshots to websocket clients,
// out of band from the event stream.
type StatusBroadcaster struct {
	store *store.Store
	hub   *Hub
	log   zerolog.Logger
}

// NewStatusBroadcaster creates a status broadcaster.
func NewStatusBroadcaster(st *store.Store, hub *Hub, log zerolog.Logger) *StatusBroadcaster {
	return &StatusBroadcaster{
		store: st,
		hub:   hub,
		log:   log.With().Str("component", "status").Logger(),
	}
}

// Run broadcasts a snapshot every interval until ctx is cancelled. Snapshots
// are skipped while no client is connected.
func (b *StatusBroadcaster) Run(ctx context.Context) {
	t := time.NewTicker(statusInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if b.hub.ClientCount() == 0 {
				continue
			}
			if err := b.broadcast(ctx); err != nil {
				b.log.Warn().Err(err).Msg("status broadcast failed")
			}
		}
	}
}

func (b *StatusBroadcaster) broadcast(ctx context.Context) error {
	titles, err := b.store.ListMonitored(ctx)
	if err != nil {
		return err
	}
	ids := make([]int64, 0, len(titles))
	for _, a := range titles {
		ids = append(ids, a.ID)
	}
	counts, err := b.store.GetDownloadCountsForAnimeIDs(ctx, ids)
	if err != nil {
		return err
	}

	downloads := 0
	for _, n := range counts {
		downloads += n
	}
	return b.hub.Broadcast(string(SystemStatus), map[string]any{
		"monitored": len(titles),
		"downloads": downloads,
		"clients":   b.hub.ClientCount(),
	})
}
