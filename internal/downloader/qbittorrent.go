package downloader

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	qbt "github.com/autobrr/go-qbittorrent"
	"github.com/rs/zerolog"
)

// QBittorrent implements Engine over the qBittorrent Web API.
type QBittorrent struct {
	client *qbt.Client
	log    zerolog.Logger

	loginOnce sync.Once
	loginErr  error
}

// NewQBittorrent creates an engine client. The connection is not validated
// until the first call; Login can be used to check it eagerly.
func NewQBittorrent(host, username, password string, log zerolog.Logger) *QBittorrent {
	client := qbt.NewClient(qbt.Config{
		Host:     host,
		Username: username,
		Password: password,
		Timeout:  30,
	})
	return &QBittorrent{
		client: client,
		log:    log.With().Str("component", "qbittorrent").Logger(),
	}
}

// Login authenticates against the engine once. Subsequent calls return the
// cached result.
func (q *QBittorrent) Login(ctx context.Context) error {
	q.loginOnce.Do(func() {
		if err := q.client.LoginCtx(ctx); err != nil {
			q.loginErr = fmt.Errorf("qbittorrent login: %w", err)
			return
		}
		if version, err := q.client.GetWebAPIVersionCtx(ctx); err == nil {
			q.log.Info().Str("api_version", version).Msg("connected to qbittorrent")
		}
	})
	return q.loginErr
}

// List returns the engine's torrents, optionally filtered by category.
func (q *QBittorrent) List(ctx context.Context, category string) ([]Torrent, error) {
	if err := q.Login(ctx); err != nil {
		return nil, err
	}
	opts := qbt.TorrentFilterOptions{}
	if category != "" {
		opts.Category = category
	}
	raw, err := q.client.GetTorrentsCtx(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("qbittorrent list: %w", err)
	}

	out := make([]Torrent, 0, len(raw))
	for _, t := range raw {
		out = append(out, Torrent{
			Hash:        strings.ToLower(t.Hash),
			Name:        t.Name,
			State:       string(t.State),
			Progress:    t.Progress,
			Size:        t.Size,
			Downloaded:  t.Downloaded,
			DlSpeed:     t.DlSpeed,
			ETA:         t.ETA,
			AddedOn:     time.Unix(t.AddedOn, 0),
			NumSeeds:    int(t.NumSeeds),
			ContentPath: t.ContentPath,
			Category:    t.Category,
		})
	}
	return out, nil
}

// AddMagnet queues a magnet link with the given category and save path.
func (q *QBittorrent) AddMagnet(ctx context.Context, magnet string, opts AddOptions) error {
	if err := q.Login(ctx); err != nil {
		return err
	}
	options := map[string]string{}
	if opts.Category != "" {
		options["category"] = opts.Category
	}
	if opts.SavePath != "" {
		options["savepath"] = opts.SavePath
	}
	if err := q.client.AddTorrentFromUrlCtx(ctx, magnet, options); err != nil {
		return fmt.Errorf("qbittorrent add magnet: %w", err)
	}
	return nil
}

// DeleteTorrent removes a torrent, optionally with its data.
func (q *QBittorrent) DeleteTorrent(ctx context.Context, hash string, deleteFiles bool) error {
	if err := q.Login(ctx); err != nil {
		return err
	}
	if err := q.client.DeleteTorrentsCtx(ctx, []string{hash}, deleteFiles); err != nil {
		return fmt.Errorf("qbittorrent delete %s: %w", hash, err)
	}
	return nil
}

// CreateCategory registers a category. An already-existing category is
// treated as success.
func (q *QBittorrent) CreateCategory(ctx context.Context, name string) error {
	if err := q.Login(ctx); err != nil {
		return err
	}
	if err := q.client.CreateCategoryCtx(ctx, name, ""); err != nil {
		if strings.Contains(err.Error(), "conflict") || strings.Contains(err.Error(), "409") {
			return nil
		}
		return fmt.Errorf("qbittorrent create category %q: %w", name, err)
	}
	return nil
}
