// Package downloader is the seam to the external BitTorrent engine. The
// Engine interface is the narrow contract the rest of the system consumes;
// the qBittorrent implementation is the only production engine.
package downloader

import (
	"context"
	"regexp"
	"strings"
	"time"
)

// Torrent states mirrored from the engine's wire values.
const (
	StateDownloading  = "downloading"
	StateStalledDL    = "stalledDL"
	StateMetaDL       = "metaDL"
	StateQueuedDL     = "queuedDL"
	StateCheckingDL   = "checkingDL"
	StateAllocating   = "allocating"
	StateForcedDL     = "forcedDL"
	StateError        = "error"
	StateMissingFiles = "missingFiles"
	StateUploading    = "uploading"
	StateStalledUP    = "stalledUP"
	StatePausedDL     = "pausedDL"
	StatePausedUP     = "pausedUP"
)

// Torrent is the engine-side view of one download.
type Torrent struct {
	Hash        string    `json:"hash"`
	Name        string    `json:"name"`
	State       string    `json:"state"`
	Progress    float64   `json:"progress"`
	Size        int64     `json:"size"`
	Downloaded  int64     `json:"downloaded"`
	DlSpeed     int64     `json:"dlspeed"`
	ETA         int64     `json:"eta"`
	AddedOn     time.Time `json:"addedOn"`
	NumSeeds    int       `json:"numSeeds"`
	ContentPath string    `json:"contentPath"`
	Category    string    `json:"category"`
}

// Complete reports whether the payload is fully downloaded.
func (t *Torrent) Complete() bool {
	return t.Progress >= 1.0
}

// Stalled reports whether the torrent has been seedless longer than timeout.
func (t *Torrent) Stalled(now time.Time, timeout time.Duration) bool {
	switch t.State {
	case StateError, StateMissingFiles:
		return true
	case StateStalledDL, StateMetaDL:
		return t.NumSeeds == 0 && now.Sub(t.AddedOn) > timeout
	}
	return false
}

// AddOptions carry per-torrent queueing options.
type AddOptions struct {
	Category string
	SavePath string
}

// Engine is the BT-engine contract.
type Engine interface {
	// List returns the engine's torrents, optionally filtered by category.
	List(ctx context.Context, category string) ([]Torrent, error)

	// AddMagnet queues a magnet link.
	AddMagnet(ctx context.Context, magnet string, opts AddOptions) error

	// DeleteTorrent removes a torrent, optionally with its data.
	DeleteTorrent(ctx context.Context, hash string, deleteFiles bool) error

	// CreateCategory registers a category; creating an existing one is not
	// an error.
	CreateCategory(ctx context.Context, name string) error
}

var categoryUnsafe = regexp.MustCompile(`[\\/:*?"<>|]`)

// SanitizeCategory derives an engine-safe category name from a title.
func SanitizeCategory(title string) string {
	clean := categoryUnsafe.ReplaceAllString(title, " ")
	clean = strings.Join(strings.Fields(clean), " ")
	if len(clean) > 64 {
		clean = strings.TrimSpace(clean[:64])
	}
	if clean == "" {
		return "kumoarr"
	}
	return clean
}
