// Package events is the process-wide broadcast channel. Producers never
// block; slow subscribers lose the oldest buffered events and can inspect a
// lag counter. The log sink and the websocket hub are the standing consumers.
package events

import (
	"strings"
	"time"
)

// Type tags an event.
type Type string

const (
	ScanStarted           Type = "scan:started"
	ScanFinished          Type = "scan:finished"
	ScanProgress          Type = "scan:progress"
	LibraryScanProgress   Type = "library_scan:progress"
	DownloadStarted       Type = "download:started"
	DownloadFinished      Type = "download:finished"
	DownloadProgress      Type = "download:progress"
	ImportStarted         Type = "import:started"
	ImportFinished        Type = "import:finished"
	RssCheckStarted       Type = "rss:started"
	RssCheckProgress      Type = "rss:progress"
	RssCheckFinished      Type = "rss:finished"
	ScanFolderStarted     Type = "scan_folder:started"
	ScanFolderFinished    Type = "scan_folder:finished"
	RenameStarted         Type = "rename:started"
	RenameFinished        Type = "rename:finished"
	SearchMissingStarted  Type = "search_missing:started"
	SearchMissingFinished Type = "search_missing:finished"
	SystemStatus          Type = "system:status"
	Info                  Type = "info"
	Error                 Type = "error"
)

// Event is one notification on the bus. Data carries variant-specific
// payload fields (anime id, episode, torrent hash, progress percent).
type Event struct {
	Type    Type           `json:"type"`
	Message string         `json:"message,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
	Time    time.Time      `json:"time"`
}

// New builds an event stamped with the current time.
func New(t Type, message string, data map[string]any) Event {
	return Event{Type: t, Message: message, Data: data, Time: time.Now().UTC()}
}

// IsProgress reports whether the event is a high-frequency progress tick.
// Progress events are never persisted to the log.
func (e Event) IsProgress() bool {
	return strings.HasSuffix(string(e.Type), ":progress")
}
