package indexer

import (
	"net/url"
	"regexp"
	"strings"
)

var infoHashPattern = regexp.MustCompile(`^[0-9a-fA-F]{40}$`)

// Trackers announced on every built magnet link.
var defaultTrackers = []string{
	"http://nyaa.tracker.wf:7777/announce",
	"udp://open.stealth.si:80/announce",
	"udp://tracker.opentrackr.org:1337/announce",
	"udp://exodus.desync.com:6969/announce",
	"udp://tracker.torrent.eu.org:451/announce",
}

// ValidInfoHash reports whether s is a 40-char hex BitTorrent v1 info hash.
func ValidInfoHash(s string) bool {
	return infoHashPattern.MatchString(s)
}

// Magnet builds a magnet link for an info hash with the default tracker set.
func Magnet(infoHash, displayName string) string {
	var b strings.Builder
	b.WriteString("magnet:?xt=urn:btih:")
	b.WriteString(strings.ToLower(infoHash))
	if displayName != "" {
		b.WriteString("&dn=")
		b.WriteString(url.QueryEscape(displayName))
	}
	for _, tr := range defaultTrackers {
		b.WriteString("&tr=")
		b.WriteString(url.QueryEscape(tr))
	}
	return b.String()
}
