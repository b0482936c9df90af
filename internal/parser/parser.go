// Package parser turns release filenames into structured metadata. Parsing
// is pure: the same input always yields the same result.
package parser

import (
	"math"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/kumoarr/kumoarr/internal/quality"
)

// Parsed is the result of parsing a release filename.
type Parsed struct {
	Title      string         `json:"title"`
	Episode    float64        `json:"episode"`
	HasEpisode bool           `json:"hasEpisode"`
	Season     int            `json:"season,omitempty"`
	Group      string         `json:"group,omitempty"`
	Resolution int            `json:"resolution,omitempty"`
	Source     quality.Source `json:"source,omitempty"`
	Version    int            `json:"version,omitempty"`
}

// EpisodeTruncated collapses special-episode markers (6.5) to their base
// integer for status lookups.
func (p Parsed) EpisodeTruncated() int {
	return int(math.Floor(p.Episode))
}

// Quality derives the ranked quality from the parsed source and resolution.
func (p Parsed) Quality() quality.Quality {
	return quality.FromSourceResolution(p.Source, p.Resolution)
}

var (
	groupPattern = regexp.MustCompile(`^\[([^\]]+)\]`)

	// Episode tokens, tried right-most first: " - 03", " - 06.5", "E07", "EP07".
	episodeDashPattern = regexp.MustCompile(` - (\d{1,4}(?:\.\d{1,2})?)(?:\D|$)`)
	episodeEPattern    = regexp.MustCompile(`(?i)\bEP?(\d{1,4})\b`)

	// Combined "S02E07" token; neither bare pattern matches inside it.
	seasonEpisodePattern = regexp.MustCompile(`(?i)\bS(\d{1,2})[ ._]?E(\d{1,4})\b`)

	seasonPattern        = regexp.MustCompile(`(?i)\bS(\d{1,2})\b`)
	seasonSpelledPattern = regexp.MustCompile(`(?i)\bSeason[ ._](\d{1,2})\b`)

	resolutionPattern = regexp.MustCompile(`(?i)\b(2160p|1080p|720p|576p|480p|4K)\b`)

	// "v2" either standalone or glued to the episode number ("12v2").
	versionPattern = regexp.MustCompile(`(?i)(?:^|[ \d])v(\d)\b`)

	// Source patterns in priority order; the first match wins.
	sourcePatterns = []struct {
		source  quality.Source
		pattern *regexp.Regexp
	}{
		{quality.SourceRemux, regexp.MustCompile(`(?i)\bRemux\b`)},
		{quality.SourceBluRay, regexp.MustCompile(`(?i)\b(BluRay|Blu-ray|BDRip|BD)\b`)},
		{quality.SourceWebRip, regexp.MustCompile(`(?i)\bWEBRip\b`)},
		{quality.SourceWebDL, regexp.MustCompile(`(?i)\b(WEB-DL|WEBDL|WEB|AMZN|CR|DSNP|NF|HMAX)\b`)},
		{quality.SourceHDTV, regexp.MustCompile(`(?i)\bHDTV\b`)},
		{quality.SourceDVD, regexp.MustCompile(`(?i)\bDVD\b`)},
	}

	separatorPattern = regexp.MustCompile(`[._]+`)
	spacePattern     = regexp.MustCompile(`\s+`)

	videoExtensions = map[string]bool{
		".mkv": true, ".mp4": true, ".avi": true, ".m4v": true,
		".mov": true, ".wmv": true, ".ts": true, ".webm": true,
	}
)

// IsVideoFile reports whether the filename carries a known video extension.
func IsVideoFile(name string) bool {
	return videoExtensions[strings.ToLower(filepath.Ext(name))]
}

// Parse parses a release filename. It never fails; fields that cannot be
// derived are left at their zero values.
func Parse(filename string) Parsed {
	name := strings.TrimSuffix(filename, filepath.Ext(filename))
	// Many groups use dots or underscores as separators.
	name = separatorPattern.ReplaceAllString(name, " ")

	var p Parsed

	if m := groupPattern.FindStringSubmatch(name); m != nil {
		p.Group = strings.TrimSpace(m[1])
		name = strings.TrimSpace(name[len(m[0]):])
	}

	if m := seasonEpisodePattern.FindStringSubmatch(name); m != nil {
		p.Season, _ = strconv.Atoi(m[1])
		if v, err := strconv.ParseFloat(m[2], 64); err == nil {
			p.Episode, p.HasEpisode = v, true
		}
	}
	if !p.HasEpisode {
		p.Episode, p.HasEpisode = parseEpisode(name)
	}

	if p.Season == 0 {
		if m := seasonPattern.FindStringSubmatch(name); m != nil {
			p.Season, _ = strconv.Atoi(m[1])
		} else if m := seasonSpelledPattern.FindStringSubmatch(name); m != nil {
			p.Season, _ = strconv.Atoi(m[1])
		}
	}

	if m := resolutionPattern.FindStringSubmatch(name); m != nil {
		if strings.EqualFold(m[1], "4K") {
			p.Resolution = 2160
		} else {
			p.Resolution, _ = strconv.Atoi(strings.TrimSuffix(strings.ToLower(m[1]), "p"))
		}
	}

	for _, sp := range sourcePatterns {
		if sp.pattern.MatchString(name) {
			p.Source = sp.source
			break
		}
	}

	if m := versionPattern.FindStringSubmatch(name); m != nil {
		p.Version, _ = strconv.Atoi(m[1])
	}

	p.Title = cleanTitle(titlePortion(name, p))

	return p
}

// ParseQuality derives the ranked quality straight from a release title.
func ParseQuality(title string) quality.Quality {
	return Parse(title).Quality()
}

// parseEpisode finds the right-most plausible episode token.
func parseEpisode(name string) (float64, bool) {
	// Prefer the " - NN" form, right-most occurrence.
	if ms := episodeDashPattern.FindAllStringSubmatch(name, -1); len(ms) > 0 {
		for i := len(ms) - 1; i >= 0; i-- {
			if v, err := strconv.ParseFloat(ms[i][1], 64); err == nil && v <= 9999 {
				return v, true
			}
		}
	}
	if ms := episodeEPattern.FindAllStringSubmatch(name, -1); len(ms) > 0 {
		for i := len(ms) - 1; i >= 0; i-- {
			if v, err := strconv.ParseFloat(ms[i][1], 64); err == nil && v <= 9999 {
				return v, true
			}
		}
	}
	return 0, false
}

// titlePortion cuts the name at the episode token, which in practice ends
// the title for every canonical release layout.
func titlePortion(name string, p Parsed) string {
	if loc := episodeDashPattern.FindStringIndex(name); loc != nil {
		return name[:loc[0]]
	}
	if loc := seasonEpisodePattern.FindStringIndex(name); loc != nil {
		return name[:loc[0]]
	}
	if p.HasEpisode {
		if loc := episodeEPattern.FindStringIndex(name); loc != nil {
			return name[:loc[0]]
		}
	}
	if loc := resolutionPattern.FindStringIndex(name); loc != nil {
		return name[:loc[0]]
	}
	return name
}

func cleanTitle(s string) string {
	// Strip bracketed and parenthesised tags left in the title portion, plus
	// any bracket the cut point split open.
	s = regexp.MustCompile(`\[[^\]]*\]|\([^)]*\)`).ReplaceAllString(s, " ")
	s = seasonPattern.ReplaceAllString(s, " ")
	s = strings.TrimRight(s, "([ ")
	s = spacePattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(s), "-"))
}

// Title-suffix season markers, checked against catalogue titles rather than
// filenames.
var titleSeasonSuffixes = []struct {
	pattern *regexp.Regexp
	season  int
}{
	{regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th) Season\b`), 0}, // numbered, season from capture
	{regexp.MustCompile(`(?i)\bPart (\d{1,2})\b`), 0},
	{regexp.MustCompile(`\bIII\b`), 3},
	{regexp.MustCompile(`\bII\b`), 2},
	{regexp.MustCompile(`(?i)\bSeason (\d{1,2})\b`), 0},
}

// InferSeason derives a season number from a catalogue title's suffix
// (" 2nd Season", " II", " Part 2"). Returns 0 when the title carries no
// season marker.
func InferSeason(title string) int {
	for _, ts := range titleSeasonSuffixes {
		m := ts.pattern.FindStringSubmatch(title)
		if m == nil {
			continue
		}
		if ts.season != 0 {
			return ts.season
		}
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n
		}
	}
	return 0
}
