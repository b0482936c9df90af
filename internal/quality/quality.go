// Package quality defines the fixed quality ladder and profile semantics
// used by the decision engine and the importer.
package quality

// Source identifies where a release was captured from.
type Source string

const (
	SourceRemux   Source = "Remux"
	SourceBluRay  Source = "BluRay"
	SourceWebDL   Source = "WEB-DL"
	SourceWebRip  Source = "WEBRip"
	SourceHDTV    Source = "HDTV"
	SourceDVD     Source = "DVD"
	SourceSDTV    Source = "SDTV"
	SourceUnknown Source = ""
)

// Quality is an ordered (source, resolution) pair. Rank is the sort key:
// smaller is better. The ID of a quality equals its rank, so the table is
// stable across releases and safe to persist.
type Quality struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	Source     Source `json:"source"`
	Resolution int    `json:"resolution"`
	Rank       int    `json:"rank"`
}

// UnknownRank is the rank assigned to unparseable qualities.
const UnknownRank = 99

// Qualities is the fixed ladder, best first.
var Qualities = []Quality{
	{ID: 1, Name: "Remux-2160p", Source: SourceRemux, Resolution: 2160, Rank: 1},
	{ID: 2, Name: "BluRay-2160p", Source: SourceBluRay, Resolution: 2160, Rank: 2},
	{ID: 3, Name: "WEBDL-2160p", Source: SourceWebDL, Resolution: 2160, Rank: 3},
	{ID: 4, Name: "WEBRip-2160p", Source: SourceWebRip, Resolution: 2160, Rank: 4},
	{ID: 5, Name: "Remux-1080p", Source: SourceRemux, Resolution: 1080, Rank: 5},
	{ID: 6, Name: "BluRay-1080p", Source: SourceBluRay, Resolution: 1080, Rank: 6},
	{ID: 7, Name: "WEBDL-1080p", Source: SourceWebDL, Resolution: 1080, Rank: 7},
	{ID: 8, Name: "WEBRip-1080p", Source: SourceWebRip, Resolution: 1080, Rank: 8},
	{ID: 9, Name: "BluRay-720p", Source: SourceBluRay, Resolution: 720, Rank: 9},
	{ID: 10, Name: "WEBDL-720p", Source: SourceWebDL, Resolution: 720, Rank: 10},
	{ID: 11, Name: "WEBRip-720p", Source: SourceWebRip, Resolution: 720, Rank: 11},
	{ID: 12, Name: "HDTV-1080p", Source: SourceHDTV, Resolution: 1080, Rank: 12},
	{ID: 13, Name: "HDTV-720p", Source: SourceHDTV, Resolution: 720, Rank: 13},
	{ID: 14, Name: "DVD-576p", Source: SourceDVD, Resolution: 576, Rank: 14},
	{ID: 15, Name: "SDTV-480p", Source: SourceSDTV, Resolution: 480, Rank: 15},
}

// Unknown is the fallback quality for releases the parser cannot place.
var Unknown = Quality{ID: UnknownRank, Name: "Unknown", Source: SourceUnknown, Rank: UnknownRank}

var (
	byID        map[int]Quality
	bySourceRes map[Source]map[int]Quality
)

func init() {
	byID = make(map[int]Quality, len(Qualities))
	bySourceRes = make(map[Source]map[int]Quality)
	for _, q := range Qualities {
		byID[q.ID] = q
		if bySourceRes[q.Source] == nil {
			bySourceRes[q.Source] = make(map[int]Quality)
		}
		bySourceRes[q.Source][q.Resolution] = q
	}
}

// ByID returns the quality with the given ID, or Unknown.
func ByID(id int) Quality {
	if q, ok := byID[id]; ok {
		return q
	}
	return Unknown
}

// FromSourceResolution maps a parsed (source, resolution) pair onto the
// ladder. Pairs outside the table degrade to the nearest entry for the same
// source, then to Unknown.
func FromSourceResolution(src Source, resolution int) Quality {
	if m, ok := bySourceRes[src]; ok {
		if q, ok := m[resolution]; ok {
			return q
		}
		// No exact resolution for this source: pick the worst entry of the
		// source so an odd resolution still ranks within its source band.
		best := Unknown
		for _, q := range m {
			if best.Rank == UnknownRank || q.Rank > best.Rank {
				best = q
			}
		}
		return best
	}
	return Unknown
}

// MeetsCutoff reports whether q is at least as good as the cutoff quality.
func (q Quality) MeetsCutoff(cutoff Quality) bool {
	return q.Rank <= cutoff.Rank
}

// IsUnknown reports whether q is the Unknown fallback.
func (q Quality) IsUnknown() bool {
	return q.Rank >= UnknownRank
}
