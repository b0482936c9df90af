package importer

import (
	"fmt"
	"regexp"
	"strings"
)

// TokenContext contains the metadata available for naming-template
// substitution.
type TokenContext struct {
	SeriesTitle      string
	Season           int
	Episode          int
	EpisodeTitle     string
	Quality          string
	Group            string
	OriginalFilename string
	Year             int
	Resolution       string
	Codec            string
	Duration         string
	Audio            string
}

// tokenPattern matches tokens like {Series Title} and {Episode:02}.
var tokenPattern = regexp.MustCompile(`\{([A-Za-z ]+)(?::(\d{2}))?\}`)

// Render substitutes the template's tokens from ctx. Token values are
// sanitised individually so directory separators in the template survive.
func Render(template string, ctx TokenContext) string {
	out := tokenPattern.ReplaceAllStringFunc(template, func(raw string) string {
		m := tokenPattern.FindStringSubmatch(raw)
		name, pad := m[1], m[2]
		value := resolveToken(name, pad, ctx)
		return sanitizeComponent(value)
	})
	return cleanupPath(out)
}

func resolveToken(name, pad string, ctx TokenContext) string {
	switch name {
	case "Series Title":
		return ctx.SeriesTitle
	case "Season":
		return padNumber(ctx.Season, pad)
	case "Episode":
		return padNumber(ctx.Episode, pad)
	case "Title":
		return ctx.EpisodeTitle
	case "Quality":
		return ctx.Quality
	case "Group":
		return ctx.Group
	case "Original Filename":
		return ctx.OriginalFilename
	case "Year":
		if ctx.Year == 0 {
			return ""
		}
		return fmt.Sprintf("%d", ctx.Year)
	case "Resolution":
		return ctx.Resolution
	case "Codec":
		return ctx.Codec
	case "Duration":
		return ctx.Duration
	case "Audio":
		return ctx.Audio
	}
	return ""
}

func padNumber(n int, pad string) string {
	if pad == "" {
		return fmt.Sprintf("%d", n)
	}
	return fmt.Sprintf("%0*d", len(pad), n)
}

var componentUnsafe = regexp.MustCompile(`[\\/:*?"<>|]`)

// sanitizeComponent strips path-hostile characters from a single token value
// and collapses whitespace runs.
func sanitizeComponent(s string) string {
	s = componentUnsafe.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), " ")
}

var (
	emptyBrackets = regexp.MustCompile(`\[\s*\]|\(\s*\)`)
	spaceRuns     = regexp.MustCompile(`[ \t]{2,}`)
)

// cleanupPath runs the post-substitution cleanup passes until fixpoint:
// collapse empty bracket pairs, normalise whitespace, trim dangling " - "
// separators from segment edges.
func cleanupPath(p string) string {
	for {
		next := emptyBrackets.ReplaceAllString(p, "")
		next = spaceRuns.ReplaceAllString(next, " ")

		segments := strings.Split(next, "/")
		for i, seg := range segments {
			seg = strings.TrimSpace(seg)
			seg = strings.TrimPrefix(seg, "- ")
			seg = strings.TrimSuffix(seg, " -")
			segments[i] = strings.TrimSpace(seg)
		}
		next = strings.Join(segments, "/")

		if next == p {
			return p
		}
		p = next
	}
}
