// Package mediainfo probes media files with ffprobe. Probe failures are
// non-fatal for callers: imports proceed without media info.
package mediainfo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"time"
)

// MediaInfo is the subset of probe output recorded on an episode status row.
type MediaInfo struct {
	Resolution  string   `json:"resolution,omitempty"`
	Codec       string   `json:"codec,omitempty"`
	AudioCodecs []string `json:"audioCodecs,omitempty"`
	Duration    float64  `json:"duration,omitempty"`
}

// Prober probes a media file. The importer accepts any implementation so
// tests can substitute a fake.
type Prober interface {
	Probe(ctx context.Context, path string) (*MediaInfo, error)
}

// FFprobe probes files by shelling out to ffprobe.
type FFprobe struct {
	// Binary overrides the ffprobe executable path. Empty means PATH lookup.
	Binary string
}

type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
}

// Probe runs ffprobe against path with a 30 second timeout.
func (f *FFprobe) Probe(ctx context.Context, path string) (*MediaInfo, error) {
	bin := f.Binary
	if bin == "" {
		found, err := exec.LookPath("ffprobe")
		if err != nil {
			return nil, fmt.Errorf("ffprobe not found: %w", err)
		}
		bin = found
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, bin,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w: %s", err, stderr.String())
	}

	return parseFFprobeJSON(stdout.Bytes())
}

func parseFFprobeJSON(data []byte) (*MediaInfo, error) {
	var out ffprobeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}

	info := &MediaInfo{}
	if out.Format.Duration != "" {
		if d, err := strconv.ParseFloat(out.Format.Duration, 64); err == nil {
			info.Duration = d
		}
	}

	for _, s := range out.Streams {
		switch s.CodecType {
		case "video":
			if info.Codec == "" {
				info.Codec = s.CodecName
			}
			if info.Resolution == "" && s.Height > 0 {
				info.Resolution = strconv.Itoa(s.Height) + "p"
			}
		case "audio":
			info.AudioCodecs = append(info.AudioCodecs, s.CodecName)
		}
	}

	return info, nil
}
