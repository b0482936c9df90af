package downloader

import (
	"strings"
	"testing"
	"time"
)

func TestTorrentComplete(t *testing.T) {
	if (&Torrent{Progress: 0.999}).Complete() {
		t.Error("0.999 should not be complete")
	}
	if !(&Torrent{Progress: 1.0}).Complete() {
		t.Error("1.0 should be complete")
	}
}

func TestTorrentStalled(t *testing.T) {
	now := time.Now()
	timeout := 15 * time.Minute

	tests := []struct {
		name string
		tor  Torrent
		want bool
	}{
		{
			name: "error state is always stalled",
			tor:  Torrent{State: StateError, NumSeeds: 10, AddedOn: now},
			want: true,
		},
		{
			name: "missing files is always stalled",
			tor:  Torrent{State: StateMissingFiles, AddedOn: now},
			want: true,
		},
		{
			name: "seedless past the timeout",
			tor:  Torrent{State: StateStalledDL, NumSeeds: 0, AddedOn: now.Add(-time.Hour)},
			want: true,
		},
		{
			name: "seedless but still inside the grace period",
			tor:  Torrent{State: StateStalledDL, NumSeeds: 0, AddedOn: now.Add(-time.Minute)},
			want: false,
		},
		{
			name: "stalled state with live seeds",
			tor:  Torrent{State: StateStalledDL, NumSeeds: 3, AddedOn: now.Add(-time.Hour)},
			want: false,
		},
		{
			name: "metadata fetch hung past the timeout",
			tor:  Torrent{State: StateMetaDL, NumSeeds: 0, AddedOn: now.Add(-time.Hour)},
			want: true,
		},
		{
			name: "actively downloading never stalls",
			tor:  Torrent{State: StateDownloading, NumSeeds: 0, AddedOn: now.Add(-24 * time.Hour)},
			want: false,
		},
		{
			name: "paused never stalls",
			tor:  Torrent{State: StatePausedDL, NumSeeds: 0, AddedOn: now.Add(-24 * time.Hour)},
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.tor.Stalled(now, timeout); got != tt.want {
				t.Errorf("Stalled() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSanitizeCategory(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Sousou no Frieren", "Sousou no Frieren"},
		{"Re:Zero", "Re Zero"},
		{"Fate/Zero", "Fate Zero"},
		{`What "If"?`, "What If"},
		{"a    b\tc", "a b c"},
		{"", "kumoarr"},
		{`\/:*?"<>|`, "kumoarr"},
	}
	for _, tt := range tests {
		if got := SanitizeCategory(tt.in); got != tt.want {
			t.Errorf("SanitizeCategory(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	long := strings.Repeat("long title ", 10)
	got := SanitizeCategory(long)
	if len(got) > 64 {
		t.Errorf("len = %d, want <= 64", len(got))
	}
	if strings.HasSuffix(got, " ") {
		t.Error("truncated category should not end with a space")
	}
}
