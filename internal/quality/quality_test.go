package quality

import "testing"

func TestLadderIsOrdered(t *testing.T) {
	for i, q := range Qualities {
		if q.ID != q.Rank {
			t.Errorf("quality %q: ID %d != Rank %d", q.Name, q.ID, q.Rank)
		}
		if i > 0 && q.Rank <= Qualities[i-1].Rank {
			t.Errorf("quality %q: rank %d not strictly after %q (%d)",
				q.Name, q.Rank, Qualities[i-1].Name, Qualities[i-1].Rank)
		}
	}
	if Qualities[0].Name != "Remux-2160p" {
		t.Errorf("best quality = %q, want Remux-2160p", Qualities[0].Name)
	}
	if last := Qualities[len(Qualities)-1]; last.Name != "SDTV-480p" {
		t.Errorf("worst quality = %q, want SDTV-480p", last.Name)
	}
}

func TestByID(t *testing.T) {
	if q := ByID(6); q.Name != "BluRay-1080p" {
		t.Errorf("ByID(6) = %q, want BluRay-1080p", q.Name)
	}
	if q := ByID(999); !q.IsUnknown() {
		t.Errorf("ByID(999) = %q, want Unknown", q.Name)
	}
	if q := ByID(0); !q.IsUnknown() {
		t.Errorf("ByID(0) = %q, want Unknown", q.Name)
	}
}

func TestFromSourceResolution(t *testing.T) {
	tests := []struct {
		source     Source
		resolution int
		wantID     int
	}{
		{SourceBluRay, 1080, 6},
		{SourceWebDL, 2160, 3},
		{SourceHDTV, 720, 13},
		// No 540p BluRay entry: degrade to the worst entry for the source.
		{SourceBluRay, 540, 9},
		{SourceWebDL, 360, 11},
		// Unknown source falls through to Unknown regardless of resolution.
		{SourceUnknown, 1080, UnknownRank},
		{Source("VHS"), 480, UnknownRank},
	}
	for _, tt := range tests {
		q := FromSourceResolution(tt.source, tt.resolution)
		if q.ID != tt.wantID {
			t.Errorf("FromSourceResolution(%q, %d).ID = %d, want %d",
				tt.source, tt.resolution, q.ID, tt.wantID)
		}
	}
}

func TestMeetsCutoff(t *testing.T) {
	cutoff := ByID(6) // BluRay-1080p
	if !ByID(5).MeetsCutoff(cutoff) {
		t.Error("Remux-1080p should meet a BluRay-1080p cutoff")
	}
	if !ByID(6).MeetsCutoff(cutoff) {
		t.Error("BluRay-1080p should meet its own cutoff")
	}
	if ByID(7).MeetsCutoff(cutoff) {
		t.Error("WEBDL-1080p should not meet a BluRay-1080p cutoff")
	}
	if Unknown.MeetsCutoff(cutoff) {
		t.Error("Unknown should never meet a cutoff")
	}
}

func TestDefaultProfile(t *testing.T) {
	p := DefaultProfile()
	if p.CutoffID != 6 {
		t.Errorf("CutoffID = %d, want 6", p.CutoffID)
	}
	if !p.UpgradeAllowed {
		t.Error("default profile should allow upgrades")
	}
	for _, q := range Qualities {
		if !p.Allows(q.ID) {
			t.Errorf("default profile should allow %q", q.Name)
		}
	}
	if p.Allows(UnknownRank) {
		t.Error("default profile should not allow Unknown")
	}
}

func TestWithinSizeBand(t *testing.T) {
	min, max := int64(100), int64(1000)
	p := Profile{MinSize: &min, MaxSize: &max}

	if !p.WithinSizeBand(500) {
		t.Error("500 should be inside [100, 1000]")
	}
	if p.WithinSizeBand(50) {
		t.Error("50 should be below the band")
	}
	if p.WithinSizeBand(5000) {
		t.Error("5000 should be above the band")
	}
	// Unknown size is never rejected on size alone.
	if !p.WithinSizeBand(0) {
		t.Error("zero size should pass")
	}
	unbounded := Profile{}
	if !unbounded.WithinSizeBand(1 << 40) {
		t.Error("unbounded profile should accept any size")
	}
}
