package pathutil

import (
	"testing"
	"time"
)

func TestFileNameRoundTrip(t *testing.T) {
	ts := time.Unix(1700000000, 0)

	tests := []struct {
		mission string
		id      string
		kind    Kind
		want    string
	}{
		{"sentinel-2", "abc-123", KindFull, "sentinel_2_abc-123_1700000000.zip"},
		{"sentinel-2", "abc-123", KindQuicklook, "sentinel_2_abc-123_1700000000_quicklook.jpg"},
		{"sentinel-1", "def", KindCompressed, "sentinel_1_def_1700000000_compressed.zip"},
		{"sentinel-5p", "xyz", KindFull, "sentinel_5p_xyz_1700000000.zip"},
	}

	for _, tt := range tests {
		name := FileName(BaseName(tt.mission, tt.id, ts), tt.kind)
		if name != tt.want {
			t.Errorf("FileName(%s, %s, %s) = %q, want %q", tt.mission, tt.id, tt.kind, name, tt.want)
			continue
		}
		if got := KindOf(name); got != tt.kind {
			t.Errorf("KindOf(%q) = %q, want %q", name, got, tt.kind)
		}
		if got := MissionOf(name); got != tt.mission {
			t.Errorf("MissionOf(%q) = %q, want %q", name, got, tt.mission)
		}
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		want Kind
	}{
		{"sentinel_2_abc_1700000000.zip", KindFull},
		{"sentinel_2_abc_1700000000_quicklook.jpg", KindQuicklook},
		{"sentinel_2_abc_1700000000_compressed.zip", KindCompressed},
		{"preview.JPG", KindQuicklook},
		{"notes.txt", KindOther},
		{"archive.ZIP", KindFull},
	}

	for _, tt := range tests {
		if got := KindOf(tt.name); got != tt.want {
			t.Errorf("KindOf(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestMissionOf(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"sentinel_1_abc.zip", "sentinel-1"},
		{"sentinel_5p_abc.zip", "sentinel-5p"},
		{"SENTINEL_6_abc.zip", "sentinel-6"},
		{"random_file.zip", "unknown"},
	}

	for _, tt := range tests {
		if got := MissionOf(tt.name); got != tt.want {
			t.Errorf("MissionOf(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestParseKind(t *testing.T) {
	for _, valid := range []string{"full", "quicklook", "compressed", "FULL"} {
		if _, err := ParseKind(valid); err != nil {
			t.Errorf("ParseKind(%q) error = %v", valid, err)
		}
	}
	for _, invalid := range []string{"", "preview", "zip"} {
		if _, err := ParseKind(invalid); err == nil {
			t.Errorf("ParseKind(%q) should error", invalid)
		}
	}
}
