package playlist

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writePlaylist(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write playlist: %v", err)
	}
	return path
}

func TestRead_ValidPlaylist(t *testing.T) {
	dir := t.TempDir()
	path := writePlaylist(t, dir, "cam-01.m3u8", `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:4
#EXT-X-MEDIA-SEQUENCE:5
#EXTINF:4.000,
cam-01-5.ts
#EXTINF:4.000,
cam-01-6.ts
#EXTINF:4.000,
cam-01-7.ts
`)

	snap, err := Read(path)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if snap.StreamBase != "cam-01" {
		t.Errorf("Expected stream base cam-01, got %q", snap.StreamBase)
	}
	if snap.Path != path {
		t.Errorf("Expected path %s, got %s", path, snap.Path)
	}
	if len(snap.Sequences) != 3 {
		t.Fatalf("Expected 3 sequences, got %d", len(snap.Sequences))
	}
	for i, want := range []uint64{5, 6, 7} {
		if snap.Sequences[i] != want {
			t.Errorf("Sequences[%d] = %d, want %d", i, snap.Sequences[i], want)
		}
	}
	if snap.MinSequence != 5 {
		t.Errorf("Expected min sequence 5, got %d", snap.MinSequence)
	}
	if snap.MediaSequence != 5 {
		t.Errorf("Expected media sequence 5, got %d", snap.MediaSequence)
	}
}

func TestDecode_MinimumIsNotFirst(t *testing.T) {
	snap, err := Decode(strings.NewReader(`#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:4
#EXTINF:4.000,
live-12.ts
#EXTINF:4.000,
live-9.ts
#EXTINF:4.000,
live-10.ts
`))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if snap.MinSequence != 9 {
		t.Errorf("Expected min sequence 9, got %d", snap.MinSequence)
	}
}

func TestDecode_AbsoluteURIs(t *testing.T) {
	snap, err := Decode(strings.NewReader(`#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:5
#EXTINF:4.0,
https://example.com/hls/live-100.ts
#EXTINF:4.0,
https://example.com/hls/live-101.ts?token=x
`))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if snap.MinSequence != 100 {
		t.Errorf("Expected min sequence 100, got %d", snap.MinSequence)
	}
}

func TestDecode_NoSegments(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"target duration only", "#EXTM3U\n#EXT-X-TARGETDURATION:4\n"},
		{"ended without segments", "#EXTM3U\n#EXT-X-VERSION:3\n#EXT-X-TARGETDURATION:4\n#EXT-X-ENDLIST\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.content))
			if !errors.Is(err, ErrNoSegments) {
				t.Errorf("Expected ErrNoSegments, got %v", err)
			}
			if !errors.Is(err, ErrRead) {
				t.Errorf("Expected error wrapping ErrRead, got %v", err)
			}
		})
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{
			name: "empty playlist",
			content: `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:4
#EXT-X-ENDLIST
`,
			wantErr: ErrRead,
		},
		{
			name:    "invalid m3u8",
			content: "not a valid m3u8 file",
			wantErr: ErrRead,
		},
		{
			name: "master playlist",
			content: `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=1280000
low.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=2560000
high.m3u8
`,
			wantErr: ErrRead,
		},
		{
			name: "unparseable segment name",
			content: `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:10
#EXTINF:9.9,
segment001.ts
`,
			wantErr: ErrRead,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.content))
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected error wrapping %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestRead_MissingFile(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "missing.m3u8"))
	if !errors.Is(err, ErrRead) {
		t.Fatalf("Expected ErrRead, got %v", err)
	}
}

func TestFileLookup(t *testing.T) {
	dir := t.TempDir()
	writePlaylist(t, dir, "a.m3u8", `#EXTM3U
#EXT-X-TARGETDURATION:2
#EXTINF:2.0,
a-3.ts
`)
	writePlaylist(t, dir, "broken.m3u8", "garbage")

	var lookup FileLookup

	snap, found, err := lookup.Lookup(dir, "a")
	if err != nil || !found {
		t.Fatalf("Lookup(a) = found %v, err %v", found, err)
	}
	if snap.MinSequence != 3 {
		t.Errorf("Expected min sequence 3, got %d", snap.MinSequence)
	}

	_, found, err = lookup.Lookup(dir, "missing")
	if err != nil || found {
		t.Errorf("Lookup(missing) = found %v, err %v; want not found", found, err)
	}

	_, found, err = lookup.Lookup(dir, "broken")
	if !found || err == nil {
		t.Errorf("Lookup(broken) = found %v, err %v; want found with error", found, err)
	}
}

func TestFileLookup_UnreadablePlaylist(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "a.m3u8"), 0o755); err != nil {
		t.Fatalf("failed to create directory: %v", err)
	}

	_, found, err := FileLookup{}.Lookup(dir, "a")
	if !found {
		t.Error("an existing playlist path must be reported as found")
	}
	if !errors.Is(err, ErrRead) {
		t.Errorf("Expected ErrRead, got %v", err)
	}
}

func TestFileLookup_EmptyPlaylist(t *testing.T) {
	dir := t.TempDir()
	writePlaylist(t, dir, "a.m3u8", "#EXTM3U\n#EXT-X-TARGETDURATION:2\n")

	_, found, err := FileLookup{}.Lookup(dir, "a")
	if !found || !errors.Is(err, ErrNoSegments) {
		t.Errorf("Lookup(a) = found %v, err %v; want found with ErrNoSegments", found, err)
	}
}
