package segment

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name       string
		filename   string
		wantBase   string
		wantSeq    uint64
		shouldFail bool
	}{
		{
			name:     "hyphenated stream base splits on last dash",
			filename: "cam-01-000123.ts",
			wantBase: "cam-01",
			wantSeq:  123,
		},
		{
			name:     "simple name",
			filename: "a-1.ts",
			wantBase: "a",
			wantSeq:  1,
		},
		{
			name:     "full path",
			filename: "/tmp/hls/live-42.ts",
			wantBase: "live",
			wantSeq:  42,
		},
		{
			name:     "sequence zero",
			filename: "stream-0.ts",
			wantBase: "stream",
			wantSeq:  0,
		},
		{
			name:       "no dash",
			filename:   "nodash.ts",
			shouldFail: true,
		},
		{
			name:       "non-numeric suffix",
			filename:   "stream-abc.ts",
			shouldFail: true,
		},
		{
			name:     "double dash keeps trailing dash in base",
			filename: "stream--5.ts",
			wantBase: "stream-",
			wantSeq:  5,
		},
		{
			name:       "signed suffix",
			filename:   "stream-+5.ts",
			shouldFail: true,
		},
		{
			name:       "empty suffix",
			filename:   "stream-.ts",
			shouldFail: true,
		},
		{
			name:       "empty stream base",
			filename:   "-12.ts",
			shouldFail: true,
		},
		{
			name:       "wrong extension",
			filename:   "stream-12.mp4",
			shouldFail: true,
		},
		{
			name:       "invalid utf-8",
			filename:   "str\xffeam-12.ts",
			shouldFail: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seg, err := Parse(tt.filename)
			if tt.shouldFail {
				if err == nil {
					t.Fatalf("Parse(%q) expected error, got %+v", tt.filename, seg)
				}
				if !errors.Is(err, ErrInvalidName) {
					t.Errorf("Parse(%q) error %v does not wrap ErrInvalidName", tt.filename, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) unexpected error: %v", tt.filename, err)
			}
			if seg.StreamBase != tt.wantBase {
				t.Errorf("StreamBase = %q, want %q", seg.StreamBase, tt.wantBase)
			}
			if seg.Sequence != tt.wantSeq {
				t.Errorf("Sequence = %d, want %d", seg.Sequence, tt.wantSeq)
			}
			if seg.Path != tt.filename {
				t.Errorf("Path = %q, want %q", seg.Path, tt.filename)
			}
		})
	}
}

func TestParseURI(t *testing.T) {
	tests := []struct {
		name       string
		uri        string
		wantBase   string
		wantSeq    uint64
		shouldFail bool
	}{
		{"relative", "cam-01-000123.ts", "cam-01", 123, false},
		{"subdirectory", "segments/live-7.ts", "live", 7, false},
		{"absolute URL with query", "https://cdn.example.com/hls/live-9.ts?token=abc", "live", 9, false},
		{"other extension", "live-10.aac", "live", 10, false},
		{"no extension", "live-11", "live", 11, false},
		{"no dash", "segment001.ts", "", 0, true},
		{"non-numeric", "live-x.ts", "", 0, true},
		{"empty path", "https://cdn.example.com/", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seg, err := ParseURI(tt.uri)
			if tt.shouldFail {
				if err == nil {
					t.Fatalf("ParseURI(%q) expected error, got %+v", tt.uri, seg)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseURI(%q) unexpected error: %v", tt.uri, err)
			}
			if seg.StreamBase != tt.wantBase || seg.Sequence != tt.wantSeq {
				t.Errorf("ParseURI(%q) = (%q, %d), want (%q, %d)",
					tt.uri, seg.StreamBase, seg.Sequence, tt.wantBase, tt.wantSeq)
			}
		})
	}
}

func TestParseError(t *testing.T) {
	_, err := Parse("nodash.ts")

	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ParseError, got %T", err)
	}
	if pe.Name != "nodash.ts" {
		t.Errorf("ParseError.Name = %q, want %q", pe.Name, "nodash.ts")
	}
}

func TestNameRoundTrip(t *testing.T) {
	name := Name("cam-01", 77)
	if name != "cam-01-77.ts" {
		t.Fatalf("Name() = %q, want %q", name, "cam-01-77.ts")
	}

	seg, err := Parse(name)
	if err != nil {
		t.Fatalf("Parse(Name()) error: %v", err)
	}
	if seg.StreamBase != "cam-01" || seg.Sequence != 77 {
		t.Errorf("Parse(Name()) = %+v", seg)
	}
}

func TestPlaylistPath(t *testing.T) {
	seg := Segment{StreamBase: "cam-01", Sequence: 5, Path: filepath.Join("tmp", "hls", "cam-01-5.ts")}

	want := filepath.Join("tmp", "hls", "cam-01.m3u8")
	if got := PlaylistPath(seg); got != want {
		t.Errorf("PlaylistPath() = %q, want %q", got, want)
	}
	if got := PlaylistName("cam-01"); got != "cam-01.m3u8" {
		t.Errorf("PlaylistName() = %q", got)
	}
}
