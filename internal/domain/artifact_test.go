package domain

import "testing"

func TestArtifactContentTypeAndExtension(t *testing.T) {
	tests := []struct {
		format   string
		wantType string
		wantExt  string
	}{
		{"video/mp4", "video/mp4", ".mp4"},
		{"image/png; charset=binary", "image/png", ".png"},
		{"IMAGE/JPEG", "image/jpeg", ".jpg"},
		{"audio/wave", "audio/wave", ".wav"},
		{"audio/mpeg", "audio/mpeg", ".mp3"},
		{"application/x-unknown", "application/x-unknown", ".bin"},
		{"mp4", "application/octet-stream", ".bin"},
		{"", "application/octet-stream", ".bin"},
	}
	for _, tc := range tests {
		art := NewArtifact(MediaKindVideo, tc.format, []byte("x"))
		if got := art.ContentType(); got != tc.wantType {
			t.Errorf("ContentType(%q) = %q, want %q", tc.format, got, tc.wantType)
		}
		if got := art.Extension(); got != tc.wantExt {
			t.Errorf("Extension(%q) = %q, want %q", tc.format, got, tc.wantExt)
		}
	}
}

func TestNilArtifactDefaults(t *testing.T) {
	var art *MediaArtifact
	if art.ContentType() != "application/octet-stream" || art.Extension() != ".bin" {
		t.Fatalf("nil artifact should report generic type")
	}
}
