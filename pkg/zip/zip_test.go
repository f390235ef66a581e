package zip

import (
	"archive/zip"
	"bytes"
	"io"
	"testing"
	"time"
)

func TestArchiveRoundTripsEntries(t *testing.T) {
	modified := time.Date(2026, 2, 14, 8, 0, 0, 0, time.UTC)
	data, err := Archive([]Asset{
		{Filename: "reel.mp4", Data: []byte("not really an mp4")},
		{Filename: "caption.txt", Data: []byte("Hear everything. #nowplaying")},
	}, modified)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	if len(zr.File) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(zr.File))
	}
	if zr.File[0].Method != zip.Store || zr.File[1].Method != zip.Deflate {
		t.Fatalf("unexpected methods %d %d", zr.File[0].Method, zr.File[1].Method)
	}
	rc, err := zr.File[1].Open()
	if err != nil {
		t.Fatalf("open caption: %v", err)
	}
	defer rc.Close()
	got, _ := io.ReadAll(rc)
	if string(got) != "Hear everything. #nowplaying" {
		t.Fatalf("caption = %q", got)
	}
}
