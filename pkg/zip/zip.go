package zip

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"time"
)

// Asset is one file placed in an archive.
type Asset struct {
	Filename string
	Data     []byte
}

// Write streams assets into a zip archive on w. Media files are already
// compressed, so they are stored; text entries are deflated.
func Write(w io.Writer, assets []Asset, modified time.Time) error {
	zw := zip.NewWriter(w)
	for _, asset := range assets {
		header := &zip.FileHeader{
			Name:     asset.Filename,
			Method:   methodFor(asset.Filename),
			Modified: modified,
		}
		fw, err := zw.CreateHeader(header)
		if err != nil {
			return fmt.Errorf("zip: create %s: %w", asset.Filename, err)
		}
		if _, err := fw.Write(asset.Data); err != nil {
			return fmt.Errorf("zip: write %s: %w", asset.Filename, err)
		}
	}
	return zw.Close()
}

// Archive returns the zip archive of assets as a byte slice.
func Archive(assets []Asset, modified time.Time) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := Write(buf, assets, modified); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func methodFor(name string) uint16 {
	for _, ext := range []string{".mp4", ".png", ".jpg", ".jpeg", ".wav", ".mp3"} {
		if len(name) >= len(ext) && name[len(name)-len(ext):] == ext {
			return zip.Store
		}
	}
	return zip.Deflate
}
