package zip

import (
	"archive/zip"
	"bytes"
)

// Asset is one file to place in the archive.
type Asset struct {
	Filename string
	MIME     string
	Data     []byte
}

// ArchiveAssets packs the given assets into an in-memory zip archive.
// Assets without data, and assets the writer refuses, are skipped; the
// archive always contains every asset that could be added.
func ArchiveAssets(assets []Asset) []byte {
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	for _, asset := range assets {
		if len(asset.Data) == 0 {
			continue
		}
		w, err := zw.Create(asset.Filename)
		if err != nil {
			continue
		}
		if _, err := w.Write(asset.Data); err != nil {
			continue
		}
	}
	_ = zw.Close()
	return buf.Bytes()
}
