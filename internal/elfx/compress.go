package elfx

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
	zipMagic  = []byte{0x50, 0x4b, 0x03, 0x04}
	elfMagic  = []byte{0x7f, 'E', 'L', 'F'}
)

// detectAndDecompress unwraps gzip, zstd and zip containers. Plain data is
// returned as is with an empty kind.
func detectAndDecompress(data []byte) ([]byte, string, error) {
	switch {
	case bytes.HasPrefix(data, gzipMagic):
		reader, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, "", fmt.Errorf("gzip reader creation failed: %w", err)
		}
		defer reader.Close()
		out, err := io.ReadAll(reader)
		if err != nil {
			return nil, "", fmt.Errorf("gzip decompression failed: %w", err)
		}
		return out, "gzip", nil

	case bytes.HasPrefix(data, zstdMagic):
		decoder, err := zstd.NewReader(nil)
		if err != nil {
			return nil, "", err
		}
		defer decoder.Close()
		out, err := decoder.DecodeAll(data, nil)
		if err != nil {
			return nil, "", fmt.Errorf("zstd decompression failed: %w", err)
		}
		return out, "zstd", nil

	case bytes.HasPrefix(data, zipMagic):
		out, err := firstELFInZip(data)
		if err != nil {
			return nil, "", err
		}
		return out, "zip", nil
	}
	return data, "", nil
}

// firstELFInZip extracts the first archive member that starts with the ELF
// magic, falling back to the first member.
func firstELFInZip(data []byte) ([]byte, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("zip reader creation failed: %w", err)
	}
	if len(reader.File) == 0 {
		return nil, fmt.Errorf("zip archive is empty")
	}

	var first []byte
	for i, file := range reader.File {
		if file.FileInfo().IsDir() {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open %s in zip: %w", file.Name, err)
		}
		out, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read %s from zip: %w", file.Name, err)
		}
		if bytes.HasPrefix(out, elfMagic) {
			return out, nil
		}
		if i == 0 || first == nil {
			first = out
		}
	}
	if first == nil {
		return nil, fmt.Errorf("zip archive has no files")
	}
	return first, nil
}
