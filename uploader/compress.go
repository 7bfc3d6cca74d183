package uploader

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/klauspost/compress/zstd"
)

const (
	compressedExtension   = ".zst"
	compressedContentType = "application/zstd"
)

// compress writes the zstd compressed copy of the file at path into dir.
func compress(path, dir string, level int) (string, error) {
	src, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open file: %w", err)
	}
	defer func() {
		_ = src.Close()
	}()

	dstPath := filepath.Join(dir, filepath.Base(path)+compressedExtension)
	dst, err := os.Create(dstPath)
	if err != nil {
		return "", fmt.Errorf("create compressed file: %w", err)
	}

	zstdWriter, err := zstd.NewWriter(dst, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	if err != nil {
		_ = dst.Close()
		return "", fmt.Errorf("create zstd writer: %w", err)
	}
	if _, err := io.Copy(zstdWriter, src); err != nil {
		_ = zstdWriter.Close()
		_ = dst.Close()
		return "", fmt.Errorf("compress file: %w", err)
	}
	if err := zstdWriter.Close(); err != nil {
		_ = dst.Close()
		return "", fmt.Errorf("close zstd writer: %w", err)
	}
	if err := dst.Close(); err != nil {
		return "", fmt.Errorf("close compressed file: %w", err)
	}

	return dstPath, nil
}

// detectContentType sniffs the content type of the file. An empty result lets the
// backend pick the content type.
func detectContentType(path string) string {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return ""
	}
	return mtype.String()
}
