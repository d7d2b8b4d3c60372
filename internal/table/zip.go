package table

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ReadZip opens a one-table-per-day archive, extracts its first .csv member
// into a caller-exclusive temp directory, decodes it, and removes the temp
// directory on every exit path. Concurrent workers each get their own
// extraction directory, so sibling units never collide.
func ReadZip(path string, schema Schema) (*Table, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", filepath.Base(path), err)
	}
	defer zr.Close()

	var member *zip.File
	for _, f := range zr.File {
		if strings.HasSuffix(strings.ToLower(f.Name), ".csv") {
			member = f
			break
		}
	}
	if member == nil {
		return nil, fmt.Errorf("archive %s has no csv member", filepath.Base(path))
	}

	tmpDir, err := os.MkdirTemp("", "crime-extract-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(tmpDir)

	extracted := filepath.Join(tmpDir, filepath.Base(member.Name))
	src, err := member.Open()
	if err != nil {
		return nil, err
	}
	dst, err := os.Create(extracted)
	if err != nil {
		src.Close()
		return nil, err
	}
	_, copyErr := io.Copy(dst, src)
	src.Close()
	if err := dst.Close(); err != nil && copyErr == nil {
		copyErr = err
	}
	if copyErr != nil {
		return nil, fmt.Errorf("extract %s: %w", member.Name, copyErr)
	}

	f, err := os.Open(extracted)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	t, err := ReadCSV(f, schema)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", member.Name, err)
	}
	return t, nil
}

// WriteZip writes the table as a single compressed csv member. The archive
// is staged under a temp name and renamed into place once fully written.
func WriteZip(path, memberName string, t *Table) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	zw := zip.NewWriter(tmp)
	w, err := zw.Create(memberName)
	if err != nil {
		cleanup()
		return err
	}
	if err := WriteCSV(w, t); err != nil {
		cleanup()
		return err
	}
	if err := zw.Close(); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
