package output

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"slices"
	"time"

	"cohortline/exportd/pkg/export"
)

// Archive writes files into a zip in creation order and keeps an index of
// the names written.
type Archive struct {
	zw       *zip.Writer
	modified time.Time
	names    []string
	seen     map[string]struct{}
}

// NewArchive creates an archive writing to w. Every entry carries the
// modified time so identical inputs produce identical archives.
func NewArchive(w io.Writer, modified time.Time) *Archive {
	return &Archive{
		zw:       zip.NewWriter(w),
		modified: modified,
		seen:     make(map[string]struct{}),
	}
}

// Add writes one file. Adding the same path twice is an error.
func (a *Archive) Add(f export.File) error {
	if _, ok := a.seen[f.Path]; ok {
		return fmt.Errorf("duplicate archive entry %q", f.Path)
	}
	header := &zip.FileHeader{
		Name:     f.Path,
		Method:   zip.Deflate,
		Modified: a.modified,
	}
	writer, err := a.zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to create %s in zip: %w", f.Path, err)
	}
	if _, err := writer.Write(f.Content); err != nil {
		return fmt.Errorf("failed to write %s: %w", f.Path, err)
	}
	a.seen[f.Path] = struct{}{}
	a.names = append(a.names, f.Path)
	return nil
}

// AddAll writes files in order.
func (a *Archive) AddAll(files []export.File) error {
	for _, f := range files {
		if err := a.Add(f); err != nil {
			return err
		}
	}
	return nil
}

// Names returns the entry names in creation order.
func (a *Archive) Names() []string {
	return slices.Clone(a.names)
}

// Close finishes the zip.
func (a *Archive) Close() error {
	return a.zw.Close()
}

// ReadArchive returns the files of a zip held in memory, in stored order.
func ReadArchive(data []byte) ([]export.File, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	files := make([]export.File, 0, len(reader.File))
	for _, zf := range reader.File {
		rc, err := zf.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", zf.Name, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", zf.Name, err)
		}
		files = append(files, export.File{Path: zf.Name, Content: content})
	}
	return files, nil
}
