package app

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// Document is the file being edited.
type Document struct {
	Path     string
	ReadOnly bool

	// cursor is a rune offset into the session content.
	cursor   int
	modified bool
}

// OpenDocument reads path. A missing file opens as an empty document that
// is created on save. An empty path opens a scratch buffer.
func OpenDocument(path string, readOnly bool) (*Document, string, error) {
	doc := &Document{Path: path, ReadOnly: readOnly}
	if path == "" {
		return doc, "", nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return doc, "", nil
	}
	if err != nil {
		return nil, "", &FileError{Op: "open", Path: path, Err: err}
	}
	return doc, string(data), nil
}

// Name returns the file name, or "[scratch]".
func (d *Document) Name() string {
	if d.IsScratch() {
		return "[scratch]"
	}
	return filepath.Base(d.Path)
}

// IsScratch reports whether the document has no file.
func (d *Document) IsScratch() bool {
	return d.Path == ""
}

// Modified reports unsaved changes.
func (d *Document) Modified() bool {
	return d.modified
}

// Cursor returns the cursor rune offset.
func (d *Document) Cursor() int {
	return d.cursor
}

// Save writes content to the document's file.
func (d *Document) Save(content string) error {
	switch {
	case d.IsScratch():
		return ErrNoFilePath
	case d.ReadOnly:
		return ErrReadOnly
	}
	if err := os.WriteFile(d.Path, []byte(content), 0o644); err != nil {
		return &FileError{Op: "save", Path: d.Path, Err: err}
	}
	d.modified = false
	return nil
}
