package models

import (
	"bytes"
	"fmt"
	"io"
)

// CandidateFile is a file the user picked that may be staged for upload.
// Identity is (Name, Size); the opener is only used when the file is sent.
type CandidateFile struct {
	Name     string
	Size     int64
	MimeType string

	open func() (io.ReadCloser, error)
}

// NewCandidateFile builds a CandidateFile whose content comes from open.
func NewCandidateFile(name string, size int64, mimeType string, open func() (io.ReadCloser, error)) CandidateFile {
	return CandidateFile{Name: name, Size: size, MimeType: mimeType, open: open}
}

// SameAs reports whether both files would be considered duplicates.
func (f CandidateFile) SameAs(other CandidateFile) bool {
	return f.Name == other.Name && f.Size == other.Size
}

// Open returns a reader over the file content.
func (f CandidateFile) Open() (io.ReadCloser, error) {
	if f.open == nil {
		return nil, fmt.Errorf("file %s has no content source", f.Name)
	}
	return f.open()
}

// BytesOpener serves a fixed in-memory buffer.
func BytesOpener(data []byte) func() (io.ReadCloser, error) {
	return func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
}
