package staging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/jupark12/contract-extract/models"
)

const (
	DefaultMaxFiles     = 5
	DefaultMaxFileSize  = 50 * 1024 * 1024
	DefaultAcceptedType = "application/pdf"
)

// Area accumulates the files a user picked before they are submitted.
// It performs no I/O and is not safe for concurrent use.
type Area struct {
	files        []models.CandidateFile
	lastErr      *models.ValidationError
	maxFiles     int
	maxFileSize  int64
	acceptedType string
}

type Option func(*Area)

func WithMaxFiles(n int) Option {
	return func(a *Area) {
		if n > 0 {
			a.maxFiles = n
		}
	}
}

func WithMaxFileSize(n int64) Option {
	return func(a *Area) {
		if n > 0 {
			a.maxFileSize = n
		}
	}
}

func WithAcceptedType(mimeType string) Option {
	return func(a *Area) {
		if mimeType != "" {
			a.acceptedType = mimeType
		}
	}
}

func New(opts ...Option) *Area {
	a := &Area{
		files:        make([]models.CandidateFile, 0, DefaultMaxFiles),
		maxFiles:     DefaultMaxFiles,
		maxFileSize:  DefaultMaxFileSize,
		acceptedType: DefaultAcceptedType,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// AddFiles validates candidates in input order and stages the ones that pass.
// It returns the newly staged files and at most one rejection; when several
// rules fire in one call the last one wins, capacity being checked last.
func (a *Area) AddFiles(candidates []models.CandidateFile) ([]models.CandidateFile, *models.ValidationError) {
	valid := make([]models.CandidateFile, 0, len(candidates))
	var rejection *models.ValidationError

	for _, file := range candidates {
		if file.MimeType != a.acceptedType {
			rejection = &models.ValidationError{
				Kind:     models.ValidationMimeType,
				FileName: file.Name,
				Message:  "Only PDF files are allowed",
			}
			continue
		}
		if file.Size > a.maxFileSize {
			rejection = &models.ValidationError{
				Kind:     models.ValidationSize,
				FileName: file.Name,
				Message:  fmt.Sprintf("File %s exceeds %s limit", file.Name, formatLimit(a.maxFileSize)),
			}
			continue
		}
		if containsFile(a.files, file) || containsFile(valid, file) {
			continue
		}
		valid = append(valid, file)
	}

	if len(a.files)+len(valid) > a.maxFiles {
		rejection = &models.ValidationError{
			Kind:    models.ValidationCapacity,
			Message: fmt.Sprintf("You can upload a maximum of %d files", a.maxFiles),
		}
		valid = valid[:max(a.maxFiles-len(a.files), 0)]
	}

	a.files = append(a.files, valid...)

	switch {
	case rejection != nil:
		a.lastErr = rejection
	case len(valid) > 0:
		a.lastErr = nil
	}

	return valid, rejection
}

// RemoveFile drops the file at index and clears the error slot.
// An out-of-range index only clears the error.
func (a *Area) RemoveFile(index int) {
	a.lastErr = nil
	if index < 0 || index >= len(a.files) {
		return
	}
	a.files = append(a.files[:index:index], a.files[index+1:]...)
}

// Files returns a copy of the staged files in staging order.
func (a *Area) Files() []models.CandidateFile {
	files := make([]models.CandidateFile, len(a.files))
	copy(files, a.files)
	return files
}

func (a *Area) Len() int {
	return len(a.files)
}

// Remaining is how many more files fit before the cap.
func (a *Area) Remaining() int {
	return max(a.maxFiles-len(a.files), 0)
}

// Error is the single-slot rejection shown next to the staging list.
func (a *Area) Error() *models.ValidationError {
	return a.lastErr
}

// Clear empties the area, as after a successful submission.
func (a *Area) Clear() {
	a.files = a.files[:0]
	a.lastErr = nil
}

func formatLimit(n int64) string {
	const mb = 1024 * 1024
	if n >= mb && n%mb == 0 {
		return fmt.Sprintf("%dMB", n/mb)
	}
	return fmt.Sprintf("%d bytes", n)
}

func containsFile(files []models.CandidateFile, file models.CandidateFile) bool {
	for _, f := range files {
		if f.SameAs(file) {
			return true
		}
	}
	return false
}

// FromPath describes a file on disk, detecting its MIME type from content.
func FromPath(path string) (models.CandidateFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return models.CandidateFile{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return models.CandidateFile{}, fmt.Errorf("%s is a directory", path)
	}

	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return models.CandidateFile{}, fmt.Errorf("detect type of %s: %w", path, err)
	}

	return models.NewCandidateFile(
		filepath.Base(path),
		info.Size(),
		baseType(mtype),
		func() (io.ReadCloser, error) { return os.Open(path) },
	), nil
}

// FromBytes describes an in-memory file, detecting its MIME type from content.
func FromBytes(name string, data []byte) models.CandidateFile {
	return models.NewCandidateFile(name, int64(len(data)), baseType(mimetype.Detect(data)), models.BytesOpener(data))
}

// baseType strips parameters such as "; charset=utf-8".
func baseType(m *mimetype.MIME) string {
	t, _, _ := strings.Cut(m.String(), ";")
	return strings.TrimSpace(t)
}
