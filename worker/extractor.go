package worker

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/jupark12/contract-extract/models"
	"github.com/ledongthuc/pdf"
)

const defaultExcerptLen = 200

// Extractor reads one source file into a workbook row.
type Extractor interface {
	Extract(ctx context.Context, path string) (models.ExtractedDocument, error)
}

// PDFExtractor pulls plain text out of every page of a PDF and reads the
// contract fields from it.
type PDFExtractor struct {
	ExcerptLen int
}

func (e PDFExtractor) Extract(ctx context.Context, path string) (doc models.ExtractedDocument, err error) {
	doc.FileName = filepath.Base(path)

	// the pdf reader panics on some malformed files
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf %s: %v", doc.FileName, r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return doc, fmt.Errorf("failed to open %s: %w", doc.FileName, err)
	}
	defer f.Close()

	doc.Title = strings.TrimSpace(r.Trailer().Key("Info").Key("Title").Text())

	var text strings.Builder
	totalPages := r.NumPage()
	for pageIndex := 1; pageIndex <= totalPages; pageIndex++ {
		if err := ctx.Err(); err != nil {
			return doc, err
		}

		p := r.Page(pageIndex)
		if p.V.IsNull() {
			continue
		}
		doc.Pages++

		pageText, err := p.GetPlainText(nil)
		if err != nil {
			return doc, fmt.Errorf("failed to extract text from page %d: %w", pageIndex, err)
		}
		text.WriteString(pageText)
		text.WriteByte('\n')
	}

	raw := text.String()
	doc.Fields = ExtractFields(raw)

	content := strings.Join(strings.Fields(raw), " ")
	doc.CharCount = utf8.RuneCountInString(content)
	doc.Excerpt = excerpt(content, e.excerptLen())
	if doc.CharCount == 0 {
		return doc, fmt.Errorf("no text found in %s", doc.FileName)
	}
	return doc, nil
}

func (e PDFExtractor) excerptLen() int {
	if e.ExcerptLen > 0 {
		return e.ExcerptLen
	}
	return defaultExcerptLen
}

func excerpt(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n-1]) + "…"
}
