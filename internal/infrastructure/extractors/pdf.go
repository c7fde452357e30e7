package extractors

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/campersurfer/Autopicker/internal/domain/extraction"
)

// PDFExtractor extracts page text with pdfcpu. pdfcpu works on files,
// so the input bytes land in a temp file for the duration of the run.
type PDFExtractor struct {
	textCap int
	timeout time.Duration
	readCap int64
	tempDir string
}

func NewPDFExtractor(textCap int, timeout time.Duration, readCap int64) *PDFExtractor {
	tempDir := filepath.Join(os.TempDir(), "autopicker-pdf")
	_ = os.MkdirAll(tempDir, 0o755)

	return &PDFExtractor{
		textCap: textCap,
		timeout: timeout,
		readCap: readCap,
		tempDir: tempDir,
	}
}

func (e *PDFExtractor) Handles() []string {
	return []string{"application/pdf"}
}

func (e *PDFExtractor) Info() (string, string) {
	return "pdf", "1.0"
}

func (e *PDFExtractor) Extract(ctx context.Context, r io.Reader, sizeHint int64) (*extraction.Extraction, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	if err := ctx.Err(); err != nil {
		return nil, extraction.NewError(extraction.FailureTimeout, err)
	}

	data, tooLarge, err := readAll(r, e.readCap)
	if err != nil {
		return nil, extraction.NewError(extraction.FailureMalformed, err)
	}
	if tooLarge {
		return nil, extraction.NewError(extraction.FailureTooLarge, fmt.Errorf("pdf larger than %d bytes", e.readCap))
	}

	tempFile, err := os.CreateTemp(e.tempDir, "extract-*.pdf")
	if err != nil {
		return nil, extraction.NewError(extraction.FailureDownstream, err)
	}
	tempPath := tempFile.Name()
	defer os.Remove(tempPath)

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return nil, extraction.NewError(extraction.FailureDownstream, err)
	}
	if err := tempFile.Close(); err != nil {
		return nil, extraction.NewError(extraction.FailureDownstream, err)
	}

	pdfCtx, err := api.ReadContextFile(tempPath)
	if err != nil {
		return nil, extraction.NewError(extraction.FailureMalformed, err)
	}
	if pdfCtx.Encrypt != nil {
		return nil, extraction.NewError(extraction.FailureEncrypted, errors.New("pdf is encrypted"))
	}
	pageCount := pdfCtx.PageCount

	if err := ctx.Err(); err != nil {
		return nil, extraction.NewError(extraction.FailureTimeout, err)
	}

	outDir, err := os.MkdirTemp(e.tempDir, "pages-*")
	if err != nil {
		return nil, extraction.NewError(extraction.FailureDownstream, err)
	}
	defer os.RemoveAll(outDir)

	var warnings []string
	conf := model.NewDefaultConfiguration()
	if err := api.ExtractContentFile(tempPath, outDir, nil, conf); err != nil {
		warnings = append(warnings, "content extraction failed; document may be image-only")
	}

	text := collectPageText(outDir)
	normalized, truncated := extraction.NormalizeText(text, e.textCap)

	return &extraction.Extraction{
		Kind:      extraction.KindText,
		Text:      normalized,
		Truncated: truncated,
		Metadata:  extraction.Metadata{PageCount: pageCount, Format: "pdf"},
		Warnings:  warnings,
	}, nil
}

// collectPageText reassembles the per-page content files pdfcpu writes,
// ordered by page number.
func collectPageText(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}

	type page struct {
		num  int
		text string
	}
	var pages []page

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		var num int
		name := entry.Name()
		if _, err := fmt.Sscanf(name, "Content_page_%d", &num); err != nil {
			if _, err := fmt.Sscanf(name, "page_%d", &num); err != nil {
				continue
			}
		}
		content, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		pages = append(pages, page{num: num, text: string(content)})
	}

	sort.Slice(pages, func(i, j int) bool { return pages[i].num < pages[j].num })

	var b strings.Builder
	for i, p := range pages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(p.text)
	}
	return b.String()
}
