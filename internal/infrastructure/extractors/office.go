package extractors

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/campersurfer/Autopicker/internal/domain/extraction"
)

const mimeDocx = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
const mimeXlsx = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// DocxExtractor pulls paragraph text out of OPC word documents. A .docx
// is a zip archive whose word/document.xml holds the runs.
type DocxExtractor struct {
	textCap int
	timeout time.Duration
	readCap int64
}

func NewDocxExtractor(textCap int, timeout time.Duration, readCap int64) *DocxExtractor {
	return &DocxExtractor{textCap: textCap, timeout: timeout, readCap: readCap}
}

func (e *DocxExtractor) Handles() []string {
	return []string{mimeDocx}
}

func (e *DocxExtractor) Info() (string, string) {
	return "docx", "1.0"
}

func (e *DocxExtractor) Extract(ctx context.Context, r io.Reader, sizeHint int64) (*extraction.Extraction, error) {
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
		return nil, extraction.NewError(extraction.FailureTooLarge, fmt.Errorf("document larger than %d bytes", e.readCap))
	}

	archive, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, extraction.NewError(extraction.FailureMalformed, err)
	}

	var documentXML io.ReadCloser
	for _, file := range archive.File {
		if file.Name == "word/document.xml" {
			documentXML, err = file.Open()
			if err != nil {
				return nil, extraction.NewError(extraction.FailureMalformed, err)
			}
			break
		}
	}
	if documentXML == nil {
		return nil, extraction.NewError(extraction.FailureMalformed, errors.New("no word/document.xml in archive"))
	}
	defer documentXML.Close()

	text, paragraphs, err := docxText(documentXML)
	if err != nil {
		return nil, extraction.NewError(extraction.FailureMalformed, err)
	}

	normalized, truncated := extraction.NormalizeText(text, e.textCap)
	return &extraction.Extraction{
		Kind:      extraction.KindText,
		Text:      normalized,
		Truncated: truncated,
		Metadata:  extraction.Metadata{PageCount: paragraphs, Format: "docx"},
	}, nil
}

// docxText streams the document XML, collecting w:t runs and breaking on
// paragraph ends.
func docxText(r io.Reader) (string, int, error) {
	decoder := xml.NewDecoder(r)

	var b strings.Builder
	paragraphs := 0
	inText := false

	for {
		token, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", 0, err
		}

		switch t := token.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inText = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				paragraphs++
				b.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}

	return b.String(), paragraphs, nil
}

// XlsxExtractor renders spreadsheet rows as tab-separated text.
type XlsxExtractor struct {
	textCap int
	timeout time.Duration
	readCap int64
}

func NewXlsxExtractor(textCap int, timeout time.Duration, readCap int64) *XlsxExtractor {
	return &XlsxExtractor{textCap: textCap, timeout: timeout, readCap: readCap}
}

func (e *XlsxExtractor) Handles() []string {
	return []string{mimeXlsx}
}

func (e *XlsxExtractor) Info() (string, string) {
	return "xlsx", "1.0"
}

func (e *XlsxExtractor) Extract(ctx context.Context, r io.Reader, sizeHint int64) (*extraction.Extraction, error) {
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
		return nil, extraction.NewError(extraction.FailureTooLarge, fmt.Errorf("workbook larger than %d bytes", e.readCap))
	}

	workbook, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, extraction.NewError(extraction.FailureMalformed, err)
	}
	defer workbook.Close()

	var b strings.Builder
	totalRows := 0
	sheets := workbook.GetSheetList()
	for i, sheet := range sheets {
		if err := ctx.Err(); err != nil {
			return nil, extraction.NewError(extraction.FailureTimeout, err)
		}

		rows, err := workbook.GetRows(sheet)
		if err != nil {
			return nil, extraction.NewError(extraction.FailureMalformed, err)
		}

		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("# ")
		b.WriteString(sheet)
		b.WriteByte('\n')
		for _, row := range rows {
			totalRows++
			b.WriteString(strings.Join(row, "\t"))
			b.WriteByte('\n')
		}
	}

	normalized, truncated := extraction.NormalizeText(b.String(), e.textCap)
	return &extraction.Extraction{
		Kind:      extraction.KindTable,
		Text:      normalized,
		Truncated: truncated,
		Metadata: extraction.Metadata{
			SheetCount: len(sheets),
			RowCount:   totalRows,
			Format:     "xlsx",
		},
	}, nil
}
