package extractors

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/campersurfer/Autopicker/internal/domain/extraction"
)

// TextExtractor handles plain text and markdown.
type TextExtractor struct {
	textCap int
	timeout time.Duration
	readCap int64
}

func NewTextExtractor(textCap int, timeout time.Duration, readCap int64) *TextExtractor {
	return &TextExtractor{textCap: textCap, timeout: timeout, readCap: readCap}
}

func (e *TextExtractor) Handles() []string {
	return []string{"text/plain", "text/markdown", "text/html"}
}

func (e *TextExtractor) Info() (string, string) {
	return "text", "1.0"
}

func (e *TextExtractor) Extract(ctx context.Context, r io.Reader, sizeHint int64) (*extraction.Extraction, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	if err := ctx.Err(); err != nil {
		return nil, extraction.NewError(extraction.FailureTimeout, err)
	}

	data, tooLarge, err := readAll(r, e.readCap)
	if err != nil {
		return nil, extraction.NewError(extraction.FailureMalformed, err)
	}

	text, truncated := extraction.NormalizeText(string(data), e.textCap)
	result := &extraction.Extraction{
		Kind:      extraction.KindText,
		Text:      text,
		Truncated: truncated || tooLarge,
	}
	if tooLarge {
		result.Warnings = append(result.Warnings, "input exceeded read cap; trailing bytes discarded")
	}
	return result, nil
}

// CSVExtractor handles comma-separated tables.
type CSVExtractor struct {
	textCap int
	timeout time.Duration
	readCap int64
}

func NewCSVExtractor(textCap int, timeout time.Duration, readCap int64) *CSVExtractor {
	return &CSVExtractor{textCap: textCap, timeout: timeout, readCap: readCap}
}

func (e *CSVExtractor) Handles() []string {
	return []string{"text/csv", "text/tab-separated-values"}
}

func (e *CSVExtractor) Info() (string, string) {
	return "csv", "1.0"
}

func (e *CSVExtractor) Extract(ctx context.Context, r io.Reader, sizeHint int64) (*extraction.Extraction, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	if err := ctx.Err(); err != nil {
		return nil, extraction.NewError(extraction.FailureTimeout, err)
	}

	data, tooLarge, err := readAll(r, e.readCap)
	if err != nil {
		return nil, extraction.NewError(extraction.FailureMalformed, err)
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1

	var b strings.Builder
	rows := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, extraction.NewError(extraction.FailureMalformed, err)
		}
		rows++
		b.WriteString(strings.Join(record, "\t"))
		b.WriteByte('\n')
	}

	text, truncated := extraction.NormalizeText(b.String(), e.textCap)
	return &extraction.Extraction{
		Kind:      extraction.KindTable,
		Text:      text,
		Truncated: truncated || tooLarge,
		Metadata:  extraction.Metadata{RowCount: rows, Format: "csv"},
	}, nil
}

// JSONExtractor handles structured JSON documents.
type JSONExtractor struct {
	textCap int
	timeout time.Duration
	readCap int64
}

func NewJSONExtractor(textCap int, timeout time.Duration, readCap int64) *JSONExtractor {
	return &JSONExtractor{textCap: textCap, timeout: timeout, readCap: readCap}
}

func (e *JSONExtractor) Handles() []string {
	return []string{"application/json"}
}

func (e *JSONExtractor) Info() (string, string) {
	return "json", "1.0"
}

func (e *JSONExtractor) Extract(ctx context.Context, r io.Reader, sizeHint int64) (*extraction.Extraction, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	if err := ctx.Err(); err != nil {
		return nil, extraction.NewError(extraction.FailureTimeout, err)
	}

	data, tooLarge, err := readAll(r, e.readCap)
	if err != nil {
		return nil, extraction.NewError(extraction.FailureMalformed, err)
	}
	if !tooLarge && !json.Valid(data) {
		return nil, extraction.NewError(extraction.FailureMalformed, errors.New("invalid JSON document"))
	}

	text, truncated := extraction.NormalizeText(string(data), e.textCap)
	return &extraction.Extraction{
		Kind:      extraction.KindStructuredJSON,
		Text:      text,
		Truncated: truncated || tooLarge,
		Metadata:  extraction.Metadata{Format: "json"},
	}, nil
}
