// Package ingest parses uploaded spreadsheets and normalizes arbitrary
// column headers onto the canonical accounting vocabulary.
package ingest

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"

	"github.com/hesabyar/hesabyar/internal/model/ledger"
)

var (
	// ErrUnsupportedFormat is returned for extensions other than
	// .csv/.xlsx/.xls.
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrEmptyFile is returned when a file parses to zero data rows.
	ErrEmptyFile = errors.New("file contains no data rows")
)

const sampleRows = 3

// ColumnMapper is the primary header-mapping path, normally backed by the
// chat model. It may fail or return malformed output; ingestion then uses
// the synonym fallback.
type ColumnMapper interface {
	MapColumns(ctx context.Context, headers []string, samples [][]string) (*ledger.ColumnMapping, error)
}

// Service turns uploaded files into canonical tables.
type Service struct {
	mapper ColumnMapper // nil means fallback mapping only
}

// NewService builds an ingest service. mapper may be nil.
func NewService(mapper ColumnMapper) *Service {
	return &Service{mapper: mapper}
}

// Ingest parses the file, maps its headers and coerces values. The returned
// mapping records how headers were interpreted and with what confidence.
func (s *Service) Ingest(ctx context.Context, r io.Reader, filename string) (*ledger.Table, *ledger.ColumnMapping, error) {
	records, err := parseFile(r, filename)
	if err != nil {
		return nil, nil, err
	}
	if len(records) < 2 {
		return nil, nil, ErrEmptyFile
	}

	headers := records[0]
	dataRows := records[1:]

	mapping := s.mapColumns(ctx, headers, dataRows)
	table := BuildTable(headers, dataRows, mapping)

	for _, field := range []string{ledger.FieldDebit, ledger.FieldCredit, ledger.FieldDocDate, ledger.FieldDescription} {
		if !table.HasColumn(field) {
			log.Printf("[ingest] %s: canonical column %q not present, dependent analyses are unavailable", filename, field)
		}
	}

	return table, mapping, nil
}

// mapColumns tries the model first and falls back to synonym matching on
// any error or unusable output.
func (s *Service) mapColumns(ctx context.Context, headers []string, dataRows [][]string) *ledger.ColumnMapping {
	if s.mapper == nil {
		return FallbackMapping(headers)
	}

	samples := dataRows
	if len(samples) > sampleRows {
		samples = samples[:sampleRows]
	}

	mapping, err := s.mapper.MapColumns(ctx, headers, samples)
	if err != nil || mapping == nil || len(mapping.Fields) == 0 {
		if err != nil {
			log.Printf("[ingest] model column mapping failed, using fallback: %v", err)
		}
		return FallbackMapping(headers)
	}

	// The model may skip headers it did not understand; keep those as-is.
	for _, h := range headers {
		if _, ok := mapping.Fields[h]; !ok {
			mapping.Fields[h] = h
		}
	}
	mapping.Source = "model"
	return mapping
}

// parseFile reads the raw grid out of a .csv/.xlsx/.xls upload.
func parseFile(r io.Reader, filename string) ([][]string, error) {
	ext := strings.ToLower(filepath.Ext(filename))

	switch ext {
	case ".csv":
		records, err := csv.NewReader(r).ReadAll()
		if err != nil {
			return nil, fmt.Errorf("parse csv: %w", err)
		}
		return records, nil
	case ".xlsx":
		f, err := excelize.OpenReader(r)
		if err != nil {
			return nil, fmt.Errorf("parse xlsx: %w", err)
		}
		defer f.Close()
		rows, err := f.GetRows(f.GetSheetName(0))
		if err != nil {
			return nil, fmt.Errorf("read xlsx rows: %w", err)
		}
		return rows, nil
	case ".xls":
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("read xls: %w", err)
		}
		wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
		if err != nil {
			return nil, fmt.Errorf("parse xls: %w", err)
		}
		return wb.ReadAllCells(1 << 20), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}
