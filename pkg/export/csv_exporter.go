package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// SummaryLine is a label/value pair printed above the table body.
type SummaryLine struct {
	Label string
	Value string
}

// Sheet defines tabular export content.
type Sheet struct {
	Title   string
	Summary []SummaryLine
	Headers []string
	Rows    [][]string
}

func (s Sheet) validate() error {
	if len(s.Headers) == 0 {
		return fmt.Errorf("sheet requires at least one header")
	}
	for i, row := range s.Rows {
		if len(row) != len(s.Headers) {
			return fmt.Errorf("row %d has %d cells, want %d", i, len(row), len(s.Headers))
		}
	}
	return nil
}

// CSVExporter renders a Sheet into CSV bytes.
type CSVExporter struct{}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Render produces CSV encoded bytes. Summary lines come first as two-column records.
func (e *CSVExporter) Render(sheet Sheet) ([]byte, error) {
	if err := sheet.validate(); err != nil {
		return nil, err
	}
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	for _, line := range sheet.Summary {
		if err := writer.Write([]string{line.Label, line.Value}); err != nil {
			return nil, fmt.Errorf("write csv summary: %w", err)
		}
	}
	if err := writer.Write(sheet.Headers); err != nil {
		return nil, fmt.Errorf("write csv headers: %w", err)
	}
	for _, row := range sheet.Rows {
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
