package xlsx

import (
	"bytes"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/medical-doc-assistant/internal/core/catalog"
	"github.com/kirillkom/medical-doc-assistant/internal/core/domain"
)

func TestWriteAnalyses(t *testing.T) {
	exporter := NewAnalysisExporter(catalog.Default())
	records := []domain.AnalysisRecord{
		{ID: "a-1", Category: domain.CategoryLabResult, Model: "llama", Summary: "LDL slightly high", CreatedAt: time.Date(2026, 4, 1, 8, 30, 0, 0, time.UTC)},
		{ID: "a-2", Category: "unknown", Model: "llama", Summary: "Misc", CreatedAt: time.Date(2026, 3, 1, 8, 30, 0, 0, time.UTC)},
	}

	var buf bytes.Buffer
	if err := exporter.Write(&buf, records); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	if err != nil {
		t.Fatalf("GetRows() error = %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "Date" || rows[1][0] != "2026-04-01 08:30" || rows[1][2] != "LDL slightly high" {
		t.Fatalf("unexpected rows %v", rows)
	}
	if rows[1][1] != catalog.Default().Descriptor(domain.CategoryLabResult).Name {
		t.Fatalf("expected category display name, got %q", rows[1][1])
	}
	if rows[2][1] != catalog.Default().Descriptor(domain.CategoryOther).Name {
		t.Fatalf("expected unknown category to render as other, got %q", rows[2][1])
	}
}

func TestWriteEmptyHistory(t *testing.T) {
	var buf bytes.Buffer
	if err := NewAnalysisExporter(catalog.Default()).Write(&buf, nil); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if buf.Len() == 0 {
		t.Fatalf("expected a workbook even without records")
	}
}
