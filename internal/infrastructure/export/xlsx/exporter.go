package xlsx

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/medical-doc-assistant/internal/core/catalog"
	"github.com/kirillkom/medical-doc-assistant/internal/core/domain"
)

const (
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	sheetName   = "Analyses"
)

var headers = []string{"Date", "Category", "Summary", "Model", "Analysis ID"}

// AnalysisExporter renders a user's analysis history as a single-sheet workbook.
// Records must already be decrypted.
type AnalysisExporter struct {
	catalog *catalog.Catalog
}

func NewAnalysisExporter(cat *catalog.Catalog) *AnalysisExporter {
	return &AnalysisExporter{catalog: cat}
}

func (e *AnalysisExporter) Write(w io.Writer, records []domain.AnalysisRecord) error {
	f := excelize.NewFile()
	defer func() {
		_ = f.Close()
	}()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}
	if err := e.writeHeader(f); err != nil {
		return err
	}

	for i, rec := range records {
		row := []any{
			rec.CreatedAt.UTC().Format("2006-01-02 15:04"),
			e.catalog.Descriptor(rec.Category).Name,
			rec.Summary,
			rec.Model,
			rec.ID,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("cell name: %w", err)
		}
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func (e *AnalysisExporter) writeHeader(f *excelize.File) error {
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	if err := f.SetSheetRow(sheetName, "A1", &headers); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	last, err := excelize.CoordinatesToCellName(len(headers), 1)
	if err != nil {
		return fmt.Errorf("cell name: %w", err)
	}
	if err := f.SetCellStyle(sheetName, "A1", last, style); err != nil {
		return fmt.Errorf("apply header style: %w", err)
	}
	if err := f.SetColWidth(sheetName, "A", "B", 18); err != nil {
		return fmt.Errorf("column width: %w", err)
	}
	if err := f.SetColWidth(sheetName, "C", "C", 80); err != nil {
		return fmt.Errorf("column width: %w", err)
	}
	return nil
}
