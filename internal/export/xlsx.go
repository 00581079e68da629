// Package export writes movement listings as Excel workbooks.
package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/erazemk/inventar/internal/model"
)

// ContentType is the MIME type of the produced workbooks.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const sheet = "Movements"

var headers = []string{
	"ID", "Date", "Item", "SKU", "Direction", "Amount", "From", "To",
	"Reason", "Notes", "Actor", "Signature required", "Status", "Document",
}

// MovementsXLSX writes movements to w as a single-sheet workbook. Sector IDs
// are resolved through names.
func MovementsXLSX(w io.Writer, movements []model.Movement, names model.SectorNames) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("naming sheet: %w", err)
	}

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return fmt.Errorf("writing header: %w", err)
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("creating header style: %w", err)
	}
	last, _ := excelize.CoordinatesToCellName(len(headers), 1)
	if err := f.SetCellStyle(sheet, "A1", last, bold); err != nil {
		return fmt.Errorf("styling header: %w", err)
	}

	for i, m := range movements {
		required := "no"
		if m.RequiresSignature {
			required = "yes"
		}
		row := []any{
			m.ID,
			m.CreatedAt.Format("2006-01-02 15:04"),
			m.ItemName,
			m.ItemSKU,
			string(m.Direction),
			m.Amount,
			names.Name(m.SourceSectorID, "Unassigned"),
			names.Name(m.TargetSectorID, ""),
			m.Reason,
			m.Notes,
			m.ActorName,
			required,
			string(m.TransferStatus),
			m.DocumentURL,
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("writing movement %d: %w", m.ID, err)
		}
	}

	if err := f.SetColWidth(sheet, "B", "C", 20); err != nil {
		return fmt.Errorf("sizing columns: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}
