package service

import (
	"context"
	"fmt"

	"backoffice-service/internal/util"

	"github.com/xuri/excelize/v2"
)

var exportHeaders = []string{"Produto ID", "Código", "Referência", "Código de Barras", "Produto", "Qtd Sistema", "Qtd Contada", "Diferença"}

// Export renders the review rows of a session as an xlsx workbook
func (s *InventoryService) Export(ctx context.Context, sessionID int64) ([]byte, string, error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.Export")
	defer span.End()

	items, err := s.LoadItems(ctx, sessionID)
	if err != nil {
		return nil, "", err
	}

	f := excelize.NewFile()
	defer f.Close()

	sheet := "Inventario"
	f.SetSheetName("Sheet1", sheet)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:   &excelize.Font{Bold: true},
		Fill:   excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
		Border: []excelize.Border{{Type: "bottom", Color: "000000", Style: 1}},
	})

	for i, h := range exportHeaders {
		col, _ := excelize.ColumnNumberToName(i + 1)
		cell := col + "1"
		f.SetCellValue(sheet, cell, h)
		f.SetCellStyle(sheet, cell, cell, headerStyle)
	}

	var divergent int
	for i, it := range items {
		row := i + 2
		values := []interface{}{it.ProductID, it.Code, it.Reference, it.Barcode, it.ProductName, it.SystemQty, it.CountedQty, it.Delta}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return nil, "", util.SpanError(span, fmt.Errorf("failed to write row %d: %w", row, err))
		}
		if it.Delta != 0 {
			divergent++
		}
	}

	summary := len(items) + 3
	f.SetCellValue(sheet, fmt.Sprintf("A%d", summary), "Itens")
	f.SetCellValue(sheet, fmt.Sprintf("B%d", summary), len(items))
	f.SetCellValue(sheet, fmt.Sprintf("A%d", summary+1), "Divergentes")
	f.SetCellValue(sheet, fmt.Sprintf("B%d", summary+1), divergent)

	widths := []float64{10, 10, 16, 18, 40, 12, 12, 10}
	for i, w := range widths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sheet, col, col, w)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, "", util.SpanError(span, fmt.Errorf("failed to render workbook: %w", err))
	}
	return buf.Bytes(), fmt.Sprintf("inventario_%d.xlsx", sessionID), nil
}
