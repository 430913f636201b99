package models

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

const stockHistorySheet = "Stock History"

var stockHistoryHeaders = []interface{}{
	"Date", "Reason", "Change", "Requested Change", "Previous Stock", "New Stock", "Clamped", "Order", "User", "Notes",
}

// ExportStockHistory renders a product's journal as a single-sheet workbook.
func ExportStockHistory(product *Product, entries []*StockHistory) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", stockHistorySheet); err != nil {
		return nil, err
	}

	title := fmt.Sprintf("%s (#%d) - current stock %d", product.Name, product.ID, product.Stock)
	if err := f.SetCellValue(stockHistorySheet, "A1", title); err != nil {
		return nil, err
	}
	if err := f.SetSheetRow(stockHistorySheet, "A2", &stockHistoryHeaders); err != nil {
		return nil, err
	}

	for i, e := range entries {
		cell, err := excelize.CoordinatesToCellName(1, i+3)
		if err != nil {
			return nil, err
		}
		row := []interface{}{
			e.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
			string(e.Reason),
			e.Change,
			e.RequestedChange,
			e.PreviousStock,
			e.NewStock,
			e.Clamped,
			optionalInt(e.OrderId),
			optionalInt(e.UserId),
			e.Notes,
		}
		if err := f.SetSheetRow(stockHistorySheet, cell, &row); err != nil {
			return nil, err
		}
	}
	if err := f.SetColWidth(stockHistorySheet, "A", "A", 20); err != nil {
		return nil, err
	}
	if err := f.SetColWidth(stockHistorySheet, "J", "J", 40); err != nil {
		return nil, err
	}
	return f, nil
}

func optionalInt(v *int) interface{} {
	if v == nil {
		return ""
	}
	return *v
}
