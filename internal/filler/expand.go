package filler

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/stormdotcom/invo-gen-fastapi/internal/document"
	"github.com/stormdotcom/invo-gen-fastapi/internal/totals"
	"github.com/stormdotcom/invo-gen-fastapi/internal/types"
)

// ErrNoItemsTable is returned when the template has no table to hold the
// line items.
var ErrNoItemsTable = errors.New("template has no line-item table")

// Columns is the order in which line item values are written into a row.
var Columns = []string{"index", "description", "hsn", "qty", "unit", "rate", "amount"}

// ClearItems discards the rows below the header of table tableIndex, so the
// example row of a template is gone before its tokens are substituted.
func ClearItems(doc document.Document, tableIndex int) error {
	table, err := itemsTable(doc, tableIndex)
	if err != nil {
		return err
	}
	if err := table.TruncateRows(1); err != nil {
		return fmt.Errorf("failed to clear item rows: %w", err)
	}
	return nil
}

// ExpandItems rewrites table tableIndex of doc to hold one row per item
// below its header row. Rows after the header are discarded first. When a
// row has fewer cells than Columns, only the cells that exist are written.
func ExpandItems(doc document.Document, items []types.LineItem, tableIndex int) error {
	if err := ClearItems(doc, tableIndex); err != nil {
		return err
	}

	table := doc.Tables()[tableIndex]
	for i, item := range items {
		if err := table.AppendRow(); err != nil {
			return fmt.Errorf("failed to add row for item %d: %w", i+1, err)
		}
		row := table.RowCount() - 1
		values := RowValues(i, item)
		for col := 0; col < table.CellCount(row) && col < len(values); col++ {
			table.Cell(row, col).SetFragments([]string{values[col]})
		}
	}
	return nil
}

func itemsTable(doc document.Document, tableIndex int) (document.Table, error) {
	tables := doc.Tables()
	if tableIndex < 0 || tableIndex >= len(tables) {
		return nil, fmt.Errorf("%w: table %d requested, template has %d", ErrNoItemsTable, tableIndex, len(tables))
	}
	if tables[tableIndex].RowCount() == 0 {
		return nil, fmt.Errorf("%w: table %d has no header row", ErrNoItemsTable, tableIndex)
	}
	return tables[tableIndex], nil
}

// RowValues renders item, the i-th (0-based) line item, in Columns order.
func RowValues(i int, item types.LineItem) []string {
	return []string{
		strconv.Itoa(i + 1),
		item.Description,
		item.HSNCode,
		totals.Money(item.Quantity),
		item.Unit,
		totals.Money(item.UnitRate),
		totals.Money(item.Amount()),
	}
}
