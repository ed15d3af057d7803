package importer

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func buildWorkbook(t *testing.T, rows [][]any) *bytes.Buffer {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	for i, cells := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
			t.Fatalf("set row: %v", err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	return buf
}

func TestReadWorkbookMapsRowsByHeader(t *testing.T) {
	buf := buildWorkbook(t, [][]any{
		{"ID", "Product Name", "Opening Inventory", "Sales Qty (Day 1)"},
		{"P1", "Widget", 10, 3},
		{"P2", "Gadget"},
	})

	rows, err := ReadWorkbook(buf)
	if err != nil {
		t.Fatalf("ReadWorkbook: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}

	if rows[0]["ID"] != "P1" || rows[0]["Sales Qty (Day 1)"] != "3" {
		t.Errorf("unexpected first row %v", rows[0])
	}
	// Short rows still carry every header label, with missing cells empty.
	if got, ok := rows[1]["Sales Qty (Day 1)"]; !ok || got != "" {
		t.Errorf("expected empty cell for short row, got %q (present=%v)", got, ok)
	}
}

func TestReadWorkbookRequiresDataRows(t *testing.T) {
	buf := buildWorkbook(t, [][]any{
		{"ID", "Product Name"},
	})

	if _, err := ReadWorkbook(buf); !errors.Is(err, ErrNoRows) {
		t.Fatalf("expected ErrNoRows, got %v", err)
	}
}

func TestReadWorkbookRejectsNonSpreadsheetInput(t *testing.T) {
	if _, err := ReadWorkbook(strings.NewReader("not an xlsx file")); err == nil {
		t.Fatal("expected error for non-xlsx input")
	}
}
