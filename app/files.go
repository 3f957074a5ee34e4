package app

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/chriswakefield87/billtosheet-api/app/models"

	"github.com/xuri/excelize/v2"
)

// File generators are pure: invoice record in, artifact out. Nothing is
// cached or stored; every download regenerates from the persisted record.

const (
	detailsSheetName = "Invoice Details"
	itemsSheetName   = "Line Items"
)

// GenerateInvoiceDetailsCSV renders the header fields as Field,Value rows.
func GenerateInvoiceDetailsCSV(data models.InvoiceData) string {
	shipping := "-"
	if data.Shipping > 0 {
		shipping = money(data.Shipping)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	records := [][]string{
		{"Field", "Value"},
		{"Vendor", data.Vendor},
		{"Invoice Number", data.InvoiceNumber},
		{"Invoice Date", formatDMY(data.InvoiceDate)},
		{"Currency", data.Currency},
		{"Subtotal", money(data.Subtotal)},
		{"Tax Total", money(data.TaxTotal)},
		{"Shipping", shipping},
		{"Total", money(data.Total)},
	}
	_ = w.WriteAll(records)
	return strings.TrimRight(buf.String(), "\n")
}

// GenerateLineItemsCSV renders one row per line item.
func GenerateLineItemsCSV(data models.InvoiceData) string {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"Description", "Quantity", "Unit Price", "Line Total"})
	for _, item := range data.LineItems {
		_ = w.Write([]string{
			item.Description,
			strconv.FormatFloat(item.Quantity, 'f', -1, 64),
			money(item.UnitPrice),
			money(item.LineTotal),
		})
	}
	w.Flush()
	return strings.TrimRight(buf.String(), "\n")
}

// GenerateExcelFile builds a two-sheet workbook mirroring both CSV variants.
func GenerateExcelFile(data models.InvoiceData) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", detailsSheetName); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(itemsSheetName); err != nil {
		return nil, err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"E8F5E9"}},
	})
	if err != nil {
		return nil, err
	}

	shipping := any("-")
	if data.Shipping > 0 {
		shipping = data.Shipping
	}
	detailRows := [][]any{
		{"Field", "Value"},
		{"Vendor", data.Vendor},
		{"Invoice Number", data.InvoiceNumber},
		{"Invoice Date", formatDMY(data.InvoiceDate)},
		{"Currency", data.Currency},
		{"Subtotal", data.Subtotal},
		{"Tax Total", data.TaxTotal},
		{"Shipping", shipping},
		{"Total", data.Total},
	}
	for i, row := range detailRows {
		cell := fmt.Sprintf("A%d", i+1)
		if err := f.SetSheetRow(detailsSheetName, cell, &row); err != nil {
			return nil, err
		}
	}
	_ = f.SetColWidth(detailsSheetName, "A", "A", 20)
	_ = f.SetColWidth(detailsSheetName, "B", "B", 30)
	_ = f.SetCellStyle(detailsSheetName, "A1", "B1", headerStyle)

	itemHeader := []any{"Description", "Quantity", "Unit Price", "Line Total"}
	if err := f.SetSheetRow(itemsSheetName, "A1", &itemHeader); err != nil {
		return nil, err
	}
	for i, item := range data.LineItems {
		row := []any{item.Description, item.Quantity, item.UnitPrice, item.LineTotal}
		cell := fmt.Sprintf("A%d", i+2)
		if err := f.SetSheetRow(itemsSheetName, cell, &row); err != nil {
			return nil, err
		}
	}
	_ = f.SetColWidth(itemsSheetName, "A", "A", 40)
	_ = f.SetColWidth(itemsSheetName, "B", "B", 10)
	_ = f.SetColWidth(itemsSheetName, "C", "D", 12)
	_ = f.SetCellStyle(itemsSheetName, "A1", "D1", headerStyle)

	moneyStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: strPtr("#,##0.00")})
	if err != nil {
		return nil, err
	}
	if len(data.LineItems) > 0 {
		last := len(data.LineItems) + 1
		_ = f.SetCellStyle(itemsSheetName, "C2", fmt.Sprintf("D%d", last), moneyStyle)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func money(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func strPtr(s string) *string {
	return &s
}

// formatDMY normalizes a date string to DD-MM-YYYY. Already-normalized and
// unparseable values pass through unchanged.
func formatDMY(dateStr string) string {
	dateStr = strings.TrimSpace(dateStr)
	if dateStr == "" {
		return ""
	}

	parts := strings.Split(dateStr, "-")
	if len(parts) == 3 {
		if first, err := strconv.Atoi(parts[0]); err == nil {
			if first <= 31 {
				return dateStr
			}
			// YYYY-MM-DD, flip it.
			return parts[2] + "-" + parts[1] + "-" + parts[0]
		}
	}

	for _, layout := range []string{"2006/01/02", "02/01/2006", "Jan 2, 2006", "2 Jan 2006", "January 2, 2006"} {
		if t, err := time.Parse(layout, dateStr); err == nil {
			return t.Format("02-01-2006")
		}
	}
	return dateStr
}
