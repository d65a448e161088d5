package interfaces

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	billing "utility-billing/internal/billing/domain"
)

// BuildInvoicePDF renders an invoice record with its line items, deduction
// annotations, subtotals and adjustments.
func BuildInvoicePDF(record *billing.InvoiceRecord) ([]byte, error) {
	if record == nil {
		return nil, fmt.Errorf("invoice pdf: nil record")
	}
	inv := record.Invoice

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Utility Invoice")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Invoice: %s", record.ID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Tenant: %s (%s)", inv.TenantName, inv.TenantID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Period: %s", inv.Period))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", record.UpdatedAt.Format(time.RFC3339)))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 9)
	pdf.CellFormat(45, 6, "Meter", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Raw", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Deducted", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Billed", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Rate", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Cost", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)
	for _, item := range inv.LineItems {
		pdf.CellFormat(45, 6, item.MeterName, "1", 0, "L", false, 0, "")
		pdf.CellFormat(25, 6, fmt.Sprintf("%.3f", item.RawConsumption), "1", 0, "R", false, 0, "")
		pdf.CellFormat(25, 6, fmt.Sprintf("%.3f", item.ChildDeductions+item.ManualAdjustment), "1", 0, "R", false, 0, "")
		pdf.CellFormat(25, 6, fmt.Sprintf("%.3f %s", item.Consumption, item.ResourceType.Unit()), "1", 0, "R", false, 0, "")
		pdf.CellFormat(25, 6, fmt.Sprintf("%.4f", item.Tariff.Rate), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, billing.FormatMoney(item.Cost), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
		for _, d := range inv.DeductionsFor(item.MeterID) {
			pdf.CellFormat(0, 5, "  "+d.Describe(), "", 0, "L", false, 0, "")
			pdf.Ln(-1)
		}
	}

	pdf.Ln(4)
	pdf.SetFont("Arial", "B", 10)
	pdf.Cell(0, 6, "Subtotals")
	pdf.Ln(6)
	pdf.SetFont("Arial", "", 10)
	for _, st := range inv.Subtotals {
		pdf.CellFormat(60, 6, st.RateType, "1", 0, "L", false, 0, "")
		pdf.CellFormat(40, 6, billing.FormatMoney(st.Amount), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}
	pdf.Ln(2)
	pdf.Cell(0, 6, fmt.Sprintf("Total (%s): %s", record.Currency, billing.FormatMoney(inv.Total)))
	pdf.Ln(6)

	if len(record.Adjustments) > 0 {
		pdf.SetFont("Arial", "B", 10)
		pdf.Cell(0, 6, "Adjustments")
		pdf.Ln(6)
		pdf.SetFont("Arial", "", 10)
		for _, adj := range record.Adjustments {
			pdf.CellFormat(100, 6, adj.Description, "1", 0, "L", false, 0, "")
			pdf.CellFormat(40, 6, billing.FormatMoney(adj.Amount), "1", 0, "R", false, 0, "")
			pdf.Ln(-1)
		}
		pdf.Ln(2)
	}
	pdf.SetFont("Arial", "B", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Amount due (%s): %s", record.Currency, billing.FormatMoney(record.Amount)))
	pdf.Ln(8)

	if inv.Clamped() {
		pdf.SetFont("Arial", "I", 9)
		for _, a := range inv.Anomalies {
			pdf.Cell(0, 5, fmt.Sprintf("Note: %s", a.Error()))
			pdf.Ln(5)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildSummaryXLSX renders a multi-tenant summary: one row per tenant plus the
// line items of every successful invoice.
func BuildSummaryXLSX(summary billing.Summary) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	summarySheet := "summary"
	itemsSheet := "items"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(itemsSheet); err != nil {
		return nil, err
	}

	_ = f.SetCellValue(summarySheet, "A1", "Billing Summary")
	_ = f.SetCellValue(summarySheet, "B1", summary.Period.String())
	_ = f.SetCellValue(summarySheet, "A3", "Tenant")
	_ = f.SetCellValue(summarySheet, "B3", "Name")
	_ = f.SetCellValue(summarySheet, "C3", "Total")
	_ = f.SetCellValue(summarySheet, "D3", "Status")
	row := 4
	for _, entry := range summary.Entries {
		_ = f.SetCellValue(summarySheet, cell("A", row), entry.TenantID)
		_ = f.SetCellValue(summarySheet, cell("B", row), entry.TenantName)
		if entry.Failed() || entry.Invoice == nil {
			_ = f.SetCellValue(summarySheet, cell("D", row), entry.FailureMessage())
		} else {
			_ = f.SetCellValue(summarySheet, cell("C", row), entry.Invoice.RoundedTotal())
			_ = f.SetCellValue(summarySheet, cell("D", row), "ok")
		}
		row++
	}
	row++
	_ = f.SetCellValue(summarySheet, cell("A", row), "Total")
	_ = f.SetCellValue(summarySheet, cell("C", row), billing.RoundMoney(summary.Total))
	_ = f.SetCellValue(summarySheet, cell("A", row+1), "Failures")
	_ = f.SetCellValue(summarySheet, cell("C", row+1), summary.Failures)

	headers := []string{"Tenant", "Meter", "Resource", "Rate type", "Raw", "Adjustment", "Child deductions", "Billed", "Rate", "Cost"}
	for i, h := range headers {
		_ = f.SetCellValue(itemsSheet, cell(string(rune('A'+i)), 1), h)
	}
	row = 2
	for _, entry := range summary.Entries {
		if entry.Invoice == nil {
			continue
		}
		for _, item := range entry.Invoice.LineItems {
			values := []any{
				entry.TenantID, item.MeterName, string(item.ResourceType), item.RateType(),
				item.RawConsumption, item.ManualAdjustment, item.ChildDeductions, item.Consumption,
				item.Tariff.Rate, billing.RoundMoney(item.Cost),
			}
			for i, v := range values {
				_ = f.SetCellValue(itemsSheet, cell(string(rune('A'+i)), row), v)
			}
			row++
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}
