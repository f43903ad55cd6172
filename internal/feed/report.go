package feed

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"
)

// BuildMonthlyPDF renders a monthly energy report.
func BuildMonthlyPDF(summary MonthlySummary, generatedAt time.Time) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Foundry Energy Report")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Month: %s", summary.Month))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", generatedAt.Format(time.RFC3339)))
	pdf.Ln(5)

	pdf.Ln(4)
	pdf.Cell(0, 6, fmt.Sprintf("Consumption (kVAh): %.1f", summary.Consumption))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Production (kg): %.1f", summary.ProductionKg))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Consumption per tonne (kVAh/t): %.1f", summary.ConsumptionPerTonne))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(40, 6, "Day", "1", 0, "C", false, 0, "")
	pdf.CellFormat(50, 6, "Consumption (kVAh)", "1", 0, "C", false, 0, "")
	pdf.CellFormat(50, 6, "Production (kg)", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, day := range summary.Days {
		pdf.CellFormat(40, 6, day.Date, "1", 0, "C", false, 0, "")
		pdf.CellFormat(50, 6, fmt.Sprintf("%.2f", day.Consumption), "1", 0, "R", false, 0, "")
		pdf.CellFormat(50, 6, fmt.Sprintf("%.2f", day.ProductionKg), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildMonthlyXLSX renders a monthly energy report workbook.
func BuildMonthlyXLSX(summary MonthlySummary, generatedAt time.Time) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	summarySheet := "summary"
	daysSheet := "days"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(daysSheet); err != nil {
		return nil, err
	}

	_ = f.SetCellValue(summarySheet, "A1", "Foundry Energy Report")
	_ = f.SetCellValue(summarySheet, "A3", "Month")
	_ = f.SetCellValue(summarySheet, "B3", summary.Month)
	_ = f.SetCellValue(summarySheet, "A4", "Generated")
	_ = f.SetCellValue(summarySheet, "B4", generatedAt.Format(time.RFC3339))
	_ = f.SetCellValue(summarySheet, "A5", "Consumption (kVAh)")
	_ = f.SetCellValue(summarySheet, "B5", summary.Consumption)
	_ = f.SetCellValue(summarySheet, "A6", "Production (kg)")
	_ = f.SetCellValue(summarySheet, "B6", summary.ProductionKg)
	_ = f.SetCellValue(summarySheet, "A7", "Consumption per tonne (kVAh/t)")
	_ = f.SetCellValue(summarySheet, "B7", summary.ConsumptionPerTonne)

	_ = f.SetCellValue(daysSheet, "A1", "Day")
	_ = f.SetCellValue(daysSheet, "B1", "Consumption (kVAh)")
	_ = f.SetCellValue(daysSheet, "C1", "Production (kg)")
	for i, day := range summary.Days {
		row := i + 2
		_ = f.SetCellValue(daysSheet, fmt.Sprintf("A%d", row), day.Date)
		_ = f.SetCellValue(daysSheet, fmt.Sprintf("B%d", row), day.Consumption)
		_ = f.SetCellValue(daysSheet, fmt.Sprintf("C%d", row), day.ProductionKg)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
