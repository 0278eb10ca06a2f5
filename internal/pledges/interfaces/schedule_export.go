package interfaces

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	pledges "recurring-donations/internal/pledges/domain"
)

func formatDate(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(dateLayout)
}

// BuildSchedulePDF renders a minimal PDF of a pledge's upcoming occurrences.
func BuildSchedulePDF(pledge *pledges.Pledge, occurrences []pledges.Occurrence) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Pledge Schedule")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Pledge: %s", pledge.ID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Donor: %s", pledge.DonorID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Amount: %s %s", pledge.Amount.StringFixed(2), pledge.Currency))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Frequency: %s every %d", pledge.Policy.Frequency, pledge.Policy.Interval))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("State: %s", pledge.Policy.State()))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Next payment: %s", formatDate(pledge.Policy.NextPaymentDate)))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(15, 6, "#", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Due date", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Amount", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Status", "1", 0, "C", false, 0, "")
	pdf.CellFormat(80, 6, "Reference", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)
	for _, occ := range occurrences {
		pdf.CellFormat(15, 6, fmt.Sprintf("%d", occ.Sequence), "1", 0, "C", false, 0, "")
		pdf.CellFormat(35, 6, occ.DueDate.Format(dateLayout), "1", 0, "C", false, 0, "")
		pdf.CellFormat(35, 6, occ.Amount.StringFixed(2)+" "+occ.Currency, "1", 0, "R", false, 0, "")
		pdf.CellFormat(25, 6, string(occ.Status), "1", 0, "C", false, 0, "")
		pdf.CellFormat(80, 6, occ.Reference, "1", 0, "L", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildScheduleXLSX renders a summary sheet and an occurrences sheet.
func BuildScheduleXLSX(pledge *pledges.Pledge, occurrences []pledges.Occurrence) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	summarySheet := "summary"
	occurrenceSheet := "occurrences"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(occurrenceSheet); err != nil {
		return nil, err
	}

	summary := [][2]any{
		{"Pledge", pledge.ID},
		{"Donor", pledge.DonorID},
		{"Amount", pledge.Amount.StringFixed(2)},
		{"Currency", pledge.Currency},
		{"Category", pledge.Category},
		{"Frequency", string(pledge.Policy.Frequency)},
		{"Interval", pledge.Policy.Interval},
		{"State", string(pledge.Policy.State())},
		{"Executions", pledge.Policy.TotalExecutions},
		{"Next payment", formatDate(pledge.Policy.NextPaymentDate)},
	}
	_ = f.SetCellValue(summarySheet, "A1", "Pledge Schedule")
	for i, row := range summary {
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", i+3), row[0])
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", i+3), row[1])
	}

	headers := []string{"Sequence", "Due date", "Amount", "Currency", "Status", "Reference"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(occurrenceSheet, cell, header)
	}
	for i, occ := range occurrences {
		row := i + 2
		_ = f.SetCellValue(occurrenceSheet, fmt.Sprintf("A%d", row), occ.Sequence)
		_ = f.SetCellValue(occurrenceSheet, fmt.Sprintf("B%d", row), occ.DueDate.Format(dateLayout))
		_ = f.SetCellValue(occurrenceSheet, fmt.Sprintf("C%d", row), occ.Amount.StringFixed(2))
		_ = f.SetCellValue(occurrenceSheet, fmt.Sprintf("D%d", row), occ.Currency)
		_ = f.SetCellValue(occurrenceSheet, fmt.Sprintf("E%d", row), string(occ.Status))
		_ = f.SetCellValue(occurrenceSheet, fmt.Sprintf("F%d", row), occ.Reference)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
