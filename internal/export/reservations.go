// Package export renders admin reports as xlsx workbooks.
package export

import (
	"fmt"
	"io"
	"time"

	"tripdesk/internal/models"

	"github.com/xuri/excelize/v2"
)

const reservationsSheet = "Reservations"

var reservationHeaders = []string{
	"ID", "Product", "Package ID", "Booking ID", "Payment ID", "Status",
	"Price", "Currency", "Start", "End", "Period", "Invoice", "Travelers", "Created",
}

// statusFill colours the status cell of a reservation row.
var statusFill = map[models.ReservationStatus]string{
	models.ReservationPending:  "#FFEB9C",
	models.ReservationCaptured: "#C6EFCE",
	models.ReservationFailed:   "#FFC7CE",
	models.ReservationRefunded: "#D9D9D9",
}

// ReservationsFileName is the attachment name for a report period.
func ReservationsFileName(kind models.ProductKind, from, to time.Time) string {
	return fmt.Sprintf("reservations_%s_%s_to_%s.xlsx", kind, from.Format(time.DateOnly), to.Format(time.DateOnly))
}

// WriteReservations renders one row per reservation and streams the workbook to w.
func WriteReservations(w io.Writer, kind models.ProductKind, from, to time.Time, rows []models.ReservationReportRow) error {
	f, err := BuildReservations(kind, from, to, rows)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("error writing workbook: %w", err)
	}
	return nil
}

func BuildReservations(kind models.ProductKind, from, to time.Time, rows []models.ReservationReportRow) (*excelize.File, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(reservationsSheet)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	_ = f.SetCellValue(reservationsSheet, "A1", fmt.Sprintf("%s reservations: %s - %s",
		kind, from.Format(time.DateOnly), to.Format(time.DateOnly)))
	lastCol, _ := excelize.ColumnNumberToName(len(reservationHeaders))
	_ = f.MergeCell(reservationsSheet, "A1", lastCol+"1")
	if title, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	}); err == nil {
		_ = f.SetCellStyle(reservationsSheet, "A1", "A1", title)
	}

	header, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("error creating header style: %w", err)
	}
	for i, h := range reservationHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		_ = f.SetCellValue(reservationsSheet, cell, h)
	}
	_ = f.SetCellStyle(reservationsSheet, "A2", lastCol+"2", header)

	styles := make(map[models.ReservationStatus]int, len(statusFill))
	for status, color := range statusFill {
		id, err := f.NewStyle(&excelize.Style{
			Fill: excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
		})
		if err == nil {
			styles[status] = id
		}
	}

	for i, r := range rows {
		row := i + 3
		price, _ := r.Price.Round(2).Float64()
		values := []any{
			r.ID, r.ProductName, r.PackageID, r.ProgressID, r.PaymentID, string(r.Status),
			price, r.CurrencyCode, formatDate(r.StartDate), formatDate(r.EndDate), r.Period,
			r.InvoiceTitle, r.Travelers, r.CreatedAt.UTC().Format("2006-01-02 15:04"),
		}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(reservationsSheet, cell, &values); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("error writing row %d: %w", row, err)
		}
		if style, ok := styles[r.Status]; ok {
			statusCell, _ := excelize.CoordinatesToCellName(6, row)
			_ = f.SetCellStyle(reservationsSheet, statusCell, statusCell, style)
		}
	}

	_ = f.SetColWidth(reservationsSheet, "A", "A", 8)
	_ = f.SetColWidth(reservationsSheet, "B", "B", 30)
	_ = f.SetColWidth(reservationsSheet, "C", lastCol, 16)
	return f, nil
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.DateOnly)
}
