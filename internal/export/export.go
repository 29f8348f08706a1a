// Package export renders bookings into XLSX workbooks.
package export

import (
	"fmt"
	"io"
	"time"

	"companion/internal/models"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

const (
	bookingsSheet = "Bookings"
	historySheet  = "History"
)

var bookingHeaders = []string{
	"ID", "Date", "Start", "Hours", "Renter", "Companion",
	"Price", "Status", "Payment", "Notes", "Created",
}

var historyHeaders = []string{"Booking ID", "Status", "Changed at", "Changed by", "Notes"}

// statusFill цвет строки по статусу заявки
var statusFill = map[models.BookingStatus]string{
	models.StatusPending:   "#FFEB9C",
	models.StatusApproved:  "#C6EFCE",
	models.StatusCompleted: "#DDEBF7",
	models.StatusRejected:  "#FFC7CE",
	models.StatusCancelled: "#EDEDED",
}

type Exporter struct {
	logger *zerolog.Logger
}

func NewExporter(logger *zerolog.Logger) *Exporter {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Exporter{logger: logger}
}

// FileName returns the workbook name for a period.
func FileName(from, to time.Time) string {
	name := "bookings"
	if !from.IsZero() {
		name += "_" + from.Format(models.DateLayout)
	}
	if !to.IsZero() {
		name += "_to_" + to.Format(models.DateLayout)
	}
	return name + ".xlsx"
}

// Write streams the workbook to w.
func (e *Exporter) Write(w io.Writer, bookings []*models.Booking, from, to time.Time) error {
	f, err := build(bookings, from, to)
	if err != nil {
		return err
	}
	defer f.Close()

	n, err := f.WriteTo(w)
	if err != nil {
		return fmt.Errorf("error writing workbook: %w", err)
	}
	e.logger.Info().Int("bookings", len(bookings)).Int64("bytes", n).Msg("Excel workbook written")
	return nil
}

func build(bookings []*models.Booking, from, to time.Time) (*excelize.File, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(bookingsSheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if _, err := f.NewSheet(historySheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("error creating sheet: %w", err)
	}
	_ = f.DeleteSheet("Sheet1")

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})

	// Первая строка: период выгрузки
	_ = f.SetCellValue(bookingsSheet, "A1", periodTitle(from, to))
	titleStyle, _ := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true, Size: 14}})
	_ = f.SetCellStyle(bookingsSheet, "A1", "A1", titleStyle)

	writeHeaders(f, bookingsSheet, 2, bookingHeaders, headerStyle)
	writeHeaders(f, historySheet, 1, historyHeaders, headerStyle)

	styles := make(map[models.BookingStatus]int, len(statusFill))
	for status, color := range statusFill {
		id, err := f.NewStyle(&excelize.Style{
			Fill:      excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
			Alignment: &excelize.Alignment{Vertical: "top", WrapText: true},
		})
		if err == nil {
			styles[status] = id
		}
	}

	historyRow := 2
	for i, b := range bookings {
		row := i + 3
		values := []interface{}{
			b.ID,
			b.Date.Format(models.DateLayout),
			b.StartTime,
			b.DurationHours,
			b.RenterName,
			b.CompanionName,
			b.TotalPrice.InexactFloat64(),
			b.Status.String(),
			b.PaymentStatus,
			b.Notes,
			b.CreatedAt.Format("2006-01-02 15:04"),
		}
		first, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(bookingsSheet, first, &values); err != nil {
			f.Close()
			return nil, fmt.Errorf("error writing booking %d: %w", b.ID, err)
		}
		if style, ok := styles[b.Status]; ok {
			last, _ := excelize.CoordinatesToCellName(len(values), row)
			_ = f.SetCellStyle(bookingsSheet, first, last, style)
		}

		for _, h := range b.StatusHistory {
			cell, _ := excelize.CoordinatesToCellName(1, historyRow)
			_ = f.SetSheetRow(historySheet, cell, &[]interface{}{
				b.ID,
				h.Status.String(),
				h.Timestamp.UTC().Format(time.RFC3339),
				h.ChangedBy,
				h.Notes,
			})
			historyRow++
		}
	}

	_ = f.SetColWidth(bookingsSheet, "A", "D", 10)
	_ = f.SetColWidth(bookingsSheet, "E", "F", 22)
	_ = f.SetColWidth(bookingsSheet, "G", "I", 12)
	_ = f.SetColWidth(bookingsSheet, "J", "J", 40)
	_ = f.SetColWidth(bookingsSheet, "K", "K", 18)
	_ = f.SetColWidth(historySheet, "A", "D", 16)
	_ = f.SetColWidth(historySheet, "C", "C", 24)
	_ = f.SetColWidth(historySheet, "E", "E", 40)

	return f, nil
}

func writeHeaders(f *excelize.File, sheet string, row int, headers []string, style int) {
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		_ = f.SetCellValue(sheet, cell, header)
		_ = f.SetCellStyle(sheet, cell, cell, style)
	}
}

func periodTitle(from, to time.Time) string {
	switch {
	case from.IsZero() && to.IsZero():
		return "Period: all time"
	case from.IsZero():
		return "Period: until " + to.Format(models.DateLayout)
	case to.IsZero():
		return "Period: since " + from.Format(models.DateLayout)
	}
	return fmt.Sprintf("Period: %s - %s", from.Format(models.DateLayout), to.Format(models.DateLayout))
}
