package export

import (
	"bytes"
	"testing"
	"time"

	"companion/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleBookings() []*models.Booking {
	at := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	return []*models.Booking{
		{
			ID:            1,
			RenterName:    "Anna",
			CompanionName: "Boris",
			Date:          time.Date(2025, 6, 5, 0, 0, 0, 0, time.UTC),
			StartTime:     "18:00",
			DurationHours: 2,
			TotalPrice:    decimal.RequireFromString("120.50"),
			Status:        models.StatusApproved,
			PaymentStatus: "unpaid",
			CreatedAt:     at,
			StatusHistory: []models.StatusHistoryEntry{
				{Status: models.StatusPending, Timestamp: at, ChangedBy: 10},
				{Status: models.StatusApproved, Timestamp: at.Add(time.Hour), ChangedBy: 20, Notes: "ok"},
			},
		},
		{
			ID:            2,
			RenterName:    "Vera",
			CompanionName: "Boris",
			Date:          time.Date(2025, 6, 6, 0, 0, 0, 0, time.UTC),
			StartTime:     "12:00",
			DurationHours: 1,
			TotalPrice:    decimal.NewFromInt(60),
			Status:        models.StatusPending,
			CreatedAt:     at,
			StatusHistory: []models.StatusHistoryEntry{
				{Status: models.StatusPending, Timestamp: at, ChangedBy: 11},
			},
		},
	}
}

func TestExporter_WritePeriod(t *testing.T) {
	from := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "bookings_2025-06-01_to_2025-06-30.xlsx", FileName(from, to))

	var buf bytes.Buffer
	require.NoError(t, NewExporter(nil).Write(&buf, sampleBookings(), from, to))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{bookingsSheet, historySheet}, f.GetSheetList())

	title, _ := f.GetCellValue(bookingsSheet, "A1")
	assert.Equal(t, "Period: 2025-06-01 - 2025-06-30", title)

	rows, err := f.GetRows(bookingsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, bookingHeaders, rows[1])
	assert.Equal(t, "1", rows[2][0])
	assert.Equal(t, "2025-06-05", rows[2][1])
	assert.Equal(t, "Anna", rows[2][4])
	assert.Equal(t, "approved", rows[2][7])

	history, err := f.GetRows(historySheet)
	require.NoError(t, err)
	require.Len(t, history, 4)
	assert.Equal(t, []string{"1", "approved", "2025-06-01T10:00:00Z", "20", "ok"}, history[2])
	assert.Equal(t, "2", history[3][0])
}

func TestExporter_Write(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewExporter(nil).Write(&buf, nil, time.Time{}, time.Time{}))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	title, _ := f.GetCellValue(bookingsSheet, "A1")
	assert.Equal(t, "Period: all time", title)
	rows, _ := f.GetRows(bookingsSheet)
	assert.Len(t, rows, 2)
}

func TestFileName(t *testing.T) {
	d := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "bookings.xlsx", FileName(time.Time{}, time.Time{}))
	assert.Equal(t, "bookings_2025-01-02.xlsx", FileName(d, time.Time{}))
	assert.Equal(t, "bookings_to_2025-01-02.xlsx", FileName(time.Time{}, d))
}
